package policy

import (
	"encoding/json"
	"testing"

	"github.com/nhle/taskflow/internal/apperr"
	"github.com/nhle/taskflow/internal/identity"
	"github.com/nhle/taskflow/internal/model"
)

const (
	adminID    = "00000000-0000-4000-8000-000000000001"
	creatorID  = "00000000-0000-4000-8000-000000000002"
	assigneeID = "00000000-0000-4000-8000-000000000003"
	outsiderID = "00000000-0000-4000-8000-000000000004"
)

var (
	admin    = identity.Actor{ID: adminID, Role: model.RoleAdmin}
	creator  = identity.Actor{ID: creatorID, Role: model.RoleEmployee}
	assignee = identity.Actor{ID: assigneeID, Role: model.RoleEmployee}
	outsider = identity.Actor{ID: outsiderID, Role: model.RoleEmployee}
)

func testTask() model.Task {
	assigned := assigneeID
	return model.Task{
		ID:          "00000000-0000-4000-8000-0000000000aa",
		Title:       "Write report",
		Description: "Quarterly numbers",
		Status:      model.StatusPending,
		Priority:    model.PriorityMedium,
		AssignedTo:  &assigned,
		CreatedBy:   creatorID,
	}
}

// changes decodes a JSON request body the same way the API does.
func changes(t *testing.T, body string) model.TaskChanges {
	t.Helper()
	var c model.TaskChanges
	if err := json.Unmarshal([]byte(body), &c); err != nil {
		t.Fatalf("decoding %s: %v", body, err)
	}
	return c
}

func TestCheckUpdate(t *testing.T) {
	tests := []struct {
		name     string
		actor    identity.Actor
		body     string
		decision Decision
		reason   DenyReason
		kind     apperr.Kind
	}{
		{"assignee status only", assignee, `{"status":"Completed"}`, Allow, ReasonNone, 0},
		{"creator status only", creator, `{"status":"In Progress"}`, Allow, ReasonNone, 0},
		{"assignee status and title", assignee, `{"status":"Completed","title":"x"}`, Deny, ReasonFieldNotAllowed, apperr.Forbidden},
		{"assignee explicit null priority", assignee, `{"priority":null}`, Deny, ReasonFieldNotAllowed, apperr.Forbidden},
		{"assignee invalid status", assignee, `{"status":"Done"}`, Deny, ReasonInvalidValue, apperr.ValidationFailed},
		{"assignee null status", assignee, `{"status":null}`, Deny, ReasonInvalidValue, apperr.ValidationFailed},
		{"assignee empty status", assignee, `{"status":""}`, Allow, ReasonNone, 0},
		{"assignee empty status and title", assignee, `{"status":"","title":"x"}`, Deny, ReasonFieldNotAllowed, apperr.Forbidden},
		{"admin empty status", admin, `{"status":"","priority":"Low"}`, Allow, ReasonNone, 0},
		{"outsider status", outsider, `{"status":"Completed"}`, Deny, ReasonNotOwner, apperr.Forbidden},
		{"outsider invalid status still forbidden", outsider, `{"status":"Done"}`, Deny, ReasonNotOwner, apperr.Forbidden},
		{"admin any field", admin, `{"title":"New","priority":"High","paramount":true}`, Allow, ReasonNone, 0},
		{"admin clears due date", admin, `{"dueDate":null}`, Allow, ReasonNone, 0},
		{"admin unassigns", admin, `{"assignedTo":null}`, Allow, ReasonNone, 0},
		{"admin blank title", admin, `{"title":"   "}`, Deny, ReasonMissingField, apperr.ValidationFailed},
		{"admin null description", admin, `{"description":null}`, Deny, ReasonMissingField, apperr.ValidationFailed},
		{"admin invalid priority", admin, `{"priority":"Urgent"}`, Deny, ReasonInvalidValue, apperr.ValidationFailed},
		{"admin null paramount", admin, `{"paramount":null}`, Deny, ReasonInvalidValue, apperr.ValidationFailed},
		{"admin malformed assignee", admin, `{"assignedTo":"bob"}`, Deny, ReasonInvalidValue, apperr.ValidationFailed},
		{"admin malformed due date", admin, `{"dueDate":"next week"}`, Deny, ReasonInvalidValue, apperr.ValidationFailed},
		{"admin any status transition", admin, `{"status":"Pending"}`, Allow, ReasonNone, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CheckUpdate(tt.actor, testTask(), changes(t, tt.body))
			if result.Decision != tt.decision {
				t.Fatalf("decision = %v (%v: %s), want %v", result.Decision, result.Reason, result.Message, tt.decision)
			}
			if result.Decision == Allow {
				if err := result.Err(); err != nil {
					t.Errorf("Err() = %v, want nil", err)
				}
				return
			}
			if result.Reason != tt.reason {
				t.Errorf("reason = %v, want %v", result.Reason, tt.reason)
			}
			if kind := apperr.KindOf(result.Err()); kind != tt.kind {
				t.Errorf("error kind = %v, want %v", kind, tt.kind)
			}
		})
	}
}

func TestCheckUpdate_EmployeeNarrowedToStatus(t *testing.T) {
	result := CheckUpdate(assignee, testTask(), changes(t, `{"status":"Completed"}`))
	if !result.Allowed() {
		t.Fatalf("expected allow, got %v", result.Reason)
	}
	if len(result.Fields) != 1 || result.Fields[0] != model.FieldStatus {
		t.Errorf("Fields = %v, want [status]", result.Fields)
	}
	if result.Changes.Status.Value != model.StatusCompleted {
		t.Errorf("Changes.Status = %q, want %q", result.Changes.Status.Value, model.StatusCompleted)
	}
}

func TestCheckUpdate_EmptyStatusLeavesStatusAlone(t *testing.T) {
	result := CheckUpdate(assignee, testTask(), changes(t, `{"status":""}`))
	if !result.Allowed() {
		t.Fatalf("expected allow, got %v: %s", result.Reason, result.Message)
	}
	if result.Changes.Status.Set {
		t.Errorf("Changes.Status = %+v, want absent", result.Changes.Status)
	}
	if len(result.Fields) != 0 {
		t.Errorf("Fields = %v, want none", result.Fields)
	}
}

func TestCheckUpdate_DisallowedFieldsReported(t *testing.T) {
	result := CheckUpdate(creator, testTask(), changes(t, `{"status":"Completed","title":"x","dueDate":null}`))
	if result.Allowed() {
		t.Fatal("expected deny")
	}
	want := []model.Field{model.FieldTitle, model.FieldDueDate}
	if len(result.Fields) != len(want) {
		t.Fatalf("Fields = %v, want %v", result.Fields, want)
	}
	for i := range want {
		if result.Fields[i] != want[i] {
			t.Errorf("Fields[%d] = %q, want %q", i, result.Fields[i], want[i])
		}
	}
}

func TestCheckUpdate_AdminBlankOptionalsClear(t *testing.T) {
	result := CheckUpdate(admin, testTask(), changes(t, `{"assignedTo":"","dueDate":""}`))
	if !result.Allowed() {
		t.Fatalf("expected allow, got %v: %s", result.Reason, result.Message)
	}
	if !result.Changes.AssignedTo.Null {
		t.Error("empty assignedTo should clear the assignee")
	}
	if !result.Changes.DueDate.Null {
		t.Error("empty dueDate should clear the due date")
	}
}

func TestCheckCreate(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		allow  bool
		reason DenyReason
	}{
		{"minimal", `{"title":"a","description":"b"}`, true, ReasonNone},
		{"full", `{"title":"a","description":"b","status":"In Progress","priority":"High","dueDate":"2026-11-01","assignedTo":"` + assigneeID + `","paramount":true}`, true, ReasonNone},
		{"empty optionals ignored", `{"title":"a","description":"b","status":"","priority":"","dueDate":"","assignedTo":""}`, true, ReasonNone},
		{"missing title", `{"description":"b"}`, false, ReasonMissingField},
		{"blank description", `{"title":"a","description":"  "}`, false, ReasonMissingField},
		{"invalid status", `{"title":"a","description":"b","status":"Done"}`, false, ReasonInvalidValue},
		{"invalid priority", `{"title":"a","description":"b","priority":"Urgent"}`, false, ReasonInvalidValue},
		{"malformed assignee", `{"title":"a","description":"b","assignedTo":"123"}`, false, ReasonInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CheckCreate(outsider, changes(t, tt.body))
			if result.Allowed() != tt.allow {
				t.Fatalf("allowed = %v (%v: %s), want %v", result.Allowed(), result.Reason, result.Message, tt.allow)
			}
			if !tt.allow && result.Reason != tt.reason {
				t.Errorf("reason = %v, want %v", result.Reason, tt.reason)
			}
			if !tt.allow && apperr.KindOf(result.Err()) != apperr.ValidationFailed {
				t.Errorf("error kind = %v, want validation_failed", apperr.KindOf(result.Err()))
			}
		})
	}
}

func TestCheckCreate_NormalizesBlankOptionals(t *testing.T) {
	result := CheckCreate(creator, changes(t, `{"title":"a","description":"b","status":"","assignedTo":"","paramount":null}`))
	if !result.Allowed() {
		t.Fatalf("expected allow, got %v", result.Reason)
	}
	if result.Changes.Status.Set || result.Changes.AssignedTo.Set || result.Changes.Paramount.Set {
		t.Errorf("blank optionals should be dropped, got %+v", result.Changes)
	}
}

func TestCanRead(t *testing.T) {
	task := testTask()
	for _, actor := range []identity.Actor{admin, creator, assignee} {
		if !CanRead(actor, task).Allowed() {
			t.Errorf("CanRead(%s) denied, want allow", actor.ID)
		}
	}
	result := CanRead(outsider, task)
	if result.Allowed() {
		t.Fatal("CanRead(outsider) allowed, want deny")
	}
	if apperr.KindOf(result.Err()) != apperr.Forbidden {
		t.Errorf("error kind = %v, want forbidden", apperr.KindOf(result.Err()))
	}
}

func TestAdminOnlyChecks(t *testing.T) {
	checks := map[string]func(identity.Actor) Result{
		"CanDelete":    CanDelete,
		"CanReadLogs":  CanReadLogs,
		"CanProvision": CanProvision,
	}
	for name, check := range checks {
		if !check(admin).Allowed() {
			t.Errorf("%s(admin) denied", name)
		}
		// The creator of a task still may not delete it.
		result := check(creator)
		if result.Allowed() {
			t.Errorf("%s(employee) allowed", name)
		}
		if result.Reason != ReasonAdminOnly {
			t.Errorf("%s reason = %v, want %v", name, result.Reason, ReasonAdminOnly)
		}
		if apperr.KindOf(result.Err()) != apperr.Forbidden {
			t.Errorf("%s error kind = %v, want forbidden", name, apperr.KindOf(result.Err()))
		}
	}
}
