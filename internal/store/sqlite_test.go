package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nhle/taskflow/internal/model"
	"github.com/nhle/taskflow/internal/store"
	"github.com/nhle/taskflow/tests/testutil"
)

func newTask(title, createdBy string, assignedTo *string, createdAt time.Time) model.Task {
	return model.Task{
		ID:          model.NewID(),
		Title:       title,
		Description: title + " description",
		Status:      model.StatusPending,
		Priority:    model.PriorityMedium,
		AssignedTo:  assignedTo,
		CreatedBy:   createdBy,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

func TestTaskRoundTrip(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	creator := testutil.CreateTestUser(t, s, "Ada Admin", model.RoleAdmin)
	assignee := testutil.CreateTestUser(t, s, "Eve Employee", model.RoleEmployee)

	due := time.Date(2026, 11, 1, 9, 30, 0, 0, time.UTC)
	task := newTask("Ship release", creator.ID, &assignee.ID, time.Now().UTC())
	task.DueDate = &due
	task.Paramount = true
	task.Status = model.StatusInProgress

	if err := s.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	got, err := s.GetTaskByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTaskByID: %v", err)
	}
	if got.Title != task.Title || got.Status != model.StatusInProgress || !got.Paramount {
		t.Errorf("got %+v, want %+v", got, task)
	}
	if got.DueDate == nil || !got.DueDate.Equal(due) {
		t.Errorf("DueDate = %v, want %v", got.DueDate, due)
	}
	if !got.IsAssignee(assignee.ID) || !got.IsCreator(creator.ID) {
		t.Errorf("assignee/creator not preserved: %+v", got)
	}
}

func TestGetTaskByID_NotFound(t *testing.T) {
	s := testutil.NewTestStore(t)
	_, err := s.GetTaskByID(context.Background(), model.NewID())
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateTask_ClearsOptionalColumns(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	creator := testutil.CreateTestUser(t, s, "Ada Admin", model.RoleAdmin)
	assignee := testutil.CreateTestUser(t, s, "Eve Employee", model.RoleEmployee)

	due := time.Now().UTC().Add(24 * time.Hour)
	task := newTask("Fix bug", creator.ID, &assignee.ID, time.Now().UTC())
	task.DueDate = &due
	if err := s.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	task.AssignedTo = nil
	task.DueDate = nil
	task.Status = model.StatusCompleted
	task.UpdatedAt = time.Now().UTC()
	if err := s.UpdateTask(ctx, task); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}

	got, err := s.GetTaskByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTaskByID: %v", err)
	}
	if got.AssignedTo != nil || got.DueDate != nil {
		t.Errorf("optional columns not cleared: %+v", got)
	}
	if got.Status != model.StatusCompleted {
		t.Errorf("Status = %q, want Completed", got.Status)
	}
	if got.CreatedBy != creator.ID {
		t.Errorf("CreatedBy = %q, want %q", got.CreatedBy, creator.ID)
	}

	missing := newTask("ghost", creator.ID, nil, time.Now().UTC())
	if err := s.UpdateTask(ctx, missing); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("UpdateTask missing: err = %v, want ErrNotFound", err)
	}
}

func TestGetTasks_VisibilityStatusAndOrder(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	admin := testutil.CreateTestUser(t, s, "Ada Admin", model.RoleAdmin)
	eve := testutil.CreateTestUser(t, s, "Eve Employee", model.RoleEmployee)
	bob := testutil.CreateTestUser(t, s, "Bob Builder", model.RoleEmployee)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tasks := []model.Task{
		newTask("assigned to eve", admin.ID, &eve.ID, base),
		newTask("created by eve", eve.ID, &bob.ID, base.Add(time.Minute)),
		newTask("bob only", admin.ID, &bob.ID, base.Add(2*time.Minute)),
		newTask("unassigned", admin.ID, nil, base.Add(3*time.Minute)),
	}
	tasks[1].Status = model.StatusCompleted
	for _, task := range tasks {
		if err := s.CreateTask(ctx, task); err != nil {
			t.Fatalf("CreateTask %s: %v", task.Title, err)
		}
	}

	all, err := s.GetTasks(ctx, store.TaskFilter{})
	if err != nil {
		t.Fatalf("GetTasks: %v", err)
	}
	if len(all) != 4 || all[0].Title != "unassigned" || all[3].Title != "assigned to eve" {
		t.Errorf("expected newest first over all tasks, got %v", titles(all))
	}

	visible, err := s.GetTasks(ctx, store.TaskFilter{VisibleTo: &eve.ID})
	if err != nil {
		t.Fatalf("GetTasks visible: %v", err)
	}
	if got := titles(visible); len(got) != 2 || got[0] != "created by eve" || got[1] != "assigned to eve" {
		t.Errorf("visible to eve = %v", got)
	}

	completed := string(model.StatusCompleted)
	filter := store.TaskFilter{VisibleTo: &eve.ID, Status: &completed}
	count, err := s.CountTasks(ctx, filter)
	if err != nil {
		t.Fatalf("CountTasks: %v", err)
	}
	if count != 1 {
		t.Errorf("CountTasks = %d, want 1", count)
	}

	page, err := s.GetTasks(ctx, store.TaskFilter{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("GetTasks page: %v", err)
	}
	if got := titles(page); len(got) != 2 || got[0] != "created by eve" {
		t.Errorf("second page = %v", got)
	}
}

func TestDeleteTask_RemovesComments(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	admin := testutil.CreateTestUser(t, s, "Ada Admin", model.RoleAdmin)

	task := newTask("doomed", admin.ID, nil, time.Now().UTC())
	if err := s.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	for _, text := range []string{"first", "second"} {
		err := s.AddComment(ctx, model.Comment{TaskID: task.ID, AuthorID: admin.ID, Text: text})
		if err != nil {
			t.Fatalf("AddComment: %v", err)
		}
	}

	comments, err := s.GetComments(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetComments: %v", err)
	}
	if len(comments) != 2 || comments[0].Text != "first" {
		t.Errorf("comments = %+v", comments)
	}

	if err := s.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	comments, err = s.GetComments(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetComments after delete: %v", err)
	}
	if len(comments) != 0 {
		t.Errorf("comments survived delete: %+v", comments)
	}

	if err := s.DeleteTask(ctx, task.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second DeleteTask: err = %v, want ErrNotFound", err)
	}
}

func TestCreateUser_Duplicate(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	user := model.User{
		FullName:     "Ada Admin",
		Email:        "Ada@Example.com",
		Username:     "ada",
		PasswordHash: "x",
		Role:         model.RoleAdmin,
	}
	if err := s.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	user.Username = "ada2"
	user.Email = "ada@example.com"
	if err := s.CreateUser(ctx, user); !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("duplicate email: err = %v, want ErrDuplicate", err)
	}

	got, err := s.GetUserByLogin(ctx, "ADA@example.com")
	if err != nil {
		t.Fatalf("GetUserByLogin email: %v", err)
	}
	if got.Username != "ada" {
		t.Errorf("Username = %q, want ada", got.Username)
	}
	if _, err := s.GetUserByLogin(ctx, "ada"); err != nil {
		t.Errorf("GetUserByLogin username: %v", err)
	}
	if _, err := s.GetUserByEmail(ctx, "nobody@example.com"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetUserByEmail missing: err = %v, want ErrNotFound", err)
	}
}

func TestGetUserSummaries(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	ada := testutil.CreateTestUser(t, s, "Ada Admin", model.RoleAdmin)
	eve := testutil.CreateTestUser(t, s, "Eve Employee", model.RoleEmployee)

	summaries, err := s.GetUserSummaries(ctx, []string{ada.ID, eve.ID, ada.ID, model.NewID()})
	if err != nil {
		t.Fatalf("GetUserSummaries: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("len = %d, want 2", len(summaries))
	}
	if summaries[eve.ID].FullName != "Eve Employee" {
		t.Errorf("summary = %+v", summaries[eve.ID])
	}

	exists, err := s.UserExists(ctx, ada.ID)
	if err != nil || !exists {
		t.Errorf("UserExists(ada) = %v, %v", exists, err)
	}
	exists, err = s.UserExists(ctx, model.NewID())
	if err != nil || exists {
		t.Errorf("UserExists(unknown) = %v, %v", exists, err)
	}
}

func TestActivityLog(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	target := model.NewID()
	kind := model.TargetTask
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	entries := []model.ActivityLogEntry{
		{ActorID: "a", Action: model.ActionCreateTask, TargetID: &target, TargetKind: &kind,
			Details: map[string]any{"title": "Ship"}, CreatedAt: base},
		{ActorID: "a", Action: model.ActionUpdateTask, TargetID: &target, TargetKind: &kind,
			Details: map[string]any{"status": "Completed", "dueDate": nil}, CreatedAt: base.Add(time.Minute)},
		{ActorID: "a", Action: model.ActionLogin, CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, entry := range entries {
		if err := s.AppendActivity(ctx, entry); err != nil {
			t.Fatalf("AppendActivity: %v", err)
		}
	}

	count, err := s.CountActivities(ctx)
	if err != nil || count != 3 {
		t.Fatalf("CountActivities = %d, %v; want 3", count, err)
	}

	got, err := s.GetActivities(ctx, 2, 0)
	if err != nil {
		t.Fatalf("GetActivities: %v", err)
	}
	if len(got) != 2 || got[0].Action != model.ActionLogin || got[1].Action != model.ActionUpdateTask {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got[0].TargetID != nil || got[0].Details != nil {
		t.Errorf("login entry should have no target or details: %+v", got[0])
	}
	if got[1].Details["status"] != "Completed" {
		t.Errorf("details = %v", got[1].Details)
	}
	if v, ok := got[1].Details["dueDate"]; !ok || v != nil {
		t.Errorf("cleared field should decode as nil, got %v (present %v)", v, ok)
	}
}

func titles(tasks []model.Task) []string {
	out := make([]string, len(tasks))
	for i, task := range tasks {
		out[i] = task.Title
	}
	return out
}
