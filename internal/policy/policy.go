// Package policy decides what an actor may do to a task. Every function is
// pure: it looks only at the actor, the stored task and the requested
// change set, and returns a Result instead of a boolean so callers always
// get a typed reason for a denial.
package policy

import (
	"strings"

	"github.com/nhle/taskflow/internal/apperr"
	"github.com/nhle/taskflow/internal/identity"
	"github.com/nhle/taskflow/internal/model"
)

// Decision is the outcome of a policy check.
type Decision int

const (
	// Deny means the operation is not permitted.
	Deny Decision = iota

	// Allow means the operation is permitted.
	Allow
)

// String returns "allow" or "deny".
func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// DenyReason describes why a check was denied.
type DenyReason int

const (
	// ReasonNone is the reason carried by allowed results.
	ReasonNone DenyReason = iota

	// ReasonNotOwner means a non-admin is neither assignee nor creator.
	ReasonNotOwner

	// ReasonAdminOnly means the operation requires the Admin role.
	ReasonAdminOnly

	// ReasonFieldNotAllowed means the request names a field the actor
	// may not change.
	ReasonFieldNotAllowed

	// ReasonMissingField means a required field is absent, null or blank.
	ReasonMissingField

	// ReasonInvalidValue means a field holds a value outside its domain.
	ReasonInvalidValue
)

// String returns a description of the reason.
func (r DenyReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonNotOwner:
		return "not assignee or creator"
	case ReasonAdminOnly:
		return "admin only"
	case ReasonFieldNotAllowed:
		return "field not allowed"
	case ReasonMissingField:
		return "missing required field"
	case ReasonInvalidValue:
		return "invalid value"
	default:
		return "unknown"
	}
}

// Result is the full outcome of a check.
type Result struct {
	Decision Decision

	// Reason is only meaningful when Decision is Deny.
	Reason DenyReason

	// Message is safe to show to the caller.
	Message string

	// Fields lists the fields the decision is about: the offending fields
	// of a denial, or the fields an allowed update may apply.
	Fields []model.Field

	// Changes is the change set the caller may apply. For an allowed
	// update it is narrowed to Fields; for an allowed create it has
	// blank optional values removed.
	Changes model.TaskChanges
}

// Allowed reports whether the decision is Allow.
func (r Result) Allowed() bool {
	return r.Decision == Allow
}

// Err converts a denial into a classified error. It returns nil for
// allowed results.
func (r Result) Err() error {
	if r.Decision == Allow {
		return nil
	}
	switch r.Reason {
	case ReasonMissingField, ReasonInvalidValue:
		return apperr.New(apperr.ValidationFailed, r.Message)
	default:
		return apperr.New(apperr.Forbidden, r.Message)
	}
}

func deny(reason DenyReason, message string, fields ...model.Field) Result {
	return Result{Decision: Deny, Reason: reason, Message: message, Fields: fields}
}

func allow(changes model.TaskChanges) Result {
	return Result{Decision: Allow, Fields: changes.Present(), Changes: changes}
}

// CanRead allows admins and the task's assignee or creator.
func CanRead(actor identity.Actor, task model.Task) Result {
	if actor.IsAdmin() || task.IsAssignee(actor.ID) || task.IsCreator(actor.ID) {
		return Result{Decision: Allow}
	}
	return deny(ReasonNotOwner, "You are not authorized to view this task")
}

// CanDelete allows admins only, regardless of the task.
func CanDelete(actor identity.Actor) Result {
	if actor.IsAdmin() {
		return Result{Decision: Allow}
	}
	return deny(ReasonAdminOnly, "Only admins can delete tasks")
}

// CanReadLogs allows admins only.
func CanReadLogs(actor identity.Actor) Result {
	if actor.IsAdmin() {
		return Result{Decision: Allow}
	}
	return deny(ReasonAdminOnly, "Only admins can view activity logs")
}

// CanProvision allows admins only.
func CanProvision(actor identity.Actor) Result {
	if actor.IsAdmin() {
		return Result{Decision: Allow}
	}
	return deny(ReasonAdminOnly, "Only admins can invite users")
}

// CheckCreate validates a create request. Any authenticated actor may
// create a task. Empty strings for status, priority, dueDate and
// assignedTo mean "not provided", as do nulls for optional fields.
func CheckCreate(actor identity.Actor, changes model.TaskChanges) Result {
	if blank(changes.Title) || blank(changes.Description) {
		return deny(ReasonMissingField, "Title and description are required",
			model.FieldTitle, model.FieldDescription)
	}

	normalized := changes
	if !changes.Status.HasValue() || changes.Status.Value == "" {
		normalized.Status = model.Optional[model.Status]{}
	} else if !changes.Status.Value.Valid() {
		return deny(ReasonInvalidValue, "Invalid status value", model.FieldStatus)
	}

	if !changes.Priority.HasValue() || changes.Priority.Value == "" {
		normalized.Priority = model.Optional[model.Priority]{}
	} else if !changes.Priority.Value.Valid() {
		return deny(ReasonInvalidValue, "Invalid priority value", model.FieldPriority)
	}

	if !changes.DueDate.HasValue() || strings.TrimSpace(changes.DueDate.Value) == "" {
		normalized.DueDate = model.Optional[string]{}
	} else if _, err := model.ParseDueDate(changes.DueDate.Value); err != nil {
		return deny(ReasonInvalidValue, "Invalid due date", model.FieldDueDate)
	}

	if !changes.AssignedTo.HasValue() || changes.AssignedTo.Value == "" {
		normalized.AssignedTo = model.Optional[string]{}
	} else if !model.ValidID(changes.AssignedTo.Value) {
		return deny(ReasonInvalidValue, "Invalid assignee ID", model.FieldAssignedTo)
	}

	if !changes.Paramount.HasValue() {
		normalized.Paramount = model.Optional[bool]{}
	}

	return allow(normalized)
}

// CheckUpdate decides whether actor may apply changes to task.
//
// Admins may change any field, subject to value validation. Anyone else
// must be the assignee or creator, and may change status only: a request
// naming any other field is rejected as a whole, even when it also carries
// a valid status and even when the other field is null. An empty status
// string means "not provided", as it does on create.
func CheckUpdate(actor identity.Actor, task model.Task, changes model.TaskChanges) Result {
	if changes.Status.HasValue() && changes.Status.Value == "" {
		changes.Status = model.Optional[model.Status]{}
	}
	if !actor.IsAdmin() {
		return checkEmployeeUpdate(actor, task, changes)
	}
	return checkAdminUpdate(changes)
}

func checkEmployeeUpdate(actor identity.Actor, task model.Task, changes model.TaskChanges) Result {
	if !task.IsAssignee(actor.ID) && !task.IsCreator(actor.ID) {
		return deny(ReasonNotOwner, "You are not authorized to update this task")
	}

	if changes.Status.Set && (changes.Status.Null || !changes.Status.Value.Valid()) {
		return deny(ReasonInvalidValue, "Invalid status value", model.FieldStatus)
	}

	var disallowed []model.Field
	for _, f := range changes.Present() {
		if f != model.FieldStatus {
			disallowed = append(disallowed, f)
		}
	}
	if len(disallowed) > 0 {
		return deny(ReasonFieldNotAllowed, "Employees can only update task status", disallowed...)
	}

	return allow(changes.Only([]model.Field{model.FieldStatus}))
}

func checkAdminUpdate(changes model.TaskChanges) Result {
	if changes.Title.Set && blank(changes.Title) {
		return deny(ReasonMissingField, "Title cannot be empty", model.FieldTitle)
	}
	if changes.Description.Set && blank(changes.Description) {
		return deny(ReasonMissingField, "Description cannot be empty", model.FieldDescription)
	}
	if changes.Status.Set && (changes.Status.Null || !changes.Status.Value.Valid()) {
		return deny(ReasonInvalidValue, "Invalid status value", model.FieldStatus)
	}
	if changes.Priority.Set && (changes.Priority.Null || !changes.Priority.Value.Valid()) {
		return deny(ReasonInvalidValue, "Invalid priority value", model.FieldPriority)
	}
	if changes.Paramount.Set && changes.Paramount.Null {
		return deny(ReasonInvalidValue, "Paramount must be true or false", model.FieldParamount)
	}

	normalized := changes
	if changes.DueDate.HasValue() {
		if strings.TrimSpace(changes.DueDate.Value) == "" {
			normalized.DueDate = model.Null[string]()
		} else if _, err := model.ParseDueDate(changes.DueDate.Value); err != nil {
			return deny(ReasonInvalidValue, "Invalid due date", model.FieldDueDate)
		}
	}
	if changes.AssignedTo.HasValue() {
		if changes.AssignedTo.Value == "" {
			normalized.AssignedTo = model.Null[string]()
		} else if !model.ValidID(changes.AssignedTo.Value) {
			return deny(ReasonInvalidValue, "Invalid assignee ID", model.FieldAssignedTo)
		}
	}

	return allow(normalized)
}

// blank reports whether a required text field is absent, null or empty
// after trimming.
func blank(o model.Optional[string]) bool {
	return !o.HasValue() || strings.TrimSpace(o.Value) == ""
}
