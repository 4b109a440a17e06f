package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Optional is one member of a sparse change set. It separates a key that was
// absent from the request (Set false) from one explicitly sent as null
// (Set and Null true) and from one carrying a value.
type Optional[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// Some returns an Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

// Null returns an Optional that explicitly clears its field.
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true, Null: true}
}

// HasValue reports whether the key was sent with a non-null value.
func (o Optional[T]) HasValue() bool {
	return o.Set && !o.Null
}

// UnmarshalJSON is only invoked for keys present in the document.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if strings.TrimSpace(string(data)) == "null" {
		o.Null = true
		var zero T
		o.Value = zero
		return nil
	}
	o.Null = false
	return json.Unmarshal(data, &o.Value)
}

// Field names a mutable task field.
type Field string

// Mutable task fields, named as they appear on the wire.
const (
	FieldTitle       Field = "title"
	FieldDescription Field = "description"
	FieldStatus      Field = "status"
	FieldPriority    Field = "priority"
	FieldDueDate     Field = "dueDate"
	FieldAssignedTo  Field = "assignedTo"
	FieldParamount   Field = "paramount"
)

// TaskChanges is the sparse field set of a create or update request.
// There is no createdBy member: the creator always comes from the actor.
type TaskChanges struct {
	Title       Optional[string]   `json:"title"`
	Description Optional[string]   `json:"description"`
	Status      Optional[Status]   `json:"status"`
	Priority    Optional[Priority] `json:"priority"`
	DueDate     Optional[string]   `json:"dueDate"`
	AssignedTo  Optional[string]   `json:"assignedTo"`
	Paramount   Optional[bool]     `json:"paramount"`
}

// Present returns the fields present in the change set, in a stable order.
func (c TaskChanges) Present() []Field {
	var fields []Field
	if c.Title.Set {
		fields = append(fields, FieldTitle)
	}
	if c.Description.Set {
		fields = append(fields, FieldDescription)
	}
	if c.Status.Set {
		fields = append(fields, FieldStatus)
	}
	if c.Priority.Set {
		fields = append(fields, FieldPriority)
	}
	if c.DueDate.Set {
		fields = append(fields, FieldDueDate)
	}
	if c.AssignedTo.Set {
		fields = append(fields, FieldAssignedTo)
	}
	if c.Paramount.Set {
		fields = append(fields, FieldParamount)
	}
	return fields
}

// Only returns a copy holding just the listed fields.
func (c TaskChanges) Only(fields []Field) TaskChanges {
	var out TaskChanges
	for _, f := range fields {
		switch f {
		case FieldTitle:
			out.Title = c.Title
		case FieldDescription:
			out.Description = c.Description
		case FieldStatus:
			out.Status = c.Status
		case FieldPriority:
			out.Priority = c.Priority
		case FieldDueDate:
			out.DueDate = c.DueDate
		case FieldAssignedTo:
			out.AssignedTo = c.AssignedTo
		case FieldParamount:
			out.Paramount = c.Paramount
		}
	}
	return out
}

// Details flattens the present fields into a map suitable for the
// activity log. Cleared fields map to nil.
func (c TaskChanges) Details() map[string]any {
	details := make(map[string]any)
	put := func(f Field, set, null bool, v any) {
		if !set {
			return
		}
		if null {
			details[string(f)] = nil
			return
		}
		details[string(f)] = v
	}
	put(FieldTitle, c.Title.Set, c.Title.Null, c.Title.Value)
	put(FieldDescription, c.Description.Set, c.Description.Null, c.Description.Value)
	put(FieldStatus, c.Status.Set, c.Status.Null, string(c.Status.Value))
	put(FieldPriority, c.Priority.Set, c.Priority.Null, string(c.Priority.Value))
	put(FieldDueDate, c.DueDate.Set, c.DueDate.Null, c.DueDate.Value)
	put(FieldAssignedTo, c.AssignedTo.Set, c.AssignedTo.Null, c.AssignedTo.Value)
	put(FieldParamount, c.Paramount.Set, c.Paramount.Null, c.Paramount.Value)
	return details
}

// dueDateLayouts are the accepted dueDate formats, most specific first.
var dueDateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseDueDate parses a dueDate value as sent by clients.
func ParseDueDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dueDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
