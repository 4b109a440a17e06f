package model

import "time"

// Status is the workflow state of a task.
type Status string

// Task status values. The wire value for the in-progress state contains a space.
const (
	StatusPending    Status = "Pending"
	StatusInProgress Status = "In Progress"
	StatusCompleted  Status = "Completed"
)

// StatusAll is the list filter sentinel meaning "any status".
const StatusAll = "All"

// Valid reports whether s is one of the enumerated statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Priority is the urgency of a task.
type Priority string

// Task priority values.
const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// Valid reports whether p is one of the enumerated priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task is the persisted task aggregate. AssignedTo and CreatedBy hold user ids;
// TaskView carries the composed form returned to clients.
type Task struct {
	ID          string     `json:"id" db:"id"`
	Title       string     `json:"title" db:"title"`
	Description string     `json:"description" db:"description"`
	Status      Status     `json:"status" db:"status"`
	Priority    Priority   `json:"priority" db:"priority"`
	DueDate     *time.Time `json:"dueDate,omitempty" db:"due_date"`
	Paramount   bool       `json:"paramount" db:"paramount"`
	AssignedTo  *string    `json:"assignedTo,omitempty" db:"assigned_to"`
	CreatedBy   string     `json:"createdBy" db:"created_by"`
	CreatedAt   time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time  `json:"updatedAt" db:"updated_at"`
}

// IsAssignee reports whether userID is the task's assignee.
func (t Task) IsAssignee(userID string) bool {
	return t.AssignedTo != nil && *t.AssignedTo == userID
}

// IsCreator reports whether userID created the task.
func (t Task) IsCreator(userID string) bool {
	return t.CreatedBy == userID
}

// Comment is a note left on a task. Its lifecycle is bound to the
// parent task (CASCADE delete).
type Comment struct {
	ID        string    `json:"id" db:"id"`
	TaskID    string    `json:"taskId" db:"task_id"`
	AuthorID  string    `json:"authorId" db:"author_id"`
	Text      string    `json:"text" db:"text"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// CommentView is a comment with its author's identity attached.
type CommentView struct {
	ID        string       `json:"id"`
	Author    *UserSummary `json:"userId"`
	Text      string       `json:"text"`
	CreatedAt time.Time    `json:"createdAt"`
}

// TaskView is the composed task returned by the API and carried by
// taskCreated/taskUpdated events. Related users are reduced to their
// public identity fields.
type TaskView struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Status      Status        `json:"status"`
	Priority    Priority      `json:"priority"`
	DueDate     *time.Time    `json:"dueDate"`
	Paramount   bool          `json:"paramount"`
	AssignedTo  *UserSummary  `json:"assignedTo"`
	CreatedBy   *UserSummary  `json:"createdBy"`
	Comments    []CommentView `json:"comments,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// TaskDeleted is the payload of a taskDeleted event.
type TaskDeleted struct {
	TaskID string `json:"taskId"`
}
