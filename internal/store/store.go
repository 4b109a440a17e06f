package store

import (
	"context"
	"errors"

	"github.com/nhle/taskflow/internal/model"
)

// Errors returned by Store implementations. Callers match them with
// errors.Is; the returned errors wrap them with context.
var (
	// ErrNotFound means the referenced row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate means a unique column (email, username) is taken.
	ErrDuplicate = errors.New("duplicate")
)

// TaskFilter controls filtering and pagination for task queries. Results
// are always ordered newest first.
type TaskFilter struct {
	// VisibleTo restricts results to tasks the user is assigned to or
	// created. Nil means all tasks.
	VisibleTo *string

	// Status restricts results to one status. Nil means any status.
	Status *string

	Limit  int
	Offset int
}

// Store defines the persistence interface for tasks, comments, users and
// the activity log. It is the only component that touches the database.
type Store interface {
	// === Tasks ===

	CreateTask(ctx context.Context, task model.Task) error
	GetTaskByID(ctx context.Context, id string) (*model.Task, error)
	GetTasks(ctx context.Context, filter TaskFilter) ([]model.Task, error)
	CountTasks(ctx context.Context, filter TaskFilter) (int, error)
	UpdateTask(ctx context.Context, task model.Task) error
	DeleteTask(ctx context.Context, id string) error

	// === Comments ===

	AddComment(ctx context.Context, comment model.Comment) error
	GetComments(ctx context.Context, taskID string) ([]model.Comment, error)

	// === Users ===

	CreateUser(ctx context.Context, user model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	GetUsers(ctx context.Context) ([]model.User, error)
	GetUserSummaries(ctx context.Context, ids []string) (map[string]model.UserSummary, error)
	UserExists(ctx context.Context, id string) (bool, error)

	// === Activity log (append-only) ===

	AppendActivity(ctx context.Context, entry model.ActivityLogEntry) error
	GetActivities(ctx context.Context, limit, offset int) ([]model.ActivityLogEntry, error)
	CountActivities(ctx context.Context) (int, error)

	Close() error
}
