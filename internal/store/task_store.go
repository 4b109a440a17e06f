package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nhle/taskflow/internal/model"
)

const taskColumns = `id, title, description, status, priority, due_date,
	paramount, assigned_to, created_by, created_at, updated_at`

// CreateTask inserts a new task. Timestamps default to now when unset.
func (s *SQLiteStore) CreateTask(ctx context.Context, task model.Task) error {
	if task.ID == "" {
		task.ID = model.NewID()
	}
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = task.CreatedAt
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.Title, task.Description, task.Status, task.Priority,
		utcPtr(task.DueDate), boolToInt(task.Paramount), task.AssignedTo, task.CreatedBy,
		task.CreatedAt.UTC(), task.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("creating task: %w", err)
	}
	return nil
}

// GetTaskByID retrieves a single task by its ID.
func (s *SQLiteStore) GetTaskByID(ctx context.Context, id string) (*model.Task, error) {
	var task model.Task
	err := s.db.GetContext(ctx, &task,
		"SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("getting task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting task %s: %w", id, err)
	}
	return &task, nil
}

// GetTasks retrieves tasks matching the filter, newest first.
func (s *SQLiteStore) GetTasks(ctx context.Context, filter TaskFilter) ([]model.Task, error) {
	where, args := buildTaskWhere(filter)

	query := "SELECT " + taskColumns + " FROM tasks" + where +
		" ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		if filter.Limit <= 0 {
			query += " LIMIT -1"
		}
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	tasks := []model.Task{}
	if err := s.db.SelectContext(ctx, &tasks, query, args...); err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	return tasks, nil
}

// CountTasks returns the number of tasks matching the filter, ignoring
// Limit and Offset.
func (s *SQLiteStore) CountTasks(ctx context.Context, filter TaskFilter) (int, error) {
	where, args := buildTaskWhere(filter)

	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM tasks"+where, args...); err != nil {
		return 0, fmt.Errorf("counting tasks: %w", err)
	}
	return count, nil
}

// UpdateTask writes every mutable column of the task in one statement.
// ID, CreatedBy and CreatedAt are never changed.
func (s *SQLiteStore) UpdateTask(ctx context.Context, task model.Task) error {
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET
			title = ?, description = ?, status = ?, priority = ?,
			due_date = ?, paramount = ?, assigned_to = ?,
			updated_at = ?
		WHERE id = ?`,
		task.Title, task.Description, task.Status, task.Priority,
		utcPtr(task.DueDate), boolToInt(task.Paramount), task.AssignedTo,
		task.UpdatedAt.UTC(),
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("updating task %s: %w", task.ID, err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("updating task %s: %w", task.ID, ErrNotFound)
	}
	return nil
}

// DeleteTask removes a task and its comments.
func (s *SQLiteStore) DeleteTask(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM task_comments WHERE task_id = ?", id); err != nil {
		return fmt.Errorf("deleting comments of task %s: %w", id, err)
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting task %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("deleting task %s: %w", id, ErrNotFound)
	}

	return tx.Commit()
}

// AddComment appends a comment to a task.
func (s *SQLiteStore) AddComment(ctx context.Context, comment model.Comment) error {
	if comment.ID == "" {
		comment.ID = model.NewID()
	}
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_comments (id, task_id, author_id, text, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		comment.ID, comment.TaskID, comment.AuthorID, comment.Text, comment.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("adding comment to task %s: %w", comment.TaskID, err)
	}
	return nil
}

// GetComments retrieves a task's comments, oldest first.
func (s *SQLiteStore) GetComments(ctx context.Context, taskID string) ([]model.Comment, error) {
	comments := []model.Comment{}
	err := s.db.SelectContext(ctx, &comments, `
		SELECT id, task_id, author_id, text, created_at
		FROM task_comments WHERE task_id = ?
		ORDER BY created_at ASC, id ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("querying comments of task %s: %w", taskID, err)
	}
	return comments, nil
}

// buildTaskWhere builds the WHERE clause shared by GetTasks and CountTasks.
func buildTaskWhere(filter TaskFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if filter.VisibleTo != nil {
		conditions = append(conditions, "(assigned_to = ? OR created_by = ?)")
		args = append(args, *filter.VisibleTo, *filter.VisibleTo)
	}
	if filter.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, *filter.Status)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// utcPtr normalizes an optional time to UTC.
func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}
