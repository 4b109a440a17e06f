package tasklist

import (
	"slices"
	"strings"

	"github.com/nhle/taskflow/internal/model"
)

// upsertTask replaces the task with the same ID or inserts it, keeping
// the slice ordered newest first by creation time.
func upsertTask(tasks []model.TaskView, task model.TaskView) []model.TaskView {
	tasks = removeTask(tasks, task.ID)
	idx, _ := slices.BinarySearchFunc(tasks, task, func(existing, target model.TaskView) int {
		return target.CreatedAt.Compare(existing.CreatedAt)
	})
	return slices.Insert(tasks, idx, task)
}

// removeTask drops the task with the given ID, if present.
func removeTask(tasks []model.TaskView, id string) []model.TaskView {
	return slices.DeleteFunc(tasks, func(t model.TaskView) bool {
		return t.ID == id
	})
}

// sortNewestFirst orders tasks by creation time, newest first.
func sortNewestFirst(tasks []model.TaskView) {
	slices.SortStableFunc(tasks, func(a, b model.TaskView) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}

// filterTasks returns the tasks matching the status (empty for any) and
// a case-insensitive query over title, description and assignee.
func filterTasks(tasks []model.TaskView, status model.Status, query string) []model.TaskView {
	query = strings.ToLower(strings.TrimSpace(query))
	var out []model.TaskView
	for _, t := range tasks {
		if status != "" && t.Status != status {
			continue
		}
		if query != "" && !matchesQuery(t, query) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func matchesQuery(t model.TaskView, query string) bool {
	fields := []string{t.Title, t.Description}
	if t.AssignedTo != nil {
		fields = append(fields, t.AssignedTo.FullName)
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), query) {
			return true
		}
	}
	return false
}

// NextStatus returns the status a task advances to: Pending, then In
// Progress, then Completed. Completed tasks stay completed.
func NextStatus(s model.Status) model.Status {
	switch s {
	case model.StatusPending:
		return model.StatusInProgress
	default:
		return model.StatusCompleted
	}
}

