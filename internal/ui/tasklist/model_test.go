package tasklist

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/taskflow/internal/keys"
	"github.com/nhle/taskflow/internal/model"
	"github.com/nhle/taskflow/internal/notify"
	"github.com/nhle/taskflow/internal/sync"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func task(id, title string, status model.Status, created time.Duration) model.TaskView {
	return model.TaskView{
		ID:        id,
		Title:     title,
		Status:    status,
		Priority:  model.PriorityMedium,
		CreatedAt: base.Add(created),
		UpdatedAt: base.Add(created),
	}
}

func ids(tasks []model.TaskView) string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return strings.Join(out, ",")
}

func TestUpsertKeepsNewestFirst(t *testing.T) {
	var tasks []model.TaskView
	tasks = upsertTask(tasks, task("b", "B", model.StatusPending, 2*time.Hour))
	tasks = upsertTask(tasks, task("a", "A", model.StatusPending, time.Hour))
	tasks = upsertTask(tasks, task("c", "C", model.StatusPending, 3*time.Hour))

	if got := ids(tasks); got != "c,b,a" {
		t.Fatalf("order = %s, want c,b,a", got)
	}

	updated := task("b", "B renamed", model.StatusCompleted, 2*time.Hour)
	tasks = upsertTask(tasks, updated)
	if got := ids(tasks); got != "c,b,a" {
		t.Fatalf("order after update = %s", got)
	}
	if tasks[1].Title != "B renamed" {
		t.Errorf("title = %q", tasks[1].Title)
	}

	tasks = removeTask(tasks, "c")
	tasks = removeTask(tasks, "missing")
	if got := ids(tasks); got != "b,a" {
		t.Errorf("order after remove = %s", got)
	}
}

func TestFilterTasks(t *testing.T) {
	alice := &model.UserSummary{ID: "u1", FullName: "Alice Doe"}
	tasks := []model.TaskView{
		task("1", "Write report", model.StatusPending, 0),
		task("2", "Review report", model.StatusCompleted, 0),
		task("3", "Deploy", model.StatusPending, 0),
	}
	tasks[2].AssignedTo = alice

	tests := []struct {
		name   string
		status model.Status
		query  string
		want   string
	}{
		{"everything", "", "", "1,2,3"},
		{"by status", model.StatusPending, "", "1,3"},
		{"by title", "", "REPORT", "1,2"},
		{"by assignee", "", "alice", "3"},
		{"status and query", model.StatusCompleted, "report", "2"},
		{"no match", model.StatusInProgress, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ids(filterTasks(tasks, tt.status, tt.query)); got != tt.want {
				t.Errorf("filterTasks = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNextStatus(t *testing.T) {
	cases := map[model.Status]model.Status{
		model.StatusPending:    model.StatusInProgress,
		model.StatusInProgress: model.StatusCompleted,
		model.StatusCompleted:  model.StatusCompleted,
	}
	for from, want := range cases {
		if got := NextStatus(from); got != want {
			t.Errorf("NextStatus(%q) = %q, want %q", from, got, want)
		}
	}
}

func TestBoardAppliesFeed(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 80, 24)

	m, _ = m.Update(sync.SnapshotMsg{
		Tasks: []model.TaskView{
			task("old", "Old", model.StatusPending, 0),
			task("new", "New", model.StatusInProgress, time.Hour),
		},
		Total: 2,
	})
	if got := ids(m.Tasks()); got != "new,old" {
		t.Fatalf("snapshot order = %s", got)
	}

	m, _ = m.Update(sync.TaskEventMsg{
		Name:   notify.EventTaskCreated,
		Task:   task("newest", "Newest", model.StatusPending, 2*time.Hour),
		TaskID: "newest",
	})
	if got := ids(m.Tasks()); got != "newest,new,old" || m.Total() != 3 {
		t.Fatalf("after create = %s (total %d)", got, m.Total())
	}

	done := task("old", "Old", model.StatusCompleted, 0)
	m, _ = m.Update(sync.TaskEventMsg{Name: notify.EventTaskUpdated, Task: done, TaskID: "old"})
	if got, _ := m.Task("old"); got.Status != model.StatusCompleted {
		t.Errorf("status after update = %q", got.Status)
	}

	m, _ = m.Update(sync.TaskEventMsg{Name: notify.EventTaskDeleted, TaskID: "new"})
	if got := ids(m.Tasks()); got != "newest,old" || m.Total() != 2 {
		t.Errorf("after delete = %s (total %d)", got, m.Total())
	}

	selected, ok := m.Selected()
	if !ok || selected.ID != "newest" {
		t.Errorf("selected = %+v, %v", selected, ok)
	}
}

func TestBoardStatusFilterKeys(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 80, 24)
	m, _ = m.Update(sync.SnapshotMsg{Tasks: []model.TaskView{
		task("p", "Pending one", model.StatusPending, 0),
		task("c", "Completed one", model.StatusCompleted, time.Hour),
	}})

	press := func(k string) {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)})
	}

	press("1")
	if selected, _ := m.Selected(); selected.ID != "p" {
		t.Errorf("pending filter selected %q", selected.ID)
	}

	press("3")
	if selected, _ := m.Selected(); selected.ID != "c" {
		t.Errorf("completed filter selected %q", selected.ID)
	}

	// Pressing the active filter again clears it.
	press("3")
	if got := len(m.list.Items()); got != 2 {
		t.Errorf("items after clearing = %d, want 2", got)
	}
}

func TestRenderLine(t *testing.T) {
	now := base.Add(48 * time.Hour)
	due := base
	overdue := task("1", "Ship release", model.StatusPending, 0)
	overdue.DueDate = &due
	overdue.Paramount = true
	overdue.AssignedTo = &model.UserSummary{FullName: "Alice"}

	line := renderLine(overdue, now)
	for _, want := range []string{"Ship release", "OVERDUE", "@Alice", "2 days ago"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}

	completed := overdue
	completed.Status = model.StatusCompleted
	if IsOverdue(completed, now) {
		t.Error("completed task reported overdue")
	}
}

func TestRelativeTime(t *testing.T) {
	if got := RelativeTime(time.Time{}, base); got != "" {
		t.Errorf("zero time = %q", got)
	}
	if got := RelativeTime(base.Add(-10*time.Second), base); got != "just now" {
		t.Errorf("seconds = %q", got)
	}
	if got := RelativeTime(base.Add(-3*time.Hour), base); got != "3 hours ago" {
		t.Errorf("hours = %q", got)
	}
}
