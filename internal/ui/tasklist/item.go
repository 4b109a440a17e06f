package tasklist

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/nhle/taskflow/internal/model"
	"github.com/nhle/taskflow/internal/theme"
)

// TaskItem wraps a task so it can be used in a bubbles/list.
type TaskItem struct {
	Task model.TaskView
}

// FilterValue returns the string used for fuzzy filtering.
func (i TaskItem) FilterValue() string { return i.Task.Title }

// Title returns the task title for the list.
func (i TaskItem) Title() string { return i.Task.Title }

// Description returns a short summary line for the list.
func (i TaskItem) Description() string {
	parts := []string{
		string(i.Task.Status),
		string(i.Task.Priority),
		assigneeName(i.Task),
	}
	return strings.Join(parts, " | ")
}

// TaskDelegate implements list.ItemDelegate for rendering tasks.
type TaskDelegate struct {
	now func() time.Time
}

// Height returns the number of lines each item takes.
func (d TaskDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d TaskDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d TaskDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single task line.
func (d TaskDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	taskItem, ok := item.(TaskItem)
	if !ok {
		return
	}

	line := renderLine(taskItem.Task, d.clock())
	if index == m.Index() {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}
	fmt.Fprint(w, line)
}

func (d TaskDelegate) clock() time.Time {
	if d.now != nil {
		return d.now()
	}
	return time.Now()
}

// renderLine draws the status, priority, title, assignee, due date and
// last update of a task.
func renderLine(t model.TaskView, now time.Time) string {
	prefix := "○"
	if t.Status == model.StatusCompleted {
		prefix = "✓"
	}

	statusBadge := theme.StatusStyle(t.Status).Render(statusLabel(t.Status))
	priBadge := theme.PriorityStyle(t.Priority).Render(priorityLabel(t.Priority))

	paramount := ""
	if t.Paramount {
		paramount = theme.ParamountBadgeStyle.Render(" ★")
	}

	assignee := ""
	if name := assigneeName(t); name != "" {
		assignee = theme.DimmedStyle.Render(" @" + name)
	}

	due := ""
	if t.DueDate != nil {
		label := " due " + t.DueDate.Format("Jan 02")
		if IsOverdue(t, now) {
			due = theme.OverdueStyle.Render(label + " OVERDUE")
		} else {
			due = theme.DimmedStyle.Render(label)
		}
	}

	updated := lipgloss.NewStyle().
		Foreground(theme.ColorGray).
		Render(RelativeTime(t.UpdatedAt, now))

	line := fmt.Sprintf("%s %s %s %s%s%s%s  %s",
		prefix, statusBadge, priBadge, t.Title, paramount, assignee, due, updated)

	if t.Status == model.StatusCompleted {
		line = theme.DimmedStyle.Render(line)
	}
	return line
}

// IsOverdue reports whether an unfinished task's due date has passed.
func IsOverdue(t model.TaskView, now time.Time) bool {
	return t.DueDate != nil && t.Status != model.StatusCompleted && t.DueDate.Before(now)
}

// RelativeTime returns a human-friendly time relative to now, such as
// "3 minutes ago".
func RelativeTime(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	if now.Sub(t) < time.Minute && !t.After(now) {
		return "just now"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

func assigneeName(t model.TaskView) string {
	if t.AssignedTo == nil {
		return ""
	}
	return t.AssignedTo.FullName
}

func statusLabel(s model.Status) string {
	switch s {
	case model.StatusPending:
		return "TODO"
	case model.StatusInProgress:
		return "WIP"
	case model.StatusCompleted:
		return "DONE"
	default:
		return "?"
	}
}

// priorityLabel returns a short label for the given priority.
func priorityLabel(p model.Priority) string {
	switch p {
	case model.PriorityHigh:
		return "P1"
	case model.PriorityMedium:
		return "P2"
	case model.PriorityLow:
		return "P3"
	default:
		return "P?"
	}
}
