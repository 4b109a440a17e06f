package detail

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/taskflow/internal/keys"
	"github.com/nhle/taskflow/internal/model"
	"github.com/nhle/taskflow/internal/theme"
	"github.com/nhle/taskflow/internal/ui/tasklist"
)

// BackMsg signals the parent to navigate back to the board.
type BackMsg struct{}

// DetailLoadedMsg carries a freshly fetched task.
type DetailLoadedMsg struct {
	Task model.TaskView
	Err  error
}

// Action names carried by ActionMsg.
const (
	ActionAdvance = "advance"
	ActionComment = "comment"
)

// ActionMsg signals the parent to execute an action on the current task.
type ActionMsg struct {
	Action string
	TaskID string
	Status model.Status
	Text   string
}

// Model is the task detail view component.
type Model struct {
	task       *model.TaskView
	err        error
	viewport   viewport.Model
	comment    textinput.Model
	commenting bool
	keys       *keys.KeyMap
	width      int
	height     int
	loading    bool
	now        func() time.Time
}

// New creates a new detail view model.
func New(keys *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	ti := textinput.New()
	ti.Placeholder = "write a comment..."
	ti.Prompt = "> "
	ti.CharLimit = 2000
	ti.Width = width - 4

	return Model{
		viewport: vp,
		comment:  ti,
		keys:     keys,
		width:    width,
		height:   height,
		now:      time.Now,
	}
}

// Init returns the initial command for the detail view.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case DetailLoadedMsg:
		if msg.Err != nil {
			m.loading = false
			m.err = msg.Err
			return m, nil
		}
		m.SetTask(msg.Task)
		return m, nil

	case tea.KeyMsg:
		if m.commenting {
			return m.handleCommentKeys(msg)
		}

		switch {
		case key.Matches(msg, m.keys.Back):
			return m, func() tea.Msg {
				return BackMsg{}
			}

		case key.Matches(msg, m.keys.Advance):
			if m.task != nil && m.task.Status != model.StatusCompleted {
				action := ActionMsg{
					Action: ActionAdvance,
					TaskID: m.task.ID,
					Status: tasklist.NextStatus(m.task.Status),
				}
				return m, func() tea.Msg { return action }
			}
			return m, nil

		case key.Matches(msg, m.keys.Comment):
			if m.task != nil {
				m.commenting = true
				m.comment.Reset()
				return m, m.comment.Focus()
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// handleCommentKeys processes key input while the comment box has focus.
func (m Model) handleCommentKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		text := strings.TrimSpace(m.comment.Value())
		m.commenting = false
		m.comment.Blur()
		if text == "" || m.task == nil {
			return m, nil
		}
		action := ActionMsg{Action: ActionComment, TaskID: m.task.ID, Text: text}
		return m, func() tea.Msg { return action }

	case "esc":
		m.commenting = false
		m.comment.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.comment, cmd = m.comment.Update(msg)
	return m, cmd
}

// View renders the detail view.
func (m Model) View() string {
	placeholder := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	switch {
	case m.loading:
		return placeholder.Render("Loading task details...")
	case m.err != nil && m.task == nil:
		return placeholder.Render(theme.ErrorStyle.Render(m.err.Error()))
	case m.task == nil:
		return placeholder.Render("No task selected")
	}

	if m.commenting {
		return lipgloss.JoinVertical(lipgloss.Left, m.viewport.View(), m.comment.View())
	}
	return m.viewport.View()
}

// renderContent builds the full detail content string for the viewport.
func (m Model) renderContent() string {
	if m.task == nil {
		return ""
	}

	task := m.task
	now := m.now()
	var sections []string

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	title := task.Title
	if task.Paramount {
		title += theme.ParamountBadgeStyle.Render(" ★ paramount")
	}
	sections = append(sections, titleStyle.Render(title))

	statusBadge := theme.StatusStyle(task.Status).Render(string(task.Status))
	priBadge := theme.PriorityStyle(task.Priority).Render(string(task.Priority) + " priority")
	sections = append(sections, lipgloss.JoinHorizontal(lipgloss.Top, statusBadge, "  ", priBadge))
	sections = append(sections, "")

	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray).Width(10)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)
	row := func(label, value string) {
		sections = append(sections, metaStyle.Render(label+":")+" "+value)
	}

	if task.AssignedTo != nil {
		row("Assignee", valStyle.Render(task.AssignedTo.FullName))
	} else {
		row("Assignee", theme.DimmedStyle.Render("unassigned"))
	}
	if task.CreatedBy != nil {
		row("Creator", valStyle.Render(task.CreatedBy.FullName))
	}
	if task.DueDate != nil {
		due := task.DueDate.Format("2006-01-02")
		if tasklist.IsOverdue(*task, now) {
			row("Due", theme.OverdueStyle.Render(due+" (overdue)"))
		} else {
			row("Due", valStyle.Render(due))
		}
	}
	row("Created", valStyle.Render(tasklist.RelativeTime(task.CreatedAt, now)))
	row("Updated", valStyle.Render(tasklist.RelativeTime(task.UpdatedAt, now)))

	sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	separator := sepStyle.Render(strings.Repeat("─", max(min(m.width-4, 80), 0)))
	sections = append(sections, "", separator, "")

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	sections = append(sections, headerStyle.Render("Description"), "")

	body := task.Description
	if body == "" {
		body = lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Italic(true).
			Render("No description")
	}
	sections = append(sections, body)

	sections = append(sections, "", separator, "")
	sections = append(sections, headerStyle.Render(fmt.Sprintf("Comments (%d)", len(task.Comments))), "")

	authorStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorBlue)
	for _, c := range task.Comments {
		author := "unknown user"
		if c.Author != nil {
			author = c.Author.FullName
		}
		sections = append(sections,
			fmt.Sprintf("%s  %s", authorStyle.Render(author),
				theme.DimmedStyle.Render(tasklist.RelativeTime(c.CreatedAt, now))),
			c.Text,
			"",
		)
	}

	if m.err != nil {
		sections = append(sections, theme.ErrorStyle.Render(m.err.Error()))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// SetTask updates the task being displayed and re-renders the content.
// The scroll position is kept when the same task is refreshed.
func (m *Model) SetTask(task model.TaskView) {
	sameTask := m.task != nil && m.task.ID == task.ID
	m.task = &task
	m.loading = false
	m.err = nil
	m.viewport.SetContent(m.renderContent())
	if !sameTask {
		m.viewport.GotoTop()
	}
}

// SetError shows an action failure under the task.
func (m *Model) SetError(err error) {
	m.err = err
	m.viewport.SetContent(m.renderContent())
}

// TaskID returns the displayed task's ID, or "" when none is shown.
func (m Model) TaskID() string {
	if m.task == nil {
		return ""
	}
	return m.task.ID
}

// Commenting reports whether the comment box has focus.
func (m Model) Commenting() bool {
	return m.commenting
}

// SetLoading sets the loading state.
func (m *Model) SetLoading(loading bool) {
	m.loading = loading
	if loading {
		m.task = nil
		m.err = nil
	}
}

// Clear drops the displayed task.
func (m *Model) Clear() {
	m.task = nil
	m.err = nil
	m.loading = false
	m.commenting = false
	m.viewport.SetContent("")
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 2
	m.comment.Width = width - 4
	m.viewport.SetContent(m.renderContent())
}
