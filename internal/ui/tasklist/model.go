package tasklist

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/taskflow/internal/keys"
	"github.com/nhle/taskflow/internal/model"
	"github.com/nhle/taskflow/internal/notify"
	"github.com/nhle/taskflow/internal/sync"
	"github.com/nhle/taskflow/internal/theme"
)

// SelectedTaskMsg is sent when a user selects a task to view details.
type SelectedTaskMsg struct {
	TaskID string
}

// Model is the live task board. It holds every task the feed delivered
// and shows the ones matching the current status filter and search.
type Model struct {
	list         list.Model
	keys         *keys.KeyMap
	tasks        []model.TaskView
	total        int
	statusFilter model.Status
	query        string
	searchMode   bool
	searchInput  textinput.Model
	width        int
	height       int
}

// New creates a new task board.
func New(k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, TaskDelegate{}, width, height-2)
	l.Title = "Tasks"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	si := textinput.New()
	si.Placeholder = "search tasks..."
	si.Prompt = "/ "
	si.Width = width - 4

	return Model{
		list:        l,
		keys:        k,
		searchInput: si,
		width:       width,
		height:      height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles feed messages and key input for the board.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case sync.SnapshotMsg:
		m.tasks = append([]model.TaskView(nil), msg.Tasks...)
		sortNewestFirst(m.tasks)
		m.total = msg.Total
		return m, m.refresh()

	case sync.TaskEventMsg:
		m.apply(msg)
		return m, m.refresh()

	case tea.KeyMsg:
		if m.searchMode {
			return m.handleSearchKeys(msg)
		}
		return m.handleNormalKeys(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// apply folds one pushed change into the board.
func (m *Model) apply(msg sync.TaskEventMsg) {
	switch msg.Name {
	case notify.EventTaskCreated:
		before := len(m.tasks)
		m.tasks = upsertTask(m.tasks, msg.Task)
		if len(m.tasks) > before {
			m.total++
		}
	case notify.EventTaskUpdated:
		m.tasks = upsertTask(m.tasks, msg.Task)
	case notify.EventTaskDeleted:
		before := len(m.tasks)
		m.tasks = removeTask(m.tasks, msg.TaskID)
		if len(m.tasks) < before && m.total > 0 {
			m.total--
		}
	}
}

// handleSearchKeys processes key input while in search mode.
func (m Model) handleSearchKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.searchMode = false
		m.query = m.searchInput.Value()
		return m, m.refresh()

	case "esc":
		m.searchMode = false
		m.searchInput.Reset()
		m.query = ""
		return m, m.refresh()
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, cmd
}

// handleNormalKeys processes key input in normal (non-search) mode.
func (m Model) handleNormalKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Select):
		task, ok := m.Selected()
		if !ok {
			return m, nil
		}
		return m, func() tea.Msg {
			return SelectedTaskMsg{TaskID: task.ID}
		}

	case key.Matches(msg, m.keys.Search):
		m.searchMode = true
		m.searchInput.Reset()
		return m, m.searchInput.Focus()

	case key.Matches(msg, m.keys.FilterPending):
		return m.setStatusFilter(model.StatusPending)
	case key.Matches(msg, m.keys.FilterInProgress):
		return m.setStatusFilter(model.StatusInProgress)
	case key.Matches(msg, m.keys.FilterCompleted):
		return m.setStatusFilter(model.StatusCompleted)
	case key.Matches(msg, m.keys.FilterAll):
		return m.setStatusFilter("")
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// setStatusFilter shows only tasks in status; selecting the active
// filter again clears it.
func (m Model) setStatusFilter(status model.Status) (Model, tea.Cmd) {
	if m.statusFilter == status {
		status = ""
	}
	m.statusFilter = status
	m.list.Title = boardTitle(status)
	return m, m.refresh()
}

func boardTitle(status model.Status) string {
	if status == "" {
		return "Tasks"
	}
	return fmt.Sprintf("Tasks · %s", status)
}

// refresh rebuilds the list items from the held tasks.
func (m *Model) refresh() tea.Cmd {
	visible := filterTasks(m.tasks, m.statusFilter, m.query)
	items := make([]list.Item, len(visible))
	for i, task := range visible {
		items[i] = TaskItem{Task: task}
	}
	return m.list.SetItems(items)
}

// Selected returns the highlighted task.
func (m Model) Selected() (model.TaskView, bool) {
	item, ok := m.list.SelectedItem().(TaskItem)
	if !ok {
		return model.TaskView{}, false
	}
	return item.Task, true
}

// Task returns the held task with the given ID.
func (m Model) Task(id string) (model.TaskView, bool) {
	for _, t := range m.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return model.TaskView{}, false
}

// Tasks returns the held tasks, newest first.
func (m Model) Tasks() []model.TaskView {
	return m.tasks
}

// Total returns the server's count of visible tasks.
func (m Model) Total() int {
	return m.total
}

// Searching reports whether the search input has focus.
func (m Model) Searching() bool {
	return m.searchMode
}

// View renders the board.
func (m Model) View() string {
	if m.searchMode {
		searchBar := lipgloss.NewStyle().
			Foreground(theme.ColorWhite).
			Padding(0, 1).
			Render(m.searchInput.View())
		return lipgloss.JoinVertical(lipgloss.Left, searchBar, m.list.View())
	}

	if len(m.list.Items()) == 0 {
		return m.renderEmptyState()
	}

	return m.list.View()
}

// renderEmptyState shows guidance text when no tasks are visible.
func (m Model) renderEmptyState() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	if m.statusFilter != "" || m.query != "" {
		return style.Render("No matching tasks.\nPress 0 to show every status.")
	}

	return style.Render(
		"No tasks yet.\n\n" +
			"Tasks assigned to you or created by you appear here as they change.",
	)
}

// SetSize updates the board dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
	m.searchInput.Width = width - 4
}
