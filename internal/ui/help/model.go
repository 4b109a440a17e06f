package help

import (
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/taskflow/internal/keys"
	"github.com/nhle/taskflow/internal/model"
	"github.com/nhle/taskflow/internal/theme"
)

// Model is the help overlay view. Besides the key bindings it shows the
// signed-in user and the server being watched.
type Model struct {
	keys   *keys.KeyMap
	help   help.Model
	user   model.User
	server string
	width  int
	height int
}

// New creates a new help view model.
func New(keys *keys.KeyMap, width, height int) Model {
	h := help.New()
	h.Width = width
	return Model{
		keys:   keys,
		help:   h,
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the help view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

// SetSession records who is signed in to which server.
func (m *Model) SetSession(user model.User, server string) {
	m.user = user
	m.server = server
}

// View renders the help overlay.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	sections := []string{titleStyle.Render("Keyboard Shortcuts")}

	m.help.Width = m.width - 4
	m.help.ShowAll = true
	sections = append(sections, m.help.View(m.keys))

	if m.user.ID != "" {
		session := fmt.Sprintf("Signed in as %s (%s) on %s", m.user.FullName, m.user.Role, m.server)
		sections = append(sections, "", theme.DimmedStyle.Render(session))
	}

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Height(m.height - 4).
		Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

// SetSize updates the help view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = width - 4
}
