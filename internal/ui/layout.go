package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/taskflow/internal/theme"
)

// Layout splits the terminal into a one-line header, the active view, and
// a one-line status bar.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	StatusBarHeight int
}

// NewLayout sizes a Layout for a terminal of width by height cells.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		StatusBarHeight: 1,
	}
}

// ContentWidth is the width given to the board, detail, login and help
// views.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight is the height left for the active view once the header
// and status bar are drawn. It never goes below zero.
func (l Layout) ContentHeight() int {
	return max(l.Height-l.HeaderHeight-l.StatusBarHeight, 0)
}

// RenderHeader draws the app title on the left and the feed connection
// label on the right: green while the event stream is live, yellow while
// reconnecting or disconnected.
func (l Layout) RenderHeader(title, connection string, live bool) string {
	left := theme.HeaderStyle.Render(title)
	right := theme.ConnectionStyle(live).Render(connection)
	return l.fillRow(theme.HeaderStyle, left, right)
}

// RenderStatusBar draws the key hints for the active view. A notice, such
// as a failed action or a task deleted while open, takes the hints' place
// in red.
func (l Layout) RenderStatusBar(hints, notice string) string {
	if notice != "" {
		return l.fillRow(theme.StatusBarStyle, theme.StatusBarStyle.Foreground(theme.ColorRed).Render(notice), "")
	}
	return l.fillRow(theme.StatusBarStyle, theme.StatusBarStyle.Render(hints), "")
}

// fillRow pads the space between left and right with the row style's
// background so the bar spans the full terminal width.
func (l Layout) fillRow(style lipgloss.Style, left, right string) string {
	gap := max(l.Width-lipgloss.Width(left)-lipgloss.Width(right), 0)
	filler := lipgloss.NewStyle().
		Width(gap).
		Background(style.GetBackground()).
		Render("")
	return lipgloss.JoinHorizontal(lipgloss.Top, left, filler, right)
}

// RenderWithFrame stacks the header, the active view and the status bar.
func (l Layout) RenderWithFrame(header, content, statusBar string) string {
	return lipgloss.JoinVertical(lipgloss.Left, header, content, statusBar)
}
