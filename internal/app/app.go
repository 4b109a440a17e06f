// Package app is the root Bubble Tea model of the watch client. It signs
// in, follows the live task feed, and routes between the board, task
// detail, help, and login views.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/taskflow/internal/client"
	"github.com/nhle/taskflow/internal/keys"
	"github.com/nhle/taskflow/internal/model"
	"github.com/nhle/taskflow/internal/notify"
	appsync "github.com/nhle/taskflow/internal/sync"
	"github.com/nhle/taskflow/internal/ui"
	"github.com/nhle/taskflow/internal/ui/detail"
	helpview "github.com/nhle/taskflow/internal/ui/help"
	"github.com/nhle/taskflow/internal/ui/login"
	"github.com/nhle/taskflow/internal/ui/tasklist"
)

// API is the part of the TaskFlow client the watch client calls.
type API interface {
	appsync.Backend
	Login(ctx context.Context, login, password string) (client.Session, error)
	CurrentUser(ctx context.Context) (model.User, error)
	GetTask(ctx context.Context, id string) (model.TaskView, error)
	UpdateStatus(ctx context.Context, id string, status model.Status) (model.TaskView, error)
	AddComment(ctx context.Context, id, text string) (model.TaskView, error)
	BaseURL() string
	Token() string
}

// TokenStore persists access tokens per server between runs.
type TokenStore interface {
	Load(server string) (string, error)
	Save(server, token string) error
	Delete(server string) error
}

// Options configures the watch client.
type Options struct {
	// Server is the API root, e.g. http://localhost:8000.
	Server string

	// Login prefills the sign-in form.
	Login string

	// Connect returns an API client for server using token.
	Connect func(server, token string) API

	Tokens TokenStore
	Logger *slog.Logger
}

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewConnecting ViewState = iota
	ViewLogin
	ViewBoard
	ViewDetail
	ViewHelp
)

// Model is the root Bubble Tea model that manages view routing, the
// signed-in session, and the live feed.
type Model struct {
	opts         Options
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	keys         *keys.KeyMap
	taskList     tasklist.Model
	detail       detail.Model
	helpView     helpview.Model
	loginView    login.Model

	api        API
	feed       *appsync.Feed
	feedStatus appsync.FeedStatus
	user       model.User
	notice     string
	ready      bool
}

// New creates a new root application model.
func New(opts Options) Model {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	k := keys.DefaultKeyMap()
	return Model{
		opts:        opts,
		currentView: ViewConnecting,
		keys:        k,
		taskList:    tasklist.New(k, 80, 24),
		detail:      detail.New(k, 80, 24),
		helpView:    helpview.New(k, 80, 24),
		loginView:   login.New(80, 24),
	}
}

// Init resumes a stored session when there is one and otherwise opens
// the sign-in form.
func (m Model) Init() tea.Cmd {
	return m.resumeSession()
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		contentWidth := m.layout.ContentWidth()
		contentHeight := m.layout.ContentHeight()
		m.taskList.SetSize(contentWidth, contentHeight)
		m.detail.SetSize(contentWidth, contentHeight)
		m.helpView.SetSize(contentWidth, contentHeight)
		m.loginView.SetSize(contentWidth, contentHeight)
		// Forward to the active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case needLoginMsg:
		m.currentView = ViewLogin
		m.loginView.SetError(msg.err)
		return m, m.loginView.Start(m.opts.Server, m.opts.Login)

	case login.SubmitMsg:
		m.currentView = ViewConnecting
		m.opts.Server = msg.Server
		m.opts.Login = msg.Login
		return m, m.signIn(msg)

	case login.CancelMsg:
		return m.quit()

	case sessionMsg:
		return m.startSession(msg)

	case appsync.SnapshotMsg:
		var cmd tea.Cmd
		m.taskList, cmd = m.taskList.Update(msg)
		return m, tea.Batch(cmd, m.waitForFeed())

	case appsync.TaskEventMsg:
		var cmd tea.Cmd
		m.taskList, cmd = m.taskList.Update(msg)
		return m, tea.Batch(cmd, m.followOpenTask(msg), m.waitForFeed())

	case appsync.FeedStatusMsg:
		m.feedStatus = msg.Status
		if msg.Status.State == appsync.FeedLive {
			m.notice = ""
		}
		return m, m.waitForFeed()

	case appsync.AuthErrorMsg:
		return m.endSession(msg.Message)

	case tasklist.SelectedTaskMsg:
		m.previousView = m.currentView
		m.currentView = ViewDetail
		m.detail.SetLoading(true)
		return m, m.loadTask(msg.TaskID)

	case detail.DetailLoadedMsg:
		if client.IsUnauthorized(msg.Err) {
			return m.endSession("Session expired. Log in again to keep watching.")
		}
		if msg.Err == nil || m.detail.TaskID() == "" {
			var cmd tea.Cmd
			m.detail, cmd = m.detail.Update(msg)
			return m, cmd
		}
		m.detail.SetError(msg.Err)
		return m, nil

	case detail.BackMsg:
		m.currentView = ViewBoard
		return m, nil

	case detail.ActionMsg:
		return m, m.runAction(msg)

	case actionResultMsg:
		if client.IsUnauthorized(msg.err) {
			return m.endSession("Session expired. Log in again to keep watching.")
		}
		if msg.err != nil {
			m.detail.SetError(msg.err)
			return m, nil
		}
		if m.detail.TaskID() == msg.task.ID {
			m.detail.SetTask(msg.task)
		}
		return m, nil

	case tea.KeyMsg:
		if next, cmd, handled := m.handleGlobalKeys(msg); handled {
			return next, cmd
		}
	}

	return m.updateActiveView(msg)
}

// handleGlobalKeys processes keys that work across views. Text inputs
// keep their keys while they have focus.
func (m Model) handleGlobalKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	if msg.String() == "ctrl+c" {
		next, cmd := m.quit()
		return next, cmd, true
	}
	if m.inputFocused() {
		return m, nil, false
	}

	switch msg.String() {
	case "q":
		if m.currentView == ViewBoard {
			next, cmd := m.quit()
			return next, cmd, true
		}
	case "?":
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return m, nil, true
		}
		if m.currentView == ViewBoard || m.currentView == ViewDetail {
			m.previousView = m.currentView
			m.currentView = ViewHelp
			return m, nil, true
		}
	case "esc":
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return m, nil, true
		}
	case "r":
		if m.currentView == ViewBoard && m.feed != nil {
			m.feed.Stop()
			return m, m.feed.Start(), true
		}
	case "L":
		if m.currentView == ViewBoard {
			next, cmd := m.endSession("")
			return next, cmd, true
		}
	}
	return m, nil, false
}

// inputFocused reports whether a text field owns the keyboard.
func (m Model) inputFocused() bool {
	switch m.currentView {
	case ViewLogin, ViewConnecting:
		return true
	case ViewBoard:
		return m.taskList.Searching()
	case ViewDetail:
		return m.detail.Commenting()
	}
	return false
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.currentView {
	case ViewLogin:
		m.loginView, cmd = m.loginView.Update(msg)
	case ViewBoard:
		m.taskList, cmd = m.taskList.Update(msg)
	case ViewDetail:
		m.detail, cmd = m.detail.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	}
	return m, cmd
}

// startSession switches to the board after a login or a resumed token.
func (m Model) startSession(msg sessionMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.currentView = ViewLogin
		m.loginView.SetError(msg.err)
		return m, m.loginView.Start(m.opts.Server, m.opts.Login)
	}

	m.api = msg.api
	m.user = msg.user
	m.notice = ""
	m.helpView.SetSession(msg.user, msg.api.BaseURL())
	m.loginView.SetError(nil)
	m.currentView = ViewBoard

	if msg.fresh && m.opts.Tokens != nil {
		if err := m.opts.Tokens.Save(msg.api.BaseURL(), msg.api.Token()); err != nil {
			m.opts.Logger.Warn("could not store access token", "error", err)
		}
	}

	if m.feed != nil {
		m.feed.Stop()
	}
	m.feed = appsync.NewFeed(msg.api, m.opts.Logger.With("component", "feed"))
	return m, m.feed.Start()
}

// endSession stops the feed, forgets the token and returns to the
// sign-in form, showing reason when non-empty.
func (m Model) endSession(reason string) (tea.Model, tea.Cmd) {
	m.stopFeed()
	if m.api != nil && m.opts.Tokens != nil {
		if err := m.opts.Tokens.Delete(m.api.BaseURL()); err != nil {
			m.opts.Logger.Warn("could not remove access token", "error", err)
		}
	}
	m.api = nil
	m.user = model.User{}
	m.feedStatus = appsync.FeedStatus{}
	m.currentView = ViewLogin

	if reason != "" {
		m.loginView.SetError(errors.New(reason))
	} else {
		m.loginView.SetError(nil)
	}
	return m, m.loginView.Start(m.opts.Server, m.opts.Login)
}

// followOpenTask keeps the detail view in step with pushed changes to
// the task it shows.
func (m *Model) followOpenTask(msg appsync.TaskEventMsg) tea.Cmd {
	if m.detail.TaskID() != msg.TaskID {
		return nil
	}
	switch msg.Name {
	case notify.EventTaskDeleted:
		if m.currentView == ViewDetail {
			m.currentView = ViewBoard
		}
		if m.previousView == ViewDetail {
			m.previousView = ViewBoard
		}
		m.detail.Clear()
		m.notice = "The task you were viewing was deleted."
		return nil
	case notify.EventTaskUpdated:
		// Event payloads may omit comments; refetch the full task.
		return m.loadTask(msg.TaskID)
	}
	return nil
}

func (m Model) waitForFeed() tea.Cmd {
	if m.feed == nil {
		return nil
	}
	return m.feed.WaitForNextResult()
}

func (m Model) stopFeed() {
	if m.feed != nil {
		m.feed.Stop()
	}
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.stopFeed()
	return m, tea.Quit
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	title := "TaskFlow"
	if m.user.ID != "" {
		title = fmt.Sprintf("TaskFlow · %s (%s)", m.user.FullName, m.user.Role)
	}
	header := m.layout.RenderHeader(title, m.connectionLabel(), m.feedStatus.State == appsync.FeedLive)
	statusBar := m.layout.RenderStatusBar(m.keyHints(), m.notice)
	return m.layout.RenderWithFrame(header, m.renderContent(), statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewConnecting:
		return "Connecting to " + m.opts.Server + "..."
	case ViewLogin:
		return m.loginView.View()
	case ViewBoard:
		return m.taskList.View()
	case ViewDetail:
		return m.detail.View()
	case ViewHelp:
		return m.helpView.View()
	default:
		return ""
	}
}

// connectionLabel describes the feed state for the header.
func (m Model) connectionLabel() string {
	if m.api == nil {
		return "signed out"
	}
	switch m.feedStatus.State {
	case appsync.FeedLive:
		return fmt.Sprintf("● live · %d tasks", m.taskList.Total())
	case appsync.FeedConnecting:
		if m.feedStatus.Attempt > 0 {
			return fmt.Sprintf("reconnecting (attempt %d)", m.feedStatus.Attempt+1)
		}
		return "connecting"
	case appsync.FeedError:
		return "⚠ disconnected"
	default:
		return "idle"
	}
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	switch m.currentView {
	case ViewLogin:
		return "enter: next field  esc: quit"
	case ViewBoard:
		return "enter: open  /: search  1-3: status  0: all  r: reconnect  L: log out  ?: help  q: quit"
	case ViewDetail:
		if m.detail.Commenting() {
			return "enter: post comment  esc: cancel"
		}
		return "s: advance status  c: comment  esc: back  ?: help"
	case ViewHelp:
		return "?/esc: close help"
	default:
		return "ctrl+c: quit"
	}
}
