package app

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/taskflow/internal/credential"
	"github.com/nhle/taskflow/internal/model"
	"github.com/nhle/taskflow/internal/ui/detail"
	"github.com/nhle/taskflow/internal/ui/login"
)

// requestTimeout bounds each API call made on behalf of a key press.
const requestTimeout = 15 * time.Second

// needLoginMsg opens the sign-in form, optionally with an error.
type needLoginMsg struct {
	err error
}

// sessionMsg reports the outcome of a login or a resumed token. fresh is
// set when the token was just issued and should be stored.
type sessionMsg struct {
	api   API
	user  model.User
	fresh bool
	err   error
}

// actionResultMsg reports the outcome of a detail view action.
type actionResultMsg struct {
	task model.TaskView
	err  error
}

// resumeSession validates a stored token for the configured server.
func (m Model) resumeSession() tea.Cmd {
	opts := m.opts
	return func() tea.Msg {
		if opts.Server == "" || opts.Tokens == nil {
			return needLoginMsg{}
		}

		token, err := opts.Tokens.Load(opts.Server)
		if err != nil {
			if !errors.Is(err, credential.ErrNotFound) {
				opts.Logger.Warn("could not read stored access token", "error", err)
			}
			return needLoginMsg{}
		}

		api := opts.Connect(opts.Server, token)
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		user, err := api.CurrentUser(ctx)
		if err != nil {
			opts.Logger.Info("stored session rejected", "error", err)
			return needLoginMsg{}
		}
		return sessionMsg{api: api, user: user}
	}
}

// signIn exchanges the submitted credentials for a token.
func (m Model) signIn(submit login.SubmitMsg) tea.Cmd {
	connect := m.opts.Connect
	return func() tea.Msg {
		api := connect(submit.Server, "")
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		session, err := api.Login(ctx, submit.Login, submit.Password)
		if err != nil {
			return sessionMsg{err: err}
		}
		return sessionMsg{api: api, user: session.User, fresh: true}
	}
}

// loadTask fetches one task with its comments for the detail view.
func (m Model) loadTask(id string) tea.Cmd {
	api := m.api
	if api == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		task, err := api.GetTask(ctx, id)
		return detail.DetailLoadedMsg{Task: task, Err: err}
	}
}

// runAction performs a status change or comment from the detail view.
func (m Model) runAction(action detail.ActionMsg) tea.Cmd {
	api := m.api
	if api == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		var task model.TaskView
		var err error
		switch action.Action {
		case detail.ActionAdvance:
			task, err = api.UpdateStatus(ctx, action.TaskID, action.Status)
		case detail.ActionComment:
			task, err = api.AddComment(ctx, action.TaskID, action.Text)
		default:
			return nil
		}
		return actionResultMsg{task: task, err: err}
	}
}
