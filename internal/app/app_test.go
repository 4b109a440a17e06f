package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	gosync "sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/taskflow/internal/client"
	"github.com/nhle/taskflow/internal/credential"
	"github.com/nhle/taskflow/internal/model"
	"github.com/nhle/taskflow/internal/notify"
	appsync "github.com/nhle/taskflow/internal/sync"
	"github.com/nhle/taskflow/internal/ui/detail"
	"github.com/nhle/taskflow/internal/ui/login"
	"github.com/nhle/taskflow/internal/ui/tasklist"
)

type fakeAPI struct {
	mu       gosync.Mutex
	server   string
	token    string
	user     model.User
	tasks    map[string]model.TaskView
	loginErr error
	rejected bool
}

func (f *fakeAPI) ListTasks(ctx context.Context, page, limit int, status string) (client.TaskPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var tasks []model.TaskView
	for _, t := range f.tasks {
		tasks = append(tasks, t)
	}
	return client.TaskPage{Tasks: tasks, Total: len(tasks)}, nil
}

func (f *fakeAPI) Stream(ctx context.Context, handle func(client.Event)) error {
	<-ctx.Done()
	return nil
}

func (f *fakeAPI) Login(ctx context.Context, login, password string) (client.Session, error) {
	if f.loginErr != nil {
		return client.Session{}, f.loginErr
	}
	f.token = "fresh-token"
	return client.Session{User: f.user, AccessToken: f.token}, nil
}

func (f *fakeAPI) CurrentUser(ctx context.Context) (model.User, error) {
	if f.rejected {
		return model.User{}, fmt.Errorf("GET current-user: %w", client.ErrUnauthorized)
	}
	return f.user, nil
}

func (f *fakeAPI) GetTask(ctx context.Context, id string) (model.TaskView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return model.TaskView{}, &client.APIError{StatusCode: 404, Message: "Task not found"}
	}
	return t, nil
}

func (f *fakeAPI) UpdateStatus(ctx context.Context, id string, status model.Status) (model.TaskView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.tasks[id]
	t.Status = status
	f.tasks[id] = t
	return t, nil
}

func (f *fakeAPI) AddComment(ctx context.Context, id, text string) (model.TaskView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.tasks[id]
	t.Comments = append(t.Comments, model.CommentView{ID: "c", Text: text})
	f.tasks[id] = t
	return t, nil
}

func (f *fakeAPI) status(id string) model.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tasks[id].Status
}

func (f *fakeAPI) BaseURL() string { return f.server }
func (f *fakeAPI) Token() string   { return f.token }

type memoryTokens struct {
	mu     gosync.Mutex
	tokens map[string]string
}

func (s *memoryTokens) Load(server string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[server]
	if !ok {
		return "", credential.ErrNotFound
	}
	return token, nil
}

func (s *memoryTokens) Save(server, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[server] = token
	return nil
}

func (s *memoryTokens) Delete(server string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, server)
	return nil
}

const server = "http://taskflow.test"

func newTestModel(api *fakeAPI, tokens *memoryTokens) Model {
	return New(Options{
		Server:  server,
		Connect: func(string, string) API { return api },
		Tokens:  tokens,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func sampleAPI() *fakeAPI {
	return &fakeAPI{
		server: server,
		user:   model.User{ID: "u1", FullName: "Alice", Role: model.RoleEmployee},
		tasks: map[string]model.TaskView{
			"t1": {ID: "t1", Title: "Write docs", Status: model.StatusPending},
		},
	}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func TestInitWithoutTokenOpensLogin(t *testing.T) {
	m := newTestModel(sampleAPI(), &memoryTokens{tokens: map[string]string{}})

	msg := m.Init()()
	if _, ok := msg.(needLoginMsg); !ok {
		t.Fatalf("Init msg = %T, want needLoginMsg", msg)
	}

	m, _ = update(t, m, msg)
	if m.currentView != ViewLogin {
		t.Errorf("view = %v, want login", m.currentView)
	}
}

func TestInitResumesStoredToken(t *testing.T) {
	api := sampleAPI()
	tokens := &memoryTokens{tokens: map[string]string{server: "stored"}}
	m := newTestModel(api, tokens)

	msg := m.Init()()
	session, ok := msg.(sessionMsg)
	if !ok || session.user.ID != "u1" || session.fresh {
		t.Fatalf("Init msg = %#v", msg)
	}

	m, _ = update(t, m, msg)
	defer m.stopFeed()
	if m.currentView != ViewBoard || m.user.FullName != "Alice" {
		t.Errorf("view = %v, user = %+v", m.currentView, m.user)
	}
}

func TestInitWithRejectedTokenOpensLogin(t *testing.T) {
	api := sampleAPI()
	api.rejected = true
	m := newTestModel(api, &memoryTokens{tokens: map[string]string{server: "stale"}})

	if _, ok := m.Init()().(needLoginMsg); !ok {
		t.Error("a rejected stored token should lead to the login form")
	}
}

func TestLoginStoresTokenAndOpensBoard(t *testing.T) {
	api := sampleAPI()
	tokens := &memoryTokens{tokens: map[string]string{}}
	m := newTestModel(api, tokens)

	m, cmd := update(t, m, login.SubmitMsg{Server: server, Login: "alice", Password: "pw"})
	if m.currentView != ViewConnecting {
		t.Errorf("view while signing in = %v", m.currentView)
	}

	m, _ = update(t, m, cmd())
	defer m.stopFeed()

	if m.currentView != ViewBoard {
		t.Fatalf("view = %v, want board", m.currentView)
	}
	if got, _ := tokens.Load(server); got != "fresh-token" {
		t.Errorf("stored token = %q", got)
	}

	m, _ = update(t, m, appsync.SnapshotMsg{Tasks: []model.TaskView{api.tasks["t1"]}, Total: 1})
	if got := m.taskList.Total(); got != 1 {
		t.Errorf("board total = %d", got)
	}
}

func TestFailedLoginShowsForm(t *testing.T) {
	api := sampleAPI()
	api.loginErr = &client.APIError{StatusCode: 401, Message: "Invalid user credentials"}
	m := newTestModel(api, &memoryTokens{tokens: map[string]string{}})

	m, cmd := update(t, m, login.SubmitMsg{Server: server, Login: "alice", Password: "bad"})
	m, _ = update(t, m, cmd())
	if m.currentView != ViewLogin {
		t.Errorf("view = %v, want login", m.currentView)
	}
	if m.api != nil {
		t.Error("api kept after failed login")
	}
}

func signedIn(t *testing.T) (Model, *fakeAPI, *memoryTokens) {
	t.Helper()
	api := sampleAPI()
	api.token = "tok"
	tokens := &memoryTokens{tokens: map[string]string{server: "tok"}}
	m := newTestModel(api, tokens)
	m, _ = update(t, m, sessionMsg{api: api, user: api.user})
	t.Cleanup(m.stopFeed)
	return m, api, tokens
}

func TestAuthErrorEndsSession(t *testing.T) {
	m, _, tokens := signedIn(t)

	m, _ = update(t, m, appsync.AuthErrorMsg{Message: "Session expired."})
	if m.currentView != ViewLogin || m.api != nil {
		t.Errorf("view = %v, api = %v", m.currentView, m.api)
	}
	if _, err := tokens.Load(server); !errors.Is(err, credential.ErrNotFound) {
		t.Error("token kept after auth error")
	}
}

func TestOpenDetailAndAdvance(t *testing.T) {
	m, api, _ := signedIn(t)

	m, cmd := update(t, m, tasklist.SelectedTaskMsg{TaskID: "t1"})
	if m.currentView != ViewDetail {
		t.Fatalf("view = %v, want detail", m.currentView)
	}
	m, _ = update(t, m, cmd())
	if m.detail.TaskID() != "t1" {
		t.Fatalf("detail task = %q", m.detail.TaskID())
	}

	m, cmd = update(t, m, detail.ActionMsg{Action: detail.ActionAdvance, TaskID: "t1", Status: model.StatusInProgress})
	m, _ = update(t, m, cmd())
	if got := api.status("t1"); got != model.StatusInProgress {
		t.Errorf("server status = %q", got)
	}
}

func TestDeletedOpenTaskReturnsToBoard(t *testing.T) {
	m, _, _ := signedIn(t)

	m, cmd := update(t, m, tasklist.SelectedTaskMsg{TaskID: "t1"})
	m, _ = update(t, m, cmd())

	m, _ = update(t, m, appsync.TaskEventMsg{Name: notify.EventTaskDeleted, TaskID: "t1"})
	if m.currentView != ViewBoard {
		t.Errorf("view = %v, want board", m.currentView)
	}
	if m.notice == "" {
		t.Error("no notice about the deleted task")
	}
	if m.detail.TaskID() != "" {
		t.Error("detail still holds the deleted task")
	}
}

func TestHelpToggle(t *testing.T) {
	m, _, _ := signedIn(t)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("?")})
	if m.currentView != ViewHelp {
		t.Fatalf("view = %v, want help", m.currentView)
	}
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.currentView != ViewBoard {
		t.Errorf("view = %v, want board", m.currentView)
	}
}
