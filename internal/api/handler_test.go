package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/nhle/taskflow/internal/accounts"
	"github.com/nhle/taskflow/internal/activity"
	"github.com/nhle/taskflow/internal/identity"
	"github.com/nhle/taskflow/internal/mailer"
	"github.com/nhle/taskflow/internal/model"
	"github.com/nhle/taskflow/internal/notify"
	"github.com/nhle/taskflow/internal/store"
	"github.com/nhle/taskflow/internal/tasks"
	"github.com/nhle/taskflow/tests/testutil"
)

type testEnv struct {
	handler http.Handler
	store   store.Store
	router  *notify.Router
	issuer  *identity.Issuer

	admin    model.User
	alice    model.User
	outsider model.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := testutil.NewTestStore(t)

	issuer, err := identity.NewEphemeralIssuer(time.Hour)
	if err != nil {
		t.Fatalf("NewEphemeralIssuer: %v", err)
	}
	resolver := identity.NewResolver(issuer, identity.NewRevocations(), s)
	recorder := activity.NewRecorder(s, logger)
	router := notify.NewRouter(logger)

	auth := model.DefaultAppConfig().Auth
	h := NewHandler(Deps{
		Tasks:          tasks.NewService(s, recorder, router, nil, logger),
		Accounts:       accounts.NewService(s, resolver, recorder, mailer.NewSender(model.SMTPConfig{}, logger), model.AccountsConfig{RevealPasswordOnMailFailure: true}, logger),
		Activity:       recorder,
		Resolver:       resolver,
		Router:         router,
		Auth:           auth,
		AllowedOrigins: []string{"http://localhost:5173"},
		Logger:         logger,
	})

	return &testEnv{
		handler:  h.Routes(),
		store:    s,
		router:   router,
		issuer:   issuer,
		admin:    testutil.CreateTestUser(t, s, "Admin", model.RoleAdmin),
		alice:    testutil.CreateTestUser(t, s, "Alice", model.RoleEmployee),
		outsider: testutil.CreateTestUser(t, s, "Olly", model.RoleEmployee),
	}
}

func (e *testEnv) token(t *testing.T, user model.User) string {
	t.Helper()
	wire, _, err := e.issuer.Mint(user.ID)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	return wire
}

type envelope struct {
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	Success    bool            `json:"success"`
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: decoding envelope %q: %v", method, path, rec.Body.String(), err)
		}
		if env.StatusCode != rec.Code {
			t.Errorf("%s %s: envelope statusCode %d != HTTP %d", method, path, env.StatusCode, rec.Code)
		}
	}
	return rec, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatalf("decoding data %s: %v", env.Data, err)
	}
	return out
}

func TestUnauthenticated(t *testing.T) {
	env := newTestEnv(t)

	for _, token := range []string{"", "garbage"} {
		rec, body := env.do(t, http.MethodGet, "/api/v1/tasks", token, "")
		if rec.Code != http.StatusUnauthorized || body.Success {
			t.Errorf("token %q: status = %d, success = %v", token, rec.Code, body.Success)
		}
	}
}

func TestTaskLifecycle(t *testing.T) {
	env := newTestEnv(t)
	adminToken := env.token(t, env.admin)
	aliceToken := env.token(t, env.alice)

	adminSession := env.router.Connect(env.admin)
	aliceSession := env.router.Connect(env.alice)
	outsiderSession := env.router.Connect(env.outsider)

	rec, body := env.do(t, http.MethodPost, "/api/v1/tasks", adminToken,
		`{"title":"Ship","description":"Ship it","assignedTo":"`+env.alice.ID+`","priority":"High","unknown":1}`)
	if rec.Code != http.StatusCreated || !body.Success {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	task := decodeData[model.TaskView](t, body)
	if task.AssignedTo == nil || task.AssignedTo.ID != env.alice.ID || task.Priority != model.PriorityHigh {
		t.Errorf("created task = %+v", task)
	}

	testutil.RequireReceive(t, adminSession.Events(), time.Second, "admin taskCreated")
	event := testutil.RequireReceive(t, aliceSession.Events(), time.Second, "assignee taskCreated")
	if event.Name != notify.EventTaskCreated {
		t.Errorf("event = %s", event.Name)
	}
	testutil.RequireNoReceive(t, outsiderSession.Events(), 20*time.Millisecond, "outsider")

	path := "/api/v1/tasks/" + task.ID

	rec, body = env.do(t, http.MethodPatch, path, aliceToken, `{"status":"Completed","title":"Renamed"}`)
	if rec.Code != http.StatusForbidden || body.Message != "Employees can only update task status" {
		t.Errorf("mixed update: %d %q", rec.Code, body.Message)
	}

	rec, body = env.do(t, http.MethodPatch, path, aliceToken, `{"status":"In Progress"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status update: %d %s", rec.Code, rec.Body.String())
	}
	if updated := decodeData[model.TaskView](t, body); updated.Status != model.StatusInProgress || updated.Title != "Ship" {
		t.Errorf("updated = %+v", updated)
	}

	rec, _ = env.do(t, http.MethodGet, path, env.token(t, env.outsider), "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("outsider get: %d", rec.Code)
	}

	rec, body = env.do(t, http.MethodPost, path+"/comments", aliceToken, `{"text":"on it"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("comment: %d %s", rec.Code, rec.Body.String())
	}
	if commented := decodeData[model.TaskView](t, body); len(commented.Comments) != 1 {
		t.Errorf("comments = %+v", commented.Comments)
	}

	rec, _ = env.do(t, http.MethodDelete, path, aliceToken, "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("employee delete: %d", rec.Code)
	}

	rec, body = env.do(t, http.MethodDelete, path, adminToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("admin delete: %d %s", rec.Code, rec.Body.String())
	}
	if deleted := decodeData[model.TaskDeleted](t, body); deleted.TaskID != task.ID {
		t.Errorf("deleted = %+v", deleted)
	}

	rec, body = env.do(t, http.MethodGet, path, adminToken, "")
	if rec.Code != http.StatusNotFound || body.Message != "Task not found" {
		t.Errorf("get deleted: %d %q", rec.Code, body.Message)
	}

	rec, _ = env.do(t, http.MethodGet, "/api/v1/tasks/not-a-uuid", adminToken, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid id: %d", rec.Code)
	}
}

func TestListTasks(t *testing.T) {
	env := newTestEnv(t)
	adminToken := env.token(t, env.admin)

	for i := 0; i < 3; i++ {
		rec, _ := env.do(t, http.MethodPost, "/api/v1/tasks", adminToken, `{"title":"T","description":"D","status":"Completed"}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("create: %d", rec.Code)
		}
	}

	rec, body := env.do(t, http.MethodGet, "/api/v1/tasks?page=1&limit=2&status=Completed", adminToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d %s", rec.Code, rec.Body.String())
	}
	page := decodeData[tasks.TaskPage](t, body)
	if page.Total != 3 || page.Pages != 2 || len(page.Tasks) != 2 {
		t.Errorf("page = total %d pages %d len %d", page.Total, page.Pages, len(page.Tasks))
	}

	rec, body = env.do(t, http.MethodGet, "/api/v1/tasks", env.token(t, env.alice), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("employee list: %d", rec.Code)
	}
	if visible := decodeData[tasks.TaskPage](t, body); visible.Total != 0 {
		t.Errorf("employee sees %d tasks, want 0", visible.Total)
	}

	for _, query := range []string{"?status=Archived", "?page=abc", "?limit=-1"} {
		rec, _ = env.do(t, http.MethodGet, "/api/v1/tasks"+query, adminToken, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", query, rec.Code)
		}
	}
}

func TestRequestBodyLimits(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, env.admin)

	huge := `{"title":"T","description":"` + strings.Repeat("x", maxRequestBodySize) + `"}`
	rec, body := env.do(t, http.MethodPost, "/api/v1/tasks", token, huge)
	if rec.Code != http.StatusBadRequest || !strings.Contains(body.Message, "too large") {
		t.Errorf("oversized body: %d %q", rec.Code, body.Message)
	}

	rec, _ = env.do(t, http.MethodPost, "/api/v1/tasks", token, `{"title":`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: %d", rec.Code)
	}
}

func TestLoginCookieAndLogout(t *testing.T) {
	env := newTestEnv(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-pass"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hashing: %v", err)
	}
	user := model.User{
		ID:           model.NewID(),
		FullName:     "Lee Login",
		Email:        "lee@example.com",
		Username:     "lee",
		PasswordHash: string(hash),
		Role:         model.RoleEmployee,
	}
	if err := env.store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	rec, body := env.do(t, http.MethodPost, "/api/v1/users/login", "", `{"username":"lee","password":"wrong"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad login: %d", rec.Code)
	}

	rec, body = env.do(t, http.MethodPost, "/api/v1/users/login", "", `{"email":"LEE@example.com","password":"s3cret-pass"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(string(body.Data), "password") {
		t.Errorf("login response leaks the password hash: %s", body.Data)
	}

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "accessToken" {
			cookie = c
		}
	}
	if cookie == nil || !cookie.HttpOnly || cookie.Value == "" {
		t.Fatalf("access cookie = %+v", cookie)
	}

	withCookie := func(method, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		req.AddCookie(cookie)
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)
		return rec
	}

	current := withCookie(http.MethodGet, "/api/v1/users/current-user")
	if current.Code != http.StatusOK || !strings.Contains(current.Body.String(), "lee@example.com") {
		t.Errorf("current-user: %d %s", current.Code, current.Body.String())
	}

	if rec := withCookie(http.MethodPost, "/api/v1/users/logout"); rec.Code != http.StatusOK {
		t.Fatalf("logout: %d", rec.Code)
	}
	if rec := withCookie(http.MethodGet, "/api/v1/users/current-user"); rec.Code != http.StatusUnauthorized {
		t.Errorf("current-user after logout: %d", rec.Code)
	}
}

func TestProvisionAndLogs(t *testing.T) {
	env := newTestEnv(t)
	adminToken := env.token(t, env.admin)

	rec, _ := env.do(t, http.MethodPost, "/api/v1/invites", env.token(t, env.alice), `{"email":"new@example.com","fullName":"New"}`)
	if rec.Code != http.StatusForbidden {
		t.Errorf("employee invite: %d", rec.Code)
	}

	rec, body := env.do(t, http.MethodPost, "/api/v1/invites", adminToken, `{"email":"new@example.com","fullName":"New Hire"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("invite: %d %s", rec.Code, rec.Body.String())
	}
	result := decodeData[accounts.ProvisionResult](t, body)
	if len(result.TemporaryPassword) != 16 || result.Note == "" {
		t.Errorf("unconfigured mail should reveal the password: %+v", result)
	}
	if body.Message != "User account created. Email service unavailable - credentials included in response." {
		t.Errorf("message = %q", body.Message)
	}

	rec, _ = env.do(t, http.MethodPost, "/api/v1/invites", adminToken, `{"email":"new@example.com","fullName":"Again"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate invite: %d", rec.Code)
	}

	rec, _ = env.do(t, http.MethodGet, "/api/v1/logs", env.token(t, env.alice), "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("employee logs: %d", rec.Code)
	}

	rec, body = env.do(t, http.MethodGet, "/api/v1/logs?limit=5", adminToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("logs: %d %s", rec.Code, rec.Body.String())
	}
	logs := decodeData[activity.Page](t, body)
	if logs.Total != 1 || len(logs.Logs) != 1 || logs.Logs[0].Action != model.ActionRegister {
		t.Errorf("logs = %+v", logs)
	}
	if logs.Logs[0].IPAddress == "" {
		t.Error("activity entry has no client address")
	}
}

func TestRootAndNotFound(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodGet, "/", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "running") {
		t.Errorf("root: %d %q", rec.Code, rec.Body.String())
	}

	rec, body := env.do(t, http.MethodGet, "/api/v1/nope", "", "")
	if rec.Code != http.StatusNotFound || body.Success {
		t.Errorf("unknown route: %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/tasks", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "PATCH")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("credentials not allowed")
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("disallowed origin was echoed")
	}
}

func TestErrorWriterHidesInternalDetails(t *testing.T) {
	var logs bytes.Buffer
	write := ErrorWriter(slog.New(slog.NewTextHandler(&logs, nil)))

	rec := httptest.NewRecorder()
	write(rec, httptest.NewRequest(http.MethodGet, "/x", nil), io.ErrUnexpectedEOF)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "unexpected EOF") || !strings.Contains(rec.Body.String(), "Internal server error") {
		t.Errorf("body = %s", rec.Body.String())
	}
	if !strings.Contains(logs.String(), "unexpected EOF") {
		t.Error("internal cause was not logged")
	}
}
