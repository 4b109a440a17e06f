// Package api serves the REST surface and the real-time event stream.
package api

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/klauspost/compress/gzhttp"

	"github.com/nhle/taskflow/internal/accounts"
	"github.com/nhle/taskflow/internal/activity"
	"github.com/nhle/taskflow/internal/identity"
	"github.com/nhle/taskflow/internal/model"
	"github.com/nhle/taskflow/internal/notify"
	"github.com/nhle/taskflow/internal/tasks"
)

// Prefix is the path prefix of every API route.
const Prefix = "/api/v1"

// Deps holds the services the handler exposes.
type Deps struct {
	Tasks          *tasks.Service
	Accounts       *accounts.Service
	Activity       *activity.Recorder
	Resolver       *identity.Resolver
	Router         *notify.Router
	Auth           model.AuthConfig
	AllowedOrigins []string
	Logger         *slog.Logger
}

// Handler routes HTTP requests to the task and account services.
type Handler struct {
	tasks          *tasks.Service
	accounts       *accounts.Service
	activity       *activity.Recorder
	resolver       *identity.Resolver
	stream         *notify.Stream
	cookieName     string
	cookieSecure   bool
	allowedOrigins []string
	logger         *slog.Logger
	writeError     func(http.ResponseWriter, *http.Request, error)
}

// NewHandler creates a Handler.
func NewHandler(d Deps) *Handler {
	h := &Handler{
		tasks:          d.Tasks,
		accounts:       d.Accounts,
		activity:       d.Activity,
		resolver:       d.Resolver,
		cookieName:     d.Auth.CookieName,
		cookieSecure:   d.Auth.CookieSecure,
		allowedOrigins: d.AllowedOrigins,
		logger:         d.Logger,
		writeError:     ErrorWriter(d.Logger),
	}
	h.stream = notify.NewStream(d.Router, d.Resolver, h.cookieName, h.writeError, d.Logger)
	return h
}

// Stream returns the event stream handler.
func (h *Handler) Stream() *notify.Stream {
	return h.stream
}

// Routes returns the complete HTTP handler. Everything except the event
// stream is gzip-compressed when the client accepts it.
func (h *Handler) Routes() http.Handler {
	api := http.NewServeMux()

	api.Handle("POST "+Prefix+"/tasks", h.authenticated(h.handleCreateTask))
	api.Handle("GET "+Prefix+"/tasks", h.authenticated(h.handleListTasks))
	api.Handle("GET "+Prefix+"/tasks/{id}", h.authenticated(h.handleGetTask))
	api.Handle("PATCH "+Prefix+"/tasks/{id}", h.authenticated(h.handleUpdateTask))
	api.Handle("DELETE "+Prefix+"/tasks/{id}", h.authenticated(h.handleDeleteTask))
	api.Handle("POST "+Prefix+"/tasks/{id}/comments", h.authenticated(h.handleAddComment))

	api.Handle("GET "+Prefix+"/logs", h.authenticated(h.handleListLogs))
	api.Handle("POST "+Prefix+"/invites", h.authenticated(h.handleProvision))

	api.HandleFunc("POST "+Prefix+"/users/register", h.handleRegister)
	api.HandleFunc("POST "+Prefix+"/users/login", h.handleLogin)
	api.Handle("POST "+Prefix+"/users/logout", h.authenticated(h.handleLogout))
	api.Handle("GET "+Prefix+"/users/current-user", h.authenticated(h.handleCurrentUser))
	api.Handle("GET "+Prefix+"/users", h.authenticated(h.handleListUsers))

	api.HandleFunc("GET /{$}", h.handleRoot)
	api.HandleFunc("/", h.handleNotFound)

	root := http.NewServeMux()
	root.Handle("GET "+Prefix+"/events", h.stream)
	root.Handle("/", gzhttp.GzipHandler(api))

	return h.recoverer(h.accessLog(h.cors(withClientIP(root))))
}

func (h *Handler) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "TaskFlow API is running\n")
}

func (h *Handler) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.logger, http.StatusNotFound, nil, "Route not found")
}
