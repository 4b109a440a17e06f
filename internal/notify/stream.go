package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nhle/taskflow/internal/identity"
	"github.com/nhle/taskflow/internal/model"
)

// heartbeatInterval is the time between heartbeat comments on a stream.
// Clients should consider the connection dead if nothing arrives within
// twice this interval.
const heartbeatInterval = 30 * time.Second

// Authenticator resolves a credential to a stored user.
type Authenticator interface {
	Resolve(ctx context.Context, credential string) (model.User, *identity.Token, error)
}

// ErrorWriter writes a rejected handshake to the client.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Stream serves the real-time event feed as Server-Sent Events. Each
// event is written as
//
//	event: <name>
//	data: <json>
//
// followed by a blank line.
type Stream struct {
	router     *Router
	auth       Authenticator
	cookieName string
	writeError ErrorWriter
	logger     *slog.Logger
	heartbeat  time.Duration
}

// NewStream creates the event stream handler.
func NewStream(router *Router, auth Authenticator, cookieName string, writeError ErrorWriter, logger *slog.Logger) *Stream {
	return &Stream{
		router:     router,
		auth:       auth,
		cookieName: cookieName,
		writeError: writeError,
		logger:     logger,
		heartbeat:  heartbeatInterval,
	}
}

// SetHeartbeat overrides the heartbeat interval.
func (s *Stream) SetHeartbeat(interval time.Duration) {
	s.heartbeat = interval
}

// Handshake authenticates a connection attempt from the access cookie,
// bearer header or token query parameter. Rejected attempts leave no
// state behind.
func (s *Stream) Handshake(r *http.Request) (model.User, error) {
	credential := identity.CredentialFromRequest(r, s.cookieName)
	user, _, err := s.auth.Resolve(r.Context(), credential)
	if err != nil {
		return model.User{}, err
	}
	return user, nil
}

// ServeHTTP runs the handshake, connects a session, and writes its events
// until the client goes away.
func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, err := s.Handshake(r)
	if err != nil {
		s.logger.Info("stream handshake rejected", "remote_addr", r.RemoteAddr, "error", err)
		s.writeError(w, r, err)
		return
	}

	controller := http.NewResponseController(w)
	// The server's write timeout would otherwise cut long-lived streams.
	_ = controller.SetWriteDeadline(time.Time{})

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	session := s.router.Connect(user)
	defer s.router.Disconnect(session)

	if _, err := fmt.Fprintf(w, "retry: 3000\n: ready %s\n\n", session.ID); err != nil {
		return
	}
	if err := controller.Flush(); err != nil {
		s.logger.Warn("stream flush unsupported", "error", err)
		return
	}

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-session.Done():
			return
		case <-ticker.C:
			if _, err := io.WriteString(w, ": heartbeat\n\n"); err != nil {
				return
			}
		case event := <-session.Events():
			if err := writeEvent(w, event); err != nil {
				s.logger.Debug("stream write failed", "session_id", session.ID, "error", err)
				return
			}
		}
		if err := controller.Flush(); err != nil {
			return
		}
	}
}

// writeEvent writes one SSE frame. JSON never contains a raw newline, so
// the payload always fits on one data line.
func writeEvent(w io.Writer, event Event) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Name, event.Data)
	return err
}
