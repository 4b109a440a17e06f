// Package notify fans task events out to connected sessions. Sessions are
// grouped into rooms: one per user id, plus the Admin room. Delivery is
// at-most-once and best effort; nothing is queued for absent sessions.
package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	gosync "sync"
	"sync/atomic"

	"github.com/nhle/taskflow/internal/model"
)

// Event names carried to clients.
const (
	EventTaskCreated = "taskCreated"
	EventTaskUpdated = "taskUpdated"
	EventTaskDeleted = "taskDeleted"
)

// AdminRoom is the room every admin session joins.
const AdminRoom = string(model.RoleAdmin)

// sessionBufferSize is the per-session event buffer. A session whose
// buffer is full misses events until it drains.
const sessionBufferSize = 256

// Event is one encoded event ready to be written to a session.
type Event struct {
	Name string
	Data []byte
}

// Session is one connected real-time client.
type Session struct {
	ID     string
	UserID string
	Role   model.Role

	events  chan Event
	done    chan struct{}
	dropped atomic.Uint64

	// rooms is guarded by the owning Router's mutex.
	rooms map[string]struct{}
}

// Events returns the channel the session's events arrive on.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Done is closed when the session is disconnected.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Dropped returns how many events were dropped because the buffer was full.
func (s *Session) Dropped() uint64 {
	return s.dropped.Load()
}

// Router is the room registry. The zero value is not usable; call
// NewRouter.
type Router struct {
	logger *slog.Logger

	mu    gosync.Mutex
	rooms map[string]map[*Session]struct{}
}

// NewRouter creates an empty Router.
func NewRouter(logger *slog.Logger) *Router {
	return &Router{
		logger: logger,
		rooms:  make(map[string]map[*Session]struct{}),
	}
}

// Connect registers a session for user. The session joins the room named
// after the user id and, for admins, the Admin room.
func (r *Router) Connect(user model.User) *Session {
	session := &Session{
		ID:     model.NewID(),
		UserID: user.ID,
		Role:   user.Role,
		events: make(chan Event, sessionBufferSize),
		done:   make(chan struct{}),
		rooms:  make(map[string]struct{}),
	}

	r.mu.Lock()
	r.joinLocked(user.ID, session)
	if user.Role == model.RoleAdmin {
		r.joinLocked(AdminRoom, session)
	}
	r.mu.Unlock()

	r.logger.Info("session connected",
		"session_id", session.ID,
		"user_id", user.ID,
		"role", user.Role,
	)
	return session
}

// Disconnect removes the session from every room it holds and closes its
// Done channel. Disconnecting twice is a no-op.
func (r *Router) Disconnect(session *Session) {
	r.mu.Lock()
	select {
	case <-session.done:
		r.mu.Unlock()
		return
	default:
	}
	for room := range session.rooms {
		r.leaveLocked(room, session)
	}
	close(session.done)
	r.mu.Unlock()

	r.logger.Info("session disconnected",
		"session_id", session.ID,
		"user_id", session.UserID,
		"dropped_events", session.Dropped(),
	)
}

// Join adds the session to a room.
func (r *Router) Join(room string, session *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	select {
	case <-session.done:
		return
	default:
	}
	r.joinLocked(room, session)
}

// Leave removes the session from a room. Empty rooms are deleted.
func (r *Router) Leave(room string, session *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(room, session)
}

func (r *Router) joinLocked(room string, session *Session) {
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[*Session]struct{})
		r.rooms[room] = members
	}
	members[session] = struct{}{}
	session.rooms[room] = struct{}{}
}

func (r *Router) leaveLocked(room string, session *Session) {
	delete(session.rooms, room)
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, session)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

// Broadcast delivers one event to every session in any of the rooms. A
// session in several of the rooms receives the event once. Sends never
// block: a session with a full buffer misses the event. Broadcast returns
// the number of sessions the event was handed to.
func (r *Router) Broadcast(event string, payload any, rooms ...string) (int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("encoding %s payload: %w", event, err)
	}
	encoded := Event{Name: event, Data: data}

	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[*Session]struct{})
	delivered := 0
	for _, room := range rooms {
		for session := range r.rooms[room] {
			if _, dup := seen[session]; dup {
				continue
			}
			seen[session] = struct{}{}

			select {
			case session.events <- encoded:
				delivered++
			default:
				session.dropped.Add(1)
				r.logger.Debug("session buffer full, dropping event",
					"session_id", session.ID,
					"event", event,
				)
			}
		}
	}
	return delivered, nil
}

// RoomSize returns the number of sessions in a room.
func (r *Router) RoomSize(room string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms[room])
}

// Rooms returns the names of the rooms the session currently holds.
func (r *Router) Rooms(session *Session) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	rooms := make([]string, 0, len(session.rooms))
	for room := range session.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}
