package sync

import (
	"context"
	"log/slog"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/taskflow/internal/client"
	"github.com/nhle/taskflow/internal/model"
	"github.com/nhle/taskflow/internal/notify"
)

// FeedState represents the connection state of the live task feed.
type FeedState int

const (
	FeedIdle FeedState = iota
	FeedConnecting
	FeedLive
	FeedError
)

// FeedStatus holds the feed's connection state.
type FeedStatus struct {
	State     FeedState
	LastEvent time.Time
	Attempt   int
	Error     error
}

// SnapshotMsg is a tea.Msg carrying the first page of visible tasks,
// sent each time the feed (re)connects.
type SnapshotMsg struct {
	Tasks []model.TaskView
	Total int
}

// TaskEventMsg is a tea.Msg for one change pushed by the server. Task is
// set for created and updated events, TaskID for every event.
type TaskEventMsg struct {
	Name   string
	Task   model.TaskView
	TaskID string
}

// FeedStatusMsg is a tea.Msg sent when the connection state changes.
type FeedStatusMsg struct {
	Status FeedStatus
}

// AuthErrorMsg is a tea.Msg sent when the server rejects the token. The
// feed stops after sending it.
type AuthErrorMsg struct {
	Message string
}

// Backend is the part of the API client the feed needs.
type Backend interface {
	ListTasks(ctx context.Context, page, limit int, status string) (client.TaskPage, error)
	Stream(ctx context.Context, handle func(client.Event)) error
}

const (
	// snapshotTimeout bounds the task list fetch on each connect.
	snapshotTimeout = 30 * time.Second

	// SnapshotSize is how many tasks the snapshot requests.
	SnapshotSize = 100
)

// Feed keeps a live view of the server's tasks: a snapshot on connect,
// then pushed events, reconnecting with backoff when the stream drops.
type Feed struct {
	backend  Backend
	logger   *slog.Logger
	backoff  func(attempt int) time.Duration
	resultCh chan tea.Msg

	mu      gosync.Mutex
	status  FeedStatus
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewFeed creates a feed over the given backend.
func NewFeed(backend Backend, logger *slog.Logger) *Feed {
	return &Feed{
		backend:  backend,
		logger:   logger,
		backoff:  client.Backoff,
		resultCh: make(chan tea.Msg, 64),
	}
}

// Start returns a tea.Cmd that starts the connection loop and waits for
// its first message. Calling Start on a running feed returns nil.
func (f *Feed) Start() tea.Cmd {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	f.running = true
	f.cancel = cancel
	f.done = make(chan struct{})
	done := f.done
	f.mu.Unlock()

	go func() {
		defer close(done)
		f.run(ctx)
	}()

	return f.waitForResult()
}

// Stop closes the stream and waits for the connection loop to exit.
func (f *Feed) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	cancel, done := f.cancel, f.done
	f.mu.Unlock()

	cancel()
	<-done
}

// Status returns the current connection state.
func (f *Feed) Status() FeedStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// WaitForNextResult returns a tea.Cmd that waits for the next feed
// message. Call it after handling each feed message to keep listening.
func (f *Feed) WaitForNextResult() tea.Cmd {
	return f.waitForResult()
}

// run connects until ctx is cancelled or the token is rejected.
func (f *Feed) run(ctx context.Context) {
	attempt := 0
	for {
		f.setStatus(FeedConnecting, attempt, nil)

		live, err := f.connect(ctx)
		if ctx.Err() != nil {
			f.setStatus(FeedIdle, 0, nil)
			return
		}
		if live {
			attempt = 0
		}

		if client.IsUnauthorized(err) {
			f.setStatus(FeedError, attempt, err)
			f.send(ctx, AuthErrorMsg{Message: "Session expired. Log in again to keep watching."})
			return
		}

		f.setStatus(FeedError, attempt, err)
		f.logger.Warn("task feed disconnected", "error", err, "attempt", attempt)

		select {
		case <-ctx.Done():
			f.setStatus(FeedIdle, 0, nil)
			return
		case <-time.After(f.backoff(attempt)):
		}
		attempt++
	}
}

// connect fetches a snapshot and then follows the event stream. live
// reports whether the snapshot succeeded.
func (f *Feed) connect(ctx context.Context) (live bool, err error) {
	snapshotCtx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	page, err := f.backend.ListTasks(snapshotCtx, 1, SnapshotSize, "")
	cancel()
	if err != nil {
		return false, err
	}

	f.send(ctx, SnapshotMsg{Tasks: page.Tasks, Total: page.Total})
	f.setStatus(FeedLive, 0, nil)

	err = f.backend.Stream(ctx, func(event client.Event) {
		msg, ok := f.decode(event)
		if !ok {
			return
		}
		f.mu.Lock()
		f.status.LastEvent = time.Now()
		f.mu.Unlock()
		f.send(ctx, msg)
	})
	return true, err
}

// decode turns a stream event into a TaskEventMsg. Unknown events and
// malformed payloads are skipped.
func (f *Feed) decode(event client.Event) (TaskEventMsg, bool) {
	switch event.Name {
	case notify.EventTaskCreated, notify.EventTaskUpdated:
		task, err := event.Task()
		if err != nil {
			f.logger.Warn("skipping malformed task event", "event", event.Name, "error", err)
			return TaskEventMsg{}, false
		}
		return TaskEventMsg{Name: event.Name, Task: task, TaskID: task.ID}, true
	case notify.EventTaskDeleted:
		id, err := event.DeletedID()
		if err != nil {
			f.logger.Warn("skipping malformed task event", "event", event.Name, "error", err)
			return TaskEventMsg{}, false
		}
		return TaskEventMsg{Name: event.Name, TaskID: id}, true
	default:
		f.logger.Debug("ignoring unknown event", "event", event.Name)
		return TaskEventMsg{}, false
	}
}

// setStatus updates the connection state and announces the change.
// Status announcements are dropped when the result channel is full.
func (f *Feed) setStatus(state FeedState, attempt int, err error) {
	f.mu.Lock()
	f.status.State = state
	f.status.Attempt = attempt
	f.status.Error = err
	status := f.status
	f.mu.Unlock()

	select {
	case f.resultCh <- FeedStatusMsg{Status: status}:
	default:
	}
}

// send delivers a data message, blocking until it is consumed or the
// feed stops. Snapshots and events are never dropped.
func (f *Feed) send(ctx context.Context, msg tea.Msg) {
	select {
	case f.resultCh <- msg:
	case <-ctx.Done():
	}
}

// waitForResult returns a tea.Cmd that waits for the next message from
// the result channel.
func (f *Feed) waitForResult() tea.Cmd {
	return func() tea.Msg {
		result, ok := <-f.resultCh
		if !ok {
			return nil
		}
		return result
	}
}
