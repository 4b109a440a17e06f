// Package activity appends and lists audit entries. Recording is best
// effort: a failed write is logged and never fails the operation that
// triggered it.
package activity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nhle/taskflow/internal/model"
	"github.com/nhle/taskflow/internal/store"
)

// Target identifies the entity an entry is about. The zero value means
// the entry has no target (login, logout).
type Target struct {
	ID   string
	Kind string
}

// TaskTarget returns the target for a task.
func TaskTarget(id string) Target {
	return Target{ID: id, Kind: model.TargetTask}
}

// UserTarget returns the target for a user.
func UserTarget(id string) Target {
	return Target{ID: id, Kind: model.TargetUser}
}

// Page is one page of the activity log.
type Page struct {
	Logs  []model.ActivityView `json:"logs"`
	Total int                  `json:"total"`
	Page  int                  `json:"page"`
	Pages int                  `json:"pages"`
}

// Recorder writes and reads the activity log.
type Recorder struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder creates a Recorder.
func NewRecorder(s store.Store, logger *slog.Logger) *Recorder {
	return &Recorder{store: s, logger: logger, now: time.Now}
}

type ipKey struct{}

// WithIPAddress returns a context carrying the client address that
// subsequent records attribute entries to.
func WithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ipKey{}, ip)
}

// Record appends one entry. Failures are logged at warn level and
// swallowed.
func (r *Recorder) Record(ctx context.Context, actorID string, action model.Action, target Target, details map[string]any) {
	entry := model.ActivityLogEntry{
		ID:        model.NewID(),
		ActorID:   actorID,
		Action:    action,
		Details:   details,
		CreatedAt: r.now().UTC(),
	}
	if target.ID != "" {
		id, kind := target.ID, target.Kind
		entry.TargetID = &id
		entry.TargetKind = &kind
	}
	if ip, ok := ctx.Value(ipKey{}).(string); ok {
		entry.IPAddress = ip
	}

	if err := r.store.AppendActivity(ctx, entry); err != nil {
		r.logger.Warn("recording activity failed",
			"action", action,
			"actor_id", actorID,
			"target_id", target.ID,
			"error", err,
		)
	}
}

// List returns a page of entries, newest first, with actor identities
// attached. page is 1-based.
func (r *Recorder) List(ctx context.Context, page, limit int) (Page, error) {
	total, err := r.store.CountActivities(ctx)
	if err != nil {
		return Page{}, fmt.Errorf("counting activity: %w", err)
	}

	entries, err := r.store.GetActivities(ctx, limit, (page-1)*limit)
	if err != nil {
		return Page{}, fmt.Errorf("listing activity: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ActorID)
	}
	actors, err := r.store.GetUserSummaries(ctx, ids)
	if err != nil {
		return Page{}, fmt.Errorf("loading activity actors: %w", err)
	}

	views := make([]model.ActivityView, 0, len(entries))
	for _, e := range entries {
		view := model.ActivityView{ActivityLogEntry: e}
		if actor, ok := actors[e.ActorID]; ok {
			actor.Avatar = ""
			view.Actor = &actor
		}
		views = append(views, view)
	}

	return Page{
		Logs:  views,
		Total: total,
		Page:  page,
		Pages: pageCount(total, limit),
	}, nil
}

func pageCount(total, limit int) int {
	if limit <= 0 {
		return 1
	}
	return (total + limit - 1) / limit
}
