package store

import (
	"context"
	"fmt"
	"time"

	"github.com/nhle/taskflow/internal/codec"
	"github.com/nhle/taskflow/internal/model"
)

// activityRow is the persisted shape of an activity log entry. Details are
// stored as deterministic CBOR.
type activityRow struct {
	ID         string    `db:"id"`
	ActorID    string    `db:"actor_id"`
	Action     string    `db:"action"`
	TargetID   *string   `db:"target_id"`
	TargetKind *string   `db:"target_kind"`
	Details    []byte    `db:"details"`
	IPAddress  string    `db:"ip_address"`
	CreatedAt  time.Time `db:"created_at"`
}

// AppendActivity inserts one activity log entry. Entries are never
// updated or deleted.
func (s *SQLiteStore) AppendActivity(ctx context.Context, entry model.ActivityLogEntry) error {
	if entry.ID == "" {
		entry.ID = model.NewID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var details []byte
	if len(entry.Details) > 0 {
		encoded, err := codec.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("encoding activity details: %w", err)
		}
		details = encoded
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_logs (
			id, actor_id, action, target_id, target_kind, details, ip_address, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.ActorID, string(entry.Action), entry.TargetID, entry.TargetKind,
		details, entry.IPAddress, entry.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("appending activity %s: %w", entry.Action, err)
	}
	return nil
}

// GetActivities retrieves activity entries, newest first.
func (s *SQLiteStore) GetActivities(ctx context.Context, limit, offset int) ([]model.ActivityLogEntry, error) {
	query := `
		SELECT id, actor_id, action, target_id, target_kind, details, ip_address, created_at
		FROM activity_logs
		ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
		if offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", offset)
		}
	}

	var rows []activityRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("querying activity logs: %w", err)
	}

	entries := make([]model.ActivityLogEntry, 0, len(rows))
	for _, row := range rows {
		entry := model.ActivityLogEntry{
			ID:         row.ID,
			ActorID:    row.ActorID,
			Action:     model.Action(row.Action),
			TargetID:   row.TargetID,
			TargetKind: row.TargetKind,
			IPAddress:  row.IPAddress,
			CreatedAt:  row.CreatedAt,
		}
		if len(row.Details) > 0 {
			if err := codec.Unmarshal(row.Details, &entry.Details); err != nil {
				return nil, fmt.Errorf("decoding details of activity %s: %w", row.ID, err)
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// CountActivities returns the total number of activity entries.
func (s *SQLiteStore) CountActivities(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM activity_logs"); err != nil {
		return 0, fmt.Errorf("counting activity logs: %w", err)
	}
	return count, nil
}
