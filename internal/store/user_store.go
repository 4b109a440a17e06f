package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nhle/taskflow/internal/model"
)

const userColumns = `id, full_name, email, username, avatar, password_hash,
	role, created_at, updated_at`

// CreateUser inserts a new user. Email is stored lower-cased. A taken
// email or username returns an error wrapping ErrDuplicate.
func (s *SQLiteStore) CreateUser(ctx context.Context, user model.User) error {
	if user.ID == "" {
		user.ID = model.NewID()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}
	if user.Role == "" {
		user.Role = model.RoleEmployee
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.FullName, strings.ToLower(user.Email), user.Username, user.Avatar,
		user.PasswordHash, user.Role, user.CreatedAt.UTC(), user.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("creating user %s: %w", user.Email, ErrDuplicate)
		}
		return fmt.Errorf("creating user %s: %w", user.Email, err)
	}
	return nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return s.getUser(ctx, "id = ?", id)
}

// GetUserByEmail retrieves a user by email, case-insensitively.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.getUser(ctx, "email = ?", strings.ToLower(strings.TrimSpace(email)))
}

// GetUserByLogin retrieves a user by email or username.
func (s *SQLiteStore) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	login = strings.TrimSpace(login)
	return s.getUser(ctx, "email = ? OR username = ?", strings.ToLower(login), login)
}

func (s *SQLiteStore) getUser(ctx context.Context, where string, args ...interface{}) (*model.User, error) {
	var user model.User
	err := s.db.GetContext(ctx, &user,
		"SELECT "+userColumns+" FROM users WHERE "+where+" LIMIT 1", args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("getting user: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return &user, nil
}

// GetUsers retrieves all users ordered by full name.
func (s *SQLiteStore) GetUsers(ctx context.Context) ([]model.User, error) {
	users := []model.User{}
	err := s.db.SelectContext(ctx, &users,
		"SELECT "+userColumns+" FROM users ORDER BY full_name, email")
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	return users, nil
}

// GetUserSummaries returns the public identity of each listed user,
// keyed by id. Unknown ids are absent from the result.
func (s *SQLiteStore) GetUserSummaries(ctx context.Context, ids []string) (map[string]model.UserSummary, error) {
	result := make(map[string]model.UserSummary, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query, args, err := sqlx.In(
		"SELECT id, full_name, email, avatar FROM users WHERE id IN (?)", dedupe(ids))
	if err != nil {
		return nil, fmt.Errorf("building user summary query: %w", err)
	}

	var summaries []model.UserSummary
	if err := s.db.SelectContext(ctx, &summaries, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("querying user summaries: %w", err)
	}
	for _, summary := range summaries {
		result[summary.ID] = summary
	}
	return result, nil
}

// UserExists reports whether a user with the given ID exists.
func (s *SQLiteStore) UserExists(ctx context.Context, id string) (bool, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM users WHERE id = ?", id); err != nil {
		return false, fmt.Errorf("checking user %s: %w", id, err)
	}
	return count > 0, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
