package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/nhle/taskflow/internal/model"
	"github.com/nhle/taskflow/internal/store"
)

// NewTestStore creates an in-memory SQLiteStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

var userCounter atomic.Uint64

// CreateTestUser inserts a user with the given role and a unique email
// and username, and returns it.
func CreateTestUser(t *testing.T, s store.Store, name string, role model.Role) model.User {
	t.Helper()

	n := userCounter.Add(1)
	slug := strings.ToLower(strings.ReplaceAll(name, " ", "."))
	user := model.User{
		ID:           model.NewID(),
		FullName:     name,
		Email:        fmt.Sprintf("%s.%d@example.com", slug, n),
		Username:     fmt.Sprintf("%s%d", slug, n),
		PasswordHash: "not-a-real-hash",
		Role:         role,
	}
	if err := s.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("creating test user %s: %v", name, err)
	}
	return user
}
