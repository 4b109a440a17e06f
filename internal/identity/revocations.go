package identity

import (
	"sync"
	"time"
)

// Revocations is a thread-safe set of revoked token ids. Entries are kept
// only until the token's natural expiry; after that Verify rejects the
// token anyway.
type Revocations struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

// NewRevocations creates an empty revocation set.
func NewRevocations() *Revocations {
	return &Revocations{
		entries: make(map[string]time.Time),
	}
}

// Revoke adds a token id, remembered until expiresAt.
func (r *Revocations) Revoke(tokenID string, expiresAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[tokenID] = expiresAt
}

// IsRevoked reports whether a token id has been revoked.
func (r *Revocations) IsRevoked(tokenID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.entries[tokenID]
	return exists
}

// Cleanup removes entries whose token has expired by now and returns how
// many were removed.
func (r *Revocations) Cleanup(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for tokenID, expiresAt := range r.entries {
		if !now.Before(expiresAt) {
			delete(r.entries, tokenID)
			removed++
		}
	}
	return removed
}

// Len returns the number of revoked ids currently held.
func (r *Revocations) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
