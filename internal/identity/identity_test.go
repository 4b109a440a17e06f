package identity

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nhle/taskflow/internal/apperr"
	"github.com/nhle/taskflow/internal/model"
	"github.com/nhle/taskflow/internal/store"
)

func testIssuer(t *testing.T) *Issuer {
	t.Helper()
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i)
	}
	issuer, err := NewIssuer(seed, time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	return issuer
}

func TestMintVerify(t *testing.T) {
	issuer := testIssuer(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	wire, minted, err := issuer.MintAt("user-1", now)
	if err != nil {
		t.Fatalf("MintAt: %v", err)
	}
	if strings.ContainsAny(wire, "+/=") {
		t.Errorf("wire token %q is not unpadded base64url", wire)
	}

	token, err := issuer.VerifyAt(wire, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("VerifyAt: %v", err)
	}
	if token.Subject != "user-1" {
		t.Errorf("Subject = %q, want user-1", token.Subject)
	}
	if token.ID != minted.ID {
		t.Errorf("ID = %q, want %q", token.ID, minted.ID)
	}
	if got := token.Expiry(); !got.Equal(now.Add(time.Hour)) {
		t.Errorf("Expiry = %v, want %v", got, now.Add(time.Hour))
	}
}

func TestVerify_Expired(t *testing.T) {
	issuer := testIssuer(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	wire, _, err := issuer.MintAt("user-1", now)
	if err != nil {
		t.Fatalf("MintAt: %v", err)
	}
	if _, err := issuer.VerifyAt(wire, now.Add(time.Hour)); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("VerifyAt at expiry: err = %v, want ErrTokenExpired", err)
	}
}

func TestVerify_WrongKey(t *testing.T) {
	issuer := testIssuer(t)
	other, err := NewEphemeralIssuer(time.Hour)
	if err != nil {
		t.Fatalf("NewEphemeralIssuer: %v", err)
	}
	wire, _, err := other.Mint("user-1")
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if _, err := issuer.Verify(wire); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Verify: err = %v, want ErrInvalidSignature", err)
	}
}

func TestVerify_Malformed(t *testing.T) {
	issuer := testIssuer(t)
	for _, wire := range []string{"", "not base64!", "c2hvcnQ"} {
		if _, err := issuer.Verify(wire); !errors.Is(err, ErrTokenMalformed) {
			t.Errorf("Verify(%q): err = %v, want ErrTokenMalformed", wire, err)
		}
	}
}

func TestNewIssuer_BadSeed(t *testing.T) {
	if _, err := NewIssuer([]byte("short"), time.Hour); err == nil {
		t.Error("NewIssuer with short seed: expected error")
	}
}

func TestRevocations_Cleanup(t *testing.T) {
	revocations := NewRevocations()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	revocations.Revoke("token-1", base)
	revocations.Revoke("token-2", base.Add(10*time.Minute))

	if !revocations.IsRevoked("token-1") || !revocations.IsRevoked("token-2") {
		t.Fatal("both tokens should be revoked")
	}

	if removed := revocations.Cleanup(base.Add(5 * time.Minute)); removed != 1 {
		t.Errorf("Cleanup removed = %d, want 1", removed)
	}
	if revocations.IsRevoked("token-1") {
		t.Error("token-1 should have been cleaned up")
	}
	if revocations.Len() != 1 {
		t.Errorf("Len = %d, want 1", revocations.Len())
	}
}

func TestCredentialFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		cookie string
		header string
		query  string
		want   string
	}{
		{"none", "", "", "", ""},
		{"cookie", "from-cookie", "", "", "from-cookie"},
		{"bearer", "", "Bearer from-header", "", "from-header"},
		{"lowercase scheme", "", "bearer from-header", "", "from-header"},
		{"basic ignored", "", "Basic abc", "", ""},
		{"query", "", "", "from-query", "from-query"},
		{"cookie wins", "from-cookie", "Bearer from-header", "from-query", "from-cookie"},
		{"header before query", "", "Bearer from-header", "from-query", "from-header"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/api/v1/events"
			if tt.query != "" {
				target += "?token=" + tt.query
			}
			r := httptest.NewRequest("GET", target, nil)
			if tt.cookie != "" {
				r.Header.Set("Cookie", "accessToken="+tt.cookie)
			}
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			if got := CredentialFromRequest(r, "accessToken"); got != tt.want {
				t.Errorf("CredentialFromRequest = %q, want %q", got, tt.want)
			}
		})
	}
}

type fakeUsers map[string]model.User

func (f fakeUsers) GetUserByID(_ context.Context, id string) (*model.User, error) {
	u, ok := f[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func TestResolve(t *testing.T) {
	issuer := testIssuer(t)
	revocations := NewRevocations()
	users := fakeUsers{
		"user-1": {ID: "user-1", Role: model.RoleAdmin},
	}
	resolver := NewResolver(issuer, revocations, users)
	ctx := context.Background()

	wire, _, err := issuer.Mint("user-1")
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	user, token, err := resolver.Resolve(ctx, wire)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if user.Role != model.RoleAdmin {
		t.Errorf("Role = %q, want Admin", user.Role)
	}

	resolver.Revoke(token)
	if _, _, err := resolver.Resolve(ctx, wire); !apperr.Is(err, apperr.Unauthenticated) {
		t.Errorf("Resolve revoked: err = %v, want unauthenticated", err)
	}

	ghost, _, err := issuer.Mint("ghost")
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if _, _, err := resolver.Resolve(ctx, ghost); !apperr.Is(err, apperr.Unauthenticated) {
		t.Errorf("Resolve unknown user: err = %v, want unauthenticated", err)
	}

	if _, _, err := resolver.Resolve(ctx, ""); !apperr.Is(err, apperr.Unauthenticated) {
		t.Errorf("Resolve empty: err = %v, want unauthenticated", err)
	}
}
