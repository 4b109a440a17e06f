package identity

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nhle/taskflow/internal/apperr"
	"github.com/nhle/taskflow/internal/credential"
	"github.com/nhle/taskflow/internal/model"
	"github.com/nhle/taskflow/internal/store"
)

// TokenQueryParam carries the credential on real-time connections,
// where browsers cannot set headers.
const TokenQueryParam = "token"

// CredentialFromRequest extracts the bearer credential from the access
// cookie, the Authorization header, or the token query parameter, in
// that order. It returns "" when none is present.
func CredentialFromRequest(r *http.Request, cookieName string) string {
	if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, value, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			if value = strings.TrimSpace(value); value != "" {
				return value
			}
		}
	}
	return r.URL.Query().Get(TokenQueryParam)
}

// UserLookup is the slice of the store the resolver needs.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// Resolver turns a credential into the stored user it was issued to.
type Resolver struct {
	issuer      *Issuer
	revocations *Revocations
	users       UserLookup
	now         func() time.Time
}

// NewResolver returns a Resolver.
func NewResolver(issuer *Issuer, revocations *Revocations, users UserLookup) *Resolver {
	return &Resolver{
		issuer:      issuer,
		revocations: revocations,
		users:       users,
		now:         time.Now,
	}
}

// Issuer returns the issuer the resolver verifies against.
func (r *Resolver) Issuer() *Issuer {
	return r.issuer
}

// Revoke revokes a verified token until its natural expiry.
func (r *Resolver) Revoke(token *Token) {
	r.revocations.Revoke(token.ID, token.Expiry())
	r.revocations.Cleanup(r.now())
}

// Resolve verifies the credential, rejects revoked tokens and loads the
// subject. Missing, invalid, expired, revoked and unknown-user
// credentials all fail with an Unauthenticated error.
func (r *Resolver) Resolve(ctx context.Context, cred string) (model.User, *Token, error) {
	if cred == "" {
		return model.User{}, nil, apperr.Unauthenticatedf("Unauthorized request")
	}

	token, err := r.issuer.VerifyAt(cred, r.now())
	if err != nil {
		return model.User{}, nil, apperr.Wrap(apperr.Unauthenticated, "Invalid access token", err)
	}
	if r.revocations.IsRevoked(token.ID) {
		return model.User{}, nil, apperr.Wrap(apperr.Unauthenticated, "Invalid access token", ErrTokenRevoked)
	}

	user, err := r.users.GetUserByID(ctx, token.Subject)
	if errors.Is(err, store.ErrNotFound) {
		return model.User{}, nil, apperr.Wrap(apperr.Unauthenticated, "Invalid access token", err)
	}
	if err != nil {
		return model.User{}, nil, apperr.Wrap(apperr.Internal, "loading user", err)
	}

	return *user, token, nil
}

// NewIssuerFromConfig picks the signing key from, in order, the configured
// seed, the system keyring, or a per-process key.
func NewIssuerFromConfig(cfg model.AuthConfig, logger *slog.Logger) (*Issuer, error) {
	ttl := time.Duration(cfg.TokenTTLMinutes) * time.Minute

	if cfg.SigningSeed != "" {
		seed, err := credential.DecodeSeed(cfg.SigningSeed)
		if err != nil {
			return nil, err
		}
		return NewIssuer(seed, ttl)
	}

	if cfg.UseKeyring {
		seed, created, err := credential.LoadOrCreateSigningSeed()
		if err != nil {
			return nil, err
		}
		if created {
			logger.Info("generated token signing seed in system keyring")
		}
		return NewIssuer(seed, ttl)
	}

	logger.Warn("no signing seed configured, access tokens will not survive a restart")
	return NewEphemeralIssuer(ttl)
}
