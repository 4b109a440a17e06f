package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/taskflow/internal/codec"
)

// signatureSize is the fixed size of an Ed25519 signature.
const signatureSize = ed25519.SignatureSize

// Token is the CBOR-encoded payload of an access token.
//
// On the wire a token is the payload followed by a 64-byte Ed25519
// signature over the payload bytes, base64url encoded without padding.
type Token struct {
	// Subject is the user id the token was issued to.
	Subject string `cbor:"1,keyasint"`

	// ID uniquely identifies the token for revocation.
	ID string `cbor:"2,keyasint"`

	// IssuedAt and ExpiresAt are Unix timestamps in seconds.
	IssuedAt  int64 `cbor:"3,keyasint"`
	ExpiresAt int64 `cbor:"4,keyasint"`
}

// Expiry returns the token's expiry as a time.
func (t *Token) Expiry() time.Time {
	return time.Unix(t.ExpiresAt, 0)
}

// Errors returned by Verify and Resolve.
var (
	ErrTokenMalformed   = errors.New("identity: token malformed")
	ErrInvalidSignature = errors.New("identity: invalid Ed25519 signature")
	ErrTokenExpired     = errors.New("identity: token has expired")
	ErrTokenRevoked     = errors.New("identity: token has been revoked")
)

// Issuer mints and verifies access tokens with one Ed25519 keypair.
type Issuer struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
	ttl     time.Duration
}

// NewIssuer returns an Issuer for the given 32-byte seed.
func NewIssuer(seed []byte, ttl time.Duration) (*Issuer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signing seed has %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	private := ed25519.NewKeyFromSeed(seed)
	return &Issuer{
		private: private,
		public:  private.Public().(ed25519.PublicKey),
		ttl:     ttl,
	}, nil
}

// NewEphemeralIssuer returns an Issuer with a freshly generated key.
// Tokens it mints do not survive a restart.
func NewEphemeralIssuer(ttl time.Duration) (*Issuer, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("generating signing seed: %w", err)
	}
	return NewIssuer(seed, ttl)
}

// TTL returns the lifetime of minted tokens.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Mint issues a token for subject and returns its wire form together
// with the decoded payload.
func (i *Issuer) Mint(subject string) (string, *Token, error) {
	return i.MintAt(subject, time.Now())
}

// MintAt is like Mint but accepts an explicit issue time.
func (i *Issuer) MintAt(subject string, now time.Time) (string, *Token, error) {
	token := &Token{
		Subject:   subject,
		ID:        uuid.NewString(),
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(i.ttl).Unix(),
	}

	payload, err := codec.Marshal(token)
	if err != nil {
		return "", nil, fmt.Errorf("encoding token payload: %w", err)
	}

	signature := ed25519.Sign(i.private, payload)

	raw := make([]byte, len(payload)+signatureSize)
	copy(raw, payload)
	copy(raw[len(payload):], signature)

	return base64.RawURLEncoding.EncodeToString(raw), token, nil
}

// Verify decodes the wire form, checks the signature and expiry, and
// returns the payload. Callers consult Revocations separately.
func (i *Issuer) Verify(wire string) (*Token, error) {
	return i.VerifyAt(wire, time.Now())
}

// VerifyAt is like Verify but accepts an explicit time for expiry
// checks.
func (i *Issuer) VerifyAt(wire string, now time.Time) (*Token, error) {
	raw, err := base64.RawURLEncoding.DecodeString(wire)
	if err != nil {
		return nil, ErrTokenMalformed
	}
	if len(raw) <= signatureSize {
		return nil, ErrTokenMalformed
	}

	splitPoint := len(raw) - signatureSize
	payload := raw[:splitPoint]
	signature := raw[splitPoint:]

	if !ed25519.Verify(i.public, payload, signature) {
		return nil, ErrInvalidSignature
	}

	var token Token
	if err := codec.Unmarshal(payload, &token); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if token.Subject == "" || token.ID == "" {
		return nil, ErrTokenMalformed
	}

	if now.Unix() >= token.ExpiresAt {
		return nil, ErrTokenExpired
	}

	return &token, nil
}
