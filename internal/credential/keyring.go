package credential

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const serviceName = "taskflow"

// Keys under which taskflow stores its secrets.
const (
	// SigningSeedKey holds the server's hex-encoded Ed25519 seed.
	SigningSeedKey = "signing-seed"

	// watchTokenPrefix namespaces the watch client's access tokens per
	// server URL.
	watchTokenPrefix = "watch-token:"
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("credential not found")

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/taskflow/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("taskflow-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Get retrieves a credential value by key from the system keyring.
// A missing key returns an error wrapping ErrNotFound.
func Get(key string) (string, error) {
	ring, err := openKeyring()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("getting credential %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores a credential value by key in the system keyring.
func Set(key string, value string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: "taskflow " + key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// Delete removes a credential by key from the system keyring. Deleting a
// missing key is not an error.
func Delete(key string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Remove(key)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}

// LoadOrCreateSigningSeed returns the token signing seed stored in the
// keyring, generating and storing a new one on first use. The boolean
// reports whether the seed was newly created.
func LoadOrCreateSigningSeed() ([]byte, bool, error) {
	stored, err := Get(SigningSeedKey)
	if err == nil {
		seed, decodeErr := DecodeSeed(stored)
		if decodeErr != nil {
			return nil, false, fmt.Errorf("stored signing seed: %w", decodeErr)
		}
		return seed, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, false, fmt.Errorf("generating signing seed: %w", err)
	}
	if err := Set(SigningSeedKey, hex.EncodeToString(seed)); err != nil {
		return nil, false, err
	}
	return seed, true, nil
}

// DecodeSeed parses a hex-encoded Ed25519 seed.
func DecodeSeed(s string) ([]byte, error) {
	seed, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed has %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	return seed, nil
}

// WatchTokenKey returns the keyring key for the watch client's token
// against the given server.
func WatchTokenKey(serverURL string) string {
	return watchTokenPrefix + serverURL
}

// WatchTokens keeps the watch client's access tokens in the keyring,
// one per server URL.
type WatchTokens struct{}

// Load returns the stored token for server. A missing token returns an
// error wrapping ErrNotFound.
func (WatchTokens) Load(server string) (string, error) {
	return Get(WatchTokenKey(server))
}

// Save stores the token for server.
func (WatchTokens) Save(server, token string) error {
	return Set(WatchTokenKey(server), token)
}

// Delete forgets the token for server.
func (WatchTokens) Delete(server string) error {
	return Delete(WatchTokenKey(server))
}
