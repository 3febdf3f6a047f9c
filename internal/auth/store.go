package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fivetwenty-io/polaris-client/internal/constants"
	"github.com/fivetwenty-io/polaris-client/pkg/polaris"
)

// StoreConfig selects and configures a token store backend.
type StoreConfig struct {
	// Type is one of memory, nats, keyring, none.
	Type string

	// NATS key-value backend.
	NATSURL    string
	NATSBucket string
	// NATSTTL expires stored tokens server side; zero keeps them.
	NATSTTL time.Duration

	// KeyringService is the OS keychain service name.
	KeyringService string
	// KeyringBackends restricts the keychain backends by name, e.g. "keychain", "secret-service", "file".
	KeyringBackends []string
	// KeyringFileDir is used by the file backend.
	KeyringFileDir string
}

// NewStoreFromConfig creates a token store backend from configuration.
func NewStoreFromConfig(cfg *StoreConfig) (polaris.TokenStore, error) {
	if cfg == nil {
		return NewMemoryStore(), nil
	}

	switch strings.ToLower(cfg.Type) {
	case "", constants.StoreTypeMemory:
		return NewMemoryStore(), nil
	case constants.StoreTypeNATS:
		if cfg.NATSURL == "" {
			return nil, constants.ErrNATSURLRequired
		}

		return NewNATSStore(cfg.NATSURL, cfg.NATSBucket, cfg.NATSTTL)
	case constants.StoreTypeKeyring:
		return NewKeyringStore(cfg.KeyringService, cfg.KeyringBackends, cfg.KeyringFileDir)
	case constants.StoreTypeNone:
		return NoopStore{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", constants.ErrUnknownStoreType, cfg.Type)
	}
}

// MemoryStore keeps tokens for the life of the process.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]Token
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]Token)}
}

// Load returns the stored token.
func (s *MemoryStore) Load(_ context.Context, key string) (string, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tok, ok := s.tokens[key]
	if !ok {
		return "", time.Time{}, constants.ErrTokenNotFound
	}

	return tok.AccessToken, tok.ExpiresAt, nil
}

// Save stores a token.
func (s *MemoryStore) Save(_ context.Context, key, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[key] = Token{AccessToken: token, ExpiresAt: expiresAt}

	return nil
}

// Delete removes a token.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tokens, key)

	return nil
}

// NoopStore persists nothing.
type NoopStore struct{}

// Load always reports a missing token.
func (NoopStore) Load(context.Context, string) (string, time.Time, error) {
	return "", time.Time{}, constants.ErrTokenNotFound
}

// Save does nothing.
func (NoopStore) Save(context.Context, string, string, time.Time) error { return nil }

// Delete does nothing.
func (NoopStore) Delete(context.Context, string) error { return nil }

// StoreKey derives the store key for an API base URL and principal.
func StoreKey(baseURL, principal string) string {
	host := strings.TrimPrefix(strings.TrimPrefix(baseURL, "https://"), "http://")
	host = strings.TrimSuffix(host, "/api")

	return sanitizeKey(host + "." + principal)
}

// sanitizeKey keeps keys inside the NATS key alphabet.
func sanitizeKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.' || r == '=':
			return r
		default:
			return '_'
		}
	}, strings.Trim(key, "."))
}

func encodeToken(token string, expiresAt time.Time) ([]byte, error) {
	data, err := json.Marshal(Token{AccessToken: token, ExpiresAt: expiresAt})
	if err != nil {
		return nil, fmt.Errorf("failed to encode token: %w", err)
	}

	return data, nil
}

func decodeToken(data []byte) (string, time.Time, error) {
	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to decode token: %w", err)
	}

	return tok.AccessToken, tok.ExpiresAt, nil
}
