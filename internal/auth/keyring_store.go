package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/99designs/keyring"

	"github.com/fivetwenty-io/polaris-client/internal/constants"
)

// KeyringStore keeps tokens in the OS keychain.
type KeyringStore struct {
	ring keyring.Keyring
}

// NewKeyringStore opens the keychain for service. Empty backends lets the
// library pick the platform default.
func NewKeyringStore(service string, backends []string, fileDir string) (*KeyringStore, error) {
	if service == "" {
		service = constants.DefaultKeyringService
	}

	cfg := keyring.Config{
		ServiceName:      service,
		PassPrefix:       service,
		WinCredPrefix:    service,
		FileDir:          fileDir,
		FilePasswordFunc: keyring.FixedStringPrompt(service),
	}

	for _, b := range backends {
		cfg.AllowedBackends = append(cfg.AllowedBackends, keyring.BackendType(b))
	}

	ring, err := keyring.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}

	return &KeyringStore{ring: ring}, nil
}

// NewKeyringStoreFrom wraps an open keyring.
func NewKeyringStoreFrom(ring keyring.Keyring) *KeyringStore {
	return &KeyringStore{ring: ring}
}

// Load returns the stored token.
func (s *KeyringStore) Load(_ context.Context, key string) (string, time.Time, error) {
	item, err := s.ring.Get(key)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", time.Time{}, constants.ErrTokenNotFound
		}

		return "", time.Time{}, fmt.Errorf("failed to load token: %w", err)
	}

	return decodeToken(item.Data)
}

// Save stores a token.
func (s *KeyringStore) Save(_ context.Context, key, token string, expiresAt time.Time) error {
	data, err := encodeToken(token, expiresAt)
	if err != nil {
		return err
	}

	err = s.ring.Set(keyring.Item{
		Key:         key,
		Data:        data,
		Label:       "Polaris access token",
		Description: "access token for " + key,
	})
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	return nil
}

// Delete removes a token.
func (s *KeyringStore) Delete(_ context.Context, key string) error {
	err := s.ring.Remove(key)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete token: %w", err)
	}

	return nil
}
