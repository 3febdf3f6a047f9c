package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/fivetwenty-io/polaris-client/internal/constants"
)

// NATSStore keeps tokens in a JetStream key-value bucket so several
// processes can share one login.
type NATSStore struct {
	conn *nats.Conn
	kv   nats.KeyValue
}

// NewNATSStore connects to url and opens (or creates) bucket.
func NewNATSStore(url, bucket string, ttl time.Duration) (*NATSStore, error) {
	if bucket == "" {
		bucket = constants.DefaultNATSBucket
	}

	conn, err := nats.Connect(url, nats.Name(constants.DefaultKeyringService))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()

		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      bucket,
			Description: "Polaris access tokens",
			TTL:         ttl,
			History:     1,
		})
	}

	if err != nil {
		conn.Close()

		return nil, fmt.Errorf("failed to open key-value bucket %s: %w", bucket, err)
	}

	return &NATSStore{conn: conn, kv: kv}, nil
}

// NewNATSStoreFromKV wraps an existing bucket.
func NewNATSStoreFromKV(kv nats.KeyValue) *NATSStore {
	return &NATSStore{kv: kv}
}

// Load returns the stored token.
func (s *NATSStore) Load(_ context.Context, key string) (string, time.Time, error) {
	entry, err := s.kv.Get(sanitizeKey(key))
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return "", time.Time{}, constants.ErrTokenNotFound
		}

		return "", time.Time{}, fmt.Errorf("failed to load token: %w", err)
	}

	return decodeToken(entry.Value())
}

// Save stores a token.
func (s *NATSStore) Save(_ context.Context, key, token string, expiresAt time.Time) error {
	data, err := encodeToken(token, expiresAt)
	if err != nil {
		return err
	}

	if _, err := s.kv.Put(sanitizeKey(key), data); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	return nil
}

// Delete removes a token.
func (s *NATSStore) Delete(_ context.Context, key string) error {
	err := s.kv.Delete(sanitizeKey(key))
	if err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete token: %w", err)
	}

	return nil
}

// Close closes the connection when the store owns it.
func (s *NATSStore) Close() {
	if s.conn != nil {
		s.conn.Close()
	}
}
