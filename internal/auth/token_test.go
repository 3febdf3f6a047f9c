package auth_test

import (
	"context"
	"encoding/base64"
	"fmt"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/polaris-client/internal/auth"
	"github.com/fivetwenty-io/polaris-client/internal/constants"
	"github.com/fivetwenty-io/polaris-client/pkg/polaris"
)

func makeJWT(exp time.Time) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf(`{"sub":"u","exp":%d}`, exp.Unix())))

	return header + "." + payload + ".sig"
}

func TestToken_Valid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		token    *auth.Token
		expected bool
	}{
		{name: "nil token", token: nil, expected: false},
		{name: "empty access token", token: &auth.Token{}, expected: false},
		{name: "valid token without expiry", token: &auth.Token{AccessToken: "t"}, expected: true},
		{name: "future expiry", token: &auth.Token{AccessToken: "t", ExpiresAt: time.Now().Add(time.Hour)}, expected: true},
		{name: "expired", token: &auth.Token{AccessToken: "t", ExpiresAt: time.Now().Add(-time.Hour)}, expected: false},
		{
			name:     "token expiring within buffer",
			token:    &auth.Token{AccessToken: "t", ExpiresAt: time.Now().Add(15 * time.Second)},
			expected: false,
		},
		{
			name:     "token expiring just outside buffer",
			token:    &auth.Token{AccessToken: "t", ExpiresAt: time.Now().Add(35 * time.Second)},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, tt.token.Valid())
		})
	}
}

func TestExpiryFromJWT(t *testing.T) {
	t.Parallel()

	exp := time.Now().Add(2 * time.Hour).Truncate(time.Second)

	got, err := auth.ExpiryFromJWT(makeJWT(exp))
	require.NoError(t, err)
	assert.True(t, exp.Equal(got))

	_, err = auth.ExpiryFromJWT("opaque-token")
	require.ErrorIs(t, err, constants.ErrInvalidJWTFormat)

	noExp := "a." + base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"u"}`)) + ".c"
	_, err = auth.ExpiryFromJWT(noExp)
	require.ErrorIs(t, err, constants.ErrNoExpirationClaim)

	assert.True(t, auth.NewToken("opaque").ExpiresAt.IsZero())
	assert.True(t, exp.Equal(auth.NewToken(makeJWT(exp)).ExpiresAt))
}

func TestStores(t *testing.T) {
	t.Parallel()

	stores := map[string]polaris.TokenStore{
		"memory":  auth.NewMemoryStore(),
		"keyring": auth.NewKeyringStoreFrom(keyring.NewArrayKeyring(nil)),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			key := auth.StoreKey("https://acme.my.rubrik.com/api", "svc@acme")

			_, _, err := store.Load(ctx, key)
			require.ErrorIs(t, err, constants.ErrTokenNotFound)

			exp := time.Now().Add(time.Hour).Truncate(time.Second).UTC()
			require.NoError(t, store.Save(ctx, key, "tok", exp))

			tok, gotExp, err := store.Load(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, "tok", tok)
			assert.True(t, exp.Equal(gotExp))

			require.NoError(t, store.Delete(ctx, key))
			require.NoError(t, store.Delete(ctx, key))

			_, _, err = store.Load(ctx, key)
			require.ErrorIs(t, err, constants.ErrTokenNotFound)
		})
	}
}

func TestStoreKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "acme.my.rubrik.com.svc_acme", auth.StoreKey("https://acme.my.rubrik.com/api", "svc@acme"))
}

func TestNewStoreFromConfig(t *testing.T) {
	t.Parallel()

	s, err := auth.NewStoreFromConfig(nil)
	require.NoError(t, err)
	assert.IsType(t, &auth.MemoryStore{}, s)

	s, err = auth.NewStoreFromConfig(&auth.StoreConfig{Type: "none"})
	require.NoError(t, err)
	assert.IsType(t, auth.NoopStore{}, s)

	_, err = auth.NewStoreFromConfig(&auth.StoreConfig{Type: "nats"})
	require.ErrorIs(t, err, constants.ErrNATSURLRequired)

	_, err = auth.NewStoreFromConfig(&auth.StoreConfig{Type: "redis"})
	require.ErrorIs(t, err, constants.ErrUnknownStoreType)
}
