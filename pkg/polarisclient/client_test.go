package polarisclient_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/polaris-client/internal/constants"
	"github.com/fivetwenty-io/polaris-client/internal/testutil"
	"github.com/fivetwenty-io/polaris-client/pkg/polaris"
	"github.com/fivetwenty-io/polaris-client/pkg/polarisclient"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("nil config", func(t *testing.T) {
		t.Parallel()

		_, err := polarisclient.New(context.Background(), nil)
		require.ErrorIs(t, err, constants.ErrNoBaseURL)
	})

	t.Run("no endpoint", func(t *testing.T) {
		t.Parallel()

		_, err := polarisclient.New(context.Background(), &polaris.Config{AccessToken: "t"})
		require.Error(t, err)
		assert.True(t, polaris.IsValidation(err))
	})

	t.Run("caller config untouched", func(t *testing.T) {
		t.Parallel()

		cfg := &polaris.Config{Domain: "acme", AccessToken: "t"}

		client, err := polarisclient.New(context.Background(), cfg)
		require.NoError(t, err)
		assert.NotNil(t, client)
		assert.Empty(t, cfg.BaseURL)
	})
}

func TestBaseURLFromDomain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		domain, root, want string
	}{
		{"acme", "", "https://acme.my.rubrik.com/api"},
		{"acme", "rubrik-gaia.com", "https://acme.rubrik-gaia.com/api"},
		{"acme.my.rubrik.com", "", "https://acme.my.rubrik.com/api"},
		{" acme. ", ".example.org", "https://acme.example.org/api"},
	}

	for _, tt := range tests {
		got, err := polarisclient.BaseURLFromDomain(tt.domain, tt.root)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := polarisclient.BaseURLFromDomain(" ", "")
	require.ErrorIs(t, err, constants.ErrNoBaseURL)
}

func TestNormalizeBaseURL(t *testing.T) {
	t.Parallel()

	valid := []struct {
		in   string
		want string
	}{
		{"acme.my.rubrik.com/api/", "https://acme.my.rubrik.com/api"},
		{" https://acme.my.rubrik.com/api// ", "https://acme.my.rubrik.com/api"},
		{"http://localhost:8080/api", "http://localhost:8080/api"},
		{"localhost:8080/api", "https://localhost:8080/api"},
		{"HTTPS://acme.my.rubrik.com", "https://acme.my.rubrik.com"},
	}

	for _, tt := range valid {
		got, err := polarisclient.NormalizeBaseURL(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, in := range []string{"", "   ", "https://", "http://", "https:///api", "https://:443/api", "ftp://acme.my.rubrik.com"} {
		_, err := polarisclient.NormalizeBaseURL(in)
		require.ErrorIs(t, err, constants.ErrNoBaseURL, "input %q", in)
		assert.True(t, polaris.IsValidation(err), "input %q", in)
	}

	got, err := polarisclient.BaseURLFromTokenURI("https://acme.my.rubrik.com/api/client_token")
	require.NoError(t, err)
	assert.Equal(t, "https://acme.my.rubrik.com/api", got)
}

func TestNewWithKeyfile(t *testing.T) {
	t.Parallel()

	srv := testutil.NewServer(t)
	srv.AddServiceAccount("client-1", "secret-1", "svc")
	srv.SetVersion("v-keyfile")

	data, err := json.Marshal(polaris.ServiceAccount{
		Name:           "svc",
		ClientID:       "client-1",
		ClientSecret:   "secret-1",
		AccessTokenURI: srv.BaseURL() + "/client_token",
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "keyfile.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	client, err := polarisclient.NewWithKeyfile(context.Background(), path)
	require.NoError(t, err)

	version, err := client.PolarisVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v-keyfile", version)
	assert.Equal(t, int64(1), srv.ClientTokenCalls())

	_, err = polarisclient.NewWithKeyfile(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.True(t, polaris.IsValidation(err))
}

func TestNewWithToken(t *testing.T) {
	t.Parallel()

	srv := testutil.NewServer(t)

	client, err := polarisclient.NewWithToken(context.Background(), srv.BaseURL(), srv.IssueToken())
	require.NoError(t, err)

	names, err := client.EnumValues(context.Background(), "ClusterSortByEnum")
	require.NoError(t, err)
	assert.Len(t, names, 2)
}

func TestNewWithServiceAccount(t *testing.T) {
	t.Parallel()

	srv := testutil.NewServer(t)
	srv.AddServiceAccount("client-2", "secret-2", "svc2")

	client, err := polarisclient.NewWithServiceAccount(context.Background(), polaris.ServiceAccount{
		Name:           "svc2",
		ClientID:       "client-2",
		ClientSecret:   "secret-2",
		AccessTokenURI: srv.BaseURL() + "/client_token",
	})
	require.NoError(t, err)
	require.NoError(t, client.Login(context.Background()))
	assert.Equal(t, "AUTHENTICATED", client.AuthState())
}

func TestNewWithPassword(t *testing.T) {
	t.Parallel()

	client, err := polarisclient.NewWithPassword(context.Background(), "acme", "user", "pass")
	require.NoError(t, err)
	assert.Equal(t, "UNAUTHENTICATED", client.AuthState())
}

//nolint:paralleltest // t.Setenv
func TestConfigFromEnv(t *testing.T) {
	t.Setenv("rubrik_domain", "acme")
	t.Setenv("RUBRIK_POLARIS_USERNAME", "admin")
	t.Setenv("rubrik_polaris_password", "pw")
	t.Setenv("rubrik_client_id", "cid")
	t.Setenv("RUBRIK_CLIENT_SECRET", "secret")
	t.Setenv("rubrik_insecure", "true")

	cfg := polarisclient.ConfigFromEnv()
	assert.Equal(t, "acme", cfg.Domain)
	assert.Equal(t, "admin", cfg.Username)
	assert.Equal(t, "pw", cfg.Password)
	assert.True(t, cfg.InsecureSkipVerify)
	require.NotNil(t, cfg.ServiceAccount)
	assert.Equal(t, "cid", cfg.ServiceAccount.ClientID)
	assert.Equal(t, "secret", cfg.ServiceAccount.ClientSecret)
}
