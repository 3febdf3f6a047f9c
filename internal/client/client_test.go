package client

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/polaris-client/internal/constants"
	"github.com/fivetwenty-io/polaris-client/internal/testutil"
	"github.com/fivetwenty-io/polaris-client/pkg/polaris"
)

const testTimeout = 5 * time.Second

// newTokenClient returns a client authenticated with a static token.
func newTokenClient(t *testing.T, srv *testutil.Server) *Client {
	t.Helper()

	c, err := New(context.Background(), &polaris.Config{
		BaseURL:     srv.BaseURL(),
		AccessToken: srv.IssueToken(),
	})
	require.NoError(t, err)

	return c
}

// writeKeyfile registers a service account and writes its keyfile.
func writeKeyfile(t *testing.T, srv *testutil.Server) string {
	t.Helper()

	srv.AddServiceAccount("client-1", "secret-1", "svc")

	data, err := json.Marshal(polaris.ServiceAccount{
		Name:           "svc",
		ClientID:       "client-1",
		ClientSecret:   "secret-1",
		AccessTokenURI: srv.BaseURL() + constants.ClientTokenPath,
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "keyfile.json")
	require.NoError(t, os.WriteFile(path, data, constants.ConfigFilePerm))

	return path
}

func quickMonitor() polaris.MonitorOptions {
	return polaris.MonitorOptions{
		PollInterval:    constants.QuickPollInterval,
		MaxPollInterval: 50 * time.Millisecond,
		Timeout:         testTimeout,
	}
}

//nolint:funlen // Test functions can be longer for comprehensive testing
func TestNew(t *testing.T) {
	t.Parallel()

	srv := testutil.NewServer(t)
	keyfile := writeKeyfile(t, srv)

	tests := []struct {
		name    string
		config  *polaris.Config
		wantErr error
	}{
		{
			name:    "nil config",
			config:  nil,
			wantErr: constants.ErrNoBaseURL,
		},
		{
			name:    "missing base URL",
			config:  &polaris.Config{AccessToken: "t"},
			wantErr: constants.ErrNoBaseURL,
		},
		{
			name:    "no credentials",
			config:  &polaris.Config{BaseURL: srv.BaseURL()},
			wantErr: constants.ErrNoCredentials,
		},
		{
			name:    "username without password",
			config:  &polaris.Config{BaseURL: srv.BaseURL(), Username: "admin"},
			wantErr: constants.ErrNoCredentials,
		},
		{
			name: "two flows",
			config: &polaris.Config{
				BaseURL:     srv.BaseURL(),
				Username:    "admin",
				Password:    "pw",
				AccessToken: "t",
			},
			wantErr: constants.ErrConflictingFlows,
		},
		{
			name:    "unreadable keyfile",
			config:  &polaris.Config{BaseURL: srv.BaseURL(), KeyfilePath: filepath.Join(t.TempDir(), "missing.json")},
			wantErr: polaris.ErrValidation,
		},
		{
			name:    "invalid proxy",
			config:  &polaris.Config{BaseURL: srv.BaseURL(), AccessToken: "t", Proxy: "::bad"},
			wantErr: constants.ErrInvalidProxyURL,
		},
		{
			name:   "keyfile",
			config: &polaris.Config{BaseURL: srv.BaseURL(), KeyfilePath: keyfile},
		},
		{
			name: "service account",
			config: &polaris.Config{
				BaseURL:        srv.BaseURL(),
				ServiceAccount: &polaris.ServiceAccount{Name: "svc", ClientID: "client-1", ClientSecret: "secret-1"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, err := New(context.Background(), tt.config)
			if tt.wantErr != nil {
				require.Error(t, err)
				require.ErrorIs(t, err, tt.wantErr)
				assert.True(t, polaris.IsValidation(err))

				return
			}

			require.NoError(t, err)
			assert.Equal(t, "UNAUTHENTICATED", c.AuthState())
			assert.NotEmpty(t, c.Operations())
		})
	}
}

func TestNew_LoginOnInit(t *testing.T) {
	t.Parallel()

	srv := testutil.NewServer(t)
	srv.AddUser("admin", "s3cret")

	c, err := New(context.Background(), &polaris.Config{
		BaseURL:     srv.BaseURL(),
		Username:    "admin",
		Password:    "s3cret",
		LoginOnInit: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "AUTHENTICATED", c.AuthState())
	assert.Equal(t, int64(1), srv.SessionCalls())

	_, err = New(context.Background(), &polaris.Config{
		BaseURL:      srv.BaseURL(),
		Username:     "admin",
		Password:     "wrong",
		LoginOnInit:  true,
		AuthRetryMax: 1,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: time.Millisecond,
	})
	require.Error(t, err)
	assert.True(t, polaris.IsAuthentication(err))
}

func TestNew_MFA(t *testing.T) {
	t.Parallel()

	srv := testutil.NewServer(t)
	srv.AddUser("admin", "s3cret")
	srv.RequireMFA("mfa-123")

	c, err := New(context.Background(), &polaris.Config{
		BaseURL:  srv.BaseURL(),
		Username: "admin",
		Password: "s3cret",
	})
	require.NoError(t, err)

	version, err := c.PolarisVersion(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, version)
	assert.Equal(t, int64(2), srv.SessionCalls())
}

func TestNew_CustomTemplates(t *testing.T) {
	t.Parallel()

	srv := testutil.NewServer(t)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "query_version.graphql"),
		[]byte("query RubrikPolarisSDKRequest { deploymentVersion }"), constants.ConfigFilePerm))

	c, err := New(context.Background(), &polaris.Config{
		BaseURL:         srv.BaseURL(),
		AccessToken:     srv.IssueToken(),
		Templates:       os.DirFS(dir),
		OperationPrefix: "Test",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"version"}, c.Operations())

	def, err := c.Operation("version")
	require.NoError(t, err)
	assert.Equal(t, "TestVersion", def.OperationName)

	_, err = c.Execute(context.Background(), "version", nil, testTimeout)
	require.NoError(t, err)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "TestVersion", reqs[0].OperationName)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "query_broken.graphql"),
		[]byte("query RubrikPolarisSDKRequest {"), constants.ConfigFilePerm))

	_, err = New(context.Background(), &polaris.Config{
		BaseURL:     srv.BaseURL(),
		AccessToken: "t",
		Templates:   os.DirFS(dir),
	})
	require.Error(t, err)
	assert.True(t, polaris.IsParse(err))
}

func TestClient_Logout(t *testing.T) {
	t.Parallel()

	srv := testutil.NewServer(t)
	c, err := New(context.Background(), &polaris.Config{
		BaseURL:     srv.BaseURL(),
		KeyfilePath: writeKeyfile(t, srv),
	})
	require.NoError(t, err)

	require.NoError(t, c.Login(context.Background()))
	assert.Equal(t, "AUTHENTICATED", c.AuthState())

	require.NoError(t, c.Logout(context.Background()))
	assert.Equal(t, "UNAUTHENTICATED", c.AuthState())
}
