package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/polaris-client/internal/auth"
	"github.com/fivetwenty-io/polaris-client/internal/constants"
	polarishttp "github.com/fivetwenty-io/polaris-client/internal/http"
	"github.com/fivetwenty-io/polaris-client/pkg/polaris"
)

func newProvider(t *testing.T, baseURL string, source auth.CredentialSource, store polaris.TokenStore) *auth.Provider {
	t.Helper()

	hc, err := polarishttp.NewClient(baseURL)
	require.NoError(t, err)

	p, err := auth.NewProvider(auth.ProviderConfig{
		HTTP:     hc,
		Source:   source,
		Store:    store,
		StoreKey: "test",
	})
	require.NoError(t, err)

	return p
}

func decodeBody(t *testing.T, r *http.Request) map[string]string {
	t.Helper()

	var body map[string]string
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

	return body
}

//nolint:funlen // Test functions can be longer for comprehensive testing
func TestProvider_SessionFlow(t *testing.T) {
	t.Parallel()

	t.Run("direct token", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/session", r.URL.Path)

			body := decodeBody(t, r)
			assert.Equal(t, "admin", body["username"])
			assert.Equal(t, "s3cret", body["password"])

			_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-1"})
		}))
		defer server.Close()

		p := newProvider(t, server.URL+"/api", auth.NewSessionSource("admin", "s3cret"), nil)
		assert.Equal(t, auth.StateUnauthenticated, p.State())

		h, err := p.Headers(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "Bearer tok-1", h.Get("Authorization"))
		assert.Equal(t, "application/json", h.Get("Content-Type"))
		assert.Equal(t, "tok-1", auth.BearerToken(h))
		assert.Equal(t, auth.StateAuthenticated, p.State())

		h.Set("Authorization", "mutated")

		again, err := p.Headers(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "Bearer tok-1", again.Get("Authorization"))
	})

	t.Run("mfa challenge is resubmitted", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body := decodeBody(t, r)

			if calls.Add(1) == 1 {
				assert.Empty(t, body["mfa_remember_token"])
				_ = json.NewEncoder(w).Encode(map[string]string{"mfa_token": "challenge-1"})

				return
			}

			assert.Equal(t, "challenge-1", body["mfa_remember_token"])
			assert.Equal(t, "admin", body["username"])
			_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-mfa"})
		}))
		defer server.Close()

		p := newProvider(t, server.URL, auth.NewSessionSource("admin", "pw"), nil)

		tok, err := p.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "tok-mfa", tok)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("no token and no challenge", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "bad credentials"})
		}))
		defer server.Close()

		p := newProvider(t, server.URL, auth.NewSessionSource("admin", "pw"), nil)

		_, err := p.Token(context.Background())
		require.Error(t, err)
		assert.True(t, polaris.IsAuthentication(err))
		assert.Contains(t, err.Error(), "bad credentials")
		assert.Equal(t, auth.StateUnauthenticated, p.State())
	})

	t.Run("401 is an authentication error", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"nope"}`))
		}))
		defer server.Close()

		p := newProvider(t, server.URL, auth.NewSessionSource("admin", "pw"), nil)

		_, err := p.Token(context.Background())
		require.Error(t, err)
		assert.True(t, polaris.IsAuthentication(err))
	})

	t.Run("non JSON body is a protocol error", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("<html>maintenance</html>"))
		}))
		defer server.Close()

		p := newProvider(t, server.URL, auth.NewSessionSource("admin", "pw"), nil)

		_, err := p.Token(context.Background())
		require.Error(t, err)
		assert.True(t, polaris.IsProtocol(err))
	})
}

func TestProvider_SecretsDiscarded(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-1"})
	}))
	defer server.Close()

	p := newProvider(t, server.URL, auth.NewSessionSource("admin", "pw"), nil)

	tok, err := p.Token(context.Background())
	require.NoError(t, err)

	p.Invalidate(tok)
	assert.Equal(t, auth.StateExpired, p.State())

	_, err = p.Token(context.Background())
	require.Error(t, err)
	assert.True(t, polaris.IsAuthentication(err))
	require.ErrorIs(t, err, constants.ErrCredentialsDiscarded)
	assert.Equal(t, int32(1), calls.Load())
}

func TestProvider_ServiceAccount(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/client_token", r.URL.Path)

		body := decodeBody(t, r)
		assert.Equal(t, "cid", body["client_id"])
		assert.Equal(t, "csecret", body["client_secret"])
		assert.Equal(t, "svc", body["name"])

		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "sa-token"})
	}))
	// The parallel subtests run after this function returns.
	t.Cleanup(server.Close)

	t.Run("inline", func(t *testing.T) {
		t.Parallel()

		p := newProvider(t, server.URL+"/api", auth.NewServiceAccountSource(polaris.ServiceAccount{
			Name: "svc", ClientID: "cid", ClientSecret: "csecret",
		}), nil)

		tok, err := p.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "sa-token", tok)
	})

	t.Run("keyfile is re-read after invalidation", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "sa.json")
		data, _ := json.Marshal(map[string]string{
			"name": "svc", "client_id": "cid", "client_secret": "csecret",
			"access_token_uri": server.URL + "/api/client_token",
		})
		require.NoError(t, os.WriteFile(path, data, 0o600))

		p := newProvider(t, "http://unused.invalid/api", auth.NewKeyfileSource(path), nil)

		tok, err := p.Token(context.Background())
		require.NoError(t, err)

		p.Invalidate(tok)

		tok, err = p.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "sa-token", tok)
	})
}

func TestReadKeyfile_Invalid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sa.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"client_id":"x"}`), 0o600))

	_, err := auth.ReadKeyfile(path)
	require.ErrorIs(t, err, constants.ErrInvalidKeyfile)
	assert.Contains(t, err.Error(), "access_token_uri, client_secret, name")
}

func TestProvider_SingleFlight(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	release := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		<-release
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "shared"})
	}))
	defer server.Close()

	source := auth.SourceFunc(func(context.Context) (*auth.Credentials, error) {
		return &auth.Credentials{Flow: auth.FlowSession, Username: "u", Password: []byte("p")}, nil
	})
	p := newProvider(t, server.URL, source, nil)

	const workers = 16

	var wg sync.WaitGroup

	tokens := make([]string, workers)
	errs := make([]error, workers)

	for i := range workers {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			tokens[i], errs[i] = p.Token(context.Background())
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := range workers {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared", tokens[i])
	}

	assert.Equal(t, int32(1), calls.Load())
}

func TestProvider_StaleInvalidateIgnored(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-" + string(rune('0'+n))})
	}))
	defer server.Close()

	source := auth.SourceFunc(func(context.Context) (*auth.Credentials, error) {
		return &auth.Credentials{Flow: auth.FlowSession, Username: "u", Password: []byte("p")}, nil
	})
	p := newProvider(t, server.URL, source, nil)

	first, err := p.Token(context.Background())
	require.NoError(t, err)

	p.Invalidate(first)

	second, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	p.Invalidate(first)
	assert.Equal(t, auth.StateAuthenticated, p.State())

	third, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, second, third)
	assert.Equal(t, int32(2), calls.Load())
}

func TestProvider_StoredToken(t *testing.T) {
	t.Parallel()

	store := auth.NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), "test", "stored-token", time.Now().Add(time.Hour)))

	p := newProvider(t, "http://unused.invalid", auth.NewSessionSource("u", "p"), store)

	tok, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "stored-token", tok)

	require.NoError(t, p.Logout(context.Background()))

	_, _, err = store.Load(context.Background(), "test")
	require.ErrorIs(t, err, constants.ErrTokenNotFound)
}

func TestProvider_PersistsToken(t *testing.T) {
	t.Parallel()

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	jwt := makeJWT(exp)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": jwt})
	}))
	defer server.Close()

	store := auth.NewMemoryStore()
	p := newProvider(t, server.URL, auth.NewSessionSource("u", "p"), store)

	_, err := p.Login(context.Background())
	require.NoError(t, err)

	tok, gotExp, err := store.Load(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, jwt, tok)
	assert.True(t, exp.Equal(gotExp))
}

func TestProvider_StaticToken(t *testing.T) {
	t.Parallel()

	p := newProvider(t, "http://unused.invalid", auth.NewStaticSource("static"), nil)

	tok, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "static", tok)

	p.Invalidate(tok)

	_, err = p.Token(context.Background())
	require.Error(t, err)
	assert.True(t, polaris.IsAuthentication(err))
	require.ErrorIs(t, err, constants.ErrStaticToken)
}

func TestNewProvider_Validation(t *testing.T) {
	t.Parallel()

	_, err := auth.NewProvider(auth.ProviderConfig{})
	require.Error(t, err)
	assert.True(t, polaris.IsValidation(err))
}
