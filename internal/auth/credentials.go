package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/fivetwenty-io/polaris-client/internal/constants"
	"github.com/fivetwenty-io/polaris-client/pkg/polaris"
)

// Flow is an authentication flow.
type Flow int

// Flows.
const (
	FlowSession Flow = iota + 1
	FlowServiceAccount
	FlowStatic
)

// String returns the flow name used in logs and errors.
func (f Flow) String() string {
	switch f {
	case FlowSession:
		return "session"
	case FlowServiceAccount:
		return "service_account"
	case FlowStatic:
		return "static_token"
	default:
		return "unknown"
	}
}

// Credentials are the secrets of one login attempt. Secrets are byte slices
// so they can be zeroed with Wipe.
type Credentials struct {
	Flow         Flow
	Username     string
	Password     []byte
	Name         string
	ClientID     string
	ClientSecret []byte
	// TokenURL is the service account token endpoint.
	TokenURL    string
	AccessToken string
}

// Wipe zeroes the secrets.
func (c *Credentials) Wipe() {
	if c == nil {
		return
	}

	clear(c.Password)
	clear(c.ClientSecret)
	c.Password = nil
	c.ClientSecret = nil
}

func (c *Credentials) clone() *Credentials {
	out := *c
	out.Password = append([]byte(nil), c.Password...)
	out.ClientSecret = append([]byte(nil), c.ClientSecret...)

	return &out
}

// CredentialSource hands out credentials for a login attempt. The caller
// wipes the returned copy. Discard is called once a token was obtained.
type CredentialSource interface {
	Credentials(ctx context.Context) (*Credentials, error)
	Discard()
}

// oneShotSource holds in-memory secrets until the first successful login.
type oneShotSource struct {
	mu    sync.Mutex
	creds *Credentials
}

// NewSessionSource returns a one-shot username/password source.
func NewSessionSource(username, password string) CredentialSource {
	return &oneShotSource{creds: &Credentials{
		Flow:     FlowSession,
		Username: username,
		Password: []byte(password),
	}}
}

// NewServiceAccountSource returns a one-shot service account source.
func NewServiceAccountSource(sa polaris.ServiceAccount) CredentialSource {
	return &oneShotSource{creds: &Credentials{
		Flow:         FlowServiceAccount,
		Name:         sa.Name,
		ClientID:     sa.ClientID,
		ClientSecret: []byte(sa.ClientSecret),
		TokenURL:     sa.AccessTokenURI,
	}}
}

func (s *oneShotSource) Credentials(context.Context) (*Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.creds == nil {
		return nil, constants.ErrCredentialsDiscarded
	}

	return s.creds.clone(), nil
}

func (s *oneShotSource) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.creds.Wipe()
	s.creds = nil
}

// staticSource serves a fixed access token.
type staticSource struct {
	token string
}

// NewStaticSource returns a source for a static access token.
func NewStaticSource(token string) CredentialSource {
	return &staticSource{token: token}
}

func (s *staticSource) Credentials(context.Context) (*Credentials, error) {
	return &Credentials{Flow: FlowStatic, AccessToken: s.token}, nil
}

func (s *staticSource) Discard() {}

// keyfileSource reads a service account file on every login.
type keyfileSource struct {
	path string
}

// NewKeyfileSource returns a source reading the service account JSON file
// at path. Nothing is cached between logins.
func NewKeyfileSource(path string) CredentialSource {
	return &keyfileSource{path: path}
}

func (s *keyfileSource) Credentials(context.Context) (*Credentials, error) {
	sa, err := ReadKeyfile(s.path)
	if err != nil {
		return nil, err
	}

	return &Credentials{
		Flow:         FlowServiceAccount,
		Name:         sa.Name,
		ClientID:     sa.ClientID,
		ClientSecret: []byte(sa.ClientSecret),
		TokenURL:     sa.AccessTokenURI,
	}, nil
}

func (s *keyfileSource) Discard() {}

// SourceFunc adapts a function to CredentialSource. It is asked again on
// every login.
type SourceFunc func(ctx context.Context) (*Credentials, error)

// Credentials calls f.
func (f SourceFunc) Credentials(ctx context.Context) (*Credentials, error) {
	return f(ctx)
}

// Discard is a no-op.
func (f SourceFunc) Discard() {}

// ReadKeyfile parses a service account JSON file.
func ReadKeyfile(path string) (*polaris.ServiceAccount, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is user configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read keyfile %s: %w", path, err)
	}

	var sa polaris.ServiceAccount
	if err := json.Unmarshal(data, &sa); err != nil {
		return nil, fmt.Errorf("%w: %w", constants.ErrInvalidKeyfile, err)
	}

	var missing []string

	for field, v := range map[string]string{
		"client_id":        sa.ClientID,
		"client_secret":    sa.ClientSecret,
		"name":             sa.Name,
		"access_token_uri": sa.AccessTokenURI,
	} {
		if v == "" {
			missing = append(missing, field)
		}
	}

	if len(missing) > 0 {
		slices.Sort(missing)

		return nil, fmt.Errorf("%w: missing %s", constants.ErrInvalidKeyfile, strings.Join(missing, ", "))
	}

	return &sa, nil
}
