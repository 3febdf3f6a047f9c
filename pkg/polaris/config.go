package polaris

import (
	"context"
	"io/fs"
	"time"
)

// Logger interface for logging.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// TokenStore persists access tokens between processes. Implementations live
// in the client module (memory, NATS key-value, OS keychain).
type TokenStore interface {
	Load(ctx context.Context, key string) (token string, expiresAt time.Time, err error)
	Save(ctx context.Context, key, token string, expiresAt time.Time) error
	Delete(ctx context.Context, key string) error
}

// ServiceAccount holds client credentials for a service account.
type ServiceAccount struct {
	Name         string `json:"name"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	// AccessTokenURI is the token endpoint, "<base>/client_token".
	AccessTokenURI string `json:"access_token_uri"`
}

// Config represents client configuration for building a polaris client.
//
// # Authentication
//
// Exactly one flow must be configured:
//  1. Username/Password: session login, with MFA when the server asks for it.
//  2. ServiceAccount: client credentials posted to the access token URI.
//  3. KeyfilePath: a service account JSON file, re-read on each login.
//  4. AccessToken: a static bearer token that is never renewed.
//
// Username/password and inline service account secrets are kept only until
// the first token is obtained.
//
// # Endpoint
//
// BaseURL wins when set. Otherwise it is derived from Domain and RootDomain as
// "https://<domain>.<root>/api", or from the service account token URI.
type Config struct {
	// BaseURL: API base URL, e.g. "https://acme.my.rubrik.com/api".
	BaseURL string
	// Domain: account name, the first label of the host.
	Domain string
	// RootDomain: defaults to "my.rubrik.com".
	RootDomain string

	// Authentication options (provide one)
	Username string
	Password string
	// MFARememberToken: optional remember token sent with the first login
	// request. When the server answers with an mfa_token challenge the login
	// is resubmitted with that token as the remember token.
	MFARememberToken string
	ServiceAccount   *ServiceAccount
	KeyfilePath      string
	AccessToken      string

	// Optional configurations
	// Templates: operation template source. Nil uses the built-in set.
	Templates fs.FS
	// OperationPrefix: prefix of generated operation names, default "SdkGo".
	OperationPrefix string
	// Proxy: HTTP proxy URL for every request.
	Proxy string
	// InsecureSkipVerify disables TLS verification.
	InsecureSkipVerify bool
	// RequestTimeout: default per request timeout, 60s when zero.
	RequestTimeout time.Duration
	// AuthRetryMax: transport retries for authentication requests.
	AuthRetryMax int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	UserAgent    string
	// Debug: enables verbose request/response logging.
	Debug  bool
	Logger Logger
	// TokenStore: optional persistence of the access token.
	TokenStore TokenStore
	// Monitor: defaults for task monitoring sessions.
	Monitor MonitorOptions
	// LoginOnInit authenticates while the client is built so bad
	// credentials fail fast.
	LoginOnInit bool
}
