// Package client implements polaris.Client on top of the operation registry,
// the transport and the authentication provider.
package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fivetwenty-io/polaris-client/internal/auth"
	"github.com/fivetwenty-io/polaris-client/internal/constants"
	polarishttp "github.com/fivetwenty-io/polaris-client/internal/http"
	"github.com/fivetwenty-io/polaris-client/internal/registry"
	"github.com/fivetwenty-io/polaris-client/pkg/polaris"
)

// Authenticator supplies request headers and takes back tokens the server
// rejected.
type Authenticator interface {
	Headers(ctx context.Context) (http.Header, error)
	Invalidate(rejected string)
}

// Client implements the polaris.Client interface.
type Client struct {
	registry   *registry.Registry
	httpClient *polarishttp.Client
	auth       Authenticator
	provider   *auth.Provider
	logger     polaris.Logger
	prefix     string
	monitor    polaris.MonitorOptions
	timeout    time.Duration
}

var _ polaris.Client = (*Client)(nil)

// createHTTPClientOptions builds HTTP client options from config.
func createHTTPClientOptions(config *polaris.Config) []polarishttp.Option {
	var httpOpts []polarishttp.Option

	if config.Logger != nil {
		httpOpts = append(httpOpts, polarishttp.WithLogger(config.Logger))
	}

	if config.Debug {
		httpOpts = append(httpOpts, polarishttp.WithDebug(true))
	}

	if config.UserAgent != "" {
		httpOpts = append(httpOpts, polarishttp.WithUserAgent(config.UserAgent))
	}

	if config.Proxy != "" {
		httpOpts = append(httpOpts, polarishttp.WithProxy(config.Proxy))
	}

	if config.InsecureSkipVerify {
		httpOpts = append(httpOpts, polarishttp.WithInsecureSkipVerify(true))
	}

	return httpOpts
}

// createAuthHTTPOptions adds transport retries for login requests.
func createAuthHTTPOptions(config *polaris.Config) []polarishttp.Option {
	retryMax := constants.DefaultAuthRetryMax
	if config.AuthRetryMax > 0 {
		retryMax = config.AuthRetryMax
	}

	retryWaitMin := constants.DefaultRetryWaitMin
	if config.RetryWaitMin > 0 {
		retryWaitMin = config.RetryWaitMin
	}

	retryWaitMax := constants.DefaultRetryWaitMax
	if config.RetryWaitMax > 0 {
		retryWaitMax = config.RetryWaitMax
	}

	return append(createHTTPClientOptions(config), polarishttp.WithRetryConfig(retryMax, retryWaitMin, retryWaitMax))
}

// createCredentialSource picks the one configured authentication flow and
// returns its source together with the principal used as the store key.
func createCredentialSource(config *polaris.Config) (auth.CredentialSource, string, error) {
	var (
		source    auth.CredentialSource
		principal string
		flows     int
	)

	if config.Username != "" || config.Password != "" {
		flows++

		if config.Username == "" || config.Password == "" {
			return nil, "", polaris.NewError(polaris.KindValidation, "config",
				fmt.Errorf("%w: username and password go together", constants.ErrNoCredentials))
		}

		source, principal = auth.NewSessionSource(config.Username, config.Password), config.Username
	}

	if config.ServiceAccount != nil {
		flows++
		source, principal = auth.NewServiceAccountSource(*config.ServiceAccount), config.ServiceAccount.ClientID
	}

	if config.KeyfilePath != "" {
		flows++

		sa, err := auth.ReadKeyfile(config.KeyfilePath)
		if err != nil {
			return nil, "", polaris.NewError(polaris.KindValidation, "config", err)
		}

		source, principal = auth.NewKeyfileSource(config.KeyfilePath), sa.ClientID
	}

	if config.AccessToken != "" {
		flows++
		source, principal = auth.NewStaticSource(config.AccessToken), "static"
	}

	switch {
	case flows == 0:
		return nil, "", polaris.NewError(polaris.KindValidation, "config", constants.ErrNoCredentials)
	case flows > 1:
		return nil, "", polaris.NewError(polaris.KindValidation, "config", constants.ErrConflictingFlows)
	}

	return source, principal, nil
}

func loadRegistry(config *polaris.Config, logger polaris.Logger) (*registry.Registry, error) {
	opts := []registry.Option{registry.WithLogger(logger)}
	if config.OperationPrefix != "" {
		opts = append(opts, registry.WithPrefix(config.OperationPrefix))
	}

	if config.Templates == nil {
		return registry.Default(opts...)
	}

	return registry.Build(config.Templates, opts...)
}

// New creates a Polaris client. The registry is built once here; a template
// that fails to parse fails the whole construction.
func New(ctx context.Context, config *polaris.Config) (*Client, error) {
	if config == nil || config.BaseURL == "" {
		return nil, polaris.NewError(polaris.KindValidation, "config", constants.ErrNoBaseURL)
	}

	source, principal, err := createCredentialSource(config)
	if err != nil {
		return nil, err
	}

	authHTTP, err := polarishttp.NewClient(config.BaseURL, createAuthHTTPOptions(config)...)
	if err != nil {
		return nil, err
	}

	provider, err := auth.NewProvider(auth.ProviderConfig{
		HTTP:             authHTTP,
		Source:           source,
		Store:            config.TokenStore,
		StoreKey:         auth.StoreKey(config.BaseURL, principal),
		MFARememberToken: config.MFARememberToken,
		UserAgent:        config.UserAgent,
		Logger:           config.Logger,
	})
	if err != nil {
		return nil, err
	}

	client, err := NewWithAuthenticator(config, provider)
	if err != nil {
		return nil, err
	}

	client.provider = provider

	if config.LoginOnInit {
		if err := client.Login(ctx); err != nil {
			return nil, err
		}
	}

	return client, nil
}

// NewWithAuthenticator creates a client with a custom authenticator.
func NewWithAuthenticator(config *polaris.Config, authenticator Authenticator) (*Client, error) {
	if config == nil || config.BaseURL == "" {
		return nil, polaris.NewError(polaris.KindValidation, "config", constants.ErrNoBaseURL)
	}

	if authenticator == nil {
		return nil, polaris.NewError(polaris.KindValidation, "config", constants.ErrNoCredentials)
	}

	var logger polaris.Logger = polaris.NopLogger{}
	if config.Logger != nil {
		logger = config.Logger
	}

	reg, err := loadRegistry(config, logger)
	if err != nil {
		return nil, err
	}

	httpClient, err := polarishttp.NewClient(config.BaseURL, createHTTPClientOptions(config)...)
	if err != nil {
		return nil, err
	}

	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = constants.DefaultRequestTimeout
	}

	prefix := config.OperationPrefix
	if prefix == "" {
		prefix = constants.DefaultOperationPrefix
	}

	return &Client{
		registry:   reg,
		httpClient: httpClient,
		auth:       authenticator,
		logger:     logger,
		prefix:     prefix,
		monitor:    withMonitorDefaults(config.Monitor, polaris.MonitorOptions{RequestTimeout: timeout}),
		timeout:    timeout,
	}, nil
}

// Registry returns the operation registry.
func (c *Client) Registry() *registry.Registry {
	return c.registry
}

// RequestTimeout returns the default per request timeout.
func (c *Client) RequestTimeout() time.Duration {
	return c.timeout
}

// Operations implements polaris.Client.Operations.
func (c *Client) Operations() []string {
	return c.registry.Names()
}

// Operation implements polaris.Client.Operation.
func (c *Client) Operation(name string) (polaris.OperationDefinition, error) {
	return c.registry.Lookup(name)
}

// Login implements polaris.Client.Login.
func (c *Client) Login(ctx context.Context) error {
	if c.provider == nil {
		_, err := c.auth.Headers(ctx)

		return err
	}

	_, err := c.provider.Login(ctx)

	return err
}

// Logout implements polaris.Client.Logout.
func (c *Client) Logout(ctx context.Context) error {
	if c.provider == nil {
		return nil
	}

	return c.provider.Logout(ctx)
}

// AuthState implements polaris.Client.AuthState.
func (c *Client) AuthState() string {
	if c.provider == nil {
		return constants.NotAvailable
	}

	return c.provider.State().String()
}
