// Package polarisclient provides the main entry point for creating Polaris API clients
package polarisclient

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/fivetwenty-io/polaris-client/internal/auth"
	"github.com/fivetwenty-io/polaris-client/internal/client"
	"github.com/fivetwenty-io/polaris-client/internal/constants"
	"github.com/fivetwenty-io/polaris-client/pkg/polaris"
)

// New creates a new Polaris API client. The API base URL is taken from
// BaseURL, else derived from Domain and RootDomain, else from the service
// account token URI. The caller's config is not modified.
func New(ctx context.Context, config *polaris.Config) (polaris.Client, error) {
	if config == nil {
		return nil, polaris.NewError(polaris.KindValidation, "config", constants.ErrNoBaseURL)
	}

	cfg := *config

	baseURL, err := ResolveBaseURL(&cfg)
	if err != nil {
		return nil, err
	}

	cfg.BaseURL = baseURL

	c, err := client.New(ctx, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create new client: %w", err)
	}

	return c, nil
}

// ResolveBaseURL picks the API base URL.
func ResolveBaseURL(cfg *polaris.Config) (string, error) {
	switch {
	case cfg.BaseURL != "":
		return NormalizeBaseURL(cfg.BaseURL)
	case cfg.Domain != "":
		return BaseURLFromDomain(cfg.Domain, cfg.RootDomain)
	case cfg.ServiceAccount != nil && cfg.ServiceAccount.AccessTokenURI != "":
		return BaseURLFromTokenURI(cfg.ServiceAccount.AccessTokenURI)
	case cfg.KeyfilePath != "":
		sa, err := auth.ReadKeyfile(cfg.KeyfilePath)
		if err != nil {
			return "", polaris.NewError(polaris.KindValidation, "config", err)
		}

		return BaseURLFromTokenURI(sa.AccessTokenURI)
	default:
		return "", polaris.NewError(polaris.KindValidation, "config", constants.ErrNoBaseURL)
	}
}

// NormalizeBaseURL adds a missing https scheme and drops trailing slashes.
// Only http and https URLs with a host are accepted.
func NormalizeBaseURL(raw string) (string, error) {
	base := strings.TrimSpace(raw)
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}

	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return "", polaris.NewError(polaris.KindValidation, "config",
			fmt.Errorf("%w: %q", constants.ErrNoBaseURL, raw))
	}

	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""

	return u.String(), nil
}

// BaseURLFromDomain returns "https://<domain>.<root>/api". An empty root uses
// my.rubrik.com; a domain that already holds the root is used as the host.
func BaseURLFromDomain(domain, root string) (string, error) {
	domain = strings.Trim(strings.TrimSpace(domain), ".")
	if domain == "" {
		return "", polaris.NewError(polaris.KindValidation, "config", constants.ErrNoBaseURL)
	}

	if root == "" {
		root = constants.DefaultRootDomain
	}

	root = strings.Trim(strings.TrimSpace(root), ".")

	host := domain
	if !strings.HasSuffix(domain, "."+root) {
		host = domain + "." + root
	}

	return "https://" + host + "/api", nil
}

// BaseURLFromTokenURI strips the client_token path from a service account
// token URI.
func BaseURLFromTokenURI(uri string) (string, error) {
	return NormalizeBaseURL(strings.TrimSuffix(strings.TrimRight(uri, "/"), constants.ClientTokenPath))
}

// ConfigFromEnv builds a config from environment variables. Each setting is
// read from rubrik_<name>, then from the older rubrik_polaris_<name>, in
// lower or upper case. Recognized names: domain, root_domain, username,
// password, client_id, client_secret, service_account_name, keyfile,
// access_token, proxy, insecure.
func ConfigFromEnv() *polaris.Config {
	return configFromLookup(os.LookupEnv)
}

func configFromLookup(lookup func(string) (string, bool)) *polaris.Config {
	get := func(name string) string {
		for _, prefix := range []string{constants.EnvPrefix, constants.EnvPrefixDeprecated} {
			for _, key := range []string{prefix + name, strings.ToUpper(prefix + name)} {
				if v, ok := lookup(key); ok && v != "" {
					return v
				}
			}
		}

		return ""
	}

	cfg := &polaris.Config{
		Domain:      get("domain"),
		RootDomain:  get("root_domain"),
		Username:    get("username"),
		Password:    get("password"),
		KeyfilePath: get("keyfile"),
		AccessToken: get("access_token"),
		Proxy:       get("proxy"),
	}

	if insecure, err := strconv.ParseBool(get("insecure")); err == nil {
		cfg.InsecureSkipVerify = insecure
	}

	if id := get("client_id"); id != "" {
		cfg.ServiceAccount = &polaris.ServiceAccount{
			Name:         get("service_account_name"),
			ClientID:     id,
			ClientSecret: get("client_secret"),
		}
	}

	return cfg
}

// NewWithToken creates a new client with an API base URL and a static access
// token.
func NewWithToken(ctx context.Context, baseURL, token string) (polaris.Client, error) {
	return New(ctx, &polaris.Config{
		BaseURL:     baseURL,
		AccessToken: token,
	})
}

// NewWithPassword creates a new client for an account domain using session
// login.
func NewWithPassword(ctx context.Context, domain, username, password string) (polaris.Client, error) {
	return New(ctx, &polaris.Config{
		Domain:   domain,
		Username: username,
		Password: password,
	})
}

// NewWithServiceAccount creates a new client from service account
// credentials. The base URL comes from the access token URI.
func NewWithServiceAccount(ctx context.Context, sa polaris.ServiceAccount) (polaris.Client, error) {
	return New(ctx, &polaris.Config{ServiceAccount: &sa})
}

// NewWithKeyfile creates a new client from a service account keyfile.
func NewWithKeyfile(ctx context.Context, path string) (polaris.Client, error) {
	return New(ctx, &polaris.Config{KeyfilePath: path})
}
