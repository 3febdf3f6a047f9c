package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/fivetwenty-io/polaris-client/internal/auth"
	"github.com/fivetwenty-io/polaris-client/internal/constants"
	"github.com/fivetwenty-io/polaris-client/pkg/polaris"
	"github.com/fivetwenty-io/polaris-client/pkg/polarisclient"
)

// credentials are the secrets that never live in the config file.
type credentials struct {
	Token    string
	Password string
}

// CreateClient builds a client from the CLI configuration. Credentials are
// tried in order: --token, the configured keyfile, the username with a
// password from the environment, then the token saved by "polaris login".
func CreateClient(ctx context.Context) (polaris.Client, error) {
	config := loadConfig()

	store, err := openTokenStore(config)
	if err != nil {
		return nil, err
	}

	creds := credentials{
		Token:    viper.GetString("token"),
		Password: viper.GetString("password"),
	}

	return createClientFrom(ctx, config, creds, store)
}

func createClientFrom(ctx context.Context, config *Config, creds credentials, store polaris.TokenStore) (polaris.Client, error) {
	cfg := sdkConfig(config)
	cfg.TokenStore = store

	switch {
	case creds.Token != "":
		cfg.AccessToken = creds.Token
		cfg.TokenStore = nil
	case config.Keyfile != "":
		cfg.KeyfilePath = config.Keyfile
	case config.Username != "" && creds.Password != "":
		cfg.Username = config.Username
		cfg.Password = creds.Password
	case config.Username != "":
		token, err := storedToken(ctx, cfg, config.Username, store)
		if err != nil {
			return nil, err
		}

		cfg.AccessToken = token
		cfg.TokenStore = nil
	default:
		return nil, constants.ErrNotLoggedIn
	}

	c, err := polarisclient.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return c, nil
}

// storedToken loads the token "polaris login" saved for username.
func storedToken(ctx context.Context, cfg *polaris.Config, username string, store polaris.TokenStore) (string, error) {
	if store == nil {
		return "", constants.ErrNotLoggedIn
	}

	baseURL, err := polarisclient.ResolveBaseURL(cfg)
	if err != nil {
		return "", err
	}

	token, expiresAt, err := store.Load(ctx, auth.StoreKey(baseURL, username))
	if errors.Is(err, constants.ErrTokenNotFound) {
		return "", constants.ErrNotLoggedIn
	}

	if err != nil {
		return "", fmt.Errorf("failed to load saved token: %w", err)
	}

	if !(&auth.Token{AccessToken: token, ExpiresAt: expiresAt}).Valid() {
		return "", fmt.Errorf("%w: saved session expired at %s", constants.ErrNotLoggedIn, expiresAt.Format(time.RFC3339))
	}

	return token, nil
}

// sdkConfig maps the CLI configuration onto a client config without
// credentials.
func sdkConfig(config *Config) *polaris.Config {
	cfg := &polaris.Config{
		BaseURL:            config.BaseURL,
		Domain:             config.Domain,
		RootDomain:         config.RootDomain,
		Proxy:              config.Proxy,
		InsecureSkipVerify: config.Insecure,
		OperationPrefix:    config.Prefix,
		UserAgent:          "polaris-cli",
		Debug:              viper.GetBool("verbose"),
		Logger:             cliLogger(),
	}

	if config.Templates != "" {
		cfg.Templates = os.DirFS(config.Templates)
	}

	return cfg
}

// cliLogger logs to stderr: warnings by default, everything with --verbose.
func cliLogger() polaris.Logger {
	level := slog.LevelWarn
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}

	return polaris.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// openTokenStore opens the configured token store. The CLI defaults to the
// OS keychain so a login survives the process.
func openTokenStore(config *Config) (polaris.TokenStore, error) {
	storeType := config.Store
	if storeType == "" {
		storeType = constants.StoreTypeKeyring
	}

	fileDir := ""
	if dir, err := configDir(); err == nil {
		fileDir = filepath.Join(dir, "keyring")
	}

	store, err := auth.NewStoreFromConfig(&auth.StoreConfig{
		Type:            storeType,
		NATSURL:         config.NATSURL,
		NATSBucket:      config.NATSBucket,
		KeyringService:  constants.DefaultKeyringService,
		KeyringBackends: config.KeyringBackends,
		KeyringFileDir:  fileDir,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s token store: %w", storeType, err)
	}

	return store, nil
}
