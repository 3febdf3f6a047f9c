package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/fivetwenty-io/polaris-client/internal/auth"
	"github.com/fivetwenty-io/polaris-client/internal/constants"
	"github.com/fivetwenty-io/polaris-client/pkg/polaris"
	"github.com/fivetwenty-io/polaris-client/pkg/polarisclient"
)

// loginOptions are the inputs of one login.
type loginOptions struct {
	Username         string
	Password         string
	Keyfile          string
	MFARememberToken string
}

// NewLoginCommand creates the login command.
func NewLoginCommand() *cobra.Command {
	var opts loginOptions

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Login to Rubrik Security Cloud",
		Long: `Authenticate with a Polaris account and save the access token in the token store.

Use --keyfile for a service account, or a username and password for a user
account. Missing values are prompted for.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			config := loadConfig()

			if config.BaseURL == "" && config.Domain == "" && opts.Keyfile == "" && config.Keyfile == "" {
				domain, err := prompt(cmd.OutOrStdout(), "Account domain: ")
				if err != nil {
					return err
				}

				config.Domain = domain
			}

			if opts.Keyfile == "" && config.Keyfile == "" {
				if err := completeUserLogin(cmd.OutOrStdout(), config, &opts); err != nil {
					return err
				}
			}

			store, err := openTokenStore(config)
			if err != nil {
				return err
			}

			client, err := loginWith(cmd.Context(), config, opts, store)
			if err != nil {
				return err
			}

			if err := saveConfigStruct(config); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			version, err := client.PolarisVersion(cmd.Context())
			if err != nil {
				version = constants.NotAvailable
			}

			principal := config.Username
			if principal == "" {
				principal = config.Keyfile
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (Polaris %s)\n", principal, version)

			return err
		},
	}

	cmd.Flags().StringVarP(&opts.Username, "username", "u", "", "username (email) of a user account")
	cmd.Flags().StringVarP(&opts.Password, "password", "p", "", "password (prompted when omitted)")
	cmd.Flags().StringVar(&opts.Keyfile, "keyfile", "", "service account keyfile")
	cmd.Flags().StringVar(&opts.MFARememberToken, "mfa-remember-token", "", "MFA remember token")

	return cmd
}

// completeUserLogin fills in the username and password from flags, the
// environment or prompts.
func completeUserLogin(out io.Writer, config *Config, opts *loginOptions) error {
	if opts.Username == "" {
		opts.Username = config.Username
	}

	if opts.Username == "" {
		username, err := prompt(out, "Username: ")
		if err != nil {
			return err
		}

		opts.Username = username
	}

	if opts.Username == "" {
		return constants.ErrNoUsername
	}

	if opts.Password == "" {
		opts.Password = viper.GetString("password")
	}

	if opts.Password == "" {
		password, err := promptPassword(out, "Password: ")
		if err != nil {
			return err
		}

		opts.Password = password
	}

	return nil
}

// loginWith authenticates once and leaves the token in store. On success
// config holds the principal to use next time.
func loginWith(ctx context.Context, config *Config, opts loginOptions, store polaris.TokenStore) (polaris.Client, error) {
	cfg := sdkConfig(config)
	cfg.TokenStore = store
	cfg.LoginOnInit = true
	cfg.MFARememberToken = opts.MFARememberToken

	keyfile := opts.Keyfile
	if keyfile == "" && opts.Username == "" {
		keyfile = config.Keyfile
	}

	if keyfile != "" {
		cfg.KeyfilePath = keyfile
	} else {
		cfg.Username = opts.Username
		cfg.Password = opts.Password
	}

	client, err := polarisclient.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}

	if keyfile != "" {
		config.Keyfile = keyfile
		config.Username = ""
	} else {
		config.Username = opts.Username
		config.Keyfile = ""
	}

	return client, nil
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Logout from Rubrik Security Cloud",
		Long:  "Remove the saved access token and forget the logged in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			config := loadConfig()

			store, err := openTokenStore(config)
			if err != nil {
				return err
			}

			if err := logoutFrom(cmd.Context(), config, store); err != nil {
				return err
			}

			if err := saveConfigStruct(config); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), "Logged out")

			return err
		},
	}
}

// logoutFrom deletes the saved token of the configured principal and clears
// the username.
func logoutFrom(ctx context.Context, config *Config, store polaris.TokenStore) error {
	cfg := sdkConfig(config)

	principal := config.Username

	if config.Keyfile != "" {
		sa, err := auth.ReadKeyfile(config.Keyfile)
		if err != nil {
			return err
		}

		principal = sa.ClientID
		cfg.KeyfilePath = config.Keyfile
	}

	if principal == "" {
		return constants.ErrNotLoggedIn
	}

	baseURL, err := polarisclient.ResolveBaseURL(cfg)
	if err != nil {
		return err
	}

	if err := store.Delete(ctx, auth.StoreKey(baseURL, principal)); err != nil && !errors.Is(err, constants.ErrTokenNotFound) {
		return fmt.Errorf("failed to delete saved token: %w", err)
	}

	config.Username = ""

	return nil
}

func prompt(out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read input: %w", err)
	}

	return strings.TrimSpace(line), nil
}

// promptPassword reads a password without echo when stdin is a terminal.
func promptPassword(out io.Writer, label string) (string, error) {
	fd := int(os.Stdin.Fd()) //nolint:gosec // file descriptors fit in int

	if !term.IsTerminal(fd) {
		return prompt(out, label)
	}

	fmt.Fprint(out, label)

	b, err := term.ReadPassword(fd)
	fmt.Fprintln(out)

	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	return string(b), nil
}
