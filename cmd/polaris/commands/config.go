package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/fivetwenty-io/polaris-client/internal/constants"
)

const (
	configDirName  = ".polaris"
	configFileName = "config.yml"
	ledgerFileName = "ledger.db"
)

// Config represents the CLI configuration.
type Config struct {
	// Endpoint
	BaseURL    string `json:"base_url,omitempty"    yaml:"base_url,omitempty"`
	Domain     string `json:"domain,omitempty"      yaml:"domain,omitempty"`
	RootDomain string `json:"root_domain,omitempty" yaml:"root_domain,omitempty"`

	// Credentials. Passwords and tokens are never written here; tokens go
	// to the token store.
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Keyfile  string `json:"keyfile,omitempty"  yaml:"keyfile,omitempty"`

	// Transport
	Insecure bool   `json:"insecure"        yaml:"insecure"`
	Proxy    string `json:"proxy,omitempty" yaml:"proxy,omitempty"`

	// Operations
	Templates string `json:"templates,omitempty" yaml:"templates,omitempty"`
	Prefix    string `json:"prefix,omitempty"    yaml:"prefix,omitempty"`

	// Token store
	Store           string   `json:"store,omitempty"            yaml:"store,omitempty"`
	NATSURL         string   `json:"nats_url,omitempty"         yaml:"nats_url,omitempty"`
	NATSBucket      string   `json:"nats_bucket,omitempty"      yaml:"nats_bucket,omitempty"`
	KeyringBackends []string `json:"keyring_backends,omitempty" yaml:"keyring_backends,omitempty"`

	// Ledger is the task history database path.
	Ledger string `json:"ledger,omitempty" yaml:"ledger,omitempty"`

	// Global settings
	Output  string `json:"output"   yaml:"output"`
	NoColor bool   `json:"no_color" yaml:"no_color"`
}

// NewConfigCommand creates the config command group.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration",
		Long:  "Manage Polaris CLI configuration including the endpoint, token store and output settings",
	}

	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigSetCommand())
	cmd.AddCommand(newConfigUnsetCommand())

	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Long:  "Display the effective CLI configuration from the config file, environment and flags",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfig(cmd.OutOrStdout(), outputFormat(), loadConfig())
		},
	}
}

func newConfigSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set a configuration value",
		Long:  "Set a configuration value. Keys: " + strings.Join(configKeys(), ", "),
		Args:  cobra.ExactArgs(constants.KeyValueArgumentCount),
		RunE: func(cmd *cobra.Command, args []string) error {
			config := loadConfig()

			if err := setConfigValue(config, args[0], args[1]); err != nil {
				return err
			}

			if err := saveConfigStruct(config); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			return outputConfigUpdateResult(cmd.OutOrStdout(), "Set", args[0], args[1])
		},
	}
}

func newConfigUnsetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unset KEY",
		Short: "Unset a configuration value",
		Long:  "Reset a configuration value to its default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config := loadConfig()

			if err := setConfigValue(config, args[0], ""); err != nil {
				return err
			}

			if err := saveConfigStruct(config); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			return outputConfigUpdateResult(cmd.OutOrStdout(), "Unset", args[0], "")
		},
	}
}

func loadConfig() *Config {
	return &Config{
		BaseURL:         viper.GetString("base_url"),
		Domain:          viper.GetString("domain"),
		RootDomain:      viper.GetString("root_domain"),
		Username:        viper.GetString("username"),
		Keyfile:         viper.GetString("keyfile"),
		Insecure:        viper.GetBool("insecure"),
		Proxy:           viper.GetString("proxy"),
		Templates:       viper.GetString("templates"),
		Prefix:          viper.GetString("prefix"),
		Store:           viper.GetString("store"),
		NATSURL:         viper.GetString("nats_url"),
		NATSBucket:      viper.GetString("nats_bucket"),
		KeyringBackends: viper.GetStringSlice("keyring_backends"),
		Ledger:          viper.GetString("ledger"),
		Output:          viper.GetString("output"),
		NoColor:         viper.GetBool("no_color"),
	}
}

// configDir returns ~/.polaris, or the directory of an explicit config file.
func configDir() (string, error) {
	if used := viper.ConfigFileUsed(); used != "" {
		return filepath.Dir(used), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(home, configDirName), nil
}

// ledgerPath returns the configured ledger path or the default next to the
// config file.
func ledgerPath(config *Config) (string, error) {
	if config.Ledger != "" {
		return config.Ledger, nil
	}

	dir, err := configDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(dir, ledgerFileName), nil
}

func saveConfigStruct(config *Config) error {
	configFile := viper.ConfigFileUsed()
	if configFile == "" {
		dir, err := configDir()
		if err != nil {
			return err
		}

		configFile = filepath.Join(dir, configFileName)
	}

	return saveConfigTo(configFile, config)
}

func saveConfigTo(configFile string, config *Config) error {
	if err := os.MkdirAll(filepath.Dir(configFile), constants.ConfigDirPerm); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(configFile, data, constants.ConfigFilePerm); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

type configHandler func(config *Config, value string) error

func stringHandler(field func(*Config) *string) configHandler {
	return func(config *Config, value string) error {
		*field(config) = value

		return nil
	}
}

func boolHandler(field func(*Config) *bool) configHandler {
	return func(config *Config, value string) error {
		if value == "" {
			*field(config) = false

			return nil
		}

		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%w: %q is not a boolean", constants.ErrInvalidConfigValue, value)
		}

		*field(config) = b

		return nil
	}
}

// getConfigHandler returns the setter of a configuration key.
func getConfigHandler(key string) (configHandler, bool) {
	handlers := map[string]configHandler{
		"base_url":    stringHandler(func(c *Config) *string { return &c.BaseURL }),
		"domain":      stringHandler(func(c *Config) *string { return &c.Domain }),
		"root_domain": stringHandler(func(c *Config) *string { return &c.RootDomain }),
		"username":    stringHandler(func(c *Config) *string { return &c.Username }),
		"keyfile":     stringHandler(func(c *Config) *string { return &c.Keyfile }),
		"proxy":       stringHandler(func(c *Config) *string { return &c.Proxy }),
		"templates":   stringHandler(func(c *Config) *string { return &c.Templates }),
		"prefix":      stringHandler(func(c *Config) *string { return &c.Prefix }),
		"nats_url":    stringHandler(func(c *Config) *string { return &c.NATSURL }),
		"nats_bucket": stringHandler(func(c *Config) *string { return &c.NATSBucket }),
		"ledger":      stringHandler(func(c *Config) *string { return &c.Ledger }),
		"insecure":    boolHandler(func(c *Config) *bool { return &c.Insecure }),
		"no_color":    boolHandler(func(c *Config) *bool { return &c.NoColor }),
		"store": func(c *Config, value string) error {
			switch value {
			case "", constants.StoreTypeMemory, constants.StoreTypeNATS, constants.StoreTypeKeyring, constants.StoreTypeNone:
				c.Store = value

				return nil
			default:
				return fmt.Errorf("%w: %s", constants.ErrUnknownStoreType, value)
			}
		},
		"output": func(c *Config, value string) error {
			switch value {
			case "", constants.FormatTable, constants.FormatJSON, constants.FormatYAML:
				c.Output = value

				return nil
			default:
				return fmt.Errorf("%w: unsupported output format %q", constants.ErrInvalidConfigValue, value)
			}
		},
		"keyring_backends": func(c *Config, value string) error {
			c.KeyringBackends = nil

			for _, b := range strings.Split(value, ",") {
				if b = strings.TrimSpace(b); b != "" {
					c.KeyringBackends = append(c.KeyringBackends, b)
				}
			}

			return nil
		},
	}

	handler, ok := handlers[key]

	return handler, ok
}

func configKeys() []string {
	return []string{
		"base_url", "domain", "root_domain", "username", "keyfile", "insecure", "proxy",
		"templates", "prefix", "store", "nats_url", "nats_bucket", "keyring_backends",
		"ledger", "output", "no_color",
	}
}

// setConfigValue sets one key. An empty value resets it.
func setConfigValue(config *Config, key, value string) error {
	handler, ok := getConfigHandler(strings.ReplaceAll(key, "-", "_"))
	if !ok {
		return fmt.Errorf("%w: %s", constants.ErrUnknownConfigKey, key)
	}

	return handler(config, value)
}

func showConfig(w io.Writer, format string, config *Config) error {
	if ok, err := writeStructured(w, format, config); ok {
		return err
	}

	fields := map[string]string{
		"base_url":         config.BaseURL,
		"domain":           config.Domain,
		"root_domain":      config.RootDomain,
		"username":         config.Username,
		"keyfile":          config.Keyfile,
		"insecure":         strconv.FormatBool(config.Insecure),
		"proxy":            config.Proxy,
		"templates":        config.Templates,
		"prefix":           config.Prefix,
		"store":            config.Store,
		"nats_url":         config.NATSURL,
		"nats_bucket":      config.NATSBucket,
		"keyring_backends": strings.Join(config.KeyringBackends, ","),
		"ledger":           config.Ledger,
		"output":           config.Output,
		"no_color":         strconv.FormatBool(config.NoColor),
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	rows := make([][]string, 0, len(keys))

	for _, k := range keys {
		v := fields[k]
		if v == "" {
			v = constants.NotAvailable
		}

		rows = append(rows, []string{k, v})
	}

	return renderTable(w, []string{"Property", "Value"}, rows)
}

func outputConfigUpdateResult(w io.Writer, action, key, value string) error {
	result := map[string]string{
		"action": action,
		"key":    key,
	}

	if value != "" {
		result["value"] = value
	}

	if ok, err := writeStructured(w, outputFormat(), result); ok {
		return err
	}

	if value == "" {
		_, err := fmt.Fprintf(w, "%s %s\n", action, key)

		return err
	}

	_, err := fmt.Fprintf(w, "%s %s = %s\n", action, key, value)

	return err
}
