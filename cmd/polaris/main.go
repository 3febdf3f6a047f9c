package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fivetwenty-io/polaris-client/cmd/polaris/commands"
	"github.com/fivetwenty-io/polaris-client/internal/constants"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "polaris",
	Short: "Rubrik Security Cloud (Polaris) GraphQL CLI",
	Long: `A command-line interface for the Rubrik Security Cloud GraphQL API.

It runs the operations bundled with the client library, follows paginated
results, waits for asynchronous task chains and keeps a local history of
those waits.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "config file (default is $HOME/.polaris/config.yml)")
	flags.String("base-url", "", "API base URL, e.g. https://acme.my.rubrik.com/api")
	flags.StringP("domain", "d", "", "account domain, the first label of the account host")
	flags.String("root-domain", "", "root domain of the account host (default my.rubrik.com)")
	flags.StringP("token", "t", "", "static access token")
	flags.String("keyfile", "", "service account keyfile")
	flags.StringP("output", "o", constants.FormatTable, "output format (table, json, yaml)")
	flags.BoolP("verbose", "v", false, "verbose output")
	flags.Bool("no-color", false, "disable colored and animated output")
	flags.Bool("insecure", false, "skip TLS certificate verification")
	flags.String("proxy", "", "HTTP proxy URL")
	flags.String("templates", "", "directory of operation templates replacing the built-in set")
	flags.String("prefix", "", "operation name prefix (default SdkGo)")
	flags.String("store", "", "token store: keyring, nats, memory, none (default keyring)")
	flags.String("nats-url", "", "NATS server URL for the nats token store")

	// Bind flags to viper
	for key, flag := range map[string]string{
		"config":      "config",
		"base_url":    "base-url",
		"domain":      "domain",
		"root_domain": "root-domain",
		"token":       "token",
		"keyfile":     "keyfile",
		"output":      "output",
		"verbose":     "verbose",
		"no_color":    "no-color",
		"insecure":    "insecure",
		"proxy":       "proxy",
		"templates":   "templates",
		"prefix":      "prefix",
		"store":       "store",
		"nats_url":    "nats-url",
	} {
		_ = viper.BindPFlag(key, flags.Lookup(flag))
	}

	// Add commands
	rootCmd.AddCommand(commands.NewVersionCommand(version, commit, date))
	rootCmd.AddCommand(commands.NewLoginCommand())
	rootCmd.AddCommand(commands.NewLogoutCommand())
	rootCmd.AddCommand(commands.NewConfigCommand())
	rootCmd.AddCommand(commands.NewOperationsCommand())
	rootCmd.AddCommand(commands.NewQueryCommand())
	rootCmd.AddCommand(commands.NewTasksCommand())
	rootCmd.AddCommand(commands.NewSLACommand())
	rootCmd.AddCommand(commands.NewSnapshotCommand())
}

func initConfig() {
	cfgFile := viper.GetString("config")

	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".polaris")
		if err := os.MkdirAll(configDir, constants.ConfigDirPerm); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating config directory: %v\n", err)
		}

		// Search config in ~/.polaris/config.yml
		viper.AddConfigPath(configDir)
		viper.SetConfigType("yml")
		viper.SetConfigName("config")
	}

	// RUBRIK_POLARIS_DOMAIN, RUBRIK_POLARIS_PASSWORD, ...
	viper.SetEnvPrefix("RUBRIK_POLARIS")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)

	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
