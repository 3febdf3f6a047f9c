package commands

import (
	"github.com/spf13/cobra"

	"github.com/fivetwenty-io/polaris-client/internal/constants"
)

// VersionInfo is printed by the version command.
type VersionInfo struct {
	Version string `json:"version"                  yaml:"version"`
	Commit  string `json:"commit"                   yaml:"commit"`
	Built   string `json:"built"                    yaml:"built"`
	Server  string `json:"server_version,omitempty" yaml:"server_version,omitempty"`
}

// NewVersionCommand creates the version command.
func NewVersionCommand(version, commit, date string) *cobra.Command {
	var server bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Display version information",
		Long:  "Display version information about the Polaris CLI, and with --server the Polaris deployment version",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := VersionInfo{
				Version: version,
				Commit:  commit,
				Built:   date,
			}

			if server {
				client, err := CreateClient(cmd.Context())
				if err != nil {
					return err
				}

				info.Server, err = client.PolarisVersion(cmd.Context())
				if err != nil {
					return err
				}
			}

			if ok, err := writeStructured(cmd.OutOrStdout(), outputFormat(), info); ok {
				return err
			}

			rows := [][]string{
				{"Version", info.Version},
				{"Commit", info.Commit},
				{"Built", info.Built},
			}

			if server {
				serverVersion := info.Server
				if serverVersion == "" {
					serverVersion = constants.NotAvailable
				}

				rows = append(rows, []string{"Server", serverVersion})
			}

			return renderTable(cmd.OutOrStdout(), []string{"Property", "Value"}, rows)
		},
	}

	cmd.Flags().BoolVar(&server, "server", false, "also query the Polaris deployment version")

	return cmd
}
