package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fivetwenty-io/polaris-client/internal/constants"
	"github.com/fivetwenty-io/polaris-client/pkg/polaris"
)

// NewSLACommand creates the sla command group.
func NewSLACommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sla",
		Short: "Manage SLA domains",
		Long:  "List SLA domains of the account",
	}

	var first int

	list := &cobra.Command{
		Use:   "list",
		Short: "List SLA domains",
		Long:  "List every SLA domain, following all pages",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := CreateClient(cmd.Context())
			if err != nil {
				return err
			}

			domains, err := client.SLADomains(cmd.Context(), first)
			if err != nil {
				return err
			}

			if ok, err := writeStructured(cmd.OutOrStdout(), outputFormat(), domains); ok {
				return err
			}

			rows := make([][]string, 0, len(domains))
			for _, d := range domains {
				rows = append(rows, []string{d.Name, d.ID})
			}

			return renderTable(cmd.OutOrStdout(), []string{"Name", "ID"}, rows)
		},
	}

	list.Flags().IntVar(&first, "page-size", 0, "SLA domains fetched per request")
	cmd.AddCommand(list)

	return cmd
}

// NewSnapshotCommand creates the snapshot command.
func NewSnapshotCommand() *cobra.Command {
	var (
		slaID string
		wait  bool
		opts  waitOptions
	)

	cmd := &cobra.Command{
		Use:   "snapshot WORKLOAD_ID...",
		Short: "Take on-demand snapshots",
		Long: `Start on-demand snapshots of workloads and print the task chains started.

With --wait the task chains are monitored until they finish, like "polaris tasks wait".`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := CreateClient(cmd.Context())
			if err != nil {
				return err
			}

			result, err := client.SubmitOnDemand(cmd.Context(), &polaris.OnDemandRequest{
				SnappableIDs: args,
				SLAID:        slaID,
			})
			if err != nil {
				return err
			}

			if !wait {
				if ok, err := writeStructured(cmd.OutOrStdout(), outputFormat(), result); ok {
					return err
				}

				for _, h := range result.Handles {
					fmt.Fprintln(cmd.OutOrStdout(), h)
				}

				return nil
			}

			var rec recorder

			if opts.Record {
				l, err := openLedger(cmd.Context())
				if err != nil {
					return err
				}
				defer l.Close()

				rec = l
			}

			return waitForTasks(cmd.Context(), cmd.OutOrStdout(), outputFormat(), client, result.Handles, opts, rec)
		},
	}

	cmd.Flags().StringVar(&slaID, "sla", "", "SLA domain ID for retention (default keeps the workload SLA)")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the task chains to finish")
	cmd.Flags().DurationVar(&opts.Interval, "interval", constants.DefaultPollInterval, "first wait between polls")
	cmd.Flags().DurationVar(&opts.MaxInterval, "max-interval", constants.DefaultMaxPollInterval, "longest wait between polls")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", constants.DefaultMonitorTimeout, "overall deadline")
	cmd.Flags().BoolVar(&opts.Record, "record", false, "record the outcome in the task ledger")

	return cmd
}
