package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fivetwenty-io/polaris-client/internal/constants"
	"github.com/fivetwenty-io/polaris-client/internal/ledger"
	"github.com/fivetwenty-io/polaris-client/pkg/polaris"
)

// NewTasksCommand creates the tasks command group.
func NewTasksCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tasks",
		Aliases: []string{"task"},
		Short:   "Inspect and wait for task chains",
		Long:    "Query the status of asynchronous task chains, wait for them to finish and review earlier waits",
	}

	cmd.AddCommand(newTasksStatusCommand())
	cmd.AddCommand(newTasksWaitCommand())
	cmd.AddCommand(newTasksHistoryCommand())

	return cmd
}

func newTasksStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status TASKCHAIN_ID",
		Short: "Show the status of a task chain",
		Long:  "Poll a task chain once and show its state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := CreateClient(cmd.Context())
			if err != nil {
				return err
			}

			status, err := client.TaskStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return renderStatuses(cmd.OutOrStdout(), outputFormat(), []polaris.TaskStatus{*status})
		},
	}
}

// waitOptions are the flags of tasks wait.
type waitOptions struct {
	Interval      time.Duration
	MaxInterval   time.Duration
	Timeout       time.Duration
	MaxConcurrent int
	Record        bool
}

func (o waitOptions) monitor() polaris.MonitorOptions {
	return polaris.MonitorOptions{
		PollInterval:    o.Interval,
		MaxPollInterval: o.MaxInterval,
		Timeout:         o.Timeout,
		MaxConcurrent:   o.MaxConcurrent,
	}
}

func newTasksWaitCommand() *cobra.Command {
	var opts waitOptions

	cmd := &cobra.Command{
		Use:   "wait TASKCHAIN_ID...",
		Short: "Wait for task chains to finish",
		Long: `Poll task chains until every one has succeeded or failed, or the timeout fires.

The command fails when any task chain did not succeed. With --record the
outcome is stored in the local task ledger, see "polaris tasks history".`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := CreateClient(cmd.Context())
			if err != nil {
				return err
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

			handles := make([]polaris.TaskHandle, 0, len(args))
			for _, a := range args {
				handles = append(handles, polaris.TaskHandle(a))
			}

			return waitForTasks(cmd.Context(), cmd.OutOrStdout(), outputFormat(), client, handles, opts, rec)
		},
	}

	cmd.Flags().DurationVar(&opts.Interval, "interval", constants.DefaultPollInterval, "first wait between polls")
	cmd.Flags().DurationVar(&opts.MaxInterval, "max-interval", constants.DefaultMaxPollInterval, "longest wait between polls")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", constants.DefaultMonitorTimeout, "overall deadline")
	cmd.Flags().IntVar(&opts.MaxConcurrent, "concurrency", constants.DefaultMaxConcurrentPollers, "task chains polled at once")
	cmd.Flags().BoolVar(&opts.Record, "record", false, "record the outcome in the task ledger")

	return cmd
}

// monitorClient is the part of the client tasks wait uses.
type monitorClient interface {
	Monitor(ctx context.Context, handles []polaris.TaskHandle, opts polaris.MonitorOptions) (*polaris.MonitorResult, error)
}

// recorder stores monitoring outcomes.
type recorder interface {
	Record(ctx context.Context, result *polaris.MonitorResult) (string, error)
}

func waitForTasks(
	ctx context.Context,
	w io.Writer,
	format string,
	client monitorClient,
	handles []polaris.TaskHandle,
	opts waitOptions,
	rec recorder,
) error {
	stop := startSpinner(fmt.Sprintf("Waiting for %d task chain(s)", len(handles)))

	result, monitorErr := client.Monitor(ctx, handles, opts.monitor())

	stop(monitorErr == nil && result.Succeeded(), aggregateText(result))

	if result == nil {
		return monitorErr
	}

	if rec != nil {
		if _, err := rec.Record(ctx, result); err != nil {
			return errors.Join(monitorErr, err)
		}
	}

	if err := renderMonitorResult(w, format, result); err != nil {
		return errors.Join(monitorErr, err)
	}

	if monitorErr != nil {
		return monitorErr
	}

	if !result.Succeeded() {
		return fmt.Errorf("%w: %s", constants.ErrTasksNotSucceeded, failureText(result))
	}

	return nil
}

func aggregateText(result *polaris.MonitorResult) string {
	if result == nil {
		return "Task monitoring failed"
	}

	return fmt.Sprintf("Task chains %s", result.Aggregate)
}

func failureText(result *polaris.MonitorResult) string {
	if result.FirstFailure == nil {
		return string(result.Aggregate)
	}

	if result.FirstFailure.Error == "" {
		return fmt.Sprintf("task chain %s %s", result.FirstFailure.Handle, result.FirstFailure.State)
	}

	return fmt.Sprintf("task chain %s %s: %s", result.FirstFailure.Handle, result.FirstFailure.State, result.FirstFailure.Error)
}

func renderMonitorResult(w io.Writer, format string, result *polaris.MonitorResult) error {
	if ok, err := writeStructured(w, format, result); ok {
		return err
	}

	statuses := make([]polaris.TaskStatus, 0, len(result.Statuses))
	for h, s := range result.Statuses {
		if s.Handle == "" {
			s.Handle = h
		}

		statuses = append(statuses, s)
	}

	slices.SortFunc(statuses, func(a, b polaris.TaskStatus) int {
		return strings.Compare(string(a.Handle), string(b.Handle))
	})

	return renderStatuses(w, format, statuses)
}

func renderStatuses(w io.Writer, format string, statuses []polaris.TaskStatus) error {
	if len(statuses) == 1 {
		if ok, err := writeStructured(w, format, statuses[0]); ok {
			return err
		}
	}

	rows := make([][]string, 0, len(statuses))

	for _, s := range statuses {
		serverState, detail := s.ServerState, s.Error
		if serverState == "" {
			serverState = constants.NotAvailable
		}

		if detail == "" {
			detail = constants.NotAvailable
		}

		rows = append(rows, []string{string(s.Handle), string(s.State), serverState, strconv.Itoa(s.Polls), truncate(detail)})
	}

	return renderTable(w, []string{"Task Chain", "State", "Server State", "Polls", "Error"}, rows)
}

func newTasksHistoryCommand() *cobra.Command {
	var (
		filter ledger.Filter
		prune  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded task waits",
		Long:  "List task chain outcomes recorded by 'polaris tasks wait --record', newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLedger(cmd.Context())
			if err != nil {
				return err
			}
			defer l.Close()

			if prune > 0 {
				n, err := l.Prune(cmd.Context(), time.Now().Add(-prune))
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.ErrOrStderr(), "Pruned %d recorded session(s)\n", n)
			}

			entries, err := l.History(cmd.Context(), filter)
			if err != nil {
				return err
			}

			return renderHistory(cmd.OutOrStdout(), outputFormat(), entries)
		},
	}

	cmd.Flags().StringVar(&filter.Handle, "handle", "", "only show this task chain")
	cmd.Flags().StringVar(&filter.SessionID, "session", "", "only show this recorded session")
	cmd.Flags().IntVar(&filter.Limit, "limit", constants.DefaultHistoryLimit, "maximum rows")
	cmd.Flags().DurationVar(&prune, "prune", 0, "first delete sessions older than this")

	return cmd
}

func openLedger(ctx context.Context) (*ledger.Ledger, error) {
	path, err := ledgerPath(loadConfig())
	if err != nil {
		return nil, err
	}

	l, err := ledger.Open(ctx, path, cliLogger())
	if err != nil {
		return nil, fmt.Errorf("failed to open task ledger: %w", err)
	}

	return l, nil
}

func renderHistory(w io.Writer, format string, entries []ledger.Entry) error {
	if ok, err := writeStructured(w, format, entries); ok {
		return err
	}

	rows := make([][]string, 0, len(entries))

	for _, e := range entries {
		detail := e.Error
		if detail == "" {
			detail = constants.NotAvailable
		}

		rows = append(rows, []string{
			e.RecordedAt.Local().Format(time.DateTime),
			e.SessionID,
			e.Handle,
			string(e.State),
			string(e.Aggregate),
			strconv.Itoa(e.Polls),
			truncate(detail),
		})
	}

	return renderTable(w, []string{"Recorded", "Session", "Task Chain", "State", "Session State", "Polls", "Error"}, rows)
}
