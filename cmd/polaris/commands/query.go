package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fivetwenty-io/polaris-client/internal/constants"
	"github.com/fivetwenty-io/polaris-client/pkg/polaris"
)

// queryOptions are the flags of the query command.
type queryOptions struct {
	Vars    []string
	All     bool
	Raw     bool
	File    string
	Timeout time.Duration
}

// NewQueryCommand creates the query command.
func NewQueryCommand() *cobra.Command {
	opts := queryOptions{Timeout: constants.DefaultRequestTimeout}

	cmd := &cobra.Command{
		Use:   "query [NAME]",
		Short: "Execute a GraphQL operation",
		Long: `Execute a loaded GraphQL operation and print the normalized result.

Variables are given as --var key=value. Values that parse as JSON are sent as
JSON (numbers, booleans, lists, objects); anything else is sent as a string.
With --all a paginated operation is followed through every page. With --file
an ad-hoc GraphQL document is executed instead of a loaded operation.`,
		Example: `  polaris query core_sla_domains --var first=20 --all
  polaris query core_taskchain_status --var filter=0b5a...
  polaris query --file ./clusters.graphql --var first=50`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && opts.File == "" {
				return fmt.Errorf("%w: give an operation name or --file", constants.ErrUnknownOperation)
			}

			client, err := CreateClient(cmd.Context())
			if err != nil {
				return err
			}

			name := ""
			if len(args) > 0 {
				name = args[0]
			}

			return runQuery(cmd.Context(), cmd.OutOrStdout(), outputFormat(), client, name, opts)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Vars, "var", nil, "operation variable as key=value (repeatable)")
	cmd.Flags().BoolVar(&opts.All, "all", false, "follow every page of a paginated operation")
	cmd.Flags().BoolVar(&opts.Raw, "raw", false, "print the response document as received")
	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "execute the GraphQL document in this file")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", constants.DefaultRequestTimeout, "timeout of each request")

	return cmd
}

// queryClient is the part of the client the query command uses.
type queryClient interface {
	Execute(ctx context.Context, name string, variables map[string]interface{}, timeout time.Duration) (*polaris.RawResponse, error)
	ExecuteRaw(ctx context.Context, query string, variables map[string]interface{}, timeout time.Duration) (*polaris.RawResponse, error)
	Query(ctx context.Context, name string, variables map[string]interface{}, timeout time.Duration) (polaris.Result, error)
	CollectAll(ctx context.Context, name string, variables map[string]interface{}, timeout time.Duration) ([]interface{}, error)
}

func runQuery(ctx context.Context, w io.Writer, format string, client queryClient, name string, opts queryOptions) error {
	variables, err := parseVars(opts.Vars)
	if err != nil {
		return err
	}

	if opts.File != "" {
		text, err := os.ReadFile(opts.File)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", opts.File, err)
		}

		resp, err := client.ExecuteRaw(ctx, string(text), variables, opts.Timeout)
		if err != nil {
			return err
		}

		return renderResponse(w, format, resp, opts.Raw)
	}

	switch {
	case opts.All:
		nodes, err := client.CollectAll(ctx, name, variables, opts.Timeout)
		if err != nil {
			return err
		}

		return renderValue(w, format, nodes)
	case opts.Raw:
		resp, err := client.Execute(ctx, name, variables, opts.Timeout)
		if err != nil {
			return err
		}

		return renderResponse(w, format, resp, true)
	default:
		result, err := client.Query(ctx, name, variables, opts.Timeout)
		if err != nil {
			return err
		}

		return renderValue(w, format, result.Interface())
	}
}

func renderResponse(w io.Writer, format string, resp *polaris.RawResponse, raw bool) error {
	if raw {
		if format == constants.FormatTable {
			format = constants.FormatJSON
		}

		return renderValue(w, format, resp.Document)
	}

	result, err := polaris.NormalizeResponse(resp)
	if err != nil {
		return err
	}

	return renderValue(w, format, result.Interface())
}

// parseVars turns key=value flags into operation variables. A value that is
// valid JSON is decoded; otherwise it is taken as a string.
func parseVars(pairs []string) (map[string]interface{}, error) {
	variables := make(map[string]interface{}, len(pairs))

	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)

		if !ok || key == "" {
			return nil, fmt.Errorf("%w: %q", constants.ErrInvalidVariableFlag, pair)
		}

		var decoded interface{}
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			variables[key] = decoded

			continue
		}

		variables[key] = value
	}

	return variables, nil
}
