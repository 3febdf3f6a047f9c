package commands

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fivetwenty-io/polaris-client/internal/registry"
	"github.com/fivetwenty-io/polaris-client/pkg/polaris"
)

// operationSource is the part of the client the operations commands read.
type operationSource interface {
	Operations() []string
	Operation(name string) (polaris.OperationDefinition, error)
}

// registrySource reads operations without building a client, so no login
// is needed.
type registrySource struct {
	reg *registry.Registry
}

func (r registrySource) Operations() []string { return r.reg.Names() }

func (r registrySource) Operation(name string) (polaris.OperationDefinition, error) {
	return r.reg.Lookup(name)
}

func loadOperations(config *Config) (operationSource, error) {
	opts := []registry.Option{registry.WithLogger(cliLogger())}
	if config.Prefix != "" {
		opts = append(opts, registry.WithPrefix(config.Prefix))
	}

	var (
		reg *registry.Registry
		err error
	)

	if config.Templates != "" {
		reg, err = registry.Build(os.DirFS(config.Templates), opts...)
	} else {
		reg, err = registry.Default(opts...)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load operations: %w", err)
	}

	return registrySource{reg: reg}, nil
}

// NewOperationsCommand creates the operations command group.
func NewOperationsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "operations",
		Aliases: []string{"ops"},
		Short:   "Inspect loaded GraphQL operations",
		Long:    "List and show the GraphQL operations loaded from the operation templates",
	}

	cmd.AddCommand(newOperationsListCommand())
	cmd.AddCommand(newOperationsShowCommand())

	return cmd
}

func newOperationsListCommand() *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List operations",
		Long:  "List every loaded operation with its category and variables",
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := loadOperations(loadConfig())
			if err != nil {
				return err
			}

			return listOperations(cmd.OutOrStdout(), outputFormat(), src, polaris.OperationCategory(category))
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "only list operations of this category (query, mutation)")

	return cmd
}

func newOperationsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show NAME",
		Short: "Show an operation",
		Long:  "Show the variables and the GraphQL text of an operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := loadOperations(loadConfig())
			if err != nil {
				return err
			}

			return showOperation(cmd.OutOrStdout(), outputFormat(), src, args[0])
		},
	}
}

func listOperations(w io.Writer, format string, src operationSource, category polaris.OperationCategory) error {
	defs := make([]polaris.OperationDefinition, 0)

	for _, name := range src.Operations() {
		def, err := src.Operation(name)
		if err != nil {
			return err
		}

		if category != "" && def.Category != category {
			continue
		}

		defs = append(defs, def)
	}

	if ok, err := writeStructured(w, format, defs); ok {
		return err
	}

	rows := make([][]string, 0, len(defs))
	for _, def := range defs {
		rows = append(rows, []string{
			def.Name,
			string(def.Category),
			strconv.FormatBool(def.Paginated),
			variableList(def.Variables),
		})
	}

	return renderTable(w, []string{"Name", "Category", "Paginated", "Variables"}, rows)
}

func showOperation(w io.Writer, format string, src operationSource, name string) error {
	def, err := src.Operation(name)
	if err != nil {
		return err
	}

	if ok, err := writeStructured(w, format, def); ok {
		return err
	}

	rows := make([][]string, 0, len(def.Variables))
	for _, v := range def.Variables {
		rows = append(rows, []string{v.Name, v.RawType, strconv.FormatBool(v.Required), v.Default})
	}

	fmt.Fprintf(w, "Operation: %s (%s)\n", def.Name, def.Category)
	fmt.Fprintf(w, "Operation name: %s\n", def.OperationName)
	fmt.Fprintf(w, "Selection field: %s\n\n", def.SelectionField)

	if len(rows) > 0 {
		if err := renderTable(w, []string{"Variable", "Type", "Required", "Default"}, rows); err != nil {
			return err
		}

		fmt.Fprintln(w)
	}

	_, err = fmt.Fprintln(w, strings.TrimSpace(def.Query))

	return err
}

func variableList(vars []polaris.VariableSpec) string {
	parts := make([]string, 0, len(vars))

	for _, v := range vars {
		parts = append(parts, v.Name+": "+v.RawType)
	}

	return strings.Join(parts, ", ")
}
