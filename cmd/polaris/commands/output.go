package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"
	"github.com/pterm/pterm"
	"github.com/spf13/viper"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/fivetwenty-io/polaris-client/internal/constants"
)

// outputFormat returns the configured output format.
func outputFormat() string {
	format := strings.ToLower(viper.GetString("output"))
	if format == "" {
		return constants.FormatTable
	}

	return format
}

// writeStructured encodes v as JSON or YAML. It reports false for any other
// format so the caller can render a table instead.
func writeStructured(w io.Writer, format string, v interface{}) (bool, error) {
	switch format {
	case constants.FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", strings.Repeat(" ", constants.JSONIndentSize))

		return true, encoder.Encode(v)
	case constants.FormatYAML:
		encoder := yaml.NewEncoder(w)
		defer encoder.Close()

		return true, encoder.Encode(v)
	default:
		return false, nil
	}
}

// renderTable writes rows under a header.
func renderTable(w io.Writer, header []string, rows [][]string) error {
	cols := make([]any, len(header))
	for i, h := range header {
		cols[i] = h
	}

	table := tablewriter.NewWriter(w)
	table.Header(cols...)

	for _, row := range rows {
		_ = table.Append(row)
	}

	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	return nil
}

// renderValue writes an arbitrary decoded GraphQL value. Tables are used for
// lists of objects and for single objects; anything else falls back to JSON.
func renderValue(w io.Writer, format string, v interface{}) error {
	if ok, err := writeStructured(w, format, v); ok {
		return err
	}

	switch val := v.(type) {
	case []interface{}:
		header, rows, ok := objectRows(val)
		if !ok {
			break
		}

		return renderTable(w, header, rows)
	case map[string]interface{}:
		keys := sortedKeys(val)
		rows := make([][]string, 0, len(keys))

		for _, k := range keys {
			rows = append(rows, []string{k, cell(val[k])})
		}

		return renderTable(w, []string{"Field", "Value"}, rows)
	case bool, string, float64, nil:
		_, err := fmt.Fprintln(w, cell(val))

		return err
	}

	_, err := writeStructured(w, constants.FormatJSON, v)

	return err
}

// objectRows turns a list of objects into table rows keyed by the union of
// their fields.
func objectRows(list []interface{}) ([]string, [][]string, bool) {
	seen := map[string]bool{}

	var keys []string

	for _, item := range list {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, nil, false
		}

		for k := range obj {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}

	sort.Strings(keys)

	rows := make([][]string, 0, len(list))

	for _, item := range list {
		obj, _ := item.(map[string]interface{})
		row := make([]string, len(keys))

		for i, k := range keys {
			row[i] = cell(obj[k])
		}

		rows = append(rows, row)
	}

	header := make([]string, len(keys))
	for i, k := range keys {
		header[i] = headerName(k)
	}

	return header, rows, true
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// cell formats one table cell. Nested values are compacted to JSON.
func cell(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return constants.NotAvailable
	case string:
		return truncate(val)
	case float64:
		return fmt.Sprintf("%g", val)
	case bool:
		return fmt.Sprintf("%t", val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}

		return truncate(string(b))
	}
}

func truncate(s string) string {
	if len(s) <= constants.StringTruncationLength {
		return s
	}

	return s[:constants.StringTruncationLength-3] + "..."
}

// headerName turns "slaDomainName" into "Sla Domain Name".
func headerName(key string) string {
	var b strings.Builder

	for i, r := range key {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte(' ')
		}

		b.WriteRune(r)
	}

	return cases.Title(language.English, cases.NoLower).String(strings.ReplaceAll(b.String(), "_", " "))
}

// interactive reports whether progress output should be drawn.
func interactive() bool {
	if viper.GetBool("no_color") || outputFormat() != constants.FormatTable {
		return false
	}

	fd := os.Stderr.Fd()

	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// startSpinner starts a spinner on stderr when attached to a terminal. The
// returned stop function is always safe to call.
func startSpinner(text string) func(success bool, msg string) {
	if !interactive() {
		return func(bool, string) {}
	}

	spinner, err := pterm.DefaultSpinner.WithWriter(os.Stderr).Start(text)
	if err != nil {
		return func(bool, string) {}
	}

	return func(success bool, msg string) {
		if success {
			spinner.Success(msg)

			return
		}

		spinner.Fail(msg)
	}
}
