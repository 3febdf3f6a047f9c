package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/polaris-client/internal/constants"
	"github.com/fivetwenty-io/polaris-client/internal/testutil"
	"github.com/fivetwenty-io/polaris-client/pkg/polaris"
	"github.com/fivetwenty-io/polaris-client/pkg/polarisclient"
)

func newTestClient(t *testing.T, srv *testutil.Server) polaris.Client {
	t.Helper()

	c, err := polarisclient.NewWithToken(context.Background(), srv.BaseURL(), srv.IssueToken())
	require.NoError(t, err)

	return c
}

func TestParseVars(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      []string
		want    map[string]interface{}
		wantErr bool
	}{
		{
			name: "none",
			in:   nil,
			want: map[string]interface{}{},
		},
		{
			name: "json values",
			in:   []string{"first=20", "flag=true", `ids=["a","b"]`, `filter={"name":"x"}`},
			want: map[string]interface{}{
				"first":  float64(20),
				"flag":   true,
				"ids":    []interface{}{"a", "b"},
				"filter": map[string]interface{}{"name": "x"},
			},
		},
		{
			name: "plain strings",
			in:   []string{"id=0b5a-11", "name=Gold Plus", "empty="},
			want: map[string]interface{}{"id": "0b5a-11", "name": "Gold Plus", "empty": ""},
		},
		{
			name: "value containing equals",
			in:   []string{"q=a=b"},
			want: map[string]interface{}{"q": "a=b"},
		},
		{
			name: "last wins",
			in:   []string{"first=1", "first=2"},
			want: map[string]interface{}{"first": float64(2)},
		},
		{name: "missing equals", in: []string{"first"}, wantErr: true},
		{name: "missing key", in: []string{"=1"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := parseVars(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, constants.ErrInvalidVariableFlag)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

//nolint:funlen // Test functions can be longer for comprehensive testing
func TestRunQuery(t *testing.T) {
	t.Parallel()

	srv := testutil.NewServer(t)
	srv.AddSLADomains("Gold", "Silver", "Bronze")
	srv.SetVersion("v20261017-9")

	c := newTestClient(t, srv)
	ctx := context.Background()

	t.Run("all pages as json", func(t *testing.T) {
		t.Parallel()

		var out bytes.Buffer

		err := runQuery(ctx, &out, constants.FormatJSON, c, "core_sla_domains", queryOptions{
			Vars:    []string{"first=2"},
			All:     true,
			Timeout: time.Minute,
		})
		require.NoError(t, err)

		var nodes []map[string]interface{}
		require.NoError(t, json.Unmarshal(out.Bytes(), &nodes))
		require.Len(t, nodes, 3)
		assert.Equal(t, "Bronze", nodes[2]["name"])
	})

	t.Run("value as table", func(t *testing.T) {
		t.Parallel()

		var out bytes.Buffer

		err := runQuery(ctx, &out, constants.FormatTable, c, "core_polaris_version", queryOptions{Timeout: time.Minute})
		require.NoError(t, err)
		assert.Contains(t, out.String(), "v20261017-9")
	})

	t.Run("raw document", func(t *testing.T) {
		t.Parallel()

		var out bytes.Buffer

		err := runQuery(ctx, &out, constants.FormatTable, c, "core_polaris_version", queryOptions{Raw: true, Timeout: time.Minute})
		require.NoError(t, err)

		var doc map[string]interface{}
		require.NoError(t, json.Unmarshal(out.Bytes(), &doc))
		assert.Contains(t, doc, "data")
	})

	t.Run("ad-hoc file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "version.graphql")
		require.NoError(t, os.WriteFile(path, []byte("query Version { deploymentVersion }"), 0o600))

		var out bytes.Buffer

		err := runQuery(ctx, &out, constants.FormatYAML, c, "", queryOptions{File: path, Timeout: time.Minute})
		require.NoError(t, err)
		assert.Equal(t, "v20261017-9\n", out.String())
	})

	t.Run("bad variable", func(t *testing.T) {
		t.Parallel()

		err := runQuery(ctx, &bytes.Buffer{}, constants.FormatJSON, c, "core_sla_domains", queryOptions{
			Vars:    []string{"first"},
			Timeout: time.Minute,
		})
		require.ErrorIs(t, err, constants.ErrInvalidVariableFlag)
	})

	t.Run("unknown operation", func(t *testing.T) {
		t.Parallel()

		err := runQuery(ctx, &bytes.Buffer{}, constants.FormatJSON, c, "no_such_op", queryOptions{Timeout: time.Minute})
		require.Error(t, err)
		assert.True(t, polaris.IsValidation(err))
	})
}

func TestRenderValue(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer

	nodes := []interface{}{
		map[string]interface{}{"id": "1", "slaDomainName": "Gold"},
		map[string]interface{}{"id": "2", "extra": map[string]interface{}{"k": "v"}},
	}

	require.NoError(t, renderValue(&out, constants.FormatTable, nodes))

	table := out.String()
	assert.Contains(t, strings.ToUpper(table), "SLA DOMAIN NAME")
	assert.Contains(t, table, "Gold")
	assert.Contains(t, table, `{"k":"v"}`)
	assert.Contains(t, table, constants.NotAvailable)

	out.Reset()
	require.NoError(t, renderValue(&out, constants.FormatTable, true))
	assert.Equal(t, "true\n", out.String())

	out.Reset()
	require.NoError(t, renderValue(&out, constants.FormatTable, []interface{}{"a", float64(1)}))
	assert.JSONEq(t, `["a", 1]`, out.String())
}

func TestHeaderName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Sla Domain Name", headerName("slaDomainName"))
	assert.Equal(t, "Id", headerName("id"))
	assert.Equal(t, "Server State", headerName("server_state"))
}

func TestCell(t *testing.T) {
	t.Parallel()

	assert.Equal(t, constants.NotAvailable, cell(nil))
	assert.Equal(t, "3", cell(float64(3)))
	assert.Equal(t, "false", cell(false))
	assert.Equal(t, `["x"]`, cell([]interface{}{"x"}))

	long := cell(strings.Repeat("a", constants.StringTruncationLength+10))
	assert.Len(t, long, constants.StringTruncationLength)
	assert.True(t, strings.HasSuffix(long, "..."))
}
