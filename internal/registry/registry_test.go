package registry

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/polaris-client/pkg/polaris"
)

func TestOperationName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "SdkGoCoreSlaDomains", OperationName("SdkGo", "core_sla_domains"))
	assert.Equal(t, "SdkGoAwsNativeAccountV2", OperationName("SdkGo", "aws_native_account_v2"))
	assert.Equal(t, "XGqlAPI", OperationName("X", "gql_aPI"))
}

func TestParse(t *testing.T) {
	t.Parallel()

	text := `query RubrikPolarisSDKRequest($first: Int, $after: String, $ids: [UUID!]!, $sort: SortEnum = NAME) {
  slaDomains(first: $first, after: $after, ids: $ids, sortBy: $sort) {
    edges { node { id } }
    pageInfo { endCursor hasNextPage }
  }
}`

	def, err := Parse("core_sla_domains", text, "SdkGo")
	require.NoError(t, err)

	assert.Equal(t, "core_sla_domains", def.Name)
	assert.Equal(t, polaris.CategoryQuery, def.Category)
	assert.Equal(t, "SdkGoCoreSlaDomains", def.OperationName)
	assert.Equal(t, "slaDomains", def.SelectionField)
	assert.True(t, def.Paginated)
	assert.Contains(t, def.Query, "query SdkGoCoreSlaDomains(")
	assert.NotContains(t, def.Query, "RubrikPolarisSDKRequest")

	require.Len(t, def.Variables, 4)

	ids, ok := def.Variable("ids")
	require.True(t, ok)
	assert.Equal(t, "UUID", ids.Type)
	assert.Equal(t, "[UUID!]!", ids.RawType)
	assert.True(t, ids.Required)
	assert.True(t, ids.IsList)

	sort, ok := def.Variable("sort")
	require.True(t, ok)
	assert.True(t, sort.HasDefault)
	assert.Equal(t, "NAME", sort.Default)
	assert.False(t, sort.Required)
}

func TestParse_EdgeCases(t *testing.T) {
	t.Parallel()

	t.Run("no variables", func(t *testing.T) {
		t.Parallel()

		def, err := Parse("core_polaris_version", "query RubrikPolarisSDKRequest { deploymentVersion }", "SdkGo")
		require.NoError(t, err)
		assert.Equal(t, "deploymentVersion", def.SelectionField)
		assert.Empty(t, def.Variables)
		assert.False(t, def.Paginated)
	})

	t.Run("alias is the selection field", func(t *testing.T) {
		t.Parallel()

		def, err := Parse("x", "query RubrikPolarisSDKRequest { v: deploymentVersion }", "SdkGo")
		require.NoError(t, err)
		assert.Equal(t, "v", def.SelectionField)
	})

	t.Run("explicit operation name kept", func(t *testing.T) {
		t.Parallel()

		def, err := Parse("x", "mutation DeleteThing($id: ID!) { deleteThing(id: $id) }", "SdkGo")
		require.NoError(t, err)
		assert.Equal(t, "DeleteThing", def.OperationName)
		assert.Equal(t, polaris.CategoryMutation, def.Category)
	})

	t.Run("pageInfo without after is not paginated", func(t *testing.T) {
		t.Parallel()

		def, err := Parse("x", "query RubrikPolarisSDKRequest { things { pageInfo { hasNextPage } } }", "SdkGo")
		require.NoError(t, err)
		assert.False(t, def.Paginated)
	})

	t.Run("syntax error", func(t *testing.T) {
		t.Parallel()

		_, err := Parse("broken", "query RubrikPolarisSDKRequest { ", "SdkGo")
		require.Error(t, err)
		assert.True(t, polaris.IsParse(err))
	})

	t.Run("only fragment spreads", func(t *testing.T) {
		t.Parallel()

		_, err := Parse("frag", "query RubrikPolarisSDKRequest { ...F } fragment F on Query { a }", "SdkGo")
		require.Error(t, err)
		assert.True(t, polaris.IsParse(err))
	})

	t.Run("subscription rejected", func(t *testing.T) {
		t.Parallel()

		_, err := Parse("sub", "subscription RubrikPolarisSDKRequest { events { id } }", "SdkGo")
		require.Error(t, err)
		assert.True(t, polaris.IsParse(err))
	})
}

func TestBuild(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"query_core_polaris_version.graphql":      {Data: []byte("query RubrikPolarisSDKRequest { deploymentVersion }")},
		"nested/mutation_core_delete_sla.graphql": {Data: []byte("mutation RubrikPolarisSDKRequest($id: UUID!) { deleteGlobalSla(id: $id) { success } }")},
		"README.md": {Data: []byte("not a template")},
	}

	reg, err := Build(fsys, WithPrefix("Test"))
	require.NoError(t, err)

	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, []string{"core_delete_sla", "core_polaris_version"}, reg.Names())

	def, ok := reg.Get("core_delete_sla")
	require.True(t, ok)
	assert.Equal(t, "TestCoreDeleteSla", def.OperationName)
	assert.Equal(t, polaris.CategoryMutation, def.Category)

	def.Variables[0].Name = "mutated"

	again, _ := reg.Get("core_delete_sla")
	assert.Equal(t, "id", again.Variables[0].Name)

	_, err = reg.Lookup("missing")
	require.Error(t, err)
	assert.True(t, polaris.IsValidation(err))
}

func TestBuild_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		fsys fstest.MapFS
	}{
		{
			name: "one bad template fails the build",
			fsys: fstest.MapFS{
				"query_ok.graphql":  {Data: []byte("query RubrikPolarisSDKRequest { ok }")},
				"query_bad.graphql": {Data: []byte("query RubrikPolarisSDKRequest {")},
			},
		},
		{
			name: "duplicate names",
			fsys: fstest.MapFS{
				"query_dup.graphql":    {Data: []byte("query RubrikPolarisSDKRequest { a }")},
				"mutation_dup.graphql": {Data: []byte("mutation RubrikPolarisSDKRequest { b }")},
			},
		},
		{
			name: "file prefix disagrees with template",
			fsys: fstest.MapFS{
				"mutation_x.graphql": {Data: []byte("query RubrikPolarisSDKRequest { a }")},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Build(tt.fsys)
			require.Error(t, err)
			assert.True(t, polaris.IsParse(err))
		})
	}
}

func TestDefault(t *testing.T) {
	t.Parallel()

	reg, err := Default()
	require.NoError(t, err)

	for _, name := range []string{
		"core_polaris_version",
		"core_sla_domains",
		"core_taskchain_status",
		"core_enum_values",
		"core_cluster_list",
		"core_snappable_on_demand",
	} {
		_, ok := reg.Get(name)
		assert.True(t, ok, name)
	}

	sla, _ := reg.Get("core_sla_domains")
	assert.True(t, sla.Paginated)

	status, _ := reg.Get("core_taskchain_status")
	assert.Equal(t, "getKorgTaskchainStatus", status.SelectionField)
	assert.False(t, status.Paginated)
}
