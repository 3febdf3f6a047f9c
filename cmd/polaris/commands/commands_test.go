package commands

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func subcommandNames(cmd *cobra.Command) []string {
	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}

	return names
}

func TestNewTasksCommand(t *testing.T) {
	t.Parallel()

	cmd := NewTasksCommand()
	assert.Equal(t, "tasks", cmd.Use)
	assert.Equal(t, []string{"task"}, cmd.Aliases)
	assert.Equal(t, "Inspect and wait for task chains", cmd.Short)
	assert.ElementsMatch(t, []string{"status", "wait", "history"}, subcommandNames(cmd))
}

func TestTasksWaitCommand(t *testing.T) {
	t.Parallel()

	cmd := newTasksWaitCommand()
	assert.Equal(t, "wait TASKCHAIN_ID...", cmd.Use)
	assert.NotNil(t, cmd.RunE)
	require.Error(t, cmd.Args(cmd, nil))
	require.NoError(t, cmd.Args(cmd, []string{"a", "b"}))

	for flag, def := range map[string]string{
		"interval":     "2s",
		"max-interval": "30s",
		"timeout":      "10m0s",
		"concurrency":  "8",
		"record":       "false",
	} {
		f := cmd.Flags().Lookup(flag)
		require.NotNil(t, f, "Flag %s should exist", flag)
		assert.Equal(t, def, f.DefValue, "default of %s", flag)
	}
}

func TestTasksHistoryCommand(t *testing.T) {
	t.Parallel()

	cmd := newTasksHistoryCommand()
	assert.Equal(t, "history", cmd.Use)

	for _, flag := range []string{"handle", "session", "limit", "prune"} {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "Flag %s should exist", flag)
	}

	assert.Equal(t, "20", cmd.Flags().Lookup("limit").DefValue)
}

func TestNewQueryCommand(t *testing.T) {
	t.Parallel()

	cmd := NewQueryCommand()
	assert.Equal(t, "query [NAME]", cmd.Use)
	assert.Equal(t, "Execute a GraphQL operation", cmd.Short)
	require.Error(t, cmd.Args(cmd, []string{"a", "b"}))

	for _, flag := range []string{"var", "all", "raw", "file", "timeout"} {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "Flag %s should exist", flag)
	}

	assert.Equal(t, "f", cmd.Flags().Lookup("file").Shorthand)
	assert.Equal(t, "1m0s", cmd.Flags().Lookup("timeout").DefValue)
}

func TestNewOperationsCommand(t *testing.T) {
	t.Parallel()

	cmd := NewOperationsCommand()
	assert.Equal(t, "operations", cmd.Use)
	assert.Equal(t, []string{"ops"}, cmd.Aliases)
	assert.ElementsMatch(t, []string{"list", "show"}, subcommandNames(cmd))
}

func TestNewConfigCommand(t *testing.T) {
	t.Parallel()

	cmd := NewConfigCommand()
	assert.Equal(t, "config", cmd.Use)
	assert.Equal(t, "Manage CLI configuration", cmd.Short)
	assert.ElementsMatch(t, []string{"show", "set", "unset"}, subcommandNames(cmd))
}

func TestLoginLogoutCommands(t *testing.T) {
	t.Parallel()

	login := NewLoginCommand()
	assert.Equal(t, "login", login.Use)
	assert.Equal(t, "u", login.Flags().Lookup("username").Shorthand)
	assert.Equal(t, "p", login.Flags().Lookup("password").Shorthand)
	assert.NotNil(t, login.Flags().Lookup("keyfile"))
	assert.NotNil(t, login.Flags().Lookup("mfa-remember-token"))

	logout := NewLogoutCommand()
	assert.Equal(t, "logout", logout.Use)
	assert.NotNil(t, logout.RunE)
}

func TestSLAAndSnapshotCommands(t *testing.T) {
	t.Parallel()

	sla := NewSLACommand()
	assert.Equal(t, "sla", sla.Use)
	assert.Equal(t, []string{"list"}, subcommandNames(sla))

	snapshot := NewSnapshotCommand()
	assert.Equal(t, "snapshot WORKLOAD_ID...", snapshot.Use)
	require.Error(t, snapshot.Args(snapshot, nil))

	for _, flag := range []string{"sla", "wait", "interval", "max-interval", "timeout", "record"} {
		assert.NotNil(t, snapshot.Flags().Lookup(flag), "Flag %s should exist", flag)
	}
}

func TestNewVersionCommand(t *testing.T) {
	t.Parallel()

	cmd := NewVersionCommand("1.2.3", "abc", "today")
	assert.Equal(t, "version", cmd.Use)
	assert.Equal(t, "Display version information", cmd.Short)
	assert.Equal(t, "false", cmd.Flags().Lookup("server").DefValue)
}
