//go:build integration

package integration

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// TestConfig holds configuration for integration tests
type TestConfig struct {
	Keyfile    string
	Domain     string
	SLAID      string
	WorkloadID string
	PolarisBin string
	Verbose    bool
}

// LoadTestConfig loads configuration from environment variables
func LoadTestConfig() *TestConfig {
	return &TestConfig{
		Keyfile:    os.Getenv("RUBRIK_POLARIS_KEYFILE"),
		Domain:     os.Getenv("RUBRIK_POLARIS_DOMAIN"),
		SLAID:      os.Getenv("POLARIS_TEST_SLA_ID"),
		WorkloadID: os.Getenv("POLARIS_TEST_WORKLOAD_ID"),
		PolarisBin: getPolarisPath(),
		Verbose:    os.Getenv("POLARIS_TEST_VERBOSE") == "true",
	}
}

func getPolarisPath() string {
	if path := os.Getenv("POLARIS_BINARY_PATH"); path != "" {
		return path
	}

	for _, candidate := range []string{"../../polaris", "./polaris", "../polaris"} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return "polaris"
}

// SkipIfMissingConfig skips the test without an account or a binary.
func (config *TestConfig) SkipIfMissingConfig(t *testing.T) {
	t.Helper()

	if config.Keyfile == "" {
		t.Skip("RUBRIK_POLARIS_KEYFILE not set, skipping integration test")
	}

	if _, err := exec.LookPath(config.PolarisBin); err != nil {
		t.Skipf("polaris binary not found at %s, skipping integration test", config.PolarisBin)
	}
}

// CommandRunner runs the polaris binary against an isolated config file.
type CommandRunner struct {
	config     *TestConfig
	configFile string
	t          *testing.T
}

// NewCommandRunner creates a runner whose config lives in a temp dir and
// whose tokens are kept in memory.
func NewCommandRunner(config *TestConfig, t *testing.T) *CommandRunner {
	t.Helper()

	return &CommandRunner{
		config:     config,
		configFile: filepath.Join(t.TempDir(), "config.yml"),
		t:          t,
	}
}

// Run executes a polaris command and returns its output.
func (runner *CommandRunner) Run(args ...string) (stdout, stderr string, err error) {
	full := append([]string{"--config", runner.configFile, "--keyfile", runner.config.Keyfile, "--store", "memory", "--no-color"}, args...)

	cmd := exec.Command(runner.config.PolarisBin, full...) //nolint:gosec
	cmd.Env = append(os.Environ(), "RUBRIK_POLARIS_DOMAIN="+runner.config.Domain)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	if runner.config.Verbose {
		runner.t.Logf("Running: %s %s", runner.config.PolarisBin, strings.Join(full, " "))
	}

	err = cmd.Run()
	stdout = stdoutBuf.String()
	stderr = stderrBuf.String()

	if runner.config.Verbose && err != nil {
		runner.t.Logf("Command failed: %v\nStdout: %s\nStderr: %s", err, stdout, stderr)
	}

	return stdout, stderr, err
}

// AssertJSONOutput verifies command output looks like JSON
func AssertJSONOutput(t *testing.T, output string) {
	t.Helper()

	output = strings.TrimSpace(output)
	if !strings.HasPrefix(output, "{") && !strings.HasPrefix(output, "[") && !strings.HasPrefix(output, `"`) {
		t.Errorf("Output does not appear to be JSON: %s", output)
	}
}
