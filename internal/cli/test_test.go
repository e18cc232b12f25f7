package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestRunsDirectory(t *testing.T) {
	out, _, err := execute(t, "test", "testdata/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ cli_fail")
	assert.Contains(t, out, "✓ cli_pass")
	assert.Contains(t, out, "1 passed, 1 failed, 2 total")
}

func TestTestFilterSelectsSubset(t *testing.T) {
	out, _, err := execute(t, "test", "testdata/scenarios", "--filter", "pass*")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ cli_pass")
	assert.NotContains(t, out, "cli_fail")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestJSONOutput(t *testing.T) {
	out, _, err := execute(t, "--format", "json", "test", "testdata/scenarios", "--filter", "pass*")
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "ok"`)
	assert.Contains(t, out, `"name": "cli_pass"`)
	assert.Contains(t, out, `"passed": 1`)
}

func TestTestEmptyDirectory(t *testing.T) {
	out, _, err := execute(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTestMissingDirectory(t *testing.T) {
	_, _, err := execute(t, "test", "testdata/nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
