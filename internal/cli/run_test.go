package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunPassingScenario(t *testing.T) {
	out, _, err := execute(t, "run", "testdata/scenarios/pass.yaml", "--run", "run-fixed")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ cli_pass (run run-fixed, 2 events)")
}

func TestRunPassingScenarioJSON(t *testing.T) {
	out, _, err := execute(t, "--format", "json", "run", "testdata/scenarios/pass.yaml", "--run", "run-fixed")
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "ok"`)
	assert.Contains(t, out, `"scenario": "cli_pass"`)
	assert.Contains(t, out, `"run": "run-fixed"`)
	assert.Contains(t, out, `"pass": true`)
}

func TestRunFailingScenario(t *testing.T) {
	out, _, err := execute(t, "run", "testdata/scenarios/fail.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ cli_fail")
}

func TestRunGeneratesTokenByDefault(t *testing.T) {
	out, _, err := execute(t, "run", "testdata/scenarios/pass.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "(run run-")
}

func TestRunWritesJournalFile(t *testing.T) {
	db := filepath.Join(t.TempDir(), "bctree.db")
	_, _, err := execute(t, "run", "testdata/scenarios/pass.yaml", "--journal", db, "--run", "run-fixed")
	require.NoError(t, err)
	assert.FileExists(t, db)
}

func TestRunMissingScenario(t *testing.T) {
	_, _, err := execute(t, "run", "testdata/scenarios/nope.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
