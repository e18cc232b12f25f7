package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAcceptsGoodTopology(t *testing.T) {
	out, _, err := execute(t, "validate", "testdata/topology/valid.cue")
	require.NoError(t, err)
	assert.Contains(t, out, "Topology valid")
	assert.Contains(t, out, "2 process(es)")
	assert.Contains(t, out, "1 context(s)")
}

func TestValidateJSONOutput(t *testing.T) {
	out, _, err := execute(t, "--format", "json", "validate", "testdata/topology/valid.cue")
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "ok"`)
	assert.Contains(t, out, `"valid": true`)
}

func TestValidateRejectsTwoParents(t *testing.T) {
	out, _, err := execute(t, "validate", "testdata/topology/invalid.cue")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Invalid topology")
}

func TestValidateMissingFile(t *testing.T) {
	_, _, err := execute(t, "validate", "testdata/topology/nope.cue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
