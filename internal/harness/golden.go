package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

// RunGolden executes a scenario file, requires a clean result, and
// compares the canonical trace against testdata/golden/<name>.golden.json.
//
// Regenerate goldens with: go test ./internal/harness -update
func RunGolden(t *testing.T, path string) *Result {
	t.Helper()

	sc, err := LoadScenario(path)
	require.NoError(t, err)

	res, err := Run(sc, Options{})
	require.NoError(t, err)
	require.Empty(t, res.Failures, "scenario %s failed", sc.Name)

	data, err := CanonicalTrace(res)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden.json"),
	)
	g.Assert(t, sc.Name, data)
	return res
}
