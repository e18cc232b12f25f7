package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(n int) *int { return &n }

func boolp(b bool) *bool { return &b }

func twoProcesses() []ProcessSpec {
	return []ProcessSpec{
		{PID: "parent", Role: "parent"},
		{PID: "web1", Role: "content"},
	}
}

func runScenario(t *testing.T, sc *Scenario) *Result {
	t.Helper()
	res, err := Run(sc, Options{})
	require.NoError(t, err)
	return res
}

// Releasing the last reference in a content process walks the whole
// unsubscribe handshake: the group is evicted locally while the parent
// keeps its copy of the tree.
func TestRunReleaseEvictsGroup(t *testing.T) {
	res := runScenario(t, &Scenario{
		Name:      "release_evicts",
		Processes: twoProcesses(),
		Steps: []Step{
			{Op: "create", Process: "web1", Node: 1, Name: "tab"},
			{Op: "release", Process: "web1", Node: 1},
		},
		Asserts: []Assertion{
			{Type: "state", Process: "parent", Node: 1, State: "active"},
			{Type: "state", Process: "web1", Node: 1, State: "absent"},
			{Type: "registry", Process: "web1", Count: intp(0)},
			{Type: "registry", Process: "parent", Count: intp(1)},
			{Type: "subscribers", Node: 1},
			{Type: "known", Process: "web1", Node: 1, Known: boolp(false)},
			{Type: "journal", Kind: "group-evicted", Count: intp(1)},
			{Type: "journal", Kind: "UnsubscribeAck", Direction: "recv", Count: intp(1)},
		},
	})
	assert.True(t, res.Pass, "failures: %v", res.Failures)
}

// A share after eviction re-subscribes at a bumped epoch and rebuilds
// the mirror from the parent's retained copy.
func TestRunReshareAfterEviction(t *testing.T) {
	res := runScenario(t, &Scenario{
		Name:      "reshare",
		Processes: twoProcesses(),
		Steps: []Step{
			{Op: "create", Process: "web1", Node: 1, Name: "tab"},
			{Op: "release", Process: "web1", Node: 1},
			{Op: "share", Node: 1, To: "web1"},
		},
		Asserts: []Assertion{
			{Type: "state", Process: "web1", Node: 1, State: "active"},
			{Type: "known", Process: "web1", Node: 1, Known: boolp(true)},
			{Type: "epoch", Node: 1, Process: "web1", Epoch: 1},
			{Type: "subscribers", Node: 1, Subscribers: []string{"web1"}},
		},
	})
	assert.True(t, res.Pass, "failures: %v", res.Failures)
}

// A content process exit is an implicit unsubscribe-all: the parent
// drops its subscription without any handshake, and the other
// subscriber is untouched.
func TestRunExitImplicitUnsubscribe(t *testing.T) {
	res := runScenario(t, &Scenario{
		Name: "exit_unsubscribes",
		Processes: []ProcessSpec{
			{PID: "parent", Role: "parent"},
			{PID: "web1", Role: "content"},
			{PID: "web2", Role: "content"},
		},
		Steps: []Step{
			{Op: "create", Process: "web1", Node: 1, Name: "tab"},
			{Op: "share", Node: 1, To: "web2"},
			{Op: "exit", Process: "web1"},
		},
		Asserts: []Assertion{
			{Type: "state", Process: "parent", Node: 1, State: "active"},
			{Type: "state", Process: "web2", Node: 1, State: "active"},
			{Type: "subscribers", Node: 1, Subscribers: []string{"web2"}},
			{Type: "journal", Kind: "exit", Count: intp(2)},
		},
	})
	assert.True(t, res.Pass, "failures: %v", res.Failures)
}

// Background is a local presentation change; nothing crosses the wire,
// so the parent's mirror stays active.
func TestRunBackgroundIsLocal(t *testing.T) {
	res := runScenario(t, &Scenario{
		Name:      "background_local",
		Processes: twoProcesses(),
		Steps: []Step{
			{Op: "create", Process: "web1", Node: 1, Name: "tab"},
			{Op: "background", Process: "web1", Node: 1},
			{Op: "setname", Process: "web1", Node: 1, Name: "renamed"},
		},
		Asserts: []Assertion{
			{Type: "state", Process: "web1", Node: 1, State: "background"},
			{Type: "state", Process: "parent", Node: 1, State: "active"},
		},
	})
	assert.True(t, res.Pass, "failures: %v", res.Failures)
}

func TestRunReportsAssertionFailures(t *testing.T) {
	res := runScenario(t, &Scenario{
		Name:      "wrong_expectation",
		Processes: twoProcesses(),
		Steps: []Step{
			{Op: "create", Process: "web1", Node: 1, Name: "tab"},
		},
		Asserts: []Assertion{
			{Type: "state", Process: "web1", Node: 1, State: "dead"},
			{Type: "registry", Process: "parent", Count: intp(7)},
		},
	})
	assert.False(t, res.Pass)
	assert.Len(t, res.Failures, 2)
}

func TestRunUnknownProcessIsAnError(t *testing.T) {
	_, err := Run(&Scenario{
		Name:      "bad_process",
		Processes: twoProcesses(),
		Steps: []Step{
			{Op: "create", Process: "gpu", Node: 1, Name: "tab"},
		},
	}, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown process")
}

func TestRunTokenDefaultsToScenarioName(t *testing.T) {
	res := runScenario(t, &Scenario{
		Name:      "token_default",
		Processes: twoProcesses(),
	})
	assert.Equal(t, "run-token_default", res.Run)
}

func TestCanonicalTraceIsStable(t *testing.T) {
	sc := &Scenario{
		Name:      "stable_trace",
		Processes: twoProcesses(),
		Steps: []Step{
			{Op: "create", Process: "web1", Node: 1, Name: "café"}, // café, decomposed
		},
	}
	a := runScenario(t, sc)
	b := runScenario(t, sc)

	ta, err := CanonicalTrace(a)
	require.NoError(t, err)
	tb, err := CanonicalTrace(b)
	require.NoError(t, err)
	assert.Equal(t, string(ta), string(tb))
	// NFC normalization composes the accent.
	assert.Contains(t, string(ta), "café")
}
