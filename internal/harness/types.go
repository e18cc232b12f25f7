package harness

import (
	"fmt"

	"github.com/roach88/bctree/internal/journal"
)

// Result is the outcome of one scenario run.
type Result struct {
	// Scenario is the scenario name.
	Scenario string `json:"scenario"`

	// Run is the journal run token the scenario recorded under.
	Run string `json:"run"`

	// Pass is true when every assertion held and the invariant sweep
	// was clean.
	Pass bool `json:"pass"`

	// Failures holds assertion and invariant messages. Empty when Pass.
	Failures []string `json:"failures,omitempty"`

	// Events is the full journal trace for the run, in sequence order.
	Events []journal.Event `json:"-"`
}

func newResult(scenario, run string) *Result {
	return &Result{Scenario: scenario, Run: run, Pass: true}
}

func (r *Result) failf(format string, args ...any) {
	r.Pass = false
	r.Failures = append(r.Failures, fmt.Sprintf(format, args...))
}
