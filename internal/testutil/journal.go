package testutil

import (
	"testing"

	"github.com/roach88/bctree/internal/journal"
)

// OpenJournal opens an in-memory journal under a fixed run token and
// closes it when the test ends.
func OpenJournal(t testing.TB, run string) *journal.Journal {
	t.Helper()
	if run == "" {
		run = NewFixedTokenGenerator("").Generate()
	}
	j, err := journal.Open(":memory:", run)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() {
		if err := j.Close(); err != nil {
			t.Errorf("close journal: %v", err)
		}
	})
	return j
}
