package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bctree/internal/journal"
)

var _ journal.TokenGenerator = (*FixedTokenGenerator)(nil)

func TestFixedTokenGenerator(t *testing.T) {
	gen := NewFixedTokenGenerator("run-abc")
	assert.Equal(t, "run-abc", gen.Generate())
	assert.Equal(t, "run-abc", gen.Generate())
	assert.Equal(t, "run-test", NewFixedTokenGenerator("").Generate())
}

func TestOpenJournalUsesRunToken(t *testing.T) {
	j := OpenJournal(t, "run-x")
	require.NoError(t, j.Append(context.Background(), journal.Event{
		PID: "parent", Direction: journal.DirOp, Kind: "die", Node: 1,
	}))
	events, err := j.List(context.Background(), journal.Filter{Run: "run-x"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "run-x", events[0].Run)
}

func TestLoggerWritesThroughTest(t *testing.T) {
	logger := Logger(t)
	logger.Debug("visible only on failure", "key", "value")
}
