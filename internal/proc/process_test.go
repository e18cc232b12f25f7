package proc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bctree/internal/bctx"
	"github.com/roach88/bctree/internal/ipc"
)

func TestDoRunsOnDrain(t *testing.T) {
	parent, _, _ := newFabric(t)

	ran := false
	parent.Do(func(w *bctx.World) { ran = true })
	assert.Equal(t, 1, parent.Pending())
	assert.False(t, ran)

	assert.Equal(t, 1, parent.Drain())
	assert.True(t, ran)
	assert.Equal(t, 0, parent.Pending())
}

func TestStepHandlesOneEvent(t *testing.T) {
	parent, _, _ := newFabric(t)

	order := []int{}
	parent.Do(func(*bctx.World) { order = append(order, 1) })
	parent.Do(func(*bctx.World) { order = append(order, 2) })

	require.True(t, parent.Step())
	assert.Equal(t, []int{1}, order)
	require.True(t, parent.Step())
	assert.Equal(t, []int{1, 2}, order)
	assert.False(t, parent.Step())
}

func TestRunProcessesUntilCanceled(t *testing.T) {
	bus := ipc.NewBus(nil)
	parent := NewParent(Config{PID: "parent", Bus: bus})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- parent.Run(ctx) }()

	ran := make(chan struct{})
	parent.Do(func(*bctx.World) { close(ran) })
	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not pick up submitted work")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop on cancel")
	}
}

func TestExitClosesInbox(t *testing.T) {
	_, content, bus := newFabric(t)
	content.Exit()

	// Post-exit traffic is dropped by the bus, and the closed inbox
	// rejects stragglers that raced the detach.
	bus.Send("parent", "web1", ipc.DeathNotice{ID: 1})
	assert.Equal(t, 0, content.Pending())
}

func TestInboxFIFO(t *testing.T) {
	q := newInbox()
	q.push(event{exit: "a"})
	q.push(event{exit: "b"})

	e, ok := q.tryPop()
	require.True(t, ok)
	assert.Equal(t, bctx.ProcessID("a"), e.exit)
	e, ok = q.tryPop()
	require.True(t, ok)
	assert.Equal(t, bctx.ProcessID("b"), e.exit)
	_, ok = q.tryPop()
	assert.False(t, ok)
}

func TestInboxCloseRejectsPushKeepsQueued(t *testing.T) {
	q := newInbox()
	require.True(t, q.push(event{exit: "a"}))
	q.close()
	assert.False(t, q.push(event{exit: "b"}))

	e, ok := q.tryPop()
	require.True(t, ok)
	assert.Equal(t, bctx.ProcessID("a"), e.exit)
	assert.Equal(t, 0, q.len())
}
