package bctx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefFirstAcquireRegistersWithGroup(t *testing.T) {
	w := newParentWorld()
	n := w.NewNode("tab", nil)
	n.Attach(nil)
	g := n.Group()

	assert.Equal(t, 0, g.LiveCount())
	r1 := n.NewRef()
	assert.Equal(t, 1, n.RefCount())
	assert.Equal(t, 1, g.LiveCount())

	// Second acquire is not a transition.
	r2 := n.NewRef()
	assert.Equal(t, 2, n.RefCount())
	assert.Equal(t, 1, g.LiveCount())

	r2.Release()
	assert.Equal(t, 1, g.LiveCount())
	r1.Release()
	assert.Equal(t, 0, g.LiveCount())
}

func TestRefDoubleReleasePanics(t *testing.T) {
	w := newParentWorld()
	n := w.NewNode("tab", nil)
	n.Attach(nil)
	r := n.NewRef()
	r.Release()
	assert.Panics(t, func() { r.Release() })
}

func TestRefReleaseAfterDestroyIsSafe(t *testing.T) {
	w := newParentWorld()
	n := w.NewNode("tab", nil)
	n.Attach(nil)
	r := n.NewRef()
	n.Die()
	n.BeginDeathRound(nil)
	require.True(t, w.Registry().Contains(n.ID()))

	// The last release completes reclamation.
	r.Release()
	assert.False(t, w.Registry().Contains(n.ID()))
}

func TestRefOnDestroyedNodePanics(t *testing.T) {
	w := newParentWorld()
	n := w.NewNode("tab", nil)
	n.Attach(nil)
	n.Die()
	n.BeginDeathRound(nil)
	assert.Panics(t, func() { n.NewRef() })
}

func TestLastReleaseRequestsUnsubscribe(t *testing.T) {
	w, rec := newContentWorld()
	n := w.NewNode("tab", nil)
	n.Attach(nil)
	g := n.Group()
	r := n.NewRef()

	r.Release()
	require.Len(t, rec.unsubscribes, 1)
	assert.Equal(t, g.ID(), rec.unsubscribes[0].Group)
	assert.Equal(t, uint64(0), rec.unsubscribes[0].Epoch)
	assert.True(t, g.Speculative())
}

func TestUnsubscribeRequestedOnlyOnce(t *testing.T) {
	w, rec := newContentWorld()
	n := w.NewNode("a", nil)
	n.Attach(nil)
	m := w.NewNode("b", n.Group())
	m.Attach(n)

	rn := n.NewRef()
	rm := m.NewRef()
	rn.Release()
	rm.Release()
	// Group live count only reaches zero once.
	assert.Len(t, rec.unsubscribes, 1)
}

func TestNewRefRevivesSpeculativeGroup(t *testing.T) {
	w, rec := newContentWorld()
	n := w.NewNode("tab", nil)
	n.Attach(nil)
	g := n.Group()

	n.NewRef().Release()
	require.True(t, g.Speculative())

	r := n.NewRef()
	defer r.Release()
	assert.False(t, g.Speculative())
	assert.Len(t, rec.unsubscribes, 1)
}
