package bctx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorldParentMustNotHaveMessenger(t *testing.T) {
	assert.PanicsWithValue(t, "bctx: parent world must not have a messenger", func() {
		NewWorld(WorldConfig{Role: RoleParent, PID: "parent", Messenger: &msgRecorder{}})
	})
}

func TestNewWorldRejectsInvalidRole(t *testing.T) {
	assert.Panics(t, func() {
		NewWorld(WorldConfig{Role: 0, PID: "parent"})
	})
}

func TestIDAllocationCarriesOrdinal(t *testing.T) {
	w, _ := newContentWorld()
	n1 := w.NewNode("a", nil)
	n2 := w.NewNode("b", nil)
	assert.Equal(t, NodeID(1<<32|1), n1.ID())
	assert.Equal(t, NodeID(1<<32|2), n2.ID())
	assert.Equal(t, GroupID(1<<32|1), n1.Group().ID())
	assert.Equal(t, GroupID(1<<32|2), n2.Group().ID())
}

func TestParentOrdinalZero(t *testing.T) {
	w := newParentWorld()
	n := w.NewNode("root", nil)
	assert.Equal(t, NodeID(1), n.ID())
}

func TestChromeGroupIsSingleton(t *testing.T) {
	w := newParentWorld()
	chrome := w.ChromeGroup()
	require.NotNil(t, chrome)
	assert.True(t, chrome.IsChrome())
	assert.Same(t, chrome, w.ChromeGroup())
}

func TestChromeGroupContentPanics(t *testing.T) {
	w, _ := newContentWorld()
	assert.PanicsWithValue(t, "bctx: chrome group requested in a content process", func() {
		w.ChromeGroup()
	})
}

func TestEnsureGroupIsIdempotent(t *testing.T) {
	w := newParentWorld()
	g := w.EnsureGroup(GroupID(42))
	assert.Same(t, g, w.EnsureGroup(GroupID(42)))
	assert.Same(t, g, w.Group(GroupID(42)))
}

func TestGroupUnknownReturnsNil(t *testing.T) {
	w := newParentWorld()
	assert.Nil(t, w.Group(GroupID(99)))
}

func TestGroupsOrderedByID(t *testing.T) {
	w := newParentWorld()
	w.EnsureGroup(GroupID(30))
	w.EnsureGroup(GroupID(10))
	w.EnsureGroup(GroupID(20))
	groups := w.Groups()
	require.Len(t, groups, 3)
	assert.Equal(t, GroupID(10), groups[0].ID())
	assert.Equal(t, GroupID(20), groups[1].ID())
	assert.Equal(t, GroupID(30), groups[2].ID())
}

func TestApplyRemoteMutesMirroring(t *testing.T) {
	w, rec := newContentWorld()
	w.ApplyRemote(func() {
		n := w.NewNode("mirrored", nil)
		n.Attach(nil)
	})
	assert.Empty(t, rec.attaches)

	n := w.NewNode("local", nil)
	n.Attach(nil)
	require.Len(t, rec.attaches, 1)
	assert.Equal(t, "local", rec.attaches[0].Name)
}

func TestShutdownForceKillsRemainingRoots(t *testing.T) {
	w, rec := newContentWorld()
	root := w.NewNode("root", nil)
	root.Attach(nil)
	child := w.NewNode("child", root.Group())
	child.Attach(root)
	rec.attaches = nil

	w.Shutdown()

	// Teardown is local: no detach or unsubscribe traffic is emitted.
	assert.Empty(t, rec.detaches)
	assert.Empty(t, rec.unsubscribes)
	assert.Panics(t, func() { w.Registry().Get(root.ID()) })

	// Idempotent.
	w.Shutdown()
}

func TestWorldUseAfterShutdownPanics(t *testing.T) {
	w := newParentWorld()
	w.Shutdown()
	assert.PanicsWithValue(t, "bctx: world used after Shutdown", func() {
		w.NewNode("late", nil)
	})
}

func TestOwnershipAssertsOnForeignGoroutine(t *testing.T) {
	w := newParentWorld()
	panicked := make(chan any, 1)
	go func() {
		defer func() { panicked <- recover() }()
		w.Roots()
	}()
	assert.NotNil(t, <-panicked)
}

func TestBindTransfersOwnership(t *testing.T) {
	done := make(chan *World, 1)
	go func() {
		w := NewWorld(WorldConfig{Role: RoleParent, PID: "parent"})
		done <- w
	}()
	w := <-done
	w.Bind()
	assert.Empty(t, w.Roots())
}
