package bctx

import "fmt"

// Node is one browsing context: a tree element with a stable cross-process
// id, a parent link, ordered children, a liveness state, and an owning
// Group. The zero value is not usable; nodes come from World.NewNode or
// Registry.GetOrCreate and are registered for their whole lifetime.
type Node struct {
	world *World
	id    NodeID
	name  string
	group *Group

	parent       *Node
	liveChildren []*Node
	allChildren  []*Node
	attached     bool

	state     State
	refs      int
	destroyed bool

	// Parent-process death round: content processes that still owe a
	// DeathAck, and whether the round has completed.
	pendingAcks map[ProcessID]struct{}
	deletable   bool
}

func newNode(w *World, id NodeID, name string, g *Group) *Node {
	w.checkOpen()
	n := &Node{
		world: w,
		id:    id,
		name:  name,
		group: g,
		state: StateActive,
	}
	w.registry.register(n)
	g.addMember(n)
	return n
}

// ID returns the context's immutable id.
func (n *Node) ID() NodeID { return n.id }

// Name returns the context name.
func (n *Node) Name() string { return n.name }

// SetName renames the context. Dead contexts are read-only.
func (n *Node) SetName(name string) {
	n.world.owner.assert("SetName")
	if n.IsDead() {
		panic(fmt.Sprintf("bctx: SetName on dead node %d", n.id))
	}
	n.name = name
}

// NameEquals reports whether the context name matches.
func (n *Node) NameEquals(name string) bool { return n.name == name }

// State returns the liveness state.
func (n *Node) State() State { return n.state }

// IsDead reports whether the context has reached the terminal state.
func (n *Node) IsDead() bool { return n.state == StateDead }

// MoveToBackground marks a live context as not currently presented.
// State is monotonic toward Dead, so this never resurrects a dead
// context; calling it on one panics.
func (n *Node) MoveToBackground() {
	n.world.owner.assert("MoveToBackground")
	if n.IsDead() {
		panic(fmt.Sprintf("bctx: MoveToBackground on dead node %d", n.id))
	}
	n.state = StateBackground
}

// Group returns the owning group. Stable for the node's lifetime.
func (n *Node) Group() *Group { return n.group }

// Parent returns the parent context, or nil for roots and dead contexts.
func (n *Node) Parent() *Node {
	n.world.owner.assert("Parent")
	return n.parent
}

// Children returns the live children in attach order.
func (n *Node) Children() []*Node {
	n.world.owner.assert("Children")
	out := make([]*Node, len(n.liveChildren))
	copy(out, n.liveChildren)
	return out
}

// Subtree returns this node and every descendant, parents before
// children. A death coordinator captures the subtree before killing the
// root, since death empties the child lists.
func (n *Node) Subtree() []*Node {
	n.world.owner.assert("Subtree")
	out := []*Node{n}
	for i := 0; i < len(out); i++ {
		out = append(out, out[i].allChildren...)
	}
	return out
}

// Attached reports whether the node is currently linked into a child list
// or the root list.
func (n *Node) Attached() bool { return n.attached }

// RefCount returns the current live reference count.
func (n *Node) RefCount() int { return n.refs }

// Attach links this context under parent, or into the World's root list
// when parent is nil. Attaching an already-attached context is a no-op,
// guarded by the defensive check that the registry still knows the id. In
// a content process the attach is mirrored to the parent process,
// fire-and-forget.
func (n *Node) Attach(parent *Node) {
	n.world.owner.assert("Attach")
	n.world.checkOpen()
	if n.attached {
		if !n.world.registry.Contains(n.id) {
			panic(fmt.Sprintf("bctx: attached node %d missing from registry", n.id))
		}
		return
	}
	if n.IsDead() {
		panic(fmt.Sprintf("bctx: Attach of dead node %d", n.id))
	}
	if parent != nil && parent.IsDead() {
		panic(fmt.Sprintf("bctx: Attach of node %d under dead parent %d", n.id, parent.id))
	}

	if parent == nil {
		n.world.roots = append(n.world.roots, n)
	} else {
		parent.allChildren = append(parent.allChildren, n)
		parent.liveChildren = append(parent.liveChildren, n)
	}
	n.parent = parent
	n.attached = true

	if m := n.world.send(); m != nil {
		var pid NodeID
		if parent != nil {
			pid = parent.id
		}
		m.SendAttach(pid, n.id, n.name, n.group.id)
	}
}

// Detach unlinks this context from its parent's child list (or the root
// list). Idempotent: detaching an unattached context is a no-op. A
// temporary self-ref is held for the duration so that dropping the last
// reference mid-detach cannot reclaim the node under us; releasing it may
// itself start the unsubscribe flow.
func (n *Node) Detach() {
	n.world.owner.assert("Detach")
	keepAlive := n.NewRef()
	defer keepAlive.Release()

	if !n.attached {
		return
	}
	n.unlink()
	n.parent = nil

	if m := n.world.send(); m != nil {
		m.SendDetach(n.id)
	}
}

// Die kills this context and its entire subtree. Parent-process-only; the
// content-process side of a death arrives as a DeathNotice and is applied
// with ApplyDeathNotice. Killing a dead context is a programming error.
//
// Die only transitions local state. Broadcasting the death to subscribers
// and collecting their acks is the coordinator's job (proc package),
// which follows up with BeginDeathRound.
func (n *Node) Die() {
	n.world.owner.assert("Die")
	if n.world.role != RoleParent {
		panic(fmt.Sprintf("bctx: Die on node %d in a content process", n.id))
	}
	if n.IsDead() {
		panic(fmt.Sprintf("bctx: Die on already-dead node %d", n.id))
	}
	n.kill()
}

// ApplyDeathNotice applies a parent-announced death in a content process.
// Ignores contexts that are already dead (the notice can race a local
// teardown).
func (n *Node) ApplyDeathNotice() {
	n.world.owner.assert("ApplyDeathNotice")
	if n.IsDead() {
		return
	}
	n.kill()
}

// kill detaches the whole subtree first, then marks it dead, so observers
// never see a dead node still linked into a live tree.
func (n *Node) kill() {
	n.unlink()
	n.dieInternal()
}

// unlink removes the node from its parent's child lists or the root list.
func (n *Node) unlink() {
	if !n.attached {
		return
	}
	if n.parent == nil {
		n.world.roots = removeNode(n.world.roots, n)
	} else {
		n.parent.allChildren = removeNode(n.parent.allChildren, n)
		n.parent.liveChildren = removeNode(n.parent.liveChildren, n)
	}
	n.attached = false
}

// dieInternal takes ownership of the child list, recursively kills every
// child, clears the parent link, and only then marks this node dead.
func (n *Node) dieInternal() {
	// Keep ourselves alive while we die; if this is the last reference,
	// releasing it reclaims us.
	keepAlive := n.NewRef()
	defer keepAlive.Release()

	children := n.allChildren
	n.allChildren = nil
	n.liveChildren = nil
	for _, child := range children {
		child.attached = false
		child.dieInternal()
	}

	n.parent = nil
	n.attached = false
	n.state = StateDead
	// The keep-alive guarantees this node counts toward the group's live
	// total right now (its own acquire registered it if nothing else
	// had); death uncounts it exactly once, since releases of a dead
	// node skip the unregister hook.
	n.group.noteMemberDied(n)
	n.world.logger.Debug("node died", "node", n.id, "pid", n.world.pid)
}

// BeginDeathRound records, in the parent process, the subscribers whose
// DeathAck must arrive before this node's bookkeeping may be reclaimed.
// With no subscribers the node is immediately deletable.
func (n *Node) BeginDeathRound(subscribers []ProcessID) {
	n.world.owner.assert("BeginDeathRound")
	if n.world.role != RoleParent {
		panic("bctx: BeginDeathRound in a content process")
	}
	if !n.IsDead() {
		panic(fmt.Sprintf("bctx: BeginDeathRound on live node %d", n.id))
	}
	if len(subscribers) == 0 {
		n.deletable = true
		n.maybeDestroy()
		return
	}
	n.pendingAcks = make(map[ProcessID]struct{}, len(subscribers))
	for _, pid := range subscribers {
		n.pendingAcks[pid] = struct{}{}
	}
}

// AckDeath records a DeathAck (or an exited process standing in for one).
// Returns true once the round is complete and the node became deletable.
func (n *Node) AckDeath(pid ProcessID) bool {
	n.world.owner.assert("AckDeath")
	if n.pendingAcks == nil {
		return n.deletable
	}
	delete(n.pendingAcks, pid)
	if len(n.pendingAcks) == 0 {
		n.pendingAcks = nil
		n.deletable = true
		n.maybeDestroy()
	}
	return n.deletable
}

// Deletable reports whether the parent-side death round has completed.
func (n *Node) Deletable() bool { return n.deletable }

// maybeDestroy reclaims the node once nothing keeps it: state Dead, ref
// count zero, and (in the parent) a completed death round.
func (n *Node) maybeDestroy() {
	if n.destroyed || n.refs != 0 || !n.IsDead() {
		return
	}
	if n.world.role == RoleParent && !n.deletable {
		return
	}
	n.destroy()
}

// forceDestroy reclaims unconditionally: world shutdown and group
// eviction, where the protocol has already decided the node is gone.
func (n *Node) forceDestroy() {
	if n.destroyed {
		return
	}
	n.unlink()
	n.parent = nil
	n.state = StateDead
	n.destroy()
}

func (n *Node) destroy() {
	if n.attached {
		panic(fmt.Sprintf("bctx: destroying node %d while still attached", n.id))
	}
	n.destroyed = true
	n.world.registry.unregister(n)
	n.group.removeMember(n)
	n.world.logger.Debug("node destroyed", "node", n.id, "pid", n.world.pid)
}

func removeNode(list []*Node, n *Node) []*Node {
	for i, c := range list {
		if c == n {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
