package bctx

import "fmt"

// Ref is an explicit live reference to a Node. Acquiring the first ref of
// a live node registers it with its group (the 0→1 transition); releasing
// the last one either starts the group's unsubscribe flow (live node) or
// lets reclamation proceed (dead node). Every Ref must be released exactly
// once; a double release is a fatal programming error.
//
// A scoped Ref with a deferred Release is the keep-alive pattern used
// throughout this package.
type Ref struct {
	node     *Node
	released bool
}

// NewRef acquires a live reference.
func (n *Node) NewRef() *Ref {
	n.world.owner.assert("NewRef")
	if n.destroyed {
		panic(fmt.Sprintf("bctx: NewRef on destroyed node %d", n.id))
	}
	n.refs++
	if n.refs == 1 && !n.IsDead() {
		n.group.registerContextRef(n)
	}
	return &Ref{node: n}
}

// Node returns the referenced node.
func (r *Ref) Node() *Node { return r.node }

// Release drops the reference. On the 1→0 transition of a live node the
// group is told (which may send UnsubscribeGroup); on a dead node it may
// complete reclamation.
func (r *Ref) Release() {
	n := r.node
	n.world.owner.assert("Ref.Release")
	if r.released {
		panic(fmt.Sprintf("bctx: double release of ref on node %d", n.id))
	}
	r.released = true
	if n.destroyed {
		return
	}
	if n.refs <= 0 {
		panic(fmt.Sprintf("bctx: refcount underflow on node %d", n.id))
	}
	n.refs--
	if n.refs > 0 {
		return
	}
	if n.IsDead() {
		n.maybeDestroy()
		return
	}
	n.group.unregisterContextRef(n)
}
