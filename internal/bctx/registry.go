package bctx

import (
	"fmt"
	"sort"
)

// Registry is the authoritative process-local id→node table: the single
// point of truth for whether an id currently denotes a live context in
// this process. Every node construction inserts its id; every destruction
// removes it. Two live nodes with the same id can never be observed —
// duplicate registration is a fatal invariant violation.
type Registry struct {
	world  *World
	nodes  map[NodeID]*Node
	closed bool
}

func newRegistry(w *World) *Registry {
	return &Registry{world: w, nodes: make(map[NodeID]*Node)}
}

// Get returns the node for id, or nil if this process does not know it.
// Never constructs.
func (r *Registry) Get(id NodeID) *Node {
	r.world.owner.assert("Registry.Get")
	r.checkOpen()
	return r.nodes[id]
}

// GetOrCreate returns the existing node for id, or constructs a
// remote-originated node in a fresh group, registers it, and returns it.
func (r *Registry) GetOrCreate(id NodeID, name string) *Node {
	r.world.owner.assert("Registry.GetOrCreate")
	r.checkOpen()
	if n, ok := r.nodes[id]; ok {
		return n
	}
	return newNode(r.world, id, name, r.world.NewGroup())
}

// GetOrCreateIn is GetOrCreate with an explicit group, used when the
// group membership is already known (mirroring an attach under a known
// parent, or applying a share).
func (r *Registry) GetOrCreateIn(id NodeID, name string, g *Group) *Node {
	r.world.owner.assert("Registry.GetOrCreateIn")
	r.checkOpen()
	if n, ok := r.nodes[id]; ok {
		return n
	}
	return newNode(r.world, id, name, g)
}

// Nodes returns every registered node ordered by id.
func (r *Registry) Nodes() []*Node {
	r.world.owner.assert("Registry.Nodes")
	r.checkOpen()
	out := make([]*Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Len reports the number of live registered nodes.
func (r *Registry) Len() int {
	r.world.owner.assert("Registry.Len")
	return len(r.nodes)
}

// Contains reports whether id is registered.
func (r *Registry) Contains(id NodeID) bool {
	r.world.owner.assert("Registry.Contains")
	r.checkOpen()
	_, ok := r.nodes[id]
	return ok
}

func (r *Registry) register(n *Node) {
	if _, ok := r.nodes[n.id]; ok {
		panic(fmt.Sprintf("bctx: duplicate registration of node id %d", n.id))
	}
	r.nodes[n.id] = n
}

func (r *Registry) unregister(n *Node) {
	delete(r.nodes, n.id)
}

// close tears the table down at world shutdown, force-destroying anything
// still registered (dead nodes waiting out refs or acks included).
func (r *Registry) close() {
	if r.closed {
		return
	}
	for _, n := range r.nodes {
		n.forceDestroy()
	}
	r.nodes = nil
	r.closed = true
}

func (r *Registry) checkOpen() {
	if r.closed {
		panic("bctx: registry used after shutdown")
	}
}
