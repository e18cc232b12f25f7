package bctx

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
)

// World is the complete lifecycle state of one process: its registry, the
// groups it knows about, and its root context list. A process creates
// exactly one World at startup and shuts it down at exit; there is no lazy
// recreation after Shutdown.
type World struct {
	role      Role
	pid       ProcessID
	ordinal   uint64
	logger    *slog.Logger
	messenger Messenger

	owner    ownership
	registry *Registry
	groups   map[GroupID]*Group
	chrome   *Group
	roots    []*Node

	nextNode  uint64
	nextGroup uint64

	// muted suppresses outbound messages while a parent-originated
	// update is being applied, so mirroring never echoes.
	muted bool

	shutdown bool
}

// WorldConfig configures a World.
type WorldConfig struct {
	Role Role
	PID  ProcessID
	// Ordinal partitions the id space. Must be unique across the process
	// set; by convention the parent is 0.
	Ordinal uint64
	// Messenger is required for content worlds and must be nil for the
	// parent.
	Messenger Messenger
	// Logger defaults to a discard logger.
	Logger *slog.Logger
}

// NewWorld creates the process-local lifecycle state. The calling
// goroutine becomes the owner; a process loop may rebind with Bind.
func NewWorld(cfg WorldConfig) *World {
	if cfg.Role == RoleParent && cfg.Messenger != nil {
		panic("bctx: parent world must not have a messenger")
	}
	if cfg.Role != RoleParent && cfg.Role != RoleContent {
		panic(fmt.Sprintf("bctx: invalid role %d", cfg.Role))
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	w := &World{
		role:      cfg.Role,
		pid:       cfg.PID,
		ordinal:   cfg.Ordinal,
		logger:    logger,
		messenger: cfg.Messenger,
		groups:    make(map[GroupID]*Group),
	}
	w.registry = newRegistry(w)
	w.owner.bind()
	return w
}

// Bind transfers ownership of the World to the calling goroutine. Called
// once by the process loop before it starts dispatching.
func (w *World) Bind() { w.owner.bind() }

// Role returns the process role.
func (w *World) Role() Role { return w.role }

// PID returns the process id this World belongs to.
func (w *World) PID() ProcessID { return w.pid }

// Logger returns the World's logger.
func (w *World) Logger() *slog.Logger { return w.logger }

// Registry returns the id registry.
func (w *World) Registry() *Registry {
	w.owner.assert("Registry")
	return w.registry
}

// Roots returns the current root contexts in attach order.
func (w *World) Roots() []*Node {
	w.owner.assert("Roots")
	out := make([]*Node, len(w.roots))
	copy(out, w.roots)
	return out
}

// Groups returns every group this process knows, ordered by id.
func (w *World) Groups() []*Group {
	w.owner.assert("Groups")
	out := make([]*Group, 0, len(w.groups))
	for _, g := range w.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Group returns a known group, or nil.
func (w *World) Group(id GroupID) *Group {
	w.owner.assert("Group")
	return w.groups[id]
}

// ChromeGroup returns the singleton group for privileged contexts, lazily
// created. It exists only in the parent process; calling this from a
// content world is a fatal programming error.
func (w *World) ChromeGroup() *Group {
	w.owner.assert("ChromeGroup")
	if w.role != RoleParent {
		panic("bctx: chrome group requested in a content process")
	}
	if w.chrome == nil {
		w.chrome = w.newGroup(w.allocGroupID())
		w.chrome.chrome = true
	}
	return w.chrome
}

// EnsureGroup returns the group with the given id, creating and
// registering it if this process had no prior knowledge of it. Used when
// a group arrives over the wire.
func (w *World) EnsureGroup(id GroupID) *Group {
	w.owner.assert("EnsureGroup")
	if g, ok := w.groups[id]; ok {
		return g
	}
	return w.newGroup(id)
}

// NewGroup creates a fresh locally-originated group.
func (w *World) NewGroup() *Group {
	w.owner.assert("NewGroup")
	return w.newGroup(w.allocGroupID())
}

func (w *World) newGroup(id GroupID) *Group {
	w.checkOpen()
	if _, ok := w.groups[id]; ok {
		panic(fmt.Sprintf("bctx: duplicate group id %d", id))
	}
	g := &Group{
		world:       w,
		id:          id,
		members:     make(map[*Node]struct{}),
		subscribers: make(map[ProcessID]uint64),
	}
	w.groups[id] = g
	return g
}

// dropGroup removes a group from the known-set table. Called when the
// member set empties, or when a successful unsubscribe evicts it.
func (w *World) dropGroup(g *Group) {
	if _, ok := w.groups[g.id]; !ok {
		return
	}
	delete(w.groups, g.id)
	if w.chrome == g {
		w.chrome = nil
	}
	w.logger.Debug("group dropped", "group", g.id, "pid", w.pid)
}

// NewNode constructs a locally-originated context in the given group (a
// fresh group if nil), registers it, and returns it unattached. The
// caller links it into the tree with Attach.
func (w *World) NewNode(name string, g *Group) *Node {
	w.owner.assert("NewNode")
	w.checkOpen()
	if g == nil {
		g = w.NewGroup()
	}
	return newNode(w, w.allocNodeID(), name, g)
}

// allocNodeID mints a process-unique id: process ordinal in the high 32
// bits, a local counter below.
func (w *World) allocNodeID() NodeID {
	w.nextNode++
	return NodeID(w.ordinal<<32 | w.nextNode)
}

func (w *World) allocGroupID() GroupID {
	w.nextGroup++
	return GroupID(w.ordinal<<32 | w.nextGroup)
}

// ApplyRemote runs fn with outbound messaging muted. Parent-originated
// updates (shares, mirrored attaches) are applied under this so the
// mirror never echoes attach/detach traffic back.
func (w *World) ApplyRemote(fn func()) {
	w.owner.assert("ApplyRemote")
	prev := w.muted
	w.muted = true
	defer func() { w.muted = prev }()
	fn()
}

// send returns the messenger, or nil when this world should stay quiet
// (parent role, muted apply, or no transport wired up in tests).
func (w *World) send() Messenger {
	if w.role != RoleContent || w.muted {
		return nil
	}
	return w.messenger
}

// Shutdown tears the World down deterministically: remaining roots are
// force-killed (subtree death with no wire traffic), then the registry
// closes. Any later registry access panics rather than reporting a
// missing node.
func (w *World) Shutdown() {
	w.owner.assert("Shutdown")
	if w.shutdown {
		return
	}
	w.ApplyRemote(func() {
		for len(w.roots) > 0 {
			root := w.roots[0]
			if !root.IsDead() {
				root.kill()
			}
			root.forceDestroy()
		}
	})
	w.registry.close()
	w.shutdown = true
	w.logger.Debug("world shut down", "pid", w.pid)
}

func (w *World) checkOpen() {
	if w.shutdown {
		panic("bctx: world used after Shutdown")
	}
}
