package bctx

import (
	"fmt"
	"sort"
)

// Group is a set of related browsing contexts — contexts that may
// reference one another — and the unit of cross-process subscription.
// Members hold their Group strongly; the Group tracks members without
// owning them, and a node removes itself when it is destroyed. A Group
// exists in a process only while that process knows at least one member,
// except for the parent's chrome group.
type Group struct {
	world  *World
	id     GroupID
	chrome bool

	members   map[*Node]struct{}
	liveCount int

	// Content-process state: the epoch last received from the parent,
	// and whether an unsubscribe is speculatively in flight.
	epoch       uint64
	speculative bool

	// Parent-process state: subscribed content processes and the epoch
	// each subscription was (re-)established at.
	subscribers map[ProcessID]uint64
}

// ID returns the group's unique id.
func (g *Group) ID() GroupID { return g.id }

// IsChrome reports whether this is the parent's privileged group.
func (g *Group) IsChrome() bool { return g.chrome }

// MemberCount returns the number of known member contexts.
func (g *Group) MemberCount() int {
	g.world.owner.assert("MemberCount")
	return len(g.members)
}

// Members returns the member contexts ordered by id.
func (g *Group) Members() []*Node {
	g.world.owner.assert("Members")
	out := make([]*Node, 0, len(g.members))
	for n := range g.members {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// LiveCount returns how many members currently hold a non-zero ref count.
func (g *Group) LiveCount() int {
	g.world.owner.assert("LiveCount")
	return g.liveCount
}

// Epoch returns the content-side epoch (last received from the parent).
func (g *Group) Epoch() uint64 { return g.epoch }

// Speculative reports whether an unsubscribe request is in flight and the
// group currently appears dead to most code.
func (g *Group) Speculative() bool { return g.speculative }

func (g *Group) addMember(n *Node) {
	g.members[n] = struct{}{}
}

// removeMember is called by a node as it is destroyed. An emptied group
// is dropped from the world's known-set table.
func (g *Group) removeMember(n *Node) {
	delete(g.members, n)
	if len(g.members) == 0 {
		g.world.dropGroup(g)
	}
}

// registerContextRef records a member's 0→1 ref transition. A reference
// arriving while an unsubscribe is in flight revives the group locally;
// the in-flight request resolves via the epoch rules either way.
func (g *Group) registerContextRef(n *Node) {
	g.liveCount++
	if g.speculative {
		g.speculative = false
		g.world.logger.Debug("group revived before unsubscribe resolved",
			"group", g.id, "pid", g.world.pid)
	}
}

// unregisterContextRef records a member's 1→0 ref transition while live.
func (g *Group) unregisterContextRef(n *Node) {
	g.decLive()
}

// noteMemberDied uncounts a dying member; releases of dead nodes bypass
// unregisterContextRef, so death itself must settle the live total.
func (g *Group) noteMemberDied(n *Node) {
	g.decLive()
}

func (g *Group) decLive() {
	g.liveCount--
	if g.liveCount < 0 {
		panic(fmt.Sprintf("bctx: group %d live count underflow", g.id))
	}
	if g.liveCount > 0 {
		return
	}
	// Last locally-live member is gone. A content process asks the
	// parent to let it forget the group, tagging the request with the
	// epoch it was last subscribed at, and flags itself speculative
	// until the answer arrives.
	if g.world.role == RoleContent && !g.speculative {
		if m := g.world.send(); m != nil {
			m.SendUnsubscribe(g.id, g.epoch)
			g.speculative = true
			g.world.logger.Debug("unsubscribe requested",
				"group", g.id, "epoch", g.epoch, "pid", g.world.pid)
		}
	}
}

// ApplySubscribe applies a parent-sent share in a content process: the
// group is (re-)subscribed at the given epoch and any speculative
// unsubscribe is abandoned locally (its eventual ack will miss the epoch).
func (g *Group) ApplySubscribe(epoch uint64) {
	g.world.owner.assert("ApplySubscribe")
	if g.world.role != RoleContent {
		panic("bctx: ApplySubscribe in the parent process")
	}
	g.epoch = epoch
	g.speculative = false
}

// ResolveUnsubscribe applies an UnsubscribeAck in a content process.
// On success the process forgets the group: every member (all of them
// unreferenced, or they could not have triggered the request) is
// reclaimed and the group leaves the known-set table. On failure the
// group is simply retained. A success ack landing on a group a local
// reference has since revived re-announces the group instead, since the
// parent has already dropped this process from the subscriber table.
func (g *Group) ResolveUnsubscribe(success bool) {
	g.world.owner.assert("ResolveUnsubscribe")
	if g.world.role != RoleContent {
		panic("bctx: ResolveUnsubscribe in the parent process")
	}
	if !success {
		g.speculative = false
		return
	}
	if g.liveCount > 0 {
		g.speculative = false
		g.epoch = 0
		g.world.logger.Debug("revived group re-announced after unsubscribe ack",
			"group", g.id, "pid", g.world.pid)
		// Re-attaching the live mirrored members is an idempotent no-op
		// on the parent's tree and restores this process's subscriber
		// entry at epoch zero, matching the reset above. Members that
		// were never mirrored as attached stay local.
		if m := g.world.send(); m != nil {
			for _, n := range g.Members() {
				if n.IsDead() || !n.Attached() {
					continue
				}
				var parentID NodeID
				if n.parent != nil {
					parentID = n.parent.id
				}
				m.SendAttach(parentID, n.id, n.name, g.id)
			}
		}
		return
	}
	g.speculative = false
	for _, n := range g.Members() {
		n.forceDestroy()
	}
}

// Subscribe records, in the parent, that a content process is being sent
// this group, and returns the epoch to tag the transfer with. Re-sharing
// to an already-subscribed process bumps the epoch, which is what
// invalidates any unsubscribe request that may be in flight from it.
func (g *Group) Subscribe(pid ProcessID) uint64 {
	g.world.owner.assert("Subscribe")
	g.assertParent("Subscribe")
	epoch := g.subscribers[pid] + 1
	g.subscribers[pid] = epoch
	return epoch
}

// SubscribeImplicit records a subscription learned from a content-sent
// attach rather than a parent-sent share. The content side created the
// group locally at epoch zero, so the entry starts there; re-attaches
// from a known subscriber change nothing (per-channel FIFO already
// orders them against that sender's unsubscribes).
func (g *Group) SubscribeImplicit(pid ProcessID) {
	g.world.owner.assert("SubscribeImplicit")
	g.assertParent("SubscribeImplicit")
	if _, ok := g.subscribers[pid]; !ok {
		g.subscribers[pid] = 0
	}
}

// HandleUnsubscribe processes a content-sent UnsubscribeGroup in the
// parent. The subscriber is evicted only when its recorded epoch matches
// the request; a mismatch means a newer share raced the request and the
// sender must keep its copy.
func (g *Group) HandleUnsubscribe(pid ProcessID, epoch uint64) bool {
	g.world.owner.assert("HandleUnsubscribe")
	g.assertParent("HandleUnsubscribe")
	current, ok := g.subscribers[pid]
	if !ok || current != epoch {
		g.world.logger.Debug("stale unsubscribe rejected",
			"group", g.id, "from", pid, "epoch", epoch, "current", current)
		return false
	}
	delete(g.subscribers, pid)
	return true
}

// RemoveSubscriber drops a content process from the subscriber table
// without a handshake: its process exited.
func (g *Group) RemoveSubscriber(pid ProcessID) {
	g.world.owner.assert("RemoveSubscriber")
	g.assertParent("RemoveSubscriber")
	delete(g.subscribers, pid)
}

// Subscribers returns the subscribed process ids, sorted.
func (g *Group) Subscribers() []ProcessID {
	g.world.owner.assert("Subscribers")
	g.assertParent("Subscribers")
	out := make([]ProcessID, 0, len(g.subscribers))
	for pid := range g.subscribers {
		out = append(out, pid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SubscriberEpoch returns the epoch a process is subscribed at.
func (g *Group) SubscriberEpoch(pid ProcessID) (uint64, bool) {
	g.world.owner.assert("SubscriberEpoch")
	g.assertParent("SubscriberEpoch")
	e, ok := g.subscribers[pid]
	return e, ok
}

func (g *Group) assertParent(what string) {
	if g.world.role != RoleParent {
		panic(fmt.Sprintf("bctx: %s is parent-process-only state", what))
	}
}
