package proc

import (
	"fmt"
	"sort"

	"github.com/roach88/bctree/internal/bctx"
	"github.com/roach88/bctree/internal/ipc"
	"github.com/roach88/bctree/internal/journal"
)

// Parent is the privileged process: it mirrors every context attached by
// content processes, owns the per-group subscriber tables, answers
// unsubscribe requests by epoch comparison, and drives the death
// protocol.
type Parent struct {
	Process

	// rounds tracks, per announced root, the killed subtree whose
	// bookkeeping the incoming death acks reclaim. Content processes ack
	// the root id only; the whole subtree died with it.
	rounds map[bctx.NodeID][]*bctx.Node
}

// NewParent creates the parent process on the bus.
func NewParent(cfg Config) *Parent {
	p := &Parent{rounds: make(map[bctx.NodeID][]*bctx.Node)}
	p.init(cfg, bctx.RoleParent, nil)
	p.dispatch = p.handleMessage
	p.peerExit = p.handlePeerExit
	return p
}

func (p *Parent) handleMessage(env ipc.Envelope) {
	switch m := env.Msg.(type) {
	case ipc.AttachBrowsingContext:
		p.applyAttach(env.From, m)
	case ipc.DetachBrowsingContext:
		p.applyDetach(env.From, m)
	case ipc.UnsubscribeGroup:
		p.applyUnsubscribe(env.From, m)
	case ipc.DeathAck:
		p.applyDeathAck(env.From, m)
	default:
		p.logger.Warn("unexpected message in parent", "kind", env.Msg.Kind(), "from", env.From)
	}
}

// applyAttach mirrors a content-side attach via GetOrCreate. An attach
// naming a parent this process no longer knows is race-induced staleness
// and is dropped.
func (p *Parent) applyAttach(from bctx.ProcessID, m ipc.AttachBrowsingContext) {
	reg := p.world.Registry()

	var parentNode *bctx.Node
	if m.ParentID != 0 {
		parentNode = reg.Get(m.ParentID)
		if parentNode == nil || parentNode.IsDead() {
			p.logger.Debug("attach for unknown or dead parent dropped",
				"node", m.ID, "parent", m.ParentID, "from", from)
			return
		}
	}

	g := p.world.EnsureGroup(m.GroupID)
	node := reg.GetOrCreateIn(m.ID, m.Name, g)
	node.Attach(parentNode)

	// The sender knows this group by construction — it created the
	// context in it — so the subscriber table must say so before any
	// share or death touches the group. The content side started at
	// epoch zero; no bump, or a later unsubscribe could never match.
	g.SubscribeImplicit(from)
}

func (p *Parent) applyDetach(from bctx.ProcessID, m ipc.DetachBrowsingContext) {
	node := p.world.Registry().Get(m.ID)
	if node == nil || node.IsDead() {
		p.logger.Debug("detach for unknown node dropped", "node", m.ID, "from", from)
		return
	}
	node.Detach()
}

// applyUnsubscribe evicts the sender from the group's subscriber table
// iff the request's epoch matches the recorded one, and always answers.
// An unknown group means everything it held is already reclaimed here, so
// the sender may free its copy too.
func (p *Parent) applyUnsubscribe(from bctx.ProcessID, m ipc.UnsubscribeGroup) {
	g := p.world.Group(m.GroupID)
	success := true
	if g != nil {
		success = g.HandleUnsubscribe(from, m.Epoch)
	}
	p.send(from, ipc.UnsubscribeAck{GroupID: m.GroupID, Success: success})
}

func (p *Parent) applyDeathAck(from bctx.ProcessID, m ipc.DeathAck) {
	if _, ok := p.rounds[m.ID]; !ok {
		p.logger.Debug("death ack for completed round dropped", "node", m.ID, "from", from)
		return
	}
	p.ackRound(m.ID, from)
}

// ackRound records pid's acknowledgement against every node that died
// with root. Once the last subscriber has answered, the whole subtree's
// bookkeeping is gone and the round is closed.
func (p *Parent) ackRound(root bctx.NodeID, pid bctx.ProcessID) {
	subtree, ok := p.rounds[root]
	if !ok {
		return
	}
	complete := true
	for _, n := range subtree {
		if !n.AckDeath(pid) {
			complete = false
		}
	}
	if complete {
		delete(p.rounds, root)
		p.recordOp(journal.Event{Kind: "death-round-complete", Node: root})
	}
}

// openRounds returns the roots of unfinished death rounds in id order.
func (p *Parent) openRounds() []bctx.NodeID {
	roots := make([]bctx.NodeID, 0, len(p.rounds))
	for id := range p.rounds {
		roots = append(roots, id)
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })
	return roots
}

// handlePeerExit treats a content process's termination as an implicit,
// immediate unsubscribe-all and as a standing death ack: no handshake
// with a dead process may stay open.
func (p *Parent) handlePeerExit(pid bctx.ProcessID) {
	p.recordOp(journal.Event{Kind: "exit", Peer: pid})
	for _, g := range p.world.Groups() {
		g.RemoveSubscriber(pid)
	}
	for _, root := range p.openRounds() {
		p.ackRound(root, pid)
	}
}

// Kill runs the parent side of a context death: the subtree dies locally,
// every subscribed content process is notified of the root, and the
// bookkeeping of every node in the subtree is reclaimed only once each
// subscriber has acknowledged. Loop context only.
func (p *Parent) Kill(node *bctx.Node) {
	subscribers := node.Group().Subscribers()
	subtree := node.Subtree()
	node.Die()
	p.recordOp(journal.Event{Kind: "die", Node: node.ID(), Group: node.Group().ID()})
	for _, pid := range subscribers {
		p.send(pid, ipc.DeathNotice{ID: node.ID()})
	}
	for _, n := range subtree {
		n.BeginDeathRound(subscribers)
	}
	if len(subscribers) > 0 {
		p.rounds[node.ID()] = subtree
	}
}

// Share sends a group and its member contexts to a content process,
// subscribing it (or bumping its epoch if already subscribed — the bump
// is what defeats an unsubscribe racing this share). Loop context only.
func (p *Parent) Share(g *bctx.Group, to bctx.ProcessID) {
	if g.IsChrome() {
		panic("proc: chrome group cannot be shared with a content process")
	}
	epoch := g.Subscribe(to)
	p.send(to, ipc.SubscribeGroup{
		GroupID:  g.ID(),
		Epoch:    epoch,
		Contexts: describeTopDown(g),
	})
}

// describeTopDown lists a group's live members parents-before-children so
// the recipient can rebuild the tree in one pass.
func describeTopDown(g *bctx.Group) []ipc.ContextDescriptor {
	members := g.Members()
	inGroup := make(map[*bctx.Node]bool, len(members))
	for _, n := range members {
		if !n.IsDead() {
			inGroup[n] = true
		}
	}

	var out []ipc.ContextDescriptor
	emitted := make(map[*bctx.Node]bool, len(members))
	for len(emitted) < len(inGroup) {
		progressed := false
		for _, n := range members {
			if !inGroup[n] || emitted[n] {
				continue
			}
			parent := n.Parent()
			if parent != nil && inGroup[parent] && !emitted[parent] {
				continue
			}
			var parentID bctx.NodeID
			if parent != nil {
				parentID = parent.ID()
			}
			out = append(out, ipc.ContextDescriptor{ID: n.ID(), ParentID: parentID, Name: n.Name()})
			emitted[n] = true
			progressed = true
		}
		if !progressed {
			panic(fmt.Sprintf("proc: group %d member tree is cyclic", g.ID()))
		}
	}
	return out
}
