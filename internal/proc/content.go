package proc

import (
	"github.com/roach88/bctree/internal/bctx"
	"github.com/roach88/bctree/internal/ipc"
	"github.com/roach88/bctree/internal/journal"
)

// Content is a content process: it creates and attaches contexts
// (mirrored to the parent), holds them through refs, applies parent-sent
// shares and death notices, and runs the unsubscribe handshake when a
// group goes locally idle.
type Content struct {
	Process
	parent bctx.ProcessID
}

// ContentConfig configures a content process.
type ContentConfig struct {
	Config
	// ParentPID names the parent process on the bus.
	ParentPID bctx.ProcessID
}

// NewContent creates a content process on the bus.
func NewContent(cfg ContentConfig) *Content {
	c := &Content{parent: cfg.ParentPID}
	c.init(cfg.Config, bctx.RoleContent, (*contentMessenger)(c))
	c.dispatch = c.handleMessage
	c.peerExit = c.handlePeerExit
	return c
}

func (c *Content) handleMessage(env ipc.Envelope) {
	switch m := env.Msg.(type) {
	case ipc.SubscribeGroup:
		c.applySubscribe(m)
	case ipc.UnsubscribeAck:
		c.applyUnsubscribeAck(m)
	case ipc.DeathNotice:
		c.applyDeathNotice(m)
	default:
		c.logger.Warn("unexpected message in content", "kind", env.Msg.Kind(), "from", env.From)
	}
}

// applySubscribe installs a parent-sent group share: the group is
// (re-)subscribed at the carried epoch and the listed contexts are
// mirrored into the local tree. Applied muted — mirroring must not echo
// attach traffic back to the parent.
func (c *Content) applySubscribe(m ipc.SubscribeGroup) {
	c.world.ApplyRemote(func() {
		g := c.world.EnsureGroup(m.GroupID)
		g.ApplySubscribe(m.Epoch)
		reg := c.world.Registry()
		for _, d := range m.Contexts {
			var parent *bctx.Node
			if d.ParentID != 0 {
				parent = reg.Get(d.ParentID)
			}
			node := reg.GetOrCreateIn(d.ID, d.Name, g)
			node.Attach(parent)
		}
	})
}

func (c *Content) applyUnsubscribeAck(m ipc.UnsubscribeAck) {
	g := c.world.Group(m.GroupID)
	if g == nil {
		c.logger.Debug("unsubscribe ack for forgotten group dropped", "group", m.GroupID)
		return
	}
	g.ResolveUnsubscribe(m.Success)
	if m.Success {
		c.recordOp(journal.Event{Kind: "group-evicted", Group: m.GroupID})
	}
}

// applyDeathNotice kills the local copy of the subtree and acknowledges.
// The ack goes back even for an unknown id, so the parent's death round
// can never hang on a context this process already forgot.
func (c *Content) applyDeathNotice(m ipc.DeathNotice) {
	if node := c.world.Registry().Get(m.ID); node != nil {
		node.ApplyDeathNotice()
	}
	c.send(c.parent, ipc.DeathAck{ID: m.ID})
}

func (c *Content) handlePeerExit(pid bctx.ProcessID) {
	// Only the parent matters to a content process; without it there is
	// no one to coordinate with.
	if pid == c.parent {
		c.logger.Warn("parent process exited")
	}
}

// contentMessenger implements bctx.Messenger by routing to the parent.
// Defined as a distinct type so World holds the narrow interface rather
// than the whole process.
type contentMessenger Content

func (m *contentMessenger) SendAttach(parentID, id bctx.NodeID, name string, group bctx.GroupID) {
	(*Content)(m).send(m.parent, ipc.AttachBrowsingContext{ParentID: parentID, ID: id, Name: name, GroupID: group})
}

func (m *contentMessenger) SendDetach(id bctx.NodeID) {
	(*Content)(m).send(m.parent, ipc.DetachBrowsingContext{ID: id})
}

func (m *contentMessenger) SendUnsubscribe(groupID bctx.GroupID, epoch uint64) {
	(*Content)(m).send(m.parent, ipc.UnsubscribeGroup{GroupID: groupID, Epoch: epoch})
}
