// Package ipc defines the logical wire messages of the browsing-context
// lifetime protocol and an in-memory Bus implementing the transport
// contract those messages assume: reliable, ordered, per-channel delivery
// between the parent process and each named content process, plus
// process-exit notification. Wire encoding is out of scope; messages move
// as typed values.
package ipc

import (
	"fmt"

	"github.com/roach88/bctree/internal/bctx"
)

// Message is one protocol message. Implementations are plain structs;
// Kind identifies the message for dispatch and journaling.
type Message interface {
	Kind() string
}

// AttachBrowsingContext mirrors a content-side attach to the parent.
// ParentID 0 attaches at the root. GroupID identifies the owning group:
// group identity always travels with a context, so both sides keep the
// same subscription bookkeeping. Fire-and-forget.
type AttachBrowsingContext struct {
	ParentID bctx.NodeID
	ID       bctx.NodeID
	Name     string
	GroupID  bctx.GroupID
}

func (AttachBrowsingContext) Kind() string { return "AttachBrowsingContext" }

// DetachBrowsingContext mirrors a content-side detach to the parent.
// Fire-and-forget.
type DetachBrowsingContext struct {
	ID bctx.NodeID
}

func (DetachBrowsingContext) Kind() string { return "DetachBrowsingContext" }

// ContextDescriptor describes one shared context inside a SubscribeGroup.
// Descriptors are listed top-down so a parent always precedes its
// children.
type ContextDescriptor struct {
	ID       bctx.NodeID
	ParentID bctx.NodeID
	Name     string
}

// SubscribeGroup shares a group and the listed member contexts with a
// content process. Carries the epoch the parent recorded for this
// subscriber; the recipient must echo it in any later UnsubscribeGroup.
type SubscribeGroup struct {
	GroupID  bctx.GroupID
	Epoch    uint64
	Contexts []ContextDescriptor
}

func (SubscribeGroup) Kind() string { return "SubscribeGroup" }

// UnsubscribeGroup asks the parent to drop the sender from a group's
// subscriber table. Answered with UnsubscribeAck.
type UnsubscribeGroup struct {
	GroupID bctx.GroupID
	Epoch   uint64
}

func (UnsubscribeGroup) Kind() string { return "UnsubscribeGroup" }

// UnsubscribeAck answers an UnsubscribeGroup. Success false means the
// epoch was stale (a newer share raced the request) and the sender must
// retain its copy of the group.
type UnsubscribeAck struct {
	GroupID bctx.GroupID
	Success bool
}

func (UnsubscribeAck) Kind() string { return "UnsubscribeAck" }

// DeathNotice announces a context death to a subscribed content process.
// Must be answered with DeathAck before the parent reclaims the context's
// bookkeeping for that process.
type DeathNotice struct {
	ID bctx.NodeID
}

func (DeathNotice) Kind() string { return "DeathNotice" }

// DeathAck acknowledges a DeathNotice.
type DeathAck struct {
	ID bctx.NodeID
}

func (DeathAck) Kind() string { return "DeathAck" }

// Envelope is a routed message.
type Envelope struct {
	From bctx.ProcessID
	To   bctx.ProcessID
	Msg  Message
}

func (e Envelope) String() string {
	return fmt.Sprintf("%s→%s %s", e.From, e.To, e.Msg.Kind())
}
