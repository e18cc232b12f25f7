package bctx

// NodeID uniquely identifies a browsing context across the whole process
// set. Ids are allocated by the creating process; the high 32 bits carry
// the process ordinal so two processes can never mint the same id.
type NodeID uint64

// GroupID uniquely identifies a related-context group, allocated the same
// way as NodeID.
type GroupID uint64

// ProcessID names a process on the bus (e.g. "parent", "content-1").
type ProcessID string

// Role distinguishes the privileged parent process from content processes.
type Role int

const (
	// RoleParent is the single privileged process. It mirrors every
	// context, owns the subscriber tables, and runs the death protocol.
	RoleParent Role = iota + 1
	// RoleContent is a sandboxed content process. It holds contexts only
	// through Refs and learns about deaths from the parent.
	RoleContent
)

func (r Role) String() string {
	switch r {
	case RoleParent:
		return "parent"
	case RoleContent:
		return "content"
	default:
		return "unknown"
	}
}

// State is the liveness state of a Node. Transitions are monotonic toward
// StateDead; nothing leaves StateDead.
type State int

const (
	// StateActive is a context in the foreground.
	StateActive State = iota + 1
	// StateBackground is a live context not currently presented.
	StateBackground
	// StateDead is the terminal state. Dead contexts are unlinked from
	// the tree and wait only for their remaining refs (and, in the
	// parent, outstanding death acks) before reclamation.
	StateDead
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateBackground:
		return "background"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Messenger is the content-process side of the transport collaborator.
// Implementations forward to the parent over an ordered channel; all
// methods are fire-and-forget. The parent's World has no Messenger.
type Messenger interface {
	SendAttach(parentID, id NodeID, name string, group GroupID)
	SendDetach(id NodeID)
	SendUnsubscribe(groupID GroupID, epoch uint64)
}
