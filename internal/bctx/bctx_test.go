package bctx

// Shared fixtures: worlds for both roles and a recording Messenger that
// captures outbound traffic instead of putting it on a bus.

type sentAttach struct {
	Parent NodeID
	ID     NodeID
	Name   string
	Group  GroupID
}

type sentUnsubscribe struct {
	Group GroupID
	Epoch uint64
}

type msgRecorder struct {
	attaches     []sentAttach
	detaches     []NodeID
	unsubscribes []sentUnsubscribe
}

func (m *msgRecorder) SendAttach(parentID, id NodeID, name string, group GroupID) {
	m.attaches = append(m.attaches, sentAttach{Parent: parentID, ID: id, Name: name, Group: group})
}

func (m *msgRecorder) SendDetach(id NodeID) {
	m.detaches = append(m.detaches, id)
}

func (m *msgRecorder) SendUnsubscribe(groupID GroupID, epoch uint64) {
	m.unsubscribes = append(m.unsubscribes, sentUnsubscribe{Group: groupID, Epoch: epoch})
}

func newParentWorld() *World {
	return NewWorld(WorldConfig{Role: RoleParent, PID: "parent", Ordinal: 0})
}

func newContentWorld() (*World, *msgRecorder) {
	rec := &msgRecorder{}
	w := NewWorld(WorldConfig{Role: RoleContent, PID: "web1", Ordinal: 1, Messenger: rec})
	return w, rec
}
