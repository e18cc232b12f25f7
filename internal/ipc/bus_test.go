package ipc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bctree/internal/bctx"
)

func TestSendDeliversInOrder(t *testing.T) {
	bus := NewBus(nil)
	var got []Envelope
	bus.Attach("parent", func(env Envelope) { got = append(got, env) })

	bus.Send("web1", "parent", AttachBrowsingContext{ID: 1, Name: "root"})
	bus.Send("web1", "parent", DetachBrowsingContext{ID: 1})
	bus.Send("web1", "parent", UnsubscribeGroup{GroupID: 9, Epoch: 2})

	require.Len(t, got, 3)
	assert.Equal(t, "AttachBrowsingContext", got[0].Msg.Kind())
	assert.Equal(t, "DetachBrowsingContext", got[1].Msg.Kind())
	assert.Equal(t, "UnsubscribeGroup", got[2].Msg.Kind())
	assert.Equal(t, bctx.ProcessID("web1"), got[0].From)
	assert.Equal(t, bctx.ProcessID("parent"), got[0].To)
}

func TestSendToDetachedProcessIsDropped(t *testing.T) {
	bus := NewBus(nil)
	assert.NotPanics(t, func() {
		bus.Send("parent", "web9", DeathNotice{ID: 1})
	})
}

func TestObserverSeesEveryDelivery(t *testing.T) {
	bus := NewBus(nil)
	var order []string
	bus.Attach("parent", func(env Envelope) { order = append(order, "handler") })
	bus.Observe(func(env Envelope) { order = append(order, "observer") })

	bus.Send("web1", "parent", DeathAck{ID: 1})
	assert.Equal(t, []string{"observer", "handler"}, order)
}

func TestObserverSkipsDroppedSends(t *testing.T) {
	bus := NewBus(nil)
	observed := 0
	bus.Observe(func(Envelope) { observed++ })
	bus.Send("parent", "web9", DeathNotice{ID: 1})
	assert.Equal(t, 0, observed)
}

func TestNotifyExitDetachesAndFansOut(t *testing.T) {
	bus := NewBus(nil)
	bus.Attach("parent", func(Envelope) {})
	bus.Attach("web1", func(Envelope) {})
	bus.Attach("web2", func(Envelope) {})

	var parentSaw, web2Saw []bctx.ProcessID
	bus.OnExit("parent", func(pid bctx.ProcessID) { parentSaw = append(parentSaw, pid) })
	bus.OnExit("web1", func(pid bctx.ProcessID) { t.Fatalf("exiting process notified of its own exit") })
	bus.OnExit("web2", func(pid bctx.ProcessID) { web2Saw = append(web2Saw, pid) })

	require.True(t, bus.Attached("web1"))
	bus.NotifyExit("web1")

	assert.False(t, bus.Attached("web1"))
	assert.Equal(t, []bctx.ProcessID{"web1"}, parentSaw)
	assert.Equal(t, []bctx.ProcessID{"web1"}, web2Saw)
}

func TestEnvelopeString(t *testing.T) {
	env := Envelope{From: "web1", To: "parent", Msg: SubscribeGroup{GroupID: 5, Epoch: 1}}
	assert.Equal(t, "web1→parent SubscribeGroup", env.String())
}
