// Package proc runs the lifecycle protocol: each Process is a
// single-writer event loop owning one bctx.World, wired to its peers
// through an ipc.Bus. The Parent mirrors the context tree, owns the
// subscription epochs, and runs the death protocol; Content processes
// drive attaches and hold contexts through refs.
//
// All World mutations happen on the loop. External callers submit work
// with Do; the bus delivers into the inbox. The loop can run blocking
// (Run) or be driven cooperatively (Step/Drain), which is how the harness
// gets deterministic interleavings.
package proc

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/bctree/internal/bctx"
	"github.com/roach88/bctree/internal/ipc"
	"github.com/roach88/bctree/internal/journal"
)

// Process is the common loop machinery shared by Parent and Content.
type Process struct {
	pid     bctx.ProcessID
	world   *bctx.World
	bus     *ipc.Bus
	inbox   *inbox
	logger  *slog.Logger
	journal *journal.Journal // optional

	dispatch func(ipc.Envelope)
	peerExit func(bctx.ProcessID)
}

// Config configures a Process.
type Config struct {
	PID bctx.ProcessID
	// Ordinal partitions the NodeID/GroupID space; unique per process.
	Ordinal uint64
	Bus     *ipc.Bus
	// Journal, when set, records received messages and notable
	// operations. May be shared across processes.
	Journal *journal.Journal
	Logger  *slog.Logger
}

func (c *Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (p *Process) init(cfg Config, role bctx.Role, messenger bctx.Messenger) {
	p.pid = cfg.PID
	p.bus = cfg.Bus
	p.inbox = newInbox()
	p.logger = cfg.logger().With("pid", string(cfg.PID))
	p.journal = cfg.Journal
	p.world = bctx.NewWorld(bctx.WorldConfig{
		Role:      role,
		PID:       cfg.PID,
		Ordinal:   cfg.Ordinal,
		Messenger: messenger,
		Logger:    p.logger,
	})
	p.bus.Attach(p.pid, p.deliver)
	p.bus.OnExit(p.pid, p.deliverExit)
}

// PID returns the process id.
func (p *Process) PID() bctx.ProcessID { return p.pid }

// World returns the process's lifecycle state. Only touch it from the
// loop (inside Do, or between cooperative steps on the driving
// goroutine).
func (p *Process) World() *bctx.World { return p.world }

// Do submits fn to run on the loop.
func (p *Process) Do(fn func(w *bctx.World)) {
	p.inbox.push(event{fn: func() { fn(p.world) }})
}

// deliver is the bus handler; it only enqueues.
func (p *Process) deliver(env ipc.Envelope) {
	p.inbox.push(event{env: &env})
}

func (p *Process) deliverExit(pid bctx.ProcessID) {
	p.inbox.push(event{exit: pid})
}

// Step processes one queued event. Reports whether there was any. Must be
// called from the goroutine that owns the World.
func (p *Process) Step() bool {
	e, ok := p.inbox.tryPop()
	if !ok {
		return false
	}
	p.handle(e)
	return true
}

// Drain processes queued events until the inbox is empty, returning the
// number handled.
func (p *Process) Drain() int {
	n := 0
	for p.Step() {
		n++
	}
	return n
}

// Pending reports the queued event count.
func (p *Process) Pending() int { return p.inbox.len() }

// Run binds the World to the calling goroutine and processes events until
// the context is canceled. Exactly one goroutine may run the loop.
func (p *Process) Run(ctx context.Context) error {
	p.world.Bind()
	for {
		for p.Step() {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.inbox.wait():
		}
	}
}

func (p *Process) handle(e event) {
	switch {
	case e.fn != nil:
		e.fn()
	case e.exit != "":
		if p.peerExit != nil {
			p.peerExit(e.exit)
		}
	case e.env != nil:
		p.recordMessage(journal.DirRecv, *e.env)
		p.dispatch(*e.env)
	}
}

// send routes a message to a peer, journaling the send.
func (p *Process) send(to bctx.ProcessID, msg ipc.Message) {
	p.recordMessage(journal.DirSend, ipc.Envelope{From: p.pid, To: to, Msg: msg})
	p.bus.Send(p.pid, to, msg)
}

// Exit detaches this process from the bus, notifying peers, and shuts its
// world down. Models a content process terminating (cleanly or not: the
// protocol makes no distinction; peers see only the exit).
func (p *Process) Exit() {
	p.inbox.close()
	p.bus.NotifyExit(p.pid)
	p.recordOp(journal.Event{Kind: "exit", Peer: p.pid})
	p.world.Shutdown()
}

func (p *Process) recordMessage(direction string, env ipc.Envelope) {
	if p.journal == nil {
		return
	}
	e := journal.Event{PID: p.pid, Direction: direction, Kind: env.Msg.Kind()}
	if direction == journal.DirSend {
		e.Peer = env.To
	} else {
		e.Peer = env.From
	}
	switch m := env.Msg.(type) {
	case ipc.AttachBrowsingContext:
		e.Node, e.Name, e.Group = m.ID, m.Name, m.GroupID
	case ipc.DetachBrowsingContext:
		e.Node = m.ID
	case ipc.SubscribeGroup:
		e.Group, e.Epoch = m.GroupID, m.Epoch
		e.Detail = fmt.Sprintf("contexts=%d", len(m.Contexts))
	case ipc.UnsubscribeGroup:
		e.Group, e.Epoch = m.GroupID, m.Epoch
	case ipc.UnsubscribeAck:
		e.Group = m.GroupID
		e.Detail = fmt.Sprintf("success=%t", m.Success)
	case ipc.DeathNotice:
		e.Node = m.ID
	case ipc.DeathAck:
		e.Node = m.ID
	}
	p.recordOp(e)
}

func (p *Process) recordOp(e journal.Event) {
	if p.journal == nil {
		return
	}
	e.PID = p.pid
	if e.Direction == "" {
		e.Direction = journal.DirOp
	}
	if err := p.journal.Append(context.Background(), e); err != nil {
		p.logger.Warn("journal append failed", "err", err)
	}
}
