package ipc

import (
	"io"
	"log/slog"
	"sync"

	"github.com/roach88/bctree/internal/bctx"
)

// Handler receives delivered envelopes. Implemented by a process inbox;
// must be safe to call from the sender's goroutine and must not block
// (enqueue, don't process).
type Handler func(Envelope)

// ExitHandler is invoked when a process is reported gone. Invoked on the
// notifier's goroutine; implementations enqueue.
type ExitHandler func(pid bctx.ProcessID)

// Bus is the in-memory transport collaborator. Each attached process
// registers a Handler; Send delivers synchronously into the destination's
// handler, so messages from one sender to one destination arrive in send
// order (the per-channel FIFO contract the epoch scheme relies on). No
// ordering is provided across different senders.
//
// Sends to a detached process are dropped: the protocol treats peer exit
// as an implicit unsubscribe, so post-exit traffic is noise by
// definition.
type Bus struct {
	mu       sync.Mutex
	handlers map[bctx.ProcessID]Handler
	onExit   map[bctx.ProcessID]ExitHandler
	observer Handler // optional tap for journaling
	logger   *slog.Logger
}

// NewBus creates an empty bus. Logger may be nil.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Bus{
		handlers: make(map[bctx.ProcessID]Handler),
		onExit:   make(map[bctx.ProcessID]ExitHandler),
		logger:   logger,
	}
}

// Attach registers a process's delivery handler.
func (b *Bus) Attach(pid bctx.ProcessID, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[pid] = h
}

// OnExit registers an exit-notification handler for pid's peers; when any
// process exits, every registered exit handler except the exiting
// process's own is invoked.
func (b *Bus) OnExit(pid bctx.ProcessID, h ExitHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onExit[pid] = h
}

// Observe installs a tap invoked for every delivered envelope, before the
// destination handler. Used by the journal.
func (b *Bus) Observe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observer = h
}

// Send routes a message. Delivery into the destination handler happens on
// the caller's goroutine; per-(from,to) ordering follows call order.
func (b *Bus) Send(from, to bctx.ProcessID, msg Message) {
	b.mu.Lock()
	h, ok := b.handlers[to]
	obs := b.observer
	b.mu.Unlock()

	env := Envelope{From: from, To: to, Msg: msg}
	if !ok {
		b.logger.Debug("dropped message to detached process", "envelope", env.String())
		return
	}
	if obs != nil {
		obs(env)
	}
	h(env)
}

// Attached reports whether pid currently has a handler.
func (b *Bus) Attached(pid bctx.ProcessID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.handlers[pid]
	return ok
}

// NotifyExit detaches pid and reports its termination to every other
// attached process. The transport owes surviving processes this signal so
// no handshake with the dead process can hang.
func (b *Bus) NotifyExit(pid bctx.ProcessID) {
	b.mu.Lock()
	delete(b.handlers, pid)
	delete(b.onExit, pid)
	var notify []ExitHandler
	for owner, h := range b.onExit {
		if owner != pid {
			notify = append(notify, h)
		}
	}
	b.mu.Unlock()

	b.logger.Debug("process exited", "pid", pid)
	for _, h := range notify {
		h(pid)
	}
}
