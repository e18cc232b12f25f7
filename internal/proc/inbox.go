package proc

import (
	"sync"

	"github.com/roach88/bctree/internal/bctx"
	"github.com/roach88/bctree/internal/ipc"
)

// event is one unit of loop work: a delivered envelope, a peer-exit
// notification, or a thunk submitted with Do.
type event struct {
	env  *ipc.Envelope
	exit bctx.ProcessID
	fn   func()
}

// inbox is the process's thread-safe FIFO work queue.
//
// Unbounded, so transports and callers never block on a busy loop; a
// buffered size-1 signal channel coalesces wakeups for the blocking Run
// loop, while the cooperative driver polls with tryPop.
type inbox struct {
	mu     sync.Mutex
	events []event
	closed bool
	signal chan struct{}
}

func newInbox() *inbox {
	return &inbox{
		events: make([]event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// push appends an event. Safe from any goroutine. Returns false if the
// inbox is closed.
func (q *inbox) push(e event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.events = append(q.events, e)
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// tryPop removes the front event without blocking.
func (q *inbox) tryPop() (event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return event{}, false
	}
	e := q.events[0]
	q.events = q.events[1:]
	return e, true
}

// wait returns a channel that fires when work may be available.
func (q *inbox) wait() <-chan struct{} {
	return q.signal
}

// len reports the queued event count.
func (q *inbox) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// close rejects further pushes; queued events remain poppable.
func (q *inbox) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
