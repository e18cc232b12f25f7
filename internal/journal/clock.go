package journal

import "sync/atomic"

// Clock is the monotonic logical clock stamping journal events. Every
// event carries a strictly increasing seq, so a recorded run has a total
// order independent of wall time and goroutine interleaving of the
// recording calls themselves.
//
// Safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming from a known position, e.g. when
// appending to an existing journal.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the latest issued sequence number.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
