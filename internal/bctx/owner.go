package bctx

import (
	"bytes"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
)

// ownership tracks which goroutine is allowed to mutate a World:
// cross-goroutine access to tree or registry state is a programming
// error, caught by an assert rather than hidden behind a lock.
type ownership struct {
	gid atomic.Uint64
}

// bind makes the calling goroutine the owner. Called at World construction
// and again by a process loop when it takes over.
func (o *ownership) bind() {
	o.gid.Store(currentGID())
}

// assert panics if the calling goroutine is not the owner.
func (o *ownership) assert(what string) {
	owner := o.gid.Load()
	if cur := currentGID(); owner != cur {
		panic(fmt.Sprintf("bctx: %s called off the owning goroutine (owner %d, caller %d)", what, owner, cur))
	}
}

// currentGID extracts the running goroutine's id from the stack header
// ("goroutine 123 [running]:"). There is no supported API for this; the
// parse is the conventional fallback and is used only on mutating entry
// points.
func currentGID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		panic("bctx: unparsable goroutine stack header")
	}
	id, err := strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		panic("bctx: unparsable goroutine id: " + err.Error())
	}
	return id
}
