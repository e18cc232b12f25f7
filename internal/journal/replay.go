package journal

import (
	"fmt"
	"sort"

	"github.com/roach88/bctree/internal/bctx"
)

// Summary is the result of verifying a recorded run: message counts and
// any handshakes the log shows as started but never resolved.
type Summary struct {
	Events   int
	Messages int
	Ops      int
	// ByKind counts events per kind.
	ByKind map[string]int
	// OpenUnsubscribes lists groups whose UnsubscribeGroup receipt has no
	// following UnsubscribeAck send to the requester.
	OpenUnsubscribes []bctx.GroupID
	// OpenDeaths lists nodes whose DeathNotice to some process has no
	// following DeathAck receipt and no exit op for that process.
	OpenDeaths []bctx.NodeID
}

// Verify replays a recorded run and checks its protocol shape: sequence
// numbers strictly increase, every unsubscribe request was answered, and
// every death notice was either acknowledged or mooted by a process exit.
// Structural faults in the log itself return an error; unresolved
// handshakes are reported in the Summary (a crashed run legitimately
// leaves them).
func Verify(events []Event) (*Summary, error) {
	s := &Summary{ByKind: make(map[string]int)}

	type deathKey struct {
		node bctx.NodeID
		peer bctx.ProcessID
	}
	type unsubKey struct {
		group bctx.GroupID
		peer  bctx.ProcessID
	}
	openDeaths := make(map[deathKey]struct{})
	openUnsubs := make(map[unsubKey]struct{})
	exited := make(map[bctx.ProcessID]struct{})

	var lastSeq int64
	for i, e := range events {
		if e.Seq <= lastSeq {
			return nil, fmt.Errorf("event %d: seq %d not after %d", i, e.Seq, lastSeq)
		}
		lastSeq = e.Seq

		s.Events++
		s.ByKind[e.Kind]++
		switch e.Direction {
		case DirSend, DirRecv:
			s.Messages++
		case DirOp:
			s.Ops++
		default:
			return nil, fmt.Errorf("event %d: unknown direction %q", i, e.Direction)
		}

		switch e.Kind {
		case "UnsubscribeGroup":
			if e.Direction == DirRecv {
				openUnsubs[unsubKey{e.Group, e.Peer}] = struct{}{}
			}
		case "UnsubscribeAck":
			if e.Direction == DirSend {
				delete(openUnsubs, unsubKey{e.Group, e.Peer})
			}
		case "DeathNotice":
			if e.Direction == DirSend {
				openDeaths[deathKey{e.Node, e.Peer}] = struct{}{}
			}
		case "DeathAck":
			if e.Direction == DirRecv {
				delete(openDeaths, deathKey{e.Node, e.Peer})
			}
		case "exit":
			exited[e.Peer] = struct{}{}
		}
	}

	for k := range openUnsubs {
		if _, gone := exited[k.peer]; !gone {
			s.OpenUnsubscribes = append(s.OpenUnsubscribes, k.group)
		}
	}
	for k := range openDeaths {
		if _, gone := exited[k.peer]; !gone {
			s.OpenDeaths = append(s.OpenDeaths, k.node)
		}
	}
	sort.Slice(s.OpenUnsubscribes, func(i, j int) bool { return s.OpenUnsubscribes[i] < s.OpenUnsubscribes[j] })
	sort.Slice(s.OpenDeaths, func(i, j int) bool { return s.OpenDeaths[i] < s.OpenDeaths[j] })
	return s, nil
}
