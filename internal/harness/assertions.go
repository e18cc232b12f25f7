package harness

import (
	"fmt"
	"slices"

	"github.com/roach88/bctree/internal/bctx"
)

// evaluate checks every scenario assertion against the live worlds and
// the recorded trace. The runner goroutine owns every world, so state is
// read directly; the fabric is quiescent by the time this runs.
func (r *Runner) evaluate(res *Result) {
	for i, a := range r.scenario.Asserts {
		switch a.Type {
		case "state":
			r.assertState(res, i, a)
		case "parent":
			r.assertParent(res, i, a)
		case "children":
			r.assertChildren(res, i, a)
		case "subscribers":
			r.assertSubscribers(res, i, a)
		case "epoch":
			r.assertEpoch(res, i, a)
		case "known":
			r.assertKnown(res, i, a)
		case "registry":
			r.assertRegistry(res, i, a)
		case "journal":
			r.assertJournal(res, i, a)
		}
	}
}

func assertFail(res *Result, i int, a Assertion, format string, args ...any) {
	res.failf("assert %d (%s): %s", i, a.Type, fmt.Sprintf(format, args...))
}

// lookup finds a node in a process's registry. Reclaimed or never-seen
// nodes come back nil.
func (r *Runner) lookup(pid string, id uint64) (*bctx.Node, error) {
	p, err := r.process(pid)
	if err != nil {
		return nil, err
	}
	return p.World().Registry().Get(bctx.NodeID(id)), nil
}

func (r *Runner) assertState(res *Result, i int, a Assertion) {
	n, err := r.lookup(a.Process, a.Node)
	if err != nil {
		assertFail(res, i, a, "%v", err)
		return
	}
	if a.State == "absent" {
		if n != nil {
			assertFail(res, i, a, "node %d still present in %s (state %s)", a.Node, a.Process, n.State())
		}
		return
	}
	if n == nil {
		assertFail(res, i, a, "node %d not present in %s, want state %s", a.Node, a.Process, a.State)
		return
	}
	if got := n.State().String(); got != a.State {
		assertFail(res, i, a, "node %d in %s: state %s, want %s", a.Node, a.Process, got, a.State)
	}
}

func (r *Runner) assertParent(res *Result, i int, a Assertion) {
	n, err := r.lookup(a.Process, a.Node)
	if err != nil {
		assertFail(res, i, a, "%v", err)
		return
	}
	if n == nil {
		assertFail(res, i, a, "node %d not present in %s", a.Node, a.Process)
		return
	}
	var got uint64
	if parent := n.Parent(); parent != nil {
		got = uint64(parent.ID())
	}
	if got != a.Parent {
		assertFail(res, i, a, "node %d in %s: parent %d, want %d", a.Node, a.Process, got, a.Parent)
	}
}

func (r *Runner) assertChildren(res *Result, i int, a Assertion) {
	n, err := r.lookup(a.Process, a.Node)
	if err != nil {
		assertFail(res, i, a, "%v", err)
		return
	}
	if n == nil {
		assertFail(res, i, a, "node %d not present in %s", a.Node, a.Process)
		return
	}
	var got []uint64
	for _, c := range n.Children() {
		got = append(got, uint64(c.ID()))
	}
	if !slices.Equal(got, a.Children) {
		assertFail(res, i, a, "node %d in %s: children %v, want %v", a.Node, a.Process, got, a.Children)
	}
}

// assertSubscribers checks the parent-side subscriber set of the node's
// group. Expected pids must be listed in lexical order.
func (r *Runner) assertSubscribers(res *Result, i int, a Assertion) {
	n := r.parent.World().Registry().Get(bctx.NodeID(a.Node))
	if n == nil {
		assertFail(res, i, a, "node %d not present in parent", a.Node)
		return
	}
	var got []string
	for _, pid := range n.Group().Subscribers() {
		got = append(got, string(pid))
	}
	if !slices.Equal(got, a.Subscribers) {
		assertFail(res, i, a, "group of node %d: subscribers %v, want %v", a.Node, got, a.Subscribers)
	}
}

func (r *Runner) assertEpoch(res *Result, i int, a Assertion) {
	n := r.parent.World().Registry().Get(bctx.NodeID(a.Node))
	if n == nil {
		assertFail(res, i, a, "node %d not present in parent", a.Node)
		return
	}
	got, ok := n.Group().SubscriberEpoch(bctx.ProcessID(a.Process))
	if !ok {
		assertFail(res, i, a, "group of node %d: %s is not subscribed", a.Node, a.Process)
		return
	}
	if got != a.Epoch {
		assertFail(res, i, a, "group of node %d: epoch %d for %s, want %d", a.Node, got, a.Process, a.Epoch)
	}
}

// assertKnown resolves the node's group id through whichever process
// still knows the node, then checks whether the target process's world
// has that group.
func (r *Runner) assertKnown(res *Result, i int, a Assertion) {
	var (
		gid   bctx.GroupID
		found bool
	)
	resolve := func(pid string) {
		if found {
			return
		}
		if n, err := r.lookup(pid, a.Node); err == nil && n != nil {
			gid = n.Group().ID()
			found = true
		}
	}
	resolve(string(r.parent.PID()))
	for _, pid := range r.order {
		resolve(string(pid))
	}
	if !found {
		if *a.Known {
			assertFail(res, i, a, "node %d is unknown in every process", a.Node)
		}
		return
	}

	p, err := r.process(a.Process)
	if err != nil {
		assertFail(res, i, a, "%v", err)
		return
	}
	known := p.World().Group(gid) != nil
	if known != *a.Known {
		assertFail(res, i, a, "group %d of node %d in %s: known=%v, want %v", gid, a.Node, a.Process, known, *a.Known)
	}
}

func (r *Runner) assertRegistry(res *Result, i int, a Assertion) {
	p, err := r.process(a.Process)
	if err != nil {
		assertFail(res, i, a, "%v", err)
		return
	}
	if got := p.World().Registry().Len(); got != *a.Count {
		assertFail(res, i, a, "%s registry holds %d nodes, want %d", a.Process, got, *a.Count)
	}
}

func (r *Runner) assertJournal(res *Result, i int, a Assertion) {
	got := 0
	for _, e := range res.Events {
		if e.Kind != a.Kind {
			continue
		}
		if a.Direction != "" && e.Direction != a.Direction {
			continue
		}
		got++
	}
	if got != *a.Count {
		assertFail(res, i, a, "journal has %d %q events, want %d", got, a.Kind, *a.Count)
	}
}

// checkInvariants sweeps every live world for structural invariants
// after a step has fully settled. Violations are protocol bugs, not
// scenario mistakes, so they fail the run like assertions do.
func (r *Runner) checkInvariants(res *Result, step int) {
	report := func(pid bctx.ProcessID, w *bctx.World) {
		for _, msg := range sweepWorld(w) {
			res.failf("step %d: invariant violated in %s: %s", step, pid, msg)
		}
	}
	report(r.parent.PID(), r.parent.World())
	for _, pid := range r.order {
		if c, ok := r.contents[pid]; ok {
			report(pid, c.World())
		}
	}
}

func sweepWorld(w *bctx.World) []string {
	var bad []string

	for _, root := range w.Roots() {
		if root.Parent() != nil {
			bad = append(bad, fmt.Sprintf("root %d has a parent", root.ID()))
		}
		if root.IsDead() {
			bad = append(bad, fmt.Sprintf("root list holds dead node %d", root.ID()))
		}
	}

	for _, n := range w.Registry().Nodes() {
		for _, c := range n.Children() {
			if c.IsDead() {
				bad = append(bad, fmt.Sprintf("node %d lists dead child %d", n.ID(), c.ID()))
			}
			if c.Parent() != n {
				bad = append(bad, fmt.Sprintf("child %d of node %d points elsewhere", c.ID(), n.ID()))
			}
		}
		if !slices.Contains(n.Group().Members(), n) {
			bad = append(bad, fmt.Sprintf("node %d missing from its group %d", n.ID(), n.Group().ID()))
		}
	}

	for _, g := range w.Groups() {
		live := 0
		for _, m := range g.Members() {
			if !m.IsDead() && m.RefCount() > 0 {
				live++
			}
		}
		if live != g.LiveCount() {
			bad = append(bad, fmt.Sprintf("group %d live count %d, counted %d", g.ID(), g.LiveCount(), live))
		}
	}
	return bad
}
