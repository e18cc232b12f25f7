package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/roach88/bctree/internal/bctx"
	"github.com/roach88/bctree/internal/ipc"
	"github.com/roach88/bctree/internal/journal"
	"github.com/roach88/bctree/internal/proc"
	"github.com/roach88/bctree/internal/topology"
)

// Options configures a scenario run.
type Options struct {
	// Logger receives process and bus logs. Defaults to a discard logger.
	Logger *slog.Logger

	// JournalPath is the journal database path. Defaults to ":memory:".
	JournalPath string

	// RunToken overrides the scenario's run token.
	RunToken string
}

// Runner executes one scenario. All process worlds are created on the
// runner's goroutine and driven cooperatively: after every step the
// runner drains each process loop until the whole fabric is quiescent,
// so traces are deterministic.
type Runner struct {
	scenario *Scenario
	logger   *slog.Logger

	journal  *journal.Journal
	bus      *ipc.Bus
	parent   *proc.Parent
	contents map[bctx.ProcessID]*proc.Content
	// order is the deterministic content drain order.
	order []bctx.ProcessID

	// refs holds harness-acquired references, per process and node, so
	// release steps pair with the ref/create that produced them.
	refs map[refKey][]*bctx.Ref
}

type refKey struct {
	pid  bctx.ProcessID
	node bctx.NodeID
}

// Run executes a scenario and returns its result. A non-nil error means
// the scenario itself could not be run (bad topology, unknown process);
// assertion failures are reported through Result.Failures instead.
func Run(sc *Scenario, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	token := opts.RunToken
	if token == "" {
		token = sc.RunToken
	}
	if token == "" {
		token = "run-" + sc.Name
	}
	path := opts.JournalPath
	if path == "" {
		path = ":memory:"
	}

	j, err := journal.Open(path, token)
	if err != nil {
		return nil, err
	}
	defer j.Close()

	r := &Runner{
		scenario: sc,
		logger:   logger,
		journal:  j,
		contents: map[bctx.ProcessID]*proc.Content{},
		refs:     map[refKey][]*bctx.Ref{},
	}
	seed, err := r.buildProcesses()
	if err != nil {
		return nil, err
	}
	defer r.teardown()

	res := newResult(sc.Name, token)

	for _, st := range seed {
		if err := r.apply(st); err != nil {
			return nil, fmt.Errorf("topology context %d: %w", st.Node, err)
		}
	}
	r.settle()

	for i, st := range sc.Steps {
		if err := r.apply(st); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, st.Op, err)
		}
		r.settle()
		r.checkInvariants(res, i)
	}

	res.Events, err = j.List(context.Background(), journal.Filter{Run: token})
	if err != nil {
		return nil, err
	}
	r.evaluate(res)
	return res, nil
}

// buildProcesses creates the bus and process set from the topology file
// or the inline process list. Topology contexts are returned as create
// steps so they flow through the normal step path.
func (r *Runner) buildProcesses() ([]Step, error) {
	var (
		parentDecl topology.ProcessDecl
		contents   []topology.ProcessDecl
		seed       []Step
	)

	switch {
	case r.scenario.Topology != "":
		top, err := topology.Load(filepath.Join(r.scenario.dir, r.scenario.Topology))
		if err != nil {
			return nil, err
		}
		parentDecl = top.Parent
		contents = top.Contents
		for _, c := range top.Contexts {
			seed = append(seed, Step{
				Op:      "create",
				Process: string(c.Process),
				Node:    uint64(c.ID),
				Parent:  uint64(c.Parent),
				Name:    c.Name,
			})
		}
	default:
		used := map[uint64]bool{}
		for _, p := range r.scenario.Processes {
			if p.Role == "parent" {
				parentDecl = topology.ProcessDecl{PID: bctx.ProcessID(p.PID), Role: bctx.RoleParent, Ordinal: p.Ordinal}
				used[p.Ordinal] = true
			}
		}
		next := uint64(1)
		for _, p := range r.scenario.Processes {
			if p.Role != "content" {
				continue
			}
			ord := p.Ordinal
			if ord == 0 {
				for used[next] {
					next++
				}
				ord = next
			}
			if used[ord] {
				return nil, fmt.Errorf("harness: ordinal %d assigned twice", ord)
			}
			used[ord] = true
			contents = append(contents, topology.ProcessDecl{PID: bctx.ProcessID(p.PID), Role: bctx.RoleContent, Ordinal: ord})
		}
	}

	r.bus = ipc.NewBus(r.logger)
	r.parent = proc.NewParent(proc.Config{
		PID:     parentDecl.PID,
		Ordinal: parentDecl.Ordinal,
		Bus:     r.bus,
		Journal: r.journal,
		Logger:  r.logger,
	})
	for _, c := range contents {
		r.contents[c.PID] = proc.NewContent(proc.ContentConfig{
			Config: proc.Config{
				PID:     c.PID,
				Ordinal: c.Ordinal,
				Bus:     r.bus,
				Journal: r.journal,
				Logger:  r.logger,
			},
			ParentPID: parentDecl.PID,
		})
		r.order = append(r.order, c.PID)
	}
	return seed, nil
}

// settle drains every process loop, parent first then contents in
// declaration order, until no process has pending work. Message delivery
// is synchronous on the bus, so an empty pass means true quiescence.
func (r *Runner) settle() {
	for {
		n := r.parent.Drain()
		for _, pid := range r.order {
			if c, ok := r.contents[pid]; ok {
				n += c.Drain()
			}
		}
		if n == 0 {
			return
		}
	}
}

func (r *Runner) process(pid string) (*proc.Process, error) {
	id := bctx.ProcessID(pid)
	if id == r.parent.PID() {
		return &r.parent.Process, nil
	}
	if c, ok := r.contents[id]; ok {
		return &c.Process, nil
	}
	return nil, fmt.Errorf("harness: unknown process %q", pid)
}

func (r *Runner) apply(st Step) error {
	switch st.Op {
	case "create":
		return r.applyCreate(st)
	case "attach":
		return r.applyAttach(st)
	case "detach":
		return r.applyNodeOp(st, func(n *bctx.Node) { n.Detach() })
	case "setname":
		return r.applyNodeOp(st, func(n *bctx.Node) { n.SetName(st.Name) })
	case "background":
		return r.applyNodeOp(st, func(n *bctx.Node) { n.MoveToBackground() })
	case "ref":
		return r.applyRef(st)
	case "release":
		return r.applyRelease(st)
	case "kill":
		return r.applyKill(st)
	case "share":
		return r.applyShare(st)
	case "exit":
		return r.applyExit(st)
	default:
		return fmt.Errorf("harness: unknown op %q", st.Op)
	}
}

func (r *Runner) applyCreate(st Step) error {
	p, err := r.process(st.Process)
	if err != nil {
		return err
	}
	w := p.World()
	reg := w.Registry()
	var parent *bctx.Node
	if st.Parent != 0 {
		if parent = reg.Get(bctx.NodeID(st.Parent)); parent == nil {
			return fmt.Errorf("harness: parent node %d not found in %s", st.Parent, st.Process)
		}
	}
	var g *bctx.Group
	switch {
	case parent != nil:
		g = parent.Group()
	case st.Chrome:
		g = w.ChromeGroup()
	default:
		g = w.NewGroup()
	}
	n := reg.GetOrCreateIn(bctx.NodeID(st.Node), st.Name, g)
	r.track(p.PID(), n.NewRef())
	n.Attach(parent)
	return nil
}

func (r *Runner) applyAttach(st Step) error {
	p, err := r.process(st.Process)
	if err != nil {
		return err
	}
	reg := p.World().Registry()
	n := reg.Get(bctx.NodeID(st.Node))
	if n == nil {
		return fmt.Errorf("harness: node %d not found in %s", st.Node, st.Process)
	}
	var parent *bctx.Node
	if st.Parent != 0 {
		if parent = reg.Get(bctx.NodeID(st.Parent)); parent == nil {
			return fmt.Errorf("harness: parent node %d not found in %s", st.Parent, st.Process)
		}
	}
	n.Attach(parent)
	return nil
}

func (r *Runner) applyNodeOp(st Step, fn func(*bctx.Node)) error {
	p, err := r.process(st.Process)
	if err != nil {
		return err
	}
	n := p.World().Registry().Get(bctx.NodeID(st.Node))
	if n == nil {
		return fmt.Errorf("harness: node %d not found in %s", st.Node, st.Process)
	}
	fn(n)
	return nil
}

func (r *Runner) applyRef(st Step) error {
	p, err := r.process(st.Process)
	if err != nil {
		return err
	}
	n := p.World().Registry().Get(bctx.NodeID(st.Node))
	if n == nil {
		return fmt.Errorf("harness: node %d not found in %s", st.Node, st.Process)
	}
	r.track(p.PID(), n.NewRef())
	return nil
}

func (r *Runner) applyRelease(st Step) error {
	p, err := r.process(st.Process)
	if err != nil {
		return err
	}
	key := refKey{pid: p.PID(), node: bctx.NodeID(st.Node)}
	held := r.refs[key]
	if len(held) == 0 {
		return fmt.Errorf("harness: no tracked reference on node %d in %s", st.Node, st.Process)
	}
	ref := held[len(held)-1]
	r.refs[key] = held[:len(held)-1]
	ref.Release()
	return nil
}

func (r *Runner) applyKill(st Step) error {
	n := r.parent.World().Registry().Get(bctx.NodeID(st.Node))
	if n == nil {
		return fmt.Errorf("harness: node %d not found in parent", st.Node)
	}
	r.parent.Kill(n)
	return nil
}

func (r *Runner) applyShare(st Step) error {
	var g *bctx.Group
	if n := r.parent.World().Registry().Get(bctx.NodeID(st.Node)); n != nil {
		g = n.Group()
	}
	if g == nil {
		return fmt.Errorf("harness: node %d not found in parent", st.Node)
	}
	to := bctx.ProcessID(st.To)
	if _, ok := r.contents[to]; !ok {
		return fmt.Errorf("harness: unknown share target %q", st.To)
	}
	r.parent.Share(g, to)
	return nil
}

func (r *Runner) applyExit(st Step) error {
	pid := bctx.ProcessID(st.Process)
	c, ok := r.contents[pid]
	if !ok {
		return fmt.Errorf("harness: unknown or already-exited content process %q", st.Process)
	}
	c.Exit()
	delete(r.contents, pid)
	// The exiting world reclaimed everything; its tracked refs are gone.
	for key := range r.refs {
		if key.pid == pid {
			delete(r.refs, key)
		}
	}
	return nil
}

func (r *Runner) track(pid bctx.ProcessID, ref *bctx.Ref) {
	key := refKey{pid: pid, node: ref.Node().ID()}
	r.refs[key] = append(r.refs[key], ref)
}

// teardown releases outstanding harness refs and shuts every surviving
// process down, contents before the parent.
func (r *Runner) teardown() {
	for key, held := range r.refs {
		if _, err := r.process(string(key.pid)); err == nil {
			for _, ref := range held {
				ref.Release()
			}
		}
		delete(r.refs, key)
	}
	for _, pid := range r.order {
		if c, ok := r.contents[pid]; ok {
			c.Exit()
			delete(r.contents, pid)
		}
	}
	r.parent.Exit()
}
