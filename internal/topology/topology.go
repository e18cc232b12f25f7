// Package topology compiles CUE topology specs: declarative descriptions
// of a process set and the initial browsing-context tree each scenario
// starts from. A topology names the parent, the content processes, and
// the contexts (with stable ids, names, parents, and owning processes);
// the harness turns it into live processes on a bus.
//
// A topology spec looks like:
//
//	topology: {
//		processes: {
//			parent: role:      "parent"
//			web: {role: "content", ordinal: 1}
//		}
//		contexts: [
//			{id: 1, name: "root", process: "web"},
//			{id: 2, name: "frame", parent: 1, process: "web"},
//		]
//	}
package topology

import (
	"fmt"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/token"

	"github.com/roach88/bctree/internal/bctx"
)

// ProcessDecl declares one process.
type ProcessDecl struct {
	PID     bctx.ProcessID
	Role    bctx.Role
	Ordinal uint64
}

// ContextDecl declares one initial context. Parent 0 means root. Process
// names the creating process; the attach is mirrored from there.
type ContextDecl struct {
	ID      bctx.NodeID
	Parent  bctx.NodeID
	Name    string
	Process bctx.ProcessID
}

// Topology is a compiled topology spec.
type Topology struct {
	Parent   ProcessDecl
	Contents []ProcessDecl
	Contexts []ContextDecl
}

// CompileError is a structured topology compile failure with the CUE
// source position when one is available.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: topology %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Field, e.Message)
	}
	return fmt.Sprintf("topology %s: %s", e.Field, e.Message)
}

// Compile parses a CUE value holding a topology struct (the value of the
// "topology" field).
func Compile(v cue.Value) (*Topology, error) {
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("topology: %w", err)
	}

	t := &Topology{}
	if err := compileProcesses(v, t); err != nil {
		return nil, err
	}
	if err := compileContexts(v, t); err != nil {
		return nil, err
	}
	return t, nil
}

func compileProcesses(v cue.Value, t *Topology) error {
	procsVal := v.LookupPath(cue.ParsePath("processes"))
	if !procsVal.Exists() {
		return &CompileError{Field: "processes", Message: "processes is required", Pos: v.Pos()}
	}

	iter, err := procsVal.Fields()
	if err != nil {
		return fmt.Errorf("topology processes: %w", err)
	}

	var contents []ProcessDecl
	haveParent := false
	for iter.Next() {
		pid := bctx.ProcessID(iter.Selector().String())
		pv := iter.Value()

		roleStr, err := pv.LookupPath(cue.ParsePath("role")).String()
		if err != nil {
			return &CompileError{Field: "processes", Message: fmt.Sprintf("process %q: role must be a string", pid), Pos: pv.Pos()}
		}

		var ordinal uint64
		if ov := pv.LookupPath(cue.ParsePath("ordinal")); ov.Exists() {
			o, err := ov.Uint64()
			if err != nil {
				return &CompileError{Field: "processes", Message: fmt.Sprintf("process %q: ordinal must be an unsigned integer", pid), Pos: ov.Pos()}
			}
			ordinal = o
		}

		switch roleStr {
		case "parent":
			if haveParent {
				return &CompileError{Field: "processes", Message: "more than one parent process", Pos: pv.Pos()}
			}
			haveParent = true
			t.Parent = ProcessDecl{PID: pid, Role: bctx.RoleParent, Ordinal: ordinal}
		case "content":
			contents = append(contents, ProcessDecl{PID: pid, Role: bctx.RoleContent, Ordinal: ordinal})
		default:
			return &CompileError{Field: "processes", Message: fmt.Sprintf("process %q: unknown role %q", pid, roleStr), Pos: pv.Pos()}
		}
	}

	if !haveParent {
		return &CompileError{Field: "processes", Message: "exactly one parent process is required", Pos: procsVal.Pos()}
	}

	sort.Slice(contents, func(i, j int) bool { return contents[i].PID < contents[j].PID })
	if err := assignOrdinals(t.Parent, contents, procsVal.Pos()); err != nil {
		return err
	}
	t.Contents = contents
	return nil
}

// assignOrdinals fills in missing content ordinals and rejects collisions.
// The parent is ordinal 0 by convention.
func assignOrdinals(parent ProcessDecl, contents []ProcessDecl, pos token.Pos) error {
	used := map[uint64]bctx.ProcessID{parent.Ordinal: parent.PID}
	for _, c := range contents {
		if c.Ordinal == 0 {
			continue
		}
		if prev, taken := used[c.Ordinal]; taken {
			return &CompileError{
				Field:   "processes",
				Message: fmt.Sprintf("ordinal %d claimed by both %q and %q", c.Ordinal, prev, c.PID),
				Pos:     pos,
			}
		}
		used[c.Ordinal] = c.PID
	}
	next := uint64(1)
	for i := range contents {
		if contents[i].Ordinal != 0 {
			continue
		}
		for used[next] != "" {
			next++
		}
		contents[i].Ordinal = next
		used[next] = contents[i].PID
	}
	return nil
}

func compileContexts(v cue.Value, t *Topology) error {
	ctxVal := v.LookupPath(cue.ParsePath("contexts"))
	if !ctxVal.Exists() {
		return nil // a topology with no initial tree is fine
	}

	known := map[bctx.ProcessID]bool{t.Parent.PID: true}
	for _, c := range t.Contents {
		known[c.PID] = true
	}

	iter, err := ctxVal.List()
	if err != nil {
		return &CompileError{Field: "contexts", Message: "contexts must be a list", Pos: ctxVal.Pos()}
	}

	ids := map[bctx.NodeID]bool{}
	for iter.Next() {
		cv := iter.Value()
		decl, err := compileContext(cv)
		if err != nil {
			return err
		}
		if ids[decl.ID] {
			return &CompileError{Field: "contexts", Message: fmt.Sprintf("duplicate context id %d", decl.ID), Pos: cv.Pos()}
		}
		ids[decl.ID] = true
		if !known[decl.Process] {
			return &CompileError{Field: "contexts", Message: fmt.Sprintf("context %d: unknown process %q", decl.ID, decl.Process), Pos: cv.Pos()}
		}
		if decl.Parent != 0 && !ids[decl.Parent] {
			return &CompileError{Field: "contexts", Message: fmt.Sprintf("context %d: parent %d not declared before it", decl.ID, decl.Parent), Pos: cv.Pos()}
		}
		t.Contexts = append(t.Contexts, decl)
	}
	return nil
}

func compileContext(v cue.Value) (ContextDecl, error) {
	var decl ContextDecl

	id, err := v.LookupPath(cue.ParsePath("id")).Uint64()
	if err != nil {
		return decl, &CompileError{Field: "contexts", Message: "id must be an unsigned integer", Pos: v.Pos()}
	}
	if id == 0 {
		return decl, &CompileError{Field: "contexts", Message: "id 0 is reserved", Pos: v.Pos()}
	}
	decl.ID = bctx.NodeID(id)

	if pv := v.LookupPath(cue.ParsePath("parent")); pv.Exists() {
		parent, err := pv.Uint64()
		if err != nil {
			return decl, &CompileError{Field: "contexts", Message: fmt.Sprintf("context %d: parent must be an unsigned integer", id), Pos: pv.Pos()}
		}
		decl.Parent = bctx.NodeID(parent)
	}

	name, err := v.LookupPath(cue.ParsePath("name")).String()
	if err != nil {
		return decl, &CompileError{Field: "contexts", Message: fmt.Sprintf("context %d: name must be a string", id), Pos: v.Pos()}
	}
	decl.Name = name

	procStr, err := v.LookupPath(cue.ParsePath("process")).String()
	if err != nil {
		return decl, &CompileError{Field: "contexts", Message: fmt.Sprintf("context %d: process must be a string", id), Pos: v.Pos()}
	}
	decl.Process = bctx.ProcessID(procStr)

	return decl, nil
}
