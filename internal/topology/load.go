package topology

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// Load reads a CUE file and compiles the topology under its "topology"
// field.
func Load(path string) (*Topology, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load topology: %w", err)
	}
	return Parse(path, src)
}

// Parse compiles CUE source holding a topology. The filename is used for
// error positions only.
func Parse(filename string, src []byte) (*Topology, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("parse topology %s: %w", filename, err)
	}

	tv := v.LookupPath(cue.ParsePath("topology"))
	if !tv.Exists() {
		return nil, &CompileError{Field: "topology", Message: "no topology field", Pos: v.Pos()}
	}
	return Compile(tv)
}
