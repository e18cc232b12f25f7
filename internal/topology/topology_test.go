package topology

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bctree/internal/bctx"
)

func parse(t *testing.T, src string) (*Topology, error) {
	t.Helper()
	return Parse("test.cue", []byte(src))
}

func mustParse(t *testing.T, src string) *Topology {
	t.Helper()
	top, err := parse(t, src)
	require.NoError(t, err)
	return top
}

func TestParseFullTopology(t *testing.T) {
	top := mustParse(t, `
topology: {
	processes: {
		parent: role: "parent"
		web1: {role: "content", ordinal: 1}
		web2: {role: "content", ordinal: 2}
	}
	contexts: [
		{id: 1, name: "root", process: "web1"},
		{id: 2, parent: 1, name: "frame", process: "web1"},
	]
}`)

	assert.Equal(t, bctx.ProcessID("parent"), top.Parent.PID)
	assert.Equal(t, bctx.RoleParent, top.Parent.Role)
	assert.Equal(t, uint64(0), top.Parent.Ordinal)

	require.Len(t, top.Contents, 2)
	assert.Equal(t, bctx.ProcessID("web1"), top.Contents[0].PID)
	assert.Equal(t, uint64(1), top.Contents[0].Ordinal)
	assert.Equal(t, bctx.ProcessID("web2"), top.Contents[1].PID)

	require.Len(t, top.Contexts, 2)
	assert.Equal(t, ContextDecl{ID: 1, Name: "root", Process: "web1"}, top.Contexts[0])
	assert.Equal(t, ContextDecl{ID: 2, Parent: 1, Name: "frame", Process: "web1"}, top.Contexts[1])
}

func TestParseAssignsMissingOrdinals(t *testing.T) {
	top := mustParse(t, `
topology: processes: {
	parent: role: "parent"
	b: role: "content"
	a: role: "content"
	c: {role: "content", ordinal: 2}
}`)

	// Contents sort by pid; free ordinals fill in around the claimed one.
	require.Len(t, top.Contents, 3)
	assert.Equal(t, bctx.ProcessID("a"), top.Contents[0].PID)
	assert.Equal(t, uint64(1), top.Contents[0].Ordinal)
	assert.Equal(t, bctx.ProcessID("b"), top.Contents[1].PID)
	assert.Equal(t, uint64(3), top.Contents[1].Ordinal)
	assert.Equal(t, bctx.ProcessID("c"), top.Contents[2].PID)
	assert.Equal(t, uint64(2), top.Contents[2].Ordinal)
}

func TestParseEmptyContextsIsFine(t *testing.T) {
	top := mustParse(t, `topology: processes: parent: role: "parent"`)
	assert.Empty(t, top.Contexts)
	assert.Empty(t, top.Contents)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "no topology field",
			src:  `other: 1`,
			want: "no topology field",
		},
		{
			name: "missing processes",
			src:  `topology: contexts: []`,
			want: "processes is required",
		},
		{
			name: "no parent",
			src:  `topology: processes: web1: role: "content"`,
			want: "exactly one parent",
		},
		{
			name: "two parents",
			src: `topology: processes: {
				a: role: "parent"
				b: role: "parent"
			}`,
			want: "more than one parent",
		},
		{
			name: "unknown role",
			src:  `topology: processes: parent: role: "gpu"`,
			want: `unknown role "gpu"`,
		},
		{
			name: "ordinal collision",
			src: `topology: processes: {
				parent: role: "parent"
				a: {role: "content", ordinal: 1}
				b: {role: "content", ordinal: 1}
			}`,
			want: "ordinal 1 claimed by both",
		},
		{
			name: "context id zero",
			src: `topology: {
				processes: parent: role: "parent"
				contexts: [{id: 0, name: "x", process: "parent"}]
			}`,
			want: "id 0 is reserved",
		},
		{
			name: "duplicate context id",
			src: `topology: {
				processes: parent: role: "parent"
				contexts: [
					{id: 1, name: "a", process: "parent"},
					{id: 1, name: "b", process: "parent"},
				]
			}`,
			want: "duplicate context id 1",
		},
		{
			name: "unknown owning process",
			src: `topology: {
				processes: parent: role: "parent"
				contexts: [{id: 1, name: "a", process: "web9"}]
			}`,
			want: `unknown process "web9"`,
		},
		{
			name: "parent declared after child",
			src: `topology: {
				processes: parent: role: "parent"
				contexts: [{id: 2, parent: 1, name: "frame", process: "parent"}]
			}`,
			want: "parent 1 not declared before it",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse(t, tt.src)
			require.Error(t, err)
			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCompileErrorIncludesPosition(t *testing.T) {
	_, err := parse(t, `topology: processes: parent: role: "gpu"`)
	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Contains(t, ce.Error(), "test.cue")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("testdata/nope.cue")
	require.Error(t, err)
	var ce *CompileError
	assert.False(t, errors.As(err, &ce))
}
