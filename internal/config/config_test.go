package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/opgraph/internal/operator/builtin"
	"github.com/alexisbeaulieu97/opgraph/internal/port"
	opgrapherrors "github.com/alexisbeaulieu97/opgraph/pkg/errors"
)

const sumYAML = `version: "1.0.0"
name: sum
settings:
  parallel: 4
  checkpoint_dir: ./ckpt
  metrics: true
nodes:
  - id: a
    op: const
    params: {value: 2}
  - id: b
    op: const
    params: {value: 40}
  - id: sum
    op: add
edges:
  - from: a.0
    to: sum.0
  - from: b.0
    to: sum.1
`

const sumHCL = `
version = "1.0.0"
name    = "sum"

settings {
  parallel       = 4
  checkpoint_dir = "./ckpt"
  metrics        = true
}

node "a" {
  op     = "const"
  params = { value = 2 }
}

node "b" {
  op     = "const"
  params = { value = 40 }
}

node "sum" {
  op = "add"
}

edge {
  from = "a.0"
  to   = "sum.0"
}

edge {
  from = "b.0"
  to   = "sum.1"
}
`

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestParseFileFormatsAgree(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"sum.yaml": sumYAML,
		"sum.yml":  sumYAML,
		"sum.hcl":  sumHCL,
	}
	for name, contents := range cases {
		name, contents := name, contents
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			path := writeFile(t, name, contents)
			def, err := ParseFile(path)
			require.NoError(t, err)
			require.Equal(t, path, def.Path)
			require.Equal(t, "sum", def.Name)
			require.Equal(t, Settings{Parallel: 4, CheckpointDir: "./ckpt", Metrics: true}, def.Settings)
			require.Len(t, def.Nodes, 3)
			require.Equal(t, 2, def.Nodes[0].Params["value"])
			require.Equal(t, []EdgeDef{{From: "a.0", To: "sum.0"}, {From: "b.0", To: "sum.1"}}, def.Edges)
		})
	}
}

func TestParseFileErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		file     string
		contents string
		parse    bool
		field    string
	}{
		{name: "unknown extension", file: "net.json", contents: "{}", parse: true},
		{name: "malformed yaml", file: "bad.yaml", contents: "version: [1, 0]\nname: x\n", parse: true},
		{name: "malformed hcl", file: "bad.hcl", contents: "node \"a\" {", parse: true},
		{name: "unknown hcl attribute", file: "extra.hcl", contents: "version = \"1.0\"\nname = \"x\"\ncolour = \"red\"\n", parse: true},
		{name: "bad version", file: "v.yaml", contents: "version: beta\nname: x\n", field: "version"},
		{name: "missing name", file: "n.yaml", contents: "version: \"1.0\"\n", field: "name"},
		{name: "bad node id", file: "id.yaml", contents: "version: \"1.0\"\nname: x\nnodes:\n  - {id: Bad, op: const}\n", field: "nodes[0].id"},
		{name: "bad opcode", file: "op.yaml", contents: "version: \"1.0\"\nname: x\nnodes:\n  - {id: a, op: \"9x\"}\n", field: "nodes[0].op"},
		{name: "duplicate id", file: "dup.yaml", contents: "version: \"1.0\"\nname: x\nnodes:\n  - {id: a, op: const}\n  - {id: a, op: add}\n", field: "nodes[1].id"},
		{name: "unknown edge node", file: "edge.yaml", contents: "version: \"1.0\"\nname: x\nnodes:\n  - {id: a, op: const}\nedges:\n  - {from: a.0, to: b.0}\n", field: "edges[0].to"},
		{name: "port out of range", file: "port.yaml", contents: "version: \"1.0\"\nname: x\nnodes:\n  - {id: a, op: const}\nedges:\n  - {from: a.7, to: a.0}\n", field: "edges[0].from"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := ParseFile(writeFile(t, tc.file, tc.contents))
			require.Error(t, err)
			if tc.parse {
				var parseErr *opgrapherrors.ParseError
				require.True(t, errors.As(err, &parseErr), "got %v", err)
				return
			}
			var valErr *opgrapherrors.ValidationError
			require.True(t, errors.As(err, &valErr), "got %v", err)
			require.Equal(t, tc.field, valErr.Field)
		})
	}
}

func TestParseYAMLReportsLine(t *testing.T) {
	t.Parallel()

	_, err := ParseYAML("inline.yaml", []byte("version: \"1.0\"\nname: x\nnodes: {id: [\n"))
	var parseErr *opgrapherrors.ParseError
	require.True(t, errors.As(err, &parseErr))
	require.Positive(t, parseErr.Line)
}

func TestParseFileMissing(t *testing.T) {
	t.Parallel()

	_, err := ParseFile(filepath.Join(t.TempDir(), "missing.yaml"))
	var parseErr *opgrapherrors.ParseError
	require.True(t, errors.As(err, &parseErr))
}

func TestCompileBuildsValidatedNetwork(t *testing.T) {
	t.Parallel()

	def, err := ParseHCL("sum.hcl", []byte(sumHCL))
	require.NoError(t, err)
	reg, err := builtin.Default(builtin.Options{})
	require.NoError(t, err)

	net, err := Compile(def, reg)
	require.NoError(t, err)
	require.Equal(t, 3, net.NodeCount())
	require.Equal(t, "sum", net.Node(2).Name())
	require.Equal(t, port.Slot(1), net.Edges[1].DestPort)
	require.Equal(t, 2, net.Edges[1].Dest)

	levels, err := net.TopologicalLevels()
	require.NoError(t, err)
	require.Equal(t, [][]int{{0, 1}, {2}}, levels)
}

func TestCompileErrors(t *testing.T) {
	t.Parallel()

	reg, err := builtin.Default(builtin.Options{})
	require.NoError(t, err)

	unknown := &Definition{Version: "1.0", Name: "x", Nodes: []NodeDef{{ID: "a", Op: "nope"}}}
	_, err = Compile(unknown, reg)
	var valErr *opgrapherrors.ValidationError
	require.True(t, errors.As(err, &valErr))
	require.Equal(t, "nodes[0].op", valErr.Field)
	var opErr *opgrapherrors.OperatorError
	require.True(t, errors.As(err, &opErr))

	cyclic := &Definition{
		Version: "1.0",
		Name:    "loop",
		Nodes:   []NodeDef{{ID: "a", Op: "add"}, {ID: "b", Op: "add"}},
		Edges:   []EdgeDef{{From: "a.0", To: "b.0"}, {From: "b.0", To: "a.0"}},
	}
	_, err = Compile(cyclic, reg)
	require.ErrorIs(t, err, opgrapherrors.ErrInvalidConfiguration)
	require.ErrorContains(t, err, "Cycle detected")

	_, err = Compile(&Definition{Version: "1.0", Name: "x"}, nil)
	require.ErrorIs(t, err, opgrapherrors.ErrInvalidConfiguration)
}

func TestNativeFromCtyMatchesYAMLTypes(t *testing.T) {
	t.Parallel()

	def, err := ParseHCL("p.hcl", []byte(`
version = "1.0"
name    = "p"
node "f" {
  op     = "format"
  params = { template = "{{.In0}}", inputs = 2, ratio = 0.5, tags = ["x", "y"], flag = true }
}
`))
	require.NoError(t, err)
	params := def.Nodes[0].Params
	require.Equal(t, "{{.In0}}", params["template"])
	require.Equal(t, 2, params["inputs"])
	require.Equal(t, 0.5, params["ratio"])
	require.Equal(t, []any{"x", "y"}, params["tags"])
	require.Equal(t, true, params["flag"])
}

func TestBundledExamplesCompile(t *testing.T) {
	t.Parallel()

	paths, err := filepath.Glob(filepath.Join("..", "..", "examples", "*"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	reg, err := builtin.Default(builtin.Options{})
	require.NoError(t, err)

	for _, path := range paths {
		def, err := ParseFile(path)
		require.NoError(t, err, path)
		net, err := Compile(def, reg)
		require.NoError(t, err, path)
		require.NoError(t, net.ValidateRequiredInputs(), path)
	}
}
