package config

import (
	"fmt"
	"math/big"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	opgrapherrors "github.com/alexisbeaulieu97/opgraph/pkg/errors"
)

// hclFile mirrors the YAML layout with blocks:
//
//	version = "1.0.0"
//	name    = "demo"
//	settings { parallel = 4 }
//	node "a" {
//	  op     = "const"
//	  params = { value = 2 }
//	}
//	edge {
//	  from = "a.0"
//	  to   = "sum.0"
//	}
type hclFile struct {
	Version     string       `hcl:"version"`
	Name        string       `hcl:"name"`
	Description *string      `hcl:"description,optional"`
	Settings    *hclSettings `hcl:"settings,block"`
	Nodes       []*hclNode   `hcl:"node,block"`
	Edges       []*hclEdge   `hcl:"edge,block"`
}

type hclSettings struct {
	Parallel      *int    `hcl:"parallel,optional"`
	CheckpointDir *string `hcl:"checkpoint_dir,optional"`
	Compression   *string `hcl:"compression,optional"`
	Metrics       *bool   `hcl:"metrics,optional"`
}

type hclNode struct {
	ID     string    `hcl:"id,label"`
	Op     string    `hcl:"op"`
	Params cty.Value `hcl:"params,optional"`
}

type hclEdge struct {
	From string `hcl:"from"`
	To   string `hcl:"to"`
}

// ParseHCL decodes and validates an HCL definition. path is used for
// diagnostics.
func ParseHCL(path string, data []byte) (*Definition, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, path)
	if diags.HasErrors() {
		return nil, hclParseError(path, diags)
	}

	var raw hclFile
	if diags := gohcl.DecodeBody(file.Body, nil, &raw); diags.HasErrors() {
		return nil, hclParseError(path, diags)
	}

	def := &Definition{
		Version: raw.Version,
		Name:    raw.Name,
		Path:    path,
	}
	if raw.Description != nil {
		def.Description = *raw.Description
	}
	if s := raw.Settings; s != nil {
		if s.Parallel != nil {
			def.Settings.Parallel = *s.Parallel
		}
		if s.CheckpointDir != nil {
			def.Settings.CheckpointDir = *s.CheckpointDir
		}
		if s.Compression != nil {
			def.Settings.Compression = *s.Compression
		}
		if s.Metrics != nil {
			def.Settings.Metrics = *s.Metrics
		}
	}
	for _, n := range raw.Nodes {
		params, err := paramsFromCty(n.Params)
		if err != nil {
			return nil, opgrapherrors.NewParseError(path, 0, fmt.Errorf("node %q params: %w", n.ID, err))
		}
		def.Nodes = append(def.Nodes, NodeDef{ID: n.ID, Op: n.Op, Params: params})
	}
	for _, e := range raw.Edges {
		def.Edges = append(def.Edges, EdgeDef{From: e.From, To: e.To})
	}

	if err := Validate(def); err != nil {
		return nil, err
	}
	return def, nil
}

func hclParseError(path string, diags hcl.Diagnostics) error {
	line := 0
	for _, d := range diags {
		if d.Subject != nil {
			line = d.Subject.Start.Line
			break
		}
	}
	return opgrapherrors.NewParseError(path, line, diags)
}

func paramsFromCty(v cty.Value) (map[string]any, error) {
	if v.Type() == cty.NilType || v.IsNull() {
		return nil, nil
	}
	if !v.Type().IsObjectType() && !v.Type().IsMapType() {
		return nil, fmt.Errorf("must be an object, got %s", v.Type().FriendlyName())
	}
	params := make(map[string]any, v.LengthInt())
	for it := v.ElementIterator(); it.Next(); {
		k, val := it.Element()
		native, err := nativeFromCty(val)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k.AsString(), err)
		}
		params[k.AsString()] = native
	}
	return params, nil
}

// nativeFromCty lowers a cty value to the Go types YAML decoding produces so
// operator factories see the same params whichever format was used. Objects
// stay cty values and become object port values.
func nativeFromCty(v cty.Value) (any, error) {
	if !v.IsKnown() {
		return nil, fmt.Errorf("value is unknown")
	}
	if v.IsNull() {
		return nil, nil
	}
	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil
	case ty == cty.Bool:
		return v.True(), nil
	case ty == cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact {
				return int(i), nil
			}
		}
		f, _ := bf.Float64()
		return f, nil
	case ty.IsTupleType() || ty.IsListType() || ty.IsSetType():
		items := make([]any, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			native, err := nativeFromCty(elem)
			if err != nil {
				return nil, err
			}
			items = append(items, native)
		}
		return items, nil
	case ty.IsObjectType() || ty.IsMapType():
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported value of type %s", ty.FriendlyName())
	}
}
