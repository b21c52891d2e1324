package builtin

import (
	"context"
	"encoding/base64"
	"fmt"
	"math/big"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/alexisbeaulieu97/opgraph/internal/operator"
	"github.com/alexisbeaulieu97/opgraph/internal/port"
	"github.com/alexisbeaulieu97/opgraph/internal/registry"
)

// Split forwards its single input to outputs 0 and 1.
type Split struct {
	operator.Descriptor
}

func newSplit(registry.Params) (operator.Operator, error) {
	return NewSplit(), nil
}

// NewSplit builds a Split.
func NewSplit() *Split {
	return &Split{Descriptor: operator.Descriptor{
		Op:      OpSplit,
		Inputs:  []operator.Port{{Name: "in", Type: port.TypeAny, Required: true}},
		Outputs: []operator.Port{{Name: "left", Type: port.TypeAny}, {Name: "right", Type: port.TypeAny}},
	}}
}

// Execute implements operator.Operator.
func (s *Split) Execute(_ context.Context, in operator.Inputs, out *operator.Outputs) error {
	out.Set(0, in[0])
	out.Set(1, in[0])
	return nil
}

// Record builds a cty object whose attributes are named after its inputs.
// Absent inputs become null attributes.
type Record struct {
	operator.Descriptor
	fields []string
}

func newRecord(params registry.Params) (operator.Operator, error) {
	fields, err := stringListParam(params, "fields")
	if err != nil {
		return nil, err
	}
	return NewRecord(fields...)
}

// NewRecord builds a Record with one optional input per field name.
func NewRecord(fields ...string) (*Record, error) {
	if len(fields) == 0 || len(fields) > port.MaxPorts {
		return nil, fmt.Errorf("record needs between 1 and %d fields, got %d", port.MaxPorts, len(fields))
	}
	seen := make(map[string]struct{}, len(fields))
	inputs := make([]operator.Port, 0, len(fields))
	for _, f := range fields {
		if _, dup := seen[f]; dup {
			return nil, fmt.Errorf("duplicate record field %q", f)
		}
		seen[f] = struct{}{}
		inputs = append(inputs, operator.Port{Name: f, Type: port.TypeAny})
	}
	return &Record{
		Descriptor: operator.Descriptor{
			Op:      OpRecord,
			Inputs:  inputs,
			Outputs: []operator.Port{{Name: "record", Type: port.TypeObject}},
		},
		fields: append([]string(nil), fields...),
	}, nil
}

// Execute implements operator.Operator.
func (r *Record) Execute(_ context.Context, in operator.Inputs, out *operator.Outputs) error {
	attrs := make(map[string]cty.Value, len(r.fields))
	for i, name := range r.fields {
		if in[i] == nil {
			attrs[name] = cty.NullVal(cty.DynamicPseudoType)
			continue
		}
		v, err := ToCty(in[i])
		if err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
		attrs[name] = v
	}
	out.Set(0, port.Object{V: cty.ObjectVal(attrs)})
	return nil
}

// Field extracts one attribute from an object input.
type Field struct {
	operator.Descriptor
	name string
}

func newField(params registry.Params) (operator.Operator, error) {
	name, err := stringParam(params, "name", true)
	if err != nil {
		return nil, err
	}
	return NewField(name), nil
}

// NewField builds a Field reading attribute name.
func NewField(name string) *Field {
	return &Field{
		Descriptor: operator.Descriptor{
			Op:      OpField,
			Inputs:  []operator.Port{{Name: "object", Type: port.TypeObject, Required: true}},
			Outputs: []operator.Port{{Name: "value", Type: port.TypeAny}},
		},
		name: name,
	}
}

// Execute implements operator.Operator.
func (f *Field) Execute(_ context.Context, in operator.Inputs, out *operator.Outputs) error {
	obj, err := port.Into[port.Object](in[0], 0)
	if err != nil {
		return err
	}
	ty := obj.V.Type()
	if !ty.IsObjectType() || !ty.HasAttribute(f.name) {
		return fmt.Errorf("object has no attribute %q", f.name)
	}
	attr := obj.V.GetAttr(f.name)
	if attr.IsNull() {
		return nil
	}
	v, err := FromCty(attr)
	if err != nil {
		return fmt.Errorf("attribute %q: %w", f.name, err)
	}
	out.Set(0, v)
	return nil
}

// ToCty converts a port value into a cty value.
func ToCty(v port.Value) (cty.Value, error) {
	switch x := v.(type) {
	case nil, port.Inert:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case port.Int:
		return gocty.ToCtyValue(x.V, cty.Number)
	case port.Float:
		return gocty.ToCtyValue(x.V, cty.Number)
	case port.Bool:
		return gocty.ToCtyValue(x.V, cty.Bool)
	case port.Text:
		return gocty.ToCtyValue(x.V, cty.String)
	case port.Bytes:
		return cty.StringVal(base64.StdEncoding.EncodeToString(x.V)), nil
	case port.Object:
		return x.V, nil
	case port.List:
		if len(x.Items) == 0 {
			return cty.EmptyTupleVal, nil
		}
		items := make([]cty.Value, 0, len(x.Items))
		for i, item := range x.Items {
			cv, err := ToCty(item)
			if err != nil {
				return cty.NilVal, fmt.Errorf("item %d: %w", i, err)
			}
			items = append(items, cv)
		}
		return cty.TupleVal(items), nil
	default:
		return cty.NilVal, fmt.Errorf("unsupported value %T", v)
	}
}

// FromCty converts a known, non-null cty value into a port value bound to
// slot 0. Numbers without a fractional part become Int.
func FromCty(v cty.Value) (port.Value, error) {
	if !v.IsKnown() {
		return nil, fmt.Errorf("value is unknown")
	}
	if v.IsNull() {
		return port.Inert{}, nil
	}
	ty := v.Type()
	switch {
	case ty == cty.String:
		return port.Text{V: v.AsString()}, nil
	case ty == cty.Bool:
		return port.Bool{V: v.True()}, nil
	case ty == cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact {
				return port.Int{V: i}, nil
			}
		}
		f, _ := bf.Float64()
		return port.Float{V: f}, nil
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		items := make([]port.Value, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			pv, err := FromCty(elem)
			if err != nil {
				return nil, err
			}
			items = append(items, pv)
		}
		return port.List{Items: items}, nil
	default:
		return port.Object{V: v}, nil
	}
}
