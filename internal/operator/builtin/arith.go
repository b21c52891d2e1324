package builtin

import (
	"context"
	"fmt"

	"github.com/alexisbeaulieu97/opgraph/internal/operator"
	"github.com/alexisbeaulieu97/opgraph/internal/port"
	"github.com/alexisbeaulieu97/opgraph/internal/registry"
)

// Const emits a configured literal on output 0.
type Const struct {
	operator.Descriptor
	value port.Value
}

func newConst(params registry.Params) (operator.Operator, error) {
	raw, ok := params["value"]
	if !ok {
		return nil, fmt.Errorf("missing required param %q", "value")
	}
	v, err := port.Of(0, raw)
	if err != nil {
		return nil, err
	}
	return NewConst(v), nil
}

// NewConst builds a Const emitting v.
func NewConst(v port.Value) *Const {
	return &Const{
		Descriptor: operator.Descriptor{
			Op:      OpConst,
			Outputs: []operator.Port{{Name: "value", Type: v.TypeName()}},
		},
		value: port.Reslot(v, 0),
	}
}

// Execute implements operator.Operator.
func (c *Const) Execute(_ context.Context, _ operator.Inputs, out *operator.Outputs) error {
	out.Set(0, c.value)
	return nil
}

// Arithmetic combines two numbers. Two ints produce an int, anything else a float.
type Arithmetic struct {
	operator.Descriptor
}

func newArithmetic(op operator.Opcode) registry.Factory {
	return func(registry.Params) (operator.Operator, error) {
		return NewArithmetic(op)
	}
}

// NewArithmetic builds an add or multiply operator.
func NewArithmetic(op operator.Opcode) (*Arithmetic, error) {
	if op != OpAdd && op != OpMultiply {
		return nil, fmt.Errorf("unsupported arithmetic opcode %q", op)
	}
	return &Arithmetic{Descriptor: operator.Descriptor{
		Op: op,
		Inputs: []operator.Port{
			{Name: "lhs", Type: port.TypeNumber, Required: true},
			{Name: "rhs", Type: port.TypeNumber, Required: true},
		},
		Outputs: []operator.Port{{Name: "result", Type: port.TypeNumber}},
	}}, nil
}

// Execute implements operator.Operator.
func (a *Arithmetic) Execute(_ context.Context, in operator.Inputs, out *operator.Outputs) error {
	lhsInt, lhsErr := port.Payload[int64](in[0], 0)
	rhsInt, rhsErr := port.Payload[int64](in[1], 1)
	if lhsErr == nil && rhsErr == nil {
		out.Set(0, port.Int{V: a.applyInt(lhsInt, rhsInt)})
		return nil
	}

	lhs, err := port.Number(in[0], 0)
	if err != nil {
		return err
	}
	rhs, err := port.Number(in[1], 1)
	if err != nil {
		return err
	}
	out.Set(0, port.Float{V: a.applyFloat(lhs, rhs)})
	return nil
}

func (a *Arithmetic) applyInt(lhs, rhs int64) int64 {
	if a.Op == OpMultiply {
		return lhs * rhs
	}
	return lhs + rhs
}

func (a *Arithmetic) applyFloat(lhs, rhs float64) float64 {
	if a.Op == OpMultiply {
		return lhs * rhs
	}
	return lhs + rhs
}
