// Package operator defines the contract every network node implements.
package operator

import (
	"context"
	"fmt"
	"strings"

	"github.com/alexisbeaulieu97/opgraph/internal/port"
	opgrapherrors "github.com/alexisbeaulieu97/opgraph/pkg/errors"
)

// Opcode identifies an operator kind for logging, metrics and registry
// lookups. Two nodes with the same opcode may be configured differently.
type Opcode string

// Inputs holds the values delivered to an operator. A nil entry means the
// port received nothing.
type Inputs [port.MaxPorts]port.Value

// Outputs holds the values an operator produced. Operators leave unused
// entries nil.
type Outputs [port.MaxPorts]port.Value

// Operator is a polymorphic execution unit occupying one node.
type Operator interface {
	Opcode() Opcode
	InputCount() int
	OutputCount() int
	// InputPortType returns the declared type of input i, false when i is
	// out of range.
	InputPortType(i int) (string, bool)
	// OutputPortType returns the declared type of output i, false when i is
	// out of range.
	OutputPortType(i int) (string, bool)
	// InputPortRequired reports whether execution needs input i connected.
	InputPortRequired(i int) bool
	// OutputPortRequired is false for every port: outputs need not be consumed.
	OutputPortRequired(i int) bool
	// Execute reads the present inputs and writes zero or more outputs. It
	// must honour ctx cancellation instead of blocking.
	Execute(ctx context.Context, in Inputs, out *Outputs) error
}

// Port describes one declared input or output.
type Port struct {
	Name     string
	Type     string
	Required bool
}

// Descriptor implements the static half of Operator. Concrete operators embed
// it and provide Execute.
type Descriptor struct {
	Op      Opcode
	Inputs  []Port
	Outputs []Port
}

// Opcode implements Operator.
func (d Descriptor) Opcode() Opcode { return d.Op }

// InputCount implements Operator.
func (d Descriptor) InputCount() int { return len(d.Inputs) }

// OutputCount implements Operator.
func (d Descriptor) OutputCount() int { return len(d.Outputs) }

// InputPortType implements Operator.
func (d Descriptor) InputPortType(i int) (string, bool) {
	if i < 0 || i >= len(d.Inputs) {
		return "", false
	}
	return d.Inputs[i].Type, true
}

// OutputPortType implements Operator.
func (d Descriptor) OutputPortType(i int) (string, bool) {
	if i < 0 || i >= len(d.Outputs) {
		return "", false
	}
	return d.Outputs[i].Type, true
}

// InputPortRequired implements Operator.
func (d Descriptor) InputPortRequired(i int) bool {
	if i < 0 || i >= len(d.Inputs) {
		return false
	}
	return d.Inputs[i].Required
}

// OutputPortRequired implements Operator.
func (Descriptor) OutputPortRequired(int) bool { return false }

// CheckArity verifies the descriptor fits in MaxPorts slots.
func (d Descriptor) CheckArity() error {
	if len(d.Inputs) > port.MaxPorts {
		return fmt.Errorf("operator %s declares %d inputs, max %d", d.Op, len(d.Inputs), port.MaxPorts)
	}
	if len(d.Outputs) > port.MaxPorts {
		return fmt.Errorf("operator %s declares %d outputs, max %d", d.Op, len(d.Outputs), port.MaxPorts)
	}
	return nil
}

// CheckInputs returns an InvalidPinAssignment error naming the first required
// input of op that is absent from in.
func CheckInputs(op Operator, in Inputs) error {
	for i := 0; i < op.InputCount() && i < port.MaxPorts; i++ {
		if !op.InputPortRequired(i) || in[i] != nil {
			continue
		}
		expected, _ := op.InputPortType(i)
		return opgrapherrors.NewPinAssignmentError(i, -1, expected, "absent")
	}
	return nil
}

// Present returns the indices of the non-nil entries of in.
func (in Inputs) Present() []int {
	idx := make([]int, 0, port.MaxPorts)
	for i, v := range in {
		if v != nil {
			idx = append(idx, i)
		}
	}
	return idx
}

// Set binds v to output slot i, re-slotting it when needed.
func (out *Outputs) Set(i int, v port.Value) {
	if i < 0 || i >= port.MaxPorts {
		return
	}
	if v == nil {
		out[i] = nil
		return
	}
	out[i] = port.Reslot(v, port.Slot(i))
}

// Describe renders the operator signature for diagnostics,
// e.g. "add(int, int) -> (int)".
func Describe(op Operator) string {
	ins := make([]string, 0, op.InputCount())
	for i := 0; i < op.InputCount(); i++ {
		t, _ := op.InputPortType(i)
		if !op.InputPortRequired(i) {
			t += "?"
		}
		ins = append(ins, t)
	}
	outs := make([]string, 0, op.OutputCount())
	for i := 0; i < op.OutputCount(); i++ {
		t, _ := op.OutputPortType(i)
		outs = append(outs, t)
	}
	return fmt.Sprintf("%s(%s) -> (%s)", op.Opcode(), strings.Join(ins, ", "), strings.Join(outs, ", "))
}
