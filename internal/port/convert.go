package port

import (
	"fmt"

	opgrapherrors "github.com/alexisbeaulieu97/opgraph/pkg/errors"
)

// Into extracts v as variant T bound to slot. It fails with an
// InvalidPinAssignment error when the value is absent, bound to another slot,
// or holds a different variant.
func Into[T Value](v Value, slot Slot) (T, error) {
	var zero T
	expected := variantName(zero)
	if err := checkSlot(v, slot, expected); err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, opgrapherrors.NewPinAssignmentError(int(slot), int(slot), expected, v.TypeName())
	}
	return out, nil
}

// Payload extracts the raw payload of v as P, for example int64 from an Int
// or string from a Text. The same slot checks as Into apply.
func Payload[P any](v Value, slot Slot) (P, error) {
	var zero P
	expected := fmt.Sprintf("%T", zero)
	if err := checkSlot(v, slot, expected); err != nil {
		return zero, err
	}
	out, ok := v.payload().(P)
	if !ok {
		return zero, opgrapherrors.NewPinAssignmentError(int(slot), int(slot), expected, v.TypeName())
	}
	return out, nil
}

// TryInto converts v to T at whatever slot v is currently bound to.
func TryInto[T Value](v Value) (T, error) {
	var zero T
	if v == nil {
		return zero, opgrapherrors.NewPinAssignmentError(0, -1, variantName(zero), "absent")
	}
	slot, ok := v.ActivePort()
	if !ok {
		return zero, opgrapherrors.NewPinAssignmentError(int(slot), -1, variantName(zero), v.TypeName())
	}
	return Into[T](v, slot)
}

// Number reads an Int or Float at slot as float64.
func Number(v Value, slot Slot) (float64, error) {
	if err := checkSlot(v, slot, TypeNumber); err != nil {
		return 0, err
	}
	switch x := v.(type) {
	case Int:
		return float64(x.V), nil
	case Float:
		return x.V, nil
	default:
		return 0, opgrapherrors.NewPinAssignmentError(int(slot), int(slot), TypeNumber, v.TypeName())
	}
}

func checkSlot(v Value, slot Slot, expected string) error {
	if v == nil {
		return opgrapherrors.NewPinAssignmentError(int(slot), -1, expected, "absent")
	}
	active, ok := v.ActivePort()
	if !ok {
		return opgrapherrors.NewPinAssignmentError(int(slot), -1, expected, v.TypeName())
	}
	if active != slot {
		return opgrapherrors.NewPinAssignmentError(int(slot), int(active), expected, v.TypeName())
	}
	return nil
}

func variantName(v Value) string {
	if v == nil {
		return TypeAny
	}
	return v.TypeName()
}
