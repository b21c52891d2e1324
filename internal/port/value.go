// Package port defines the values that flow across network edges.
//
// Value is a closed sum type: every payload kind the engine understands has a
// variant in this package, and each variant remembers the output slot that
// produced it. Readers extract payloads through Into, Payload and TryInto,
// which check both the slot and the concrete variant and return an
// InvalidPinAssignment error on mismatch.
package port

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/zclconf/go-cty/cty"
)

// MaxPorts is the number of input and output slots an operator can expose.
const MaxPorts = 4

// Slot identifies one of the MaxPorts input or output positions.
type Slot int

// Valid reports whether the slot is in range.
func (s Slot) Valid() bool {
	return s >= 0 && s < MaxPorts
}

// Type descriptors reported by TypeName and used in operator port declarations.
const (
	TypeInt    = "int"
	TypeFloat  = "float"
	TypeBool   = "bool"
	TypeString = "string"
	TypeBytes  = "bytes"
	TypeList   = "list"
	TypeObject = "object"
	TypeInert  = "inert"
	// TypeNumber accepts either int or float values.
	TypeNumber = "number"
	// TypeAny accepts every variant.
	TypeAny = "any"
)

// Value is the type-erased payload carried by an edge. Only the variants
// declared in this package implement it.
type Value interface {
	// ActivePort returns the output slot the value is bound to. Inert values
	// report false.
	ActivePort() (Slot, bool)
	// TypeName returns a human readable type descriptor.
	TypeName() string

	payload() any
}

// Int carries a signed integer.
type Int struct {
	Port Slot
	V    int64
}

func (v Int) ActivePort() (Slot, bool) { return v.Port, v.Port.Valid() }
func (Int) TypeName() string           { return TypeInt }
func (v Int) payload() any             { return v.V }

// Float carries a double precision number.
type Float struct {
	Port Slot
	V    float64
}

func (v Float) ActivePort() (Slot, bool) { return v.Port, v.Port.Valid() }
func (Float) TypeName() string           { return TypeFloat }
func (v Float) payload() any             { return v.V }

// Bool carries a boolean flag.
type Bool struct {
	Port Slot
	V    bool
}

func (v Bool) ActivePort() (Slot, bool) { return v.Port, v.Port.Valid() }
func (Bool) TypeName() string           { return TypeBool }
func (v Bool) payload() any             { return v.V }

// Text carries a string.
type Text struct {
	Port Slot
	V    string
}

func (v Text) ActivePort() (Slot, bool) { return v.Port, v.Port.Valid() }
func (Text) TypeName() string           { return TypeString }
func (v Text) payload() any             { return v.V }

// Bytes carries an opaque byte slice. The slice is not copied.
type Bytes struct {
	Port Slot
	V    []byte
}

func (v Bytes) ActivePort() (Slot, bool) { return v.Port, v.Port.Valid() }
func (Bytes) TypeName() string           { return TypeBytes }
func (v Bytes) payload() any             { return v.V }

// List carries an ordered sequence of values. Element slots are ignored.
type List struct {
	Port  Slot
	Items []Value
}

func (v List) ActivePort() (Slot, bool) { return v.Port, v.Port.Valid() }
func (List) TypeName() string           { return TypeList }
func (v List) payload() any             { return v.Items }

// Object carries a structured cty value, typically an object or map.
type Object struct {
	Port Slot
	V    cty.Value
}

func (v Object) ActivePort() (Slot, bool) { return v.Port, v.Port.Valid() }

func (v Object) TypeName() string {
	if v.V.Type() == cty.NilType {
		return TypeObject
	}
	return v.V.Type().FriendlyName()
}

func (v Object) payload() any { return v.V }

// Inert is the value of an operator state that produced no output.
type Inert struct{}

func (Inert) ActivePort() (Slot, bool) { return 0, false }
func (Inert) TypeName() string         { return TypeInert }
func (Inert) payload() any             { return nil }

// Of wraps a native Go value into the matching variant bound to slot.
func Of(slot Slot, v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Inert{}, nil
	case Value:
		return Reslot(x, slot), nil
	case int:
		return Int{Port: slot, V: int64(x)}, nil
	case int32:
		return Int{Port: slot, V: int64(x)}, nil
	case int64:
		return Int{Port: slot, V: x}, nil
	case uint:
		return ofUnsigned(slot, uint64(x))
	case uint32:
		return Int{Port: slot, V: int64(x)}, nil
	case uint64:
		return ofUnsigned(slot, x)
	case float32:
		return Float{Port: slot, V: float64(x)}, nil
	case float64:
		return Float{Port: slot, V: x}, nil
	case bool:
		return Bool{Port: slot, V: x}, nil
	case string:
		return Text{Port: slot, V: x}, nil
	case []byte:
		return Bytes{Port: slot, V: x}, nil
	case cty.Value:
		return Object{Port: slot, V: x}, nil
	case []any:
		items := make([]Value, 0, len(x))
		for i, item := range x {
			wrapped, err := Of(slot, item)
			if err != nil {
				return nil, fmt.Errorf("list item %d: %w", i, err)
			}
			items = append(items, wrapped)
		}
		return List{Port: slot, Items: items}, nil
	default:
		return nil, fmt.Errorf("unsupported port payload type %T", v)
	}
}

func ofUnsigned(slot Slot, x uint64) (Value, error) {
	if x > math.MaxInt64 {
		return nil, fmt.Errorf("unsigned value %d overflows int64", x)
	}
	return Int{Port: slot, V: int64(x)}, nil
}

// Reslot returns a copy of v bound to slot. Inert values stay inert.
func Reslot(v Value, slot Slot) Value {
	switch x := v.(type) {
	case Int:
		x.Port = slot
		return x
	case Float:
		x.Port = slot
		return x
	case Bool:
		x.Port = slot
		return x
	case Text:
		x.Port = slot
		return x
	case Bytes:
		x.Port = slot
		return x
	case List:
		x.Port = slot
		return x
	case Object:
		x.Port = slot
		return x
	default:
		return v
	}
}

// Native returns the raw payload of v.
func Native(v Value) any {
	if v == nil {
		return nil
	}
	return v.payload()
}

// Format renders v for logs and CLI output.
func Format(v Value) string {
	switch x := v.(type) {
	case nil:
		return "<absent>"
	case Int:
		return strconv.FormatInt(x.V, 10)
	case Float:
		return strconv.FormatFloat(x.V, 'g', -1, 64)
	case Bool:
		return strconv.FormatBool(x.V)
	case Text:
		return strconv.Quote(x.V)
	case Bytes:
		return fmt.Sprintf("bytes[%d]", len(x.V))
	case List:
		parts := make([]string, 0, len(x.Items))
		for _, item := range x.Items {
			parts = append(parts, Format(item))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case Object:
		if x.V.Type() == cty.NilType {
			return "null"
		}
		return x.V.GoString()
	case Inert:
		return "<inert>"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Compatible reports whether a value described by actual may feed a port
// declared as expected.
func Compatible(expected, actual string) bool {
	if expected == "" || actual == "" || expected == TypeAny || actual == TypeAny {
		return true
	}
	if expected == actual {
		return true
	}
	if expected == TypeNumber {
		return actual == TypeInt || actual == TypeFloat
	}
	if actual == TypeNumber {
		return expected == TypeInt || expected == TypeFloat
	}
	return false
}
