package port

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Encoded is the storage form of a Value. Exactly one payload field is set,
// selected by Kind.
type Encoded struct {
	Kind   string    `msgpack:"k" json:"kind"`
	Port   int       `msgpack:"p" json:"port"`
	Int    int64     `msgpack:"i,omitempty" json:"int,omitempty"`
	Float  float64   `msgpack:"f,omitempty" json:"float,omitempty"`
	Bool   bool      `msgpack:"b,omitempty" json:"bool,omitempty"`
	Text   string    `msgpack:"s,omitempty" json:"text,omitempty"`
	Bytes  []byte    `msgpack:"r,omitempty" json:"bytes,omitempty"`
	Items  []Encoded `msgpack:"l,omitempty" json:"items,omitempty"`
	Object []byte    `msgpack:"o,omitempty" json:"object,omitempty"`
}

// Encode converts v into its storage form. A nil value encodes as inert.
func Encode(v Value) (Encoded, error) {
	switch x := v.(type) {
	case nil, Inert:
		return Encoded{Kind: TypeInert, Port: -1}, nil
	case Int:
		return Encoded{Kind: TypeInt, Port: int(x.Port), Int: x.V}, nil
	case Float:
		return Encoded{Kind: TypeFloat, Port: int(x.Port), Float: x.V}, nil
	case Bool:
		return Encoded{Kind: TypeBool, Port: int(x.Port), Bool: x.V}, nil
	case Text:
		return Encoded{Kind: TypeString, Port: int(x.Port), Text: x.V}, nil
	case Bytes:
		return Encoded{Kind: TypeBytes, Port: int(x.Port), Bytes: x.V}, nil
	case List:
		items := make([]Encoded, 0, len(x.Items))
		for i, item := range x.Items {
			enc, err := Encode(item)
			if err != nil {
				return Encoded{}, fmt.Errorf("list item %d: %w", i, err)
			}
			items = append(items, enc)
		}
		return Encoded{Kind: TypeList, Port: int(x.Port), Items: items}, nil
	case Object:
		if x.V.Type() == cty.NilType {
			return Encoded{Kind: TypeObject, Port: int(x.Port)}, nil
		}
		data, err := ctyjson.SimpleJSONValue{Value: x.V}.MarshalJSON()
		if err != nil {
			return Encoded{}, fmt.Errorf("encode object: %w", err)
		}
		return Encoded{Kind: TypeObject, Port: int(x.Port), Object: data}, nil
	default:
		return Encoded{}, fmt.Errorf("unsupported value variant %T", v)
	}
}

// Decode rebuilds a Value from its storage form.
func Decode(e Encoded) (Value, error) {
	slot := Slot(e.Port)
	switch e.Kind {
	case TypeInert:
		return Inert{}, nil
	case TypeInt:
		return Int{Port: slot, V: e.Int}, nil
	case TypeFloat:
		return Float{Port: slot, V: e.Float}, nil
	case TypeBool:
		return Bool{Port: slot, V: e.Bool}, nil
	case TypeString:
		return Text{Port: slot, V: e.Text}, nil
	case TypeBytes:
		return Bytes{Port: slot, V: e.Bytes}, nil
	case TypeList:
		items := make([]Value, 0, len(e.Items))
		for i, item := range e.Items {
			v, err := Decode(item)
			if err != nil {
				return nil, fmt.Errorf("list item %d: %w", i, err)
			}
			items = append(items, v)
		}
		return List{Port: slot, Items: items}, nil
	case TypeObject:
		if len(e.Object) == 0 {
			return Object{Port: slot, V: cty.NilVal}, nil
		}
		var simple ctyjson.SimpleJSONValue
		if err := simple.UnmarshalJSON(e.Object); err != nil {
			return nil, fmt.Errorf("decode object: %w", err)
		}
		return Object{Port: slot, V: simple.Value}, nil
	default:
		return nil, fmt.Errorf("unknown encoded kind %q", e.Kind)
	}
}
