package port

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestEncodeDecode(t *testing.T) {
	t.Parallel()

	values := []Value{
		Int{Port: 0, V: -7},
		Float{Port: 1, V: 2.25},
		Bool{Port: 2, V: true},
		Text{Port: 3, V: "opgraph"},
		Bytes{Port: 0, V: []byte{1, 2, 3}},
		List{Port: 1, Items: []Value{Int{V: 1}, Text{V: "two"}}},
		Inert{},
	}

	for _, v := range values {
		enc, err := Encode(v)
		require.NoError(t, err)

		got, err := Decode(enc)
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestEncodeDecodeObject(t *testing.T) {
	t.Parallel()

	obj := Object{Port: 2, V: cty.ObjectVal(map[string]cty.Value{
		"count": cty.NumberIntVal(3),
		"name":  cty.StringVal("x"),
	})}

	enc, err := Encode(obj)
	require.NoError(t, err)
	require.Equal(t, TypeObject, enc.Kind)

	got, err := Decode(enc)
	require.NoError(t, err)
	decoded := got.(Object)
	require.Equal(t, Slot(2), decoded.Port)
	require.True(t, decoded.V.RawEquals(obj.V))
}

func TestDecodeUnknownKind(t *testing.T) {
	t.Parallel()

	_, err := Decode(Encoded{Kind: "tensor"})
	require.Error(t, err)
}
