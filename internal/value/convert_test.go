package value

import (
	"encoding/json"
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromAnyScalars(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want Value
	}{
		{"nil", nil, Null{}},
		{"bool", true, Bool(true)},
		{"string", "s", String("s")},
		{"int", 5, Int(5)},
		{"int32", int32(-5), Int(-5)},
		{"uint8", uint8(7), Int(7)},
		{"uint64 small", uint64(9), Int(9)},
		{"float64", 2.5, Float(2.5)},
		{"json.Number int", json.Number("12"), Int(12)},
		{"json.Number float", json.Number("1.25"), Float(1.25)},
		{"big int", big.NewInt(77), Int(77)},
		{"value passthrough", String("v"), String("v")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromAny(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromAnyLargeUnsignedBecomesFloat(t *testing.T) {
	got, err := FromAny(uint64(math.MaxUint64))
	require.NoError(t, err)
	assert.Equal(t, KindFloat, got.Kind())
}

func TestFromAnyMapSortsKeys(t *testing.T) {
	got, err := FromAny(map[string]any{"b": 1, "a": []any{"x", nil}})
	require.NoError(t, err)

	obj := got.(*Object)
	assert.Equal(t, []string{"a", "b"}, obj.Keys())
	a, _ := obj.Get("a")
	assert.Equal(t, Array{String("x"), Null{}}, a)
}

func TestFromAnyInterfaceKeyedMap(t *testing.T) {
	got, err := FromAny(map[any]any{"k": 1})
	require.NoError(t, err)
	assert.True(t, Equal(NewObject(M("k", Int(1))), got))

	_, err = FromAny(map[any]any{1: "x"})
	assert.Error(t, err)
}

func TestFromAnyErrors(t *testing.T) {
	_, err := FromAny(math.NaN())
	assert.Error(t, err)

	_, err = FromAny(struct{}{})
	assert.Error(t, err)

	_, err = FromAny([]any{1, make(chan int)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "array[1]")
}

func TestToAny(t *testing.T) {
	v := NewObject(
		M("n", Null{}),
		M("b", Bool(true)),
		M("i", Int(3)),
		M("f", Float(0.5)),
		M("s", String("x")),
		M("a", Array{Int(1)}),
	)

	got := ToAny(v)
	assert.Equal(t, map[string]any{
		"n": nil,
		"b": true,
		"i": 3,
		"f": 0.5,
		"s": "x",
		"a": []any{1},
	}, got)
}

func TestToAnyFromAnyRoundTrip(t *testing.T) {
	v, err := Decode([]byte(`{"k":[1,2.5,"s",true,null,{"z":{}}]}`))
	require.NoError(t, err)

	back, err := FromAny(ToAny(v))
	require.NoError(t, err)
	assert.True(t, Equal(v, back))
}
