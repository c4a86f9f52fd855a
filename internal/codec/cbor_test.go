package codec

import (
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wasmpipe/internal/value"
)

func TestCBOREncodeVectors(t *testing.T) {
	tests := []struct {
		name string
		in   value.Value
		want string
	}{
		{"null", value.Null{}, "f6"},
		{"true", value.Bool(true), "f5"},
		{"false", value.Bool(false), "f4"},
		{"small int", value.Int(1), "01"},
		{"negative int", value.Int(-1), "20"},
		{"int 1000", value.Int(1000), "1903e8"},
		{"half float", value.Float(1.5), "f93e00"},
		{"integral float stays float", value.Float(1), "f93c00"},
		{"double", value.Float(1.1), "fb3ff199999999999a"},
		{"string", value.String("a"), "6161"},
		{"empty array", value.NewArray(), "80"},
		{"array", value.NewArray(value.Int(1), value.Int(2)), "820102"},
		{"empty object", value.NewObject(), "a0"},
		{
			"object keeps insertion order",
			value.NewObject(value.M("b", value.Int(1)), value.M("a", value.Int(2))),
			"a2616201616102",
		},
	}

	c := NewCBOR()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := c.Encode(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, hex.EncodeToString(data))
		})
	}
}

func TestCBORLongArrayHead(t *testing.T) {
	arr := make(value.Array, 300)
	for i := range arr {
		arr[i] = value.Null{}
	}

	data, err := NewCBOR().Encode(arr)
	require.NoError(t, err)
	assert.Equal(t, "99012c", hex.EncodeToString(data[:3]))

	got, err := NewCBOR().Decode(data)
	require.NoError(t, err)
	assert.Len(t, got, 300)
}

func TestCBORDecodeKeepsKindAndOrder(t *testing.T) {
	data, err := hex.DecodeString("a3617a01616df93c0061616162")
	require.NoError(t, err)
	// {"z": 1, "m": 1.0 (half float), "a": "b"}

	got, err := NewCBOR().Decode(data)
	require.NoError(t, err)

	obj, ok := got.(*value.Object)
	require.True(t, ok)
	assert.Equal(t, []string{"z", "m", "a"}, obj.Keys())

	z, _ := obj.Get("z")
	assert.Equal(t, value.Int(1), z)
	m, _ := obj.Get("m")
	assert.Equal(t, value.Float(1), m)
	a, _ := obj.Get("a")
	assert.Equal(t, value.String("b"), a)
}

func TestCBORDecodeIndefiniteLength(t *testing.T) {
	// [_ 1, {_ "a": [_ ]}]
	data, err := hex.DecodeString("9f01bf61619fffffff")
	require.NoError(t, err)

	got, err := NewCBOR().Decode(data)
	require.NoError(t, err)

	want := value.NewArray(value.Int(1), value.NewObject(value.M("a", value.NewArray())))
	assert.True(t, value.Equal(want, got))
}

func TestCBORDecodeLargeIntegers(t *testing.T) {
	tests := []struct {
		name string
		hex  string
		want value.Value
	}{
		{"max int64", "1b7fffffffffffffff", value.Int(9223372036854775807)},
		{"min int64", "3b7fffffffffffffff", value.Int(-9223372036854775808)},
		{"above int64 becomes float", "1bffffffffffffffff", value.Float(18446744073709551615)},
		{"below int64 becomes float", "3bffffffffffffffff", value.Float(-18446744073709551616)},
		{"just below int64", "3b8000000000000000", value.Float(-9223372036854775809)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := hex.DecodeString(tt.hex)
			require.NoError(t, err)

			got, err := NewCBOR().Decode(data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCBORDecodeRejects(t *testing.T) {
	tests := []struct {
		name string
		hex  string
		msg  string
	}{
		{"byte string", "4101", "byte strings"},
		{"tag", "c11a514b67b0", "tagged items"},
		{"integer map key", "a10102", "keys must be text strings"},
		{"trailing data", "0101", "after top-level item"},
		{"truncated array", "8201", "unexpected end"},
		{"truncated head", "99", "unexpected end"},
		{"unterminated indefinite array", "9f01", "unexpected end"},
		{"reserved additional info", "9c", "malformed"},
		{"NaN", "f97e00", "unsupported float"},
		{"invalid UTF-8 text", "62c328", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := hex.DecodeString(tt.hex)
			require.NoError(t, err)

			_, err = NewCBOR().Decode(data)
			var decErr *DecodeError
			require.True(t, errors.As(err, &decErr), "got %v", err)
			assert.Equal(t, "cbor", decErr.Codec)
			if tt.msg != "" {
				assert.Contains(t, err.Error(), tt.msg)
			}
		})
	}
}

func TestCBORDecodeDepthLimit(t *testing.T) {
	data, err := hex.DecodeString(strings.Repeat("81", maxDepth+2) + "01")
	require.NoError(t, err)

	_, err = NewCBOR().Decode(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nesting deeper than")
}

func TestCBORDecodeHugeDeclaredLength(t *testing.T) {
	// Array head claiming 2^32 elements with a single byte of content.
	data, err := hex.DecodeString("9b000000010000000001")
	require.NoError(t, err)

	_, err = NewCBOR().Decode(data)
	require.Error(t, err)
}
