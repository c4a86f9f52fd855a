package value

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeScalars(t *testing.T) {
	tests := []struct {
		input string
		want  Value
	}{
		{`null`, Null{}},
		{`true`, Bool(true)},
		{`false`, Bool(false)},
		{`"hello"`, String("hello")},
		{`42`, Int(42)},
		{`-7`, Int(-7)},
		{`1.5`, Float(1.5)},
		{`1e3`, Float(1000)},
		{`2E-2`, Float(0.02)},
		{`9223372036854775807`, Int(9223372036854775807)},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Decode([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeIntegerOverflowBecomesFloat(t *testing.T) {
	got, err := Decode([]byte(`9223372036854775808`))
	require.NoError(t, err)
	assert.Equal(t, KindFloat, got.Kind())
}

func TestDecodePreservesMemberOrder(t *testing.T) {
	got, err := Decode([]byte(`{"zebra": 1, "apple": {"y": true, "x": false}, "mango": []}`))
	require.NoError(t, err)

	obj, ok := got.(*Object)
	require.True(t, ok)
	assert.Equal(t, []string{"zebra", "apple", "mango"}, obj.Keys())

	inner, _ := obj.Get("apple")
	assert.Equal(t, []string{"y", "x"}, inner.(*Object).Keys())

	empty, _ := obj.Get("mango")
	assert.Equal(t, Array{}, empty)
}

func TestDecodeDuplicateKeyLastValueFirstPosition(t *testing.T) {
	got, err := Decode([]byte(`{"a": 1, "b": 2, "a": 3}`))
	require.NoError(t, err)

	obj := got.(*Object)
	assert.Equal(t, []string{"a", "b"}, obj.Keys())
	v, _ := obj.Get("a")
	assert.Equal(t, Int(3), v)
}

func TestDecodeNested(t *testing.T) {
	got, err := Decode([]byte(`[1, [2, [3, {"k": null}]]]`))
	require.NoError(t, err)

	want := Array{Int(1), Array{Int(2), Array{Int(3), NewObject(M("k", Null{}))}}}
	assert.True(t, Equal(want, got))
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{"empty", []byte(``)},
		{"whitespace only", []byte("  \n ")},
		{"missing value", []byte(`{"a":}`)},
		{"unterminated array", []byte(`[1, 2`)},
		{"unterminated object", []byte(`{"a": 1`)},
		{"trailing document", []byte(`{} {}`)},
		{"trailing garbage", []byte(`{}x`)},
		{"bare word", []byte(`nope`)},
		{"single quotes", []byte(`{'a': 1}`)},
		{"trailing comma", []byte(`[1,]`)},
		{"invalid utf8", []byte{'"', 0xff, '"'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.input)
			require.Error(t, err)

			var se *SyntaxError
			assert.True(t, errors.As(err, &se), "expected *SyntaxError, got %T", err)
		})
	}
}

func TestDecodeInvalidUTF8Offset(t *testing.T) {
	_, err := Decode([]byte{'[', '"', 'a', 0xff, '"', ']'})
	require.Error(t, err)

	var se *SyntaxError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, int64(3), se.Offset)
	assert.Contains(t, se.Error(), "invalid UTF-8")
}

func TestDecodeReader(t *testing.T) {
	got, err := DecodeReader(strings.NewReader(`{"a": [1, 2]}`))
	require.NoError(t, err)
	assert.True(t, Equal(NewObject(M("a", Array{Int(1), Int(2)})), got))
}
