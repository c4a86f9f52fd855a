package codec

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wasmpipe/internal/value"
)

func TestGet(t *testing.T) {
	for _, name := range []string{"cbor", "protobuf", "json"} {
		t.Run(name, func(t *testing.T) {
			c, err := Get(name)
			require.NoError(t, err)
			assert.Equal(t, name, c.Name())
		})
	}
}

func TestGetUnknown(t *testing.T) {
	_, err := Get("msgpack")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown codec "msgpack"`)
	assert.Contains(t, err.Error(), "cbor")
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"cbor", "json", "protobuf"}, Names())
	assert.Contains(t, Names(), Default)
}

func TestRoundTripSample(t *testing.T) {
	doc := value.NewObject(
		value.M("name", value.String("widget")),
		value.M("count", value.Int(3)),
		value.M("ratio", value.Float(0.25)),
		value.M("tags", value.NewArray(value.String("a"), value.Bool(true), value.Null{})),
		value.M("nested", value.NewObject(value.M("empty", value.NewArray()))),
	)

	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			c, err := Get(name)
			require.NoError(t, err)

			data, err := c.Encode(doc)
			require.NoError(t, err)

			got, err := c.Decode(data)
			require.NoError(t, err)
			assert.True(t, value.Equal(doc, got), "round-trip changed the document")
		})
	}
}

func TestEncodeRejectsNonFinite(t *testing.T) {
	nan := value.Float(math.NaN())

	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			c, err := Get(name)
			require.NoError(t, err)

			_, err = c.Encode(value.NewArray(nan))
			var encErr *EncodeError
			require.True(t, errors.As(err, &encErr))
			assert.Equal(t, name, encErr.Codec)
		})
	}
}

func TestDecodeEmptyInput(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			c, err := Get(name)
			require.NoError(t, err)

			_, err = c.Decode(nil)
			var decErr *DecodeError
			require.True(t, errors.As(err, &decErr))
			assert.Equal(t, name, decErr.Codec)
		})
	}
}

func TestJSONDecodeOffset(t *testing.T) {
	c := &JSON{}

	_, err := c.Decode([]byte(`{"a": tru}`))
	var decErr *DecodeError
	require.True(t, errors.As(err, &decErr))
	assert.GreaterOrEqual(t, decErr.Offset, 0)
	assert.Contains(t, decErr.Error(), "json decode at byte")
}

func TestJSONEncodeKeepsOrder(t *testing.T) {
	c := &JSON{}
	data, err := c.Encode(value.NewObject(value.M("z", value.Int(1)), value.M("a", value.Float(2))))
	require.NoError(t, err)
	assert.Equal(t, `{"z":1,"a":2.0}`, string(data))
}
