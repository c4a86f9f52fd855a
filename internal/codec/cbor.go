package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/fxamacker/cbor/v2"

	"github.com/roach88/wasmpipe/internal/value"
)

// CBOR major types used by the hand-written container heads.
const (
	majorUnsigned = 0
	majorNegative = 1
	majorBytes    = 2
	majorText     = 3
	majorArray    = 4
	majorMap      = 5
	majorTag      = 6
	majorSimple   = 7

	breakByte = 0xff

	// maxDepth bounds container nesting on decode.
	maxDepth = 1000
)

// CBOR encodes values as RFC 8949 data items.
//
// Arrays and maps are written with definite-length heads in member order, so
// object insertion order survives a round-trip. Scalars go through the
// fxamacker encoder in core deterministic mode, which picks the shortest
// lossless float width.
type CBOR struct {
	em cbor.EncMode
	dm cbor.DecMode
}

// NewCBOR creates a CBOR codec.
func NewCBOR() *CBOR {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: failed to create CBOR enc mode: %v", err))
	}
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("codec: failed to create CBOR dec mode: %v", err))
	}
	return &CBOR{em: em, dm: dm}
}

func (*CBOR) Name() string { return "cbor" }

// Encode writes v as a single CBOR data item.
func (c *CBOR) Encode(v value.Value) ([]byte, error) {
	out, err := c.appendValue(nil, v)
	if err != nil {
		return nil, &EncodeError{Codec: "cbor", Err: err}
	}
	return out, nil
}

func (c *CBOR) appendValue(out []byte, v value.Value) ([]byte, error) {
	switch val := v.(type) {
	case value.Null:
		return c.appendScalar(out, nil)
	case value.Bool:
		return c.appendScalar(out, bool(val))
	case value.Int:
		return c.appendScalar(out, int64(val))
	case value.Float:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("unsupported float value: %v", f)
		}
		return c.appendScalar(out, f)
	case value.String:
		return c.appendScalar(out, string(val))
	case value.Array:
		out = appendHead(out, majorArray, uint64(len(val)))
		for i, elem := range val {
			var err error
			if out, err = c.appendValue(out, elem); err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		return out, nil
	case *value.Object:
		out = appendHead(out, majorMap, uint64(val.Len()))
		for _, m := range val.Members() {
			var err error
			if out, err = c.appendScalar(out, m.Key); err != nil {
				return nil, err
			}
			if out, err = c.appendValue(out, m.Value); err != nil {
				return nil, fmt.Errorf("object[%q]: %w", m.Key, err)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown value type: %T", v)
}

func (c *CBOR) appendScalar(out []byte, x any) ([]byte, error) {
	b, err := c.em.Marshal(x)
	if err != nil {
		return nil, err
	}
	return append(out, b...), nil
}

// appendHead writes the initial byte and argument of a data item.
func appendHead(out []byte, major byte, n uint64) []byte {
	m := major << 5
	switch {
	case n < 24:
		return append(out, m|byte(n))
	case n <= math.MaxUint8:
		return append(out, m|24, byte(n))
	case n <= math.MaxUint16:
		return binary.BigEndian.AppendUint16(append(out, m|25), uint16(n))
	case n <= math.MaxUint32:
		return binary.BigEndian.AppendUint32(append(out, m|26), uint32(n))
	default:
		return binary.BigEndian.AppendUint64(append(out, m|27), n)
	}
}

// Decode reads exactly one CBOR data item.
func (c *CBOR) Decode(data []byte) (value.Value, error) {
	d := &cborDecoder{dm: c.dm, data: data}
	v, err := d.item(0)
	if err != nil {
		return nil, &DecodeError{Codec: "cbor", Offset: d.pos, Err: err}
	}
	if d.pos != len(data) {
		return nil, &DecodeError{Codec: "cbor", Offset: d.pos, Err: errors.New("unexpected data after top-level item")}
	}
	return v, nil
}

type cborDecoder struct {
	dm   cbor.DecMode
	data []byte
	pos  int
}

func (d *cborDecoder) item(depth int) (value.Value, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("nesting deeper than %d", maxDepth)
	}
	if d.pos >= len(d.data) {
		return nil, errors.New("unexpected end of data")
	}

	switch major := d.data[d.pos] >> 5; major {
	case majorArray:
		return d.array(depth)
	case majorMap:
		return d.object(depth)
	case majorBytes:
		return nil, errors.New("byte strings are not supported")
	case majorTag:
		return nil, errors.New("tagged items are not supported")
	default:
		return d.scalar()
	}
}

func (d *cborDecoder) array(depth int) (value.Value, error) {
	n, indefinite, err := d.head()
	if err != nil {
		return nil, err
	}

	arr := make(value.Array, 0, d.capacity(n, indefinite))
	for i := uint64(0); indefinite || i < n; i++ {
		if indefinite && d.consumeBreak() {
			break
		}
		elem, err := d.item(depth + 1)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		arr = append(arr, elem)
	}
	return arr, nil
}

func (d *cborDecoder) object(depth int) (value.Value, error) {
	n, indefinite, err := d.head()
	if err != nil {
		return nil, err
	}

	obj := value.NewObject()
	for i := uint64(0); indefinite || i < n; i++ {
		if indefinite && d.consumeBreak() {
			break
		}
		k, err := d.item(depth + 1)
		if err != nil {
			return nil, fmt.Errorf("map key %d: %w", i, err)
		}
		key, ok := k.(value.String)
		if !ok {
			return nil, fmt.Errorf("map key %d: keys must be text strings, got %s", i, k.Kind())
		}
		elem, err := d.item(depth + 1)
		if err != nil {
			return nil, fmt.Errorf("object[%q]: %w", string(key), err)
		}
		obj.Set(string(key), elem)
	}
	return obj, nil
}

// scalar hands the next item to the library decoder.
func (d *cborDecoder) scalar() (value.Value, error) {
	var x any
	rest, err := d.dm.UnmarshalFirst(d.data[d.pos:], &x)
	if err != nil {
		return nil, err
	}

	switch val := x.(type) {
	case nil, bool, string, uint64, int64, float64, *big.Int:
	case big.Int:
		// Negative integers below MinInt64. They become Float, like unsigned
		// integers above MaxInt64.
		x = &val
	default:
		// cbor.SimpleValue and friends
		return nil, fmt.Errorf("unsupported CBOR item of type %T", x)
	}

	v, err := value.FromAny(x)
	if err != nil {
		return nil, err
	}
	d.pos = len(d.data) - len(rest)
	return v, nil
}

// head consumes the initial byte and argument of a container.
func (d *cborDecoder) head() (n uint64, indefinite bool, err error) {
	ai := d.data[d.pos] & 0x1f
	d.pos++

	var size int
	switch {
	case ai < 24:
		return uint64(ai), false, nil
	case ai == 24:
		size = 1
	case ai == 25:
		size = 2
	case ai == 26:
		size = 4
	case ai == 27:
		size = 8
	case ai == 31:
		return 0, true, nil
	default:
		return 0, false, fmt.Errorf("malformed additional information %d", ai)
	}

	if d.pos+size > len(d.data) {
		return 0, false, errors.New("unexpected end of data in item head")
	}
	b := d.data[d.pos : d.pos+size]
	d.pos += size

	switch size {
	case 1:
		n = uint64(b[0])
	case 2:
		n = uint64(binary.BigEndian.Uint16(b))
	case 4:
		n = uint64(binary.BigEndian.Uint32(b))
	default:
		n = binary.BigEndian.Uint64(b)
	}
	return n, false, nil
}

func (d *cborDecoder) consumeBreak() bool {
	if d.pos < len(d.data) && d.data[d.pos] == breakByte {
		d.pos++
		return true
	}
	return false
}

// capacity caps preallocation by the bytes left, since every item takes at
// least one byte.
func (d *cborDecoder) capacity(n uint64, indefinite bool) int {
	if indefinite {
		return 0
	}
	if remaining := uint64(len(d.data) - d.pos); n > remaining {
		return int(remaining)
	}
	return int(n)
}
