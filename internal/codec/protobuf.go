package codec

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/roach88/wasmpipe/internal/value"
)

// maxExactInt is the largest integer a double represents exactly.
const maxExactInt = 1 << 53

// Protobuf encodes values as a serialized google.protobuf.Value.
//
// The wire type has a single number kind, so integers above 2^53 in magnitude
// are rejected on encode, and on decode every integral double inside that
// range comes back as Int. Struct fields are a protobuf map, which has no
// order; decoded objects list their keys in RFC 8785 order.
type Protobuf struct{}

func (*Protobuf) Name() string { return "protobuf" }

func (*Protobuf) Encode(v value.Value) ([]byte, error) {
	pv, err := toProto(v)
	if err != nil {
		return nil, &EncodeError{Codec: "protobuf", Err: err}
	}
	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(pv)
	if err != nil {
		return nil, &EncodeError{Codec: "protobuf", Err: err}
	}
	return data, nil
}

func (*Protobuf) Decode(data []byte) (value.Value, error) {
	var pv structpb.Value
	if err := proto.Unmarshal(data, &pv); err != nil {
		return nil, &DecodeError{Codec: "protobuf", Offset: -1, Err: err}
	}
	v, err := fromProto(&pv)
	if err != nil {
		return nil, &DecodeError{Codec: "protobuf", Offset: -1, Err: err}
	}
	return v, nil
}

func toProto(v value.Value) (*structpb.Value, error) {
	switch val := v.(type) {
	case value.Null:
		return structpb.NewNullValue(), nil
	case value.Bool:
		return structpb.NewBoolValue(bool(val)), nil
	case value.Int:
		if val > maxExactInt || val < -maxExactInt {
			return nil, fmt.Errorf("integer %d is not exactly representable as a double", int64(val))
		}
		return structpb.NewNumberValue(float64(val)), nil
	case value.Float:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("unsupported float value: %v", f)
		}
		return structpb.NewNumberValue(f), nil
	case value.String:
		return structpb.NewStringValue(string(val)), nil
	case value.Array:
		list := &structpb.ListValue{Values: make([]*structpb.Value, len(val))}
		for i, elem := range val {
			pv, err := toProto(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			list.Values[i] = pv
		}
		return structpb.NewListValue(list), nil
	case *value.Object:
		st := &structpb.Struct{Fields: make(map[string]*structpb.Value, val.Len())}
		for _, m := range val.Members() {
			pv, err := toProto(m.Value)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", m.Key, err)
			}
			st.Fields[m.Key] = pv
		}
		return structpb.NewStructValue(st), nil
	}
	return nil, fmt.Errorf("unknown value type: %T", v)
}

func fromProto(pv *structpb.Value) (value.Value, error) {
	switch kind := pv.GetKind().(type) {
	case *structpb.Value_NullValue:
		return value.Null{}, nil
	case *structpb.Value_BoolValue:
		return value.Bool(kind.BoolValue), nil
	case *structpb.Value_NumberValue:
		f := kind.NumberValue
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("unsupported float value: %v", f)
		}
		if f == math.Trunc(f) && math.Abs(f) <= maxExactInt {
			return value.Int(int64(f)), nil
		}
		return value.Float(f), nil
	case *structpb.Value_StringValue:
		return value.String(kind.StringValue), nil
	case *structpb.Value_ListValue:
		elems := kind.ListValue.GetValues()
		arr := make(value.Array, len(elems))
		for i, elem := range elems {
			v, err := fromProto(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = v
		}
		return arr, nil
	case *structpb.Value_StructValue:
		fields := kind.StructValue.GetFields()
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		value.SortKeys(keys)

		obj := value.NewObject()
		for _, k := range keys {
			v, err := fromProto(fields[k])
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj.Set(k, v)
		}
		return obj, nil
	case nil:
		return nil, errors.New("value has no kind set")
	}
	return nil, fmt.Errorf("unknown protobuf value kind: %T", pv.GetKind())
}
