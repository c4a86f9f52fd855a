package value

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"slices"
	"strconv"
)

// FromAny converts a plain Go value into a Value.
//
// Accepted inputs are what encoding/json, gopkg.in/yaml.v3 and gojq produce:
// nil, bool, string, the integer and float kinds, json.Number, *big.Int,
// []any, map[string]any and map[any]any with string keys. Maps have no
// order, so their keys are inserted in RFC 8785 order.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case int:
		return Int(val), nil
	case int8:
		return Int(val), nil
	case int16:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint:
		return fromUint(uint64(val)), nil
	case uint8:
		return Int(val), nil
	case uint16:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case uint64:
		return fromUint(val), nil
	case float32:
		return fromFloat(float64(val))
	case float64:
		return fromFloat(val)
	case json.Number:
		return parseNumber(string(val))
	case *big.Int:
		if val.IsInt64() {
			return Int(val.Int64()), nil
		}
		f, _ := new(big.Float).SetInt(val).Float64()
		return fromFloat(f)
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			conv, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = conv
		}
		return arr, nil
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		slices.SortFunc(keys, compareKeysRFC8785)

		obj := NewObject()
		for _, k := range keys {
			conv, err := FromAny(val[k])
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj.Set(k, conv)
		}
		return obj, nil
	case map[any]any:
		m := make(map[string]any, len(val))
		for k, elem := range val {
			key, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("object key %v: keys must be strings, got %T", k, k)
			}
			m[key] = elem
		}
		return FromAny(m)
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

func fromUint(u uint64) Value {
	if u <= math.MaxInt64 {
		return Int(int64(u))
	}
	return Float(float64(u))
}

func fromFloat(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("unsupported float value: %s", strconv.FormatFloat(f, 'g', -1, 64))
	}
	return Float(f), nil
}

// ToAny converts v into plain Go values: nil, bool, int, float64, string,
// []any and map[string]any. This is the input shape gojq expects.
// Object order is lost.
func ToAny(v Value) any {
	switch val := v.(type) {
	case Null:
		return nil
	case Bool:
		return bool(val)
	case Int:
		if n := int64(val); int64(int(n)) == n {
			return int(n)
		}
		return float64(val)
	case Float:
		return float64(val)
	case String:
		return string(val)
	case Array:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToAny(elem)
		}
		return out
	case *Object:
		out := make(map[string]any, val.Len())
		for _, m := range val.members {
			out[m.Key] = ToAny(m.Value)
		}
		return out
	}
	return nil
}
