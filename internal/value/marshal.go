package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Marshal encodes v as compact JSON, keeping object insertion order.
//
// Floats always carry a fraction or an exponent, so Decode(Marshal(v)) keeps
// the Int/Float distinction. HTML characters are not escaped.
func Marshal(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, v, false); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalCanonical produces RFC 8785 canonical JSON.
//
// Differences from Marshal:
//  1. Object keys NFC normalized, then sorted by UTF-16 code units
//  2. Strings are NFC normalized
//  3. Numbers use the ECMAScript form, so Float(2) prints as 2
//
// This is the form used for digests and golden snapshots.
func MarshalCanonical(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, v, true); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encode(buf *bytes.Buffer, v Value, canonical bool) error {
	switch val := v.(type) {
	case Null:
		buf.WriteString("null")
	case Bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case Float:
		b, err := formatFloat(float64(val), canonical)
		if err != nil {
			return err
		}
		buf.Write(b)
	case String:
		s := string(val)
		if canonical {
			s = norm.NFC.String(s)
		}
		writeString(buf, s)
	case Array:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, elem, canonical); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case *Object:
		if canonical {
			return encodeCanonicalObject(buf, val)
		}
		buf.WriteByte('{')
		for i, m := range val.members {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, m.Key)
			buf.WriteByte(':')
			if err := encode(buf, m.Value, false); err != nil {
				return fmt.Errorf("object[%q]: %w", m.Key, err)
			}
		}
		buf.WriteByte('}')
	case nil:
		return fmt.Errorf("nil Value (use Null{})")
	default:
		return fmt.Errorf("unknown Value type: %T", v)
	}
	return nil
}

// encodeCanonicalObject normalizes keys to NFC before sorting them. Two keys
// that normalize to the same string cannot both appear in canonical form.
func encodeCanonicalObject(buf *bytes.Buffer, obj *Object) error {
	members := make([]Member, len(obj.members))
	seen := make(map[string]string, len(obj.members))
	for i, m := range obj.members {
		key := norm.NFC.String(m.Key)
		if prev, dup := seen[key]; dup {
			return fmt.Errorf("object keys %q and %q are equal after NFC normalization", prev, m.Key)
		}
		seen[key] = m.Key
		members[i] = Member{Key: key, Value: m.Value}
	}
	slices.SortFunc(members, func(a, b Member) int { return compareKeysRFC8785(a.Key, b.Key) })

	buf.WriteByte('{')
	for i, m := range members {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(buf, m.Key)
		buf.WriteByte(':')
		if err := encode(buf, m.Value, true); err != nil {
			return fmt.Errorf("object[%q]: %w", m.Key, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

// formatFloat renders f the way encoding/json and ECMAScript do.
// Outside canonical mode an integral result gets a ".0" suffix.
func formatFloat(f float64, canonical bool) ([]byte, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("unsupported float value: %v", f)
	}
	if f == 0 {
		f = 0 // drop the sign of negative zero
	}

	format := byte('f')
	if abs := math.Abs(f); abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		format = 'e'
	}
	b := strconv.AppendFloat(nil, f, format, -1, 64)
	if format == 'e' {
		// clean up e-09 to e-9
		n := len(b)
		if n >= 4 && b[n-4] == 'e' && b[n-3] == '-' && b[n-2] == '0' {
			b[n-2] = b[n-1]
			b = b[:n-1]
		}
	}

	if !canonical && !bytes.ContainsAny(b, ".eE") {
		b = append(b, '.', '0')
	}
	return b, nil
}

// writeString writes s as a JSON string without HTML escaping.
// U+2028 and U+2029 are written literally as RFC 8785 requires.
func writeString(buf *bytes.Buffer, s string) {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s) // strings always encode

	out := bytes.TrimSuffix(tmp.Bytes(), []byte{'\n'})
	buf.Write(unescapeLineSeparators(out))
}

// unescapeLineSeparators turns the \u2028 and \u2029 escapes emitted by
// encoding/json back into literal characters. An escaped backslash followed
// by the text "u2028" is left alone.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}

	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); {
		if data[i] != '\\' || i+1 >= len(data) {
			out = append(out, data[i])
			i++
			continue
		}
		if i+6 <= len(data) && data[i+1] == 'u' {
			switch string(data[i+2 : i+6]) {
			case "2028":
				out = utf8.AppendRune(out, '\u2028')
				i += 6
				continue
			case "2029":
				out = utf8.AppendRune(out, '\u2029')
				i += 6
				continue
			}
		}
		// Any other escape: copy the backslash and the escaped byte together.
		out = append(out, data[i], data[i+1])
		i += 2
	}
	return out
}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// MarshalJSON implements json.Marshaler for Float.
func (f Float) MarshalJSON() ([]byte, error) { return Marshal(f) }

// MarshalJSON implements json.Marshaler for String without HTML escaping.
func (s String) MarshalJSON() ([]byte, error) { return Marshal(s) }

// MarshalJSON implements json.Marshaler for Array.
func (a Array) MarshalJSON() ([]byte, error) { return Marshal(a) }

// MarshalJSON implements json.Marshaler for Object in insertion order.
func (o *Object) MarshalJSON() ([]byte, error) { return Marshal(o) }

// UnmarshalJSON implements json.Unmarshaler for Object.
func (o *Object) UnmarshalJSON(data []byte) error {
	v, err := Decode(data)
	if err != nil {
		return err
	}
	obj, ok := v.(*Object)
	if !ok {
		return fmt.Errorf("expected JSON object, got %s", v.Kind())
	}
	*o = *obj
	return nil
}
