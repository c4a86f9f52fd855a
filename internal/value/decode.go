package value

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"
)

// SyntaxError reports malformed JSON input.
type SyntaxError struct {
	Offset int64  // byte offset where the problem was detected
	Msg    string // description
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid JSON at offset %d: %s", e.Offset, e.Msg)
}

// Decode parses exactly one JSON document into a Value.
//
// Object member order is preserved. A key that appears twice keeps its first
// position and its last value. Anything after the document other than
// whitespace is an error.
func Decode(data []byte) (Value, error) {
	if !utf8.Valid(data) {
		return nil, &SyntaxError{Offset: int64(invalidUTF8Offset(data)), Msg: "invalid UTF-8"}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}

	if _, err := dec.Token(); err != io.EOF {
		if err != nil {
			return nil, syntaxError(dec, err)
		}
		return nil, &SyntaxError{Offset: dec.InputOffset(), Msg: "unexpected data after top-level value"}
	}
	return v, nil
}

// DecodeReader reads r to the end and decodes the content with Decode.
func DecodeReader(r io.Reader) (Value, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, syntaxError(dec, err)
	}

	switch t := tok.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		v, err := parseNumber(string(t))
		if err != nil {
			return nil, &SyntaxError{Offset: dec.InputOffset(), Msg: err.Error()}
		}
		return v, nil
	case json.Delim:
		switch t {
		case '{':
			return decodeObject(dec)
		case '[':
			return decodeArray(dec)
		}
	}
	return nil, &SyntaxError{Offset: dec.InputOffset(), Msg: fmt.Sprintf("unexpected token %v", tok)}
}

func decodeObject(dec *json.Decoder) (Value, error) {
	obj := NewObject()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, syntaxError(dec, err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, &SyntaxError{Offset: dec.InputOffset(), Msg: "object key must be a string"}
		}
		v, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		obj.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, syntaxError(dec, err)
	}
	return obj, nil
}

func decodeArray(dec *json.Decoder) (Value, error) {
	arr := Array{}
	for dec.More() {
		v, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		arr = append(arr, v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, syntaxError(dec, err)
	}
	return arr, nil
}

// parseNumber classifies a JSON number literal.
// No fraction and no exponent and within int64 range gives Int.
func parseNumber(s string) (Value, error) {
	if !strings.ContainsAny(s, ".eE") {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Int(n), nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("number %s out of range", s)
	}
	return Float(f), nil
}

func syntaxError(dec *json.Decoder, err error) error {
	var se *json.SyntaxError
	if errors.As(err, &se) {
		return &SyntaxError{Offset: se.Offset, Msg: se.Error()}
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return &SyntaxError{Offset: dec.InputOffset(), Msg: "unexpected end of input"}
	}
	return &SyntaxError{Offset: dec.InputOffset(), Msg: err.Error()}
}

func invalidUTF8Offset(data []byte) int {
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			return i
		}
		i += size
	}
	return len(data)
}
