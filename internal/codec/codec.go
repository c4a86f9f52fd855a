package codec

import (
	"fmt"
	"sort"

	"github.com/roach88/wasmpipe/internal/value"
)

// Default is the codec used when none is configured.
const Default = "cbor"

// Codec converts between value trees and bytes.
type Codec interface {
	Name() string
	Encode(v value.Value) ([]byte, error)
	Decode(data []byte) (value.Value, error)
}

var registry = map[string]func() Codec{
	"cbor":     func() Codec { return NewCBOR() },
	"protobuf": func() Codec { return &Protobuf{} },
	"json":     func() Codec { return &JSON{} },
}

// Get returns the codec registered under name.
func Get(name string) (Codec, error) {
	newCodec, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown codec %q: must be one of %v", name, Names())
	}
	return newCodec(), nil
}

// Names lists registered codec names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EncodeError reports a value that a codec cannot represent.
type EncodeError struct {
	Codec string
	Err   error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("%s encode: %v", e.Codec, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// DecodeError reports bytes that are not a valid payload for a codec.
type DecodeError struct {
	Codec  string
	Offset int // byte offset of the failing item, -1 if unknown
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("%s decode at byte %d: %v", e.Codec, e.Offset, e.Err)
	}
	return fmt.Sprintf("%s decode: %v", e.Codec, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
