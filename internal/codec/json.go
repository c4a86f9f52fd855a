package codec

import (
	"errors"

	"github.com/roach88/wasmpipe/internal/value"
)

// JSON passes documents as compact UTF-8 JSON.
type JSON struct{}

func (*JSON) Name() string { return "json" }

func (*JSON) Encode(v value.Value) ([]byte, error) {
	data, err := value.Marshal(v)
	if err != nil {
		return nil, &EncodeError{Codec: "json", Err: err}
	}
	return data, nil
}

func (*JSON) Decode(data []byte) (value.Value, error) {
	v, err := value.Decode(data)
	if err != nil {
		offset := -1
		var se *value.SyntaxError
		if errors.As(err, &se) {
			offset = int(se.Offset)
		}
		return nil, &DecodeError{Codec: "json", Offset: offset, Err: err}
	}
	return v, nil
}
