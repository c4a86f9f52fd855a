package store

import (
	"database/sql"
	"fmt"

	"github.com/roach88/wasmpipe/internal/value"
)

// Documents are stored in insertion order with Float kept distinct from Int,
// so that replay re-encodes exactly the bytes the original run sent.
func marshalDocument(v value.Value) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := value.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal document: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalDocument(data sql.NullString) (value.Value, error) {
	if !data.Valid {
		return nil, nil
	}
	v, err := value.Decode([]byte(data.String))
	if err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return v, nil
}
