package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONB stores any JSON-serialisable value in a PostgreSQL JSONB column
type JSONB[T any] struct {
	V T
}

// NewJSONB wraps a value for storage
func NewJSONB[T any](v T) JSONB[T] {
	return JSONB[T]{V: v}
}

// Value implements driver.Valuer interface
func (j JSONB[T]) Value() (driver.Value, error) {
	return json.Marshal(j.V)
}

// Scan implements sql.Scanner interface
func (j *JSONB[T]) Scan(value interface{}) error {
	var zero T
	var bytes []byte
	switch v := value.(type) {
	case nil:
		j.V = zero
		return nil
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONB", value)
	}

	if len(bytes) == 0 {
		j.V = zero
		return nil
	}
	return json.Unmarshal(bytes, &j.V)
}
