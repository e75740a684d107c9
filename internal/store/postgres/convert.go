package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	pgvector "github.com/pgvector/pgvector-go"
)

// nullString maps "" to SQL NULL for nullable unique columns.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullUUID maps uuid.Nil to SQL NULL.
func nullUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

// nullVector maps an empty embedding to SQL NULL.
func nullVector(v []float32) *pgvector.Vector {
	if len(v) == 0 {
		return nil
	}
	vec := pgvector.NewVector(v)
	return &vec
}

// marshalJSON encodes v for a JSONB column, mapping nil maps and slices to
// their empty JSON form so the column never holds SQL NULL.
func marshalJSON(op string, v any) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal: %w", op, err)
	}
	if string(b) == "null" {
		return []byte("{}"), nil
	}
	return b, nil
}

// unmarshalJSON decodes a JSONB column into v, tolerating NULL.
func unmarshalJSON(op string, data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s: unmarshal: %w", op, err)
	}
	return nil
}
