package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Timestamps are stored as unix microseconds. Microsecond resolution is
// fine enough to distinguish consecutive updates, which the half-open
// polling contract depends on.

func toMicro(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

func fromMicro(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}

func toMicroPtr(t *time.Time) any {
	if t == nil {
		return nil
	}

	return toMicro(*t)
}

func fromMicroPtr(us sql.NullInt64) *time.Time {
	if !us.Valid {
		return nil
	}

	t := fromMicro(us.Int64)

	return &t
}

func marshalJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal value: %w", err)
	}

	return string(data), nil
}

// marshalJSONPtr returns nil for nil pointers so the column stays NULL.
func marshalJSONPtr[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}

	return string(data), nil
}

func unmarshalJSON[T any](data string, out *T) error {
	if err := json.Unmarshal([]byte(data), out); err != nil {
		return fmt.Errorf("failed to unmarshal value: %w", err)
	}

	return nil
}

func unmarshalJSONPtr[T any](data sql.NullString) (*T, error) {
	if !data.Valid {
		return nil, nil
	}

	out := new(T)
	if err := json.Unmarshal([]byte(data.String), out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal value: %w", err)
	}

	return out, nil
}
