package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// timeLayout keeps sub-second precision so timeline ordering survives a
// round-trip through the database.
const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Fall back for rows written without sub-second precision.
		t, err = time.Parse(time.RFC3339, s)
	}
	return t, err
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

// nullIfEmpty converts empty strings to NULL for optional columns.
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// marshalJSON serializes v for a TEXT column, mapping nil/empty to NULL.
func marshalJSON(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal json column: %w", err)
	}
	if string(b) == "null" || string(b) == "[]" || string(b) == "{}" {
		return nil, nil
	}
	return string(b), nil
}

// unmarshalJSON deserializes a nullable TEXT column into out, leaving out
// untouched for NULL.
func unmarshalJSON(col sql.NullString, out interface{}) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(col.String), out); err != nil {
		return fmt.Errorf("failed to unmarshal json column: %w", err)
	}
	return nil
}
