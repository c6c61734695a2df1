// database/convert.go
package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gewnthar/registers/models"
)

// Calendar dates are stored as YYYY-MM-DD text so both drivers agree.
func nullDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: models.FormatDate(t), Valid: true}
}

func scanDate(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	return models.ParseDate(s.String)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode json column: %w", err)
	}
	return string(b), nil
}

func unmarshalJSON(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode json column: %w", err)
	}
	return nil
}
