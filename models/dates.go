// models/dates.go
package models

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the CSV and form date format.
const DateLayout = "2006-01-02"

// Partial dates are accepted and default to the first month/day.
var dateLayouts = []string{DateLayout, "2006-01", "2006"}

// ParseDate parses YYYY-MM-DD, YYYY-MM or YYYY. A blank string is a null date.
func ParseDate(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidDate, value)
}

// FormatDate renders a date as YYYY-MM-DD, or "" for a null date.
func FormatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(DateLayout)
}

// SameDate compares two nullable dates at day precision.
func SameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return FormatDate(a) == FormatDate(b)
}

// Today truncates now to a UTC calendar date.
func Today(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
