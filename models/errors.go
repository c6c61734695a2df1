// models/errors.go
package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound is returned for unknown datasets, records and updates.
	ErrNotFound = errors.New("not found")
	// ErrDatasetEnded blocks changes to a retired dataset.
	ErrDatasetEnded = errors.New("dataset has ended")
	// ErrRecordEnded blocks ordinary edits to an archived record.
	ErrRecordEnded = errors.New("record has already ended")
	// ErrNotArchived is returned when unarchiving an active record.
	ErrNotArchived = errors.New("record is not archived")
	// ErrConflict means the record changed since it was read.
	ErrConflict = errors.New("record was changed by someone else")
	// ErrEntityRangeExhausted means no entity number is left in the dataset range.
	ErrEntityRangeExhausted = errors.New("entity number range exhausted")
	// ErrEntityOutOfRange rejects an explicit entity outside the dataset range.
	ErrEntityOutOfRange = errors.New("entity outside dataset range")
	// ErrInvalidEntity rejects an entity that is not a whole number.
	ErrInvalidEntity = errors.New("entity must be a whole number")
	// ErrSchemaMismatch is wrapped by SchemaMismatchError.
	ErrSchemaMismatch = errors.New("csv fields do not match the dataset specification")
	// ErrInvalidDate is returned for unparseable dates.
	ErrInvalidDate = errors.New("invalid date")
	// ErrInvalidFile rejects uploads that are not CSV files.
	ErrInvalidFile = errors.New("file must be a csv")
	// ErrUpdateNotPending is returned when acting on a finished update.
	ErrUpdateNotPending = errors.New("update is not pending")
)

// SchemaMismatchError lists the CSV columns that are not dataset fields.
type SchemaMismatchError struct {
	Fields []string
}

// NewSchemaMismatchError sorts the offending field names.
func NewSchemaMismatchError(fields []string) *SchemaMismatchError {
	sorted := append([]string(nil), fields...)
	sort.Strings(sorted)
	return &SchemaMismatchError{Fields: sorted}
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("CSV file contains fields not in specification: %s", strings.Join(e.Fields, ", "))
}

func (e *SchemaMismatchError) Unwrap() error {
	return ErrSchemaMismatch
}
