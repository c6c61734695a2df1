// models/dataset.go
package models

import (
	"sort"
	"strings"
	"time"
)

// Field datatypes understood by the editor.
const (
	DatatypeCurie    = "curie"
	DatatypeString   = "string"
	DatatypeText     = "text"
	DatatypeURL      = "url"
	DatatypeDatetime = "datetime"
	DatatypeInteger  = "integer"
)

// Dataset is a named register schema. Its ID is the dataset slug.
type Dataset struct {
	ID            string     `db:"dataset" json:"dataset"`
	Name          string     `db:"name" json:"name"`
	Prefix        string     `db:"prefix" json:"prefix,omitempty"` // fixed prefix override, empty means use ID
	EntityMinimum int64      `db:"entity_minimum" json:"entity-minimum"`
	EntityMaximum int64      `db:"entity_maximum" json:"entity-maximum"` // 0 means unbounded
	EndDate       *time.Time `db:"end_date" json:"end-date,omitempty"`
	LastUpdated   *time.Time `db:"last_updated" json:"last-updated,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"-"`

	Fields []Field `db:"-" json:"fields"`
}

// Field is a typed column definition shared between datasets.
type Field struct {
	Field       string `db:"field" json:"field"`
	Name        string `db:"name" json:"name"`
	Datatype    string `db:"datatype" json:"datatype"`
	Description string `db:"description" json:"description,omitempty"`
}

// Ended reports whether the dataset has been retired.
func (d *Dataset) Ended() bool {
	return d.EndDate != nil
}

// RecordPrefix is the prefix given to new records of this dataset.
func (d *Dataset) RecordPrefix() string {
	if d.Prefix != "" {
		return d.Prefix
	}
	return d.ID
}

// FieldNames returns the field slugs in display order.
func (d *Dataset) FieldNames() []string {
	fields := SortFields(d.Fields)
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Field
	}
	return names
}

// HasField reports whether slug is part of the dataset schema.
func (d *Dataset) HasField(slug string) bool {
	for _, f := range d.Fields {
		if f.Field == slug {
			return true
		}
	}
	return false
}

var leaderRank = map[string]int{
	"entity":    0,
	"name":      1,
	"prefix":    2,
	"reference": 3,
}

// Date fields outside entry/start/end sit between start-date and end-date.
var dateRank = map[string]int{
	"entry-date": 0,
	"start-date": 1,
	"end-date":   3,
}

const otherDateRank = 2

// IsDate reports whether the field holds a date.
func (f Field) IsDate() bool {
	return f.Datatype == DatatypeDatetime || strings.HasSuffix(f.Field, "-date")
}

// fieldSortKey is the tuple (leader rank, is-date, date sub-rank, slug).
type fieldSortKey struct {
	leader   int
	isDate   int
	dateRank int
	slug     string
}

func (f Field) sortKey() fieldSortKey {
	key := fieldSortKey{leader: len(leaderRank), slug: f.Field}
	if rank, ok := leaderRank[f.Field]; ok {
		key.leader = rank
		return key
	}
	if f.IsDate() {
		key.isDate = 1
		key.dateRank = otherDateRank
		if rank, ok := dateRank[f.Field]; ok {
			key.dateRank = rank
		}
	}
	return key
}

func (k fieldSortKey) less(o fieldSortKey) bool {
	if k.leader != o.leader {
		return k.leader < o.leader
	}
	if k.isDate != o.isDate {
		return k.isDate < o.isDate
	}
	if k.dateRank != o.dateRank {
		return k.dateRank < o.dateRank
	}
	return k.slug < o.slug
}

// SortFields returns a copy of fields in display order: entity, name, prefix,
// reference, then other fields alphabetically, then the date fields.
func SortFields(fields []Field) []Field {
	out := make([]Field, len(fields))
	copy(out, fields)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].sortKey().less(out[j].sortKey())
	})
	return out
}
