// models/record.go
package models

import (
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Record is one row of a dataset.
type Record struct {
	ID        uuid.UUID         `db:"id" json:"id"`
	RowID     int               `db:"row_id" json:"row-id"`
	Entity    int64             `db:"entity" json:"entity"`
	Prefix    string            `db:"prefix" json:"prefix"`
	Reference string            `db:"reference" json:"reference"`
	DatasetID string            `db:"dataset_id" json:"dataset"`
	Data      map[string]string `db:"data" json:"data"`
	EntryDate *time.Time        `db:"entry_date" json:"entry-date,omitempty"`
	StartDate *time.Time        `db:"start_date" json:"start-date,omitempty"`
	EndDate   *time.Time        `db:"end_date" json:"end-date,omitempty"`
	Version   int               `db:"version" json:"version"`
	CreatedAt time.Time         `db:"created_at" json:"-"`
	UpdatedAt time.Time         `db:"updated_at" json:"-"`
}

// Ended reports whether the record is archived or superseded.
func (r *Record) Ended() bool {
	return r.EndDate != nil
}

// Curie is the prefix:reference identifier of the record.
func (r *Record) Curie() string {
	return r.Prefix + ":" + r.Reference
}

// ToDict flattens the record into field slug -> value. First-class attributes
// win over data bag entries and null values become "".
func (r *Record) ToDict() map[string]string {
	out := make(map[string]string, len(r.Data)+6)
	for k, v := range r.Data {
		out[k] = v
	}
	out["entity"] = strconv.FormatInt(r.Entity, 10)
	out["prefix"] = r.Prefix
	out["reference"] = r.Reference
	out["entry-date"] = FormatDate(r.EntryDate)
	out["start-date"] = FormatDate(r.StartDate)
	out["end-date"] = FormatDate(r.EndDate)
	return out
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	c := *r
	c.Data = make(map[string]string, len(r.Data))
	for k, v := range r.Data {
		c.Data[k] = v
	}
	c.EntryDate = cloneDate(r.EntryDate)
	c.StartDate = cloneDate(r.StartDate)
	c.EndDate = cloneDate(r.EndDate)
	return &c
}

func cloneDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// ChangeType is the kind of mutation a ChangeLog records.
type ChangeType string

const (
	ChangeAdd     ChangeType = "ADD"
	ChangeEdit    ChangeType = "EDIT"
	ChangeArchive ChangeType = "ARCHIVE"
)

// ChangeData holds full before/after snapshots. From is empty for ADD.
type ChangeData struct {
	From map[string]string `json:"from"`
	To   map[string]string `json:"to"`
}

// ChangeLog is an immutable audit entry for one record mutation.
type ChangeLog struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	ChangeType     ChangeType `db:"change_type" json:"change-type"`
	Data           ChangeData `db:"data" json:"data"`
	Notes          string     `db:"notes" json:"notes,omitempty"`
	DatasetID      string     `db:"dataset_id" json:"dataset"`
	RecordID       uuid.UUID  `db:"record_id" json:"record"`
	CreatedAt      time.Time  `db:"created_at" json:"created-at"`
	PushedToGitHub bool       `db:"pushed_to_github" json:"pushed-to-github"`
}

// ChangedFields lists the fields whose value differs between From and To.
func (c *ChangeLog) ChangedFields() []string {
	seen := map[string]bool{}
	var fields []string
	for k, v := range c.Data.To {
		if c.Data.From[k] != v {
			fields = append(fields, k)
			seen[k] = true
		}
	}
	for k := range c.Data.From {
		if _, ok := c.Data.To[k]; !ok && !seen[k] {
			fields = append(fields, k)
		}
	}
	sort.Strings(fields)
	return fields
}
