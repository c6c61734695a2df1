// models/update.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// UpdateStatus tracks a bulk update through preview and apply.
type UpdateStatus string

const (
	UpdatePending    UpdateStatus = "PENDING"
	UpdateComplete   UpdateStatus = "COMPLETE"
	UpdateIncomplete UpdateStatus = "INCOMPLETE"
	UpdateCancelled  UpdateStatus = "CANCELLED"
)

// RowKind is the classification given to an uploaded update row.
type RowKind string

const (
	RowNew        RowKind = "new"
	RowEnded      RowKind = "ended"
	RowUpdated    RowKind = "updated"
	RowInvalid    RowKind = "invalid"
	RowNotUpdated RowKind = "not_updated"
)

// Actionable reports whether rows of this kind can be applied.
func (k RowKind) Actionable() bool {
	return k == RowNew || k == RowEnded || k == RowUpdated
}

// Update is a dataset-scoped batch of proposed changes uploaded as CSV.
type Update struct {
	ID        uuid.UUID    `db:"id" json:"id"`
	Name      string       `db:"name" json:"name"`
	DatasetID string       `db:"dataset_id" json:"dataset"`
	Status    UpdateStatus `db:"status" json:"status"`
	CreatedAt time.Time    `db:"created_at" json:"created-at"`
	UpdatedAt time.Time    `db:"updated_at" json:"updated-at"`

	Records []UpdateRecord `db:"-" json:"records,omitempty"`
}

// Pending reports whether the update can still be applied or cancelled.
func (u *Update) Pending() bool {
	return u.Status == UpdatePending
}

// UpdateRecord is one raw row of an Update with its computed classification.
type UpdateRecord struct {
	ID        uuid.UUID         `db:"id" json:"id"`
	UpdateID  uuid.UUID         `db:"update_id" json:"update"`
	Position  int               `db:"position" json:"position"`
	Data      map[string]string `db:"data" json:"data"`
	Kind      RowKind           `db:"kind" json:"kind,omitempty"`
	Notes     []string          `db:"notes" json:"notes,omitempty"`
	Processed bool              `db:"processed" json:"processed"`
}

// Entity returns the raw entity column of the row.
func (u *UpdateRecord) Entity() string {
	return u.Data["entity"]
}
