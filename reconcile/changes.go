// reconcile/changes.go
package reconcile

import (
	"fmt"
	"time"

	"github.com/gewnthar/registers/models"
	"github.com/google/uuid"
)

// ApplyChange computes the new state of current under payload and the change
// log describing it. current is not modified. kind is EDIT or ARCHIVE; ARCHIVE
// ends the record on the payload's end-date, or today when none is given.
func ApplyChange(current *models.Record, p *Payload, kind models.ChangeType, now time.Time) (*models.Record, models.ChangeLog) {
	from := current.ToDict()
	next := current.Clone()

	applyPayload(next, p)
	next.Reference = current.Reference

	if kind == models.ChangeArchive {
		end, ok := p.Date("end-date")
		if !ok || end == nil {
			today := models.Today(now)
			end = &today
		}
		setDate(next, "end-date", end)
	}

	notes := ""
	if p.EditNotes != "" {
		notes = fmt.Sprintf("Updated %s. %s", next.Curie(), p.EditNotes)
	}
	return next, newChangeLog(next, kind, from, notes, now)
}

// Unarchive clears the end date of an archived record.
func Unarchive(current *models.Record, notes string, now time.Time) (*models.Record, models.ChangeLog, error) {
	if !current.Ended() {
		return nil, models.ChangeLog{}, fmt.Errorf("%s: %w", current.Curie(), models.ErrNotArchived)
	}
	from := current.ToDict()
	next := current.Clone()
	setDate(next, "end-date", nil)

	msg := fmt.Sprintf("Unarchived %s. %s", next.Curie(), notes)
	return next, newChangeLog(next, models.ChangeEdit, from, msg, now), nil
}

// NewRecord builds a record for ds from payload and the ADD change log for it.
// The entry date defaults to today.
func NewRecord(ds *models.Dataset, entity int64, rowID int, p *Payload, now time.Time) (*models.Record, models.ChangeLog) {
	r := &models.Record{
		ID:        uuid.New(),
		RowID:     rowID,
		Entity:    entity,
		Prefix:    ds.RecordPrefix(),
		DatasetID: ds.ID,
		Data:      map[string]string{},
		Version:   1,
	}
	applyPayload(r, p)
	if ref, ok := p.Values["reference"]; ok {
		r.Reference = ref
	}
	if r.EntryDate == nil {
		today := models.Today(now)
		setDate(r, "entry-date", &today)
	}
	return r, newChangeLog(r, models.ChangeAdd, map[string]string{}, p.EditNotes, now)
}

func applyPayload(r *models.Record, p *Payload) {
	for key, value := range p.Values {
		switch key {
		case "prefix":
			if value != "" {
				r.Prefix = value
			}
		case "reference":
		default:
			r.Data[key] = value
		}
	}
	for key, d := range p.Dates {
		setDate(r, key, d)
	}
	if p.StartDate != nil && !models.SameDate(p.StartDate, r.StartDate) {
		setDate(r, "start-date", p.StartDate)
	}
}

// setDate sets a date attribute and mirrors it into the data bag. Dates
// without an attribute live only in the data bag.
func setDate(r *models.Record, key string, d *time.Time) {
	switch key {
	case "entry-date":
		r.EntryDate = d
	case "start-date":
		r.StartDate = d
	case "end-date":
		r.EndDate = d
	}
	if d == nil {
		delete(r.Data, key)
		return
	}
	r.Data[key] = models.FormatDate(d)
}

func newChangeLog(r *models.Record, kind models.ChangeType, from map[string]string, notes string, now time.Time) models.ChangeLog {
	return models.ChangeLog{
		ID:         uuid.New(),
		ChangeType: kind,
		Data:       models.ChangeData{From: from, To: r.ToDict()},
		Notes:      notes,
		DatasetID:  r.DatasetID,
		RecordID:   r.ID,
		CreatedAt:  now.UTC(),
	}
}
