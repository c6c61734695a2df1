// reconcile/payload.go
package reconcile

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gewnthar/registers/models"
	"github.com/gewnthar/registers/utils"
)

// Keys that never reach a record. edit-notes is captured separately.
var excludedKeys = map[string]bool{
	"csrf-token": true,
	"edit-notes": true,
	"csv-file":   true,
	"entity":     true,
	"version":    true,
	"record-id":  true,
}

// Date parts posted by the start date widget.
var datePartKeys = map[string]bool{
	"year":  true,
	"month": true,
	"day":   true,
}

// Payload is an incoming partial update from a form or a CSV row, with keys
// normalized to field slugs and date fields already parsed.
type Payload struct {
	Values    map[string]string
	Dates     map[string]*time.Time // nil clears the date
	StartDate *time.Time            // combined from year/month/day when posted
	EditNotes string
}

// NewPayload splits raw key/value pairs into plain values and parsed dates.
// Blank date values become null.
func NewPayload(raw map[string]string) (*Payload, error) {
	p := &Payload{
		Values: map[string]string{},
		Dates:  map[string]*time.Time{},
	}
	parts := DateParts{}
	hasParts := false

	for key, value := range utils.NormalizeValues(raw) {
		switch {
		case key == "edit-notes":
			p.EditNotes = value
		case excludedKeys[key]:
		case datePartKeys[key]:
			hasParts = true
			parts.set(key, value)
		case isDateKey(key):
			d, err := models.ParseDate(value)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			p.Dates[key] = d
		default:
			p.Values[key] = value
		}
	}

	if hasParts {
		d, err := parts.Date()
		if err != nil {
			return nil, fmt.Errorf("start-date: %w", err)
		}
		p.StartDate = d
	}
	return p, nil
}

// Date returns the parsed value of a date key and whether the payload set it.
func (p *Payload) Date(key string) (*time.Time, bool) {
	d, ok := p.Dates[key]
	return d, ok
}

func isDateKey(key string) bool {
	return strings.HasSuffix(key, "-date")
}

// DateParts is a date entered as separate year, month and day inputs. Only
// the parts present are used: year, year and month, or a full date.
type DateParts struct {
	Year  string
	Month string
	Day   string
}

func (d *DateParts) set(key, value string) {
	switch key {
	case "year":
		d.Year = value
	case "month":
		d.Month = value
	case "day":
		d.Day = value
	}
}

// Date combines the parts. All blank means no date.
func (d DateParts) Date() (*time.Time, error) {
	if d.Year == "" && d.Month == "" && d.Day == "" {
		return nil, nil
	}
	invalid := fmt.Errorf("%w: year=%q month=%q day=%q", models.ErrInvalidDate, d.Year, d.Month, d.Day)
	if d.Year == "" || (d.Month == "" && d.Day != "") {
		return nil, invalid
	}

	year, err := strconv.Atoi(d.Year)
	if err != nil || year < 1 || year > 9999 {
		return nil, invalid
	}
	month, day := 1, 1
	if d.Month != "" {
		if month, err = strconv.Atoi(d.Month); err != nil || month < 1 || month > 12 {
			return nil, invalid
		}
	}
	if d.Day != "" {
		if day, err = strconv.Atoi(d.Day); err != nil {
			return nil, invalid
		}
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || t.Month() != time.Month(month) {
		return nil, invalid
	}
	return &t, nil
}
