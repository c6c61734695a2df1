// reconcile/classify.go
package reconcile

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/gewnthar/registers/models"
	"github.com/gewnthar/registers/utils"
)

const (
	msgAlreadyEnded   = "This current record has already ended"
	msgFieldsMismatch = "This records fields do not match the dataset specification"
	msgBadEntity      = "Entity must be a whole number"
)

// Fields never compared when looking for updates.
var comparisonExcluded = map[string]bool{
	"entity":    true,
	"prefix":    true,
	"reference": true,
	"end-date":  true,
}

// Classification is the preview result for one update row.
type Classification struct {
	Kind  models.RowKind
	Notes []string
}

// ParseEntity reads the entity column of a row. Blank means none.
func ParseEntity(value string) (*int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	e, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidEntity, value)
	}
	return &e, nil
}

// InvalidEntity is the classification of a row whose entity is not a number.
func InvalidEntity() Classification {
	return Classification{Kind: models.RowInvalid, Notes: []string{msgBadEntity}}
}

// Classify compares an update row with the current record holding its entity
// (nil when there is none). It never changes state.
func Classify(row map[string]string, current *models.Record, fields []string) Classification {
	row = utils.NormalizeValues(row)

	if current == nil || utils.IsBlank(row["entity"]) {
		return Classification{Kind: models.RowNew}
	}
	if current.Ended() {
		return Classification{Kind: models.RowInvalid, Notes: []string{msgAlreadyEnded}}
	}
	if !sameFieldSet(row, fields) {
		return Classification{Kind: models.RowInvalid, Notes: []string{msgFieldsMismatch}}
	}

	existing := current.ToDict()
	if !utils.IsBlank(row["end-date"]) {
		return Classification{
			Kind:  models.RowEnded,
			Notes: []string{changeNote("end-date", existing["end-date"], row["end-date"])},
		}
	}

	keys := make([]string, 0, len(row))
	for k := range row {
		if !comparisonExcluded[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var notes []string
	for _, k := range keys {
		old, incoming := existing[k], normalizedValue(k, row[k])
		if old != incoming {
			notes = append(notes, changeNote(k, old, row[k]))
		}
	}
	if len(notes) > 0 {
		return Classification{Kind: models.RowUpdated, Notes: notes}
	}
	return Classification{Kind: models.RowNotUpdated}
}

func changeNote(field, old, incoming string) string {
	return fmt.Sprintf("%s changed from '%s' to '%s'", field, old, incoming)
}

// normalizedValue renders date values the way records store them, so a row
// holding "2024" matches a stored "2024-01-01".
func normalizedValue(key, value string) string {
	if !isDateKey(key) {
		return value
	}
	if d, err := models.ParseDate(value); err == nil {
		return models.FormatDate(d)
	}
	return value
}

func sameFieldSet(row map[string]string, fields []string) bool {
	if len(row) != len(fields) {
		return false
	}
	for _, f := range fields {
		if _, ok := row[f]; !ok {
			return false
		}
	}
	return true
}
