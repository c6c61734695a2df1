// handlers/params.go
package handlers

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/schema"

	"github.com/gewnthar/registers/models"
)

// decoder maps the fixed fields of posted forms onto param structs. Record
// fields are schema driven and go through forms.Bind instead.
var decoder = schema.NewDecoder()

func init() {
	decoder.IgnoreUnknownKeys(true)
}

// changeParams are the hidden and free text fields posted with a record
// change alongside the record's own fields.
type changeParams struct {
	Version   int    `schema:"version"`
	EditNotes string `schema:"edit_notes"`
}

// applyParams are the rows ticked on the process updates page.
type applyParams struct {
	RecordIDs []string `schema:"record_id"`
}

func decodeParams(r *http.Request, dst any) error {
	if err := r.ParseForm(); err != nil {
		return err
	}
	return decoder.Decode(dst, r.PostForm)
}

// formChange decodes the change params from an already parsed form. A version
// that is not a number can only come from a stale or altered form, so it is
// reported as a conflict.
func formChange(r *http.Request) (changeParams, error) {
	var p changeParams
	if err := decoder.Decode(&p, r.PostForm); err != nil {
		return p, fmt.Errorf("bad version %q: %w", r.PostFormValue("version"), models.ErrConflict)
	}
	return p, nil
}

func (p applyParams) ids() ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(p.RecordIDs))
	for _, raw := range p.RecordIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid record_id %q", raw)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
