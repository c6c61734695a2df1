// handlers/record_handler.go
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/gewnthar/registers/forms"
	"github.com/gewnthar/registers/logging"
	"github.com/gewnthar/registers/models"
)

// liveDataset loads a dataset that still accepts changes.
func (h *Handler) liveDataset(r *http.Request) (*models.Dataset, error) {
	ds, err := h.svc.GetDataset(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		return nil, err
	}
	if ds.Ended() {
		return nil, fmt.Errorf("dataset %s: %w", ds.ID, models.ErrDatasetEnded)
	}
	return ds, nil
}

func (h *Handler) datasetRecord(r *http.Request) (*models.Dataset, *models.Record, error) {
	ds, err := h.svc.GetDataset(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		return nil, nil, err
	}
	rid, err := pathUUID(r, "rid")
	if err != nil {
		return nil, nil, err
	}
	record, err := h.svc.GetRecord(r.Context(), ds.ID, rid)
	if err != nil {
		return nil, nil, err
	}
	return ds, record, nil
}

// AddRecord shows and handles the new record form.
func (h *Handler) AddRecord(w http.ResponseWriter, r *http.Request) {
	ds, err := h.liveDataset(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	form := forms.Build(ds.Fields, forms.Options{})
	v := &view{Dataset: ds, Form: form, Action: "Add a record"}
	if r.Method == http.MethodGet {
		h.render(w, r, http.StatusOK, "form", v)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.badRequest(w, r, err)
		return
	}
	form.Bind(r.PostForm)
	if !form.Validate() {
		h.render(w, r, http.StatusOK, "form", v)
		return
	}

	record, err := h.svc.AddRecord(r.Context(), ds.ID, form.Values())
	if err != nil {
		if isInputError(err) {
			h.redirectWithFlash(w, r, r.URL.Path, err.Error())
			return
		}
		h.fail(w, r, err)
		return
	}
	h.redirectWithFlash(w, r, recordURL(ds.ID, record.ID), fmt.Sprintf("Added %s", record.Curie()))
}

func (h *Handler) Record(w http.ResponseWriter, r *http.Request) {
	ds, record, err := h.datasetRecord(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "record", &view{Dataset: ds, Record: record})
}

// History lists a record's changes, newest first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	ds, err := h.svc.GetDataset(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rid, err := pathUUID(r, "rid")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	record, history, err := h.svc.History(r.Context(), ds.ID, rid)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "history", &view{Dataset: ds, Record: record, History: history})
}

func (h *Handler) EditRecord(w http.ResponseWriter, r *http.Request) {
	h.changeRecord(w, r, "Edit", forms.Options{EditNotes: true, ReferenceLocked: true})
}

func (h *Handler) ArchiveRecord(w http.ResponseWriter, r *http.Request) {
	h.changeRecord(w, r, "Archive", forms.Options{EndDateOnly: true})
}

// changeRecord serves the edit and archive forms, which differ only in the
// inputs shown and the change they make.
func (h *Handler) changeRecord(w http.ResponseWriter, r *http.Request, action string, opts forms.Options) {
	ds, record, err := h.datasetRecord(r)
	if err == nil && ds.Ended() {
		err = fmt.Errorf("dataset %s: %w", ds.ID, models.ErrDatasetEnded)
	}
	if err == nil && record.Ended() {
		err = fmt.Errorf("%s: %w", record.Curie(), models.ErrRecordEnded)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}

	form := forms.Build(ds.Fields, opts)
	v := &view{Dataset: ds, Record: record, Form: form, Action: action}
	if r.Method == http.MethodGet {
		if !opts.EndDateOnly {
			form.Populate(record)
		}
		h.render(w, r, http.StatusOK, "form", v)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.badRequest(w, r, err)
		return
	}
	params, err := formChange(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	form.Bind(r.PostForm)
	if opts.ReferenceLocked {
		if f := form.Field("reference"); f != nil {
			f.Value = record.Reference
		}
	}
	if !form.Validate() {
		h.render(w, r, http.StatusOK, "form", v)
		return
	}

	var changed *models.Record
	if opts.EndDateOnly {
		changed, err = h.svc.ArchiveRecord(r.Context(), ds.ID, record.ID, params.Version, form.Values())
	} else {
		changed, err = h.svc.EditRecord(r.Context(), ds.ID, record.ID, params.Version, form.Values())
	}
	if err != nil {
		if isInputError(err) {
			h.redirectWithFlash(w, r, r.URL.Path, err.Error())
			return
		}
		h.fail(w, r, err)
		return
	}
	logging.FromContext(r.Context()).Debug("Handler: record changed", "action", action, "record", changed.Curie())
	h.redirectWithFlash(w, r, recordURL(ds.ID, changed.ID), fmt.Sprintf("%s saved", changed.Curie()))
}

// UnarchiveRecord reopens an archived record.
func (h *Handler) UnarchiveRecord(w http.ResponseWriter, r *http.Request) {
	ds, err := h.liveDataset(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rid, err := pathUUID(r, "rid")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		h.badRequest(w, r, err)
		return
	}
	params, err := formChange(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	record, err := h.svc.UnarchiveRecord(r.Context(), ds.ID, rid, params.EditNotes)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.redirectWithFlash(w, r, recordURL(ds.ID, record.ID), fmt.Sprintf("%s unarchived", record.Curie()))
}
