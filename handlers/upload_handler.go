// handlers/upload_handler.go
package handlers

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/google/uuid"

	"github.com/gewnthar/registers/services"
)

const maxUploadSize = 32 << 20

const msgExhausted = "The entity range for this dataset is used up. Rows without an entity were not imported."

// uploadedCSV returns the posted csv_file. ok is false when the response has
// already been written.
func (h *Handler) uploadedCSV(w http.ResponseWriter, r *http.Request) (name string, content multipart.File, ok bool) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		h.badRequest(w, r, err)
		return "", nil, false
	}
	file, header, err := r.FormFile("csv_file")
	if err != nil {
		h.redirectWithFlash(w, r, r.URL.Path, "Choose a CSV file to upload.")
		return "", nil, false
	}
	return header.Filename, file, true
}

func summary(report *services.BatchReport) string {
	failed := len(report.Failed())
	if failed == 0 {
		return fmt.Sprintf("Imported %d record(s).", report.Succeeded())
	}
	return fmt.Sprintf("Imported %d record(s), %d failed.", report.Succeeded(), failed)
}

// Upload imports a CSV of new records and record versions.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ds, err := h.liveDataset(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	v := &view{Dataset: ds, Action: "Upload CSV"}
	if r.Method == http.MethodGet {
		h.render(w, r, http.StatusOK, "upload", v)
		return
	}

	name, file, ok := h.uploadedCSV(w, r)
	if !ok {
		return
	}
	defer file.Close()

	report, err := h.svc.ImportCSV(r.Context(), ds.ID, name, file)
	if err != nil {
		if isInputError(err) {
			h.redirectWithFlash(w, r, r.URL.Path, err.Error())
			return
		}
		h.fail(w, r, err)
		return
	}
	v.Report = report
	v.Flashes = append(v.Flashes, summary(report))
	if report.Exhausted() {
		v.Flashes = append(v.Flashes, msgExhausted)
	}
	h.render(w, r, http.StatusOK, "upload", v)
}

// Update stores a CSV of changes as a pending update for review.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	ds, err := h.liveDataset(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if r.Method == http.MethodGet {
		h.render(w, r, http.StatusOK, "upload", &view{Dataset: ds, Action: "Upload updates"})
		return
	}

	name, file, ok := h.uploadedCSV(w, r)
	if !ok {
		return
	}
	defer file.Close()

	update, err := h.svc.CreateUpdate(r.Context(), ds.ID, name, file)
	if err != nil {
		if isInputError(err) {
			h.redirectWithFlash(w, r, r.URL.Path, err.Error())
			return
		}
		h.fail(w, r, err)
		return
	}
	http.Redirect(w, r, processUpdatesURL(ds.ID, update.ID), http.StatusSeeOther)
}

func processUpdatesURL(datasetID string, id uuid.UUID) string {
	return "/dataset/" + datasetID + "/process-updates/" + id.String()
}

// ProcessUpdates previews a pending update and applies the selected rows.
func (h *Handler) ProcessUpdates(w http.ResponseWriter, r *http.Request) {
	ds, err := h.liveDataset(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	uid, err := pathUUID(r, "uid")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if r.Method == http.MethodGet {
		ds, update, err := h.svc.PreviewUpdate(r.Context(), ds.ID, uid)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		h.render(w, r, http.StatusOK, "process_updates", &view{Dataset: ds, Update: update})
		return
	}

	var params applyParams
	if err := decodeParams(r, &params); err != nil {
		h.badRequest(w, r, err)
		return
	}
	selected, err := params.ids()
	if err != nil {
		h.badRequest(w, r, err)
		return
	}

	report, err := h.svc.ApplyUpdate(r.Context(), ds.ID, uid, selected)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	message := fmt.Sprintf("Applied %d change(s).", report.Succeeded())
	if failed := len(report.Failed()); failed > 0 {
		message = fmt.Sprintf("Applied %d change(s), %d failed.", report.Succeeded(), failed)
	}
	messages := []string{message}
	if report.Exhausted() {
		messages = append(messages, msgExhausted)
	}
	h.redirectWithFlash(w, r, datasetURL(ds.ID), messages...)
}

// CancelUpdate discards a pending update.
func (h *Handler) CancelUpdate(w http.ResponseWriter, r *http.Request) {
	ds, err := h.liveDataset(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	uid, err := pathUUID(r, "uid")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.svc.CancelUpdate(r.Context(), ds.ID, uid); err != nil {
		h.fail(w, r, err)
		return
	}
	h.redirectWithFlash(w, r, datasetURL(ds.ID), "Update cancelled.")
}
