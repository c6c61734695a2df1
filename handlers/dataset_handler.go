// handlers/dataset_handler.go
package handlers

import (
	"bytes"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/gewnthar/registers/models"
)

func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/dataset", http.StatusFound)
}

// Datasets lists every dataset.
func (h *Handler) Datasets(w http.ResponseWriter, r *http.Request) {
	datasets, err := h.svc.ListDatasets(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "datasets", &view{Datasets: datasets})
}

func (h *Handler) DatasetsJSON(w http.ResponseWriter, r *http.Request) {
	datasets, err := h.svc.ListDatasets(r.Context())
	if err != nil {
		respondWithError(w, statusForError(err), err.Error())
		return
	}
	if datasets == nil {
		datasets = []models.Dataset{}
	}
	respondWithJSON(w, http.StatusOK, datasets)
}

// Dataset shows the records of one dataset and its pending updates.
func (h *Handler) Dataset(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ds, records, err := h.svc.ListRecords(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	updates, err := h.svc.ListPendingUpdates(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "dataset", &view{Dataset: ds, Records: records, Updates: updates})
}

type datasetResponse struct {
	*models.Dataset
	Records []map[string]string `json:"records"`
}

func (h *Handler) DatasetJSON(w http.ResponseWriter, r *http.Request) {
	ds, records, err := h.svc.ListRecords(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondWithError(w, statusForError(err), err.Error())
		return
	}
	resp := datasetResponse{Dataset: ds, Records: make([]map[string]string, 0, len(records))}
	for i := range records {
		resp.Records = append(resp.Records, records[i].ToDict())
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// DatasetCSV downloads the dataset in export field order.
func (h *Handler) DatasetCSV(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var buf bytes.Buffer
	if err := h.svc.ExportCSV(r.Context(), id, &buf); err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+id+`.csv"`)
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

func (h *Handler) Schema(w http.ResponseWriter, r *http.Request) {
	ds, err := h.svc.GetDataset(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "schema", &view{Dataset: ds, Fields: models.SortFields(ds.Fields)})
}

func (h *Handler) SchemaJSON(w http.ResponseWriter, r *http.Request) {
	ds, err := h.svc.GetDataset(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondWithError(w, statusForError(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, models.SortFields(ds.Fields))
}

// ChangeLog lists every change made to the dataset, newest first.
func (h *Handler) ChangeLog(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ds, err := h.svc.GetDataset(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	changes, err := h.svc.ChangeLog(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "change_log", &view{Dataset: ds, History: changes})
}
