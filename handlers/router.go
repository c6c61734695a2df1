// handlers/router.go
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/gewnthar/registers/logging"
)

const (
	datasetPath = "/dataset/{id:[a-z0-9-]+}"
	recordPath  = datasetPath + "/record/{rid}"
	updatePath  = datasetPath + "/process-updates/{uid}"
)

// NewRouter wires every page, export and auth route.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(logRequests)

	r.HandleFunc("/", h.Index).Methods(http.MethodGet)
	r.HandleFunc("/api/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/auth/login", h.Login).Methods(http.MethodGet)
	r.HandleFunc("/auth/callback", h.Callback).Methods(http.MethodGet)
	r.HandleFunc("/auth/logout", h.Logout).Methods(http.MethodGet)

	r.HandleFunc("/dataset", h.Datasets).Methods(http.MethodGet)
	r.HandleFunc("/dataset.json", h.DatasetsJSON).Methods(http.MethodGet)
	r.HandleFunc(datasetPath, h.Dataset).Methods(http.MethodGet)
	r.HandleFunc(datasetPath+".json", h.DatasetJSON).Methods(http.MethodGet)
	r.HandleFunc(datasetPath+".csv", h.DatasetCSV).Methods(http.MethodGet)
	r.HandleFunc(datasetPath+"/schema", h.Schema).Methods(http.MethodGet)
	r.HandleFunc(datasetPath+"/schema.json", h.SchemaJSON).Methods(http.MethodGet)
	r.HandleFunc(datasetPath+"/change-log", h.ChangeLog).Methods(http.MethodGet)
	r.HandleFunc(recordPath, h.Record).Methods(http.MethodGet)
	r.HandleFunc(recordPath+"/history", h.History).Methods(http.MethodGet)

	edit := func(path string, fn http.HandlerFunc, methods ...string) {
		r.Handle(path, h.RequireLogin(fn)).Methods(methods...)
	}
	edit(datasetPath+"/add", h.AddRecord, http.MethodGet, http.MethodPost)
	edit(recordPath+"/edit", h.EditRecord, http.MethodGet, http.MethodPost)
	edit(recordPath+"/archive", h.ArchiveRecord, http.MethodGet, http.MethodPost)
	edit(recordPath+"/unarchive", h.UnarchiveRecord, http.MethodPost)
	edit(datasetPath+"/upload", h.Upload, http.MethodGet, http.MethodPost)
	edit(datasetPath+"/update", h.Update, http.MethodGet, http.MethodPost)
	edit(updatePath, h.ProcessUpdates, http.MethodGet, http.MethodPost)
	edit(updatePath+"/cancel", h.CancelUpdate, http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.render(w, r, http.StatusNotFound, "error", &view{Status: http.StatusText(http.StatusNotFound), Message: "Page not found."})
	})
	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// logRequests tags each request with an id and a logger carrying it, so
// handler logs for one request can be matched up.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger := slog.Default().With("request", uuid.NewString(), "method", r.Method, "path", r.URL.Path)
		r = r.WithContext(logging.WithContext(r.Context(), logger))
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug("Handler: request", "status", rec.status, "duration", time.Since(start))
	})
}
