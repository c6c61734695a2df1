// handlers/handlers.go
package handlers

import (
	"net/http"

	"github.com/gewnthar/registers/forms"
	"github.com/gewnthar/registers/logging"
	"github.com/gewnthar/registers/models"
	"github.com/gewnthar/registers/services"
	"github.com/gewnthar/registers/templates"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// Handler serves the register editor pages and JSON/CSV exports.
type Handler struct {
	svc      *services.Service
	pages    *templates.Renderer
	sessions *Sessions
	auth     *Auth // nil when sign in is disabled
}

func New(svc *services.Service, pages *templates.Renderer, sessions *Sessions, auth *Auth) *Handler {
	return &Handler{svc: svc, pages: pages, sessions: sessions, auth: auth}
}

// view is the data every page template receives.
type view struct {
	User    string
	Flashes []string

	Dataset  *models.Dataset
	Datasets []models.Dataset
	Fields   []models.Field
	Records  []models.Record
	Record   *models.Record
	History  []models.ChangeLog
	Form     *forms.Form
	Action   string
	Update   *models.Update
	Updates  []models.Update
	Report   *services.BatchReport

	Status  string
	Message string
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, code int, page string, v *view) {
	sess, flashes := h.sessions.TakeFlashes(w, r)
	v.User = sess.User
	v.Flashes = append(v.Flashes, flashes...)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	if err := h.pages.Render(w, page, v); err != nil {
		logging.FromContext(r.Context()).Error("Handler: failed to render page", "page", page, "error", err)
	}
}

// fail renders the error page for err with the status it maps to.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusForError(err)
	message := err.Error()
	if code == http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("Handler: request failed", "error", err)
		message = "Something went wrong."
	}
	h.render(w, r, code, "error", &view{Status: http.StatusText(code), Message: message})
}

func (h *Handler) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	h.render(w, r, http.StatusBadRequest, "error", &view{Status: http.StatusText(http.StatusBadRequest), Message: err.Error()})
}

// redirectWithFlash sends the browser to url with messages queued for display.
func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, url string, messages ...string) {
	h.sessions.Flash(w, r, messages...)
	http.Redirect(w, r, url, http.StatusSeeOther)
}

func datasetURL(id string) string {
	return "/dataset/" + id
}

func recordURL(datasetID string, id uuid.UUID) string {
	return "/dataset/" + datasetID + "/record/" + id.String()
}

// pathUUID parses a uuid route variable. A malformed id is reported as not
// found.
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		return uuid.Nil, models.ErrNotFound
	}
	return id, nil
}
