// handlers/response.go
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gewnthar/registers/models"
)

// Helper to respond with JSON
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Handler: failed to marshal JSON response", "error", err)
		http.Error(w, `{"error":"Failed to marshal JSON response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// Helper to respond with an error
func respondWithError(w http.ResponseWriter, code int, message string) {
	slog.Warn("Handler: API error", "status", code, "message", message)
	respondWithJSON(w, code, map[string]string{"error": message})
}

// statusForError maps service errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound),
		errors.Is(err, models.ErrDatasetEnded),
		errors.Is(err, models.ErrUpdateNotPending):
		return http.StatusNotFound
	case errors.Is(err, models.ErrRecordEnded),
		errors.Is(err, models.ErrNotArchived):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// isInputError reports whether err was caused by what the user submitted.
// Such errors are shown as a flash message on the form they came from.
func isInputError(err error) bool {
	return errors.Is(err, models.ErrSchemaMismatch) ||
		errors.Is(err, models.ErrEntityRangeExhausted) ||
		errors.Is(err, models.ErrEntityOutOfRange) ||
		errors.Is(err, models.ErrInvalidEntity) ||
		errors.Is(err, models.ErrInvalidDate) ||
		errors.Is(err, models.ErrInvalidFile)
}
