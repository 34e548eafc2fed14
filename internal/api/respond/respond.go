package respond

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/villetakanen/pelilauta-17-sub000/internal/model"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    int    `json:"code"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// WriteError writes a standardized error response. The status text always
// leads the error string, e.g. "Forbidden: admin capability required".
func WriteError(w http.ResponseWriter, statusCode int, reason string) {
	msg := http.StatusText(statusCode)
	if reason != "" {
		msg += ": " + reason
	}
	WriteJSON(w, statusCode, ErrorResponse{Error: msg, Code: statusCode})
}

// WriteBadRequest writes a 400 Bad Request response
func WriteBadRequest(w http.ResponseWriter, reason string) {
	WriteError(w, http.StatusBadRequest, reason)
}

// WriteInternalError writes a 500 with a generic reason.
func WriteInternalError(w http.ResponseWriter) {
	WriteError(w, http.StatusInternalServerError, "internal error")
}

// Status maps an error to its HTTP status code.
func Status(err error) int {
	switch {
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// FromError writes err as an error response. Unclassified errors are logged
// with their stack and answered with a generic 500.
func FromError(w http.ResponseWriter, r *http.Request, err error) {
	status := Status(err)
	if status == http.StatusInternalServerError {
		log.Error().Stack().Err(err).
			Str("method", r.Method).
			Str("url", r.URL.Path).
			Msg("request failed")
		WriteInternalError(w)
		return
	}
	WriteError(w, status, model.Reason(err))
}

// Flush pushes buffered response bytes to the client if the writer supports it.
func Flush(w http.ResponseWriter) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
