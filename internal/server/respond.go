package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/p-n-ai/pai-academy/internal/catalog"
	"github.com/p-n-ai/pai-academy/internal/notify"
	"github.com/p-n-ai/pai-academy/internal/progress"
)

type errorBody struct {
	Error  string               `json:"error"`
	Fields []catalog.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response failed", "error", err)
	}
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, catalog.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, progress.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, progress.ErrGate):
		return http.StatusForbidden
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, notify.ErrNotificationNotFound):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err. Infrastructure failures are logged here, once,
// and hidden from the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"user_id", learnerFrom(r.Context()).ID,
			"error", err,
		)
		writeJSON(w, status, errorBody{Error: http.StatusText(status)})
		return
	}

	body := errorBody{Error: err.Error()}
	var verr *catalog.ValidationError
	if errors.As(err, &verr) {
		body.Error = catalog.ErrValidation.Error()
		body.Fields = verr.Fields
	}
	writeJSON(w, status, body)
}
