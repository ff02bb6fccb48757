package httpjson

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"adboard/internal/apperr"
)

func Write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// Error writes err using the status from apperr.Status. Server-side failures
// are logged and replaced with a generic message.
func Error(w http.ResponseWriter, logger *slog.Logger, msg string, err error) {
	status := apperr.Status(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		if logger != nil {
			logger.Error(msg, "err", err)
		}
		message = "internal error"
	}
	Write(w, status, map[string]any{
		"error":   http.StatusText(status),
		"message": message,
		"code":    status,
	})
}

// Decode reads a JSON body into v, rejecting unknown fields.
func Decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	return nil
}
