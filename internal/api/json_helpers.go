package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"inkwell/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// failureEnvelope is the uniform error body: message, numeric status, and for
// validation failures the full violation list.
type failureEnvelope struct {
	Message string             `json:"message"`
	Status  int                `json:"status"`
	Data    []apperr.Violation `json:"data,omitempty"`
}

func writeFailure(w http.ResponseWriter, err error) {
	appErr := apperr.From(err)
	writeJSON(w, appErr.Status(), failureEnvelope{
		Message: appErr.Message,
		Status:  appErr.Status(),
		Data:    appErr.Violations,
	})
}

func writeFailureMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, failureEnvelope{Message: message, Status: status})
}

func decodeJSON(r *http.Request, dest interface{}) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}
