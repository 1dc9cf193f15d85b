package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// apiError carries the status a handler wants reported. The wrapped error
// is kept for logs; only message reaches the client.
type apiError struct {
	status  int
	message string
	err     error
}

func (e *apiError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.message, e.err)
	}
	return e.message
}

func (e *apiError) Unwrap() error { return e.err }

func badRequest(message string, err error) error {
	return &apiError{status: http.StatusBadRequest, message: message, err: err}
}

func unavailable(message string, err error) error {
	return &apiError{status: http.StatusServiceUnavailable, message: message, err: err}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		writeJSON(w, apiErr.status, map[string]string{"error": apiErr.message})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}
