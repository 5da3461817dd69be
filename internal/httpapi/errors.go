package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"modelrunner/internal/manager"
	"modelrunner/internal/runner"
	"modelrunner/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusFor maps manager and runner errors onto HTTP status codes.
func statusFor(err error) int {
	var he HTTPError
	switch {
	case manager.IsModelUnknown(err), manager.IsBackendUnsupported(err):
		return http.StatusNotFound
	case manager.IsRunnerUnavailable(err), runner.IsNotReady(err):
		return http.StatusServiceUnavailable
	case runner.IsNotSupported(err):
		return http.StatusUnprocessableEntity
	case errors.As(err, &he):
		return he.StatusCode()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
	}
}
