package errors

import (
	"encoding/json"
	"errors"
	"net/http"
)

var errorStatusCodes = map[error]int{
	ErrNotFound:           http.StatusNotFound,
	ErrInvalidInput:       http.StatusBadRequest,
	ErrInternalError:      http.StatusInternalServerError,
	ErrTimeout:            http.StatusGatewayTimeout,
	ErrUnavailable:        http.StatusServiceUnavailable,
	ErrFailedPrecondition: http.StatusPreconditionFailed,
	ErrCanceled:           http.StatusRequestTimeout,

	ErrMediaAccess:     http.StatusFailedDependency,
	ErrModelLoad:       http.StatusFailedDependency,
	ErrInvalidFrame:    http.StatusUnprocessableEntity,
	ErrResponseParse:   http.StatusBadGateway,
	ErrExternalAlert:   http.StatusBadGateway,
	ErrSessionActive:   http.StatusConflict,
	ErrSessionNotFound: http.StatusNotFound,
	ErrRateLimited:     http.StatusTooManyRequests,
}

// WriteError writes a JSON error body with the status mapped from err
func WriteError(w http.ResponseWriter, err error) {
	var statusCode int
	var response map[string]interface{}

	var serr *Error
	switch {
	case err == nil:
		statusCode = http.StatusInternalServerError
		response = map[string]interface{}{"error": "Unknown error"}
	case errors.As(err, &serr):
		statusCode = HTTPStatusFromError(err)
		response = serr.AsJSON()
	default:
		statusCode = HTTPStatusFromError(err)
		response = map[string]interface{}{"error": err.Error()}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(response)
}

// HTTPStatusFromError determines the appropriate HTTP status code for an error
func HTTPStatusFromError(err error) int {
	for sentinel, code := range errorStatusCodes {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	if code, ok := errorCodeStatusMap[GetErrorCode(err)]; ok {
		return code
	}
	return http.StatusInternalServerError
}

var errorCodeStatusMap = map[string]int{
	"NOT_FOUND":      http.StatusNotFound,
	"INVALID_INPUT":  http.StatusBadRequest,
	"INTERNAL_ERROR": http.StatusInternalServerError,
	"UNAVAILABLE":    http.StatusServiceUnavailable,
}
