package errors

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New("test error")
	if err == nil {
		t.Fatal("New() returned nil")
	}

	if err.Error() != "test error" {
		t.Errorf("Expected 'test error', got: %s", err.Error())
	}

	if !strings.HasPrefix(err.Location(), "errors_test.go:") {
		t.Errorf("Location should point at the caller, got: %s", err.Location())
	}
}

func TestWrap(t *testing.T) {
	baseErr := errors.New("base error")
	err := Wrap(baseErr, "wrapped")

	if !strings.Contains(err.Error(), "wrapped") || !strings.Contains(err.Error(), "base error") {
		t.Errorf("Expected both messages, got: %s", err.Error())
	}

	if errors.Unwrap(err) != baseErr {
		t.Errorf("Unwrap() returned wrong error: %v", errors.Unwrap(err))
	}

	if Wrap(nil, "nothing") != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestWrapKeepsCode(t *testing.T) {
	err := Wrap(NewInvalidFrame("empty"), "submit")
	if err.GetCode() != "INVALID_FRAME" {
		t.Errorf("Expected code INVALID_FRAME, got: %s", err.GetCode())
	}
}

func TestWithFieldDoesNotMutate(t *testing.T) {
	base := New("test error")
	withKey := base.WithField("key", "value")

	if len(base.GetFields()) != 0 {
		t.Errorf("base error fields changed: %v", base.GetFields())
	}
	if withKey.GetFields()["key"] != "value" {
		t.Errorf("Expected field['key'] = 'value', got: %v", withKey.GetFields()["key"])
	}

	multi := withKey.WithFields(map[string]interface{}{"a": 1, "b": 2})
	if len(multi.GetFields()) != 3 {
		t.Errorf("Expected 3 fields, got %d", len(multi.GetFields()))
	}
}

func TestTaxonomy(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		sentinel error
		code     string
	}{
		{"MediaAccess", NewMediaAccess("permission denied"), ErrMediaAccess, "MEDIA_ACCESS"},
		{"ModelLoad", NewModelLoad("face", "weights missing"), ErrModelLoad, "MODEL_LOAD"},
		{"InvalidFrame", NewInvalidFrame("empty payload"), ErrInvalidFrame, "INVALID_FRAME"},
		{"ExternalAlert", NewExternalAlert("slack", errors.New("timeout")), ErrExternalAlert, "EXTERNAL_ALERT"},
		{"SessionActive", NewSessionActive("m1"), ErrSessionActive, "SESSION_ACTIVE"},
		{"SessionNotFound", NewSessionNotFound("m1"), ErrSessionNotFound, "SESSION_NOT_FOUND"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if !errors.Is(tc.err, tc.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false", tc.err, tc.sentinel)
			}
			if GetErrorCode(tc.err) != tc.code {
				t.Errorf("Expected code %s, got %s", tc.code, GetErrorCode(tc.err))
			}

			wrapped := fmt.Errorf("outer: %w", tc.err)
			if !IsErrorType(wrapped, tc.sentinel) {
				t.Error("sentinel lost through fmt.Errorf wrapping")
			}
		})
	}
}

func TestHTTPStatusFromError(t *testing.T) {
	testCases := []struct {
		name           string
		err            error
		expectedStatus int
	}{
		{"NotFound", ErrNotFound, http.StatusNotFound},
		{"InvalidInput", NewInvalidInput("bad mode"), http.StatusBadRequest},
		{"Wrapped", Wrap(ErrNotFound, "wrapped"), http.StatusNotFound},
		{"Unknown", errors.New("unknown"), http.StatusInternalServerError},
		{"SessionActive", NewSessionActive("m1"), http.StatusConflict},
		{"MediaAccess", NewMediaAccess("no camera"), http.StatusFailedDependency},
		{"SessionNotFound", NewSessionNotFound("123"), http.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if status := HTTPStatusFromError(tc.err); status != tc.expectedStatus {
				t.Errorf("Expected status %d, got: %d", tc.expectedStatus, status)
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	testCases := []struct {
		name           string
		err            error
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "StructuredError",
			err:            New("test error").WithField("key", "value").WithCode("TEST_CODE"),
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `"code": "TEST_CODE"`,
		},
		{
			name:           "StandardError",
			err:            ErrNotFound,
			expectedStatus: http.StatusNotFound,
			expectedBody:   `"error": "resource not found"`,
		},
		{
			name:           "SessionNotFound",
			err:            NewSessionNotFound("123"),
			expectedStatus: http.StatusNotFound,
			expectedBody:   `"monitor_id": "123"`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tc.err)

			if rec.Code != tc.expectedStatus {
				t.Errorf("Expected status %d, got: %d", tc.expectedStatus, rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Expected Content-Type 'application/json', got: %s", ct)
			}
			if body := rec.Body.String(); !strings.Contains(body, tc.expectedBody) {
				t.Errorf("Expected body to contain '%s', got: %s", tc.expectedBody, body)
			}
		})
	}
}
