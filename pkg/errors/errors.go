package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Generic sentinels shared by every package.
var (
	ErrNotFound           = errors.New("resource not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInternalError      = errors.New("internal error")
	ErrTimeout            = errors.New("operation timed out")
	ErrUnavailable        = errors.New("service unavailable")
	ErrFailedPrecondition = errors.New("failed precondition")
	ErrCanceled           = errors.New("operation canceled")
)

// Monitoring error taxonomy.
var (
	// ErrMediaAccess: camera/microphone permission denied or device unavailable.
	ErrMediaAccess = errors.New("media access failed")

	// ErrModelLoad: a perception model failed to initialise.
	ErrModelLoad = errors.New("perception model failed to load")

	// ErrInvalidFrame: snapshot empty or not a JPEG. Raised before any network call.
	ErrInvalidFrame = errors.New("invalid frame")

	// ErrResponseParse: judgment reply contained no extractable JSON.
	ErrResponseParse = errors.New("unparseable judgment response")

	// ErrExternalAlert: secondary alert channel unreachable.
	ErrExternalAlert = errors.New("external alert delivery failed")

	ErrSessionActive   = errors.New("session already active")
	ErrSessionNotFound = errors.New("monitor not found")

	ErrRateLimited = errors.New("rate limit exceeded")
)

// Error represents a structured error with a creation site and additional context
type Error struct {
	original error
	message  string
	fields   map[string]interface{}

	stackPC uintptr
	file    string
	line    int

	// Code is an optional error code for categorization
	Code string
}

func newAt(skip int, original error, message, code string, fields []map[string]interface{}) *Error {
	pc, file, line, _ := runtime.Caller(skip + 1)

	fieldMap := make(map[string]interface{})
	if len(fields) > 0 && fields[0] != nil {
		for k, v := range fields[0] {
			fieldMap[k] = v
		}
	}

	return &Error{
		original: original,
		message:  message,
		fields:   fieldMap,
		stackPC:  pc,
		file:     file,
		line:     line,
		Code:     code,
	}
}

// New creates a new structured error with the given message
func New(message string, fields ...map[string]interface{}) *Error {
	return newAt(1, errors.New(message), message, "", fields)
}

// Wrap wraps an existing error with additional context
func Wrap(err error, message string, fields ...map[string]interface{}) *Error {
	if err == nil {
		return nil
	}
	return newAt(1, err, message, GetErrorCode(err), fields)
}

func (e *Error) clone(extra int) *Error {
	result := *e
	result.fields = make(map[string]interface{}, len(e.fields)+extra)
	for k, v := range e.fields {
		result.fields[k] = v
	}
	return &result
}

// WithField returns a copy of the error with key set in its context
func (e *Error) WithField(key string, value interface{}) *Error {
	if e == nil {
		return nil
	}
	result := e.clone(1)
	result.fields[key] = value
	return result
}

// WithFields returns a copy of the error with all fields merged into its context
func (e *Error) WithFields(fields map[string]interface{}) *Error {
	if e == nil {
		return nil
	}
	result := e.clone(len(fields))
	for k, v := range fields {
		result.fields[k] = v
	}
	return result
}

// WithCode returns a copy of the error carrying code
func (e *Error) WithCode(code string) *Error {
	if e == nil {
		return nil
	}
	result := e.clone(0)
	result.Code = code
	return result
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil || e.original == nil {
		return ""
	}
	if e.message == "" || e.message == e.original.Error() {
		return e.original.Error()
	}
	return fmt.Sprintf("%s: %v", e.message, e.original)
}

// Unwrap implements the errors.Unwrap interface
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.original
}

// Location returns the file:line where the error was created
func (e *Error) Location() string {
	if e == nil {
		return ""
	}
	parts := strings.Split(e.file, "/")
	return fmt.Sprintf("%s:%d", parts[len(parts)-1], e.line)
}

// GetFields returns the error's context fields
func (e *Error) GetFields() map[string]interface{} {
	if e == nil {
		return nil
	}
	return e.fields
}

// GetCode returns the error's code
func (e *Error) GetCode() string {
	if e == nil {
		return ""
	}
	return e.Code
}

// Is reports whether the wrapped error matches target.
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}
	return e == target || errors.Is(e.original, target)
}

// AsJSON returns the error in JSON-friendly map format
func (e *Error) AsJSON() map[string]interface{} {
	if e == nil {
		return nil
	}

	result := map[string]interface{}{
		"error":    e.Error(),
		"location": e.Location(),
	}
	if e.Code != "" {
		result["code"] = e.Code
	}
	if len(e.fields) > 0 {
		result["context"] = e.fields
	}
	return result
}

// NewNotFound creates a new ErrNotFound error with additional context
func NewNotFound(message string, fields ...map[string]interface{}) *Error {
	return newAt(1, ErrNotFound, message, "NOT_FOUND", fields)
}

// NewInvalidInput creates a new ErrInvalidInput error with additional context
func NewInvalidInput(message string, fields ...map[string]interface{}) *Error {
	return newAt(1, ErrInvalidInput, message, "INVALID_INPUT", fields)
}

// NewInternalError creates a new ErrInternalError with additional context
func NewInternalError(message string, fields ...map[string]interface{}) *Error {
	return newAt(1, ErrInternalError, message, "INTERNAL_ERROR", fields)
}

// NewMediaAccess reports that capture devices could not be opened.
func NewMediaAccess(details string, fields ...map[string]interface{}) *Error {
	return newAt(1, ErrMediaAccess, fmt.Sprintf("media access failed: %s", details), "MEDIA_ACCESS", fields)
}

// NewModelLoad reports a perception model initialisation failure.
func NewModelLoad(model string, cause string, fields ...map[string]interface{}) *Error {
	err := newAt(1, ErrModelLoad, fmt.Sprintf("model %s failed to load: %s", model, cause), "MODEL_LOAD", fields)
	err.fields["model"] = model
	return err
}

// NewInvalidFrame reports a snapshot that cannot be submitted for judgment.
func NewInvalidFrame(details string, fields ...map[string]interface{}) *Error {
	return newAt(1, ErrInvalidFrame, fmt.Sprintf("invalid frame: %s", details), "INVALID_FRAME", fields)
}

// NewExternalAlert wraps a delivery failure on a secondary alert channel.
func NewExternalAlert(channel string, cause error) *Error {
	msg := fmt.Sprintf("alert delivery via %s failed", channel)
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	err := newAt(1, ErrExternalAlert, msg, "EXTERNAL_ALERT", nil)
	err.fields["channel"] = channel
	return err
}

// NewSessionActive reports an operation that requires an inactive monitor.
func NewSessionActive(monitorID string) *Error {
	err := newAt(1, ErrSessionActive, fmt.Sprintf("monitor %s has an active session", monitorID), "SESSION_ACTIVE", nil)
	err.fields["monitor_id"] = monitorID
	return err
}

// NewSessionNotFound creates a new ErrSessionNotFound with additional context
func NewSessionNotFound(monitorID string, fields ...map[string]interface{}) *Error {
	err := newAt(1, ErrSessionNotFound, fmt.Sprintf("monitor not found: %s", monitorID), "SESSION_NOT_FOUND", fields)
	err.fields["monitor_id"] = monitorID
	return err
}

// NewRateLimited reports a client that exceeded its request budget.
func NewRateLimited(clientIP string, retryAfter int) *Error {
	err := newAt(1, ErrRateLimited, "rate limit exceeded, retry later", "RATE_LIMITED", nil)
	err.fields["client_ip"] = clientIP
	err.fields["retry_after_seconds"] = retryAfter
	return err
}

// IsErrorType checks if an error is of a specific error type
func IsErrorType(err, target error) bool {
	return errors.Is(err, target)
}

// GetErrorCode extracts the error code from an error if it's a structured error
func GetErrorCode(err error) string {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.GetCode()
	}
	return ""
}

// GetErrorFields extracts fields from an error if it's a structured error
func GetErrorFields(err error) map[string]interface{} {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.GetFields()
	}
	return nil
}
