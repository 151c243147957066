package circuitbreaker

import (
	"errors"
	"fmt"
	"time"
)

// CircuitBreakerError is returned when a request is rejected without being attempted
type CircuitBreakerError struct {
	CircuitName string
	State       State
	Message     string
	Timestamp   time.Time
}

func (e *CircuitBreakerError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is %s: %s", e.CircuitName, e.State.String(), e.Message)
}

// NewCircuitBreakerOpenError creates an error for a rejected request
func NewCircuitBreakerOpenError(name string, state State) *CircuitBreakerError {
	msg := "circuit breaker is open, request rejected"
	if state == StateHalfOpen {
		msg = "probe already in flight, request rejected"
	}
	return &CircuitBreakerError{
		CircuitName: name,
		State:       state,
		Message:     msg,
		Timestamp:   time.Now(),
	}
}

// IsCircuitBreakerError reports whether err, or anything it wraps, is a rejection
func IsCircuitBreakerError(err error) bool {
	var cbErr *CircuitBreakerError
	return errors.As(err, &cbErr)
}
