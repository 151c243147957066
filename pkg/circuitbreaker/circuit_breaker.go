package circuitbreaker

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Config holds circuit breaker configuration
type Config struct {
	// Consecutive failures before opening the circuit
	FailureThreshold int64 `json:"failure_threshold"`

	// Consecutive half-open successes needed to close again
	SuccessThreshold int64 `json:"success_threshold"`

	// Time spent open before a probe is allowed
	Timeout time.Duration `json:"timeout"`

	// Upper bound for the backoff-extended open timeout
	MaxTimeout time.Duration `json:"max_timeout"`

	// Applied when the caller's context has no deadline
	RequestTimeout time.Duration `json:"request_timeout"`

	ExponentialBackoff bool `json:"exponential_backoff"`
}

// DefaultConfig returns default circuit breaker configuration
func DefaultConfig() *Config {
	return &Config{
		FailureThreshold:   5,
		SuccessThreshold:   2,
		Timeout:            30 * time.Second,
		MaxTimeout:         300 * time.Second,
		RequestTimeout:     45 * time.Second,
		ExponentialBackoff: true,
	}
}

// JudgmentConfig tunes a breaker for the remote vision-language endpoint.
// Model calls are slow but a run of failures usually means an outage or a bad key.
func JudgmentConfig(failureThreshold int64, timeout, requestTimeout time.Duration) *Config {
	cfg := DefaultConfig()
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if timeout > 0 {
		cfg.Timeout = timeout
	}
	if requestTimeout > 0 {
		cfg.RequestTimeout = requestTimeout
	}
	if cfg.MaxTimeout < cfg.Timeout {
		cfg.MaxTimeout = cfg.Timeout
	}
	return cfg
}

// AlertConfig tunes a breaker for outbound alert channels
func AlertConfig() *Config {
	return &Config{
		FailureThreshold:   3,
		SuccessThreshold:   1,
		Timeout:            60 * time.Second,
		MaxTimeout:         600 * time.Second,
		RequestTimeout:     10 * time.Second,
		ExponentialBackoff: true,
	}
}

// STTConfig tunes a breaker for long-lived transcription streams.
// Streams run until the audio ends, so no request timeout is applied.
func STTConfig() *Config {
	return &Config{
		FailureThreshold:   3,
		SuccessThreshold:   1,
		Timeout:            30 * time.Second,
		MaxTimeout:         300 * time.Second,
		ExponentialBackoff: true,
	}
}

// Statistics tracks circuit breaker activity
type Statistics struct {
	TotalRequests        int64     `json:"total_requests"`
	SuccessfulRequests   int64     `json:"successful_requests"`
	FailedRequests       int64     `json:"failed_requests"`
	RejectedRequests     int64     `json:"rejected_requests"`
	ConsecutiveFailures  int64     `json:"consecutive_failures"`
	ConsecutiveSuccesses int64     `json:"consecutive_successes"`
	LastFailureTime      time.Time `json:"last_failure_time"`
	LastSuccessTime      time.Time `json:"last_success_time"`
	StateTransitions     int64     `json:"state_transitions"`
	State                string    `json:"state"`
}

// CircuitBreaker implements the circuit breaker pattern
type CircuitBreaker struct {
	name   string
	logger *logrus.Entry
	config *Config
	now    func() time.Time

	mutex       sync.Mutex
	state       State
	nextAttempt time.Time
	probing     bool
	stats       Statistics

	onStateChange func(name string, from State, to State)
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(name string, config *Config, logger *logrus.Logger) *CircuitBreaker {
	if config == nil {
		config = DefaultConfig()
	}

	return &CircuitBreaker{
		name:   name,
		logger: logger.WithField("circuit_breaker", name),
		config: config,
		now:    time.Now,
		state:  StateClosed,
	}
}

// SetClock replaces the time source. Intended for tests.
func (cb *CircuitBreaker) SetClock(now func() time.Time) {
	cb.mutex.Lock()
	cb.now = now
	cb.mutex.Unlock()
}

// Execute runs fn with circuit breaker protection. Context cancellation by the
// caller is not counted as a failure of the protected service.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	state, ok := cb.allowRequest()
	if !ok {
		return NewCircuitBreakerOpenError(cb.name, state)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline && cb.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cb.config.RequestTimeout)
		defer cancel()
	}

	err := fn(ctx)

	switch {
	case err == nil:
		cb.recordSuccess()
	case ctx.Err() == context.Canceled:
		cb.releaseProbe()
	default:
		cb.recordFailure(err)
	}
	return err
}

func (cb *CircuitBreaker) allowRequest() (State, bool) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case StateClosed:
		return cb.state, true

	case StateOpen:
		if !cb.now().Before(cb.nextAttempt) {
			cb.setState(StateHalfOpen)
			cb.probing = true
			return cb.state, true
		}

	case StateHalfOpen:
		// one probe at a time
		if !cb.probing {
			cb.probing = true
			return cb.state, true
		}
	}

	cb.stats.RejectedRequests++
	return cb.state, false
}

func (cb *CircuitBreaker) releaseProbe() {
	cb.mutex.Lock()
	cb.probing = false
	cb.mutex.Unlock()
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.probing = false
	cb.stats.TotalRequests++
	cb.stats.SuccessfulRequests++
	cb.stats.ConsecutiveFailures = 0
	cb.stats.ConsecutiveSuccesses++
	cb.stats.LastSuccessTime = cb.now()

	if cb.state == StateHalfOpen && cb.stats.ConsecutiveSuccesses >= cb.config.SuccessThreshold {
		cb.setState(StateClosed)
	}
}

func (cb *CircuitBreaker) recordFailure(err error) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.probing = false
	cb.stats.TotalRequests++
	cb.stats.FailedRequests++
	cb.stats.ConsecutiveFailures++
	cb.stats.ConsecutiveSuccesses = 0
	cb.stats.LastFailureTime = cb.now()

	if cb.state == StateHalfOpen || cb.stats.ConsecutiveFailures >= cb.config.FailureThreshold {
		cb.setState(StateOpen)
	}

	cb.logger.WithError(err).WithFields(logrus.Fields{
		"failures": cb.stats.ConsecutiveFailures,
		"state":    cb.state.String(),
	}).Debug("Circuit breaker recorded failure")
}

// setState must be called with the mutex held
func (cb *CircuitBreaker) setState(newState State) {
	if cb.state == newState {
		return
	}

	oldState := cb.state
	cb.state = newState

	switch newState {
	case StateOpen:
		timeout := cb.config.Timeout
		if cb.config.ExponentialBackoff {
			over := cb.stats.ConsecutiveFailures - cb.config.FailureThreshold
			if over < 0 {
				over = 0
			}
			if over > 10 {
				over = 10
			}
			timeout = cb.config.Timeout * time.Duration(int64(1)<<uint(over))
			if cb.config.MaxTimeout > 0 && timeout > cb.config.MaxTimeout {
				timeout = cb.config.MaxTimeout
			}
		}
		cb.nextAttempt = cb.now().Add(timeout)

	case StateClosed:
		cb.stats.ConsecutiveFailures = 0
		cb.nextAttempt = time.Time{}

	case StateHalfOpen:
		cb.stats.ConsecutiveSuccesses = 0
	}

	cb.stats.StateTransitions++

	cb.logger.WithFields(logrus.Fields{
		"from_state": oldState.String(),
		"to_state":   newState.String(),
		"failures":   cb.stats.ConsecutiveFailures,
	}).Info("Circuit breaker state changed")

	if cb.onStateChange != nil {
		go cb.onStateChange(cb.name, oldState, newState)
	}
}

// GetState returns the current circuit breaker state
func (cb *CircuitBreaker) GetState() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

// GetStatistics returns a copy of the breaker statistics
func (cb *CircuitBreaker) GetStatistics() Statistics {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	stats := cb.stats
	stats.State = cb.state.String()
	return stats
}

// Reset returns the breaker to the closed state and clears its counters
func (cb *CircuitBreaker) Reset() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.setState(StateClosed)
	cb.probing = false
	cb.stats = Statistics{}

	cb.logger.Info("Circuit breaker reset")
}

// SetStateChangeCallback sets a callback for state changes
func (cb *CircuitBreaker) SetStateChangeCallback(callback func(name string, from State, to State)) {
	cb.mutex.Lock()
	cb.onStateChange = callback
	cb.mutex.Unlock()
}

// GetName returns the circuit breaker name
func (cb *CircuitBreaker) GetName() string {
	return cb.name
}

// IsOpen returns true if the circuit is open
func (cb *CircuitBreaker) IsOpen() bool {
	return cb.GetState() == StateOpen
}
