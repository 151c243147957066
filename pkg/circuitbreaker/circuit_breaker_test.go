package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time { return c.t }

func newTestBreaker(cfg *Config) (*CircuitBreaker, *testClock) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	cb := NewCircuitBreaker("judgment", cfg, logger)
	clock := &testClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb.SetClock(clock.now)
	return cb, clock
}

var errBackend = errors.New("backend unavailable")

func fail(context.Context) error    { return errBackend }
func succeed(context.Context) error { return nil }

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker(&Config{FailureThreshold: 3, SuccessThreshold: 1, Timeout: time.Minute})

	for i := 0; i < 3; i++ {
		assert.Equal(t, errBackend, cb.Execute(context.Background(), fail))
	}
	assert.True(t, cb.IsOpen())

	called := false
	err := cb.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	assert.False(t, called)
	assert.True(t, IsCircuitBreakerError(err))
	assert.True(t, IsCircuitBreakerError(fmt.Errorf("wrapped: %w", err)))
	assert.Equal(t, int64(1), cb.GetStatistics().RejectedRequests)
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(&Config{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Minute})

	_ = cb.Execute(context.Background(), fail)
	require.NoError(t, cb.Execute(context.Background(), succeed))
	_ = cb.Execute(context.Background(), fail)

	assert.Equal(t, StateClosed, cb.GetState())
}

func TestHalfOpenProbeClosesCircuit(t *testing.T) {
	cb, clock := newTestBreaker(&Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: 10 * time.Second})

	_ = cb.Execute(context.Background(), fail)
	require.True(t, cb.IsOpen())

	clock.t = clock.t.Add(10 * time.Second)
	require.NoError(t, cb.Execute(context.Background(), succeed))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestHalfOpenAllowsSingleProbe(t *testing.T) {
	cb, clock := newTestBreaker(&Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Second})

	_ = cb.Execute(context.Background(), fail)
	clock.t = clock.t.Add(time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := cb.Execute(context.Background(), succeed)
	assert.True(t, IsCircuitBreakerError(err))

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestFailedProbeBacksOff(t *testing.T) {
	cb, clock := newTestBreaker(&Config{
		FailureThreshold:   1,
		SuccessThreshold:   1,
		Timeout:            time.Second,
		MaxTimeout:         time.Minute,
		ExponentialBackoff: true,
	})

	_ = cb.Execute(context.Background(), fail)
	clock.t = clock.t.Add(time.Second)
	_ = cb.Execute(context.Background(), fail)
	require.True(t, cb.IsOpen())

	clock.t = clock.t.Add(time.Second)
	assert.True(t, IsCircuitBreakerError(cb.Execute(context.Background(), succeed)), "second open period is doubled")

	clock.t = clock.t.Add(time.Second)
	assert.NoError(t, cb.Execute(context.Background(), succeed))
}

func TestCallerCancellationIsNotAFailure(t *testing.T) {
	cb, _ := newTestBreaker(&Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := cb.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Zero(t, cb.GetStatistics().FailedRequests)
}

func TestRequestTimeoutApplied(t *testing.T) {
	cb, _ := newTestBreaker(&Config{FailureThreshold: 5, SuccessThreshold: 1, Timeout: time.Minute, RequestTimeout: 50 * time.Millisecond})

	var hasDeadline bool
	_ = cb.Execute(context.Background(), func(ctx context.Context) error {
		_, hasDeadline = ctx.Deadline()
		return nil
	})
	assert.True(t, hasDeadline)
}

func TestReset(t *testing.T) {
	cb, _ := newTestBreaker(&Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Hour})
	_ = cb.Execute(context.Background(), fail)
	require.True(t, cb.IsOpen())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Zero(t, cb.GetStatistics().FailedRequests)
	assert.NoError(t, cb.Execute(context.Background(), succeed))
}

func TestJudgmentConfigOverrides(t *testing.T) {
	cfg := JudgmentConfig(7, 5*time.Second, 20*time.Second)
	assert.Equal(t, int64(7), cfg.FailureThreshold)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 20*time.Second, cfg.RequestTimeout)

	def := JudgmentConfig(0, 0, 0)
	assert.Equal(t, DefaultConfig().FailureThreshold, def.FailureThreshold)
}
