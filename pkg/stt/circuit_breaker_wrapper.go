package stt

import (
	"context"
	"fmt"
	"io"
	"time"

	"interview-monitor/pkg/circuitbreaker"

	"github.com/sirupsen/logrus"
)

// CircuitBreakerWrapper wraps an STT provider with circuit breaker protection.
// While the circuit is open, streams go to the fallback provider if one is set.
type CircuitBreakerWrapper struct {
	provider         Provider
	circuitBreaker   *circuitbreaker.CircuitBreaker
	fallbackProvider Provider
	logger           *logrus.Entry
}

// NewCircuitBreakerWrapper creates a new circuit breaker wrapper for STT providers
func NewCircuitBreakerWrapper(provider Provider, logger *logrus.Logger, fallbackProvider Provider) *CircuitBreakerWrapper {
	name := fmt.Sprintf("stt_%s", provider.Name())
	return &CircuitBreakerWrapper{
		provider:         provider,
		circuitBreaker:   circuitbreaker.NewCircuitBreaker(name, circuitbreaker.STTConfig(), logger),
		fallbackProvider: fallbackProvider,
		logger: logger.WithFields(logrus.Fields{
			"component": "stt_circuit_breaker",
			"provider":  provider.Name(),
		}),
	}
}

// Initialize initializes the wrapped provider and the fallback
func (w *CircuitBreakerWrapper) Initialize() error {
	if err := w.provider.Initialize(); err != nil {
		return err
	}
	if w.fallbackProvider != nil {
		return w.fallbackProvider.Initialize()
	}
	return nil
}

// Name returns the wrapped provider name
func (w *CircuitBreakerWrapper) Name() string {
	return w.provider.Name()
}

// StreamToText streams through the breaker, using the fallback when the circuit is open
func (w *CircuitBreakerWrapper) StreamToText(ctx context.Context, audioStream io.Reader, streamID string) error {
	start := time.Now()
	err := w.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		return w.provider.StreamToText(ctx, audioStream, streamID)
	})

	if circuitbreaker.IsCircuitBreakerError(err) && w.fallbackProvider != nil {
		w.logger.WithFields(logrus.Fields{
			"stream_id":         streamID,
			"fallback_provider": w.fallbackProvider.Name(),
		}).Warn("Using fallback STT provider due to open circuit")
		return w.fallbackProvider.StreamToText(ctx, audioStream, streamID)
	}

	if err != nil {
		w.logger.WithError(err).WithFields(logrus.Fields{
			"stream_id": streamID,
			"duration":  time.Since(start),
			"state":     w.circuitBreaker.GetState().String(),
		}).Error("STT provider failed")
	}
	return err
}

// GetCircuitBreakerStats returns circuit breaker statistics
func (w *CircuitBreakerWrapper) GetCircuitBreakerStats() circuitbreaker.Statistics {
	return w.circuitBreaker.GetStatistics()
}

// IsCircuitBreakerOpen returns true if the circuit breaker is open
func (w *CircuitBreakerWrapper) IsCircuitBreakerOpen() bool {
	return w.circuitBreaker.IsOpen()
}
