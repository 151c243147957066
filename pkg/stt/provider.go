package stt

import (
	"context"
	"io"
	"sync"
	"time"

	"interview-monitor/pkg/config"
	"interview-monitor/pkg/errors"
	"interview-monitor/pkg/metrics"

	"github.com/sirupsen/logrus"
)

// Provider defines the interface for speech-to-text providers
type Provider interface {
	// Initialize prepares the provider client
	Initialize() error

	// Name returns the provider name
	Name() string

	// StreamToText consumes 16-bit mono PCM from audioStream until EOF or
	// cancellation and publishes results under streamID
	StreamToText(ctx context.Context, audioStream io.Reader, streamID string) error
}

// ProviderManager holds the initialized providers
type ProviderManager struct {
	logger          *logrus.Logger
	mu              sync.RWMutex
	providers       map[string]Provider
	defaultProvider string
}

// NewProviderManager creates a new provider manager
func NewProviderManager(logger *logrus.Logger, defaultProvider string) *ProviderManager {
	return &ProviderManager{
		logger:          logger,
		providers:       make(map[string]Provider),
		defaultProvider: defaultProvider,
	}
}

// RegisterProvider initializes and registers a provider
func (m *ProviderManager) RegisterProvider(provider Provider) error {
	if err := provider.Initialize(); err != nil {
		m.logger.WithError(err).WithField("provider", provider.Name()).Error("Failed to initialize speech-to-text provider")
		return errors.Wrap(err, "failed to initialize speech-to-text provider").WithField("provider", provider.Name())
	}

	m.mu.Lock()
	m.providers[provider.Name()] = provider
	m.mu.Unlock()

	m.logger.WithField("provider", provider.Name()).Info("Registered speech-to-text provider")
	return nil
}

// GetProvider returns a provider by name
func (m *ProviderManager) GetProvider(name string) (Provider, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	provider, exists := m.providers[name]
	return provider, exists
}

// GetDefaultProvider returns the default provider
func (m *ProviderManager) GetDefaultProvider() (Provider, bool) {
	return m.GetProvider(m.defaultProvider)
}

// StreamToProvider streams audio to the named provider, falling back to the default
func (m *ProviderManager) StreamToProvider(ctx context.Context, providerName string, audioStream io.Reader, streamID string) error {
	provider, exists := m.GetProvider(providerName)
	if !exists {
		m.logger.WithFields(logrus.Fields{
			"stream_id":        streamID,
			"provider":         providerName,
			"default_provider": m.defaultProvider,
		}).Warn("Provider not found, falling back to default")

		provider, exists = m.GetDefaultProvider()
		if !exists {
			return ErrNoProviderAvailable
		}
	}

	startTime := time.Now()
	err := provider.StreamToText(ctx, audioStream, streamID)

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordSTTRequest(provider.Name(), status)

	m.logger.WithFields(logrus.Fields{
		"stream_id":   streamID,
		"provider":    provider.Name(),
		"duration_ms": time.Since(startTime).Milliseconds(),
		"error":       err != nil,
	}).Info("Transcription stream completed")

	return err
}

// NewProviderFromConfig builds the provider selected by cfg.Provider.
// It returns nil, nil when server-side transcription is disabled.
func NewProviderFromConfig(cfg config.STTConfig, svc *TranscriptionService, logger *logrus.Logger) (Provider, error) {
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "mock":
		return NewMockProvider(logger, svc), nil
	case "google":
		return NewGoogleProvider(logger, svc, cfg), nil
	case "amazon":
		return NewAmazonTranscribeProvider(logger, svc, cfg), nil
	}
	return nil, errors.NewInvalidInput("unknown STT provider").WithField("provider", cfg.Provider)
}
