// Package alerting delivers session escalations to secondary channels.
package alerting

import (
	"context"
	"strings"
	"sync"
	"time"

	"interview-monitor/pkg/circuitbreaker"
	"interview-monitor/pkg/config"
	"interview-monitor/pkg/errors"
	"interview-monitor/pkg/escalation"
	"interview-monitor/pkg/metrics"

	"github.com/sirupsen/logrus"
)

const maxDeliveryHistory = 100

// NotificationChannel sends one escalation to an external system
type NotificationChannel interface {
	Send(ctx context.Context, esc escalation.Escalation) error
	GetName() string
}

// Delivery records the outcome of sending an escalation on one channel
type Delivery struct {
	SessionID string    `json:"session_id"`
	Channel   string    `json:"channel"`
	At        time.Time `json:"at"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
}

// AlertManager fans escalations out to every configured channel.
// Each channel sits behind its own circuit breaker.
type AlertManager struct {
	logger   *logrus.Logger
	channels []NotificationChannel
	breakers map[string]*circuitbreaker.CircuitBreaker

	mutex      sync.RWMutex
	deliveries []Delivery
}

// NewAlertManager creates a manager for the given channels
func NewAlertManager(logger *logrus.Logger, channels ...NotificationChannel) *AlertManager {
	am := &AlertManager{
		logger:   logger,
		channels: channels,
		breakers: make(map[string]*circuitbreaker.CircuitBreaker, len(channels)),
	}
	for _, ch := range channels {
		am.breakers[ch.GetName()] = circuitbreaker.NewCircuitBreaker("alert_"+ch.GetName(), circuitbreaker.AlertConfig(), logger)
	}
	return am
}

// NewAlertManagerFromConfig builds Slack and webhook channels from cfg.
// It returns nil when alerting is disabled or no channel is configured.
func NewAlertManagerFromConfig(cfg config.AlertingConfig, logger *logrus.Logger) *AlertManager {
	if !cfg.Enabled {
		logger.Info("Secondary alerting disabled")
		return nil
	}

	var channels []NotificationChannel
	if cfg.SlackWebhookURL != "" {
		channels = append(channels, NewSlackChannel(cfg.SlackWebhookURL, cfg.SlackChannel, cfg.Timeout))
	}
	if cfg.WebhookURL != "" {
		channels = append(channels, NewWebhookChannel(cfg.WebhookURL, ParseHeaders(cfg.WebhookHeaders), cfg.Timeout))
	}
	if len(channels) == 0 {
		logger.Warn("Alerting enabled but no channel configured")
		return nil
	}

	names := make([]string, 0, len(channels))
	for _, ch := range channels {
		names = append(names, ch.GetName())
	}
	logger.WithField("channels", names).Info("Secondary alerting enabled")
	return NewAlertManager(logger, channels...)
}

// Alert sends esc on every channel concurrently and waits for all of them.
// It fails when any channel fails.
func (am *AlertManager) Alert(ctx context.Context, esc escalation.Escalation) error {
	type outcome struct {
		channel string
		err     error
	}

	results := make(chan outcome, len(am.channels))
	for _, ch := range am.channels {
		go func(ch NotificationChannel) {
			err := am.breakers[ch.GetName()].Execute(ctx, func(ctx context.Context) error {
				return ch.Send(ctx, esc)
			})
			results <- outcome{channel: ch.GetName(), err: err}
		}(ch)
	}

	var failed []string
	var firstErr error
	for range am.channels {
		res := <-results
		status := "success"
		if res.err != nil {
			status = "error"
			if circuitbreaker.IsCircuitBreakerError(res.err) {
				status = "rejected"
			}
			failed = append(failed, res.channel)
			if firstErr == nil {
				firstErr = res.err
			}
			am.logger.WithError(res.err).WithFields(logrus.Fields{
				"channel":    res.channel,
				"session_id": esc.SessionID,
			}).Warn("Alert channel delivery failed")
		}
		metrics.RecordAlertDelivery(res.channel, status)
		am.record(esc.SessionID, res.channel, status, res.err)
	}

	if len(failed) > 0 {
		return errors.NewExternalAlert(strings.Join(failed, ","), firstErr).
			WithField("session_id", esc.SessionID)
	}
	return nil
}

func (am *AlertManager) record(sessionID, channel, status string, err error) {
	d := Delivery{
		SessionID: sessionID,
		Channel:   channel,
		At:        time.Now(),
		Status:    status,
	}
	if err != nil {
		d.Error = err.Error()
	}

	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.deliveries = append(am.deliveries, d)
	if len(am.deliveries) > maxDeliveryHistory {
		am.deliveries = am.deliveries[len(am.deliveries)-maxDeliveryHistory:]
	}
}

// GetDeliveries returns recent deliveries, oldest first
func (am *AlertManager) GetDeliveries() []Delivery {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	out := make([]Delivery, len(am.deliveries))
	copy(out, am.deliveries)
	return out
}

// Channels returns the configured channel names
func (am *AlertManager) Channels() []string {
	names := make([]string, 0, len(am.channels))
	for _, ch := range am.channels {
		names = append(names, ch.GetName())
	}
	return names
}

// ParseHeaders turns "Name: value" pairs into a header map. Malformed entries are skipped.
func ParseHeaders(pairs []string) map[string]string {
	headers := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			continue
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers
}
