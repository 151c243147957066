// Package escalation implements the three-strike escalation policy for a session.
package escalation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"interview-monitor/pkg/errors"
	"interview-monitor/pkg/metrics"
	"interview-monitor/pkg/util"

	"github.com/sirupsen/logrus"
)

const (
	// Threshold is the strike count that triggers the one-time escalation.
	Threshold = 3

	// WarningDisplay is how long a transient warning stays visible.
	WarningDisplay = 5 * time.Second

	defaultAlertTimeout = 10 * time.Second
)

// Tier is the escalation state derived from the strike count.
type Tier int

const (
	TierClean Tier = iota
	TierWarned
	TierEscalated
)

func (t Tier) String() string {
	switch t {
	case TierClean:
		return "clean"
	case TierWarned:
		return "warned"
	case TierEscalated:
		return "escalated"
	}
	return "unknown"
}

// MarshalText renders the tier name in JSON.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses a tier name.
func (t *Tier) UnmarshalText(text []byte) error {
	switch string(text) {
	case "clean":
		*t = TierClean
	case "warned":
		*t = TierWarned
	case "escalated":
		*t = TierEscalated
	default:
		return fmt.Errorf("unknown escalation tier %q", text)
	}
	return nil
}

// TierFor maps a strike count to its tier.
func TierFor(count int) Tier {
	switch {
	case count >= Threshold:
		return TierEscalated
	case count > 0:
		return TierWarned
	default:
		return TierClean
	}
}

// Severity of a notice shown to the proctor.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
	SeverityInfo     Severity = "info"
)

// Strike is one recorded dangerous event.
type Strike struct {
	Number int       `json:"number"`
	At     time.Time `json:"at"`
	Label  string    `json:"label"`
	Reason string    `json:"reason"`
}

// Notice is a per-strike notification.
type Notice struct {
	SessionID  string        `json:"session_id"`
	Count      int           `json:"count"`
	Strike     Strike        `json:"strike"`
	Severity   Severity      `json:"severity"`
	DisplayFor time.Duration `json:"display_for_ns"`
	Message    string        `json:"message"`
}

// Escalation is emitted once per session when the threshold is reached.
type Escalation struct {
	SessionID   string    `json:"session_id"`
	Count       int       `json:"count"`
	TriggeredAt time.Time `json:"triggered_at"`
	History     []Strike  `json:"history"`
	Severity    Severity  `json:"severity"`
	Message     string    `json:"message"`
}

// Notifier receives in-app notifications. Implementations must not block.
type Notifier interface {
	Warn(n Notice)
	Escalate(e Escalation)
	Evidence(n Notice)
}

// Alerter delivers the escalation to a secondary channel such as chat or a webhook.
type Alerter interface {
	Alert(ctx context.Context, e Escalation) error
}

// State is a snapshot of the escalation counters.
type State struct {
	Count      int      `json:"strike_count"`
	History    []Strike `json:"history"`
	AlertFired bool     `json:"alert_fired"`
	Tier       Tier     `json:"tier"`
}

// Kind classifies the outcome of recording a strike.
type Kind string

const (
	KindWarning    Kind = "warning"
	KindEscalation Kind = "escalation"
	KindEvidence   Kind = "continued_evidence"
)

// Outcome reports what Record did.
type Outcome struct {
	Count int
	Tier  Tier
	Kind  Kind
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides time.Now for strike timestamps.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithAlertTimeout bounds the detached secondary alert call.
func WithAlertTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.alertTimeout = d
		}
	}
}

// Engine folds dangerous events into strikes. The count never decreases and
// the escalation fires exactly once, when the count reaches Threshold.
type Engine struct {
	sessionID    string
	notifier     Notifier
	alerter      Alerter
	logger       *logrus.Logger
	panics       *util.PanicHandler
	clock        func() time.Time
	alertTimeout time.Duration

	mu         sync.Mutex
	count      int
	history    []Strike
	alertFired bool

	alerts sync.WaitGroup
}

// NewEngine creates an engine for one session. notifier and alerter may be nil.
func NewEngine(sessionID string, notifier Notifier, alerter Alerter, logger *logrus.Logger, opts ...Option) *Engine {
	e := &Engine{
		sessionID:    sessionID,
		notifier:     notifier,
		alerter:      alerter,
		logger:       logger,
		panics:       util.NewPanicHandler(logger),
		clock:        time.Now,
		alertTimeout: defaultAlertTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Record registers one dangerous event labelled with the session offset.
func (e *Engine) Record(label, reason string) Outcome {
	e.mu.Lock()
	e.count++
	strike := Strike{
		Number: e.count,
		At:     e.clock(),
		Label:  label,
		Reason: reason,
	}
	e.history = append(e.history, strike)
	count := e.count

	fire := count == Threshold && !e.alertFired
	if fire {
		e.alertFired = true
	}
	var history []Strike
	if fire {
		history = make([]Strike, len(e.history))
		copy(history, e.history)
	}
	e.mu.Unlock()

	metrics.RecordStrike()

	fields := logrus.Fields{
		"session_id": e.sessionID,
		"strike":     count,
		"label":      label,
		"reason":     reason,
	}

	switch {
	case fire:
		esc := Escalation{
			SessionID:   e.sessionID,
			Count:       count,
			TriggeredAt: strike.At,
			History:     history,
			Severity:    SeverityCritical,
			Message:     fmt.Sprintf("Escalation: %d suspicious events detected", count),
		}
		e.logger.WithFields(fields).Warn("Strike threshold reached, escalating")
		metrics.RecordEscalation()
		if e.notifier != nil {
			e.notifier.Escalate(esc)
		}
		e.dispatchAlert(esc)
		return Outcome{Count: count, Tier: TierEscalated, Kind: KindEscalation}

	case count > Threshold:
		e.logger.WithFields(fields).Info("Continued evidence after escalation")
		if e.notifier != nil {
			e.notifier.Evidence(Notice{
				SessionID: e.sessionID,
				Count:     count,
				Strike:    strike,
				Severity:  SeverityInfo,
				Message:   fmt.Sprintf("Additional suspicious event (%d total): %s", count, reason),
			})
		}
		return Outcome{Count: count, Tier: TierEscalated, Kind: KindEvidence}

	default:
		e.logger.WithFields(fields).Info("Strike recorded")
		if e.notifier != nil {
			e.notifier.Warn(Notice{
				SessionID:  e.sessionID,
				Count:      count,
				Strike:     strike,
				Severity:   SeverityWarning,
				DisplayFor: WarningDisplay,
				Message:    fmt.Sprintf("Warning %d of %d: %s", count, Threshold, reason),
			})
		}
		return Outcome{Count: count, Tier: TierWarned, Kind: KindWarning}
	}
}

// dispatchAlert runs the secondary alert detached from the session. Failures are logged only.
func (e *Engine) dispatchAlert(esc Escalation) {
	if e.alerter == nil {
		return
	}

	e.alerts.Add(1)
	e.panics.SafeGo("escalation-alert", func() {
		defer e.alerts.Done()

		ctx, cancel := context.WithTimeout(context.Background(), e.alertTimeout)
		defer cancel()

		if err := e.alerter.Alert(ctx, esc); err != nil {
			alertErr := errors.Wrap(err, "secondary alert failed").WithField("session_id", esc.SessionID)
			if !errors.IsErrorType(err, errors.ErrExternalAlert) {
				alertErr = errors.NewExternalAlert("secondary", err).WithField("session_id", esc.SessionID)
			}
			e.logger.WithError(alertErr).WithField("session_id", esc.SessionID).Error("Failed to send alert notification")
			return
		}
		e.logger.WithField("session_id", esc.SessionID).Info("Escalation alert delivered")
	})
}

// WaitAlerts blocks until detached alert deliveries have finished.
func (e *Engine) WaitAlerts() {
	e.alerts.Wait()
}

// State returns a copy of the current counters.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	history := make([]Strike, len(e.history))
	copy(history, e.history)
	return State{
		Count:      e.count,
		History:    history,
		AlertFired: e.alertFired,
		Tier:       TierFor(e.count),
	}
}

// Count returns the strike count.
func (e *Engine) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}

// Notifiers fans notices out to several notifiers in order.
type Notifiers []Notifier

func (n Notifiers) Warn(notice Notice) {
	for _, x := range n {
		x.Warn(notice)
	}
}

func (n Notifiers) Escalate(e Escalation) {
	for _, x := range n {
		x.Escalate(e)
	}
}

func (n Notifiers) Evidence(notice Notice) {
	for _, x := range n {
		x.Evidence(notice)
	}
}
