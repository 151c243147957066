package messaging

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"interview-monitor/pkg/escalation"
	"interview-monitor/pkg/metrics"
	"interview-monitor/pkg/storage"
	"interview-monitor/pkg/timeline"
	"interview-monitor/pkg/util"

	"github.com/sirupsen/logrus"
)

// Routing keys for session events
const (
	RoutingSessionStarted = "session.started"
	RoutingSessionEnded   = "session.ended"
	RoutingTimelineEntry  = "session.timeline.entry"
	RoutingStrikeWarning  = "session.strike.warning"
	RoutingStrikeEvidence = "session.strike.evidence"
	RoutingEscalated      = "session.escalated"
)

const (
	defaultEventBuffer = 256
	publishTimeout     = 2 * time.Second
)

// Event is the envelope published for every session event
type Event struct {
	Type      string      `json:"type"`
	MonitorID string      `json:"monitor_id"`
	SessionID string      `json:"session_id"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

type outgoing struct {
	routingKey string
	body       []byte
}

// EventPublisher queues session events and publishes them from a single worker.
// Emit never blocks; events are dropped when the queue is full.
type EventPublisher struct {
	publisher Publisher
	logger    *logrus.Logger
	panics    *util.PanicHandler
	now       func() time.Time

	queue    chan outgoing
	mu       sync.RWMutex
	closed   bool
	done     chan struct{}
	dropped  int64
	dropLock sync.Mutex
}

// NewEventPublisher starts the publishing worker
func NewEventPublisher(publisher Publisher, bufferSize int, logger *logrus.Logger) *EventPublisher {
	if bufferSize <= 0 {
		bufferSize = defaultEventBuffer
	}
	p := &EventPublisher{
		publisher: publisher,
		logger:    logger,
		panics:    util.NewPanicHandler(logger),
		now:       time.Now,
		queue:     make(chan outgoing, bufferSize),
		done:      make(chan struct{}),
	}
	p.panics.SafeGo("amqp-publisher", p.run)
	return p
}

// Emit encodes and queues an event
func (p *EventPublisher) Emit(routingKey string, ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = p.now()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		p.logger.WithError(err).WithField("routing_key", routingKey).Error("Failed to encode session event")
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}

	select {
	case p.queue <- outgoing{routingKey: routingKey, body: body}:
	default:
		p.dropLock.Lock()
		p.dropped++
		p.dropLock.Unlock()
		metrics.RecordAMQPPublish(routingKey, "dropped")
		p.logger.WithField("routing_key", routingKey).Warn("Event queue full, dropping session event")
	}
}

func (p *EventPublisher) run() {
	defer close(p.done)
	for msg := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		err := p.publisher.Publish(ctx, msg.routingKey, msg.body)
		cancel()

		if err != nil {
			metrics.RecordAMQPPublish(msg.routingKey, "error")
			p.logger.WithError(err).WithField("routing_key", msg.routingKey).Warn("Failed to publish session event")
			continue
		}
		metrics.RecordAMQPPublish(msg.routingKey, "success")
	}
}

// Dropped returns how many events were discarded because the queue was full
func (p *EventPublisher) Dropped() int64 {
	p.dropLock.Lock()
	defer p.dropLock.Unlock()
	return p.dropped
}

// Shutdown stops accepting events and waits for the queue to drain
func (p *EventPublisher) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ForMonitor returns the per-monitor hooks that stamp events with monitorID
func (p *EventPublisher) ForMonitor(monitorID string) *MonitorEvents {
	return &MonitorEvents{publisher: p, monitorID: monitorID}
}

// MonitorEvents adapts monitor callbacks to published events. It satisfies
// escalation.Notifier, timeline.Listener and the monitor lifecycle hooks.
type MonitorEvents struct {
	publisher *EventPublisher
	monitorID string
}

func (m *MonitorEvents) emit(routingKey, sessionID string, data interface{}) {
	m.publisher.Emit(routingKey, Event{
		Type:      routingKey,
		MonitorID: m.monitorID,
		SessionID: sessionID,
		Data:      data,
	})
}

func (m *MonitorEvents) Warn(n escalation.Notice) {
	m.emit(RoutingStrikeWarning, n.SessionID, n)
}

func (m *MonitorEvents) Escalate(e escalation.Escalation) {
	m.emit(RoutingEscalated, e.SessionID, e)
}

func (m *MonitorEvents) Evidence(n escalation.Notice) {
	m.emit(RoutingStrikeEvidence, n.SessionID, n)
}

func (m *MonitorEvents) OnEntry(sessionID string, entry timeline.Entry) {
	m.emit(RoutingTimelineEntry, sessionID, entry)
}

func (m *MonitorEvents) SessionStarted(record storage.SessionRecord) {
	m.emit(RoutingSessionStarted, record.SessionID, record)
}

func (m *MonitorEvents) SessionEnded(record storage.SessionRecord) {
	m.emit(RoutingSessionEnded, record.SessionID, record)
}
