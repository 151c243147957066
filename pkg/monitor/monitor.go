// Package monitor runs monitoring sessions: a perception loop, a throttled
// judgment loop, and the apply path that feeds the timeline and escalation
// engine.
package monitor

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"interview-monitor/pkg/capture"
	"interview-monitor/pkg/errors"
	"interview-monitor/pkg/escalation"
	"interview-monitor/pkg/judgment"
	"interview-monitor/pkg/metrics"
	"interview-monitor/pkg/perception"
	"interview-monitor/pkg/report"
	"interview-monitor/pkg/session"
	"interview-monitor/pkg/storage"
	"interview-monitor/pkg/timeline"
	"interview-monitor/pkg/util"

	"github.com/sirupsen/logrus"
)

// MinPerceptionInterval bounds how often the perception loop may tick
const MinPerceptionInterval = 100 * time.Millisecond

const storeTimeout = 5 * time.Second

// Judge submits one snapshot for remote judgment
type Judge interface {
	Submit(ctx context.Context, req judgment.Request) ([]judgment.Observation, error)
}

// Lifecycle is told when sessions start and end. Implementations must not block.
type Lifecycle interface {
	SessionStarted(record storage.SessionRecord)
	SessionEnded(record storage.SessionRecord)
}

// Lifecycles fans session events out in order
type Lifecycles []Lifecycle

func (l Lifecycles) SessionStarted(record storage.SessionRecord) {
	for _, x := range l {
		x.SessionStarted(record)
	}
}

func (l Lifecycles) SessionEnded(record storage.SessionRecord) {
	for _, x := range l {
		x.SessionEnded(record)
	}
}

// Config holds per-monitor settings
type Config struct {
	Mode               session.Mode
	PerceptionInterval time.Duration
	Constraints        capture.Constraints
	IncludePerception  bool
	Clock              session.Clock
}

// Dependencies are the collaborators of one monitor. Notifier, Alerter,
// Store and Lifecycle may be nil.
type Dependencies struct {
	Capture    *capture.Service
	Adapter    *perception.Adapter
	Transcript *capture.TranscriptAccumulator
	Judge      Judge

	Notifier  escalation.Notifier
	Alerter   escalation.Alerter
	Store     storage.Store
	Lifecycle Lifecycle
	Listeners []timeline.Listener
}

// run is the state of one session. A new run is created on every Start.
type run struct {
	session  *session.Session
	engine   *escalation.Engine
	timeline *timeline.Timeline
	cancel   context.CancelFunc

	loops    sync.WaitGroup
	requests sync.WaitGroup
	inflight atomic.Bool

	// guarded by Monitor.mu
	stopped bool

	endTimer func()
}

// Monitor orchestrates sessions for one candidate
type Monitor struct {
	id     string
	logger *logrus.Entry
	panics *util.PanicHandler
	cfg    Config
	deps   Dependencies

	// lifecycle serializes Start, Stop and SetMode so a new session never
	// shares capture with a teardown still in progress. mu guards the fields
	// below and is never held across capture or store calls.
	lifecycle sync.Mutex

	mu      sync.Mutex
	mode    session.Mode
	current *run
}

// New creates an idle monitor
func New(id string, cfg Config, deps Dependencies, logger *logrus.Logger) *Monitor {
	if !cfg.Mode.Valid() {
		cfg.Mode = session.ModeNormal
	}
	if cfg.PerceptionInterval < MinPerceptionInterval {
		cfg.PerceptionInterval = MinPerceptionInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Monitor{
		id:     id,
		logger: logger.WithField("monitor_id", id),
		panics: util.NewPanicHandler(logger),
		cfg:    cfg,
		deps:   deps,
		mode:   cfg.Mode,
	}
}

// ID returns the monitor identifier
func (m *Monitor) ID() string { return m.id }

// Mode returns the mode used by the next (or current) session
func (m *Monitor) Mode() session.Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Active reports whether a session is running
func (m *Monitor) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeLocked()
}

func (m *Monitor) activeLocked() bool {
	return m.current != nil && !m.current.stopped
}

// SetMode changes the analysis mode. Only allowed while no session is active.
func (m *Monitor) SetMode(mode session.Mode) error {
	if !mode.Valid() {
		return errors.NewInvalidInput("unknown analysis mode", map[string]interface{}{"mode": string(mode)})
	}

	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeLocked() {
		return errors.NewSessionActive(m.id)
	}
	m.mode = mode
	m.logger.WithField("mode", mode).Info("Analysis mode changed")
	return nil
}

// Start acquires capture, checks the perception models and starts a new
// session with both loops running.
func (m *Monitor) Start(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.Active() {
		return errors.NewSessionActive(m.id)
	}

	if err := m.deps.Capture.Acquire(ctx, m.cfg.Constraints); err != nil {
		metrics.RecordSessionStartFailure("media_access")
		return err
	}

	if err := m.deps.Adapter.CheckModels(); err != nil {
		metrics.RecordSessionStartFailure("model_load")
		if relErr := m.deps.Capture.Release(); relErr != nil {
			m.logger.WithError(relErr).Warn("Failed to release capture after model load failure")
		}
		m.logger.WithError(err).Warn("Perception models unavailable, session not started")
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sess := session.New(m.mode, m.cfg.Clock)
	r := &run{
		session:  sess,
		engine:   escalation.NewEngine(sess.ID, m.deps.Notifier, m.deps.Alerter, m.logger.Logger),
		timeline: timeline.New(sess.ID, m.logger.Logger),
		endTimer: metrics.StartSessionTimer(string(m.mode)),
	}
	for _, l := range m.deps.Listeners {
		r.timeline.Subscribe(l)
	}
	if m.deps.Transcript != nil {
		m.deps.Transcript.Reset()
	}
	m.deps.Adapter.Reset()

	loopCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	m.current = r

	r.loops.Add(2)
	m.panics.SafeGo("perception-loop", func() {
		defer r.loops.Done()
		m.perceptionLoop(loopCtx)
	})
	m.panics.SafeGo("judgment-loop", func() {
		defer r.loops.Done()
		m.judgmentLoop(loopCtx, r)
	})

	m.logger.WithFields(logrus.Fields{
		"session_id": sess.ID,
		"mode":       m.mode,
		"interval":   m.mode.Interval(),
	}).Info("Monitoring session started")

	if m.deps.Lifecycle != nil {
		m.deps.Lifecycle.SessionStarted(m.recordOf(r))
	}
	return nil
}

// Stop ends the active session. Calling it without an active session is a no-op.
func (m *Monitor) Stop() error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	r := m.current
	if r == nil || r.stopped {
		m.mu.Unlock()
		return nil
	}
	r.stopped = true
	r.session.Stop()
	m.mu.Unlock()

	r.cancel()
	r.loops.Wait()

	var releaseErr error
	if err := m.deps.Capture.Release(); err != nil {
		releaseErr = err
		m.logger.WithError(err).Warn("Failed to release capture")
	}
	r.endTimer()

	record := m.recordOf(r)
	if body, err := json.Marshal(report.Build(record, m.cfg.Clock())); err == nil {
		record.Report = body
	} else {
		m.logger.WithError(err).Warn("Failed to encode session report")
	}

	if m.deps.Store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		if err := m.deps.Store.Save(ctx, record); err != nil {
			m.logger.WithError(err).WithField("session_id", record.SessionID).Warn("Failed to save session record")
		}
		cancel()
	}
	if m.deps.Lifecycle != nil {
		m.deps.Lifecycle.SessionEnded(record)
	}

	m.logger.WithFields(logrus.Fields{
		"session_id": record.SessionID,
		"elapsed":    record.Elapsed.String(),
		"strikes":    record.Escalation.Count,
		"entries":    len(record.Timeline),
	}).Info("Monitoring session stopped")
	return releaseErr
}

func (m *Monitor) perceptionLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.PerceptionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.perceptionTick(ctx)
		}
	}
}

func (m *Monitor) perceptionTick(ctx context.Context) {
	defer m.panics.Recover("perception-tick")
	m.deps.Adapter.Tick(ctx, m.deps.Capture.LatestFrame())
}

func (m *Monitor) judgmentLoop(ctx context.Context, r *run) {
	m.dispatch(ctx, r)

	ticker := time.NewTicker(r.session.Mode.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.dispatch(ctx, r)
		}
	}
}

// dispatch builds a request and sends it on its own goroutine unless one is
// already in flight.
func (m *Monitor) dispatch(ctx context.Context, r *run) {
	defer m.panics.Recover("judgment-dispatch")

	if !r.inflight.CompareAndSwap(false, true) {
		metrics.RecordJudgmentSkipped("in_flight")
		return
	}

	frame, err := m.deps.Capture.SnapshotFrame()
	if err != nil || frame == nil {
		r.inflight.Store(false)
		if err != nil {
			m.logger.WithError(err).Debug("Snapshot failed")
		}
		metrics.RecordJudgmentSkipped("no_frame")
		return
	}

	req := judgment.Request{
		SessionID: r.session.ID,
		Label:     timeline.FormatElapsed(r.session.Elapsed()),
		Image:     frame,
	}
	if m.deps.Transcript != nil {
		req.Transcript = m.deps.Transcript.Transcript()
	}
	if m.cfg.IncludePerception {
		req.Perception = m.deps.Adapter.Latest().Summary()
	}

	r.requests.Add(1)
	m.panics.SafeGo("judgment-request", func() {
		defer r.requests.Done()
		defer r.inflight.Store(false)
		m.submit(ctx, r, req)
	})
}

func (m *Monitor) submit(ctx context.Context, r *run, req judgment.Request) {
	done := metrics.ObserveJudgmentLatency(string(r.session.Mode))
	log := m.logger.WithFields(logrus.Fields{
		"session_id": req.SessionID,
		"label":      req.Label,
	})

	observations, err := m.deps.Judge.Submit(ctx, req)
	switch {
	case err == nil:
		done("ok")
	case ctx.Err() != nil:
		done("canceled")
		log.Debug("Judgment request canceled")
		return
	case errors.IsErrorType(err, errors.ErrResponseParse):
		// unparseable replies count as zero events
		done("parse_error")
		observations = nil
	case errors.IsErrorType(err, errors.ErrInvalidFrame):
		done("invalid_frame")
		log.WithError(err).Warn("Snapshot rejected before submission")
		return
	default:
		done("error")
		log.WithError(err).Warn("Judgment request failed")
		return
	}

	m.apply(r, req.Label, observations)
}

// apply records observations in parser order. Responses for a stopped or
// replaced session are discarded.
func (m *Monitor) apply(r *run, label string, observations []judgment.Observation) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.stopped || m.current != r {
		metrics.RecordJudgmentDiscarded()
		m.logger.WithField("session_id", r.session.ID).Debug("Discarding judgment for ended session")
		return
	}

	for _, o := range observations {
		r.timeline.Append(timeline.Entry{
			Label:             label,
			Description:       o.Description,
			Dangerous:         o.Dangerous,
			ReportedTimestamp: o.Timestamp,
		})
		metrics.RecordObservation(o.Dangerous)
		if o.Dangerous {
			r.engine.Record(label, o.Description)
		}
	}
}

// State is the control-surface view of a monitor
type State struct {
	MonitorID  string              `json:"monitor_id"`
	SessionID  string              `json:"session_id,omitempty"`
	Active     bool                `json:"active"`
	Mode       session.Mode        `json:"mode"`
	Elapsed    string              `json:"elapsed"`
	ElapsedMs  int64               `json:"elapsed_ms"`
	StartedAt  *time.Time          `json:"started_at,omitempty"`
	StoppedAt  *time.Time          `json:"stopped_at,omitempty"`
	Escalation escalation.State    `json:"escalation"`
	Entries    int                 `json:"timeline_entries"`
	InFlight   bool                `json:"request_in_flight"`
	Perception perception.Snapshot `json:"perception"`
}

// State returns a snapshot of the monitor
func (m *Monitor) State() State {
	m.mu.Lock()
	r := m.current
	st := State{
		MonitorID: m.id,
		Mode:      m.mode,
		Active:    m.activeLocked(),
		Elapsed:   timeline.FormatElapsed(0),
		Escalation: escalation.State{
			History: []escalation.Strike{},
			Tier:    escalation.TierClean,
		},
	}
	m.mu.Unlock()

	st.Perception = m.deps.Adapter.Latest()
	if r == nil {
		return st
	}

	elapsed := r.session.Elapsed()
	started := r.session.StartedAt()
	st.SessionID = r.session.ID
	if st.Active {
		st.Mode = r.session.Mode
	}
	st.Elapsed = timeline.FormatElapsed(elapsed)
	st.ElapsedMs = elapsed.Milliseconds()
	st.StartedAt = &started
	if stopped := r.session.StoppedAt(); !stopped.IsZero() {
		st.StoppedAt = &stopped
	}
	st.Escalation = r.engine.State()
	st.Entries = r.timeline.Len()
	st.InFlight = r.inflight.Load()
	return st
}

// Timeline returns the entries of the current or last session
func (m *Monitor) Timeline() []timeline.Entry {
	r := m.lastRun()
	if r == nil {
		return []timeline.Entry{}
	}
	return r.timeline.Entries()
}

// LatestPerception returns the newest perception snapshot
func (m *Monitor) LatestPerception() perception.Snapshot {
	return m.deps.Adapter.Latest()
}

// Recording returns the recorded media of the current or last session
func (m *Monitor) Recording() []byte {
	rec := m.deps.Capture.Recorder()
	if rec == nil {
		return nil
	}
	return rec.Recording()
}

// Record returns the storable record of the current or last session
func (m *Monitor) Record() (storage.SessionRecord, error) {
	r := m.lastRun()
	if r == nil {
		return storage.SessionRecord{}, errors.NewNotFound("monitor has no session yet", map[string]interface{}{
			"monitor_id": m.id,
		})
	}
	return m.recordOf(r), nil
}

// Report builds the review report for the current or last session
func (m *Monitor) Report() (report.Report, error) {
	record, err := m.Record()
	if err != nil {
		return report.Report{}, err
	}
	return report.Build(record, m.cfg.Clock()), nil
}

// waitRequests blocks until in-flight judgment calls of the last run return
func (m *Monitor) waitRequests() {
	if r := m.lastRun(); r != nil {
		r.requests.Wait()
	}
}

func (m *Monitor) lastRun() *run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *Monitor) recordOf(r *run) storage.SessionRecord {
	rec := storage.SessionRecord{
		SessionID:  r.session.ID,
		MonitorID:  m.id,
		Mode:       string(r.session.Mode),
		StartedAt:  r.session.StartedAt(),
		EndedAt:    r.session.StoppedAt(),
		Elapsed:    r.session.Elapsed(),
		Escalation: r.engine.State(),
		Timeline:   r.timeline.Entries(),
	}
	if m.deps.Transcript != nil {
		rec.Transcript = m.deps.Transcript.Transcript()
	}
	if recorder := m.deps.Capture.Recorder(); recorder != nil {
		rec.RecordingSize = recorder.Size()
	}
	return rec
}
