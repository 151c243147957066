package monitor

import (
	"context"
	"sort"
	"sync"
	"time"

	"interview-monitor/pkg/capture"
	"interview-monitor/pkg/errors"
	"interview-monitor/pkg/escalation"
	"interview-monitor/pkg/perception"
	"interview-monitor/pkg/session"
	"interview-monitor/pkg/storage"
	"interview-monitor/pkg/stt"
	"interview-monitor/pkg/timeline"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Media is the client-fed side of a monitor, written by the media ingest
type Media struct {
	Source     *capture.PushSource
	Detector   *perception.ReportedDetector
	Transcript *capture.TranscriptAccumulator
	Capture    *capture.Service
}

// Hooks connects a monitor to notification, alerting and storage. Every field may be nil.
type Hooks struct {
	Notifier  escalation.Notifier
	Alerter   escalation.Alerter
	Store     storage.Store
	Lifecycle Lifecycle
	Listeners []timeline.Listener
}

// HooksFunc builds the hooks for a new monitor
type HooksFunc func(monitorID string) Hooks

// TranscriptSource delivers speech-to-text results to listeners
type TranscriptSource interface {
	AddListener(listener stt.TranscriptionListener)
	RemoveListener(listener stt.TranscriptionListener)
}

// ManagerConfig holds settings applied to every monitor
type ManagerConfig struct {
	MaxMonitors int
	Monitor     Config
	Capture     capture.Config
}

type entry struct {
	monitor   *Monitor
	media     *Media
	createdAt time.Time
}

// Manager owns the monitors of this process
type Manager struct {
	logger      *logrus.Logger
	cfg         ManagerConfig
	judge       Judge
	hooks       HooksFunc
	transcripts TranscriptSource

	mu       sync.RWMutex
	monitors map[string]*entry
}

// NewManager creates a manager. hooks and transcripts may be nil.
func NewManager(cfg ManagerConfig, judge Judge, hooks HooksFunc, transcripts TranscriptSource, logger *logrus.Logger) *Manager {
	return &Manager{
		logger:      logger,
		cfg:         cfg,
		judge:       judge,
		hooks:       hooks,
		transcripts: transcripts,
		monitors:    make(map[string]*entry),
	}
}

// Create builds a new idle monitor. An empty mode selects the configured default.
func (mgr *Manager) Create(mode session.Mode) (*Monitor, error) {
	cfg := mgr.cfg.Monitor
	if mode != "" {
		if !mode.Valid() {
			return nil, errors.NewInvalidInput("unknown analysis mode", map[string]interface{}{"mode": string(mode)})
		}
		cfg.Mode = mode
	}

	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	if mgr.cfg.MaxMonitors > 0 && len(mgr.monitors) >= mgr.cfg.MaxMonitors {
		return nil, errors.Wrap(errors.ErrUnavailable, "monitor limit reached").
			WithCode("MONITOR_LIMIT").
			WithField("max_monitors", mgr.cfg.MaxMonitors)
	}

	id := uuid.NewString()
	source := capture.NewPushSource()
	detector := perception.NewReportedDetector()
	media := &Media{
		Source:     source,
		Detector:   detector,
		Transcript: capture.NewTranscriptAccumulator(id),
		Capture:    capture.NewService(source, mgr.cfg.Capture, mgr.logger),
	}

	deps := Dependencies{
		Capture:    media.Capture,
		Adapter:    perception.NewAdapter(detector, mgr.logger),
		Transcript: media.Transcript,
		Judge:      mgr.judge,
	}
	if mgr.hooks != nil {
		h := mgr.hooks(id)
		deps.Notifier = h.Notifier
		deps.Alerter = h.Alerter
		deps.Store = h.Store
		deps.Lifecycle = h.Lifecycle
		deps.Listeners = h.Listeners
	}

	mon := New(id, cfg, deps, mgr.logger)
	mgr.monitors[id] = &entry{monitor: mon, media: media, createdAt: time.Now()}

	if mgr.transcripts != nil {
		mgr.transcripts.AddListener(media.Transcript)
	}

	mgr.logger.WithFields(logrus.Fields{
		"monitor_id": id,
		"mode":       cfg.Mode,
	}).Info("Monitor created")
	return mon, nil
}

// Get returns the monitor with id
func (mgr *Manager) Get(id string) (*Monitor, error) {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	e, ok := mgr.monitors[id]
	if !ok {
		return nil, errors.NewSessionNotFound(id)
	}
	return e.monitor, nil
}

// Media returns the ingest side of the monitor with id
func (mgr *Manager) Media(id string) (*Media, error) {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	e, ok := mgr.monitors[id]
	if !ok {
		return nil, errors.NewSessionNotFound(id)
	}
	return e.media, nil
}

// List returns all monitors, oldest first
func (mgr *Manager) List() []*Monitor {
	mgr.mu.RLock()
	entries := make([]*entry, 0, len(mgr.monitors))
	for _, e := range mgr.monitors {
		entries = append(entries, e)
	}
	mgr.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].createdAt.Before(entries[j].createdAt)
	})
	out := make([]*Monitor, len(entries))
	for i, e := range entries {
		out[i] = e.monitor
	}
	return out
}

// Count returns the number of monitors
func (mgr *Manager) Count() int {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	return len(mgr.monitors)
}

// ActiveCount returns the number of monitors with a running session
func (mgr *Manager) ActiveCount() int {
	n := 0
	for _, m := range mgr.List() {
		if m.Active() {
			n++
		}
	}
	return n
}

// Remove stops and forgets the monitor with id
func (mgr *Manager) Remove(id string) error {
	mgr.mu.Lock()
	e, ok := mgr.monitors[id]
	if ok {
		delete(mgr.monitors, id)
	}
	mgr.mu.Unlock()

	if !ok {
		return errors.NewSessionNotFound(id)
	}

	if mgr.transcripts != nil {
		mgr.transcripts.RemoveListener(e.media.Transcript)
	}
	if err := e.monitor.Stop(); err != nil {
		mgr.logger.WithError(err).WithField("monitor_id", id).Warn("Error stopping removed monitor")
	}

	mgr.logger.WithField("monitor_id", id).Info("Monitor removed")
	return nil
}

// StopAll stops every active session. It returns ctx.Err() if ctx ends first.
func (mgr *Manager) StopAll(ctx context.Context) error {
	monitors := mgr.List()

	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		for _, m := range monitors {
			wg.Add(1)
			go func(m *Monitor) {
				defer wg.Done()
				if err := m.Stop(); err != nil {
					mgr.logger.WithError(err).WithField("monitor_id", m.ID()).Warn("Error stopping monitor")
				}
			}(m)
		}
		wg.Wait()
	}()

	select {
	case <-done:
		mgr.logger.WithField("monitors", len(monitors)).Info("All monitors stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
