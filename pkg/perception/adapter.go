// Package perception turns per-frame detector output into snapshots with a
// derived gaze estimate.
package perception

import (
	"context"
	"image"
	"sync"
	"time"

	"interview-monitor/pkg/metrics"
	"interview-monitor/pkg/util"

	"github.com/sirupsen/logrus"
)

// Adapter runs the detector once per tick and keeps the latest snapshot
type Adapter struct {
	detector Detector
	logger   *logrus.Logger
	panics   *util.PanicHandler
	now      func() time.Time

	mu     sync.RWMutex
	latest Snapshot
}

// NewAdapter creates an adapter over detector
func NewAdapter(detector Detector, logger *logrus.Logger) *Adapter {
	return &Adapter{
		detector: detector,
		logger:   logger,
		panics:   util.NewPanicHandler(logger),
		now:      time.Now,
	}
}

// CheckModels returns the detector's load error, if any
func (a *Adapter) CheckModels() error {
	return a.detector.LoadError()
}

// Tick runs detection on frame. It returns an empty snapshot while models
// are loading, when frame is nil, or when the detector fails or panics.
func (a *Adapter) Tick(ctx context.Context, frame image.Image) Snapshot {
	if frame == nil {
		metrics.RecordPerceptionTick("no_frame")
		return Snapshot{}
	}
	if !a.detector.Ready() {
		metrics.RecordPerceptionTick("loading")
		return Snapshot{}
	}

	var snap Snapshot
	err := a.panics.Guard("perception", func() error {
		var err error
		snap, err = a.detector.Detect(ctx, frame)
		return err
	})
	if err != nil {
		kind := "detect"
		if _, ok := err.(*util.PanicError); ok {
			kind = "panic"
		}
		metrics.RecordPerceptionError(kind)
		a.logger.WithError(err).Debug("Perception tick failed")
		return Snapshot{}
	}

	if snap.CapturedAt.IsZero() {
		snap.CapturedAt = a.now()
	}
	snap.Gaze = EstimateGaze(snap.Keypoints)

	a.mu.Lock()
	a.latest = snap
	a.mu.Unlock()

	metrics.RecordPerceptionTick("ok")
	return snap
}

// Latest returns the most recent successful snapshot
func (a *Adapter) Latest() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.latest
}

// Reset clears the retained snapshot
func (a *Adapter) Reset() {
	a.mu.Lock()
	a.latest = Snapshot{}
	a.mu.Unlock()
}
