package perception

import (
	"context"
	"image"
	"sync"

	"interview-monitor/pkg/errors"
)

// Detector runs the perception models on a frame
type Detector interface {
	// Ready reports whether the models finished loading
	Ready() bool
	// LoadError is non-nil when a model failed to initialise
	LoadError() error
	Detect(ctx context.Context, frame image.Image) (Snapshot, error)
}

// ReportedDetector is a Detector whose models run on the client. The client
// reports model status and per-frame results; Detect returns the newest report.
type ReportedDetector struct {
	mu       sync.RWMutex
	loaded   bool
	loadErr  error
	latest   Snapshot
	reported bool
}

// NewReportedDetector creates a detector that is still loading
func NewReportedDetector() *ReportedDetector {
	return &ReportedDetector{}
}

// SetLoaded marks the client models as ready
func (d *ReportedDetector) SetLoaded() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loaded = true
	d.loadErr = nil
}

// SetLoadFailed records a model initialisation failure
func (d *ReportedDetector) SetLoadFailed(model, cause string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loaded = false
	d.loadErr = errors.NewModelLoad(model, cause)
}

// Report stores the latest client-side detection result
func (d *ReportedDetector) Report(s Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s.Keypoints = append([]Keypoint(nil), s.Keypoints...)
	s.Faces = append([]FaceBox(nil), s.Faces...)
	d.latest = s
	d.reported = true
}

func (d *ReportedDetector) Ready() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loaded
}

func (d *ReportedDetector) LoadError() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loadErr
}

// Detect ignores frame and returns the newest reported result
func (d *ReportedDetector) Detect(ctx context.Context, _ image.Image) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.reported {
		return Snapshot{}, nil
	}

	s := d.latest
	s.Keypoints = append([]Keypoint(nil), d.latest.Keypoints...)
	s.Faces = append([]FaceBox(nil), d.latest.Faces...)
	return s, nil
}
