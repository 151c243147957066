// Package capture owns the media source of a monitor: frame snapshots for
// judgment, the session recording and the running transcript.
package capture

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"sync"

	"interview-monitor/pkg/errors"

	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"
)

// Config controls snapshot encoding and recording limits
type Config struct {
	Width       int
	Height      int
	JPEGQuality int

	RecorderMaxBytes  int64
	RecorderQueueSize int
}

// DefaultConfig returns 640x480 snapshots at quality 80
func DefaultConfig() Config {
	return Config{
		Width:             640,
		Height:            480,
		JPEGQuality:       80,
		RecorderMaxBytes:  256 << 20,
		RecorderQueueSize: 256,
	}
}

// Service wraps a Source with snapshot encoding and recording
type Service struct {
	logger *logrus.Logger
	source Source
	config Config

	mu       sync.Mutex
	active   bool
	recorder *Recorder
}

// NewService creates a capture service over source
func NewService(source Source, cfg Config, logger *logrus.Logger) *Service {
	def := DefaultConfig()
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = def.Width, def.Height
	}
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = def.JPEGQuality
	}
	if cfg.RecorderMaxBytes <= 0 {
		cfg.RecorderMaxBytes = def.RecorderMaxBytes
	}
	if cfg.RecorderQueueSize <= 0 {
		cfg.RecorderQueueSize = def.RecorderQueueSize
	}
	return &Service{
		logger: logger,
		source: source,
		config: cfg,
	}
}

// Acquire opens the source and starts a new recording. A second call while
// active is a no-op.
func (s *Service) Acquire(ctx context.Context, c Constraints) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return nil
	}

	if err := s.source.Open(ctx, c); err != nil {
		if !errors.IsErrorType(err, errors.ErrMediaAccess) {
			err = errors.NewMediaAccess(err.Error())
		}
		s.logger.WithError(err).Warn("Failed to acquire capture source")
		return err
	}

	s.recorder = NewRecorder(s.config.RecorderMaxBytes, s.config.RecorderQueueSize, s.logger)
	s.active = true

	s.logger.WithFields(logrus.Fields{
		"video": c.Video,
		"audio": c.Audio,
	}).Info("Capture source acquired")
	return nil
}

// Active reports whether the source is acquired
func (s *Service) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// LatestFrame exposes the raw frame to perception. Nil when not acquired.
func (s *Service) LatestFrame() image.Image {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if !active {
		return nil
	}
	return s.source.LatestFrame()
}

// SnapshotFrame encodes the current frame as a JPEG at the configured
// resolution. It returns nil, nil when no frame is available.
func (s *Service) SnapshotFrame() ([]byte, error) {
	frame := s.LatestFrame()
	if frame == nil {
		return nil, nil
	}
	return EncodeSnapshot(frame, s.config.Width, s.config.Height, s.config.JPEGQuality)
}

// EncodeSnapshot scales img to width x height and encodes it as JPEG
func EncodeSnapshot(img image.Image, width, height, quality int) ([]byte, error) {
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, nil
	}

	var src image.Image = img
	if bounds.Dx() != width || bounds.Dy() != height {
		dst := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)
		src = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: quality}); err != nil {
		return nil, errors.Wrap(err, "failed to encode snapshot")
	}
	return buf.Bytes(), nil
}

// Recorder returns the recorder of the current acquisition, or nil
func (s *Service) Recorder() *Recorder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recorder
}

// WriteChunk forwards a container chunk to the active recorder
func (s *Service) WriteChunk(chunk []byte) {
	if rec := s.Recorder(); rec != nil {
		rec.WriteChunk(chunk)
	}
}

// Release stops the recorder and closes the source. Safe to call repeatedly.
// The finished recording stays available through Recorder until the next Acquire.
func (s *Service) Release() error {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return nil
	}
	s.active = false
	rec := s.recorder
	s.mu.Unlock()

	if rec != nil {
		rec.Stop()
	}

	if err := s.source.Close(); err != nil {
		s.logger.WithError(err).Warn("Error closing capture source")
		return errors.Wrap(err, "failed to close capture source")
	}

	s.logger.Info("Capture source released")
	return nil
}
