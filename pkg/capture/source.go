package capture

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"sync"
	"time"

	"interview-monitor/pkg/errors"
	"interview-monitor/pkg/metrics"
)

// Constraints lists the tracks a session requires
type Constraints struct {
	Video bool
	Audio bool
}

// DeviceStatus is what the client reports about its camera and microphone
type DeviceStatus struct {
	Connected        bool   `json:"connected"`
	Video            bool   `json:"video"`
	Audio            bool   `json:"audio"`
	PermissionDenied bool   `json:"permission_denied"`
	Detail           string `json:"detail,omitempty"`
}

// Source provides decoded video frames from a capture device
type Source interface {
	Open(ctx context.Context, c Constraints) error
	LatestFrame() image.Image
	Close() error
}

// Frame is a decoded frame and its arrival time
type Frame struct {
	Image      image.Image
	ReceivedAt time.Time
}

// PushSource is a Source fed by a remote client. Frames and device status
// arrive over the media websocket.
type PushSource struct {
	mu     sync.RWMutex
	status DeviceStatus
	open   bool
	frame  *Frame
}

// NewPushSource creates a source with no client attached
func NewPushSource() *PushSource {
	return &PushSource{}
}

// SetStatus records the latest device status from the client
func (p *PushSource) SetStatus(status DeviceStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = status
	if !status.Connected || !status.Video {
		p.frame = nil
	}
}

// Status returns the last reported device status
func (p *PushSource) Status() DeviceStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// Open checks that the client can satisfy c
func (p *PushSource) Open(ctx context.Context, c Constraints) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case p.status.PermissionDenied:
		return errors.NewMediaAccess("camera or microphone permission denied", map[string]interface{}{
			"detail": p.status.Detail,
		})
	case !p.status.Connected:
		return errors.NewMediaAccess("no capture client attached")
	case c.Video && !p.status.Video:
		return errors.NewMediaAccess("video track unavailable")
	case c.Audio && !p.status.Audio:
		return errors.NewMediaAccess("audio track unavailable")
	}

	p.open = true
	return nil
}

// PushJPEG decodes a JPEG frame from the client and makes it the latest frame.
func (p *PushSource) PushJPEG(data []byte) error {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return errors.NewInvalidFrame("client frame could not be decoded", map[string]interface{}{
			"size": len(data),
		})
	}
	p.PushImage(img)
	return nil
}

// PushImage makes img the latest frame. Frames are kept before Open so the
// first snapshot is ready when a session starts.
func (p *PushSource) PushImage(img image.Image) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frame = &Frame{Image: img, ReceivedAt: time.Now()}
	metrics.RecordFrameIngested()
}

// LatestFrame returns the newest frame or nil when none is ready
func (p *PushSource) LatestFrame() image.Image {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.open || p.frame == nil {
		return nil
	}
	return p.frame.Image
}

// Close drops the current frame and stops accepting new ones
func (p *PushSource) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open = false
	p.frame = nil
	return nil
}
