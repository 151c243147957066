package perception

import (
	"context"
	"fmt"
	"image"
	"io"
	"testing"

	"interview-monitor/pkg/errors"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDetector struct {
	ready   bool
	loadErr error
	snap    Snapshot
	err     error
	panics  bool
}

func (s *stubDetector) Ready() bool      { return s.ready }
func (s *stubDetector) LoadError() error { return s.loadErr }
func (s *stubDetector) Detect(ctx context.Context, frame image.Image) (Snapshot, error) {
	if s.panics {
		panic("model crashed")
	}
	return s.snap, s.err
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

var frame = image.NewRGBA(image.Rect(0, 0, 4, 4))

func face(noseX float64) []Keypoint {
	return []Keypoint{
		{Name: "nose", X: noseX, Y: 50, Score: 0.9},
		{Name: "left_eye", X: 110, Y: 40, Score: 0.9},
		{Name: "right_eye", X: 90, Y: 40, Score: 0.9},
	}
}

func TestEstimateGaze(t *testing.T) {
	center := EstimateGaze(face(100))
	assert.True(t, center.Available)
	assert.InDelta(t, 0, center.Yaw, 1e-9)
	assert.False(t, center.OffScreen)

	turned := EstimateGaze(face(110))
	assert.InDelta(t, 0.5, turned.Yaw, 1e-9)
	assert.True(t, turned.OffScreen)

	lowScore := face(100)
	lowScore[0].Score = 0.1
	assert.False(t, EstimateGaze(lowScore).Available)

	assert.False(t, EstimateGaze(nil).Available)
}

func TestTickWithoutFrame(t *testing.T) {
	a := NewAdapter(&stubDetector{ready: true, snap: Snapshot{Faces: []FaceBox{{Score: 1}}}}, quietLogger())
	assert.True(t, a.Tick(context.Background(), nil).Empty())
}

func TestTickWhileLoading(t *testing.T) {
	a := NewAdapter(&stubDetector{ready: false, snap: Snapshot{Faces: []FaceBox{{Score: 1}}}}, quietLogger())
	assert.True(t, a.Tick(context.Background(), frame).Empty())
}

func TestTickContainsDetectorFailures(t *testing.T) {
	good := Snapshot{Keypoints: face(100)}
	det := &stubDetector{ready: true, snap: good}
	a := NewAdapter(det, quietLogger())

	first := a.Tick(context.Background(), frame)
	require.False(t, first.Empty())
	assert.True(t, first.Gaze.Available)
	assert.False(t, first.CapturedAt.IsZero())

	det.err = fmt.Errorf("inference failed")
	assert.True(t, a.Tick(context.Background(), frame).Empty())

	det.err = nil
	det.panics = true
	assert.NotPanics(t, func() {
		assert.True(t, a.Tick(context.Background(), frame).Empty())
	})

	assert.Len(t, a.Latest().Keypoints, 3, "last good snapshot retained")
}

func TestCheckModels(t *testing.T) {
	det := NewReportedDetector()
	a := NewAdapter(det, quietLogger())
	assert.NoError(t, a.CheckModels())

	det.SetLoadFailed("face_landmarks", "wasm backend unavailable")
	err := a.CheckModels()
	assert.True(t, errors.IsErrorType(err, errors.ErrModelLoad))
	assert.Equal(t, "face_landmarks", errors.GetErrorFields(err)["model"])
	assert.False(t, det.Ready())

	det.SetLoaded()
	assert.NoError(t, a.CheckModels())
	assert.True(t, det.Ready())
}

func TestReportedDetector(t *testing.T) {
	det := NewReportedDetector()
	det.SetLoaded()
	a := NewAdapter(det, quietLogger())

	assert.True(t, a.Tick(context.Background(), frame).Empty())

	kps := face(110)
	det.Report(Snapshot{Keypoints: kps, Faces: []FaceBox{{X: 80, Y: 20, Width: 40, Height: 50, Score: 0.95}}})
	kps[0].X = 0

	snap := a.Tick(context.Background(), frame)
	require.Len(t, snap.Faces, 1)
	assert.True(t, snap.Gaze.OffScreen)
	assert.Equal(t, 110.0, snap.Keypoints[0].X)
}

func TestSummary(t *testing.T) {
	assert.Empty(t, Snapshot{}.Summary())

	s := Snapshot{Keypoints: face(100), Faces: []FaceBox{{Score: 0.9}}}
	s.Gaze = EstimateGaze(s.Keypoints)
	assert.Equal(t, "faces=1 keypoints=3 gaze=center yaw=0.00", s.Summary())

	s.Gaze = Gaze{Available: true, Yaw: -0.6, OffScreen: true}
	assert.Contains(t, s.Summary(), "gaze=left")
}
