package monitor

import (
	"context"
	"image"
	"testing"
	"time"

	"interview-monitor/pkg/capture"
	"interview-monitor/pkg/errors"
	"interview-monitor/pkg/session"
	"interview-monitor/pkg/storage"
	"interview-monitor/pkg/stt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(max int) (*Manager, *stt.TranscriptionService) {
	transcripts := stt.NewTranscriptionService(quietLogger())
	mgr := NewManager(ManagerConfig{
		MaxMonitors: max,
		Monitor: Config{
			Mode:               session.ModeNormal,
			PerceptionInterval: 100 * time.Millisecond,
			Constraints:        capture.Constraints{Video: true},
		},
		Capture: capture.DefaultConfig(),
	}, &scriptedJudge{}, nil, transcripts, quietLogger())
	return mgr, transcripts
}

func TestManagerCreateGetList(t *testing.T) {
	mgr, _ := newTestManager(0)

	a, err := mgr.Create("")
	require.NoError(t, err)
	assert.Equal(t, session.ModeNormal, a.Mode())

	b, err := mgr.Create(session.ModeDemo)
	require.NoError(t, err)
	assert.Equal(t, session.ModeDemo, b.Mode())

	got, err := mgr.Get(a.ID())
	require.NoError(t, err)
	assert.Same(t, a, got)

	list := mgr.List()
	require.Len(t, list, 2)
	assert.Equal(t, 2, mgr.Count())

	_, err = mgr.Create(session.Mode("fast"))
	assert.True(t, errors.IsErrorType(err, errors.ErrInvalidInput))
}

func TestManagerUnknownMonitor(t *testing.T) {
	mgr, _ := newTestManager(0)

	_, err := mgr.Get("missing")
	assert.True(t, errors.IsErrorType(err, errors.ErrSessionNotFound))
	_, err = mgr.Media("missing")
	assert.True(t, errors.IsErrorType(err, errors.ErrSessionNotFound))
	assert.True(t, errors.IsErrorType(mgr.Remove("missing"), errors.ErrSessionNotFound))
}

func TestManagerLimit(t *testing.T) {
	mgr, _ := newTestManager(1)
	_, err := mgr.Create("")
	require.NoError(t, err)

	_, err = mgr.Create("")
	assert.True(t, errors.IsErrorType(err, errors.ErrUnavailable))
	assert.Equal(t, "MONITOR_LIMIT", errors.GetErrorCode(err))
}

func TestManagerRoutesTranscripts(t *testing.T) {
	mgr, transcripts := newTestManager(0)
	a, err := mgr.Create("")
	require.NoError(t, err)
	b, err := mgr.Create("")
	require.NoError(t, err)

	transcripts.PublishTranscription(a.ID(), "hello", true, nil)

	ma, err := mgr.Media(a.ID())
	require.NoError(t, err)
	mb, err := mgr.Media(b.ID())
	require.NoError(t, err)
	assert.Equal(t, "hello", ma.Transcript.Transcript())
	assert.Empty(t, mb.Transcript.Transcript())

	require.NoError(t, mgr.Remove(a.ID()))
	transcripts.PublishTranscription(a.ID(), "after", true, nil)
	assert.Equal(t, "hello", ma.Transcript.Transcript())
}

func TestManagerRemoveAndStopAll(t *testing.T) {
	mgr, _ := newTestManager(0)

	var started []*Monitor
	for i := 0; i < 3; i++ {
		m, err := mgr.Create("")
		require.NoError(t, err)
		media, err := mgr.Media(m.ID())
		require.NoError(t, err)
		media.Source.SetStatus(capture.DeviceStatus{Connected: true, Video: true})
		media.Source.PushImage(image.NewRGBA(image.Rect(0, 0, 8, 8)))
		media.Detector.SetLoaded()
		require.NoError(t, m.Start(context.Background()))
		started = append(started, m)
	}
	assert.Equal(t, 3, mgr.ActiveCount())

	require.NoError(t, mgr.Remove(started[0].ID()))
	assert.False(t, started[0].Active())
	assert.Equal(t, 2, mgr.Count())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, mgr.StopAll(ctx))
	assert.Zero(t, mgr.ActiveCount())
}

func TestLifecyclesFanOut(t *testing.T) {
	a, b := &recordingLifecycle{}, &recordingLifecycle{}
	fan := Lifecycles{a, b}

	fan.SessionStarted(storage.SessionRecord{SessionID: "s1"})
	fan.SessionEnded(storage.SessionRecord{SessionID: "s1", Mode: "demo"})

	for _, l := range []*recordingLifecycle{a, b} {
		assert.Equal(t, 1, l.started)
		require.Len(t, l.ended, 1)
		assert.Equal(t, "demo", l.ended[0].Mode)
	}
}
