package stt

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"interview-monitor/pkg/config"
	"interview-monitor/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type result struct {
	streamID string
	text     string
	final    bool
}

type collector struct {
	mu      sync.Mutex
	results []result
}

func (c *collector) OnTranscription(streamID, text string, isFinal bool, _ map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, result{streamID, text, isFinal})
}

func (c *collector) snapshot() []result {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]result, len(c.results))
	copy(out, c.results)
	return out
}

func (c *collector) finals() []string {
	var out []string
	for _, r := range c.snapshot() {
		if r.final {
			out = append(out, r.text)
		}
	}
	return out
}

type MockSttProvider struct {
	mock.Mock
}

func (m *MockSttProvider) Initialize() error {
	return m.Called().Error(0)
}

func (m *MockSttProvider) Name() string {
	return m.Called().String(0)
}

func (m *MockSttProvider) StreamToText(ctx context.Context, audioStream io.Reader, streamID string) error {
	return m.Called(ctx, audioStream, streamID).Error(0)
}

func TestTranscriptionServiceFanOut(t *testing.T) {
	svc := NewTranscriptionService(quietLogger())
	a, b := &collector{}, &collector{}
	svc.AddListener(a)
	svc.AddListener(b)
	assert.Equal(t, 2, svc.ListenerCount())

	svc.PublishTranscription("m1", "hello", true, nil)
	svc.PublishTranscription("m1", "", true, nil)

	svc.RemoveListener(a)
	svc.PublishTranscription("m2", "again", false, nil)

	assert.Equal(t, []result{{"m1", "hello", true}}, a.snapshot())
	assert.Equal(t, []result{{"m1", "hello", true}, {"m2", "again", false}}, b.snapshot())
}

func TestMockProviderEmitsPerAudioVolume(t *testing.T) {
	svc := NewTranscriptionService(quietLogger())
	c := &collector{}
	svc.AddListener(c)

	p := NewMockProvider(quietLogger(), svc, "one two three four", "five six")
	p.SetBytesPerPhrase(100)

	audio := bytes.NewReader(make([]byte, 250))
	require.NoError(t, p.StreamToText(context.Background(), audio, "m1"))

	assert.Equal(t, []string{"one two three four", "five six"}, c.finals())

	var interims []string
	for _, r := range c.snapshot() {
		if !r.final {
			interims = append(interims, r.text)
		}
	}
	assert.Contains(t, interims, "one two")
}

func TestMockProviderStopsOnCancel(t *testing.T) {
	p := NewMockProvider(quietLogger(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pr, pw := io.Pipe()
	defer pw.Close()

	done := make(chan error, 1)
	go func() { done <- p.StreamToText(ctx, pr, "m1") }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("mock provider ignored cancellation")
	}
}

func TestAudioStreamsRouteByStream(t *testing.T) {
	svc := NewTranscriptionService(quietLogger())
	c := &collector{}
	svc.AddListener(c)

	p := NewMockProvider(quietLogger(), svc, "alpha", "beta")
	p.SetBytesPerPhrase(10)
	streams := NewAudioStreams(p, 8, quietLogger())

	ok, err := streams.Write("m1", make([]byte, 10))
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = streams.Write("m2", make([]byte, 10))
	require.NoError(t, err)
	assert.Equal(t, 2, streams.Active())

	streams.Close("m1")
	require.NoError(t, streams.Shutdown(context.Background()))
	assert.Equal(t, 0, streams.Active())

	got := map[string]bool{}
	for _, r := range c.snapshot() {
		if r.final {
			got[r.streamID] = true
			assert.Equal(t, "alpha", r.text)
		}
	}
	assert.Equal(t, map[string]bool{"m1": true, "m2": true}, got)

	_, err = streams.Write("m1", []byte{1})
	assert.True(t, errors.IsErrorType(err, ErrStreamClosed))
}

func TestAudioStreamsDropWhenQueueFull(t *testing.T) {
	provider := &MockSttProvider{}
	release := make(chan struct{})
	provider.On("Name").Return("blocking")
	provider.On("StreamToText", mock.Anything, mock.Anything, "m1").
		Run(func(mock.Arguments) { <-release }).
		Return(nil)

	streams := NewAudioStreams(provider, 1, quietLogger())
	first, err := streams.Write("m1", []byte{1})
	require.NoError(t, err)
	second, err := streams.Write("m1", []byte{2})
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)

	close(release)
	require.NoError(t, streams.Shutdown(context.Background()))
	provider.AssertExpectations(t)
}

func TestProviderManagerFallsBackToDefault(t *testing.T) {
	provider := &MockSttProvider{}
	provider.On("Initialize").Return(nil)
	provider.On("Name").Return("mock")
	provider.On("StreamToText", mock.Anything, mock.Anything, "m1").Return(nil)

	manager := NewProviderManager(quietLogger(), "mock")
	require.NoError(t, manager.RegisterProvider(provider))

	err := manager.StreamToProvider(context.Background(), "google", bytes.NewReader(nil), "m1")
	assert.NoError(t, err)
	provider.AssertExpectations(t)
}

func TestProviderManagerNoProvider(t *testing.T) {
	manager := NewProviderManager(quietLogger(), "google")
	err := manager.StreamToProvider(context.Background(), "amazon", bytes.NewReader(nil), "m1")
	assert.True(t, errors.IsErrorType(err, ErrNoProviderAvailable))
}

func TestProviderManagerInitFailure(t *testing.T) {
	provider := &MockSttProvider{}
	provider.On("Initialize").Return(ErrInitializationFailed)
	provider.On("Name").Return("broken")

	manager := NewProviderManager(quietLogger(), "broken")
	err := manager.RegisterProvider(provider)
	assert.True(t, errors.IsErrorType(err, ErrInitializationFailed))

	_, ok := manager.GetDefaultProvider()
	assert.False(t, ok)
}

func TestCircuitBreakerWrapperFallback(t *testing.T) {
	primary := &MockSttProvider{}
	primary.On("Name").Return("google")
	primary.On("StreamToText", mock.Anything, mock.Anything, "m1").Return(errors.New("upstream unavailable"))

	fallback := &MockSttProvider{}
	fallback.On("Name").Return("mock")
	fallback.On("StreamToText", mock.Anything, mock.Anything, "m1").Return(nil)

	w := NewCircuitBreakerWrapper(primary, quietLogger(), fallback)
	for i := 0; i < 3; i++ {
		assert.Error(t, w.StreamToText(context.Background(), bytes.NewReader(nil), "m1"))
	}
	assert.True(t, w.IsCircuitBreakerOpen())

	assert.NoError(t, w.StreamToText(context.Background(), bytes.NewReader(nil), "m1"))
	primary.AssertNumberOfCalls(t, "StreamToText", 3)
	fallback.AssertNumberOfCalls(t, "StreamToText", 1)
	assert.Equal(t, int64(3), w.GetCircuitBreakerStats().FailedRequests)
}

func TestAmazonTranscriptEventPublishing(t *testing.T) {
	svc := NewTranscriptionService(quietLogger())
	c := &collector{}
	svc.AddListener(c)

	p := NewAmazonTranscribeProvider(quietLogger(), svc, config.STTConfig{Language: "en-US", SampleRate: 16000})
	p.publishTranscriptEvent(types.TranscriptEvent{
		Transcript: &types.Transcript{
			Results: []types.Result{
				{IsPartial: true, Alternatives: []types.Alternative{{Transcript: aws.String("so the")}}},
				{IsPartial: false, ResultId: aws.String("r1"), Alternatives: []types.Alternative{{Transcript: aws.String(" so the answer is two ")}}},
				{Alternatives: nil},
			},
		},
	}, "m1")

	assert.Equal(t, []result{
		{"m1", "so the", false},
		{"m1", "so the answer is two", true},
	}, c.snapshot())
}

func TestUninitializedProvidersRefuseStreams(t *testing.T) {
	cfg := config.STTConfig{Language: "en-US", SampleRate: 16000}
	g := NewGoogleProvider(quietLogger(), nil, cfg)
	a := NewAmazonTranscribeProvider(quietLogger(), nil, cfg)

	assert.Equal(t, ErrInitializationFailed, g.StreamToText(context.Background(), bytes.NewReader(nil), "m1"))
	assert.Equal(t, ErrInitializationFailed, a.StreamToText(context.Background(), bytes.NewReader(nil), "m1"))
	assert.NoError(t, g.Close())
}

func TestNewProviderFromConfig(t *testing.T) {
	svc := NewTranscriptionService(quietLogger())

	p, err := NewProviderFromConfig(config.STTConfig{Provider: "none"}, svc, quietLogger())
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = NewProviderFromConfig(config.STTConfig{Provider: "mock"}, svc, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, "mock", p.Name())

	p, err = NewProviderFromConfig(config.STTConfig{Provider: "amazon"}, svc, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, "amazon-transcribe", p.Name())

	_, err = NewProviderFromConfig(config.STTConfig{Provider: "whisper"}, svc, quietLogger())
	assert.True(t, errors.IsErrorType(err, errors.ErrInvalidInput))
}
