package stt

import (
	"context"
	"io"
	"sync"

	"interview-monitor/pkg/errors"
	"interview-monitor/pkg/metrics"
	"interview-monitor/pkg/util"

	"github.com/sirupsen/logrus"
)

const defaultStreamQueue = 64

// AudioStreams routes PCM chunks from ingest connections to per-stream
// provider sessions. A provider stream is opened lazily on the first chunk.
type AudioStreams struct {
	provider  Provider
	logger    *logrus.Logger
	panics    *util.PanicHandler
	queueSize int

	mu      sync.Mutex
	streams map[string]*audioStream
	closed  bool
	wg      sync.WaitGroup
}

type audioStream struct {
	chunks chan []byte
	cancel context.CancelFunc
}

// NewAudioStreams creates a router for provider. queueSize bounds the
// buffered chunks per stream; chunks beyond it are dropped.
func NewAudioStreams(provider Provider, queueSize int, logger *logrus.Logger) *AudioStreams {
	if queueSize <= 0 {
		queueSize = defaultStreamQueue
	}
	return &AudioStreams{
		provider:  provider,
		logger:    logger,
		panics:    util.NewPanicHandler(logger),
		queueSize: queueSize,
		streams:   make(map[string]*audioStream),
	}
}

// Write queues pcm for streamID without blocking. It reports false when the chunk was dropped.
func (a *AudioStreams) Write(streamID string, pcm []byte) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return false, ErrStreamClosed
	}

	s, ok := a.streams[streamID]
	if !ok {
		s = a.open(streamID)
	}

	chunk := make([]byte, len(pcm))
	copy(chunk, pcm)
	select {
	case s.chunks <- chunk:
		return true, nil
	default:
		a.logger.WithField("stream_id", streamID).Debug("Audio queue full, dropping chunk")
		return false, nil
	}
}

// open starts the provider goroutine. Callers hold a.mu.
func (a *AudioStreams) open(streamID string) *audioStream {
	ctx, cancel := context.WithCancel(context.Background())
	s := &audioStream{
		chunks: make(chan []byte, a.queueSize),
		cancel: cancel,
	}
	a.streams[streamID] = s

	reader := &chunkReader{ctx: ctx, chunks: s.chunks}
	logger := a.logger.WithFields(logrus.Fields{
		"stream_id": streamID,
		"provider":  a.provider.Name(),
	})
	logger.Info("Opening transcription stream")

	a.wg.Add(1)
	a.panics.SafeGo("stt-stream", func() {
		defer a.wg.Done()
		defer cancel()

		err := a.provider.StreamToText(ctx, reader, streamID)
		status := "success"
		if err != nil {
			status = "error"
			logger.WithError(errors.Wrap(err, "transcription stream failed")).Error("Transcription stream ended with error")
		}
		metrics.RecordSTTRequest(a.provider.Name(), status)

		a.mu.Lock()
		if a.streams[streamID] == s {
			delete(a.streams, streamID)
		}
		a.mu.Unlock()
	})
	return s
}

// Close ends the stream for streamID. The provider sees EOF after the queued audio.
func (a *AudioStreams) Close(streamID string) {
	a.mu.Lock()
	s, ok := a.streams[streamID]
	if ok {
		delete(a.streams, streamID)
		close(s.chunks)
	}
	a.mu.Unlock()
}

// Active returns the number of open streams
func (a *AudioStreams) Active() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.streams)
}

// Shutdown closes every stream and waits for the providers to finish.
// Streams still running when ctx expires are cancelled.
func (a *AudioStreams) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	a.closed = true
	streams := a.streams
	a.streams = make(map[string]*audioStream)
	for _, s := range streams {
		close(s.chunks)
	}
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		for _, s := range streams {
			s.cancel()
		}
		<-done
		return ctx.Err()
	}
}

// chunkReader adapts a chunk channel to io.Reader
type chunkReader struct {
	ctx    context.Context
	chunks <-chan []byte
	buf    []byte
}

func (r *chunkReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		select {
		case chunk, ok := <-r.chunks:
			if !ok {
				return 0, io.EOF
			}
			r.buf = chunk
		case <-r.ctx.Done():
			return 0, io.EOF
		}
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}
