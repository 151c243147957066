package capture

import (
	"sync"

	"interview-monitor/pkg/metrics"

	"github.com/sirupsen/logrus"
)

// Recorder accumulates encoded media chunks for the session recording.
// WriteChunk never blocks; chunks are dropped when the queue is full or
// the byte cap is reached.
type Recorder struct {
	logger   *logrus.Logger
	maxBytes int64

	queue chan []byte
	done  chan struct{}

	mu      sync.Mutex
	chunks  [][]byte
	size    int64
	dropped int
	capped  bool
	stopped bool
}

// NewRecorder starts a recorder with the given byte cap and queue depth
func NewRecorder(maxBytes int64, queueSize int, logger *logrus.Logger) *Recorder {
	r := &Recorder{
		logger:   logger,
		maxBytes: maxBytes,
		queue:    make(chan []byte, queueSize),
		done:     make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Recorder) run() {
	defer close(r.done)
	for chunk := range r.queue {
		r.append(chunk)
	}
}

func (r *Recorder) append(chunk []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size+int64(len(chunk)) > r.maxBytes {
		r.dropped++
		metrics.RecordRecorderDrop()
		if !r.capped {
			r.capped = true
			r.logger.WithField("max_bytes", r.maxBytes).Warn("Recording size cap reached, dropping further chunks")
		}
		return
	}
	r.chunks = append(r.chunks, chunk)
	r.size += int64(len(chunk))
}

// WriteChunk queues a copy of chunk
func (r *Recorder) WriteChunk(chunk []byte) {
	if len(chunk) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}

	c := make([]byte, len(chunk))
	copy(c, chunk)

	select {
	case r.queue <- c:
	default:
		r.dropped++
		metrics.RecordRecorderDrop()
	}
}

// Stop flushes queued chunks and stops accepting new ones. Idempotent.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		<-r.done
		return
	}
	r.stopped = true
	close(r.queue)
	r.mu.Unlock()

	<-r.done
}

// Recording returns a copy of everything recorded so far
func (r *Recorder) Recording() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]byte, 0, r.size)
	for _, c := range r.chunks {
		out = append(out, c...)
	}
	return out
}

// Size returns the recorded byte count
func (r *Recorder) Size() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Dropped returns how many chunks were discarded
func (r *Recorder) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}
