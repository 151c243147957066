package capture

import (
	"strings"
	"sync"
)

// TranscriptAccumulator keeps the cumulative transcript of one stream. It
// satisfies stt.TranscriptionListener and ignores other streams.
type TranscriptAccumulator struct {
	streamID string

	mu      sync.RWMutex
	final   []string
	interim string
}

// NewTranscriptAccumulator creates an accumulator for streamID
func NewTranscriptAccumulator(streamID string) *TranscriptAccumulator {
	return &TranscriptAccumulator{streamID: streamID}
}

// OnTranscription folds one recognition result into the transcript
func (t *TranscriptAccumulator) OnTranscription(streamID string, text string, isFinal bool, _ map[string]interface{}) {
	if streamID != t.streamID {
		return
	}
	text = strings.TrimSpace(text)

	t.mu.Lock()
	defer t.mu.Unlock()

	if isFinal {
		if text != "" {
			t.final = append(t.final, text)
		}
		t.interim = ""
		return
	}
	t.interim = text
}

// Transcript returns final text since the last reset followed by the pending interim fragment
func (t *TranscriptAccumulator) Transcript() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	parts := make([]string, 0, len(t.final)+1)
	parts = append(parts, t.final...)
	if t.interim != "" {
		parts = append(parts, t.interim)
	}
	return strings.Join(parts, " ")
}

// Reset clears the transcript at session start
func (t *TranscriptAccumulator) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.final = nil
	t.interim = ""
}
