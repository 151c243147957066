package stt

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// TranscriptionListener represents something that can listen for transcription updates
type TranscriptionListener interface {
	// OnTranscription is called when a new transcription is available for a stream
	OnTranscription(streamID string, transcription string, isFinal bool, metadata map[string]interface{})
}

// TranscriptionService fans transcription results out to listeners.
// Stream IDs are monitor IDs; listeners filter on them.
type TranscriptionService struct {
	logger    *logrus.Logger
	listeners []TranscriptionListener
	mutex     sync.RWMutex
}

// NewTranscriptionService creates a new transcription service
func NewTranscriptionService(logger *logrus.Logger) *TranscriptionService {
	return &TranscriptionService{
		logger:    logger,
		listeners: make([]TranscriptionListener, 0),
	}
}

// AddListener registers a new transcription listener
func (s *TranscriptionService) AddListener(listener TranscriptionListener) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.listeners = append(s.listeners, listener)
	s.logger.WithField("listener_count", len(s.listeners)).Debug("Added transcription listener")
}

// RemoveListener removes a transcription listener
func (s *TranscriptionService) RemoveListener(listener TranscriptionListener) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for i, l := range s.listeners {
		if l == listener {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			s.logger.WithField("listener_count", len(s.listeners)).Debug("Removed transcription listener")
			return
		}
	}
}

// ListenerCount returns the number of registered listeners
func (s *TranscriptionService) ListenerCount() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.listeners)
}

// PublishTranscription notifies all listeners about a new transcription.
// Listeners are called outside the service lock.
func (s *TranscriptionService) PublishTranscription(streamID string, transcription string, isFinal bool, metadata map[string]interface{}) {
	if transcription == "" {
		return
	}

	s.mutex.RLock()
	listeners := make([]TranscriptionListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mutex.RUnlock()

	s.logger.WithFields(logrus.Fields{
		"stream_id":      streamID,
		"is_final":       isFinal,
		"chars":          len(transcription),
		"listener_count": len(listeners),
	}).Debug("Publishing transcription to listeners")

	for _, listener := range listeners {
		listener.OnTranscription(streamID, transcription, isFinal, metadata)
	}
}
