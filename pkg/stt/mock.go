package stt

import (
	"context"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// DefaultMockBytesPerPhrase is one second of 16 kHz 16-bit mono PCM
const DefaultMockBytesPerPhrase = 32000

var defaultMockPhrases = []string{
	"I would start by clarifying the requirements.",
	"The time complexity here is linear in the input size.",
	"Let me walk through an example before writing code.",
	"We could cache the intermediate results in a map.",
}

// MockProvider emits scripted phrases in proportion to the audio it consumes.
// Half a phrase worth of audio produces an interim result, a full phrase a final one.
type MockProvider struct {
	logger           *logrus.Logger
	transcriptionSvc *TranscriptionService
	phrases          []string
	bytesPerPhrase   int
}

// NewMockProvider creates a new mock provider
func NewMockProvider(logger *logrus.Logger, svc *TranscriptionService, phrases ...string) *MockProvider {
	if len(phrases) == 0 {
		phrases = defaultMockPhrases
	}
	return &MockProvider{
		logger:           logger,
		transcriptionSvc: svc,
		phrases:          phrases,
		bytesPerPhrase:   DefaultMockBytesPerPhrase,
	}
}

// SetBytesPerPhrase changes how much audio produces one final phrase
func (p *MockProvider) SetBytesPerPhrase(n int) {
	if n > 1 {
		p.bytesPerPhrase = n
	}
}

func (p *MockProvider) Name() string {
	return "mock"
}

func (p *MockProvider) Initialize() error {
	p.logger.Info("Mock STT provider initialized")
	return nil
}

// StreamToText reads audio until EOF or cancellation
func (p *MockProvider) StreamToText(ctx context.Context, audioStream io.Reader, streamID string) error {
	logger := p.logger.WithField("stream_id", streamID)
	logger.Debug("Mock STT provider processing audio stream")

	buffer := make([]byte, audioChunkSize)
	consumed, index := 0, 0
	interimSent := false

	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := audioStream.Read(buffer)
		consumed += n

		for consumed >= p.bytesPerPhrase {
			phrase := p.phrases[index%len(p.phrases)]
			p.publish(streamID, phrase, true)
			index++
			consumed -= p.bytesPerPhrase
			interimSent = false
		}
		if !interimSent && consumed >= p.bytesPerPhrase/2 {
			words := strings.Fields(p.phrases[index%len(p.phrases)])
			p.publish(streamID, strings.Join(words[:(len(words)+1)/2], " "), false)
			interimSent = true
		}

		if err != nil {
			if err != io.EOF {
				logger.WithError(err).Warn("Error reading audio stream")
			}
			logger.WithField("phrases", index).Debug("Mock STT stream finished")
			return nil
		}
	}
}

func (p *MockProvider) publish(streamID, text string, final bool) {
	if p.transcriptionSvc == nil {
		return
	}
	p.transcriptionSvc.PublishTranscription(streamID, text, final, map[string]interface{}{
		"provider":   p.Name(),
		"confidence": 0.95,
	})
}
