package stt

import (
	"context"
	"io"
	"strings"
	"sync"

	"interview-monitor/pkg/config"
	"interview-monitor/pkg/errors"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

const audioChunkSize = 3200

// GoogleProvider streams candidate audio to Google Speech-to-Text
type GoogleProvider struct {
	logger           *logrus.Logger
	transcriptionSvc *TranscriptionService
	language         string
	sampleRate       int
	config           config.GoogleSTTConfig

	mu     sync.RWMutex
	client *speech.Client
}

// NewGoogleProvider creates a new Google Speech-to-Text provider
func NewGoogleProvider(logger *logrus.Logger, transcriptionSvc *TranscriptionService, cfg config.STTConfig) *GoogleProvider {
	return &GoogleProvider{
		logger:           logger,
		transcriptionSvc: transcriptionSvc,
		language:         cfg.Language,
		sampleRate:       cfg.SampleRate,
		config:           cfg.Google,
	}
}

// Name returns the provider name
func (p *GoogleProvider) Name() string {
	return "google"
}

// Initialize creates the Speech client
func (p *GoogleProvider) Initialize() error {
	var opts []option.ClientOption
	switch {
	case p.config.APIKey != "":
		opts = append(opts, option.WithAPIKey(p.config.APIKey))
	case p.config.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(p.config.CredentialsFile))
	default:
		p.logger.Warn("No Google STT credentials provided, using application default credentials")
	}

	client, err := speech.NewClient(context.Background(), opts...)
	if err != nil {
		return errors.Wrap(err, "failed to create Google Speech client")
	}

	p.mu.Lock()
	p.client = client
	p.mu.Unlock()

	p.logger.WithFields(logrus.Fields{
		"language":    p.language,
		"sample_rate": p.sampleRate,
		"model":       p.config.Model,
	}).Info("Google Speech-to-Text client initialized")
	return nil
}

// StreamToText streams audio to Google until EOF and publishes each result
func (p *GoogleProvider) StreamToText(ctx context.Context, audioStream io.Reader, streamID string) error {
	p.mu.RLock()
	client := p.client
	p.mu.RUnlock()
	if client == nil {
		return ErrInitializationFailed
	}

	logger := p.logger.WithField("stream_id", streamID)

	stream, err := client.StreamingRecognize(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to start Google streaming recognition").WithField("stream_id", streamID)
	}

	recognition := &speechpb.RecognitionConfig{
		Encoding:                   speechpb.RecognitionConfig_LINEAR16,
		SampleRateHertz:            int32(p.sampleRate),
		LanguageCode:               p.language,
		EnableAutomaticPunctuation: p.config.EnableAutomaticPunctuation,
		Model:                      p.config.Model,
	}

	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config:         recognition,
				InterimResults: true,
			},
		},
	}); err != nil {
		return errors.Wrap(err, "failed to send streaming config").WithField("stream_id", streamID)
	}

	sendErr := make(chan error, 1)
	go func() {
		buffer := make([]byte, audioChunkSize)
		for {
			n, readErr := audioStream.Read(buffer)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buffer[:n])
				if err := stream.Send(&speechpb.StreamingRecognizeRequest{
					StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{AudioContent: chunk},
				}); err != nil {
					sendErr <- err
					return
				}
			}
			if readErr != nil {
				if readErr != io.EOF {
					logger.WithError(readErr).Warn("Audio stream read failed")
				}
				sendErr <- stream.CloseSend()
				return
			}
		}
	}()

	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "error receiving Google streaming response").WithField("stream_id", streamID)
		}

		for _, result := range resp.Results {
			if len(result.Alternatives) == 0 {
				continue
			}
			alt := result.Alternatives[0]
			text := strings.TrimSpace(alt.Transcript)
			p.transcriptionSvc.PublishTranscription(streamID, text, result.IsFinal, map[string]interface{}{
				"provider":      p.Name(),
				"confidence":    alt.Confidence,
				"language_code": result.LanguageCode,
			})
		}
	}

	select {
	case err := <-sendErr:
		if err != nil && ctx.Err() == nil {
			return errors.Wrap(err, "failed to send audio to Google").WithField("stream_id", streamID)
		}
	default:
	}
	logger.Debug("Google transcription stream finished")
	return nil
}

// Close releases the Speech client
func (p *GoogleProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	return err
}
