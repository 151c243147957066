package stt

import (
	"context"
	"io"
	"strings"
	"sync"

	"interview-monitor/pkg/config"
	"interview-monitor/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming/types"
	"github.com/sirupsen/logrus"
)

// AmazonTranscribeProvider streams candidate audio to Amazon Transcribe
type AmazonTranscribeProvider struct {
	logger           *logrus.Logger
	transcriptionSvc *TranscriptionService
	language         string
	sampleRate       int
	config           config.AmazonSTTConfig

	mutex  sync.RWMutex
	client *transcribestreaming.Client
}

// NewAmazonTranscribeProvider creates a new Amazon Transcribe provider
func NewAmazonTranscribeProvider(logger *logrus.Logger, transcriptionSvc *TranscriptionService, cfg config.STTConfig) *AmazonTranscribeProvider {
	return &AmazonTranscribeProvider{
		logger:           logger,
		transcriptionSvc: transcriptionSvc,
		language:         cfg.Language,
		sampleRate:       cfg.SampleRate,
		config:           cfg.Amazon,
	}
}

func (p *AmazonTranscribeProvider) Name() string {
	return "amazon-transcribe"
}

// Initialize loads AWS configuration. Static keys win over the default chain.
func (p *AmazonTranscribeProvider) Initialize() error {
	region := p.config.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
		awsconfig.WithRetryMaxAttempts(3),
		awsconfig.WithRetryMode(aws.RetryModeStandard),
	}
	if p.config.AccessKeyID != "" && p.config.SecretAccessKey != "" {
		accessKey, secret := p.config.AccessKeyID, p.config.SecretAccessKey
		opts = append(opts, awsconfig.WithCredentialsProvider(aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: accessKey, SecretAccessKey: secret}, nil
		})))
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return errors.Wrap(err, "failed to load AWS configuration")
	}

	p.mutex.Lock()
	p.client = transcribestreaming.NewFromConfig(cfg)
	p.mutex.Unlock()

	p.logger.WithFields(logrus.Fields{
		"region":      region,
		"language":    p.language,
		"sample_rate": p.sampleRate,
		"vocabulary":  p.config.VocabularyName,
	}).Info("Amazon Transcribe provider initialized")
	return nil
}

// StreamToText streams PCM audio to Amazon Transcribe until EOF
func (p *AmazonTranscribeProvider) StreamToText(ctx context.Context, audioStream io.Reader, streamID string) error {
	p.mutex.RLock()
	client := p.client
	p.mutex.RUnlock()
	if client == nil {
		return ErrInitializationFailed
	}

	logger := p.logger.WithField("stream_id", streamID)

	input := &transcribestreaming.StartStreamTranscriptionInput{
		LanguageCode:         types.LanguageCode(p.language),
		MediaSampleRateHertz: aws.Int32(int32(p.sampleRate)),
		MediaEncoding:        types.MediaEncodingPcm,
	}
	if p.config.VocabularyName != "" {
		input.VocabularyName = aws.String(p.config.VocabularyName)
	}

	resp, err := client.StartStreamTranscription(ctx, input)
	if err != nil {
		return errors.Wrap(err, "failed to start transcription stream").WithField("stream_id", streamID)
	}
	stream := resp.GetStream()

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sendErr := make(chan error, 1)
	go func() {
		defer func() {
			if closeErr := stream.Close(); closeErr != nil {
				logger.WithError(closeErr).Debug("Failed to close Amazon Transcribe stream")
			}
		}()

		buffer := make([]byte, audioChunkSize)
		for {
			n, readErr := audioStream.Read(buffer)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buffer[:n])
				event := &types.AudioStreamMemberAudioEvent{Value: types.AudioEvent{AudioChunk: chunk}}
				if err := stream.Send(streamCtx, event); err != nil {
					sendErr <- err
					return
				}
			}
			if readErr != nil {
				if readErr != io.EOF {
					logger.WithError(readErr).Warn("Audio stream read failed")
				}
				sendErr <- nil
				return
			}
		}
	}()

	for event := range stream.Events() {
		if te, ok := event.(*types.TranscriptResultStreamMemberTranscriptEvent); ok {
			p.publishTranscriptEvent(te.Value, streamID)
		}
	}

	if err := stream.Err(); err != nil && ctx.Err() == nil {
		return errors.Wrap(err, "Amazon Transcribe stream error").WithField("stream_id", streamID)
	}
	select {
	case err := <-sendErr:
		if err != nil && ctx.Err() == nil {
			return errors.Wrap(err, "failed to send audio to Amazon Transcribe").WithField("stream_id", streamID)
		}
	default:
	}
	logger.Debug("Amazon transcription stream finished")
	return nil
}

func (p *AmazonTranscribeProvider) publishTranscriptEvent(event types.TranscriptEvent, streamID string) {
	if event.Transcript == nil {
		return
	}

	for _, result := range event.Transcript.Results {
		if len(result.Alternatives) == 0 {
			continue
		}
		alt := result.Alternatives[0]
		if alt.Transcript == nil {
			continue
		}
		text := strings.TrimSpace(*alt.Transcript)

		metadata := map[string]interface{}{
			"provider":   p.Name(),
			"is_partial": result.IsPartial,
			"start_time": result.StartTime,
			"end_time":   result.EndTime,
		}
		if result.ResultId != nil {
			metadata["result_id"] = *result.ResultId
		}
		p.transcriptionSvc.PublishTranscription(streamID, text, !result.IsPartial, metadata)
	}
}
