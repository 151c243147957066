package stt

import (
	"interview-monitor/pkg/errors"
)

// Error definitions
var (
	ErrNoProviderAvailable  = errors.New("no speech-to-text provider available").WithCode("STT_NO_PROVIDER")
	ErrInitializationFailed = errors.New("provider initialization failed").WithCode("STT_INIT_FAILED")
	ErrStreamClosed         = errors.New("audio stream closed").WithCode("STT_STREAM_CLOSED")
)
