// Package judgment submits snapshots and transcript to a remote
// vision-language model and turns its reply into observations.
package judgment

import (
	"bytes"
	"context"

	"interview-monitor/pkg/circuitbreaker"
	"interview-monitor/pkg/errors"
	"interview-monitor/pkg/metrics"

	"github.com/sirupsen/logrus"
)

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// Request is one judgment submission
type Request struct {
	SessionID string
	// Label is the session offset captured when the request was built
	Label      string
	Image      []byte
	Transcript string
	Perception string
}

// Backend performs the remote completion call
type Backend interface {
	Complete(ctx context.Context, prompt string, jpeg []byte) (string, error)
}

// BackendFunc adapts a function to Backend
type BackendFunc func(ctx context.Context, prompt string, jpeg []byte) (string, error)

func (f BackendFunc) Complete(ctx context.Context, prompt string, jpeg []byte) (string, error) {
	return f(ctx, prompt, jpeg)
}

// Redactor masks personal data in transcript text
type Redactor interface {
	Redact(text string) string
}

// Client validates requests and calls the backend. It does no rate limiting;
// callers decide how often to submit.
type Client struct {
	backend  Backend
	breaker  *circuitbreaker.CircuitBreaker
	redactor Redactor
	logger   *logrus.Logger
}

// NewClient creates a client. breaker may be nil.
func NewClient(backend Backend, breaker *circuitbreaker.CircuitBreaker, logger *logrus.Logger) *Client {
	return &Client{
		backend: backend,
		breaker: breaker,
		logger:  logger,
	}
}

// WithRedactor masks transcripts before they are sent
func (c *Client) WithRedactor(r Redactor) *Client {
	c.redactor = r
	return c
}

// ValidateFrame checks that data looks like a complete JPEG image
func ValidateFrame(data []byte) error {
	if len(data) == 0 {
		return errors.NewInvalidFrame("empty snapshot")
	}
	if len(data) < 4 || !bytes.HasPrefix(data, jpegSOI) || !bytes.HasSuffix(data, jpegEOI) {
		return errors.NewInvalidFrame("snapshot is not a JPEG image", map[string]interface{}{
			"size": len(data),
		})
	}
	return nil
}

// Submit sends one snapshot for judgment. On a ParseError the raw reply is
// available through the returned *ParseError.
func (c *Client) Submit(ctx context.Context, req Request) ([]Observation, error) {
	if err := ValidateFrame(req.Image); err != nil {
		return nil, err
	}

	if c.redactor != nil && req.Transcript != "" {
		req.Transcript = c.redactor.Redact(req.Transcript)
	}
	prompt := BuildPrompt(req)

	var text string
	call := func(ctx context.Context) error {
		var err error
		text, err = c.backend.Complete(ctx, prompt, req.Image)
		return err
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, err
	}

	observations, err := ParseResponse(text)
	if err != nil {
		metrics.RecordParseFailure()
		c.logger.WithFields(logrus.Fields{
			"session_id": req.SessionID,
			"label":      req.Label,
			"raw":        truncate(text, 512),
		}).Warn("Judgment reply could not be parsed")
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"session_id":   req.SessionID,
		"label":        req.Label,
		"observations": len(observations),
	}).Debug("Judgment reply parsed")
	return observations, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
