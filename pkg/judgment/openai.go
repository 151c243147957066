package judgment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"interview-monitor/pkg/config"
	"interview-monitor/pkg/errors"
	"interview-monitor/pkg/version"

	"github.com/sirupsen/logrus"
)

// OpenAIBackend calls an OpenAI-compatible chat completions endpoint
type OpenAIBackend struct {
	logger      *logrus.Logger
	endpoint    string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	client      *http.Client
}

type chatContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewOpenAIBackend creates a backend from the judgment configuration
func NewOpenAIBackend(cfg config.JudgmentConfig, logger *logrus.Logger) *OpenAIBackend {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAIBackend{
		logger:      logger,
		endpoint:    strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: timeout},
	}
}

// Complete sends the prompt and the JPEG as a data URI and returns the reply text
func (b *OpenAIBackend) Complete(ctx context.Context, prompt string, jpeg []byte) (string, error) {
	body := chatRequest{
		Model: b.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: []chatContentPart{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &chatImageURL{
					URL:    "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg),
					Detail: "low",
				}},
			}},
		},
		MaxTokens:   b.maxTokens,
		Temperature: b.temperature,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode judgment request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", errors.Wrap(err, "failed to create judgment request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "judgment request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", errors.Wrap(err, "failed to read judgment response")
	}

	if resp.StatusCode != http.StatusOK {
		return "", errors.Wrap(errors.ErrUnavailable, fmt.Sprintf("judgment endpoint returned status %d", resp.StatusCode)).
			WithField("status", resp.StatusCode).
			WithField("body", truncate(string(raw), 256))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", errors.Wrap(err, "failed to decode judgment response")
	}
	if parsed.Error != nil {
		return "", errors.New("judgment endpoint error: " + parsed.Error.Message).WithField("type", parsed.Error.Type)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("judgment response contained no choices")
	}

	content := parsed.Choices[0].Message.Content
	b.logger.WithFields(logrus.Fields{
		"model":  b.model,
		"length": len(content),
	}).Debug("Judgment completion received")
	return content, nil
}
