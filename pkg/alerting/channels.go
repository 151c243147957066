package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"interview-monitor/pkg/errors"
	"interview-monitor/pkg/escalation"
	"interview-monitor/pkg/version"
)

const defaultChannelTimeout = 10 * time.Second

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultChannelTimeout
	}
	return &http.Client{Timeout: timeout}
}

func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal alert payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to build alert request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrap(err, "alert request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.New(fmt.Sprintf("alert endpoint returned status %d", resp.StatusCode)).
			WithField("status", resp.StatusCode).
			WithField("body", string(snippet))
	}
	return nil
}

// SlackChannel posts escalations to a Slack incoming webhook
type SlackChannel struct {
	webhookURL string
	channel    string
	username   string
	client     *http.Client
}

// NewSlackChannel creates a Slack channel. channel may be empty to use the webhook default.
func NewSlackChannel(webhookURL, channel string, timeout time.Duration) *SlackChannel {
	return &SlackChannel{
		webhookURL: webhookURL,
		channel:    channel,
		username:   "Interview Monitor",
		client:     newHTTPClient(timeout),
	}
}

func (s *SlackChannel) GetName() string {
	return "slack"
}

func (s *SlackChannel) Send(ctx context.Context, esc escalation.Escalation) error {
	fields := []map[string]interface{}{
		{"title": "Session", "value": esc.SessionID, "short": true},
		{"title": "Strikes", "value": fmt.Sprintf("%d", esc.Count), "short": true},
		{"title": "Triggered", "value": esc.TriggeredAt.UTC().Format(time.RFC3339), "short": true},
	}
	for _, strike := range esc.History {
		fields = append(fields, map[string]interface{}{
			"title": fmt.Sprintf("Strike %d at %s", strike.Number, strike.Label),
			"value": strike.Reason,
			"short": false,
		})
	}

	payload := map[string]interface{}{
		"username": s.username,
		"text":     fmt.Sprintf("ESCALATION: %s", esc.Message),
		"attachments": []map[string]interface{}{
			{"color": "danger", "fields": fields},
		},
	}
	if s.channel != "" {
		payload["channel"] = s.channel
	}

	return postJSON(ctx, s.client, s.webhookURL, nil, payload)
}

// WebhookChannel posts the escalation as JSON to an arbitrary endpoint
type WebhookChannel struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// NewWebhookChannel creates a generic webhook channel
func NewWebhookChannel(url string, headers map[string]string, timeout time.Duration) *WebhookChannel {
	return &WebhookChannel{
		url:     url,
		headers: headers,
		client:  newHTTPClient(timeout),
	}
}

func (w *WebhookChannel) GetName() string {
	return "webhook"
}

func (w *WebhookChannel) Send(ctx context.Context, esc escalation.Escalation) error {
	payload := struct {
		Event      string                `json:"event"`
		Escalation escalation.Escalation `json:"escalation"`
	}{
		Event:      "session.escalated",
		Escalation: esc,
	}
	return postJSON(ctx, w.client, w.url, w.headers, payload)
}
