package judgment

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"interview-monitor/pkg/circuitbreaker"
	"interview-monitor/pkg/config"
	"interview-monitor/pkg/errors"
	"interview-monitor/pkg/pii"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var validJPEG = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 0xFF, 0xD9}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestParseFencedBlock(t *testing.T) {
	text := "Here is what I see:\n```json\n{\"events\":[{\"timestamp\":\"00:10\",\"description\":\"phone in hand\",\"isDangerous\":true}]}\n```\nLet me know."

	events, err := ParseResponse(text)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "phone in hand", events[0].Description)
	assert.True(t, events[0].Dangerous)
	assert.Equal(t, "00:10", events[0].Timestamp)
}

func TestParseUntaggedFence(t *testing.T) {
	text := "```\n{\"events\":[{\"timestamp\":\"\",\"description\":\"typing\",\"isDangerous\":false}]}```"

	events, err := ParseResponse(text)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].Dangerous)
}

func TestParseSkipsNonJSONFence(t *testing.T) {
	text := "```\nnot json\n```\nActual answer: {\"events\":[{\"description\":\"second voice\",\"isDangerous\":true}]}"

	events, err := ParseResponse(text)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "second voice", events[0].Description)
}

func TestParseEmbeddedObject(t *testing.T) {
	text := `Sure. {"events":[{"timestamp":"01:02","description":"looking left","isDangerous":false},{"timestamp":"01:03","description":"reading notes","isDangerous":true}]} Thanks!`

	events, err := ParseResponse(text)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "looking left", events[0].Description)
	assert.Equal(t, "reading notes", events[1].Description)
}

func TestParseEmbeddedObjectWithTrailingBraces(t *testing.T) {
	text := `{"events":[{"timestamp":"00:10","description":"phone on desk","isDangerous":true}]} (see {note} above)`

	events, err := ParseResponse(text)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "phone on desk", events[0].Description)
	assert.True(t, events[0].Dangerous)
}

func TestParseEmptyEvents(t *testing.T) {
	events, err := ParseResponse(`{"events":[]}`)
	require.NoError(t, err)
	assert.Empty(t, events)

	events, err = ParseResponse(`{"summary":"nothing"}`)
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}

func TestParseFailureCarriesRaw(t *testing.T) {
	for _, text := range []string{
		"The candidate appears calm.",
		"",
		"{broken json",
		"```json\n{\"events\": [}\n```",
	} {
		events, err := ParseResponse(text)
		assert.Nil(t, events)

		var perr *ParseError
		require.ErrorAs(t, err, &perr, "input %q", text)
		assert.Equal(t, text, perr.Raw)
		assert.True(t, errors.IsErrorType(err, errors.ErrResponseParse))
	}
}

func TestValidateFrame(t *testing.T) {
	assert.NoError(t, ValidateFrame(validJPEG))

	for _, data := range [][]byte{
		nil,
		{},
		[]byte("\x89PNG\r\n\x1a\n"),
		{0xFF, 0xD8, 0x00, 0x00},
	} {
		err := ValidateFrame(data)
		assert.True(t, errors.IsErrorType(err, errors.ErrInvalidFrame), "data %v", data)
	}
}

func TestSubmitRejectsInvalidFrameWithoutCalling(t *testing.T) {
	var calls atomic.Int32
	backend := BackendFunc(func(ctx context.Context, prompt string, jpeg []byte) (string, error) {
		calls.Add(1)
		return `{"events":[]}`, nil
	})
	client := NewClient(backend, nil, quietLogger())

	_, err := client.Submit(context.Background(), Request{Image: nil})
	assert.True(t, errors.IsErrorType(err, errors.ErrInvalidFrame))

	_, err = client.Submit(context.Background(), Request{Image: []byte("GIF89a")})
	assert.True(t, errors.IsErrorType(err, errors.ErrInvalidFrame))

	assert.Zero(t, calls.Load())
}

func TestSubmitBuildsPrompt(t *testing.T) {
	var gotPrompt string
	var gotImage []byte
	backend := BackendFunc(func(ctx context.Context, prompt string, jpeg []byte) (string, error) {
		gotPrompt = prompt
		gotImage = jpeg
		return "```json\n{\"events\":[{\"timestamp\":\"99:99\",\"description\":\"ok\",\"isDangerous\":false}]}\n```", nil
	})
	client := NewClient(backend, nil, quietLogger())

	events, err := client.Submit(context.Background(), Request{
		SessionID:  "s1",
		Label:      "02:15",
		Image:      validJPEG,
		Transcript: "Tell me about yourself.",
		Perception: "faces=1 gaze=center",
	})
	require.NoError(t, err)
	require.Len(t, events, 1)

	assert.Equal(t, validJPEG, gotImage)
	assert.Contains(t, gotPrompt, "02:15")
	assert.Contains(t, gotPrompt, "Tell me about yourself.")
	assert.Contains(t, gotPrompt, "faces=1 gaze=center")
}

func TestSubmitRedactsTranscript(t *testing.T) {
	var gotPrompt string
	backend := BackendFunc(func(ctx context.Context, prompt string, jpeg []byte) (string, error) {
		gotPrompt = prompt
		return `{"events":[]}`, nil
	})
	client := NewClient(backend, nil, quietLogger()).WithRedactor(pii.NewRedactor(quietLogger()))

	_, err := client.Submit(context.Background(), Request{
		SessionID:  "s1",
		Label:      "00:30",
		Image:      validJPEG,
		Transcript: "You can reach me at 415-555-0142 or sam@example.com",
	})
	require.NoError(t, err)

	assert.NotContains(t, gotPrompt, "415-555-0142")
	assert.NotContains(t, gotPrompt, "sam@example.com")
	assert.Contains(t, gotPrompt, "***-***-0142")
}

func TestPromptWithoutTranscriptOrPerception(t *testing.T) {
	prompt := BuildPrompt(Request{Label: "00:00"})
	assert.Contains(t, prompt, "(no speech yet)")
	assert.NotContains(t, prompt, "Local detector summary")
}

func TestSubmitPropagatesBackendErrors(t *testing.T) {
	backend := BackendFunc(func(ctx context.Context, prompt string, jpeg []byte) (string, error) {
		return "", fmt.Errorf("connection refused")
	})
	client := NewClient(backend, nil, quietLogger())

	_, err := client.Submit(context.Background(), Request{Image: validJPEG})
	assert.EqualError(t, err, "connection refused")
}

func TestSubmitReturnsParseError(t *testing.T) {
	backend := BackendFunc(func(ctx context.Context, prompt string, jpeg []byte) (string, error) {
		return "I cannot help with that.", nil
	})
	client := NewClient(backend, nil, quietLogger())

	events, err := client.Submit(context.Background(), Request{Image: validJPEG})
	assert.Nil(t, events)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "I cannot help with that.", perr.Raw)
}

func TestSubmitThroughOpenBreaker(t *testing.T) {
	breaker := circuitbreaker.NewCircuitBreaker("judgment", &circuitbreaker.Config{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          time.Hour,
	}, quietLogger())

	var calls atomic.Int32
	backend := BackendFunc(func(ctx context.Context, prompt string, jpeg []byte) (string, error) {
		calls.Add(1)
		return "", fmt.Errorf("503")
	})
	client := NewClient(backend, breaker, quietLogger())

	_, err := client.Submit(context.Background(), Request{Image: validJPEG})
	require.Error(t, err)
	_, err = client.Submit(context.Background(), Request{Image: validJPEG})
	assert.True(t, circuitbreaker.IsCircuitBreakerError(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAIBackendRequestShape(t *testing.T) {
	var captured chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var raw map[string]json.RawMessage
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &raw))
		require.NoError(t, json.Unmarshal(raw["model"], &captured.Model))

		var msgs []struct {
			Role    string          `json:"role"`
			Content json.RawMessage `json:"content"`
		}
		require.NoError(t, json.Unmarshal(raw["messages"], &msgs))
		require.Len(t, msgs, 2)
		assert.Equal(t, "system", msgs[0].Role)

		var parts []chatContentPart
		require.NoError(t, json.Unmarshal(msgs[1].Content, &parts))
		require.Len(t, parts, 2)
		assert.Equal(t, "prompt text", parts[0].Text)
		require.NotNil(t, parts[1].ImageURL)
		assert.Equal(t, "data:image/jpeg;base64,"+base64.StdEncoding.EncodeToString(validJPEG), parts[1].ImageURL.URL)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"events\":[]}"}}]}`))
	}))
	defer server.Close()

	backend := NewOpenAIBackend(config.JudgmentConfig{
		Endpoint: server.URL + "/v1/",
		APIKey:   "sk-test",
		Model:    "gpt-4o-mini",
		Timeout:  5 * time.Second,
	}, quietLogger())

	text, err := backend.Complete(context.Background(), "prompt text", validJPEG)
	require.NoError(t, err)
	assert.Equal(t, `{"events":[]}`, text)
	assert.Equal(t, "gpt-4o-mini", captured.Model)
}

func TestOpenAIBackendHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	backend := NewOpenAIBackend(config.JudgmentConfig{Endpoint: server.URL, Model: "m"}, quietLogger())
	_, err := backend.Complete(context.Background(), "p", validJPEG)
	require.Error(t, err)
	assert.True(t, errors.IsErrorType(err, errors.ErrUnavailable))
	assert.Equal(t, http.StatusTooManyRequests, errors.GetErrorFields(err)["status"])
	assert.True(t, strings.Contains(err.Error(), "429"))
}

func TestOpenAIBackendErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"message":"invalid image","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	backend := NewOpenAIBackend(config.JudgmentConfig{Endpoint: server.URL, Model: "m"}, quietLogger())
	_, err := backend.Complete(context.Background(), "p", validJPEG)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid image")
}

func TestOpenAIBackendHonoursContext(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	backend := NewOpenAIBackend(config.JudgmentConfig{Endpoint: server.URL, Model: "m"}, quietLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := backend.Complete(ctx, "p", validJPEG)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
