package correlation

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_GeneratesUniqueIDs(t *testing.T) {
	ids := sync.Map{}
	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				id := New()
				_, loaded := ids.LoadOrStore(id.String(), true)
				assert.False(t, loaded, "ID collision detected")
			}
		}()
	}
	wg.Wait()

	_, err := uuid.Parse(New().String())
	assert.NoError(t, err)
}

func TestContextRoundTrip(t *testing.T) {
	assert.True(t, FromContext(context.Background()).IsEmpty())
	assert.Empty(t, ClientIPFromContext(context.Background()))
	assert.Empty(t, ContextFields(context.Background()))

	ctx := WithCorrelationID(context.Background(), ID("abc"))
	ctx = WithClientIP(ctx, "10.0.0.1")

	assert.Equal(t, ID("abc"), FromContext(ctx))
	assert.Equal(t, logrus.Fields{"correlation_id": "abc", "client_ip": "10.0.0.1"}, ContextFields(ctx))
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	ctx := WithCorrelationID(context.Background(), ID("req-7"))
	LoggerFromContext(ctx, logger).Info("hello")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "req-7", line["correlation_id"])
}

func TestExtractID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.True(t, ExtractID(req).IsEmpty())

	req.Header.Set(HTTPTraceIDHeader, "trace")
	assert.Equal(t, ID("trace"), ExtractID(req))

	req.Header.Set(HTTPRequestIDHeader, "request")
	assert.Equal(t, ID("request"), ExtractID(req))

	req.Header.Set(HTTPHeader, "correlation")
	assert.Equal(t, ID("correlation"), ExtractID(req))

	req.Header.Set(HTTPHeader, strings.Repeat("x", maxIDLength+1))
	assert.Equal(t, ID("request"), ExtractID(req), "oversized IDs are ignored")
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.1.1:5555"
	assert.Equal(t, "10.1.1.1", ClientIP(req))

	req.Header.Set("X-Real-IP", "10.2.2.2")
	assert.Equal(t, "10.2.2.2", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "10.3.3.3, 10.4.4.4")
	assert.Equal(t, "10.3.3.3", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "garbage")
	assert.Equal(t, "10.2.2.2", ClientIP(req))
}

func TestMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.DebugLevel)

	var seen ID
	h := Middleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	t.Run("propagates an incoming id", func(t *testing.T) {
		buf.Reset()
		req := httptest.NewRequest(http.MethodGet, "/ok", nil)
		req.Header.Set(HTTPRequestIDHeader, "given")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, ID("given"), seen)
		assert.Equal(t, "given", rec.Header().Get(HTTPHeader))
		assert.Equal(t, "given", rec.Header().Get(HTTPRequestIDHeader))
		assert.Contains(t, buf.String(), `"level":"debug"`)
	})

	t.Run("generates a missing id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))

		assert.False(t, seen.IsEmpty())
		assert.Equal(t, seen.String(), rec.Header().Get(HTTPHeader))
	})

	t.Run("client errors log at warn", func(t *testing.T) {
		buf.Reset()
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, buf.String(), `"level":"warning"`)
		assert.Contains(t, buf.String(), `"status":404`)
	})
}
