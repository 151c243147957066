package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"interview-monitor/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func request(h http.Handler, path, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func enabledConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:           true,
		RequestsPerSecond: 1,
		BurstSize:         2,
		BlockDuration:     30 * time.Second,
	}
}

func TestHTTPMiddleware_Disabled(t *testing.T) {
	cfg := enabledConfig()
	cfg.Enabled = false
	m := NewHTTPMiddleware(cfg, quietLogger())
	defer m.Stop()

	h := m.Middleware(okHandler())
	for i := 0; i < 10; i++ {
		assert.Equal(t, http.StatusOK, request(h, "/api/monitors", "10.0.0.1:1234").Code)
	}
}

func TestHTTPMiddleware_RejectsOverLimit(t *testing.T) {
	clock := newFakeClock()
	m := NewHTTPMiddleware(enabledConfig(), quietLogger(), WithClock(clock.Now))
	defer m.Stop()
	h := m.Middleware(okHandler())

	assert.Equal(t, http.StatusOK, request(h, "/api/monitors", "10.0.0.1:1234").Code)
	assert.Equal(t, http.StatusOK, request(h, "/api/monitors", "10.0.0.1:1234").Code)

	rec := request(h, "/api/monitors", "10.0.0.1:1234")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "RATE_LIMITED", body["code"])

	assert.True(t, m.Limiter().IsBlocked("10.0.0.1"))

	// a different client is unaffected
	assert.Equal(t, http.StatusOK, request(h, "/api/monitors", "10.0.0.2:1234").Code)

	clock.Advance(31 * time.Second)
	assert.Equal(t, http.StatusOK, request(h, "/api/monitors", "10.0.0.1:1234").Code)
}

func TestHTTPMiddleware_ExemptPaths(t *testing.T) {
	cfg := enabledConfig()
	cfg.BurstSize = 1
	m := NewHTTPMiddleware(cfg, quietLogger(), WithClock(newFakeClock().Now))
	defer m.Stop()
	h := m.Middleware(okHandler())

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, request(h, "/health/ready", "10.0.0.1:1").Code)
		assert.Equal(t, http.StatusOK, request(h, "/metrics", "10.0.0.1:1").Code)
	}
	assert.Equal(t, 0, m.Limiter().Len())
}

func TestHTTPMiddleware_Whitelist(t *testing.T) {
	cfg := enabledConfig()
	cfg.BurstSize = 1
	cfg.WhitelistedIPs = []string{"127.0.0.1", "192.168.0.0/16", "not-a-cidr/99"}
	m := NewHTTPMiddleware(cfg, quietLogger(), WithClock(newFakeClock().Now))
	defer m.Stop()
	h := m.Middleware(okHandler())

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, request(h, "/api/monitors", "127.0.0.1:1").Code)
		assert.Equal(t, http.StatusOK, request(h, "/api/monitors", "192.168.4.20:1").Code)
	}
}
