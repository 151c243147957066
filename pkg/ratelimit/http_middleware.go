package ratelimit

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"interview-monitor/pkg/config"
	"interview-monitor/pkg/correlation"
	"interview-monitor/pkg/errors"
	"interview-monitor/pkg/metrics"

	"github.com/sirupsen/logrus"
)

// Paths that are never limited
var exemptPaths = []string{"/health", "/metrics", "/ws"}

// HTTPMiddleware limits API requests per client IP
type HTTPMiddleware struct {
	limiter         *Limiter
	config          config.RateLimitConfig
	logger          *logrus.Logger
	whitelistedIPs  map[string]bool
	whitelistedNets []*net.IPNet
}

// NewHTTPMiddleware creates the middleware. It passes every request through when cfg is disabled.
func NewHTTPMiddleware(cfg config.RateLimitConfig, logger *logrus.Logger, opts ...Option) *HTTPMiddleware {
	m := &HTTPMiddleware{
		limiter:        NewLimiter(cfg.RequestsPerSecond, cfg.BurstSize, logger, opts...),
		config:         cfg,
		logger:         logger,
		whitelistedIPs: make(map[string]bool),
	}

	for _, ip := range cfg.WhitelistedIPs {
		ip = strings.TrimSpace(ip)
		if ip == "" {
			continue
		}
		if strings.Contains(ip, "/") {
			_, ipNet, err := net.ParseCIDR(ip)
			if err != nil {
				logger.WithError(err).Warnf("Invalid CIDR in whitelist: %s", ip)
				continue
			}
			m.whitelistedNets = append(m.whitelistedNets, ipNet)
		} else {
			m.whitelistedIPs[ip] = true
		}
	}

	if cfg.Enabled {
		logger.WithFields(logrus.Fields{
			"rps":             cfg.RequestsPerSecond,
			"burst":           cfg.BurstSize,
			"whitelisted_ips": len(m.whitelistedIPs) + len(m.whitelistedNets),
		}).Info("HTTP rate limiting enabled")
	}
	return m
}

// Middleware applies the limit to next
func (m *HTTPMiddleware) Middleware(next http.Handler) http.Handler {
	if !m.config.Enabled {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isExempt(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		clientIP := correlation.ClientIP(r)
		if m.isWhitelisted(clientIP) {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.FormatFloat(m.config.RequestsPerSecond, 'f', -1, 64))

		if !m.limiter.Allow(clientIP) {
			if !m.limiter.IsBlocked(clientIP) && m.config.BlockDuration > 0 {
				m.limiter.Block(clientIP, m.config.BlockDuration)
			}
			metrics.RecordRateLimited("http")

			retryAfter := int(math.Ceil(m.config.BlockDuration.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("X-RateLimit-Remaining", "0")
			errors.WriteError(w, errors.NewRateLimited(clientIP, retryAfter))
			return
		}

		remaining := int(m.limiter.Tokens(clientIP))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Second).Unix(), 10))
		next.ServeHTTP(w, r)
	})
}

// Limiter returns the underlying limiter
func (m *HTTPMiddleware) Limiter() *Limiter {
	return m.limiter
}

// Stop releases the limiter's cleanup goroutine
func (m *HTTPMiddleware) Stop() {
	m.limiter.Stop()
}

func isExempt(path string) bool {
	for _, p := range exemptPaths {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

func (m *HTTPMiddleware) isWhitelisted(ip string) bool {
	if m.whitelistedIPs[ip] {
		return true
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, n := range m.whitelistedNets {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}
