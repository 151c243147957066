// Package ratelimit provides keyed token buckets for API clients and media ingest.
package ratelimit

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultIdleTTL = 10 * time.Minute

// Limiter implements a token bucket rate limiter with per-key tracking
type Limiter struct {
	rate    float64 // tokens per second
	burst   int
	logger  *logrus.Logger
	now     func() time.Time
	idleTTL time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket

	stop     chan struct{}
	stopOnce sync.Once
}

type bucket struct {
	tokens     float64
	lastUpdate time.Time
	blockUntil time.Time
}

// Option configures a Limiter
type Option func(*Limiter)

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithIdleTTL sets how long an untouched bucket is kept
func WithIdleTTL(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.idleTTL = d
		}
	}
}

// NewLimiter creates a limiter refilling rate tokens per second up to burst.
// Call Stop to end the background cleanup.
func NewLimiter(rate float64, burst int, logger *logrus.Logger, opts ...Option) *Limiter {
	if burst < 1 {
		burst = 1
	}
	l := &Limiter{
		rate:    rate,
		burst:   burst,
		logger:  logger,
		now:     time.Now,
		idleTTL: defaultIdleTTL,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	go l.cleanupLoop()
	return l
}

// refillLocked returns the bucket for key with tokens accrued up to now
func (l *Limiter) refillLocked(key string, now time.Time) *bucket {
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.burst), lastUpdate: now}
		l.buckets[key] = b
		return b
	}

	b.tokens += now.Sub(b.lastUpdate).Seconds() * l.rate
	if b.tokens > float64(l.burst) {
		b.tokens = float64(l.burst)
	}
	b.lastUpdate = now
	return b
}

// Allow spends one token for key
func (l *Limiter) Allow(key string) bool {
	return l.AllowN(key, 1)
}

// AllowN spends n tokens for key, or none if fewer are available
func (l *Limiter) AllowN(key string, n int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b := l.refillLocked(key, now)
	if now.Before(b.blockUntil) {
		return false
	}
	if b.tokens >= float64(n) {
		b.tokens -= float64(n)
		return true
	}
	return false
}

// Block rejects key until duration has passed
func (l *Limiter) Block(key string, duration time.Duration) {
	l.mu.Lock()
	now := l.now()
	b := l.refillLocked(key, now)
	b.tokens = 0
	b.blockUntil = now.Add(duration)
	until := b.blockUntil
	l.mu.Unlock()

	if l.logger != nil {
		l.logger.WithFields(logrus.Fields{
			"key":         key,
			"block_until": until,
		}).Warn("Client blocked due to rate limit violation")
	}
}

// IsBlocked reports whether key is currently blocked
func (l *Limiter) IsBlocked(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	return ok && l.now().Before(b.blockUntil)
}

// Tokens returns the tokens currently available to key
func (l *Limiter) Tokens(key string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.buckets[key]; !ok {
		return float64(l.burst)
	}
	return l.refillLocked(key, l.now()).tokens
}

// Forget drops the bucket for key
func (l *Limiter) Forget(key string) {
	l.mu.Lock()
	delete(l.buckets, key)
	l.mu.Unlock()
}

// Len returns the number of tracked keys
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Stop ends the cleanup goroutine. Idempotent.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(l.idleTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.evictIdle()
		}
	}
}

// evictIdle removes buckets that are neither recently used nor blocked
func (l *Limiter) evictIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, b := range l.buckets {
		if now.Sub(b.lastUpdate) > l.idleTTL && !now.Before(b.blockUntil) {
			delete(l.buckets, key)
		}
	}
}
