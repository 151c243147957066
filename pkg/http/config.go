package http

import (
	"time"

	"interview-monitor/pkg/config"
)

// Config holds the HTTP server configuration
type Config struct {
	// Port is the HTTP server port
	Port int

	// EnableMetrics exposes the Prometheus registry at /metrics
	EnableMetrics bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// AllowedOrigins restricts websocket upgrades; empty allows any origin
	AllowedOrigins []string

	// RateLimit bounds API requests per client and frames per monitor
	RateLimit config.RateLimitConfig
}

// DefaultConfig returns the default HTTP server configuration
func DefaultConfig() *Config {
	return &Config{
		Port:          8080,
		EnableMetrics: true,
		ReadTimeout:   10 * time.Second,
		WriteTimeout:  30 * time.Second,
		IdleTimeout:   60 * time.Second,
	}
}

// ConfigFromSettings maps the HTTP and rate limit sections of the application config
func ConfigFromSettings(cfg config.HTTPConfig, limits config.RateLimitConfig) *Config {
	c := DefaultConfig()
	c.Port = cfg.Port
	c.EnableMetrics = cfg.EnableMetrics
	if cfg.ReadTimeout > 0 {
		c.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		c.WriteTimeout = cfg.WriteTimeout
	}
	c.AllowedOrigins = cfg.AllowedOrigins
	c.RateLimit = limits
	return c
}
