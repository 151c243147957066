package http

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"interview-monitor/pkg/circuitbreaker"
	"interview-monitor/pkg/errors"
	"interview-monitor/pkg/version"

	"github.com/sirupsen/logrus"
)

const healthCheckTimeout = 2 * time.Second

// Health status values
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthCheck probes one dependency. A failing critical check makes the
// service unhealthy and not ready; other failures only degrade it.
type HealthCheck struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) error
}

// HealthStatus represents the health status of the service
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Uptime    string                 `json:"uptime"`
	Version   string                 `json:"version"`
	Checks    map[string]CheckResult `json:"checks"`
	System    SystemInfo             `json:"system"`
}

// CheckResult represents an individual health check result
type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// SystemInfo contains system resource information
type SystemInfo struct {
	GoRoutines     int    `json:"goroutines"`
	MemoryMB       uint64 `json:"memory_mb"`
	CPUCount       int    `json:"cpu_count"`
	Monitors       int    `json:"monitors"`
	ActiveSessions int    `json:"active_sessions"`
	FeedClients    int    `json:"feed_clients"`
}

// HealthHandler handles health check requests
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	health := HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Version:   version.Version,
		Checks:    make(map[string]CheckResult),
	}

	if s.deps.Monitors != nil {
		health.Checks["monitors"] = CheckResult{Status: StatusHealthy, Message: "Monitor manager operational"}
		health.System.Monitors = s.deps.Monitors.Count()
		health.System.ActiveSessions = s.deps.Monitors.ActiveCount()
	} else {
		health.Checks["monitors"] = CheckResult{Status: StatusUnhealthy, Message: "Monitor manager not initialized"}
		health.Status = StatusUnhealthy
	}

	if s.deps.Hub != nil && s.deps.Hub.IsRunning() {
		health.Checks["websocket"] = CheckResult{Status: StatusHealthy, Message: "Live feed hub is running"}
		health.System.FeedClients = s.deps.Hub.ClientCount()
	} else {
		health.Checks["websocket"] = CheckResult{Status: StatusDegraded, Message: "Live feed hub not running"}
		if health.Status == StatusHealthy {
			health.Status = StatusDegraded
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()
	for _, check := range s.deps.Checks {
		result := runCheck(ctx, check)
		health.Checks[check.Name] = result
		switch {
		case result.Status == StatusHealthy:
		case check.Critical:
			health.Status = StatusUnhealthy
		case health.Status == StatusHealthy:
			health.Status = StatusDegraded
		}
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	health.System.GoRoutines = runtime.NumGoroutine()
	health.System.MemoryMB = m.Alloc / 1024 / 1024
	health.System.CPUCount = runtime.NumCPU()

	if r.URL.Query().Get("detailed") == "true" {
		s.logger.WithFields(logrus.Fields{
			"status":   health.Status,
			"checks":   health.Checks,
			"system":   health.System,
			"duration": time.Since(startTime),
		}).Debug("Health check performed")
	}

	statusCode := http.StatusOK
	if health.Status == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(health)
}

// LivenessHandler handles kubernetes liveness probe
func (s *Server) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// ReadinessHandler handles kubernetes readiness probe
func (s *Server) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ready := s.deps.Monitors != nil

	if ready {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		for _, check := range s.deps.Checks {
			if check.Critical && runCheck(ctx, check).Status != StatusHealthy {
				ready = false
				break
			}
		}
	}

	if ready {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("not ready"))
	}
}

// ConnectionCheck reports whether a long-lived connection such as AMQP is up
func ConnectionCheck(name string, critical bool, connected func() bool) HealthCheck {
	return HealthCheck{
		Name:     name,
		Critical: critical,
		Check: func(context.Context) error {
			if !connected() {
				return errors.Wrap(errors.ErrUnavailable, name+" disconnected")
			}
			return nil
		},
	}
}

// BreakerCheck degrades health while the breaker rejects calls
func BreakerCheck(name string, cb *circuitbreaker.CircuitBreaker) HealthCheck {
	return HealthCheck{
		Name: name,
		Check: func(context.Context) error {
			if cb.IsOpen() {
				return circuitbreaker.NewCircuitBreakerOpenError(cb.GetName(), cb.GetState())
			}
			return nil
		},
	}
}

func runCheck(ctx context.Context, check HealthCheck) (result CheckResult) {
	defer func() {
		if r := recover(); r != nil {
			result = CheckResult{Status: StatusDegraded, Message: "health check panicked"}
		}
	}()

	if err := check.Check(ctx); err != nil {
		status := StatusDegraded
		if check.Critical {
			status = StatusUnhealthy
		}
		return CheckResult{Status: status, Message: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}
