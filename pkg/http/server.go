package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"interview-monitor/pkg/alerting"
	"interview-monitor/pkg/correlation"
	"interview-monitor/pkg/errors"
	"interview-monitor/pkg/metrics"
	"interview-monitor/pkg/monitor"
	"interview-monitor/pkg/ratelimit"
	"interview-monitor/pkg/storage"
	"interview-monitor/pkg/version"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// DeliveryLog exposes recent secondary alert deliveries
type DeliveryLog interface {
	GetDeliveries() []alerting.Delivery
}

// Dependencies are the collaborators served over HTTP. Only Monitors is required.
type Dependencies struct {
	Monitors    *monitor.Manager
	Hub         *LiveHub
	Store       storage.Store
	Transcripts TranscriptPublisher
	Audio       AudioSink
	Alerts      DeliveryLog
	Checks      []HealthCheck
}

// Server represents the HTTP server for the monitor API, live feed and health checks
type Server struct {
	config     *Config
	logger     *logrus.Logger
	deps       Dependencies
	router     *mux.Router
	httpServer *http.Server
	startTime  time.Time

	rateLimit *ratelimit.HTTPMiddleware
	frames    *ratelimit.Limiter
}

// NewServer creates a new HTTP server instance
func NewServer(logger *logrus.Logger, config *Config, deps Dependencies) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	server := &Server{
		config:    config,
		logger:    logger,
		deps:      deps,
		router:    mux.NewRouter(),
		startTime: time.Now(),
	}

	server.rateLimit = ratelimit.NewHTTPMiddleware(config.RateLimit, logger)
	if fps := config.RateLimit.IngestFramesPerSecond; fps > 0 {
		server.frames = ratelimit.NewLimiter(fps, int(fps)+1, logger)
	}

	r := server.router
	r.Use(server.serverHeaderMiddleware, correlation.Middleware(logger), server.rateLimit.Middleware)

	r.HandleFunc("/health", server.HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/health/live", server.LivenessHandler).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", server.ReadinessHandler).Methods(http.MethodGet)

	if config.EnableMetrics {
		if registry := metrics.GetRegistry(); registry != nil {
			r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{
				EnableOpenMetrics: true,
				Registry:          registry,
			})).Methods(http.MethodGet)
			logger.Info("Prometheus metrics endpoint enabled at /metrics")
		}
	} else {
		logger.Info("Metrics endpoints disabled")
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/monitors", server.createMonitor).Methods(http.MethodPost)
	api.HandleFunc("/monitors", server.listMonitors).Methods(http.MethodGet)
	api.HandleFunc("/monitors/{id}", server.getMonitor).Methods(http.MethodGet)
	api.HandleFunc("/monitors/{id}", server.deleteMonitor).Methods(http.MethodDelete)
	api.HandleFunc("/monitors/{id}/start", server.startMonitor).Methods(http.MethodPost)
	api.HandleFunc("/monitors/{id}/stop", server.stopMonitor).Methods(http.MethodPost)
	api.HandleFunc("/monitors/{id}/mode", server.setMode).Methods(http.MethodPut)
	api.HandleFunc("/monitors/{id}/timeline", server.getTimeline).Methods(http.MethodGet)
	api.HandleFunc("/monitors/{id}/report", server.getReport).Methods(http.MethodGet)
	api.HandleFunc("/monitors/{id}/recording", server.getRecording).Methods(http.MethodGet)
	api.HandleFunc("/monitors/{id}/sessions", server.listSessions).Methods(http.MethodGet)
	api.Handle("/monitors/{id}/media", NewIngestHandler(logger, deps.Monitors, deps.Transcripts, deps.Audio, config.AllowedOrigins).WithFrameLimit(server.frames)).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{sessionID}", server.getSession).Methods(http.MethodGet)
	api.HandleFunc("/alerts", server.listAlerts).Methods(http.MethodGet)

	if deps.Hub != nil {
		r.HandleFunc("/ws", deps.Hub.ServeWs).Methods(http.MethodGet)
	}

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      r,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return server
}

// Handler returns the routed handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server in a goroutine
func (s *Server) Start() {
	s.logger.WithField("port", s.config.Port).Info("Starting HTTP server")

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP server failed")
		}
	}()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server...")
	s.rateLimit.Stop()
	if s.frames != nil {
		s.frames.Stop()
	}
	return s.httpServer.Shutdown(ctx)
}

// ErrorResponse sends a standardized error response
func (s *Server) ErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	errors.WriteError(w, err)
	correlation.LoggerFromContext(r.Context(), s.logger).
		WithError(err).
		WithField("code", errors.GetErrorCode(err)).
		Debug("HTTP error response sent")
}

func (s *Server) serverHeaderMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", version.ServerHeader())
		next.ServeHTTP(w, r)
	})
}
