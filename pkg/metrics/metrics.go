package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	registry           *prometheus.Registry
	registryOnce       sync.Once
	mu                 sync.RWMutex
	defaultMetricsPath = "/metrics"
	metricsEnabled     = true

	// Session metrics
	SessionsActive   prometheus.Gauge
	SessionsStarted  *prometheus.CounterVec
	SessionDuration  *prometheus.HistogramVec
	SessionStartFail *prometheus.CounterVec

	// Perception metrics
	PerceptionTicks  *prometheus.CounterVec
	PerceptionErrors *prometheus.CounterVec

	// Judgment metrics
	JudgmentRequests   *prometheus.CounterVec
	JudgmentLatency    *prometheus.HistogramVec
	JudgmentSkipped    *prometheus.CounterVec
	JudgmentDiscarded  prometheus.Counter
	ParseFailures      prometheus.Counter
	ObservationsParsed *prometheus.CounterVec

	// Escalation metrics
	StrikesTotal     prometheus.Counter
	EscalationsTotal prometheus.Counter
	AlertDeliveries  *prometheus.CounterVec

	// Capture metrics
	RecorderDroppedChunks prometheus.Counter
	FramesIngested        prometheus.Counter
	RateLimited           *prometheus.CounterVec

	// Transport metrics
	AMQPPublishedMessages *prometheus.CounterVec
	AMQPConnectionStatus  prometheus.Gauge
	RedisOperations       *prometheus.CounterVec
	STTRequestsTotal      *prometheus.CounterVec
)

// Init initializes all metrics and registers them with a private registry
func Init(logger *logrus.Logger) {
	registryOnce.Do(func() {
		reg := prometheus.NewRegistry()

		SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "monitor_sessions_active",
			Help: "Number of monitoring sessions currently active",
		})
		SessionsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_sessions_started_total",
			Help: "Total number of monitoring sessions started",
		}, []string{"mode"})
		SessionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "monitor_session_duration_seconds",
			Help:    "Duration of completed monitoring sessions",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14), // 1s to ~4.5 hours
		}, []string{"mode"})
		SessionStartFail = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_session_start_failures_total",
			Help: "Session starts rejected by capture or model errors",
		}, []string{"reason"})

		PerceptionTicks = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_perception_ticks_total",
			Help: "Perception ticks by outcome",
		}, []string{"outcome"})
		PerceptionErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_perception_errors_total",
			Help: "Perception tick failures contained by the loop",
		}, []string{"kind"})

		JudgmentRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_judgment_requests_total",
			Help: "Remote judgment requests by status",
		}, []string{"mode", "status"})
		JudgmentLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "monitor_judgment_latency_seconds",
			Help:    "Round trip time of remote judgment requests",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}, []string{"mode"})
		JudgmentSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_judgment_skipped_total",
			Help: "Judgment ticks skipped before dispatch",
		}, []string{"reason"})
		JudgmentDiscarded = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_judgment_discarded_total",
			Help: "Judgment responses discarded because the session had stopped",
		})
		ParseFailures = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_judgment_parse_failures_total",
			Help: "Judgment replies with no extractable JSON",
		})
		ObservationsParsed = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_observations_total",
			Help: "Observations applied to session timelines",
		}, []string{"dangerous"})

		StrikesTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_strikes_total",
			Help: "Dangerous events recorded as strikes",
		})
		EscalationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_escalations_total",
			Help: "Sessions that crossed the strike threshold",
		})
		AlertDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_alert_deliveries_total",
			Help: "Secondary alert deliveries by channel and status",
		}, []string{"channel", "status"})

		RecorderDroppedChunks = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_recorder_dropped_chunks_total",
			Help: "Recorder chunks dropped because the buffer was full",
		})
		FramesIngested = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_frames_ingested_total",
			Help: "Video frames received from capture clients",
		})
		RateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_rate_limited_total",
			Help: "Requests and ingest frames rejected by rate limits",
		}, []string{"scope"})

		AMQPPublishedMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_amqp_published_messages_total",
			Help: "Total number of messages published to AMQP",
		}, []string{"routing_key", "status"})
		AMQPConnectionStatus = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "monitor_amqp_connection_status",
			Help: "AMQP connection status (1 = connected, 0 = disconnected)",
		})
		RedisOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_redis_operations_total",
			Help: "Redis session store operations",
		}, []string{"operation", "status"})
		STTRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_stt_requests_total",
			Help: "Speech-to-text streams by provider and status",
		}, []string{"vendor", "status"})

		reg.MustRegister(
			SessionsActive, SessionsStarted, SessionDuration, SessionStartFail,
			PerceptionTicks, PerceptionErrors,
			JudgmentRequests, JudgmentLatency, JudgmentSkipped, JudgmentDiscarded, ParseFailures, ObservationsParsed,
			StrikesTotal, EscalationsTotal, AlertDeliveries,
			RecorderDroppedChunks, FramesIngested, RateLimited,
			AMQPPublishedMessages, AMQPConnectionStatus, RedisOperations, STTRequestsTotal,
		)

		mu.Lock()
		registry = reg
		mu.Unlock()

		if logger != nil {
			logger.Info("Prometheus metrics initialized")
		}
	})
}

// GetRegistry returns the prometheus registry, nil before Init
func GetRegistry() *prometheus.Registry {
	mu.RLock()
	defer mu.RUnlock()
	return registry
}

// SetMetricsPath sets the HTTP path for metrics endpoint
func SetMetricsPath(path string) {
	defaultMetricsPath = path
}

// MetricsPath returns the HTTP path for the metrics endpoint
func MetricsPath() string {
	return defaultMetricsPath
}

// EnableMetrics enables or disables metrics collection
func EnableMetrics(enabled bool) {
	mu.Lock()
	metricsEnabled = enabled
	mu.Unlock()
}

// IsMetricsEnabled returns whether metrics are enabled
func IsMetricsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return metricsEnabled
}

// active is false until Init has run, so recorders are no-ops in tests
func active() bool {
	mu.RLock()
	defer mu.RUnlock()
	return metricsEnabled && registry != nil
}

// Handler returns the promhttp handler for the private registry
func Handler() http.Handler {
	reg := GetRegistry()
	if reg == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		Registry:          reg,
	})
}

// StartMetrics initializes the metrics service
func StartMetrics(logger *logrus.Logger, enabled bool) {
	if !enabled {
		EnableMetrics(false)
		logger.Info("Metrics collection is disabled")
		return
	}

	Init(logger)
	EnableMetrics(true)
	logger.WithField("metrics_path", defaultMetricsPath).Info("Metrics endpoint initialized")
}

// StartSessionTimer marks a session active and returns a func recording its duration
func StartSessionTimer(mode string) func() {
	if !active() {
		return func() {}
	}

	SessionsActive.Inc()
	SessionsStarted.WithLabelValues(mode).Inc()
	start := time.Now()
	return func() {
		SessionsActive.Dec()
		SessionDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	}
}

// RecordSessionStartFailure records a rejected session start
func RecordSessionStartFailure(reason string) {
	if active() {
		SessionStartFail.WithLabelValues(reason).Inc()
	}
}

// RecordPerceptionTick records the outcome of one perception tick
func RecordPerceptionTick(outcome string) {
	if active() {
		PerceptionTicks.WithLabelValues(outcome).Inc()
	}
}

// RecordPerceptionError records a contained perception failure
func RecordPerceptionError(kind string) {
	if active() {
		PerceptionErrors.WithLabelValues(kind).Inc()
	}
}

// ObserveJudgmentLatency returns a func that records request latency and status
func ObserveJudgmentLatency(mode string) func(status string) {
	if !active() {
		return func(string) {}
	}

	start := time.Now()
	return func(status string) {
		JudgmentLatency.WithLabelValues(mode).Observe(time.Since(start).Seconds())
		JudgmentRequests.WithLabelValues(mode, status).Inc()
	}
}

// RecordJudgmentSkipped records a judgment tick that did not dispatch
func RecordJudgmentSkipped(reason string) {
	if active() {
		JudgmentSkipped.WithLabelValues(reason).Inc()
	}
}

// RecordJudgmentDiscarded records a response that arrived after stop
func RecordJudgmentDiscarded() {
	if active() {
		JudgmentDiscarded.Inc()
	}
}

// RecordParseFailure records an unparseable judgment reply
func RecordParseFailure() {
	if active() {
		ParseFailures.Inc()
	}
}

// RecordObservation records an observation applied to a timeline
func RecordObservation(dangerous bool) {
	if !active() {
		return
	}
	label := "false"
	if dangerous {
		label = "true"
	}
	ObservationsParsed.WithLabelValues(label).Inc()
}

// RecordStrike records one escalation strike
func RecordStrike() {
	if active() {
		StrikesTotal.Inc()
	}
}

// RecordEscalation records a threshold crossing
func RecordEscalation() {
	if active() {
		EscalationsTotal.Inc()
	}
}

// RecordAlertDelivery records a secondary alert attempt
func RecordAlertDelivery(channel, status string) {
	if active() {
		AlertDeliveries.WithLabelValues(channel, status).Inc()
	}
}

// RecordRecorderDrop records a dropped recorder chunk
func RecordRecorderDrop() {
	if active() {
		RecorderDroppedChunks.Inc()
	}
}

// RecordFrameIngested records a frame pushed by a capture client
func RecordFrameIngested() {
	if active() {
		FramesIngested.Inc()
	}
}

// RecordRateLimited records a request or frame rejected by a limiter
func RecordRateLimited(scope string) {
	if active() {
		RateLimited.WithLabelValues(scope).Inc()
	}
}

// RecordAMQPPublish records metrics for an AMQP publish
func RecordAMQPPublish(routingKey, status string) {
	if active() {
		AMQPPublishedMessages.WithLabelValues(routingKey, status).Inc()
	}
}

// SetAMQPConnectionStatus sets the AMQP connection status
func SetAMQPConnectionStatus(connected bool) {
	if !active() {
		return
	}
	if connected {
		AMQPConnectionStatus.Set(1)
	} else {
		AMQPConnectionStatus.Set(0)
	}
}

// RecordRedisOperation records a session store round trip
func RecordRedisOperation(operation string, err error) {
	if !active() {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	RedisOperations.WithLabelValues(operation, status).Inc()
}

// RecordSTTRequest records metrics for an STT stream
func RecordSTTRequest(vendor, status string) {
	if active() {
		STTRequestsTotal.WithLabelValues(vendor, status).Inc()
	}
}
