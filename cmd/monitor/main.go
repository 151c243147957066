package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"interview-monitor/pkg/alerting"
	"interview-monitor/pkg/capture"
	"interview-monitor/pkg/circuitbreaker"
	"interview-monitor/pkg/config"
	"interview-monitor/pkg/escalation"
	http_server "interview-monitor/pkg/http"
	"interview-monitor/pkg/judgment"
	"interview-monitor/pkg/messaging"
	"interview-monitor/pkg/metrics"
	"interview-monitor/pkg/monitor"
	"interview-monitor/pkg/pii"
	"interview-monitor/pkg/session"
	"interview-monitor/pkg/storage"
	"interview-monitor/pkg/stt"
	"interview-monitor/pkg/timeline"
	"interview-monitor/pkg/util"
	"interview-monitor/pkg/version"

	"github.com/sirupsen/logrus"
)

const (
	eventBufferSize  = 1024
	audioQueueSize   = 64
	shutdownTimeout  = 15 * time.Second
	redisPoolSize    = 10
	redisDialTimeout = 5 * time.Second
)

var logger = logrus.New()

func main() {
	// Basic logger until the configuration is loaded
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	logger.SetOutput(os.Stdout)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	cfg, err := config.Load(logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if err := cfg.ApplyLogging(logger); err != nil {
		logger.WithError(err).Fatal("Failed to apply logging configuration")
	}

	logger.WithField("version", version.Version).Info("Starting interview monitor")

	metrics.StartMetrics(logger, cfg.HTTP.EnableMetrics)

	shutdown := util.NewGracefulShutdown(logger, shutdownTimeout)
	var checks []http_server.HealthCheck

	// Session record store
	var store storage.Store
	if cfg.Storage.RedisEnabled {
		redisStore, err := storage.NewRedisStore(storage.RedisConfig{
			Address:     cfg.Storage.RedisAddress,
			Password:    cfg.Storage.RedisPassword,
			Database:    cfg.Storage.RedisDatabase,
			PoolSize:    redisPoolSize,
			DialTimeout: redisDialTimeout,
			KeyPrefix:   cfg.Storage.KeyPrefix,
			TTL:         cfg.Storage.SessionTTL,
		}, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize Redis session store")
		}
		store = redisStore
		checks = append(checks, http_server.HealthCheck{Name: "redis", Critical: true, Check: redisStore.Health})
	} else {
		store = storage.NewMemoryStore()
		logger.Info("Using in-memory session store")
	}
	shutdown.RegisterCloser("session-store", store, 60)

	// Remote judgment
	var judgmentBreaker *circuitbreaker.CircuitBreaker
	if cfg.CircuitBreaker.Enabled {
		judgmentBreaker = circuitbreaker.NewCircuitBreaker("judgment", circuitbreaker.JudgmentConfig(
			cfg.CircuitBreaker.FailureThreshold,
			cfg.CircuitBreaker.Timeout,
			cfg.CircuitBreaker.RequestTimeout,
		), logger)
		checks = append(checks, http_server.BreakerCheck("judgment", judgmentBreaker))
	}
	judge := judgment.NewClient(judgment.NewOpenAIBackend(cfg.Judgment, logger), judgmentBreaker, logger)
	if cfg.Judgment.RedactPII {
		judge.WithRedactor(pii.NewRedactor(logger))
	}

	// Secondary alerts
	var alerter escalation.Alerter
	var deliveries http_server.DeliveryLog
	if alertManager := alerting.NewAlertManagerFromConfig(cfg.Alerting, logger); alertManager != nil {
		alerter = alertManager
		deliveries = alertManager
		logger.WithField("channels", alertManager.Channels()).Info("Alert manager initialized")
	} else {
		logger.Debug("Secondary alerting disabled")
	}

	// Event publishing
	var events *messaging.EventPublisher
	if cfg.Messaging.AMQPUrl != "" {
		amqpClient := messaging.NewAMQPClient(logger, messaging.ConfigFromSettings(cfg.Messaging))
		if err := amqpClient.Connect(); err != nil {
			logger.WithError(err).Warn("Failed to connect to AMQP, session events will not be published")
		} else {
			events = messaging.NewEventPublisher(amqpClient, eventBufferSize, logger)
			checks = append(checks, http_server.ConnectionCheck("amqp", false, amqpClient.IsConnected))
			shutdown.Register(util.ShutdownResource{Name: "event-publisher", Priority: 40, Shutdown: events.Shutdown})
			shutdown.RegisterCloser("amqp", amqpClient, 50)
		}
	}

	// Transcripts
	transcriptionSvc := stt.NewTranscriptionService(logger)
	hub := http_server.NewLiveHub(logger, cfg.HTTP.AllowedOrigins)
	transcriptionSvc.AddListener(hub)
	go hub.Run(rootCtx)

	var audio http_server.AudioSink
	provider, err := stt.NewProviderFromConfig(cfg.STT, transcriptionSvc, logger)
	if err != nil {
		logger.WithError(err).Fatal("Invalid STT configuration")
	}
	if provider != nil {
		sttManager := stt.NewProviderManager(logger, provider.Name())
		wrapped := stt.NewCircuitBreakerWrapper(provider, logger, nil)
		if err := sttManager.RegisterProvider(wrapped); err != nil {
			logger.WithError(err).Fatal("Failed to initialize STT provider")
		}
		defaultProvider, _ := sttManager.GetDefaultProvider()
		streams := stt.NewAudioStreams(defaultProvider, audioQueueSize, logger)
		audio = streams

		checks = append(checks, http_server.HealthCheck{
			Name: "stt_" + provider.Name(),
			Check: func(context.Context) error {
				if wrapped.IsCircuitBreakerOpen() {
					return circuitbreaker.NewCircuitBreakerOpenError("stt_"+provider.Name(), circuitbreaker.StateOpen)
				}
				return nil
			},
		})
		shutdown.Register(util.ShutdownResource{Name: "stt-streams", Priority: 30, Shutdown: streams.Shutdown})
		if closer, ok := provider.(io.Closer); ok {
			shutdown.RegisterCloser("stt-provider", closer, 35)
		}
	} else {
		logger.Info("Server-side speech-to-text disabled, relying on browser transcripts")
	}

	// Monitors
	hooks := func(monitorID string) monitor.Hooks {
		feed := hub.ForMonitor(monitorID)
		notifiers := escalation.Notifiers{feed}
		lifecycles := monitor.Lifecycles{feed}
		listeners := []timeline.Listener{feed}
		if events != nil {
			ev := events.ForMonitor(monitorID)
			notifiers = append(notifiers, ev)
			lifecycles = append(lifecycles, ev)
			listeners = append(listeners, ev)
		}
		return monitor.Hooks{
			Notifier:  notifiers,
			Alerter:   alerter,
			Store:     store,
			Lifecycle: lifecycles,
			Listeners: listeners,
		}
	}

	manager := monitor.NewManager(monitor.ManagerConfig{
		MaxMonitors: cfg.Monitor.MaxMonitors,
		Monitor: monitor.Config{
			Mode:               session.Mode(cfg.Monitor.DefaultMode),
			PerceptionInterval: cfg.Monitor.PerceptionInterval,
			Constraints:        capture.Constraints{Video: true, Audio: cfg.Monitor.RequireAudio},
			IncludePerception:  cfg.Judgment.IncludePerception,
		},
		Capture: capture.Config{
			Width:             cfg.Monitor.SnapshotWidth,
			Height:            cfg.Monitor.SnapshotHeight,
			JPEGQuality:       cfg.Monitor.JPEGQuality,
			RecorderMaxBytes:  int64(cfg.Monitor.RecorderMaxBytes),
			RecorderQueueSize: cfg.Monitor.RecorderQueueSize,
		},
	}, judge, hooks, transcriptionSvc, logger)
	shutdown.Register(util.ShutdownResource{Name: "monitors", Priority: 20, Shutdown: manager.StopAll})

	// HTTP
	httpServer := http_server.NewServer(logger, http_server.ConfigFromSettings(cfg.HTTP, cfg.RateLimit), http_server.Dependencies{
		Monitors:    manager,
		Hub:         hub,
		Store:       store,
		Transcripts: transcriptionSvc,
		Audio:       audio,
		Alerts:      deliveries,
		Checks:      checks,
	})
	httpServer.Start()
	shutdown.Register(util.ShutdownResource{Name: "http", Priority: 10, Shutdown: httpServer.Shutdown})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.WithField("signal", sig.String()).Info("Received shutdown signal, cleaning up...")

	if err := shutdown.Shutdown(context.Background()); err != nil {
		logger.WithError(err).Error("Shutdown completed with errors")
	}
	rootCancel()
	logger.Info("Interview monitor stopped")
}
