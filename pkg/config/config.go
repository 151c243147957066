package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"interview-monitor/pkg/errors"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config represents the complete application configuration
type Config struct {
	HTTP           HTTPConfig           `json:"http"`
	Logging        LoggingConfig        `json:"logging"`
	Monitor        MonitorConfig        `json:"monitor"`
	Judgment       JudgmentConfig       `json:"judgment"`
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker"`
	Alerting       AlertingConfig       `json:"alerting"`
	Messaging      MessagingConfig      `json:"messaging"`
	Storage        StorageConfig        `json:"storage"`
	STT            STTConfig            `json:"stt"`
	RateLimit      RateLimitConfig      `json:"rate_limit"`
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port          int           `json:"port" env:"HTTP_PORT" default:"8080"`
	EnableMetrics bool          `json:"enable_metrics" env:"HTTP_ENABLE_METRICS" default:"true"`
	ReadTimeout   time.Duration `json:"read_timeout" env:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout  time.Duration `json:"write_timeout" env:"HTTP_WRITE_TIMEOUT" default:"30s"`

	// Origins allowed to open websockets; empty allows any
	AllowedOrigins []string `json:"allowed_origins" env:"HTTP_ALLOWED_ORIGINS"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `json:"level" env:"LOG_LEVEL" default:"info"`
	Format     string `json:"format" env:"LOG_FORMAT" default:"json"`
	OutputFile string `json:"output_file" env:"LOG_OUTPUT_FILE"`
}

// MonitorConfig holds session orchestration settings
type MonitorConfig struct {
	// Analysis mode applied to newly created monitors: demo, normal, conservative
	DefaultMode string `json:"default_mode" env:"MONITOR_ANALYSIS_MODE" default:"normal"`

	// Perception loop period; values below 100ms are raised to 100ms
	PerceptionInterval time.Duration `json:"perception_interval" env:"MONITOR_PERCEPTION_INTERVAL" default:"100ms"`

	SnapshotWidth  int `json:"snapshot_width" env:"MONITOR_SNAPSHOT_WIDTH" default:"640"`
	SnapshotHeight int `json:"snapshot_height" env:"MONITOR_SNAPSHOT_HEIGHT" default:"480"`
	JPEGQuality    int `json:"jpeg_quality" env:"MONITOR_JPEG_QUALITY" default:"80"`

	// Whether session start requires a microphone track
	RequireAudio bool `json:"require_audio" env:"MONITOR_REQUIRE_AUDIO" default:"true"`

	RecorderMaxBytes  int `json:"recorder_max_bytes" env:"MONITOR_RECORDER_MAX_BYTES" default:"268435456"`
	RecorderQueueSize int `json:"recorder_queue_size" env:"MONITOR_RECORDER_QUEUE_SIZE" default:"256"`

	MaxMonitors int `json:"max_monitors" env:"MONITOR_MAX_MONITORS" default:"100"`
}

// JudgmentConfig holds the remote vision-language service settings
type JudgmentConfig struct {
	// Base URL of an OpenAI-compatible API
	Endpoint    string        `json:"endpoint" env:"JUDGMENT_ENDPOINT" default:"https://api.openai.com/v1"`
	APIKey      string        `json:"-" env:"JUDGMENT_API_KEY"`
	Model       string        `json:"model" env:"JUDGMENT_MODEL" default:"gpt-4o-mini"`
	Timeout     time.Duration `json:"timeout" env:"JUDGMENT_TIMEOUT" default:"30s"`
	MaxTokens   int           `json:"max_tokens" env:"JUDGMENT_MAX_TOKENS" default:"512"`
	Temperature float64       `json:"temperature" env:"JUDGMENT_TEMPERATURE" default:"0.2"`

	// Include the latest perception summary in the prompt
	IncludePerception bool `json:"include_perception" env:"JUDGMENT_INCLUDE_PERCEPTION" default:"true"`

	// Mask emails, phone numbers, SSNs and card numbers in the transcript before it leaves the server
	RedactPII bool `json:"redact_pii" env:"JUDGMENT_REDACT_PII" default:"true"`
}

// CircuitBreakerConfig holds circuit breaker settings for the judgment backend
type CircuitBreakerConfig struct {
	Enabled          bool          `json:"enabled" env:"CIRCUIT_BREAKER_ENABLED" default:"true"`
	FailureThreshold int64         `json:"failure_threshold" env:"JUDGMENT_CB_FAILURE_THRESHOLD" default:"5"`
	Timeout          time.Duration `json:"timeout" env:"JUDGMENT_CB_TIMEOUT" default:"30s"`
	RequestTimeout   time.Duration `json:"request_timeout" env:"JUDGMENT_CB_REQUEST_TIMEOUT" default:"45s"`
}

// AlertingConfig holds secondary alert channel settings
type AlertingConfig struct {
	Enabled         bool          `json:"enabled" env:"ALERTING_ENABLED" default:"false"`
	SlackWebhookURL string        `json:"-" env:"ALERT_SLACK_WEBHOOK_URL"`
	SlackChannel    string        `json:"slack_channel" env:"ALERT_SLACK_CHANNEL"`
	WebhookURL      string        `json:"webhook_url" env:"ALERT_WEBHOOK_URL"`
	WebhookHeaders  []string      `json:"-" env:"ALERT_WEBHOOK_HEADERS"`
	Timeout         time.Duration `json:"timeout" env:"ALERT_TIMEOUT" default:"10s"`
}

// MessagingConfig holds AMQP event publishing settings
type MessagingConfig struct {
	AMQPUrl        string        `json:"-" env:"AMQP_URL"`
	Exchange       string        `json:"exchange" env:"AMQP_EXCHANGE" default:"interview.monitor"`
	QueueName      string        `json:"queue_name" env:"AMQP_QUEUE_NAME" default:"interview-monitor-events"`
	MessageTTL     time.Duration `json:"message_ttl" env:"AMQP_MESSAGE_TTL" default:"24h"`
	ConnectTimeout time.Duration `json:"connect_timeout" env:"AMQP_CONNECT_TIMEOUT" default:"10s"`
}

// StorageConfig holds external session store settings
type StorageConfig struct {
	RedisEnabled  bool          `json:"redis_enabled" env:"REDIS_ENABLED" default:"false"`
	RedisAddress  string        `json:"redis_address" env:"REDIS_ADDRESS" default:"localhost:6379"`
	RedisPassword string        `json:"-" env:"REDIS_PASSWORD"`
	RedisDatabase int           `json:"redis_database" env:"REDIS_DATABASE" default:"0"`
	KeyPrefix     string        `json:"key_prefix" env:"REDIS_KEY_PREFIX" default:"interview-monitor:session:"`
	SessionTTL    time.Duration `json:"session_ttl" env:"REDIS_SESSION_TTL" default:"168h"`
}

// STTConfig holds server-side speech-to-text settings
type STTConfig struct {
	// Provider: none, mock, google, amazon
	Provider   string          `json:"provider" env:"STT_PROVIDER" default:"none"`
	Language   string          `json:"language" env:"STT_LANGUAGE" default:"en-US"`
	SampleRate int             `json:"sample_rate" env:"STT_SAMPLE_RATE" default:"16000"`
	Google     GoogleSTTConfig `json:"google"`
	Amazon     AmazonSTTConfig `json:"amazon"`
}

// GoogleSTTConfig holds Google Speech-to-Text settings
type GoogleSTTConfig struct {
	CredentialsFile            string `json:"credentials_file" env:"GOOGLE_APPLICATION_CREDENTIALS"`
	APIKey                     string `json:"-" env:"GOOGLE_STT_API_KEY"`
	Model                      string `json:"model" env:"GOOGLE_STT_MODEL" default:"latest_long"`
	EnableAutomaticPunctuation bool   `json:"enable_automatic_punctuation" env:"GOOGLE_STT_AUTO_PUNCTUATION" default:"true"`
}

// AmazonSTTConfig holds Amazon Transcribe streaming settings
type AmazonSTTConfig struct {
	AccessKeyID     string `json:"-" env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `json:"-" env:"AWS_SECRET_ACCESS_KEY"`
	Region          string `json:"region" env:"AWS_REGION" default:"us-east-1"`
	VocabularyName  string `json:"vocabulary_name" env:"AMAZON_STT_VOCABULARY"`
}

// RateLimitConfig holds request and frame throttling settings
type RateLimitConfig struct {
	Enabled           bool          `json:"enabled" env:"RATE_LIMIT_ENABLED" default:"false"`
	RequestsPerSecond float64       `json:"requests_per_second" env:"RATE_LIMIT_RPS" default:"20"`
	BurstSize         int           `json:"burst_size" env:"RATE_LIMIT_BURST" default:"40"`
	BlockDuration     time.Duration `json:"block_duration" env:"RATE_LIMIT_BLOCK_DURATION" default:"1m"`
	WhitelistedIPs    []string      `json:"whitelisted_ips" env:"RATE_LIMIT_WHITELIST_IPS"`

	// Frames accepted per monitor per second on the media ingest; extra frames are dropped.
	// Zero disables frame throttling.
	IngestFramesPerSecond float64 `json:"ingest_frames_per_second" env:"INGEST_MAX_FPS" default:"10"`
}

// Load reads the .env file if present and builds the configuration from the environment
func Load(logger *logrus.Logger) (*Config, error) {
	loadDotEnv(logger)

	config := &Config{}

	if err := loadHTTPConfig(logger, &config.HTTP); err != nil {
		return nil, errors.Wrap(err, "failed to load HTTP configuration")
	}
	if err := loadLoggingConfig(logger, &config.Logging); err != nil {
		return nil, errors.Wrap(err, "failed to load logging configuration")
	}
	if err := loadMonitorConfig(logger, &config.Monitor); err != nil {
		return nil, errors.Wrap(err, "failed to load monitor configuration")
	}
	if err := loadJudgmentConfig(logger, &config.Judgment); err != nil {
		return nil, errors.Wrap(err, "failed to load judgment configuration")
	}
	if err := loadCircuitBreakerConfig(logger, &config.CircuitBreaker); err != nil {
		return nil, errors.Wrap(err, "failed to load circuit breaker configuration")
	}
	if err := loadAlertingConfig(logger, &config.Alerting); err != nil {
		return nil, errors.Wrap(err, "failed to load alerting configuration")
	}
	if err := loadMessagingConfig(logger, &config.Messaging); err != nil {
		return nil, errors.Wrap(err, "failed to load messaging configuration")
	}
	if err := loadStorageConfig(logger, &config.Storage); err != nil {
		return nil, errors.Wrap(err, "failed to load storage configuration")
	}
	if err := loadSTTConfig(logger, &config.STT); err != nil {
		return nil, errors.Wrap(err, "failed to load STT configuration")
	}

	if err := loadRateLimitConfig(logger, &config.RateLimit); err != nil {
		return nil, errors.Wrap(err, "failed to load rate limit configuration")
	}

	if err := validateConfig(logger, config); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	return config, nil
}

func loadDotEnv(logger *logrus.Logger) {
	wd, err := os.Getwd()
	if err != nil {
		logger.WithError(err).Warn("Failed to get current working directory")
		wd = "unknown"
	}

	possibleEnvFiles := []string{
		".env",
		"../.env",
		filepath.Join(wd, ".env"),
	}

	var loadedFrom string
	for _, envFile := range possibleEnvFiles {
		if _, statErr := os.Stat(envFile); statErr != nil {
			continue
		}
		absPath, _ := filepath.Abs(envFile)
		logger.WithField("path", absPath).Debug("Attempting to load .env file")
		if loadErr := godotenv.Load(envFile); loadErr == nil {
			loadedFrom = absPath
			break
		}
	}

	if loadedFrom != "" {
		logger.WithFields(logrus.Fields{
			"working_dir": wd,
			"path":        loadedFrom,
		}).Info("Successfully loaded .env file")
	} else {
		logger.WithField("working_dir", wd).Debug("No .env file found, using environment variables only")
	}
}

func loadHTTPConfig(logger *logrus.Logger, config *HTTPConfig) error {
	port := getEnvInt("HTTP_PORT", 8080)
	if port < 1 || port > 65535 {
		logger.Warn("Invalid HTTP_PORT value, using default: 8080")
		port = 8080
	}
	config.Port = port

	config.EnableMetrics = getEnvBool("HTTP_ENABLE_METRICS", true)
	config.ReadTimeout = getEnvDurationLogged(logger, "HTTP_READ_TIMEOUT", 10*time.Second)
	config.WriteTimeout = getEnvDurationLogged(logger, "HTTP_WRITE_TIMEOUT", 30*time.Second)
	config.AllowedOrigins = getEnvList("HTTP_ALLOWED_ORIGINS")

	return nil
}

func loadLoggingConfig(logger *logrus.Logger, config *LoggingConfig) error {
	config.Level = getEnv("LOG_LEVEL", "info")
	if _, err := logrus.ParseLevel(config.Level); err != nil {
		logger.Warnf("Invalid LOG_LEVEL '%s', defaulting to 'info'", config.Level)
		config.Level = "info"
	}

	config.Format = getEnv("LOG_FORMAT", "json")
	if config.Format != "json" && config.Format != "text" {
		logger.Warn("Invalid LOG_FORMAT, must be 'json' or 'text', defaulting to 'json'")
		config.Format = "json"
	}

	config.OutputFile = getEnv("LOG_OUTPUT_FILE", "")
	return nil
}

func loadMonitorConfig(logger *logrus.Logger, config *MonitorConfig) error {
	config.DefaultMode = strings.ToLower(getEnv("MONITOR_ANALYSIS_MODE", "normal"))
	if !isValidMode(config.DefaultMode) {
		logger.Warnf("Invalid MONITOR_ANALYSIS_MODE '%s', defaulting to 'normal'", config.DefaultMode)
		config.DefaultMode = "normal"
	}

	config.PerceptionInterval = getEnvDurationLogged(logger, "MONITOR_PERCEPTION_INTERVAL", 100*time.Millisecond)
	if config.PerceptionInterval < 100*time.Millisecond {
		logger.WithField("interval", config.PerceptionInterval).Warn("MONITOR_PERCEPTION_INTERVAL below 100ms, raising to 100ms")
		config.PerceptionInterval = 100 * time.Millisecond
	}

	config.SnapshotWidth = getEnvInt("MONITOR_SNAPSHOT_WIDTH", 640)
	config.SnapshotHeight = getEnvInt("MONITOR_SNAPSHOT_HEIGHT", 480)
	if config.SnapshotWidth <= 0 || config.SnapshotHeight <= 0 {
		logger.Warn("Invalid snapshot resolution, using default: 640x480")
		config.SnapshotWidth, config.SnapshotHeight = 640, 480
	}

	config.JPEGQuality = getEnvInt("MONITOR_JPEG_QUALITY", 80)
	if config.JPEGQuality < 1 || config.JPEGQuality > 100 {
		logger.Warn("Invalid MONITOR_JPEG_QUALITY value, using default: 80")
		config.JPEGQuality = 80
	}

	config.RequireAudio = getEnvBool("MONITOR_REQUIRE_AUDIO", true)
	config.RecorderMaxBytes = getEnvInt("MONITOR_RECORDER_MAX_BYTES", 256<<20)
	config.RecorderQueueSize = getEnvInt("MONITOR_RECORDER_QUEUE_SIZE", 256)
	config.MaxMonitors = getEnvInt("MONITOR_MAX_MONITORS", 100)

	return nil
}

func loadJudgmentConfig(logger *logrus.Logger, config *JudgmentConfig) error {
	config.Endpoint = strings.TrimRight(getEnv("JUDGMENT_ENDPOINT", "https://api.openai.com/v1"), "/")
	config.APIKey = getEnv("JUDGMENT_API_KEY", "")
	config.Model = getEnv("JUDGMENT_MODEL", "gpt-4o-mini")
	config.Timeout = getEnvDurationLogged(logger, "JUDGMENT_TIMEOUT", 30*time.Second)
	config.MaxTokens = getEnvInt("JUDGMENT_MAX_TOKENS", 512)
	config.Temperature = getEnvFloat("JUDGMENT_TEMPERATURE", 0.2)
	config.IncludePerception = getEnvBool("JUDGMENT_INCLUDE_PERCEPTION", true)
	config.RedactPII = getEnvBool("JUDGMENT_REDACT_PII", true)

	if config.APIKey == "" {
		logger.Warn("JUDGMENT_API_KEY is not set; requests to the judgment service will be unauthenticated")
	}
	return nil
}

func loadCircuitBreakerConfig(logger *logrus.Logger, config *CircuitBreakerConfig) error {
	config.Enabled = getEnvBool("CIRCUIT_BREAKER_ENABLED", true)
	config.FailureThreshold = int64(getEnvInt("JUDGMENT_CB_FAILURE_THRESHOLD", 5))
	config.Timeout = getEnvDurationLogged(logger, "JUDGMENT_CB_TIMEOUT", 30*time.Second)
	config.RequestTimeout = getEnvDurationLogged(logger, "JUDGMENT_CB_REQUEST_TIMEOUT", 45*time.Second)
	return nil
}

func loadAlertingConfig(logger *logrus.Logger, config *AlertingConfig) error {
	config.Enabled = getEnvBool("ALERTING_ENABLED", false)
	config.SlackWebhookURL = getEnv("ALERT_SLACK_WEBHOOK_URL", "")
	config.SlackChannel = getEnv("ALERT_SLACK_CHANNEL", "")
	config.WebhookURL = getEnv("ALERT_WEBHOOK_URL", "")
	config.WebhookHeaders = getEnvList("ALERT_WEBHOOK_HEADERS")
	config.Timeout = getEnvDurationLogged(logger, "ALERT_TIMEOUT", 10*time.Second)

	if config.Enabled && config.SlackWebhookURL == "" && config.WebhookURL == "" {
		logger.Warn("Alerting is enabled but no alert channels are configured - escalations will only be shown in the UI")
	}
	return nil
}

func loadMessagingConfig(logger *logrus.Logger, config *MessagingConfig) error {
	config.AMQPUrl = getEnv("AMQP_URL", "")
	config.Exchange = getEnv("AMQP_EXCHANGE", "interview.monitor")
	config.QueueName = getEnv("AMQP_QUEUE_NAME", "interview-monitor-events")
	config.MessageTTL = getEnvDurationLogged(logger, "AMQP_MESSAGE_TTL", 24*time.Hour)
	config.ConnectTimeout = getEnvDurationLogged(logger, "AMQP_CONNECT_TIMEOUT", 10*time.Second)
	return nil
}

func loadStorageConfig(logger *logrus.Logger, config *StorageConfig) error {
	config.RedisEnabled = getEnvBool("REDIS_ENABLED", false)
	config.RedisAddress = getEnv("REDIS_ADDRESS", "localhost:6379")
	config.RedisPassword = getEnv("REDIS_PASSWORD", "")
	config.RedisDatabase = getEnvInt("REDIS_DATABASE", 0)
	config.KeyPrefix = getEnv("REDIS_KEY_PREFIX", "interview-monitor:session:")
	config.SessionTTL = getEnvDurationLogged(logger, "REDIS_SESSION_TTL", 7*24*time.Hour)
	return nil
}

func loadRateLimitConfig(logger *logrus.Logger, config *RateLimitConfig) error {
	config.Enabled = getEnvBool("RATE_LIMIT_ENABLED", false)
	config.RequestsPerSecond = getEnvFloat("RATE_LIMIT_RPS", 20)
	config.BurstSize = getEnvInt("RATE_LIMIT_BURST", 40)
	config.BlockDuration = getEnvDurationLogged(logger, "RATE_LIMIT_BLOCK_DURATION", time.Minute)
	config.WhitelistedIPs = getEnvList("RATE_LIMIT_WHITELIST_IPS")
	config.IngestFramesPerSecond = getEnvFloat("INGEST_MAX_FPS", 10)
	return nil
}

func loadSTTConfig(logger *logrus.Logger, config *STTConfig) error {
	config.Provider = strings.ToLower(getEnv("STT_PROVIDER", "none"))
	config.Language = getEnv("STT_LANGUAGE", "en-US")
	config.SampleRate = getEnvInt("STT_SAMPLE_RATE", 16000)

	config.Google.CredentialsFile = getEnv("GOOGLE_APPLICATION_CREDENTIALS", "")
	config.Google.APIKey = getEnv("GOOGLE_STT_API_KEY", "")
	config.Google.Model = getEnv("GOOGLE_STT_MODEL", "latest_long")
	config.Google.EnableAutomaticPunctuation = getEnvBool("GOOGLE_STT_AUTO_PUNCTUATION", true)

	config.Amazon.AccessKeyID = getEnv("AWS_ACCESS_KEY_ID", "")
	config.Amazon.SecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", "")
	config.Amazon.Region = getEnv("AWS_REGION", "us-east-1")
	config.Amazon.VocabularyName = getEnv("AMAZON_STT_VOCABULARY", "")

	switch config.Provider {
	case "google":
		if config.Google.CredentialsFile == "" && config.Google.APIKey == "" {
			logger.Warn("Google STT selected but neither GOOGLE_APPLICATION_CREDENTIALS nor GOOGLE_STT_API_KEY is set")
		}
	case "amazon":
		if config.Amazon.AccessKeyID == "" || config.Amazon.SecretAccessKey == "" {
			logger.Warn("Amazon STT selected but AWS_ACCESS_KEY_ID or AWS_SECRET_ACCESS_KEY is not set; using default credential chain")
		}
	}
	return nil
}

// ApplyLogging applies the logging section to the logger
func (c *Config) ApplyLogging(logger *logrus.Logger) error {
	level, err := logrus.ParseLevel(c.Logging.Level)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("invalid log level: %s", c.Logging.Level))
	}
	logger.SetLevel(level)

	if c.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339Nano,
		})
	}

	if c.Logging.OutputFile != "" {
		f, err := os.OpenFile(c.Logging.OutputFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("failed to open log file: %s", c.Logging.OutputFile))
		}
		logger.SetOutput(f)
	} else {
		logger.SetOutput(os.Stdout)
	}

	return nil
}

func isValidMode(mode string) bool {
	switch mode {
	case "demo", "normal", "conservative":
		return true
	}
	return false
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	switch strings.ToLower(value) {
	case "true", "yes", "1", "on":
		return true
	case "false", "no", "0", "off":
		return false
	default:
		return defaultValue
	}
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}

// getEnvDurationLogged is getEnvDuration with a warning on unparseable values
func getEnvDurationLogged(logger *logrus.Logger, key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	if _, err := time.ParseDuration(raw); err != nil {
		logger.Warnf("Invalid %s value '%s', using default: %s", key, raw, defaultValue)
	}
	return getEnvDuration(key, defaultValue)
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return floatValue
}

// getEnvList splits a comma separated variable, dropping empty items
func getEnvList(key string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
