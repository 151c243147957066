package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"interview-monitor/pkg/errors"

	"github.com/sirupsen/logrus"
)

// ConfigValidator collects validation errors and warnings for a Config
type ConfigValidator struct {
	logger   *logrus.Logger
	errors   []ValidationError
	warnings []ValidationWarning
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string      `json:"field"`
	Value   interface{} `json:"value"`
	Rule    string      `json:"rule"`
	Message string      `json:"message"`
}

// ValidationWarning represents a configuration validation warning
type ValidationWarning struct {
	Field      string      `json:"field"`
	Value      interface{} `json:"value"`
	Message    string      `json:"message"`
	Suggestion string      `json:"suggestion,omitempty"`
}

// ValidationResult represents the result of configuration validation
type ValidationResult struct {
	Valid    bool                `json:"valid"`
	Errors   []ValidationError   `json:"errors,omitempty"`
	Warnings []ValidationWarning `json:"warnings,omitempty"`
	Summary  string              `json:"summary"`
}

// NewConfigValidator creates a new configuration validator
func NewConfigValidator(logger *logrus.Logger) *ConfigValidator {
	return &ConfigValidator{logger: logger}
}

// ValidateConfig validates the entire configuration
func (v *ConfigValidator) ValidateConfig(config *Config) *ValidationResult {
	v.errors = nil
	v.warnings = nil

	v.validateHTTPConfig(config)
	v.validateMonitorConfig(config)
	v.validateJudgmentConfig(config)
	v.validateAlertingConfig(config)
	v.validateMessagingConfig(config)
	v.validateSTTConfig(config)
	v.validateLoggingConfig(config)
	v.validateRateLimitConfig(config)

	result := &ValidationResult{
		Valid:    len(v.errors) == 0,
		Errors:   v.errors,
		Warnings: v.warnings,
		Summary:  v.generateSummary(),
	}

	for _, err := range v.errors {
		v.logger.WithFields(logrus.Fields{
			"field": err.Field,
			"value": err.Value,
			"rule":  err.Rule,
		}).Error(err.Message)
	}
	for _, warning := range v.warnings {
		v.logger.WithFields(logrus.Fields{
			"field": warning.Field,
			"value": warning.Value,
		}).Warning(warning.Message)
	}

	return result
}

func (v *ConfigValidator) validateHTTPConfig(config *Config) {
	if config.HTTP.Port <= 0 || config.HTTP.Port > 65535 {
		v.addError("http_port", config.HTTP.Port, "range", "Invalid HTTP port")
	}
	if config.HTTP.ReadTimeout <= 0 {
		v.addError("http_read_timeout", config.HTTP.ReadTimeout, "positive", "HTTP read timeout must be positive")
	}
	if len(config.HTTP.AllowedOrigins) == 0 {
		v.addWarning("http_allowed_origins", nil, "Websocket origin check disabled", "Set HTTP_ALLOWED_ORIGINS in production")
	}
}

func (v *ConfigValidator) validateMonitorConfig(config *Config) {
	if !isValidMode(config.Monitor.DefaultMode) {
		v.addError("monitor_analysis_mode", config.Monitor.DefaultMode, "supported", "Analysis mode must be demo, normal or conservative")
	}
	if config.Monitor.DefaultMode == "demo" {
		v.addWarning("monitor_analysis_mode", config.Monitor.DefaultMode, "Demo mode issues a judgment request every 500ms", "Use normal or conservative outside demonstrations")
	}
	if config.Monitor.RecorderMaxBytes <= 0 {
		v.addError("monitor_recorder_max_bytes", config.Monitor.RecorderMaxBytes, "positive", "Recorder byte cap must be positive")
	}
	if config.Monitor.RecorderQueueSize <= 0 {
		v.addError("monitor_recorder_queue_size", config.Monitor.RecorderQueueSize, "positive", "Recorder queue size must be positive")
	}
	if config.Monitor.MaxMonitors <= 0 {
		v.addError("monitor_max_monitors", config.Monitor.MaxMonitors, "positive", "Monitor limit must be positive")
	}
}

func (v *ConfigValidator) validateJudgmentConfig(config *Config) {
	if !v.isValidURL(config.Judgment.Endpoint) {
		v.addError("judgment_endpoint", config.Judgment.Endpoint, "format", "Judgment endpoint must be an http(s) URL")
	}
	if strings.TrimSpace(config.Judgment.Model) == "" {
		v.addError("judgment_model", config.Judgment.Model, "required", "Judgment model must be set")
	}
	if config.Judgment.Timeout <= 0 {
		v.addError("judgment_timeout", config.Judgment.Timeout, "positive", "Judgment timeout must be positive")
	}
}

func (v *ConfigValidator) validateAlertingConfig(config *Config) {
	if !config.Alerting.Enabled {
		return
	}
	if config.Alerting.SlackWebhookURL != "" && !v.isValidURL(config.Alerting.SlackWebhookURL) {
		v.addError("alert_slack_webhook_url", "<redacted>", "format", "Slack webhook must be an http(s) URL")
	}
	if config.Alerting.WebhookURL != "" && !v.isValidURL(config.Alerting.WebhookURL) {
		v.addError("alert_webhook_url", config.Alerting.WebhookURL, "format", "Alert webhook must be an http(s) URL")
	}
	for _, header := range config.Alerting.WebhookHeaders {
		if !strings.Contains(header, ":") {
			v.addError("alert_webhook_headers", header, "format", "Webhook headers must be Name:Value pairs")
		}
	}
}

func (v *ConfigValidator) validateMessagingConfig(config *Config) {
	if config.Messaging.AMQPUrl == "" {
		return
	}
	u, err := url.Parse(config.Messaging.AMQPUrl)
	if err != nil || (u.Scheme != "amqp" && u.Scheme != "amqps") {
		v.addError("amqp_url", "<redacted>", "format", "AMQP URL must use amqp:// or amqps://")
	}
}

func (v *ConfigValidator) validateSTTConfig(config *Config) {
	validProviders := []string{"none", "mock", "google", "amazon"}
	if !v.contains(validProviders, config.STT.Provider) {
		v.addError("stt_provider", config.STT.Provider, "supported", fmt.Sprintf("Unsupported STT provider %s", config.STT.Provider))
	}
	if config.STT.Provider == "google" && config.STT.Google.CredentialsFile != "" && !v.fileExists(config.STT.Google.CredentialsFile) {
		v.addError("google_credentials_file", config.STT.Google.CredentialsFile, "exists", "Google credentials file not found")
	}
	if config.STT.SampleRate <= 0 {
		v.addError("stt_sample_rate", config.STT.SampleRate, "positive", "STT sample rate must be positive")
	}
}

func (v *ConfigValidator) validateRateLimitConfig(config *Config) {
	rl := config.RateLimit
	if rl.IngestFramesPerSecond < 0 {
		v.addError("ingest_max_fps", rl.IngestFramesPerSecond, "min", "Ingest frame rate cannot be negative")
	}
	if !rl.Enabled {
		return
	}
	if rl.RequestsPerSecond <= 0 {
		v.addError("rate_limit_rps", rl.RequestsPerSecond, "min", "Rate limit must allow at least some requests per second")
	}
	if rl.BurstSize < 1 {
		v.addError("rate_limit_burst", rl.BurstSize, "min", "Rate limit burst must be at least 1")
	}
}

func (v *ConfigValidator) validateLoggingConfig(config *Config) {
	if config.Logging.OutputFile != "" {
		logDir := filepath.Dir(config.Logging.OutputFile)
		if !v.directoryExists(logDir) {
			v.addWarning("log_file", config.Logging.OutputFile, "Log directory does not exist", "Create the directory before starting")
		}
	}
}

func (v *ConfigValidator) isValidURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func (v *ConfigValidator) fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func (v *ConfigValidator) directoryExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (v *ConfigValidator) contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func (v *ConfigValidator) addError(field string, value interface{}, rule, message string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Value:   value,
		Rule:    rule,
		Message: message,
	})
}

func (v *ConfigValidator) addWarning(field string, value interface{}, message, suggestion string) {
	v.warnings = append(v.warnings, ValidationWarning{
		Field:      field,
		Value:      value,
		Message:    message,
		Suggestion: suggestion,
	})
}

func (v *ConfigValidator) generateSummary() string {
	if len(v.errors) == 0 && len(v.warnings) == 0 {
		return "Configuration validation passed successfully"
	}

	summary := ""
	if len(v.errors) > 0 {
		summary += fmt.Sprintf("%d validation error(s)", len(v.errors))
	}
	if len(v.warnings) > 0 {
		if summary != "" {
			summary += " and "
		}
		summary += fmt.Sprintf("%d warning(s)", len(v.warnings))
	}
	return summary + " found"
}

// validateConfig fails Load when the validator reports errors
func validateConfig(logger *logrus.Logger, config *Config) error {
	result := NewConfigValidator(logger).ValidateConfig(config)
	if result.Valid {
		return nil
	}

	first := result.Errors[0]
	return errors.NewInvalidInput(fmt.Sprintf("%s: %s", result.Summary, first.Message), map[string]interface{}{
		"field": first.Field,
		"rule":  first.Rule,
	})
}
