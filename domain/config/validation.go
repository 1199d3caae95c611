package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	// Path is the JSON path to the invalid field.
	Path string
	// Message describes the validation error.
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%d validation errors:\n  - %s", len(e), strings.Join(msgs, "\n  - "))
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates agent configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates the configuration and returns any errors.
func (v *Validator) Validate(config *AgentConfig) ValidationErrors {
	v.errors = nil

	v.validateRequired(config)
	v.validateManifest(config)
	v.validateClassifier(config)
	v.validateStorage(config)
	v.validateNetwork(config)
	v.validateReplay(config)
	v.validateNotification(config)
	v.validateLogging(config)
	v.validateTelemetry(config)

	return v.errors
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}

func (v *Validator) validateRequired(config *AgentConfig) {
	if config.Name == "" {
		v.addError("name", "name is required")
	}
	if config.Version == "" {
		v.addError("version", "version is required")
	} else if strings.ContainsAny(config.Version, " \t\r\n") {
		v.addError("version", "version must not contain whitespace")
	}
	if config.Origin == "" {
		v.addError("origin", "origin is required")
	} else if !isHTTPURL(config.Origin) {
		v.addError("origin", fmt.Sprintf("origin must be an absolute http(s) URL: %s", config.Origin))
	}
}

func (v *Validator) validateManifest(config *AgentConfig) {
	seen := make(map[string]bool, len(config.Manifest))
	for i, entry := range config.Manifest {
		path := fmt.Sprintf("manifest[%d]", i)
		if strings.TrimSpace(entry) == "" {
			v.addError(path, "manifest entry must not be empty")
			continue
		}
		if seen[entry] {
			v.addError(path, fmt.Sprintf("duplicate manifest entry: %s", entry))
		}
		seen[entry] = true
	}
}

func (v *Validator) validateClassifier(config *AgentConfig) {
	for i, p := range config.Classifier.StaticPatterns {
		if p == "" {
			v.addError(fmt.Sprintf("classifier.static_patterns[%d]", i), "pattern must not be empty")
		}
	}
	for i, p := range config.Classifier.APIPrefixes {
		if !strings.HasPrefix(p, "/") {
			v.addError(fmt.Sprintf("classifier.api_prefixes[%d]", i), "prefix must start with /")
		}
	}
}

func (v *Validator) validateStorage(config *AgentConfig) {
	s := config.Storage
	switch s.Backend {
	case "", BackendMemory:
	case BackendBadger:
		if s.Dir == "" {
			v.addError("storage.dir", "dir is required for badger backend")
		}
	case BackendSQLite:
		if s.DSN == "" {
			v.addError("storage.dsn", "dsn is required for sqlite backend")
		}
	case BackendRedis:
		if s.Redis.Address == "" {
			v.addError("storage.redis.address", "address is required for redis backend")
		}
		if s.Dir == "" {
			v.addError("storage.dir", "dir is required for the redis backend queue")
		}
	default:
		v.addError("storage.backend", fmt.Sprintf("unknown backend: %s", s.Backend))
	}
	if s.DynamicMaxEntries < 0 {
		v.addError("storage.dynamic_max_entries", "dynamic_max_entries must be non-negative")
	}
}

func (v *Validator) validateNetwork(config *AgentConfig) {
	n := config.Network
	if n.Timeout < 0 {
		v.addError("network.timeout", "timeout must be non-negative")
	}

	if n.Retry.Enabled {
		if n.Retry.MaxAttempts <= 0 {
			v.addError("network.retry.max_attempts", "max_attempts must be positive when enabled")
		}
		if n.Retry.Multiplier < 1 {
			v.addError("network.retry.multiplier", "multiplier must be >= 1")
		}
	}

	if n.CircuitBreaker.Enabled && n.CircuitBreaker.Threshold <= 0 {
		v.addError("network.circuit_breaker.threshold", "threshold must be positive when enabled")
	}

	if n.Bulkhead.Enabled && n.Bulkhead.MaxConcurrent <= 0 {
		v.addError("network.bulkhead.max_concurrent", "max_concurrent must be positive when enabled")
	}

	if config.Install.Concurrency < 0 {
		v.addError("install.concurrency", "concurrency must be non-negative")
	}
}

func (v *Validator) validateReplay(config *AgentConfig) {
	r := config.Replay
	if r.Rate < 0 {
		v.addError("replay.rate", "rate must be non-negative")
	}
	if r.Rate > 0 && r.Burst <= 0 {
		v.addError("replay.burst", "burst must be positive when rate is set")
	}
	if r.Timeout < 0 {
		v.addError("replay.timeout", "timeout must be non-negative")
	}
}

func (v *Validator) validateNotification(config *AgentConfig) {
	if !config.Notification.Enabled {
		return
	}

	ep := config.Notification.Endpoint
	if ep.URL == "" {
		v.addError("notification.endpoint.url", "URL is required")
	} else if !isHTTPURL(ep.URL) {
		v.addError("notification.endpoint.url", fmt.Sprintf("invalid URL: %s", ep.URL))
	}
}

func (v *Validator) validateLogging(config *AgentConfig) {
	switch strings.ToLower(config.Logging.Level) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
	default:
		v.addError("logging.level", fmt.Sprintf("invalid level: %s", config.Logging.Level))
	}
	switch config.Logging.Format {
	case "", "json", "console":
	default:
		v.addError("logging.format", fmt.Sprintf("invalid format: %s", config.Logging.Format))
	}
}

func (v *Validator) validateTelemetry(config *AgentConfig) {
	t := config.Telemetry
	if !t.Enabled {
		return
	}

	switch t.Traces {
	case "", "none", "stdout", "otlp":
	default:
		v.addError("telemetry.traces", fmt.Sprintf("unknown trace exporter: %s", t.Traces))
	}
	switch t.Metrics {
	case "", "none", "stdout", "otlp", "prometheus":
	default:
		v.addError("telemetry.metrics", fmt.Sprintf("unknown metric exporter: %s", t.Metrics))
	}
	if (t.Traces == "otlp" || t.Metrics == "otlp") && t.Endpoint == "" {
		v.addError("telemetry.endpoint", "endpoint is required for otlp export")
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		v.addError("telemetry.sample_rate", "sample_rate must be between 0 and 1")
	}
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
