package config

import (
	"strings"
	"testing"
)

func validConfig() *AgentConfig {
	return &AgentConfig{
		Name:    "test-agent",
		Version: "v1",
		Origin:  "https://app.example",
	}
}

func TestValidator_ValidateMinimal(t *testing.T) {
	v := NewValidator()
	if errs := v.Validate(validConfig()); errs.HasErrors() {
		t.Errorf("expected no errors, got: %v", errs)
	}
}

func TestValidator_ValidateRequired(t *testing.T) {
	tests := []struct {
		name         string
		config       *AgentConfig
		wantErrPaths []string
	}{
		{
			name:         "missing everything",
			config:       &AgentConfig{},
			wantErrPaths: []string{"name", "version", "origin"},
		},
		{
			name:         "version with whitespace",
			config:       &AgentConfig{Name: "a", Version: "v 1", Origin: "https://a.example"},
			wantErrPaths: []string{"version"},
		},
		{
			name:         "relative origin",
			config:       &AgentConfig{Name: "a", Version: "v1", Origin: "/app"},
			wantErrPaths: []string{"origin"},
		},
		{
			name:         "non-http origin",
			config:       &AgentConfig{Name: "a", Version: "v1", Origin: "ftp://a.example"},
			wantErrPaths: []string{"origin"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := NewValidator().Validate(tt.config)
			if !errs.HasErrors() {
				t.Fatal("expected errors, got none")
			}
			assertErrorPaths(t, errs, tt.wantErrPaths)
		})
	}
}

func TestValidator_ValidateSections(t *testing.T) {
	tests := []struct {
		name         string
		mutate       func(*AgentConfig)
		wantErrPaths []string
	}{
		{
			name:         "duplicate manifest entry",
			mutate:       func(c *AgentConfig) { c.Manifest = []string{"/a.css", "/a.css"} },
			wantErrPaths: []string{"manifest[1]"},
		},
		{
			name:         "empty manifest entry",
			mutate:       func(c *AgentConfig) { c.Manifest = []string{" "} },
			wantErrPaths: []string{"manifest[0]"},
		},
		{
			name:         "api prefix without slash",
			mutate:       func(c *AgentConfig) { c.Classifier.APIPrefixes = []string{"api"} },
			wantErrPaths: []string{"classifier.api_prefixes[0]"},
		},
		{
			name:         "unknown backend",
			mutate:       func(c *AgentConfig) { c.Storage.Backend = "etcd" },
			wantErrPaths: []string{"storage.backend"},
		},
		{
			name:         "badger without dir",
			mutate:       func(c *AgentConfig) { c.Storage.Backend = BackendBadger },
			wantErrPaths: []string{"storage.dir"},
		},
		{
			name:         "sqlite without dsn",
			mutate:       func(c *AgentConfig) { c.Storage.Backend = BackendSQLite },
			wantErrPaths: []string{"storage.dsn"},
		},
		{
			name:         "redis without address",
			mutate:       func(c *AgentConfig) { c.Storage.Backend = BackendRedis; c.Storage.Dir = "data" },
			wantErrPaths: []string{"storage.redis.address"},
		},
		{
			name: "retry enabled without attempts",
			mutate: func(c *AgentConfig) {
				c.Network.Retry = RetryConfig{Enabled: true, Multiplier: 2}
			},
			wantErrPaths: []string{"network.retry.max_attempts"},
		},
		{
			name: "breaker enabled without threshold",
			mutate: func(c *AgentConfig) {
				c.Network.CircuitBreaker = CircuitBreakerConfig{Enabled: true}
			},
			wantErrPaths: []string{"network.circuit_breaker.threshold"},
		},
		{
			name: "bulkhead enabled without limit",
			mutate: func(c *AgentConfig) {
				c.Network.Bulkhead = BulkheadConfig{Enabled: true}
			},
			wantErrPaths: []string{"network.bulkhead.max_concurrent"},
		},
		{
			name:         "replay rate without burst",
			mutate:       func(c *AgentConfig) { c.Replay.Rate = 10 },
			wantErrPaths: []string{"replay.burst"},
		},
		{
			name:         "notification without url",
			mutate:       func(c *AgentConfig) { c.Notification.Enabled = true },
			wantErrPaths: []string{"notification.endpoint.url"},
		},
		{
			name:         "bad log level",
			mutate:       func(c *AgentConfig) { c.Logging.Level = "loud" },
			wantErrPaths: []string{"logging.level"},
		},
		{
			name: "otlp without endpoint",
			mutate: func(c *AgentConfig) {
				c.Telemetry = TelemetryConfig{Enabled: true, Metrics: "otlp", SampleRate: 1}
			},
			wantErrPaths: []string{"telemetry.endpoint"},
		},
		{
			name: "unknown metric exporter",
			mutate: func(c *AgentConfig) {
				c.Telemetry = TelemetryConfig{Enabled: true, Metrics: "statsd"}
			},
			wantErrPaths: []string{"telemetry.metrics"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			errs := NewValidator().Validate(cfg)
			if !errs.HasErrors() {
				t.Fatal("expected errors, got none")
			}
			assertErrorPaths(t, errs, tt.wantErrPaths)
		})
	}
}

func TestValidator_DisabledSectionsSkipped(t *testing.T) {
	cfg := validConfig()
	cfg.Notification.Endpoint.URL = "not a url"
	cfg.Telemetry.Metrics = "statsd"

	if errs := NewValidator().Validate(cfg); errs.HasErrors() {
		t.Errorf("disabled sections should not be validated, got %v", errs)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	errs := ValidationErrors{
		{Path: "name", Message: "name is required"},
		{Path: "origin", Message: "origin is required"},
	}

	msg := errs.Error()
	if !strings.Contains(msg, "2 validation errors") {
		t.Errorf("Error() = %q, want count", msg)
	}
	if !strings.Contains(msg, "origin: origin is required") {
		t.Errorf("Error() = %q, want path prefix", msg)
	}

	if got := (ValidationErrors{{Message: "bare"}}).Error(); got != "bare" {
		t.Errorf("single Error() = %q, want bare", got)
	}
}

func assertErrorPaths(t *testing.T, errs ValidationErrors, wantPaths []string) {
	t.Helper()

	paths := make(map[string]bool)
	for _, err := range errs {
		paths[err.Path] = true
	}

	for _, want := range wantPaths {
		if !paths[want] {
			t.Errorf("expected error at path %q, got %v", want, errs)
		}
	}
}
