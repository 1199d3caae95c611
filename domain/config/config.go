// Package config provides domain models for agent configuration.
package config

import "time"

// Storage backends.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// AgentConfig represents the complete agent configuration.
type AgentConfig struct {
	// Name is a human-readable name for this configuration.
	Name string `json:"name" yaml:"name"`
	// Version is the cache version tag the agent installs and activates.
	Version string `json:"version" yaml:"version"`
	// Description describes the deployment.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Origin is the base URL intercepted requests are forwarded to.
	Origin string `json:"origin" yaml:"origin"`
	// Manifest is the ordered list of static asset URLs installed per version.
	// Relative entries are resolved against Origin.
	Manifest []string `json:"manifest,omitempty" yaml:"manifest,omitempty"`

	// Classifier configures request classification.
	Classifier ClassifierConfig `json:"classifier,omitempty" yaml:"classifier,omitempty"`
	// Storage selects and configures the persistence backend.
	Storage StorageConfig `json:"storage,omitempty" yaml:"storage,omitempty"`
	// Network configures outbound fetches.
	Network NetworkConfig `json:"network,omitempty" yaml:"network,omitempty"`
	// Install configures version installs.
	Install InstallConfig `json:"install,omitempty" yaml:"install,omitempty"`
	// Replay configures deferred operation replay.
	Replay ReplayConfig `json:"replay,omitempty" yaml:"replay,omitempty"`
	// Notification configures push hand-off.
	Notification NotificationConfig `json:"notification,omitempty" yaml:"notification,omitempty"`
	// Logging configures the logger.
	Logging LoggingConfig `json:"logging,omitempty" yaml:"logging,omitempty"`
	// Telemetry configures tracing and metrics export.
	Telemetry TelemetryConfig `json:"telemetry,omitempty" yaml:"telemetry,omitempty"`
	// Server configures the HTTP surface.
	Server ServerConfig `json:"server,omitempty" yaml:"server,omitempty"`
}

// ClassifierConfig lists the patterns used to classify requests.
type ClassifierConfig struct {
	// StaticPatterns match static asset paths ("*.css", "/assets/", "/index.html").
	StaticPatterns []string `json:"static_patterns,omitempty" yaml:"static_patterns,omitempty"`
	// APIPrefixes match API data paths ("/api/").
	APIPrefixes []string `json:"api_prefixes,omitempty" yaml:"api_prefixes,omitempty"`
}

// StorageConfig selects the persistence backend for stores and the queue.
type StorageConfig struct {
	// Backend is one of memory, badger, sqlite, redis.
	Backend string `json:"backend,omitempty" yaml:"backend,omitempty"`
	// Dir is the badger data directory.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
	// DSN is the sqlite data source name.
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	// SyncWrites forces synchronous badger writes.
	SyncWrites bool `json:"sync_writes,omitempty" yaml:"sync_writes,omitempty"`
	// Redis configures the redis backend. The deferred queue is kept in
	// badger under Dir when redis holds the stores.
	Redis RedisConfig `json:"redis,omitempty" yaml:"redis,omitempty"`
	// DynamicMaxEntries bounds dynamic stores (memory backend only). Zero is unbounded.
	DynamicMaxEntries int `json:"dynamic_max_entries,omitempty" yaml:"dynamic_max_entries,omitempty"`
}

// RedisConfig configures the redis store backend.
type RedisConfig struct {
	Address   string `json:"address,omitempty" yaml:"address,omitempty"`
	Password  string `json:"password,omitempty" yaml:"password,omitempty"`
	DB        int    `json:"db,omitempty" yaml:"db,omitempty"`
	KeyPrefix string `json:"key_prefix,omitempty" yaml:"key_prefix,omitempty"`
}

// NetworkConfig contains outbound fetch settings.
type NetworkConfig struct {
	// Timeout bounds a single fetch.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// Retry configures retry behavior for idempotent fetches.
	Retry RetryConfig `json:"retry,omitempty" yaml:"retry,omitempty"`
	// CircuitBreaker configures circuit breaker behavior.
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker,omitempty" yaml:"circuit_breaker,omitempty"`
	// Bulkhead configures bulkhead behavior.
	Bulkhead BulkheadConfig `json:"bulkhead,omitempty" yaml:"bulkhead,omitempty"`
}

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// Enabled enables retry.
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	// MaxAttempts is the maximum retry attempts.
	MaxAttempts int `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
	// InitialDelay is the first retry delay.
	InitialDelay Duration `json:"initial_delay,omitempty" yaml:"initial_delay,omitempty"`
	// Multiplier is the backoff multiplier.
	Multiplier float64 `json:"multiplier,omitempty" yaml:"multiplier,omitempty"`
}

// CircuitBreakerConfig configures circuit breaker behavior.
type CircuitBreakerConfig struct {
	// Enabled enables circuit breaker.
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	// Threshold is consecutive failures before opening.
	Threshold int `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	// Timeout is how long the circuit stays open.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// BulkheadConfig configures bulkhead behavior.
type BulkheadConfig struct {
	// Enabled enables bulkhead.
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	// MaxConcurrent is the maximum concurrent fetches.
	MaxConcurrent int `json:"max_concurrent,omitempty" yaml:"max_concurrent,omitempty"`
}

// InstallConfig configures version installs.
type InstallConfig struct {
	// Concurrency bounds parallel manifest fetches.
	Concurrency int `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`
	// OnStart installs and activates Version at startup when it is not active.
	OnStart bool `json:"on_start,omitempty" yaml:"on_start,omitempty"`
}

// ReplayConfig configures deferred operation replay.
type ReplayConfig struct {
	// Rate is replays per second. Zero disables pacing.
	Rate int `json:"rate,omitempty" yaml:"rate,omitempty"`
	// Burst is the maximum replay burst.
	Burst int `json:"burst,omitempty" yaml:"burst,omitempty"`
	// Timeout bounds a single replay.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// NotificationConfig configures push hand-off.
type NotificationConfig struct {
	// Enabled sends pushes to Endpoint instead of only logging them.
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	// Endpoint is the presenter webhook.
	Endpoint EndpointConfig `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
}

// EndpointConfig configures a webhook endpoint.
type EndpointConfig struct {
	// Name is a human-readable name.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// URL is the webhook URL.
	URL string `json:"url" yaml:"url"`
	// Secret is the HMAC signing secret.
	Secret string `json:"secret,omitempty" yaml:"secret,omitempty"`
	// Headers are additional HTTP headers.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	// Level is trace, debug, info, warn or error.
	Level string `json:"level,omitempty" yaml:"level,omitempty"`
	// Format is json or console.
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// TelemetryConfig configures tracing and metrics export.
type TelemetryConfig struct {
	// Enabled turns on telemetry.
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	// ServiceName identifies the agent in telemetry backends.
	ServiceName string `json:"service_name,omitempty" yaml:"service_name,omitempty"`
	// Traces is the trace exporter: none, stdout or otlp.
	Traces string `json:"traces,omitempty" yaml:"traces,omitempty"`
	// Metrics is the metric exporter: none, stdout, otlp or prometheus.
	Metrics string `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	// Endpoint is the OTLP gRPC collector address.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	// SampleRate is the trace sampling ratio.
	SampleRate float64 `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	// Listen is the listen address.
	Listen string `json:"listen,omitempty" yaml:"listen,omitempty"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout Duration `json:"shutdown_timeout,omitempty" yaml:"shutdown_timeout,omitempty"`
}

// Default returns a configuration with sensible defaults. Name, Version and
// Origin are left for the operator.
func Default() AgentConfig {
	return AgentConfig{
		Classifier: ClassifierConfig{
			StaticPatterns: []string{"*.css", "*.js", "*.png", "*.svg", "*.woff2", "/index.html"},
			APIPrefixes:    []string{"/api/"},
		},
		Storage: StorageConfig{
			Backend:    BackendBadger,
			Dir:        ".offline-agent",
			SyncWrites: true,
		},
		Network: NetworkConfig{
			Timeout: Duration(10 * time.Second),
			Retry: RetryConfig{
				Enabled:      true,
				MaxAttempts:  3,
				InitialDelay: Duration(100 * time.Millisecond),
				Multiplier:   2,
			},
			// Opt-in: an open circuit answers NetworkFirst requests from
			// the cache even after the origin is reachable again.
			CircuitBreaker: CircuitBreakerConfig{
				Threshold: 5,
				Timeout:   Duration(30 * time.Second),
			},
			Bulkhead: BulkheadConfig{
				Enabled:       true,
				MaxConcurrent: 32,
			},
		},
		Install: InstallConfig{Concurrency: 4, OnStart: true},
		Replay:  ReplayConfig{Timeout: Duration(15 * time.Second)},
		Logging: LoggingConfig{Level: "info", Format: "console"},
		Telemetry: TelemetryConfig{
			ServiceName: "offline-agent",
			Traces:      "none",
			Metrics:     "none",
			SampleRate:  1.0,
		},
		Server: ServerConfig{
			Listen:          ":8080",
			ShutdownTimeout: Duration(10 * time.Second),
		},
	}
}

// Duration is a time.Duration that supports JSON/YAML string representation.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}

	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
