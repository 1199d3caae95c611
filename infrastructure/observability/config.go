// Package observability sets up OpenTelemetry trace and metric export.
package observability

import (
	"time"

	domainconfig "github.com/felixgeelhaar/offline-agent/domain/config"
)

// Config configures the observability infrastructure.
type Config struct {
	// ServiceName is the name of the service for telemetry.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// Tracing configures distributed tracing.
	Tracing TracingConfig

	// Metrics configures metrics collection.
	Metrics MetricsConfig
}

// TracingConfig configures distributed tracing.
type TracingConfig struct {
	// Exporter specifies the trace exporter type.
	Exporter ExporterType

	// Endpoint is the OTLP endpoint (e.g., "localhost:4317").
	Endpoint string

	// Insecure disables TLS for the exporter connection.
	Insecure bool

	// SampleRate is the sampling rate (0.0-1.0).
	SampleRate float64

	// BatchTimeout is the batch export timeout.
	BatchTimeout time.Duration
}

// MetricsConfig configures metrics collection.
type MetricsConfig struct {
	// Exporter specifies the metrics exporter type.
	Exporter ExporterType

	// Endpoint is the OTLP endpoint (e.g., "localhost:4317").
	Endpoint string

	// Insecure disables TLS for the exporter connection.
	Insecure bool

	// ExportInterval is the push interval for periodic exporters.
	ExportInterval time.Duration
}

// ExporterType specifies the telemetry exporter.
type ExporterType string

const (
	// ExporterOTLP exports to an OTLP gRPC collector.
	ExporterOTLP ExporterType = "otlp"

	// ExporterStdout exports to stdout (useful for development).
	ExporterStdout ExporterType = "stdout"

	// ExporterPrometheus exposes metrics for scraping. Metrics only.
	ExporterPrometheus ExporterType = "prometheus"

	// ExporterNone disables export.
	ExporterNone ExporterType = "none"
)

// DefaultConfig returns a configuration with export disabled.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "offline-agent",
		ServiceVersion: "dev",
		Tracing: TracingConfig{
			Exporter:     ExporterNone,
			SampleRate:   1.0,
			BatchTimeout: 5 * time.Second,
		},
		Metrics: MetricsConfig{
			Exporter:       ExporterNone,
			ExportInterval: 30 * time.Second,
		},
	}
}

// FromTelemetry maps the agent's telemetry settings onto a Config.
// OTLP connections are plaintext; collectors run as local sidecars.
func FromTelemetry(t domainconfig.TelemetryConfig, serviceVersion string) Config {
	cfg := DefaultConfig()
	if serviceVersion != "" {
		cfg.ServiceVersion = serviceVersion
	}
	if t.ServiceName != "" {
		cfg.ServiceName = t.ServiceName
	}
	if !t.Enabled {
		return cfg
	}

	if t.Traces != "" {
		cfg.Tracing.Exporter = ExporterType(t.Traces)
	}
	cfg.Tracing.Endpoint = t.Endpoint
	cfg.Tracing.Insecure = true
	cfg.Tracing.SampleRate = t.SampleRate

	if t.Metrics != "" {
		cfg.Metrics.Exporter = ExporterType(t.Metrics)
	}
	cfg.Metrics.Endpoint = t.Endpoint
	cfg.Metrics.Insecure = true
	return cfg
}

// Option configures the observability infrastructure.
type Option func(*Config)

// WithServiceName sets the service name.
func WithServiceName(name string) Option {
	return func(c *Config) {
		c.ServiceName = name
	}
}

// WithServiceVersion sets the service version.
func WithServiceVersion(version string) Option {
	return func(c *Config) {
		c.ServiceVersion = version
	}
}

// WithTracing enables tracing with the specified exporter.
func WithTracing(exporter ExporterType, endpoint string) Option {
	return func(c *Config) {
		c.Tracing.Exporter = exporter
		c.Tracing.Endpoint = endpoint
	}
}

// WithSampleRate sets the trace sampling rate.
func WithSampleRate(rate float64) Option {
	return func(c *Config) {
		c.Tracing.SampleRate = rate
	}
}

// WithMetrics enables metrics with the specified exporter.
func WithMetrics(exporter ExporterType, endpoint string) Option {
	return func(c *Config) {
		c.Metrics.Exporter = exporter
		c.Metrics.Endpoint = endpoint
	}
}

// WithMetricsInterval sets the metrics export interval.
func WithMetricsInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.Metrics.ExportInterval = interval
	}
}

// WithInsecure disables TLS for both OTLP exporters.
func WithInsecure() Option {
	return func(c *Config) {
		c.Tracing.Insecure = true
		c.Metrics.Insecure = true
	}
}
