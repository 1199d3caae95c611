// Package api provides the public API for the offline agent.
// This file provides metrics and telemetry-related exports.
package api

import (
	"github.com/felixgeelhaar/offline-agent/infrastructure/observability"
	"github.com/felixgeelhaar/offline-agent/infrastructure/telemetry"
)

// Re-export telemetry types.
type (
	// MetricsProvider provides access to OpenTelemetry metrics instruments.
	MetricsProvider = telemetry.MetricsProvider

	// MetricsConfig configures the metrics provider.
	MetricsConfig = telemetry.MetricsConfig

	// ObservabilityProvider owns the trace and metric exporters.
	ObservabilityProvider = observability.Provider
)

// NewMetricsProvider creates a new OpenTelemetry metrics provider.
//
// The provider records metrics for:
//   - Requests by category, strategy, source and status
//   - Cache hits and misses per store kind
//   - Network failures and synthesized responses
//   - Deferred queue appends, replays and replay failures
//   - Version phase transitions and install durations
//   - Push hand-offs
//
// Example:
//
//	provider := api.NewMetricsProvider(api.DefaultMetricsConfig())
//	if err := provider.Error(); err != nil {
//	    log.Fatalf("failed to create metrics provider: %v", err)
//	}
func NewMetricsProvider(config MetricsConfig) *MetricsProvider {
	return telemetry.NewMetricsProvider(config)
}

// DefaultMetricsConfig returns the default metrics configuration.
func DefaultMetricsConfig() MetricsConfig {
	return telemetry.DefaultMetricsConfig()
}
