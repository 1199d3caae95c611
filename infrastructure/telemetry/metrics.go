// Package telemetry provides the OpenTelemetry metric instruments recorded
// by the agent.
package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsProvider provides access to metrics instruments.
type MetricsProvider struct {
	meter metric.Meter

	// Counters
	requests          metric.Int64Counter
	cacheHits         metric.Int64Counter
	cacheMisses       metric.Int64Counter
	networkFailures   metric.Int64Counter
	synthesized       metric.Int64Counter
	storeWriteFailure metric.Int64Counter
	queueAppended     metric.Int64Counter
	queueReplayed     metric.Int64Counter
	replayFailures    metric.Int64Counter
	transitions       metric.Int64Counter
	pushes            metric.Int64Counter

	// Histograms
	requestDuration metric.Float64Histogram
	installDuration metric.Float64Histogram

	initErr error
}

// MetricsConfig configures the metrics provider.
type MetricsConfig struct {
	// MeterName is the name of the meter.
	MeterName string
	// MeterVersion is the version of the meter.
	MeterVersion string
	// MeterProvider overrides the global provider.
	MeterProvider metric.MeterProvider
}

// DefaultMetricsConfig returns a default metrics configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		MeterName:    "github.com/felixgeelhaar/offline-agent",
		MeterVersion: "1.0.0",
	}
}

// NewMetricsProvider creates a new metrics provider. Instruments are bound
// to the global meter provider unless config names one.
func NewMetricsProvider(config MetricsConfig) *MetricsProvider {
	if config.MeterName == "" {
		config.MeterName = DefaultMetricsConfig().MeterName
	}
	provider := config.MeterProvider
	if provider == nil {
		provider = otel.GetMeterProvider()
	}

	mp := &MetricsProvider{
		meter: provider.Meter(config.MeterName, metric.WithInstrumentationVersion(config.MeterVersion)),
	}
	mp.initErr = mp.initInstruments()
	return mp
}

func (mp *MetricsProvider) counter(name, desc, unit string, errs *[]error) metric.Int64Counter {
	c, err := mp.meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	if err != nil {
		*errs = append(*errs, err)
	}
	return c
}

func (mp *MetricsProvider) histogram(name, desc string, errs *[]error) metric.Float64Histogram {
	h, err := mp.meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("s"))
	if err != nil {
		*errs = append(*errs, err)
	}
	return h
}

// initInstruments initializes all metric instruments.
func (mp *MetricsProvider) initInstruments() error {
	var errs []error

	mp.requests = mp.counter("agent.requests", "Intercepted requests answered", "{request}", &errs)
	mp.cacheHits = mp.counter("agent.cache.hits", "Store lookups that found an entry", "{hit}", &errs)
	mp.cacheMisses = mp.counter("agent.cache.misses", "Store lookups that found nothing", "{miss}", &errs)
	mp.networkFailures = mp.counter("agent.network.failures", "Fetches that did not reach the origin", "{failure}", &errs)
	mp.synthesized = mp.counter("agent.synthesized", "Responses synthesized by the agent", "{response}", &errs)
	mp.storeWriteFailure = mp.counter("agent.store.write_failures", "Store writes that failed", "{failure}", &errs)
	mp.queueAppended = mp.counter("agent.queue.appended", "Operations appended to the deferred queue", "{operation}", &errs)
	mp.queueReplayed = mp.counter("agent.queue.replayed", "Deferred operations replayed successfully", "{operation}", &errs)
	mp.replayFailures = mp.counter("agent.queue.replay_failures", "Deferred replays that stopped a drain", "{failure}", &errs)
	mp.transitions = mp.counter("agent.lifecycle.transitions", "Version lifecycle state transitions", "{transition}", &errs)
	mp.pushes = mp.counter("agent.push.received", "Push messages handed to the presenter", "{push}", &errs)

	mp.requestDuration = mp.histogram("agent.request.duration", "Time to answer an intercepted request", &errs)
	mp.installDuration = mp.histogram("agent.install.duration", "Time to install a version", &errs)

	return errors.Join(errs...)
}

// Error returns any instrument initialization error.
func (mp *MetricsProvider) Error() error {
	return mp.initErr
}

// RecordRequest records an answered request.
func (mp *MetricsProvider) RecordRequest(ctx context.Context, category, strategy, source string, status int, duration time.Duration) {
	if mp == nil || mp.requests == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("category", category),
		attribute.String("strategy", strategy),
		attribute.String("source", source),
		attribute.Int("status", status),
	)
	mp.requests.Add(ctx, 1, attrs)
	mp.requestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordCacheLookup records a store lookup outcome.
func (mp *MetricsProvider) RecordCacheLookup(ctx context.Context, kind string, hit bool) {
	if mp == nil || mp.cacheHits == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("kind", kind))
	if hit {
		mp.cacheHits.Add(ctx, 1, attrs)
	} else {
		mp.cacheMisses.Add(ctx, 1, attrs)
	}
}

// RecordNetworkFailure records a fetch that did not reach the origin.
func (mp *MetricsProvider) RecordNetworkFailure(ctx context.Context, strategy string) {
	if mp == nil || mp.networkFailures == nil {
		return
	}
	mp.networkFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("strategy", strategy)))
}

// RecordSynthesized records a synthesized response by marker.
func (mp *MetricsProvider) RecordSynthesized(ctx context.Context, marker string) {
	if mp == nil || mp.synthesized == nil {
		return
	}
	mp.synthesized.Add(ctx, 1, metric.WithAttributes(attribute.String("marker", marker)))
}

// RecordStoreWriteFailure records a failed store write.
func (mp *MetricsProvider) RecordStoreWriteFailure(ctx context.Context, kind string) {
	if mp == nil || mp.storeWriteFailure == nil {
		return
	}
	mp.storeWriteFailure.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordQueueAppended records an operation entering the deferred queue.
func (mp *MetricsProvider) RecordQueueAppended(ctx context.Context) {
	if mp == nil || mp.queueAppended == nil {
		return
	}
	mp.queueAppended.Add(ctx, 1)
}

// RecordDrain records the outcome of one drain pass.
func (mp *MetricsProvider) RecordDrain(ctx context.Context, replayed int, stopped bool) {
	if mp == nil || mp.queueReplayed == nil {
		return
	}
	mp.queueReplayed.Add(ctx, int64(replayed))
	if stopped {
		mp.replayFailures.Add(ctx, 1)
	}
}

// RecordTransition records a lifecycle state transition.
func (mp *MetricsProvider) RecordTransition(ctx context.Context, version, from, to string) {
	if mp == nil || mp.transitions == nil {
		return
	}
	mp.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("version", version),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordInstall records an install attempt.
func (mp *MetricsProvider) RecordInstall(ctx context.Context, version string, success bool, duration time.Duration) {
	if mp == nil || mp.installDuration == nil {
		return
	}
	mp.installDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("version", version),
		attribute.Bool("success", success),
	))
}

// RecordPush records a push hand-off.
func (mp *MetricsProvider) RecordPush(ctx context.Context, delivered bool) {
	if mp == nil || mp.pushes == nil {
		return
	}
	mp.pushes.Add(ctx, 1, metric.WithAttributes(attribute.Bool("delivered", delivered)))
}
