package application

import (
	"time"

	"github.com/felixgeelhaar/offline-agent/application/strategy"
	"github.com/felixgeelhaar/offline-agent/domain/cache"
	"github.com/felixgeelhaar/offline-agent/domain/notification"
	"github.com/felixgeelhaar/offline-agent/domain/queue"
	"github.com/felixgeelhaar/offline-agent/domain/request"
	"github.com/felixgeelhaar/offline-agent/infrastructure/telemetry"
)

// Config holds the agent's collaborators.
type Config struct {
	Classifier *request.Classifier
	Registry   *cache.Registry
	Network    strategy.Network
	// ReplayNetwork delivers deferred operations. Nil uses Network.
	ReplayNetwork strategy.Network
	Queue         queue.Queue
	Presenter     notification.Presenter
	Metrics       *telemetry.MetricsProvider

	// Origin resolves relative manifest entries.
	Origin string
	// Version is the configured version tag.
	Version cache.VersionTag
	// Manifest is installed when an install event names Version without
	// its own manifest.
	Manifest []string

	InstallConcurrency int
	ReplayTimeout      time.Duration
	ReplayRate         int
	ReplayBurst        int
}

// Option configures the agent.
type Option func(*Config)

// WithClassifier sets the request classifier.
func WithClassifier(c *request.Classifier) Option {
	return func(cfg *Config) {
		cfg.Classifier = c
	}
}

// WithRegistry sets the cache registry.
func WithRegistry(r *cache.Registry) Option {
	return func(cfg *Config) {
		cfg.Registry = r
	}
}

// WithNetwork sets the network fetcher.
func WithNetwork(n strategy.Network) Option {
	return func(cfg *Config) {
		cfg.Network = n
	}
}

// WithReplayNetwork sets the network used to replay deferred operations.
func WithReplayNetwork(n strategy.Network) Option {
	return func(cfg *Config) {
		cfg.ReplayNetwork = n
	}
}

// WithQueue sets the deferred queue.
func WithQueue(q queue.Queue) Option {
	return func(cfg *Config) {
		cfg.Queue = q
	}
}

// WithPresenter sets the push presenter.
func WithPresenter(p notification.Presenter) Option {
	return func(cfg *Config) {
		cfg.Presenter = p
	}
}

// WithMetrics sets the metrics provider.
func WithMetrics(m *telemetry.MetricsProvider) Option {
	return func(cfg *Config) {
		cfg.Metrics = m
	}
}

// WithOrigin sets the origin for manifest resolution.
func WithOrigin(origin string) Option {
	return func(cfg *Config) {
		cfg.Origin = origin
	}
}

// WithRelease sets the configured version and its manifest.
func WithRelease(tag cache.VersionTag, manifest []string) Option {
	return func(cfg *Config) {
		cfg.Version = tag
		cfg.Manifest = append([]string(nil), manifest...)
	}
}

// WithInstallConcurrency bounds parallel manifest fetches.
func WithInstallConcurrency(n int) Option {
	return func(cfg *Config) {
		cfg.InstallConcurrency = n
	}
}

// WithReplay sets the per-operation replay timeout and the replay rate.
// A non-positive rate disables pacing.
func WithReplay(timeout time.Duration, rate, burst int) Option {
	return func(cfg *Config) {
		cfg.ReplayTimeout = timeout
		cfg.ReplayRate = rate
		cfg.ReplayBurst = burst
	}
}
