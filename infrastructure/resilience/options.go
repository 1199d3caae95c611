package resilience

import (
	"time"

	domainconfig "github.com/felixgeelhaar/offline-agent/domain/config"
)

// Option adjusts an executor configuration before the executor is built.
type Option func(*ExecutorConfig)

// WithNetwork replaces the configuration with the agent's network settings.
// Apply it before other options.
func WithNetwork(n domainconfig.NetworkConfig) Option {
	return func(c *ExecutorConfig) {
		*c = ConfigFromNetwork(n)
	}
}

// WithoutCircuitBreaker turns the breaker off.
func WithoutCircuitBreaker() Option {
	return func(c *ExecutorConfig) {
		c.CircuitBreakerThreshold = 0
		c.CircuitBreakerTimeout = 0
	}
}

// WithTimeout bounds one call including retries. Non-positive values keep
// the current bound.
func WithTimeout(d time.Duration) Option {
	return func(c *ExecutorConfig) {
		if d > 0 {
			c.DefaultTimeout = d
		}
	}
}

// NewExecutorWithOptions builds an executor from DefaultExecutorConfig
// adjusted by opts.
func NewExecutorWithOptions(opts ...Option) *Executor {
	config := DefaultExecutorConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return NewExecutor(config)
}

// NewReplayExecutor builds the executor used to deliver deferred operations.
// It never has a breaker: a replay runs only after connectivity was reported
// back, and a circuit opened while offline must not reject it unsent.
func NewReplayExecutor(n domainconfig.NetworkConfig, timeout time.Duration) *Executor {
	return NewExecutorWithOptions(WithNetwork(n), WithoutCircuitBreaker(), WithTimeout(timeout))
}
