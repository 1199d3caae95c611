// Package resilience provides resilient execution patterns using fortify.
package resilience

import (
	"context"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"

	domainconfig "github.com/felixgeelhaar/offline-agent/domain/config"
	"github.com/felixgeelhaar/offline-agent/domain/response"
)

// Call performs one outbound attempt. A non-nil error means the origin was
// not reached; HTTP error statuses are returned as responses.
type Call func(ctx context.Context) (*response.Response, error)

// Executor runs outbound fetches with circuit breaker, retry, and bulkhead patterns.
// Each pattern is optional; a nil pattern is skipped.
type Executor struct {
	bulkhead bulkhead.Bulkhead[*response.Response]
	breaker  circuitbreaker.CircuitBreaker[*response.Response]
	retry    retry.Retry[*response.Response]
	timeout  time.Duration
}

// ExecutorConfig configures the resilient executor.
type ExecutorConfig struct {
	// MaxConcurrent limits concurrent fetches. Zero disables the bulkhead.
	MaxConcurrent int

	// CircuitBreakerThreshold is the number of consecutive failures before
	// opening. Zero disables the breaker.
	CircuitBreakerThreshold int

	// CircuitBreakerTimeout is how long the circuit stays open.
	CircuitBreakerTimeout time.Duration

	// RetryMaxAttempts is the maximum number of attempts for idempotent
	// calls. Values below 2 disable retry.
	RetryMaxAttempts int

	// RetryInitialDelay is the initial delay between retries.
	RetryInitialDelay time.Duration

	// RetryBackoffMultiplier is the exponential backoff multiplier.
	RetryBackoffMultiplier float64

	// DefaultTimeout bounds one call including retries. Zero means no bound.
	DefaultTimeout time.Duration
}

// DefaultExecutorConfig returns a configuration with sensible defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxConcurrent:           32,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   30 * time.Second,
		RetryMaxAttempts:        3,
		RetryInitialDelay:       100 * time.Millisecond,
		RetryBackoffMultiplier:  2.0,
		DefaultTimeout:          10 * time.Second,
	}
}

// ConfigFromNetwork maps the agent's network settings onto an executor
// configuration. Disabled sections leave their pattern off.
func ConfigFromNetwork(n domainconfig.NetworkConfig) ExecutorConfig {
	cfg := ExecutorConfig{DefaultTimeout: n.Timeout.Duration()}
	if n.Bulkhead.Enabled {
		cfg.MaxConcurrent = n.Bulkhead.MaxConcurrent
	}
	if n.CircuitBreaker.Enabled {
		cfg.CircuitBreakerThreshold = n.CircuitBreaker.Threshold
		cfg.CircuitBreakerTimeout = n.CircuitBreaker.Timeout.Duration()
	}
	if n.Retry.Enabled {
		cfg.RetryMaxAttempts = n.Retry.MaxAttempts
		cfg.RetryInitialDelay = n.Retry.InitialDelay.Duration()
		cfg.RetryBackoffMultiplier = n.Retry.Multiplier
	}
	return cfg
}

// NewExecutor creates a new resilient executor.
func NewExecutor(config ExecutorConfig) *Executor {
	e := &Executor{timeout: config.DefaultTimeout}

	if config.MaxConcurrent > 0 {
		e.bulkhead = bulkhead.New[*response.Response](bulkhead.Config{
			MaxConcurrent: config.MaxConcurrent,
		})
	}

	if config.CircuitBreakerThreshold > 0 {
		threshold := uint32(config.CircuitBreakerThreshold) // #nosec G115 -- checked positive above
		halfOpen := uint32(1)
		if config.MaxConcurrent > 0 {
			halfOpen = uint32(config.MaxConcurrent) // #nosec G115 -- checked positive above
		}
		openFor := config.CircuitBreakerTimeout
		if openFor <= 0 {
			openFor = 30 * time.Second
		}
		e.breaker = circuitbreaker.New[*response.Response](circuitbreaker.Config{
			MaxRequests: halfOpen,
			Interval:    openFor,
			Timeout:     openFor,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
		})
	}

	if config.RetryMaxAttempts > 1 {
		multiplier := config.RetryBackoffMultiplier
		if multiplier < 1 {
			multiplier = 1
		}
		e.retry = retry.New[*response.Response](retry.Config{
			MaxAttempts:        config.RetryMaxAttempts,
			InitialDelay:       config.RetryInitialDelay,
			BackoffPolicy:      retry.BackoffExponential,
			Multiplier:         multiplier,
			NonRetryableErrors: []error{context.Canceled},
		})
	}

	return e
}

// Execute runs call with resilience patterns applied. Retry is only used
// when idempotent is true.
// Composition order: Bulkhead → Timeout → Circuit Breaker → Retry
func (e *Executor) Execute(ctx context.Context, idempotent bool, call Call) (*response.Response, error) {
	withTimeout := func(ctx context.Context) (*response.Response, error) {
		if e.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, e.timeout)
			defer cancel()
		}
		return e.guarded(ctx, idempotent, call)
	}

	if e.bulkhead != nil {
		return e.bulkhead.Execute(ctx, withTimeout)
	}
	return withTimeout(ctx)
}

func (e *Executor) guarded(ctx context.Context, idempotent bool, call Call) (*response.Response, error) {
	attempt := call
	if idempotent && e.retry != nil {
		attempt = func(ctx context.Context) (*response.Response, error) {
			return e.retry.Do(ctx, call)
		}
	}

	if e.breaker != nil {
		return e.breaker.Execute(ctx, attempt)
	}
	return attempt(ctx)
}

// BreakerState returns the circuit breaker state, or "disabled".
func (e *Executor) BreakerState() string {
	if e.breaker == nil {
		return "disabled"
	}
	return e.breaker.State().String()
}

// ResetBreaker closes the circuit and clears its failure counts. It is a
// no-op when the breaker is disabled.
func (e *Executor) ResetBreaker() {
	if e.breaker != nil {
		e.breaker.Reset()
	}
}
