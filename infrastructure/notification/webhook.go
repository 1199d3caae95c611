// Package notification provides push presenters: a webhook presenter that
// forwards descriptors to an external display service, and a log presenter.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"

	"github.com/felixgeelhaar/offline-agent/domain/notification"
)

// WebhookConfig configures the webhook presenter.
type WebhookConfig struct {
	// Timeout bounds a single delivery attempt.
	Timeout time.Duration
	// MaxRetries is the maximum number of delivery attempts.
	MaxRetries int
	// RetryDelay is the initial delay between attempts.
	RetryDelay time.Duration
	// CircuitBreakerThreshold is consecutive failures before opening.
	CircuitBreakerThreshold int
	// CircuitBreakerTimeout is how long the circuit stays open.
	CircuitBreakerTimeout time.Duration
	// UserAgent is the User-Agent header value.
	UserAgent string
}

// DefaultWebhookConfig returns sensible default configuration.
func DefaultWebhookConfig() WebhookConfig {
	return WebhookConfig{
		Timeout:                 10 * time.Second,
		MaxRetries:              3,
		RetryDelay:              500 * time.Millisecond,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   30 * time.Second,
		UserAgent:               "offline-agent-push/1.0",
	}
}

// WebhookPresenter POSTs each descriptor as JSON to one endpoint.
type WebhookPresenter struct {
	endpoint notification.Endpoint
	config   WebhookConfig
	client   *http.Client
	signer   *Signer
	breaker  circuitbreaker.CircuitBreaker[int]
	retrier  retry.Retry[int]
	closed   atomic.Bool
}

// NewWebhookPresenter creates a presenter for endpoint.
func NewWebhookPresenter(endpoint notification.Endpoint, config WebhookConfig) (*WebhookPresenter, error) {
	if err := endpoint.Validate(); err != nil {
		return nil, err
	}

	def := DefaultWebhookConfig()
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = def.MaxRetries
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = def.RetryDelay
	}
	if config.CircuitBreakerThreshold <= 0 {
		config.CircuitBreakerThreshold = def.CircuitBreakerThreshold
	}
	if config.CircuitBreakerTimeout <= 0 {
		config.CircuitBreakerTimeout = def.CircuitBreakerTimeout
	}
	if config.UserAgent == "" {
		config.UserAgent = def.UserAgent
	}

	threshold := uint32(config.CircuitBreakerThreshold) // #nosec G115 -- checked positive above

	p := &WebhookPresenter{
		endpoint: endpoint,
		config:   config,
		client:   &http.Client{Timeout: config.Timeout},
		breaker: circuitbreaker.New[int](circuitbreaker.Config{
			MaxRequests: 1,
			Interval:    config.CircuitBreakerTimeout,
			Timeout:     config.CircuitBreakerTimeout,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
		}),
		retrier: retry.New[int](retry.Config{
			MaxAttempts:   config.MaxRetries,
			InitialDelay:  config.RetryDelay,
			BackoffPolicy: retry.BackoffExponential,
			Multiplier:    2.0,
			// A 4xx will not change on resend.
			NonRetryableErrors: []error{notification.ErrEndpointRejected},
		}),
	}
	if endpoint.Secret != "" {
		p.signer = NewSigner(endpoint.Secret)
	}
	return p, nil
}

// Present delivers d to the endpoint.
func (p *WebhookPresenter) Present(ctx context.Context, d notification.Descriptor) error {
	if p.closed.Load() {
		return notification.ErrPresenterClosed
	}

	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode descriptor: %w", err)
	}

	_, err = p.breaker.Execute(ctx, func(ctx context.Context) (int, error) {
		return p.retrier.Do(ctx, func(ctx context.Context) (int, error) {
			return p.deliver(ctx, payload)
		})
	})
	return err
}

// BreakerState returns the circuit breaker state.
func (p *WebhookPresenter) BreakerState() string {
	return p.breaker.State().String()
}

// Close stops further deliveries.
func (p *WebhookPresenter) Close() error {
	p.closed.Store(true)
	p.client.CloseIdleConnections()
	return nil
}

func (p *WebhookPresenter) deliver(ctx context.Context, payload []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint.URL, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", notification.ErrInvalidEndpoint, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", p.config.UserAgent)
	for k, v := range p.endpoint.Headers {
		req.Header.Set(k, v)
	}
	if p.signer != nil {
		for k, v := range p.signer.Headers(payload, time.Now()) {
			req.Header.Set(k, v)
		}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", notification.ErrEndpointUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return resp.StatusCode, nil
	case resp.StatusCode >= 500:
		return resp.StatusCode, fmt.Errorf("%w: status %d: %s", notification.ErrEndpointUnavailable, resp.StatusCode, body)
	default:
		return resp.StatusCode, fmt.Errorf("%w: status %d: %s", notification.ErrEndpointRejected, resp.StatusCode, body)
	}
}
