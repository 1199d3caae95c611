// Package network performs outbound fetches on behalf of the agent, with
// fortify resilience patterns around every attempt.
package network

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/felixgeelhaar/offline-agent/domain/queue"
	"github.com/felixgeelhaar/offline-agent/domain/request"
	"github.com/felixgeelhaar/offline-agent/domain/response"
	"github.com/felixgeelhaar/offline-agent/infrastructure/resilience"
)

// HeaderIdempotencyKey carries the idempotency key of a replayed operation.
const HeaderIdempotencyKey = queue.HeaderIdempotencyKey

// DefaultUserAgent is sent when the intercepted request has no User-Agent.
const DefaultUserAgent = "offline-agent/1.0"

// DefaultMaxBodySize bounds response bodies read into memory.
const DefaultMaxBodySize int64 = 32 << 20

var (
	// ErrUnreachable is returned when the origin could not be reached.
	ErrUnreachable = errors.New("network: origin unreachable")

	// ErrBadRequest is returned for requests that cannot be sent.
	ErrBadRequest = errors.New("network: malformed request")

	// ErrBodyTooLarge is returned when a response body exceeds the limit.
	ErrBodyTooLarge = errors.New("network: response body too large")
)

// hopHeaders are connection-scoped and never copied between hops.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Fetcher sends intercepted requests to the network.
type Fetcher struct {
	client      *http.Client
	executor    *resilience.Executor
	userAgent   string
	maxBodySize int64
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClient sets the HTTP client.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// WithExecutor sets the resilience executor wrapping each fetch.
func WithExecutor(e *resilience.Executor) Option {
	return func(f *Fetcher) {
		f.executor = e
	}
}

// WithUserAgent sets the default User-Agent.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithMaxBodySize bounds response bodies.
func WithMaxBodySize(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBodySize = n
		}
	}
}

// NewFetcher creates a fetcher. Without WithExecutor, attempts are made
// without retry, breaker, or bulkhead.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client: &http.Client{
			// Redirects are returned to the caller like any other response.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		userAgent:   DefaultUserAgent,
		maxBodySize: DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.executor == nil {
		f.executor = resilience.NewExecutor(resilience.ExecutorConfig{})
	}
	return f
}

// Fetch sends req and returns the response. Any HTTP status is a response;
// an error means the origin was not reached.
func (f *Fetcher) Fetch(ctx context.Context, req request.Request) (*response.Response, error) {
	if req.URL == "" {
		return nil, fmt.Errorf("%w: empty url", ErrBadRequest)
	}
	resp, err := f.executor.Execute(ctx, isIdempotent(req), func(ctx context.Context) (*response.Response, error) {
		return f.attempt(ctx, req)
	})
	if err != nil {
		if errors.Is(err, ErrBadRequest) || errors.Is(err, ErrUnreachable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}

	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	return resp, nil
}

// BreakerState reports the circuit breaker state: closed, open,
// half-open, or disabled.
func (f *Fetcher) BreakerState() string {
	return f.executor.BreakerState()
}

// ResetBreaker closes the circuit so the next fetch reaches the origin.
func (f *Fetcher) ResetBreaker() {
	f.executor.ResetBreaker()
}

func (f *Fetcher) attempt(ctx context.Context, req request.Request) (*response.Response, error) {
	// A fresh body reader per attempt; a retried request must resend it.
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.NormalizedMethod(), req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	removeHopHeaders(httpReq.Header)
	if httpReq.Header.Get("User-Agent") == "" && f.userAgent != "" {
		httpReq.Header.Set("User-Agent", f.userAgent)
	}

	httpResp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, f.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrUnreachable, err)
	}
	if int64(len(data)) > f.maxBodySize {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrBodyTooLarge, f.maxBodySize)
	}

	resp := &response.Response{
		Status: httpResp.StatusCode,
		Header: httpResp.Header.Clone(),
		Body:   data,
		Source: response.SourceNetwork,
	}
	removeHopHeaders(resp.Header)
	resp.Header.Del("Content-Length")
	return resp, nil
}

// isIdempotent reports whether the request may be retried. Requests
// carrying an idempotency key are safe to resend.
func isIdempotent(req request.Request) bool {
	switch req.NormalizedMethod() {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	}
	return req.Header.Get(HeaderIdempotencyKey) != ""
}

func removeHopHeaders(h http.Header) {
	if h == nil {
		return
	}
	for _, f := range h["Connection"] {
		for _, name := range strings.Split(f, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}
