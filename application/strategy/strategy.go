// Package strategy provides the response-production policies applied to
// intercepted read requests and the dispatcher that selects among them.
//
// Every strategy returns a response. Network failures and cache misses are
// recovered inside the strategy; store write failures are logged and do not
// affect the response.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/offline-agent/domain/cache"
	"github.com/felixgeelhaar/offline-agent/domain/request"
	"github.com/felixgeelhaar/offline-agent/domain/response"
	"github.com/felixgeelhaar/offline-agent/infrastructure/logging"
	"github.com/felixgeelhaar/offline-agent/infrastructure/observability"
	"github.com/felixgeelhaar/offline-agent/infrastructure/telemetry"
)

// Strategy names.
const (
	NameCacheFirst           = "cache_first"
	NameNetworkFirst         = "network_first"
	NameStaleWhileRevalidate = "stale_while_revalidate"
)

// ErrNetworkUnavailable marks a failed network call inside a strategy.
var ErrNetworkUnavailable = errors.New("network unavailable")

// Network performs a network call for a request. An error means the
// origin was not reached.
type Network interface {
	Fetch(ctx context.Context, req request.Request) (*response.Response, error)
}

// Store reads and writes the current cache generation.
// *cache.Registry satisfies it.
type Store interface {
	Lookup(ctx context.Context, kind cache.Kind, key string) (response.Entry, error)
	Save(ctx context.Context, kind cache.Kind, entry response.Entry) error
}

// Strategy produces a response for a request.
type Strategy interface {
	Name() string
	Serve(ctx context.Context, req request.Request) *response.Response
}

// Config holds the collaborators shared by all strategies.
type Config struct {
	Store   Store
	Network Network

	// Metrics is optional.
	Metrics *telemetry.MetricsProvider

	// Background tracks detached revalidations so shutdown can wait for
	// them. A private group is used when nil.
	Background *sync.WaitGroup

	// Now defaults to time.Now.
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Background == nil {
		c.Background = &sync.WaitGroup{}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// base carries the helpers every strategy uses.
type base struct {
	cfg  Config
	name string
}

func newBase(name string, cfg Config) base {
	return base{cfg: cfg.withDefaults(), name: name}
}

func (b base) startSpan(ctx context.Context, req request.Request) (context.Context, trace.Span) {
	return observability.StartSpan(ctx, "strategy."+b.name,
		attribute.String("agent.strategy", b.name),
		attribute.String("http.request.method", req.NormalizedMethod()),
		attribute.String("url.full", req.URL),
	)
}

// fetch calls the network, wrapping any failure in ErrNetworkUnavailable.
func (b base) fetch(ctx context.Context, req request.Request) (*response.Response, error) {
	resp, err := b.cfg.Network.Fetch(ctx, req)
	if err == nil && resp == nil {
		err = errors.New("empty response")
	}
	if err != nil {
		b.cfg.Metrics.RecordNetworkFailure(ctx, b.name)
		logging.Debug().
			Add(logging.Strategy(b.name)).
			Add(logging.URL(req.URL)).
			Add(logging.ErrorField(err)).
			Msg("network call failed")
		return nil, fmt.Errorf("%w: %w", ErrNetworkUnavailable, err)
	}
	return resp, nil
}

// lookup reads the current generation. Any failure is reported as a miss;
// faults other than a plain miss are logged.
func (b base) lookup(ctx context.Context, kind cache.Kind, key string) (*response.Response, bool) {
	entry, err := b.cfg.Store.Lookup(ctx, kind, key)
	if err != nil {
		b.cfg.Metrics.RecordCacheLookup(ctx, string(kind), false)
		if !errors.Is(err, cache.ErrCacheMiss) {
			logging.Warn().
				Add(logging.Strategy(b.name)).
				Add(logging.Key(key)).
				Add(logging.ErrorField(err)).
				Msg("cache lookup failed")
		}
		return nil, false
	}
	b.cfg.Metrics.RecordCacheLookup(ctx, string(kind), true)
	return entry.Response(), true
}

// save stores resp best-effort.
func (b base) save(ctx context.Context, kind cache.Kind, key string, resp *response.Response) {
	err := b.cfg.Store.Save(ctx, kind, response.NewEntry(key, resp))
	switch {
	case err == nil:
	case errors.Is(err, cache.ErrNoGeneration):
		// Nothing is activated yet; there is no store to write to.
		logging.Debug().
			Add(logging.Strategy(b.name)).
			Add(logging.Key(key)).
			Msg("cache write skipped before activation")
	default:
		b.cfg.Metrics.RecordStoreWriteFailure(ctx, string(kind))
		logging.Warn().
			Add(logging.Strategy(b.name)).
			Add(logging.Key(key)).
			Add(logging.ErrorField(err)).
			Msg("cache write failed")
	}
}

func (b base) synthesized(ctx context.Context, resp *response.Response) *response.Response {
	b.cfg.Metrics.RecordSynthesized(ctx, resp.Header.Get(response.HeaderAgent))
	return resp
}
