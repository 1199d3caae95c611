package strategy

import (
	"context"

	"github.com/felixgeelhaar/offline-agent/domain/cache"
	"github.com/felixgeelhaar/offline-agent/domain/request"
	"github.com/felixgeelhaar/offline-agent/domain/response"
	"github.com/felixgeelhaar/offline-agent/infrastructure/observability"
)

// NetworkFirst prefers a fresh network answer and falls back to the
// dynamic store. Used for API data.
type NetworkFirst struct {
	base
}

// NewNetworkFirst creates the network-first strategy.
func NewNetworkFirst(cfg Config) *NetworkFirst {
	return &NetworkFirst{base: newBase(NameNetworkFirst, cfg)}
}

// Name returns the strategy name.
func (s *NetworkFirst) Name() string { return s.name }

// Serve implements Strategy.
//
// Only a 2xx answer counts as success. A non-2xx answer still falls back to
// the store, but is returned as-is when the store has nothing.
func (s *NetworkFirst) Serve(ctx context.Context, req request.Request) *response.Response {
	ctx, span := s.startSpan(ctx, req)
	key := req.Key()

	resp, err := s.fetch(ctx, req)
	observability.EndSpan(span, err)
	if err == nil && resp.OK() {
		s.save(ctx, cache.KindDynamic, key, resp)
		return resp
	}

	if cached, ok := s.lookup(ctx, cache.KindDynamic, key); ok {
		return cached
	}
	if err == nil {
		return resp
	}
	return s.synthesized(ctx, response.Offline(s.cfg.Now(), err))
}
