package strategy

import (
	"context"

	"github.com/felixgeelhaar/offline-agent/domain/cache"
	"github.com/felixgeelhaar/offline-agent/domain/request"
	"github.com/felixgeelhaar/offline-agent/domain/response"
	"github.com/felixgeelhaar/offline-agent/infrastructure/observability"
)

// CacheFirst answers from the static store and only goes to the network on
// a miss. Used for static assets.
type CacheFirst struct {
	base
}

// NewCacheFirst creates the cache-first strategy.
func NewCacheFirst(cfg Config) *CacheFirst {
	return &CacheFirst{base: newBase(NameCacheFirst, cfg)}
}

// Name returns the strategy name.
func (s *CacheFirst) Name() string { return s.name }

// Serve implements Strategy.
func (s *CacheFirst) Serve(ctx context.Context, req request.Request) *response.Response {
	ctx, span := s.startSpan(ctx, req)
	key := req.Key()

	if resp, ok := s.lookup(ctx, cache.KindStatic, key); ok {
		observability.EndSpan(span, nil)
		return resp
	}

	resp, err := s.fetch(ctx, req)
	observability.EndSpan(span, err)
	if err != nil {
		return s.synthesized(ctx, response.Unavailable())
	}

	if resp.OK() {
		s.save(ctx, cache.KindStatic, key, resp)
	}
	return resp
}
