package strategy

import (
	"context"
	"net/http"

	"github.com/felixgeelhaar/offline-agent/domain/cache"
	"github.com/felixgeelhaar/offline-agent/domain/request"
	"github.com/felixgeelhaar/offline-agent/domain/response"
	"github.com/felixgeelhaar/offline-agent/infrastructure/observability"
)

// StaleWhileRevalidate answers from the dynamic store when it can and
// always refreshes the entry from the network in the background. Used for
// dynamic requests.
type StaleWhileRevalidate struct {
	base
}

// NewStaleWhileRevalidate creates the stale-while-revalidate strategy.
func NewStaleWhileRevalidate(cfg Config) *StaleWhileRevalidate {
	return &StaleWhileRevalidate{base: newBase(NameStaleWhileRevalidate, cfg)}
}

// Name returns the strategy name.
func (s *StaleWhileRevalidate) Name() string { return s.name }

type fetchResult struct {
	resp *response.Response
	err  error
}

// Serve implements Strategy.
//
// The network call is detached from ctx: it runs to completion and updates
// the store even after the caller has gone. Concurrent revalidations of one
// key are not ordered; the last to finish wins.
func (s *StaleWhileRevalidate) Serve(ctx context.Context, req request.Request) *response.Response {
	ctx, span := s.startSpan(ctx, req)
	key := req.Key()

	done := make(chan fetchResult, 1)
	detached := context.WithoutCancel(ctx)
	s.cfg.Background.Go(func() {
		resp, err := s.fetch(detached, req)
		if err == nil && resp.OK() {
			s.save(detached, cache.KindDynamic, key, resp)
		}
		done <- fetchResult{resp: resp, err: err}
	})

	if cached, ok := s.lookup(ctx, cache.KindDynamic, key); ok {
		observability.EndSpan(span, nil)
		return cached
	}

	select {
	case r := <-done:
		observability.EndSpan(span, r.err)
		if r.err != nil {
			return s.synthesized(ctx, response.Failure(http.StatusServiceUnavailable, "resource unavailable"))
		}
		return r.resp
	case <-ctx.Done():
		observability.EndSpan(span, ctx.Err())
		return s.synthesized(ctx, response.Failure(http.StatusServiceUnavailable, ctx.Err().Error()))
	}
}
