package strategy

import (
	"context"
	"time"

	"github.com/felixgeelhaar/offline-agent/domain/request"
	"github.com/felixgeelhaar/offline-agent/domain/response"
	"github.com/felixgeelhaar/offline-agent/infrastructure/logging"
	"github.com/felixgeelhaar/offline-agent/infrastructure/telemetry"
)

// Dispatcher classifies a request and hands it to the strategy for its
// category.
type Dispatcher struct {
	classifier *request.Classifier
	strategies map[request.Category]Strategy
	metrics    *telemetry.MetricsProvider
}

// NewDispatcher creates a dispatcher with the standard mapping:
// static assets to CacheFirst, API data to NetworkFirst, everything else
// to StaleWhileRevalidate.
func NewDispatcher(classifier *request.Classifier, cfg Config) *Dispatcher {
	cfg = cfg.withDefaults()
	return &Dispatcher{
		classifier: classifier,
		strategies: map[request.Category]Strategy{
			request.CategoryStaticAsset: NewCacheFirst(cfg),
			request.CategoryAPIData:     NewNetworkFirst(cfg),
			request.CategoryDynamic:     NewStaleWhileRevalidate(cfg),
		},
		metrics: cfg.Metrics,
	}
}

// Strategy returns the strategy used for a category.
func (d *Dispatcher) Strategy(c request.Category) Strategy {
	if s, ok := d.strategies[c]; ok {
		return s
	}
	return d.strategies[request.CategoryDynamic]
}

// Dispatch serves req and returns the response with the category chosen.
func (d *Dispatcher) Dispatch(ctx context.Context, req request.Request) (*response.Response, request.Category) {
	start := time.Now()
	category := d.classifier.Classify(req)
	s := d.Strategy(category)

	resp := s.Serve(ctx, req)
	elapsed := time.Since(start)

	d.metrics.RecordRequest(ctx, category.String(), s.Name(), string(resp.Source), resp.Status, elapsed)
	logging.Debug().
		Add(logging.Method(req.NormalizedMethod())).
		Add(logging.URL(req.URL)).
		Add(logging.Category(category)).
		Add(logging.Strategy(s.Name())).
		Add(logging.Source(string(resp.Source))).
		Add(logging.Cached(resp.Source == response.SourceCache)).
		Add(logging.Status(resp.Status)).
		Add(logging.Duration(elapsed)).
		Msg("request served")

	return resp, category
}
