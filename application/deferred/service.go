// Package deferred records state-changing requests that could not be
// delivered and replays them, in order, when connectivity returns.
package deferred

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/felixgeelhaar/offline-agent/domain/event"
	"github.com/felixgeelhaar/offline-agent/domain/queue"
	"github.com/felixgeelhaar/offline-agent/domain/request"
	"github.com/felixgeelhaar/offline-agent/domain/response"
	"github.com/felixgeelhaar/offline-agent/infrastructure/logging"
	"github.com/felixgeelhaar/offline-agent/infrastructure/observability"
	"github.com/felixgeelhaar/offline-agent/infrastructure/resilience"
	"github.com/felixgeelhaar/offline-agent/infrastructure/telemetry"
)

// ErrReplay is returned when a queued operation could not be delivered.
var ErrReplay = errors.New("replay failed")

// Network delivers replayed operations.
type Network interface {
	Fetch(ctx context.Context, req request.Request) (*response.Response, error)
}

// Config configures a Service.
type Config struct {
	Queue   queue.Queue
	Network Network

	// Pacer spaces out replays. Nil replays back to back.
	Pacer *resilience.Pacer

	// Timeout bounds a single replay. Zero means no bound.
	Timeout time.Duration

	Metrics *telemetry.MetricsProvider
}

// Service owns the deferred queue.
type Service struct {
	queue    queue.Queue
	network  Network
	pacer    *resilience.Pacer
	timeout  time.Duration
	metrics  *telemetry.MetricsProvider
	draining atomic.Bool
}

// NewService creates the deferred operation service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Queue == nil {
		return nil, errors.New("queue is required")
	}
	if cfg.Network == nil {
		return nil, errors.New("network is required")
	}
	return &Service{
		queue:   cfg.Queue,
		network: cfg.Network,
		pacer:   cfg.Pacer,
		timeout: cfg.Timeout,
		metrics: cfg.Metrics,
	}, nil
}

// Append records req at the tail of the queue.
func (s *Service) Append(ctx context.Context, req request.Request) (queue.Operation, error) {
	return s.AppendOperation(ctx, queue.NewOperation(req))
}

// AppendOperation records op, keeping a caller-supplied idempotency key.
func (s *Service) AppendOperation(ctx context.Context, op queue.Operation) (queue.Operation, error) {
	stored, err := s.queue.Append(ctx, op)
	if err != nil {
		return queue.Operation{}, fmt.Errorf("append operation: %w", err)
	}
	s.metrics.RecordQueueAppended(ctx)
	logging.Info().
		Add(logging.Sequence(stored.Sequence)).
		Add(logging.Method(stored.Payload.NormalizedMethod())).
		Add(logging.URL(stored.Payload.URL)).
		Msg("operation deferred")
	return stored, nil
}

// List returns the queued operations in replay order.
func (s *Service) List(ctx context.Context) ([]queue.Operation, error) {
	return s.queue.List(ctx)
}

// Len returns the number of queued operations.
func (s *Service) Len(ctx context.Context) (int, error) {
	return s.queue.Len(ctx)
}

// Drain replays the queue head to tail. A replay failure stops the pass and
// leaves the failed operation and everything behind it queued; it is
// reported in the result, not as an error. Errors are reserved for queue
// faults and cancellation. A drain already in progress makes this call a
// no-op.
func (s *Service) Drain(ctx context.Context) (event.DrainReport, error) {
	if !s.draining.CompareAndSwap(false, true) {
		return event.DrainReport{Skipped: true}, nil
	}
	defer s.draining.Store(false)

	ctx, span := observability.StartSpan(ctx, "deferred.drain")
	report, err := s.drain(ctx)
	span.SetAttributes(
		attribute.Int("agent.queue.replayed", report.Replayed),
		attribute.Bool("agent.queue.stopped", report.Stopped),
	)
	observability.EndSpan(span, err)
	s.metrics.RecordDrain(ctx, report.Replayed, report.Stopped)

	if remaining, lerr := s.queue.Len(ctx); lerr == nil {
		report.Remaining = remaining
	} else if err == nil {
		err = lerr
	}

	logging.Info().
		Add(logging.Count("replayed", report.Replayed)).
		Add(logging.Count("remaining", report.Remaining)).
		Add(logging.Bool("stopped", report.Stopped)).
		Msg("drain finished")
	return report, err
}

func (s *Service) drain(ctx context.Context) (event.DrainReport, error) {
	var report event.DrainReport
	for {
		if s.pacer != nil {
			if err := s.pacer.Wait(ctx); err != nil {
				return report, err
			}
		} else if err := ctx.Err(); err != nil {
			return report, err
		}

		op, err := s.queue.Peek(ctx)
		if errors.Is(err, queue.ErrEmpty) {
			return report, nil
		}
		if err != nil {
			return report, fmt.Errorf("peek queue: %w", err)
		}

		if err := s.Replay(ctx, op); err != nil {
			report.Stopped = true
			report.Error = err.Error()
			logging.Warn().
				Add(logging.Sequence(op.Sequence)).
				Add(logging.URL(op.Payload.URL)).
				Add(logging.ErrorField(err)).
				Msg("replay failed, drain stopped")
			return report, nil
		}

		if err := s.queue.Remove(ctx, op.Sequence); err != nil {
			return report, fmt.Errorf("remove operation %d: %w", op.Sequence, err)
		}
		report.Replayed++
	}
}

// Replay sends one operation. Only a 2xx answer confirms delivery.
func (s *Service) Replay(ctx context.Context, op queue.Operation) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resp, err := s.network.Fetch(ctx, op.ReplayRequest())
	if err != nil {
		return fmt.Errorf("%w: operation %d: %w", ErrReplay, op.Sequence, err)
	}
	if !resp.OK() {
		return fmt.Errorf("%w: operation %d: status %d", ErrReplay, op.Sequence, resp.Status)
	}

	logging.Debug().
		Add(logging.Sequence(op.Sequence)).
		Add(logging.Status(resp.Status)).
		Msg("operation replayed")
	return nil
}
