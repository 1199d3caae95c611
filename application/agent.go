// Package application provides the agent's event loop. Every inbound event
// is dispatched by one function to the component that owns it: the
// strategy dispatcher for requests, the lifecycle manager for install and
// activate, and the deferred service for the queue.
package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/offline-agent/application/deferred"
	"github.com/felixgeelhaar/offline-agent/application/lifecycle"
	"github.com/felixgeelhaar/offline-agent/application/strategy"
	"github.com/felixgeelhaar/offline-agent/domain/cache"
	"github.com/felixgeelhaar/offline-agent/domain/event"
	"github.com/felixgeelhaar/offline-agent/domain/notification"
	"github.com/felixgeelhaar/offline-agent/domain/queue"
	"github.com/felixgeelhaar/offline-agent/domain/request"
	"github.com/felixgeelhaar/offline-agent/domain/response"
	"github.com/felixgeelhaar/offline-agent/domain/version"
	"github.com/felixgeelhaar/offline-agent/infrastructure/logging"
	"github.com/felixgeelhaar/offline-agent/infrastructure/resilience"
	"github.com/felixgeelhaar/offline-agent/infrastructure/telemetry"
)

const (
	categoryMutation = "mutation"
	strategyPassthru = "passthrough"
)

// breaker is implemented by networks guarded by a circuit breaker.
type breaker interface {
	BreakerState() string
	ResetBreaker()
}

// Agent owns the cache registry, the deferred queue, and the event loop.
type Agent struct {
	registry   *cache.Registry
	network    strategy.Network
	dispatcher *strategy.Dispatcher
	lifecycle  *lifecycle.Manager
	deferred   *deferred.Service
	presenter  notification.Presenter
	queue      queue.Queue
	metrics    *telemetry.MetricsProvider

	version  cache.VersionTag
	manifest []string

	inbox   chan event.Event
	done    chan struct{}
	running atomic.Bool
	closed  atomic.Bool

	// background tracks revalidations and push hand-offs.
	background sync.WaitGroup
	// handlers tracks per-event goroutines started by Run.
	handlers sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// New creates an agent.
func New(opts ...Option) (*Agent, error) {
	cfg := Config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewAgent(cfg)
}

// NewAgent creates an agent from a configuration.
func NewAgent(cfg Config) (*Agent, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.Network == nil {
		return nil, errors.New("network is required")
	}
	if cfg.Queue == nil {
		return nil, errors.New("queue is required")
	}
	if cfg.Classifier == nil {
		cfg.Classifier = request.NewClassifier(nil, nil)
	}
	if cfg.Presenter == nil {
		cfg.Presenter = discardPresenter{}
	}
	if cfg.ReplayNetwork == nil {
		cfg.ReplayNetwork = cfg.Network
	}

	a := &Agent{
		registry:  cfg.Registry,
		network:   cfg.Network,
		presenter: cfg.Presenter,
		queue:     cfg.Queue,
		metrics:   cfg.Metrics,
		version:   cfg.Version,
		manifest:  append([]string(nil), cfg.Manifest...),
		inbox:     make(chan event.Event),
		done:      make(chan struct{}),
	}

	a.dispatcher = strategy.NewDispatcher(cfg.Classifier, strategy.Config{
		Store:      cfg.Registry,
		Network:    cfg.Network,
		Metrics:    cfg.Metrics,
		Background: &a.background,
	})

	lm, err := lifecycle.NewManager(lifecycle.Config{
		Registry:    cfg.Registry,
		Network:     cfg.Network,
		Origin:      cfg.Origin,
		Concurrency: cfg.InstallConcurrency,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	a.lifecycle = lm

	ds, err := deferred.NewService(deferred.Config{
		Queue:   cfg.Queue,
		Network: cfg.ReplayNetwork,
		Pacer:   resilience.NewPacer(cfg.ReplayRate, cfg.ReplayBurst),
		Timeout: cfg.ReplayTimeout,
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	a.deferred = ds

	return a, nil
}

// Start restores persisted lifecycle state.
func (a *Agent) Start(ctx context.Context) error {
	active, err := a.lifecycle.Restore(ctx)
	if err != nil {
		return fmt.Errorf("restore lifecycle: %w", err)
	}
	logging.Info().
		Add(logging.Version(active)).
		Add(logging.Str("configured_version", string(a.version))).
		Msg("agent started")
	return nil
}

// Run is the event loop. It reads events from events and from Submit, and
// handles each in its own goroutine; results go back through the event's
// reply. Run returns when ctx is done or events is closed, after every
// handler it started has finished.
func (a *Agent) Run(ctx context.Context, events <-chan event.Event) error {
	if !a.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(a.done)
	defer a.handlers.Wait()

	for {
		var e event.Event
		select {
		case <-ctx.Done():
			return ctx.Err()
		case next, ok := <-events:
			if !ok {
				return nil
			}
			e = next
		case e = <-a.inbox:
		}

		a.handlers.Go(func() {
			e.Complete(a.Handle(ctx, e))
		})
	}
}

// Submit hands e to the running event loop and waits for its result.
func (a *Agent) Submit(ctx context.Context, e event.Event) (event.Result, error) {
	if a.closed.Load() {
		return event.Result{}, event.ErrLoopStopped
	}
	select {
	case a.inbox <- e:
	case <-a.done:
		return event.Result{}, event.ErrLoopStopped
	case <-ctx.Done():
		return event.Result{}, ctx.Err()
	}
	return e.Wait(ctx)
}

// Handle processes one event synchronously. A panic in any component is
// recovered; for requests it becomes a generic 500 response.
func (a *Agent) Handle(ctx context.Context, e event.Event) (result event.Result) {
	result.Kind = e.Kind

	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Add(logging.EventKind(e.Kind)).
				Add(logging.Str("panic", fmt.Sprint(r))).
				Add(logging.Str("stack", string(debug.Stack()))).
				Msg("event handler panicked")
			result = event.Result{Kind: e.Kind, Err: fmt.Errorf("%w: %v", ErrHandlerPanic, r)}
			if e.Kind == event.KindRequest {
				result.Response = response.Failure(http.StatusInternalServerError, "internal agent failure")
			}
		}
	}()

	if err := e.Validate(); err != nil {
		result.Err = err
		if e.Kind == event.KindRequest {
			result.Response = response.Failure(http.StatusBadRequest, err.Error())
		}
		return result
	}

	switch e.Kind {
	case event.KindRequest:
		result.Response = a.handleRequest(ctx, e.Request)
	case event.KindInstall:
		manifest := e.Manifest
		if len(manifest) == 0 && e.Version == a.version {
			manifest = a.manifest
		}
		result.Err = a.lifecycle.Install(ctx, e.Version, manifest)
	case event.KindActivate:
		result.Purged, result.Err = a.lifecycle.Activate(ctx, e.Version)
	case event.KindConnectivityRestored:
		result.Drain, result.Err = a.Drain(ctx)
	case event.KindPush:
		result.PushID = a.acceptPush(ctx, e.Payload)
	case event.KindEnqueue:
		result.Operation, result.Err = a.deferred.Append(ctx, e.Request)
	}

	if result.Err != nil {
		logging.Warn().
			Add(logging.EventKind(e.Kind)).
			Add(logging.Version(e.Version)).
			Add(logging.ErrorField(result.Err)).
			Msg("event failed")
	}
	return result
}

// handleRequest serves read requests through the dispatcher. Other methods
// go straight to the network; when it cannot be reached the request is
// deferred and the caller receives a queued receipt.
func (a *Agent) handleRequest(ctx context.Context, req request.Request) *response.Response {
	if req.IsReadOnly() {
		resp, _ := a.dispatcher.Dispatch(ctx, req)
		return resp
	}

	start := time.Now()
	resp, err := a.network.Fetch(ctx, req)
	if err == nil {
		a.metrics.RecordRequest(ctx, categoryMutation, strategyPassthru, string(resp.Source), resp.Status, time.Since(start))
		return resp
	}

	a.metrics.RecordNetworkFailure(ctx, strategyPassthru)
	op, qerr := a.deferred.Append(ctx, req)
	if qerr != nil {
		logging.Error().
			Add(logging.Method(req.NormalizedMethod())).
			Add(logging.URL(req.URL)).
			Add(logging.ErrorField(qerr)).
			Msg("could not defer request")
		resp = response.Offline(time.Now(), fmt.Errorf("%w: %w", strategy.ErrNetworkUnavailable, err))
	} else {
		resp = response.Queued(op.Sequence, op.IdempotencyKey)
	}

	a.metrics.RecordSynthesized(ctx, resp.Header.Get(response.HeaderAgent))
	a.metrics.RecordRequest(ctx, categoryMutation, strategyPassthru, string(resp.Source), resp.Status, time.Since(start))
	return resp
}

// acceptPush acknowledges a push and hands it to the presenter in the
// background. Presentation failures are logged only.
func (a *Agent) acceptPush(ctx context.Context, payload []byte) string {
	id := uuid.NewString()
	d := notification.Parse(id, payload)
	detached := context.WithoutCancel(ctx)

	a.background.Go(func() {
		err := a.presenter.Present(detached, d)
		a.metrics.RecordPush(detached, err == nil)
		if err != nil {
			logging.Warn().
				Add(logging.Str("push_id", id)).
				Add(logging.ErrorField(err)).
				Msg("push presentation failed")
		}
	})
	return id
}

// Drain treats the network as reachable again: a circuit opened while
// offline is closed, then the deferred queue is replayed.
func (a *Agent) Drain(ctx context.Context) (event.DrainReport, error) {
	if b, ok := a.network.(breaker); ok {
		if state := b.BreakerState(); state != "closed" && state != "disabled" {
			logging.Info().Add(logging.Str("breaker", state)).Msg("closing circuit on connectivity restored")
		}
		b.ResetBreaker()
	}
	return a.deferred.Drain(ctx)
}

// Queue lists deferred operations.
func (a *Agent) Queue(ctx context.Context) ([]queue.Operation, error) {
	return a.deferred.List(ctx)
}

// Versions lists the known versions and their phases.
func (a *Agent) Versions() []version.Record {
	return a.lifecycle.Versions()
}

// Status summarizes the agent for health reporting.
func (a *Agent) Status(ctx context.Context) (Status, error) {
	stats, err := a.registry.Stats(ctx)
	if err != nil {
		return Status{}, err
	}
	n, err := a.deferred.Len(ctx)
	if err != nil {
		return Status{}, err
	}
	status := Status{
		Configured: a.version,
		Active:     stats.Current,
		Stores:     stats.Stores,
		Queued:     n,
		Versions:   a.lifecycle.Versions(),
	}
	if b, ok := a.network.(breaker); ok {
		status.Breaker = b.BreakerState()
	}
	return status, nil
}

// Wait blocks until every background revalidation and push hand-off has
// finished.
func (a *Agent) Wait() {
	a.background.Wait()
}

// Close waits for background work and releases the presenter, queue, and
// registry. Submit fails after Close.
func (a *Agent) Close() error {
	a.closeOnce.Do(func() {
		a.closed.Store(true)
		a.background.Wait()
		a.closeErr = errors.Join(
			a.presenter.Close(),
			a.queue.Close(),
			a.registry.Close(),
		)
	})
	return a.closeErr
}

// Status is a point-in-time summary of the agent.
type Status struct {
	Configured cache.VersionTag `json:"configured_version"`
	Active     cache.VersionTag `json:"active_version"`
	Stores     map[string]int   `json:"stores"`
	Queued     int              `json:"queued"`
	Versions   []version.Record `json:"versions"`
	// Breaker is the network circuit state when the network has one.
	Breaker string `json:"breaker,omitempty"`
}

type discardPresenter struct{}

func (discardPresenter) Present(context.Context, notification.Descriptor) error { return nil }
func (discardPresenter) Close() error                                           { return nil }
