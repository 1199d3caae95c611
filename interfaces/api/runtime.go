package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	offlineagent "github.com/felixgeelhaar/offline-agent"

	"github.com/felixgeelhaar/offline-agent/application"
	"github.com/felixgeelhaar/offline-agent/domain/cache"
	"github.com/felixgeelhaar/offline-agent/domain/event"
	domainnotification "github.com/felixgeelhaar/offline-agent/domain/notification"
	"github.com/felixgeelhaar/offline-agent/domain/request"
	"github.com/felixgeelhaar/offline-agent/infrastructure/logging"
	"github.com/felixgeelhaar/offline-agent/infrastructure/network"
	"github.com/felixgeelhaar/offline-agent/infrastructure/notification"
	"github.com/felixgeelhaar/offline-agent/infrastructure/observability"
	"github.com/felixgeelhaar/offline-agent/infrastructure/resilience"
	"github.com/felixgeelhaar/offline-agent/infrastructure/telemetry"
)

// Runtime is an agent assembled from a configuration together with the
// storage, network, and telemetry it owns.
type Runtime struct {
	Agent     *application.Agent
	Config    AgentConfig
	Telemetry *observability.Provider

	storage *Storage
}

type runtimeOptions struct {
	serviceVersion string
	client         *http.Client
	presenter      domainnotification.Presenter
	skipLogging    bool
}

// RuntimeOption configures NewRuntime.
type RuntimeOption func(*runtimeOptions)

// WithServiceVersion sets the version reported to telemetry backends.
func WithServiceVersion(v string) RuntimeOption {
	return func(o *runtimeOptions) {
		o.serviceVersion = v
	}
}

// WithHTTPClient sets the client used for origin fetches.
func WithHTTPClient(c *http.Client) RuntimeOption {
	return func(o *runtimeOptions) {
		o.client = c
	}
}

// WithPushPresenter overrides the presenter built from the notification
// configuration.
func WithPushPresenter(p domainnotification.Presenter) RuntimeOption {
	return func(o *runtimeOptions) {
		o.presenter = p
	}
}

// WithoutLoggingInit leaves the global logger untouched.
func WithoutLoggingInit() RuntimeOption {
	return func(o *runtimeOptions) {
		o.skipLogging = true
	}
}

// NewRuntime builds and starts an agent from cfg. Persisted lifecycle state
// is restored before it returns.
func NewRuntime(ctx context.Context, cfg *AgentConfig, opts ...RuntimeOption) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	o := runtimeOptions{serviceVersion: offlineagent.Version}
	for _, opt := range opts {
		opt(&o)
	}

	if !o.skipLogging {
		logging.Init(logging.FromConfig(cfg.Logging))
	}

	provider, err := observability.NewFromConfig(ctx, observability.FromTelemetry(cfg.Telemetry, o.serviceVersion))
	if err != nil {
		return nil, err
	}

	metricsCfg := telemetry.DefaultMetricsConfig()
	metricsCfg.MeterVersion = o.serviceVersion
	metricsCfg.MeterProvider = provider.MeterProvider()
	metrics := telemetry.NewMetricsProvider(metricsCfg)
	if err := metrics.Error(); err != nil {
		logging.Warn().Add(logging.ErrorField(err)).Msg("some metric instruments are unavailable")
	}

	storage, err := OpenStorage(cfg.Storage)
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, fmt.Errorf("open storage: %w", err)
	}

	presenter := o.presenter
	if presenter == nil {
		presenter, err = newPresenter(cfg.Notification)
		if err != nil {
			_ = closeStorage(storage)
			_ = provider.Shutdown(ctx)
			return nil, err
		}
	}

	var fetchOpts []network.Option
	if o.client != nil {
		fetchOpts = append(fetchOpts, network.WithClient(o.client))
	}
	fetcher := network.NewFetcher(append(fetchOpts,
		network.WithExecutor(resilience.NewExecutorWithOptions(resilience.WithNetwork(cfg.Network))))...)
	replayer := network.NewFetcher(append(fetchOpts,
		network.WithExecutor(resilience.NewReplayExecutor(cfg.Network, cfg.Replay.Timeout.Duration())))...)

	agent, err := application.New(
		application.WithClassifier(request.NewClassifier(cfg.Classifier.StaticPatterns, cfg.Classifier.APIPrefixes)),
		application.WithRegistry(cache.NewRegistry(storage.Backend)),
		application.WithNetwork(fetcher),
		application.WithReplayNetwork(replayer),
		application.WithQueue(storage.Queue),
		application.WithPresenter(presenter),
		application.WithMetrics(metrics),
		application.WithOrigin(cfg.Origin),
		application.WithRelease(cache.VersionTag(cfg.Version), cfg.Manifest),
		application.WithInstallConcurrency(cfg.Install.Concurrency),
		application.WithReplay(cfg.Replay.Timeout.Duration(), cfg.Replay.Rate, cfg.Replay.Burst),
	)
	if err != nil {
		_ = presenter.Close()
		_ = closeStorage(storage)
		_ = provider.Shutdown(ctx)
		return nil, err
	}

	rt := &Runtime{Agent: agent, Config: *cfg, Telemetry: provider, storage: storage}
	if err := agent.Start(ctx); err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	return rt, nil
}

// Bootstrap installs and activates the configured version when it is not
// already active. A failed install leaves the previous version serving.
func (r *Runtime) Bootstrap(ctx context.Context) error {
	tag := cache.VersionTag(r.Config.Version)
	if tag == "" {
		return nil
	}

	status, err := r.Agent.Status(ctx)
	if err != nil {
		return err
	}
	if status.Active == tag {
		return nil
	}

	if res := r.Agent.Handle(ctx, event.NewInstall(tag, nil)); res.Err != nil {
		return fmt.Errorf("install %s: %w", tag, res.Err)
	}
	if res := r.Agent.Handle(ctx, event.NewActivate(tag)); res.Err != nil {
		return fmt.Errorf("activate %s: %w", tag, res.Err)
	}
	return nil
}

// Serve runs the event loop and the HTTP surface until ctx is done, then
// shuts the server down within the configured timeout.
func (r *Runtime) Serve(ctx context.Context) error {
	handler, err := NewServer(r.Agent, r.Config.Origin, WithMetricsHandler(r.Telemetry.MetricsHandler()))
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              r.Config.Server.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := r.Agent.Run(gctx, nil)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		logging.Info().
			Add(logging.Str("listen", srv.Addr)).
			Add(logging.URL(r.Config.Origin)).
			Msg("serving")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		timeout := r.Config.Server.ShutdownTimeout.Duration()
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Close stops the agent and releases storage and telemetry.
func (r *Runtime) Close(ctx context.Context) error {
	return errors.Join(
		r.Agent.Close(),
		r.storage.Release(),
		r.Telemetry.Shutdown(ctx),
	)
}

func newPresenter(cfg NotificationConfigSpec) (domainnotification.Presenter, error) {
	if !cfg.Enabled {
		return notification.NewLogPresenter(), nil
	}
	p, err := notification.NewWebhookPresenter(domainnotification.Endpoint{
		URL:     cfg.Endpoint.URL,
		Secret:  cfg.Endpoint.Secret,
		Headers: cfg.Endpoint.Headers,
		Name:    cfg.Endpoint.Name,
	}, notification.DefaultWebhookConfig())
	if err != nil {
		return nil, fmt.Errorf("push presenter: %w", err)
	}
	return p, nil
}

func closeStorage(s *Storage) error {
	return errors.Join(s.Backend.Close(), s.Queue.Close(), s.Release())
}
