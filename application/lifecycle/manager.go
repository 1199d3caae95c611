// Package lifecycle installs and activates cache generations.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/offline-agent/domain/cache"
	"github.com/felixgeelhaar/offline-agent/domain/request"
	"github.com/felixgeelhaar/offline-agent/domain/response"
	"github.com/felixgeelhaar/offline-agent/domain/version"
	"github.com/felixgeelhaar/offline-agent/infrastructure/logging"
	"github.com/felixgeelhaar/offline-agent/infrastructure/observability"
	"github.com/felixgeelhaar/offline-agent/infrastructure/statemachine"
	"github.com/felixgeelhaar/offline-agent/infrastructure/telemetry"
)

// DefaultConcurrency bounds parallel manifest fetches.
const DefaultConcurrency = 4

// Network fetches manifest entries.
type Network interface {
	Fetch(ctx context.Context, req request.Request) (*response.Response, error)
}

// Config configures a Manager.
type Config struct {
	Registry *cache.Registry
	Network  Network

	// Origin resolves relative manifest entries. Optional when every entry
	// is absolute.
	Origin string

	// Concurrency bounds parallel fetches during install.
	Concurrency int

	Metrics *telemetry.MetricsProvider
}

// Manager drives versions through install and activate. Lifecycle
// operations are serialized; request handling is not blocked by them
// except during the purge inside Activate.
type Manager struct {
	registry    *cache.Registry
	network     Network
	origin      *url.URL
	concurrency int
	metrics     *telemetry.MetricsProvider

	// opMu serializes Install and Activate.
	opMu sync.Mutex

	mu       sync.Mutex
	versions map[cache.VersionTag]*statemachine.Interpreter
}

// NewManager creates a lifecycle manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.Network == nil {
		return nil, errors.New("network is required")
	}

	m := &Manager{
		registry:    cfg.Registry,
		network:     cfg.Network,
		concurrency: cfg.Concurrency,
		metrics:     cfg.Metrics,
		versions:    make(map[cache.VersionTag]*statemachine.Interpreter),
	}
	if m.concurrency <= 0 {
		m.concurrency = DefaultConcurrency
	}
	if cfg.Origin != "" {
		u, err := url.Parse(cfg.Origin)
		if err != nil || !u.IsAbs() {
			return nil, fmt.Errorf("%w: origin %q", ErrInvalidManifest, cfg.Origin)
		}
		m.origin = u
	}
	return m, nil
}

// Restore rebuilds version state from the registry's persisted markers:
// installed versions resume as installed and the active one as activated.
func (m *Manager) Restore(ctx context.Context) (cache.VersionTag, error) {
	active, err := m.registry.Load(ctx)
	if err != nil {
		return "", err
	}
	installed, err := m.registry.Installed(ctx)
	if err != nil {
		return "", fmt.Errorf("list installed versions: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, tag := range installed {
		phase := version.PhaseInstalled
		if tag == active {
			phase = version.PhaseActivated
		}
		interp, err := m.newInterpreter(tag)
		if err != nil {
			return "", err
		}
		if err := interp.ResumeFrom(phase); err != nil {
			return "", err
		}
		m.versions[tag] = interp
	}

	if active != "" {
		if _, ok := m.versions[active]; !ok {
			interp, err := m.newInterpreter(active)
			if err != nil {
				return "", err
			}
			if err := interp.ResumeFrom(version.PhaseActivated); err != nil {
				return "", err
			}
			m.versions[active] = interp
		}
	}
	return active, nil
}

// ResolveManifest turns manifest entries into absolute URLs against the
// origin, dropping duplicates while keeping order.
func (m *Manager) ResolveManifest(manifest []string) ([]string, error) {
	seen := make(map[string]struct{}, len(manifest))
	out := make([]string, 0, len(manifest))

	for _, entry := range manifest {
		u, err := url.Parse(entry)
		if err != nil || entry == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidManifest, entry)
		}
		if !u.IsAbs() {
			if m.origin == nil {
				return nil, fmt.Errorf("%w: %q is relative and no origin is configured", ErrInvalidManifest, entry)
			}
			u = m.origin.ResolveReference(u)
		}
		abs := u.String()
		if _, dup := seen[abs]; dup {
			continue
		}
		seen[abs] = struct{}{}
		out = append(out, abs)
	}
	return out, nil
}

// Install fetches every manifest entry into a fresh static store for tag.
// Any failure aborts the whole install: the candidate store is dropped and
// the version moves to failed.
func (m *Manager) Install(ctx context.Context, tag cache.VersionTag, manifest []string) (err error) {
	if err := tag.Validate(); err != nil {
		return err
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	if tag == m.registry.Current() {
		return fmt.Errorf("%w: %s", ErrActiveVersion, tag)
	}

	urls, err := m.ResolveManifest(manifest)
	if err != nil {
		return err
	}

	interp, err := m.interpreterFor(tag)
	if err != nil {
		return err
	}
	if err := m.transition(interp, version.PhaseInstalling, ""); err != nil {
		return err
	}

	ctx, span := observability.StartSpan(ctx, "lifecycle.install",
		attribute.String("agent.version", string(tag)),
		attribute.Int("agent.manifest.size", len(urls)),
	)
	start := time.Now()
	defer func() {
		observability.EndSpan(span, err)
		m.metrics.RecordInstall(ctx, string(tag), err == nil, time.Since(start))
	}()

	store := cache.Static(tag)
	// Leftovers from an earlier failed or superseded install are discarded.
	cleanup := context.WithoutCancel(ctx)
	if err := m.discard(cleanup, tag); err != nil {
		_ = m.transition(interp, version.PhaseFailed, err.Error())
		return err
	}

	if err := m.populate(ctx, store, urls); err != nil {
		if derr := m.discard(cleanup, tag); derr != nil {
			logging.Error().
				Add(logging.Version(tag)).
				Add(logging.ErrorField(derr)).
				Msg("failed to drop candidate store")
		}
		_ = m.transition(interp, version.PhaseFailed, err.Error())
		logging.Warn().
			Add(logging.Version(tag)).
			Add(logging.ErrorField(err)).
			Msg("install failed")
		return err
	}

	if err := m.registry.MarkInstalled(ctx, tag); err != nil {
		_ = m.discard(cleanup, tag)
		_ = m.transition(interp, version.PhaseFailed, err.Error())
		return err
	}
	if err := m.transition(interp, version.PhaseInstalled, ""); err != nil {
		return err
	}

	logging.Info().
		Add(logging.Version(tag)).
		Add(logging.Count("entries", len(urls))).
		Add(logging.Duration(time.Since(start))).
		Msg("version installed")
	return nil
}

// populate fetches urls concurrently; the first failure cancels the rest.
func (m *Manager) populate(ctx context.Context, store cache.StoreName, urls []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)

	for _, u := range urls {
		g.Go(func() error {
			req := request.New(http.MethodGet, u)
			resp, err := m.network.Fetch(gctx, req)
			if err != nil {
				return fmt.Errorf("%w: %s: %w", ErrManifestFetch, u, err)
			}
			if !resp.OK() {
				return fmt.Errorf("%w: %s: status %d", ErrManifestFetch, u, resp.Status)
			}
			if _, err := m.registry.Put(gctx, store, response.NewEntry(req.Key(), resp)); err != nil {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// discard drops the static store and installed marker of tag.
func (m *Manager) discard(ctx context.Context, tag cache.VersionTag) error {
	if err := m.registry.Delete(ctx, cache.Static(tag)); err != nil {
		return fmt.Errorf("drop %s: %w", cache.Static(tag), err)
	}
	return m.registry.ClearInstalled(ctx, tag)
}

// Activate makes tag the current generation and purges every store of any
// other version. It returns the purged store names.
func (m *Manager) Activate(ctx context.Context, tag cache.VersionTag) ([]string, error) {
	if err := tag.Validate(); err != nil {
		return nil, err
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	if tag == m.registry.Current() {
		return nil, nil
	}

	ok, err := m.registry.IsInstalled(ctx, tag)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotInstalled, tag)
	}

	interp, err := m.interpreterFor(tag)
	if err != nil {
		return nil, err
	}
	// The installed marker is authoritative, e.g. after a restart.
	if interp.Phase() != version.PhaseInstalled {
		if err := m.resume(interp, version.PhaseInstalled); err != nil {
			return nil, err
		}
	}
	if err := m.transition(interp, version.PhaseActivating, ""); err != nil {
		return nil, err
	}

	ctx, span := observability.StartSpan(ctx, "lifecycle.activate", attribute.String("agent.version", string(tag)))
	previous := m.registry.Current()

	purged, err := m.registry.Activate(ctx, tag)
	observability.EndSpan(span, err)
	if err != nil {
		_ = m.transition(interp, version.PhaseInstalled, err.Error())
		return purged, fmt.Errorf("activate %s: %w", tag, err)
	}
	if err := m.transition(interp, version.PhaseActivated, ""); err != nil {
		return purged, err
	}
	m.retireOthers(tag)

	logging.Info().
		Add(logging.Version(tag)).
		Add(logging.FromVersion(previous)).
		Add(logging.Count("purged", len(purged))).
		Msg("version activated")
	return purged, nil
}

// Phase returns the lifecycle phase of tag.
func (m *Manager) Phase(tag cache.VersionTag) (version.Phase, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	interp, ok := m.versions[tag]
	if !ok {
		return "", false
	}
	return interp.Phase(), true
}

// Versions returns a snapshot of every known version, ordered by tag.
func (m *Manager) Versions() []version.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]version.Record, 0, len(m.versions))
	for _, interp := range m.versions {
		out = append(out, *interp.Context().Record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}

// retireOthers marks every other version redundant; their stores and
// markers are gone after a purge.
func (m *Manager) retireOthers(active cache.VersionTag) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for tag, interp := range m.versions {
		if tag == active || interp.IsTerminal() {
			continue
		}
		if err := interp.Transition(version.PhaseRedundant, "superseded by "+string(active)); err != nil {
			logging.Warn().
				Add(logging.Version(tag)).
				Add(logging.ErrorField(err)).
				Msg("could not retire version")
		}
	}
}

// interpreterFor returns the interpreter of tag, creating one when needed.
// A retired version starts over with a fresh record.
func (m *Manager) interpreterFor(tag cache.VersionTag) (*statemachine.Interpreter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if interp, ok := m.versions[tag]; ok && !interp.IsTerminal() {
		return interp, nil
	}
	interp, err := m.newInterpreter(tag)
	if err != nil {
		return nil, err
	}
	m.versions[tag] = interp
	return interp, nil
}

func (m *Manager) newInterpreter(tag cache.VersionTag) (*statemachine.Interpreter, error) {
	interp, err := statemachine.NewVersionInterpreter(version.NewRecord(tag))
	if err != nil {
		return nil, err
	}
	interp.Context().OnTransition = m.onTransition
	return interp, nil
}

func (m *Manager) transition(interp *statemachine.Interpreter, to version.Phase, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return interp.Transition(to, reason)
}

func (m *Manager) resume(interp *statemachine.Interpreter, p version.Phase) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return interp.ResumeFrom(p)
}

func (m *Manager) onTransition(r *version.Record, from, to version.Phase) {
	m.metrics.RecordTransition(context.Background(), string(r.Tag), string(from), string(to))
	logging.Debug().
		Add(logging.Version(r.Tag)).
		Add(logging.Str("from", string(from))).
		Add(logging.Str("to", string(to))).
		Add(logging.Reason(r.Reason)).
		Msg("version transition")
}
