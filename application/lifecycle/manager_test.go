package lifecycle_test

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/felixgeelhaar/offline-agent/application/lifecycle"
	"github.com/felixgeelhaar/offline-agent/domain/cache"
	"github.com/felixgeelhaar/offline-agent/domain/request"
	"github.com/felixgeelhaar/offline-agent/domain/response"
	"github.com/felixgeelhaar/offline-agent/domain/version"
	"github.com/felixgeelhaar/offline-agent/infrastructure/storage/memory"
)

const origin = "https://app.example"

// assetNetwork serves every URL except those listed in failing.
type assetNetwork struct {
	mu      sync.Mutex
	failing map[string]bool
	fetched []string
}

func (n *assetNetwork) Fetch(_ context.Context, req request.Request) (*response.Response, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.fetched = append(n.fetched, req.URL)
	if n.failing[req.URL] {
		return nil, errors.New("connection refused")
	}
	return response.New(http.StatusOK, []byte("asset "+req.URL)), nil
}

type fixture struct {
	backend  *memory.Backend
	registry *cache.Registry
	network  *assetNetwork
	manager  *lifecycle.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{backend: memory.NewBackend(), network: &assetNetwork{failing: map[string]bool{}}}
	f.registry = cache.NewRegistry(f.backend)

	m, err := lifecycle.NewManager(lifecycle.Config{
		Registry:    f.registry,
		Network:     f.network,
		Origin:      origin,
		Concurrency: 2,
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	f.manager = m
	return f
}

func (f *fixture) storeKeys(t *testing.T, store string) []string {
	t.Helper()

	keys, err := f.backend.Keys(context.Background(), store)
	if err != nil {
		t.Fatalf("Keys(%s) error = %v", store, err)
	}
	sort.Strings(keys)
	return keys
}

func keysFor(paths ...string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, request.New(http.MethodGet, origin+p).Key())
	}
	sort.Strings(out)
	return out
}

func TestManager_InstallAndFirstActivate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	if err := f.manager.Install(ctx, "v1", []string{"/a.css", "/b.js", "/c.png"}); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	got := f.storeKeys(t, "static-v1")
	want := keysFor("/a.css", "/b.js", "/c.png")
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("static-v1 = %v, want %v", got, want)
	}
	if phase, _ := f.manager.Phase("v1"); phase != version.PhaseInstalled {
		t.Errorf("Phase() = %s, want installed", phase)
	}

	purged, err := f.manager.Activate(ctx, "v1")
	if err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if len(purged) != 0 {
		t.Errorf("purged = %v, want nothing", purged)
	}
	if f.registry.Current() != "v1" {
		t.Errorf("Current() = %s, want v1", f.registry.Current())
	}
	if phase, _ := f.manager.Phase("v1"); phase != version.PhaseActivated {
		t.Errorf("Phase() = %s, want activated", phase)
	}
}

func TestManager_Upgrade(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	if err := f.manager.Install(ctx, "v1", []string{"/a.css", "/b.js", "/c.png"}); err != nil {
		t.Fatalf("Install(v1) error = %v", err)
	}
	if _, err := f.manager.Activate(ctx, "v1"); err != nil {
		t.Fatalf("Activate(v1) error = %v", err)
	}
	if err := f.registry.Save(ctx, cache.KindDynamic, response.NewEntry("GET https://app.example/api/x", response.New(200, nil))); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := f.manager.Install(ctx, "v2", []string{"/a.css", "/b.js", "/c.png", "/d.svg"}); err != nil {
		t.Fatalf("Install(v2) error = %v", err)
	}
	// v1 stays in control until v2 is activated.
	if f.registry.Current() != "v1" {
		t.Fatalf("Current() = %s, want v1", f.registry.Current())
	}

	purged, err := f.manager.Activate(ctx, "v2")
	if err != nil {
		t.Fatalf("Activate(v2) error = %v", err)
	}
	sort.Strings(purged)
	if strings.Join(purged, ",") != "dynamic-v1,static-v1" {
		t.Errorf("purged = %v, want dynamic-v1 and static-v1", purged)
	}

	if keys := f.storeKeys(t, "static-v1"); len(keys) != 0 {
		t.Errorf("static-v1 still has %v", keys)
	}
	got := f.storeKeys(t, "static-v2")
	want := keysFor("/a.css", "/b.js", "/c.png", "/d.svg")
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("static-v2 = %v, want %v", got, want)
	}

	if _, err := f.registry.Get(ctx, cache.Static("v1"), keysFor("/a.css")[0]); !errors.Is(err, cache.ErrCacheMiss) {
		t.Errorf("v1 lookup error = %v, want ErrCacheMiss", err)
	}
	if phase, _ := f.manager.Phase("v1"); phase != version.PhaseRedundant {
		t.Errorf("v1 Phase() = %s, want redundant", phase)
	}
}

func TestManager_InstallFailureIsAtomic(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	if err := f.manager.Install(ctx, "v1", []string{"/a.css"}); err != nil {
		t.Fatalf("Install(v1) error = %v", err)
	}
	if _, err := f.manager.Activate(ctx, "v1"); err != nil {
		t.Fatalf("Activate(v1) error = %v", err)
	}

	f.network.failing[origin+"/broken.js"] = true
	err := f.manager.Install(ctx, "v2", []string{"/a.css", "/broken.js", "/c.png"})
	if !errors.Is(err, lifecycle.ErrManifestFetch) {
		t.Fatalf("Install(v2) error = %v, want ErrManifestFetch", err)
	}

	if keys := f.storeKeys(t, "static-v2"); len(keys) != 0 {
		t.Errorf("candidate store kept %v", keys)
	}
	if f.registry.Current() != "v1" {
		t.Errorf("Current() = %s, want v1", f.registry.Current())
	}
	if phase, _ := f.manager.Phase("v2"); phase != version.PhaseFailed {
		t.Errorf("Phase() = %s, want failed", phase)
	}
	if _, err := f.manager.Activate(ctx, "v2"); !errors.Is(err, lifecycle.ErrNotInstalled) {
		t.Errorf("Activate(v2) error = %v, want ErrNotInstalled", err)
	}

	// A failed version can be installed again.
	delete(f.network.failing, origin+"/broken.js")
	if err := f.manager.Install(ctx, "v2", []string{"/a.css", "/broken.js"}); err != nil {
		t.Fatalf("retry Install(v2) error = %v", err)
	}
}

func TestManager_NonSuccessStatusFailsInstall(t *testing.T) {
	t.Parallel()

	reg := cache.NewRegistry(memory.NewBackend())
	m, err := lifecycle.NewManager(lifecycle.Config{
		Registry: reg,
		Network: networkFunc(func(req request.Request) (*response.Response, error) {
			return response.New(http.StatusNotFound, nil), nil
		}),
		Origin: origin,
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	if err := m.Install(context.Background(), "v1", []string{"/missing.css"}); !errors.Is(err, lifecycle.ErrManifestFetch) {
		t.Errorf("Install() error = %v, want ErrManifestFetch", err)
	}
}

func TestManager_InstallActiveVersionRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_ = f.manager.Install(ctx, "v1", []string{"/a.css"})
	_, _ = f.manager.Activate(ctx, "v1")

	if err := f.manager.Install(ctx, "v1", []string{"/a.css"}); !errors.Is(err, lifecycle.ErrActiveVersion) {
		t.Errorf("Install() error = %v, want ErrActiveVersion", err)
	}
	if purged, err := f.manager.Activate(ctx, "v1"); err != nil || len(purged) != 0 {
		t.Errorf("re-Activate() = %v, %v; want no-op", purged, err)
	}
}

func TestManager_InvalidTag(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if err := f.manager.Install(context.Background(), "", nil); !errors.Is(err, cache.ErrInvalidVersion) {
		t.Errorf("Install() error = %v, want ErrInvalidVersion", err)
	}
	if _, err := f.manager.Activate(context.Background(), "v 2"); !errors.Is(err, cache.ErrInvalidVersion) {
		t.Errorf("Activate() error = %v, want ErrInvalidVersion", err)
	}
}

func TestManager_Restore(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_ = f.manager.Install(ctx, "v1", []string{"/a.css"})
	_, _ = f.manager.Activate(ctx, "v1")
	_ = f.manager.Install(ctx, "v2", []string{"/a.css"})

	// A second manager over the same backend sees the persisted state.
	reg := cache.NewRegistry(f.backend)
	m, err := lifecycle.NewManager(lifecycle.Config{Registry: reg, Network: f.network, Origin: origin})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	active, err := m.Restore(ctx)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if active != "v1" {
		t.Errorf("active = %s, want v1", active)
	}
	if phase, _ := m.Phase("v1"); phase != version.PhaseActivated {
		t.Errorf("v1 Phase() = %s, want activated", phase)
	}
	if phase, _ := m.Phase("v2"); phase != version.PhaseInstalled {
		t.Errorf("v2 Phase() = %s, want installed", phase)
	}

	if _, err := m.Activate(ctx, "v2"); err != nil {
		t.Fatalf("Activate(v2) error = %v", err)
	}
	records := m.Versions()
	if len(records) != 2 || records[0].Phase != version.PhaseRedundant || records[1].Phase != version.PhaseActivated {
		t.Errorf("Versions() = %+v", records)
	}
}

func TestManager_ResolveManifest(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	got, err := f.manager.ResolveManifest([]string{"/a.css", "https://cdn.example/x.js", "a.css", "/a.css"})
	if err != nil {
		t.Fatalf("ResolveManifest() error = %v", err)
	}
	want := []string{origin + "/a.css", "https://cdn.example/x.js"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("ResolveManifest() = %v, want %v", got, want)
	}

	m, _ := lifecycle.NewManager(lifecycle.Config{Registry: f.registry, Network: f.network})
	if _, err := m.ResolveManifest([]string{"/a.css"}); !errors.Is(err, lifecycle.ErrInvalidManifest) {
		t.Errorf("ResolveManifest() without origin error = %v, want ErrInvalidManifest", err)
	}
}

func TestNewManager_RequiresCollaborators(t *testing.T) {
	t.Parallel()

	if _, err := lifecycle.NewManager(lifecycle.Config{}); err == nil {
		t.Error("NewManager() without registry succeeded")
	}
	if _, err := lifecycle.NewManager(lifecycle.Config{Registry: cache.NewRegistry(memory.NewBackend())}); err == nil {
		t.Error("NewManager() without network succeeded")
	}
	if _, err := lifecycle.NewManager(lifecycle.Config{
		Registry: cache.NewRegistry(memory.NewBackend()),
		Network:  &assetNetwork{},
		Origin:   "not a url",
	}); !errors.Is(err, lifecycle.ErrInvalidManifest) {
		t.Errorf("NewManager() bad origin error = %v", err)
	}
}

type networkFunc func(req request.Request) (*response.Response, error)

func (f networkFunc) Fetch(_ context.Context, req request.Request) (*response.Response, error) {
	return f(req)
}
