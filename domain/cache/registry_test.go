package cache_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/felixgeelhaar/offline-agent/domain/cache"
	"github.com/felixgeelhaar/offline-agent/domain/response"
	"github.com/felixgeelhaar/offline-agent/infrastructure/storage/memory"
)

func entry(key, body string) response.Entry {
	return response.NewEntry(key, response.New(http.StatusOK, []byte(body)))
}

func TestParseStoreName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want cache.StoreName
		ok   bool
	}{
		{"static-v1", cache.Static("v1"), true},
		{"dynamic-2024-01-01", cache.Dynamic("2024-01-01"), true},
		{"meta", cache.MetaStore, true},
		{"static-", cache.StoreName{}, false},
		{"images-v1", cache.StoreName{}, false},
		{"legacy", cache.StoreName{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			got, ok := cache.ParseStoreName(tt.in)
			if ok != tt.ok || got != tt.want {
				t.Errorf("ParseStoreName(%q) = %v, %v, want %v, %v", tt.in, got, ok, tt.want, tt.ok)
			}
			if ok && got.String() != tt.in {
				t.Errorf("String() = %q, want %q", got.String(), tt.in)
			}
		})
	}
}

func TestVersionTag_Validate(t *testing.T) {
	t.Parallel()

	for tag, valid := range map[cache.VersionTag]bool{
		"v1":    true,
		"2.0.1": true,
		"":      false,
		"v 1":   false,
		"v1\tx": false,
	} {
		err := tag.Validate()
		if (err == nil) != valid {
			t.Errorf("Validate(%q) error = %v, want valid=%v", tag, err, valid)
		}
	}
}

func TestRegistry_NoGeneration(t *testing.T) {
	t.Parallel()

	r := cache.NewRegistry(memory.NewBackend())
	ctx := context.Background()

	if _, err := r.Lookup(ctx, cache.KindStatic, "k"); !errors.Is(err, cache.ErrCacheMiss) {
		t.Errorf("Lookup() error = %v, want ErrCacheMiss", err)
	}
	err := r.Save(ctx, cache.KindDynamic, entry("k", "v"))
	if !errors.Is(err, cache.ErrStoreWrite) || !errors.Is(err, cache.ErrNoGeneration) {
		t.Errorf("Save() error = %v, want ErrStoreWrite and ErrNoGeneration", err)
	}
}

func TestRegistry_StaticIsWriteOnce(t *testing.T) {
	t.Parallel()

	r := cache.NewRegistry(memory.NewBackend())
	ctx := context.Background()

	if _, err := r.Activate(ctx, "v1"); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}

	_ = r.Save(ctx, cache.KindStatic, entry("k", "first"))
	_ = r.Save(ctx, cache.KindStatic, entry("k", "second"))

	got, err := r.Lookup(ctx, cache.KindStatic, "k")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if string(got.Body) != "first" {
		t.Errorf("static entry = %s, want first", got.Body)
	}

	_ = r.Save(ctx, cache.KindDynamic, entry("k", "first"))
	_ = r.Save(ctx, cache.KindDynamic, entry("k", "second"))

	got, _ = r.Lookup(ctx, cache.KindDynamic, "k")
	if string(got.Body) != "second" {
		t.Errorf("dynamic entry = %s, want second", got.Body)
	}
}

func TestRegistry_ActivatePurgesOtherVersions(t *testing.T) {
	t.Parallel()

	backend := memory.NewBackend()
	r := cache.NewRegistry(backend)
	ctx := context.Background()

	_, _ = r.Put(ctx, cache.Static("v1"), entry("a", "1"))
	_, _ = r.Put(ctx, cache.Dynamic("v1"), entry("b", "1"))
	_, _ = r.Put(ctx, cache.Static("v2"), entry("a", "2"))
	_ = backend.Put(ctx, "legacy", "x", []byte("y"))
	_ = r.MarkInstalled(ctx, "v1")
	_ = r.MarkInstalled(ctx, "v2")

	purged, err := r.Activate(ctx, "v2")
	if err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if len(purged) != 3 {
		t.Errorf("purged = %v, want 3 stores", purged)
	}

	names, _ := r.Stores(ctx)
	for _, raw := range names {
		name, ok := cache.ParseStoreName(raw)
		if !ok {
			t.Errorf("unparseable store %q survived activation", raw)
			continue
		}
		if name.Kind != cache.KindMeta && name.Tag != "v2" {
			t.Errorf("store %q survived activation of v2", raw)
		}
	}

	if r.Current() != "v2" {
		t.Errorf("Current() = %s, want v2", r.Current())
	}

	installed, _ := r.Installed(ctx)
	if len(installed) != 1 || installed[0] != "v2" {
		t.Errorf("Installed() = %v, want [v2]", installed)
	}
}

func TestRegistry_LoadRestoresActiveVersion(t *testing.T) {
	t.Parallel()

	backend := memory.NewBackend()
	ctx := context.Background()

	first := cache.NewRegistry(backend)
	if _, err := first.Activate(ctx, "v3"); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}

	second := cache.NewRegistry(backend)
	tag, err := second.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if tag != "v3" || second.Current() != "v3" {
		t.Errorf("Load() = %s, Current() = %s, want v3", tag, second.Current())
	}
}

func TestRegistry_Load_Empty(t *testing.T) {
	t.Parallel()

	r := cache.NewRegistry(memory.NewBackend())
	tag, err := r.Load(context.Background())
	if err != nil || tag != "" {
		t.Errorf("Load() = %q, %v, want empty, nil", tag, err)
	}
}

func TestRegistry_ConcurrentLookupDuringActivate(t *testing.T) {
	t.Parallel()

	r := cache.NewRegistry(memory.NewBackend())
	ctx := context.Background()

	const keys = 26
	key := func(i int) string { return fmt.Sprintf("key-%02d", i%keys) }
	payload := func(k string) string { return "payload:" + k }

	if _, err := r.Activate(ctx, "v1"); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	for i := 0; i < keys; i++ {
		_ = r.Save(ctx, cache.KindStatic, entry(key(i), payload(key(i))))
		_ = r.Save(ctx, cache.KindDynamic, entry(key(i), payload(key(i))))
	}

	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make(chan error, 1000)

	for i := 0; i < 200; i++ {
		kind := cache.KindStatic
		if i%2 == 1 {
			kind = cache.KindDynamic
		}
		k := key(i)

		wg.Go(func() {
			<-start
			got, err := r.Lookup(ctx, kind, k)
			switch {
			case errors.Is(err, cache.ErrCacheMiss):
			case err != nil:
				errs <- fmt.Errorf("lookup %s/%s: %w", kind, k, err)
			case got.Key != k || string(got.Body) != payload(k):
				errs <- fmt.Errorf("lookup %s/%s saw partial entry key=%q body=%q", kind, k, got.Key, got.Body)
			}
		})
		wg.Go(func() {
			<-start
			if err := r.Save(ctx, kind, entry(k, payload(k))); err != nil {
				errs <- fmt.Errorf("save %s/%s: %w", kind, k, err)
			}
		})
	}

	wg.Go(func() {
		<-start
		if _, err := r.Activate(ctx, "v2"); err != nil {
			errs <- fmt.Errorf("activate: %w", err)
		}
	})

	close(start)
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}

	if r.Current() != "v2" {
		t.Fatalf("Current() = %s, want v2", r.Current())
	}
	names, err := r.Stores(ctx)
	if err != nil {
		t.Fatalf("Stores() error = %v", err)
	}
	for _, raw := range names {
		if strings.HasSuffix(raw, "-v1") {
			t.Errorf("write landed in purged generation: %s survived", raw)
		}
	}
	for _, name := range []cache.StoreName{cache.Static("v1"), cache.Dynamic("v1")} {
		for i := 0; i < keys; i++ {
			if _, err := r.Get(ctx, name, key(i)); !errors.Is(err, cache.ErrCacheMiss) {
				t.Errorf("Get(%s, %s) error = %v, want ErrCacheMiss", name, key(i), err)
			}
		}
	}
}

func TestRegistry_Stats(t *testing.T) {
	t.Parallel()

	r := cache.NewRegistry(memory.NewBackend())
	ctx := context.Background()

	_, _ = r.Activate(ctx, "v1")
	_ = r.Save(ctx, cache.KindDynamic, entry("a", "1"))
	_ = r.Save(ctx, cache.KindDynamic, entry("b", "2"))

	stats, err := r.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Current != "v1" {
		t.Errorf("Current = %s, want v1", stats.Current)
	}
	if stats.Stores["dynamic-v1"] != 2 {
		t.Errorf("dynamic-v1 count = %d, want 2", stats.Stores["dynamic-v1"])
	}
}

func TestRegistry_Activate_InvalidTag(t *testing.T) {
	t.Parallel()

	r := cache.NewRegistry(memory.NewBackend())
	if _, err := r.Activate(context.Background(), ""); !errors.Is(err, cache.ErrInvalidVersion) {
		t.Errorf("Activate(\"\") error = %v, want ErrInvalidVersion", err)
	}
}
