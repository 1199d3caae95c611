package strategy_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/felixgeelhaar/offline-agent/application/strategy"
	"github.com/felixgeelhaar/offline-agent/domain/cache"
	"github.com/felixgeelhaar/offline-agent/domain/request"
	"github.com/felixgeelhaar/offline-agent/domain/response"
	"github.com/felixgeelhaar/offline-agent/infrastructure/storage/memory"
	"github.com/felixgeelhaar/offline-agent/infrastructure/telemetry"
)

func TestCacheFirst(t *testing.T) {
	t.Parallel()

	t.Run("repeated requests never reach the network", func(t *testing.T) {
		t.Parallel()

		reg := newRegistry(t)
		net := &fakeNetwork{handler: online(http.StatusOK, "body{}")}
		s := strategy.NewCacheFirst(strategy.Config{Store: reg, Network: net})
		req := get("https://app.example/main.css")

		first := s.Serve(context.Background(), req)
		if first.Source != response.SourceNetwork {
			t.Fatalf("first Source = %s, want network", first.Source)
		}
		for range 3 {
			resp := s.Serve(context.Background(), req)
			if resp.Source != response.SourceCache || string(resp.Body) != "body{}" {
				t.Fatalf("Serve() = %s %q, want cached body", resp.Source, resp.Body)
			}
		}
		if net.Calls() != 1 {
			t.Errorf("network calls = %d, want 1", net.Calls())
		}
	})

	t.Run("miss and network failure is unavailable", func(t *testing.T) {
		t.Parallel()

		s := strategy.NewCacheFirst(strategy.Config{Store: newRegistry(t), Network: &fakeNetwork{handler: offline}})
		resp := s.Serve(context.Background(), get("https://app.example/logo.png"))

		if resp.Status != http.StatusServiceUnavailable {
			t.Errorf("Status = %d, want 503", resp.Status)
		}
		if resp.Header.Get(response.HeaderAgent) != response.MarkerUnavailable {
			t.Errorf("marker = %q, want unavailable", resp.Header.Get(response.HeaderAgent))
		}
	})

	t.Run("error statuses are returned but not stored", func(t *testing.T) {
		t.Parallel()

		reg := newRegistry(t)
		net := &fakeNetwork{handler: online(http.StatusNotFound, "missing")}
		s := strategy.NewCacheFirst(strategy.Config{Store: reg, Network: net})
		req := get("https://app.example/gone.js")

		if resp := s.Serve(context.Background(), req); resp.Status != http.StatusNotFound {
			t.Errorf("Status = %d, want 404", resp.Status)
		}
		if _, err := reg.Lookup(context.Background(), cache.KindStatic, req.Key()); !errors.Is(err, cache.ErrCacheMiss) {
			t.Errorf("Lookup() error = %v, want ErrCacheMiss", err)
		}
	})

	t.Run("write failure does not affect the response", func(t *testing.T) {
		t.Parallel()

		net := &fakeNetwork{handler: online(http.StatusOK, "ok")}
		s := strategy.NewCacheFirst(strategy.Config{Store: failingStore{newRegistry(t)}, Network: net})

		resp := s.Serve(context.Background(), get("https://app.example/a.js"))
		if resp.Status != http.StatusOK || string(resp.Body) != "ok" {
			t.Errorf("Serve() = %d %q", resp.Status, resp.Body)
		}
	})
}

func TestNetworkFirst(t *testing.T) {
	t.Parallel()

	t.Run("every success overwrites the stored entry", func(t *testing.T) {
		t.Parallel()

		reg := newRegistry(t)
		net := &fakeNetwork{}
		s := strategy.NewNetworkFirst(strategy.Config{Store: reg, Network: net})
		req := get("https://app.example/api/orders")

		for _, body := range []string{"v1", "v2", "v3"} {
			net.Set(online(http.StatusOK, body))
			if resp := s.Serve(context.Background(), req); string(resp.Body) != body {
				t.Fatalf("Serve() body = %q, want %q", resp.Body, body)
			}
			entry, err := reg.Lookup(context.Background(), cache.KindDynamic, req.Key())
			if err != nil {
				t.Fatalf("Lookup() error = %v", err)
			}
			if string(entry.Body) != body {
				t.Errorf("stored body = %q, want %q", entry.Body, body)
			}
		}
	})

	t.Run("offline falls back to stored entry", func(t *testing.T) {
		t.Parallel()

		net := &fakeNetwork{handler: online(http.StatusOK, `{"orders":[1]}`)}
		s := strategy.NewNetworkFirst(strategy.Config{Store: newRegistry(t), Network: net})
		req := get("https://app.example/api/orders")

		s.Serve(context.Background(), req)
		net.Set(offline)

		resp := s.Serve(context.Background(), req)
		if resp.Source != response.SourceCache {
			t.Fatalf("Source = %s, want cache", resp.Source)
		}
		if string(resp.Body) != `{"orders":[1]}` {
			t.Errorf("Body = %q", resp.Body)
		}
	})

	t.Run("offline miss returns the offline indicator", func(t *testing.T) {
		t.Parallel()

		now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		s := strategy.NewNetworkFirst(strategy.Config{
			Store:   newRegistry(t),
			Network: &fakeNetwork{handler: offline},
			Now:     func() time.Time { return now },
		})

		for range 5 {
			resp := s.Serve(context.Background(), get("https://app.example/api/profile"))
			if resp.Status != http.StatusServiceUnavailable {
				t.Fatalf("Status = %d, want 503", resp.Status)
			}

			var body response.OfflineIndicator
			if err := json.Unmarshal(resp.Body, &body); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if !body.Offline {
				t.Error("offline flag not set")
			}
			if !body.Timestamp.Equal(now) {
				t.Errorf("Timestamp = %v, want %v", body.Timestamp, now)
			}
		}
	})

	t.Run("error status without a stored entry is passed through", func(t *testing.T) {
		t.Parallel()

		s := strategy.NewNetworkFirst(strategy.Config{
			Store:   newRegistry(t),
			Network: &fakeNetwork{handler: online(http.StatusInternalServerError, "boom")},
		})

		if resp := s.Serve(context.Background(), get("https://app.example/api/x")); resp.Status != http.StatusInternalServerError {
			t.Errorf("Status = %d, want 500", resp.Status)
		}
	})

	t.Run("error status prefers the stored entry", func(t *testing.T) {
		t.Parallel()

		net := &fakeNetwork{handler: online(http.StatusOK, "good")}
		s := strategy.NewNetworkFirst(strategy.Config{Store: newRegistry(t), Network: net})
		req := get("https://app.example/api/x")

		s.Serve(context.Background(), req)
		net.Set(online(http.StatusBadGateway, "bad"))

		if resp := s.Serve(context.Background(), req); string(resp.Body) != "good" {
			t.Errorf("Body = %q, want stored entry", resp.Body)
		}
	})

	t.Run("before activation the network still answers", func(t *testing.T) {
		t.Parallel()

		reg := cache.NewRegistry(nil)
		s := strategy.NewNetworkFirst(strategy.Config{
			Store:   failingStore{reg},
			Network: &fakeNetwork{handler: online(http.StatusOK, "fresh")},
		})

		if resp := s.Serve(context.Background(), get("https://app.example/api/x")); string(resp.Body) != "fresh" {
			t.Errorf("Body = %q", resp.Body)
		}
	})
}

func TestStaleWhileRevalidate(t *testing.T) {
	t.Parallel()

	t.Run("returns cached entry without waiting and revalidates", func(t *testing.T) {
		t.Parallel()

		reg := newRegistry(t)
		var wg sync.WaitGroup
		net := &fakeNetwork{handler: online(http.StatusOK, "old")}
		s := strategy.NewStaleWhileRevalidate(strategy.Config{Store: reg, Network: net, Background: &wg})
		req := get("https://app.example/orders/7")

		if resp := s.Serve(context.Background(), req); string(resp.Body) != "old" {
			t.Fatalf("first Body = %q", resp.Body)
		}
		wg.Wait()

		release := make(chan struct{})
		net.Set(func(request.Request) (*response.Response, error) {
			<-release
			return response.New(http.StatusOK, []byte("new")), nil
		})

		resp := s.Serve(context.Background(), req)
		if resp.Source != response.SourceCache || string(resp.Body) != "old" {
			t.Fatalf("Serve() = %s %q, want cached old", resp.Source, resp.Body)
		}

		close(release)
		wg.Wait()

		entry, err := reg.Lookup(context.Background(), cache.KindDynamic, req.Key())
		if err != nil {
			t.Fatalf("Lookup() error = %v", err)
		}
		if string(entry.Body) != "new" {
			t.Errorf("revalidated body = %q, want new", entry.Body)
		}
	})

	t.Run("revalidation survives a cancelled caller", func(t *testing.T) {
		t.Parallel()

		reg := newRegistry(t)
		var wg sync.WaitGroup
		s := strategy.NewStaleWhileRevalidate(strategy.Config{
			Store:      reg,
			Network:    &fakeNetwork{handler: online(http.StatusOK, "fresh")},
			Background: &wg,
		})
		req := get("https://app.example/feed")

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		s.Serve(ctx, req)
		wg.Wait()

		if _, err := reg.Lookup(context.Background(), cache.KindDynamic, req.Key()); err != nil {
			t.Errorf("Lookup() error = %v, want stored entry", err)
		}
	})

	t.Run("miss and failure terminates with failure response", func(t *testing.T) {
		t.Parallel()

		s := strategy.NewStaleWhileRevalidate(strategy.Config{Store: newRegistry(t), Network: &fakeNetwork{handler: offline}})

		done := make(chan *response.Response, 1)
		go func() { done <- s.Serve(context.Background(), get("https://app.example/about")) }()

		select {
		case resp := <-done:
			if resp.Status != http.StatusServiceUnavailable {
				t.Errorf("Status = %d, want 503", resp.Status)
			}
			if resp.Header.Get(response.HeaderAgent) != response.MarkerFailure {
				t.Errorf("marker = %q, want failure", resp.Header.Get(response.HeaderAgent))
			}
		case <-time.After(5 * time.Second):
			t.Fatal("Serve() did not terminate")
		}
	})

	t.Run("miss awaits the network", func(t *testing.T) {
		t.Parallel()

		reg := newRegistry(t)
		s := strategy.NewStaleWhileRevalidate(strategy.Config{Store: reg, Network: &fakeNetwork{handler: online(http.StatusOK, "page")}})

		resp := s.Serve(context.Background(), get("https://app.example/about"))
		if resp.Source != response.SourceNetwork || string(resp.Body) != "page" {
			t.Errorf("Serve() = %s %q", resp.Source, resp.Body)
		}
	})
}

func TestDispatcher(t *testing.T) {
	t.Parallel()

	classifier := request.NewClassifier([]string{"*.css"}, []string{"/api/"})
	d := strategy.NewDispatcher(classifier, strategy.Config{
		Store:   newRegistry(t),
		Network: &fakeNetwork{handler: online(http.StatusOK, "x")},
	})

	tests := []struct {
		url      string
		category request.Category
		name     string
	}{
		{"https://app.example/site.css", request.CategoryStaticAsset, strategy.NameCacheFirst},
		{"https://app.example/api/items", request.CategoryAPIData, strategy.NameNetworkFirst},
		{"https://app.example/items/3", request.CategoryDynamic, strategy.NameStaleWhileRevalidate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resp, category := d.Dispatch(context.Background(), get(tt.url))
			if category != tt.category {
				t.Errorf("category = %s, want %s", category, tt.category)
			}
			if resp == nil || resp.Status != http.StatusOK {
				t.Errorf("Dispatch() response = %+v", resp)
			}
			if got := d.Strategy(tt.category).Name(); got != tt.name {
				t.Errorf("Strategy(%s) = %s, want %s", tt.category, got, tt.name)
			}
		})
	}
}

func TestNetworkFirst_StoreWriteFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		store        func(t *testing.T) strategy.Store
		wantFailures int64
	}{
		{"write before activation is skipped", func(*testing.T) strategy.Store {
			return cache.NewRegistry(memory.NewBackend())
		}, 0},
		{"rejected write is counted", func(*testing.T) strategy.Store {
			return failingStore{cache.NewRegistry(nil)}
		}, 1},
		{"successful write", func(t *testing.T) strategy.Store {
			return newRegistry(t)
		}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			reader := sdkmetric.NewManualReader()
			mp := telemetry.NewMetricsProvider(telemetry.MetricsConfig{
				MeterName:     "test",
				MeterProvider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
			})
			s := strategy.NewNetworkFirst(strategy.Config{
				Store:   tt.store(t),
				Network: &fakeNetwork{handler: online(http.StatusOK, "fresh")},
				Metrics: mp,
			})

			resp := s.Serve(context.Background(), get("https://app.example/api/x"))
			if resp.Status != http.StatusOK || string(resp.Body) != "fresh" {
				t.Fatalf("Serve() = %d %q, want 200 fresh", resp.Status, resp.Body)
			}

			if got := writeFailures(t, reader); got != tt.wantFailures {
				t.Errorf("store write failures = %d, want %d", got, tt.wantFailures)
			}
		})
	}
}

func writeFailures(t *testing.T, reader *sdkmetric.ManualReader) int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "agent.store.write_failures" {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}
