package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/felixgeelhaar/offline-agent/domain/cache"
)

func TestBackend_keys(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		keyPrefix string
		store     string
		wantStore string
		wantIndex string
	}{
		{"empty prefix", "", "static-v1", "store:static-v1", "stores"},
		{"namespaced", "edge:", "dynamic-v2", "edge:store:dynamic-v2", "edge:stores"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b := NewBackendFromClient(nil, tt.keyPrefix)
			if got := b.storeKey(tt.store); got != tt.wantStore {
				t.Errorf("storeKey() = %s, want %s", got, tt.wantStore)
			}
			if got := b.indexKey(); got != tt.wantIndex {
				t.Errorf("indexKey() = %s, want %s", got, tt.wantIndex)
			}
		})
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string { return "i/o timeout" }
func (timeoutErr) Timeout() bool { return true }

func TestWrapError(t *testing.T) {
	t.Parallel()

	if wrapError(nil) != nil {
		t.Error("wrapError(nil) should be nil")
	}
	if err := wrapError(context.DeadlineExceeded); !errors.Is(err, cache.ErrConnectionFailed) {
		t.Errorf("deadline not mapped: %v", err)
	}
	if err := wrapError(timeoutErr{}); !errors.Is(err, cache.ErrConnectionFailed) {
		t.Errorf("net timeout not mapped: %v", err)
	}
	plain := errors.New("WRONGTYPE")
	if err := wrapError(plain); err != plain {
		t.Errorf("plain error changed: %v", err)
	}
}

func TestBackend_ContextCancelled(t *testing.T) {
	t.Parallel()

	b := NewBackendFromClient(nil, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := b.Get(ctx, "s", "k"); !errors.Is(err, context.Canceled) {
		t.Errorf("Get() error = %v, want context.Canceled", err)
	}
	if err := b.Put(ctx, "s", "k", nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Put() error = %v, want context.Canceled", err)
	}
}

func TestBackend_Integration(t *testing.T) {
	addr := os.Getenv("OFFLINE_AGENT_TEST_REDIS")
	if addr == "" {
		t.Skip("OFFLINE_AGENT_TEST_REDIS not set")
	}

	b, err := NewBackend(DefaultConfig(), WithAddress(addr), WithKeyPrefix("test:"+time.Now().Format("150405.000")+":"))
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	r := cache.NewRegistry(b)

	if err := b.Put(ctx, "static-v1", "a", []byte("1")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	ok, err := b.PutIfAbsent(ctx, "static-v1", "a", []byte("2"))
	if err != nil || ok {
		t.Fatalf("PutIfAbsent() = %v, %v, want false, nil", ok, err)
	}

	purged, err := r.Activate(ctx, "v2")
	if err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if len(purged) != 1 {
		t.Errorf("purged = %v, want [static-v1]", purged)
	}
	if _, err := b.Get(ctx, "static-v1", "a"); !errors.Is(err, cache.ErrCacheMiss) {
		t.Errorf("Get() after purge error = %v, want ErrCacheMiss", err)
	}
	_ = b.Drop(ctx, "meta")
}
