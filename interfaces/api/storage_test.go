package api_test

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/felixgeelhaar/offline-agent/domain/cache"
	"github.com/felixgeelhaar/offline-agent/domain/queue"
	"github.com/felixgeelhaar/offline-agent/domain/request"
	"github.com/felixgeelhaar/offline-agent/domain/response"
	api "github.com/felixgeelhaar/offline-agent/interfaces/api"
)

func TestOpenStorage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  func(dir string) api.StorageConfig
	}{
		{"memory", func(string) api.StorageConfig {
			return api.StorageConfig{Backend: "memory", DynamicMaxEntries: 10}
		}},
		{"default is memory", func(string) api.StorageConfig {
			return api.StorageConfig{}
		}},
		{"badger", func(dir string) api.StorageConfig {
			return api.StorageConfig{Backend: "badger", Dir: dir}
		}},
		{"sqlite", func(dir string) api.StorageConfig {
			return api.StorageConfig{Backend: "sqlite", DSN: "file:" + filepath.Join(dir, "agent.db") + "?mode=rwc"}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			storage, err := api.OpenStorage(tt.cfg(t.TempDir()))
			if err != nil {
				t.Fatalf("OpenStorage() error = %v", err)
			}

			reg := cache.NewRegistry(storage.Backend)
			if _, err := reg.Activate(ctx, "v1"); err != nil {
				t.Fatalf("Activate() error = %v", err)
			}
			entry := response.NewEntry("GET https://app.example/a.css", response.New(http.StatusOK, []byte("a")))
			if err := reg.Save(ctx, cache.KindStatic, entry); err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			op, err := storage.Queue.Append(ctx, queue.NewOperation(request.New(http.MethodPost, "https://app.example/api/x")))
			if err != nil {
				t.Fatalf("Append() error = %v", err)
			}
			head, err := storage.Queue.Peek(ctx)
			if err != nil || head.Sequence != op.Sequence {
				t.Errorf("Peek() = %d, %v; want %d", head.Sequence, err, op.Sequence)
			}

			if err := errors.Join(reg.Close(), storage.Queue.Close(), storage.Release()); err != nil {
				t.Errorf("close error = %v", err)
			}
		})
	}
}

func TestOpenStorage_UnknownBackend(t *testing.T) {
	t.Parallel()

	if _, err := api.OpenStorage(api.StorageConfig{Backend: "floppy"}); !errors.Is(err, api.ErrUnknownBackend) {
		t.Errorf("error = %v, want ErrUnknownBackend", err)
	}
}
