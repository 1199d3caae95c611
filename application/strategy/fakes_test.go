package strategy_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/felixgeelhaar/offline-agent/domain/cache"
	"github.com/felixgeelhaar/offline-agent/domain/request"
	"github.com/felixgeelhaar/offline-agent/domain/response"
	"github.com/felixgeelhaar/offline-agent/infrastructure/storage/memory"
)

var errOffline = errors.New("dial tcp: connection refused")

// fakeNetwork answers from a handler and counts calls.
type fakeNetwork struct {
	mu      sync.Mutex
	calls   int
	handler func(req request.Request) (*response.Response, error)
}

func (n *fakeNetwork) Fetch(_ context.Context, req request.Request) (*response.Response, error) {
	n.mu.Lock()
	n.calls++
	h := n.handler
	n.mu.Unlock()
	return h(req)
}

func (n *fakeNetwork) Calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

func (n *fakeNetwork) Set(h func(req request.Request) (*response.Response, error)) {
	n.mu.Lock()
	n.handler = h
	n.mu.Unlock()
}

func online(status int, body string) func(request.Request) (*response.Response, error) {
	return func(request.Request) (*response.Response, error) {
		r := response.New(status, []byte(body))
		r.Source = response.SourceNetwork
		return r, nil
	}
}

func offline(request.Request) (*response.Response, error) {
	return nil, errOffline
}

// failingStore rejects every write.
type failingStore struct {
	*cache.Registry
}

func (failingStore) Save(context.Context, cache.Kind, response.Entry) error {
	return cache.ErrStoreWrite
}

func newRegistry(t *testing.T) *cache.Registry {
	t.Helper()

	reg := cache.NewRegistry(memory.NewBackend())
	if _, err := reg.Activate(context.Background(), "v1"); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	return reg
}

func get(url string) request.Request {
	return request.New(http.MethodGet, url)
}
