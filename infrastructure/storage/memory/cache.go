// Package memory provides in-memory cache and queue backends.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/offline-agent/domain/cache"
)

// cacheEntry holds a stored value and its last access time.
type cacheEntry struct {
	value    []byte
	accessAt time.Time
}

// Backend is an in-memory implementation of cache.Backend.
// Dynamic stores can optionally be bounded, evicting the least recently
// accessed entry when full. Static and meta stores are never evicted.
type Backend struct {
	stores     map[string]map[string]*cacheEntry
	maxDynamic int
	closed     bool
	mu         sync.RWMutex
}

// BackendOption configures the backend.
type BackendOption func(*Backend)

// WithMaxDynamicEntries bounds each dynamic store. Zero means unbounded.
func WithMaxDynamicEntries(n int) BackendOption {
	return func(b *Backend) {
		b.maxDynamic = n
	}
}

// NewBackend creates a new in-memory backend.
func NewBackend(opts ...BackendOption) *Backend {
	b := &Backend{stores: make(map[string]map[string]*cacheEntry)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Get retrieves a value.
func (b *Backend) Get(ctx context.Context, store, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, cache.ErrBackendClosed
	}

	entry, ok := b.stores[store][key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	entry.accessAt = time.Now()

	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, nil
}

// Put stores a value.
func (b *Backend) Put(ctx context.Context, store, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return cache.ErrInvalidKey
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return cache.ErrBackendClosed
	}
	b.set(store, key, value)
	return nil
}

// PutIfAbsent stores a value only when the key is absent.
func (b *Backend) PutIfAbsent(ctx context.Context, store, key string, value []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if key == "" {
		return false, cache.ErrInvalidKey
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false, cache.ErrBackendClosed
	}
	if _, exists := b.stores[store][key]; exists {
		return false, nil
	}
	b.set(store, key, value)
	return true, nil
}

// Delete removes a key.
func (b *Backend) Delete(ctx context.Context, store, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return cache.ErrBackendClosed
	}

	entries, ok := b.stores[store]
	if !ok {
		return nil
	}
	delete(entries, key)
	if len(entries) == 0 {
		delete(b.stores, store)
	}
	return nil
}

// Keys lists the keys of a store in sorted order.
func (b *Backend) Keys(ctx context.Context, store string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, cache.ErrBackendClosed
	}

	keys := make([]string, 0, len(b.stores[store]))
	for k := range b.stores[store] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Stores enumerates all non-empty stores.
func (b *Backend) Stores(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, cache.ErrBackendClosed
	}

	names := make([]string, 0, len(b.stores))
	for name := range b.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Drop removes a store.
func (b *Backend) Drop(ctx context.Context, store string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return cache.ErrBackendClosed
	}
	delete(b.stores, store)
	return nil
}

// Close marks the backend closed and releases its contents.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.stores = nil
	return nil
}

// set writes a copy of value. Must be called with lock held.
func (b *Backend) set(store, key string, value []byte) {
	entries, ok := b.stores[store]
	if !ok {
		entries = make(map[string]*cacheEntry)
		b.stores[store] = entries
	}

	if _, exists := entries[key]; !exists && b.bounded(store) && len(entries) >= b.maxDynamic {
		evictLRU(entries)
	}

	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)
	entries[key] = &cacheEntry{value: valueCopy, accessAt: time.Now()}
}

func (b *Backend) bounded(store string) bool {
	return b.maxDynamic > 0 && strings.HasPrefix(store, string(cache.KindDynamic)+"-")
}

// evictLRU removes the least recently accessed entry.
func evictLRU(entries map[string]*cacheEntry) {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range entries {
		if oldestKey == "" || entry.accessAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.accessAt
		}
	}

	if oldestKey != "" {
		delete(entries, oldestKey)
	}
}

var _ cache.Backend = (*Backend)(nil)
