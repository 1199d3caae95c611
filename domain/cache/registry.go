package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/felixgeelhaar/offline-agent/domain/response"
)

// Keys of the meta store.
const (
	metaActiveVersion   = "active-version"
	metaInstalledPrefix = "installed:"
)

// Registry tracks the current cache generation and mediates every store
// access. Store operations hold the generation lock for reading; Activate
// holds it for writing while it purges stale stores, so no reader ever
// observes a store that is halfway through deletion.
type Registry struct {
	backend Backend

	mu      sync.RWMutex
	current atomic.Pointer[VersionTag]
}

// NewRegistry creates a registry over the given backend.
func NewRegistry(backend Backend) *Registry {
	r := &Registry{backend: backend}
	empty := VersionTag("")
	r.current.Store(&empty)
	return r
}

// Load restores the active version recorded by a previous Activate.
// It returns the empty tag when no version has been activated.
func (r *Registry) Load(ctx context.Context) (VersionTag, error) {
	data, err := r.backend.Get(ctx, MetaStore.String(), metaActiveVersion)
	if errors.Is(err, ErrCacheMiss) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load active version: %w", err)
	}

	tag := VersionTag(data)
	r.current.Store(&tag)
	return tag, nil
}

// Current returns the active version tag.
func (r *Registry) Current() VersionTag {
	return *r.current.Load()
}

// Lookup reads key from the current generation's store of the given kind.
func (r *Registry) Lookup(ctx context.Context, kind Kind, key string) (response.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tag := r.Current()
	if tag == "" {
		return response.Entry{}, fmt.Errorf("%w: %w", ErrCacheMiss, ErrNoGeneration)
	}
	return r.get(ctx, StoreName{Kind: kind, Tag: tag}, key)
}

// Save writes entry into the current generation's store of the given kind.
// Static stores keep the first entry written for a key.
func (r *Registry) Save(ctx context.Context, kind Kind, entry response.Entry) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tag := r.Current()
	if tag == "" {
		return fmt.Errorf("%w: %w", ErrStoreWrite, ErrNoGeneration)
	}
	_, err := r.put(ctx, StoreName{Kind: kind, Tag: tag}, entry)
	return err
}

// Get reads key from a named store.
func (r *Registry) Get(ctx context.Context, name StoreName, key string) (response.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.get(ctx, name, key)
}

// Put writes entry into a named store. For static stores the write only
// happens when the key is absent; the boolean reports whether it happened.
func (r *Registry) Put(ctx context.Context, name StoreName, entry response.Entry) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.put(ctx, name, entry)
}

// Stores enumerates every store name known to the backend.
func (r *Registry) Stores(ctx context.Context) ([]string, error) {
	names, err := r.backend.Stores(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a store and its entries.
func (r *Registry) Delete(ctx context.Context, name StoreName) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.backend.Drop(ctx, name.String())
}

// MarkInstalled records that every static asset of tag has been stored.
func (r *Registry) MarkInstalled(ctx context.Context, tag VersionTag) error {
	if err := r.backend.Put(ctx, MetaStore.String(), metaInstalledPrefix+string(tag), []byte(tag)); err != nil {
		return fmt.Errorf("%w: mark %s installed: %w", ErrStoreWrite, tag, err)
	}
	return nil
}

// ClearInstalled removes the installed marker of tag.
func (r *Registry) ClearInstalled(ctx context.Context, tag VersionTag) error {
	return r.backend.Delete(ctx, MetaStore.String(), metaInstalledPrefix+string(tag))
}

// IsInstalled reports whether tag completed an install.
func (r *Registry) IsInstalled(ctx context.Context, tag VersionTag) (bool, error) {
	_, err := r.backend.Get(ctx, MetaStore.String(), metaInstalledPrefix+string(tag))
	if errors.Is(err, ErrCacheMiss) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Installed lists every installed version.
func (r *Registry) Installed(ctx context.Context) ([]VersionTag, error) {
	keys, err := r.backend.Keys(ctx, MetaStore.String())
	if err != nil {
		return nil, err
	}

	var tags []VersionTag
	for _, k := range keys {
		if tag, ok := strings.CutPrefix(k, metaInstalledPrefix); ok {
			tags = append(tags, VersionTag(tag))
		}
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags, nil
}

// Activate makes tag the current generation. Every store whose tag differs
// from tag is deleted before the new generation is published. It returns the
// names of the purged stores.
func (r *Registry) Activate(ctx context.Context, tag VersionTag) ([]string, error) {
	if err := tag.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	names, err := r.backend.Stores(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate stores: %w", err)
	}
	sort.Strings(names)

	var purged []string
	for _, raw := range names {
		name, ok := ParseStoreName(raw)
		if ok && (name.Kind == KindMeta || name.Tag == tag) {
			continue
		}
		if err := r.backend.Drop(ctx, raw); err != nil {
			return purged, fmt.Errorf("purge store %s: %w", raw, err)
		}
		purged = append(purged, raw)
	}

	if err := r.pruneInstalled(ctx, tag); err != nil {
		return purged, err
	}

	if err := r.backend.Put(ctx, MetaStore.String(), metaActiveVersion, []byte(tag)); err != nil {
		return purged, fmt.Errorf("%w: record active version: %w", ErrStoreWrite, err)
	}
	r.current.Store(&tag)

	return purged, nil
}

// Stats reports the current generation and per-store entry counts.
func (r *Registry) Stats(ctx context.Context) (Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names, err := r.backend.Stores(ctx)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{Current: r.Current(), Stores: make(map[string]int, len(names))}
	for _, name := range names {
		keys, err := r.backend.Keys(ctx, name)
		if err != nil {
			return Stats{}, err
		}
		stats.Stores[name] = len(keys)
	}
	return stats, nil
}

// Close closes the backend.
func (r *Registry) Close() error {
	return r.backend.Close()
}

func (r *Registry) get(ctx context.Context, name StoreName, key string) (response.Entry, error) {
	if key == "" {
		return response.Entry{}, ErrInvalidKey
	}

	data, err := r.backend.Get(ctx, name.String(), key)
	if err != nil {
		return response.Entry{}, err
	}

	entry, err := response.DecodeEntry(data)
	if err != nil {
		return response.Entry{}, fmt.Errorf("decode entry %s in %s: %w", key, name, err)
	}
	return entry, nil
}

func (r *Registry) put(ctx context.Context, name StoreName, entry response.Entry) (bool, error) {
	if entry.Key == "" {
		return false, ErrInvalidKey
	}

	data, err := entry.Encode()
	if err != nil {
		return false, fmt.Errorf("%w: encode %s: %w", ErrStoreWrite, entry.Key, err)
	}

	if name.Kind == KindStatic {
		written, err := r.backend.PutIfAbsent(ctx, name.String(), entry.Key, data)
		if err != nil {
			return false, fmt.Errorf("%w: %s: %w", ErrStoreWrite, name, err)
		}
		return written, nil
	}

	if err := r.backend.Put(ctx, name.String(), entry.Key, data); err != nil {
		return false, fmt.Errorf("%w: %s: %w", ErrStoreWrite, name, err)
	}
	return true, nil
}

// pruneInstalled drops installed markers of every version except keep.
// Must be called with the write lock held.
func (r *Registry) pruneInstalled(ctx context.Context, keep VersionTag) error {
	keys, err := r.backend.Keys(ctx, MetaStore.String())
	if err != nil {
		return fmt.Errorf("list meta: %w", err)
	}
	for _, k := range keys {
		tag, ok := strings.CutPrefix(k, metaInstalledPrefix)
		if !ok || VersionTag(tag) == keep {
			continue
		}
		if err := r.backend.Delete(ctx, MetaStore.String(), k); err != nil {
			return fmt.Errorf("clear installed marker %s: %w", tag, err)
		}
	}
	return nil
}
