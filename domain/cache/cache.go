// Package cache provides the versioned cache store registry.
//
// Responses are kept in named partitions ("stores"). Each version of the
// application owns one static store and one dynamic store, named
// "static-<tag>" and "dynamic-<tag>". A Backend persists the raw bytes of
// every store; the Registry layers generation tracking and purge-on-activate
// on top of it.
package cache

import (
	"context"
)

// Backend persists named stores of key/value pairs.
// Implementations may be in-memory, Badger, SQLite, Redis, or any other backend.
type Backend interface {
	// Get retrieves a value. Returns ErrCacheMiss when the key is absent.
	Get(ctx context.Context, store, key string) ([]byte, error)

	// Put stores a value, replacing any previous value.
	Put(ctx context.Context, store, key string, value []byte) error

	// PutIfAbsent stores a value only when the key is absent.
	// Reports whether the value was written.
	PutIfAbsent(ctx context.Context, store, key string, value []byte) (bool, error)

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, store, key string) error

	// Keys lists the keys of a store.
	Keys(ctx context.Context, store string) ([]string, error)

	// Stores enumerates the names of all stores holding at least one key.
	Stores(ctx context.Context) ([]string, error)

	// Drop removes a store and all of its keys.
	Drop(ctx context.Context, store string) error

	// Close releases backend resources.
	Close() error
}

// Stats describes the registry contents.
type Stats struct {
	// Current is the active version tag, empty before the first activation.
	Current VersionTag `json:"current"`
	// Stores maps store names to their entry counts.
	Stores map[string]int `json:"stores"`
}
