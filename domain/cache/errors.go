package cache

import "errors"

// Domain errors for cache operations.
var (
	// ErrCacheMiss is returned when a key is not present in a store.
	ErrCacheMiss = errors.New("cache miss")

	// ErrStoreWrite is returned when a store rejects a write.
	ErrStoreWrite = errors.New("cache store write failed")

	// ErrInvalidKey is returned when a key is invalid (e.g., empty).
	ErrInvalidKey = errors.New("invalid cache key")

	// ErrInvalidVersion is returned for an empty or malformed version tag.
	ErrInvalidVersion = errors.New("invalid version tag")

	// ErrNoGeneration is returned when no version has been activated yet.
	ErrNoGeneration = errors.New("no active cache generation")

	// ErrConnectionFailed is returned when connection to the cache backend fails.
	ErrConnectionFailed = errors.New("cache connection failed")

	// ErrBackendClosed is returned when a closed backend is used.
	ErrBackendClosed = errors.New("cache backend closed")
)
