package redis

import (
	"context"
	"errors"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/felixgeelhaar/offline-agent/domain/cache"
)

// Backend is a Redis-backed implementation of cache.Backend.
// Each store is a hash at prefix+"store:"+name; the set at prefix+"stores"
// indexes the store names.
type Backend struct {
	client    *redis.Client
	keyPrefix string
}

// NewBackend connects to Redis and creates a backend.
func NewBackend(cfg Config, opts ...ConfigOption) (*Backend, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Join(cache.ErrConnectionFailed, err)
	}

	return &Backend{client: client, keyPrefix: cfg.KeyPrefix}, nil
}

// NewBackendFromClient creates a backend from an existing Redis client.
func NewBackendFromClient(client *redis.Client, keyPrefix string) *Backend {
	return &Backend{client: client, keyPrefix: keyPrefix}
}

func (b *Backend) storeKey(store string) string {
	return b.keyPrefix + "store:" + store
}

func (b *Backend) indexKey() string {
	return b.keyPrefix + "stores"
}

// Get retrieves a value.
func (b *Backend) Get(ctx context.Context, store, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := b.client.HGet(ctx, b.storeKey(store), key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, cache.ErrCacheMiss
		}
		return nil, wrapError(err)
	}
	return result, nil
}

// Put stores a value.
func (b *Backend) Put(ctx context.Context, store, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return cache.ErrInvalidKey
	}

	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, b.storeKey(store), key, value)
		pipe.SAdd(ctx, b.indexKey(), store)
		return nil
	})
	return wrapError(err)
}

// PutIfAbsent stores a value only when the key is absent.
func (b *Backend) PutIfAbsent(ctx context.Context, store, key string, value []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if key == "" {
		return false, cache.ErrInvalidKey
	}

	var set *redis.BoolCmd
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		set = pipe.HSetNX(ctx, b.storeKey(store), key, value)
		pipe.SAdd(ctx, b.indexKey(), store)
		return nil
	})
	if err != nil {
		return false, wrapError(err)
	}
	return set.Val(), nil
}

// Delete removes a key.
func (b *Backend) Delete(ctx context.Context, store, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := b.client.HDel(ctx, b.storeKey(store), key).Err(); err != nil {
		return wrapError(err)
	}

	n, err := b.client.HLen(ctx, b.storeKey(store)).Result()
	if err != nil {
		return wrapError(err)
	}
	if n == 0 {
		return wrapError(b.client.SRem(ctx, b.indexKey(), store).Err())
	}
	return nil
}

// Keys lists the keys of a store in sorted order.
func (b *Backend) Keys(ctx context.Context, store string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	keys, err := b.client.HKeys(ctx, b.storeKey(store)).Result()
	if err != nil {
		return nil, wrapError(err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Stores enumerates all indexed stores.
func (b *Backend) Stores(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	names, err := b.client.SMembers(ctx, b.indexKey()).Result()
	if err != nil {
		return nil, wrapError(err)
	}
	sort.Strings(names)
	return names, nil
}

// Drop removes a store and all of its keys.
func (b *Backend) Drop(ctx context.Context, store string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, b.storeKey(store))
		pipe.SRem(ctx, b.indexKey(), store)
		return nil
	})
	return wrapError(err)
}

// Close closes the Redis connection.
func (b *Backend) Close() error {
	return b.client.Close()
}

// Ping checks the Redis connection.
func (b *Backend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// wrapError wraps Redis errors with domain errors.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(cache.ErrConnectionFailed, err)
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.Join(cache.ErrConnectionFailed, err)
	}

	return err
}

var _ cache.Backend = (*Backend)(nil)
