package badger

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/felixgeelhaar/offline-agent/domain/cache"
)

// Key format: prefix + "store:" + storeName + 0x00 + key.
// The NUL separator keeps store names unambiguous and lets Stores skip
// over a whole store with a single seek.
const storeSep = 0x00

// Backend is a BadgerDB-backed implementation of cache.Backend.
type Backend struct {
	db        *badger.DB
	keyPrefix string
	owned     bool
	stopGC    func()
	closeOnce sync.Once
}

// NewBackend opens a database and creates a backend that owns it.
func NewBackend(cfg Config, opts ...Option) (*Backend, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}

	b := &Backend{
		db:        db,
		keyPrefix: cfg.KeyPrefix,
		owned:     true,
		stopGC:    StartGC(db, cfg),
	}
	return b, nil
}

// NewBackendFromDB creates a backend over an existing database.
// Closing the backend does not close db, and the caller owns value log GC
// for it (see StartGC).
func NewBackendFromDB(db *badger.DB, keyPrefix string) *Backend {
	return &Backend{
		db:        db,
		keyPrefix: keyPrefix,
		stopGC:    func() {},
	}
}

func (b *Backend) storePrefix() []byte {
	return []byte(b.keyPrefix + "store:")
}

func (b *Backend) keysPrefix(store string) []byte {
	p := append(b.storePrefix(), store...)
	return append(p, storeSep)
}

func (b *Backend) entryKey(store, key string) []byte {
	return append(b.keysPrefix(store), key...)
}

// Get retrieves a value.
func (b *Backend) Get(ctx context.Context, store, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(b.entryKey(store, key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, cache.ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
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

	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(b.entryKey(store, key), value)
	})
}

// PutIfAbsent stores a value only when the key is absent.
func (b *Backend) PutIfAbsent(ctx context.Context, store, key string, value []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if key == "" {
		return false, cache.ErrInvalidKey
	}

	k := b.entryKey(store, key)
	set := false

	err := b.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(k)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		set = true
		return txn.Set(k, value)
	})
	if errors.Is(err, badger.ErrConflict) {
		// A concurrent writer won the race for this key.
		return false, nil
	}

	return set, err
}

// Delete removes a key.
func (b *Backend) Delete(ctx context.Context, store, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(b.entryKey(store, key))
	})
}

// Keys lists the keys of a store in sorted order.
func (b *Backend) Keys(ctx context.Context, store string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := b.keysPrefix(store)
	var keys []string

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})

	return keys, err
}

// Stores enumerates all non-empty stores.
func (b *Backend) Stores(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := b.storePrefix()
	var names []string

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		it.Rewind()
		for it.Valid() {
			rest := it.Item().Key()[len(prefix):]
			i := bytes.IndexByte(rest, storeSep)
			if i < 0 {
				it.Next()
				continue
			}
			name := string(rest[:i])
			names = append(names, name)

			// Skip past every key of this store.
			next := append(append([]byte(nil), prefix...), name...)
			it.Seek(append(next, storeSep+1))
		}
		return nil
	})

	return names, err
}

// Drop removes a store and all of its keys.
func (b *Backend) Drop(ctx context.Context, store string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.DropPrefix(b.keysPrefix(store))
}

// Close stops background GC and closes the database if the backend owns it.
func (b *Backend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.stopGC()
		if b.owned {
			err = b.db.Close()
		}
	})
	return err
}

// DB returns the underlying BadgerDB database.
func (b *Backend) DB() *badger.DB {
	return b.db
}

var _ cache.Backend = (*Backend)(nil)
