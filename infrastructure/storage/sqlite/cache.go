package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/felixgeelhaar/offline-agent/domain/cache"
)

// Backend is a SQLite-backed implementation of cache.Backend.
type Backend struct {
	db    *sql.DB
	owned bool
}

// NewBackend opens a database and creates a backend that owns it.
func NewBackend(cfg Config, opts ...Option) (*Backend, error) {
	db, err := Open(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &Backend{db: db, owned: true}, nil
}

// NewBackendFromDB creates a backend over an existing database connection.
// The schema is migrated; closing the backend does not close db.
func NewBackendFromDB(db *sql.DB) (*Backend, error) {
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return &Backend{db: db}, nil
}

// Get retrieves a value.
func (b *Backend) Get(ctx context.Context, store, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var value []byte
	err := b.db.QueryRowContext(ctx,
		"SELECT value FROM cache_entries WHERE store = ? AND key = ?",
		store, key,
	).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, cache.ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Put stores a value, replacing any previous value.
func (b *Backend) Put(ctx context.Context, store, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return cache.ErrInvalidKey
	}

	_, err := b.db.ExecContext(ctx, `
		INSERT INTO cache_entries (store, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(store, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, store, key, value, time.Now().Unix())

	return err
}

// PutIfAbsent stores a value only when the key is absent.
func (b *Backend) PutIfAbsent(ctx context.Context, store, key string, value []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if key == "" {
		return false, cache.ErrInvalidKey
	}

	res, err := b.db.ExecContext(ctx, `
		INSERT INTO cache_entries (store, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(store, key) DO NOTHING
	`, store, key, value, time.Now().Unix())
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Delete removes a key.
func (b *Backend) Delete(ctx context.Context, store, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := b.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE store = ? AND key = ?", store, key)
	return err
}

// Keys lists the keys of a store in sorted order.
func (b *Backend) Keys(ctx context.Context, store string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return b.strings(ctx, "SELECT key FROM cache_entries WHERE store = ? ORDER BY key", store)
}

// Stores enumerates all non-empty stores.
func (b *Backend) Stores(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return b.strings(ctx, "SELECT DISTINCT store FROM cache_entries ORDER BY store")
}

// Drop removes a store and all of its keys.
func (b *Backend) Drop(ctx context.Context, store string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := b.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE store = ?", store)
	return err
}

// Close closes the database connection if the backend owns it.
func (b *Backend) Close() error {
	if b.owned {
		return b.db.Close()
	}
	return nil
}

// DB returns the underlying database connection.
func (b *Backend) DB() *sql.DB {
	return b.db
}

func (b *Backend) strings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

var _ cache.Backend = (*Backend)(nil)
