// Package badger provides BadgerDB-backed cache stores and the durable
// deferred-operation queue.
package badger

import (
	"errors"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Config configures BadgerDB storage.
type Config struct {
	// Dir is the directory to store data in.
	Dir string

	// InMemory uses in-memory storage (useful for testing).
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// ValueLogFileSize sets the size of value log files in bytes.
	ValueLogFileSize int64

	// NumVersionsToKeep sets the number of versions to keep per key.
	NumVersionsToKeep int

	// GCDiscardRatio is the discard ratio for GC.
	GCDiscardRatio float64

	// GCInterval is the interval between GC runs.
	GCInterval time.Duration

	// KeyPrefix is added to all keys.
	KeyPrefix string

	// Logger is the logger to use (nil silences badger).
	Logger badger.Logger
}

// Option configures BadgerDB storage.
type Option func(*Config)

// WithDir sets the data directory.
func WithDir(dir string) Option {
	return func(c *Config) {
		c.Dir = dir
	}
}

// WithInMemory enables in-memory storage.
func WithInMemory() Option {
	return func(c *Config) {
		c.InMemory = true
	}
}

// WithSyncWrites enables synchronous writes.
func WithSyncWrites() Option {
	return func(c *Config) {
		c.SyncWrites = true
	}
}

// WithGCInterval sets the GC interval.
func WithGCInterval(d time.Duration) Option {
	return func(c *Config) {
		c.GCInterval = d
	}
}

// WithKeyPrefix sets the key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(c *Config) {
		c.KeyPrefix = prefix
	}
}

// WithLogger sets the logger.
func WithLogger(logger badger.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// DefaultConfig returns sensible default configuration. Queued operations
// must survive a crash, so writes are synchronous by default.
func DefaultConfig() Config {
	return Config{
		SyncWrites:        true,
		ValueLogFileSize:  1 << 26, // 64MB
		NumVersionsToKeep: 1,
		GCDiscardRatio:    0.5,
		GCInterval:        5 * time.Minute,
	}
}

// Errors
var (
	ErrConnectionFailed = errors.New("badger: connection failed")
)

// Open opens a BadgerDB database with the given configuration.
func Open(cfg Config, opts ...Option) (*badger.DB, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	bopts := badger.DefaultOptions(cfg.Dir)

	if cfg.InMemory {
		bopts = bopts.WithInMemory(true).WithDir("").WithValueDir("")
	}

	bopts = bopts.WithSyncWrites(cfg.SyncWrites)

	if cfg.ValueLogFileSize > 0 {
		bopts = bopts.WithValueLogFileSize(cfg.ValueLogFileSize)
	}

	if cfg.NumVersionsToKeep > 0 {
		bopts = bopts.WithNumVersionsToKeep(cfg.NumVersionsToKeep)
	}

	bopts = bopts.WithLogger(cfg.Logger)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, errors.Join(ErrConnectionFailed, err)
	}

	return db, nil
}

// StartGC runs value log GC on db every cfg.GCInterval until the returned
// stop function is called. It is a no-op for in-memory databases or a zero
// interval. Stop waits for an in-flight GC pass and is safe to call twice.
func StartGC(db *badger.DB, cfg Config) (stop func()) {
	if cfg.GCInterval <= 0 || cfg.InMemory {
		return func() {}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Go(func() { runGC(db, cfg.GCInterval, cfg.GCDiscardRatio, done) })

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}

// runGC reclaims value log space until badger reports nothing left to do
// or stop is closed.
func runGC(db *badger.DB, interval time.Duration, discardRatio float64, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			for db.RunValueLogGC(discardRatio) == nil {
			}
		}
	}
}
