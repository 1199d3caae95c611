package api

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/felixgeelhaar/offline-agent/domain/cache"
	domainconfig "github.com/felixgeelhaar/offline-agent/domain/config"
	"github.com/felixgeelhaar/offline-agent/domain/queue"
	"github.com/felixgeelhaar/offline-agent/infrastructure/storage/badger"
	"github.com/felixgeelhaar/offline-agent/infrastructure/storage/memory"
	"github.com/felixgeelhaar/offline-agent/infrastructure/storage/redis"
	"github.com/felixgeelhaar/offline-agent/infrastructure/storage/sqlite"
)

// ErrUnknownBackend is returned for an unsupported storage backend name.
var ErrUnknownBackend = errors.New("unknown storage backend")

// Storage is the persistence opened for one agent: the store backend, the
// deferred queue, and a release for anything they share.
type Storage struct {
	Backend cache.Backend
	Queue   queue.Queue

	// release closes shared handles after Backend and Queue are closed.
	release func() error
}

// Release closes resources shared by the backend and queue. Call it after
// both have been closed.
func (s *Storage) Release() error {
	if s == nil || s.release == nil {
		return nil
	}
	return s.release()
}

// OpenStorage opens the backend selected by cfg.
func OpenStorage(cfg domainconfig.StorageConfig) (*Storage, error) {
	switch cfg.Backend {
	case "", domainconfig.BackendMemory:
		var opts []memory.BackendOption
		if cfg.DynamicMaxEntries > 0 {
			opts = append(opts, memory.WithMaxDynamicEntries(cfg.DynamicMaxEntries))
		}
		return &Storage{Backend: memory.NewBackend(opts...), Queue: memory.NewQueue()}, nil

	case domainconfig.BackendBadger:
		bcfg := badgerConfig(cfg)
		db, err := badger.Open(bcfg)
		if err != nil {
			return nil, err
		}
		stopGC := badger.StartGC(db, bcfg)
		return &Storage{
			Backend: badger.NewBackendFromDB(db, ""),
			Queue:   badger.NewQueueFromDB(db, ""),
			release: func() error {
				stopGC()
				return db.Close()
			},
		}, nil

	case domainconfig.BackendSQLite:
		opts := []sqlite.Option{}
		if cfg.DSN != "" {
			opts = append(opts, sqlite.WithDSN(cfg.DSN))
		}
		db, err := sqlite.Open(sqlite.DefaultConfig(), opts...)
		if err != nil {
			return nil, err
		}
		backend, err := sqlite.NewBackendFromDB(db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		q, err := sqlite.NewQueueFromDB(db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return &Storage{Backend: backend, Queue: q, release: db.Close}, nil

	case domainconfig.BackendRedis:
		backend, err := redis.NewBackend(redisConfig(cfg.Redis))
		if err != nil {
			return nil, err
		}
		bcfg := badgerConfig(cfg)
		bcfg.Dir = filepath.Join(cfg.Dir, "queue")
		q, err := badger.NewQueue(bcfg)
		if err != nil {
			_ = backend.Close()
			return nil, err
		}
		return &Storage{Backend: backend, Queue: q}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
}

func badgerConfig(cfg domainconfig.StorageConfig) badger.Config {
	bcfg := badger.DefaultConfig()
	bcfg.Dir = cfg.Dir
	bcfg.SyncWrites = cfg.SyncWrites
	return bcfg
}

func redisConfig(cfg domainconfig.RedisConfig) redis.Config {
	rcfg := redis.DefaultConfig()
	if cfg.Address != "" {
		rcfg.Address = cfg.Address
	}
	rcfg.Password = cfg.Password
	rcfg.DB = cfg.DB
	if cfg.KeyPrefix != "" {
		rcfg.KeyPrefix = cfg.KeyPrefix
	}
	return rcfg
}
