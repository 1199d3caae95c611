package redis

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	if cfg.Address != "localhost:6379" {
		t.Errorf("Address = %s, want localhost:6379", cfg.Address)
	}
	if cfg.DialTimeout != 5*time.Second {
		t.Errorf("DialTimeout = %v, want %v", cfg.DialTimeout, 5*time.Second)
	}
	if cfg.KeyPrefix != "offline-agent:" {
		t.Errorf("KeyPrefix = %s, want offline-agent:", cfg.KeyPrefix)
	}
}

func TestConfigOptions(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	for _, opt := range []ConfigOption{
		WithAddress("redis.internal:6380"),
		WithPassword("secret"),
		WithDB(3),
		WithKeyPrefix("edge:"),
		WithPoolSize(20),
		WithTimeouts(time.Second, 2*time.Second, 3*time.Second),
	} {
		opt(&cfg)
	}

	if cfg.Address != "redis.internal:6380" || cfg.Password != "secret" || cfg.DB != 3 {
		t.Errorf("connection options not applied: %+v", cfg)
	}
	if cfg.KeyPrefix != "edge:" || cfg.PoolSize != 20 {
		t.Errorf("prefix/pool options not applied: %+v", cfg)
	}
	if cfg.DialTimeout != time.Second || cfg.ReadTimeout != 2*time.Second || cfg.WriteTimeout != 3*time.Second {
		t.Errorf("timeouts not applied: %+v", cfg)
	}
}
