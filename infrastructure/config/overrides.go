package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	domainconfig "github.com/felixgeelhaar/offline-agent/domain/config"
)

// EnvPrefix is the prefix of every override variable.
const EnvPrefix = "OFFLINE_AGENT_"

// overrides holds the variables that may replace file values. Unset
// variables leave their pointer nil.
type overrides struct {
	Version         *string        `env:"VERSION"`
	Origin          *string        `env:"ORIGIN"`
	StorageBackend  *string        `env:"STORAGE_BACKEND"`
	StorageDir      *string        `env:"STORAGE_DIR"`
	StorageDSN      *string        `env:"STORAGE_DSN"`
	RedisAddress    *string        `env:"REDIS_ADDRESS"`
	RedisPassword   *string        `env:"REDIS_PASSWORD"`
	NetworkTimeout  *time.Duration `env:"NETWORK_TIMEOUT"`
	ReplayRate      *int           `env:"REPLAY_RATE"`
	ReplayBurst     *int           `env:"REPLAY_BURST"`
	LogLevel        *string        `env:"LOG_LEVEL"`
	LogFormat       *string        `env:"LOG_FORMAT"`
	NotifyURL       *string        `env:"NOTIFY_URL"`
	NotifySecret    *string        `env:"NOTIFY_SECRET"`
	TelemetryTraces *string        `env:"TELEMETRY_TRACES"`
	TelemetryMetric *string        `env:"TELEMETRY_METRICS"`
	OTLPEndpoint    *string        `env:"OTLP_ENDPOINT"`
	Listen          *string        `env:"LISTEN"`
}

// ApplyOverrides replaces fields of cfg with OFFLINE_AGENT_* variables that
// are set in the environment.
func ApplyOverrides(cfg *domainconfig.AgentConfig) error {
	var o overrides
	if err := env.ParseWithOptions(&o, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("%w: %v", domainconfig.ErrEnvExpansionFailed, err)
	}

	setString(&cfg.Version, o.Version)
	setString(&cfg.Origin, o.Origin)
	setString(&cfg.Storage.Backend, o.StorageBackend)
	setString(&cfg.Storage.Dir, o.StorageDir)
	setString(&cfg.Storage.DSN, o.StorageDSN)
	setString(&cfg.Storage.Redis.Address, o.RedisAddress)
	setString(&cfg.Storage.Redis.Password, o.RedisPassword)
	setString(&cfg.Logging.Level, o.LogLevel)
	setString(&cfg.Logging.Format, o.LogFormat)
	setString(&cfg.Server.Listen, o.Listen)
	setString(&cfg.Telemetry.Endpoint, o.OTLPEndpoint)

	if o.NetworkTimeout != nil {
		cfg.Network.Timeout = domainconfig.Duration(*o.NetworkTimeout)
	}
	if o.ReplayRate != nil {
		cfg.Replay.Rate = *o.ReplayRate
	}
	if o.ReplayBurst != nil {
		cfg.Replay.Burst = *o.ReplayBurst
	}
	if o.NotifyURL != nil {
		cfg.Notification.Enabled = *o.NotifyURL != ""
		cfg.Notification.Endpoint.URL = *o.NotifyURL
	}
	setString(&cfg.Notification.Endpoint.Secret, o.NotifySecret)
	if o.TelemetryTraces != nil || o.TelemetryMetric != nil {
		cfg.Telemetry.Enabled = true
		setString(&cfg.Telemetry.Traces, o.TelemetryTraces)
		setString(&cfg.Telemetry.Metrics, o.TelemetryMetric)
	}

	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
