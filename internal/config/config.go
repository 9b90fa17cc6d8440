package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Batch    BatchConfig    `mapstructure:"batch"`
	Registry RegistryConfig `mapstructure:"registry"`
	Janus    JanusConfig    `mapstructure:"janus"`
	Store    StoreConfig    `mapstructure:"store"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Limits   LimitsConfig   `mapstructure:"limits"`
}

type ServerConfig struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	Secret     string        `mapstructure:"secret"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	SendBuffer int           `mapstructure:"send_buffer"`
}

type BatchConfig struct {
	Threshold        int           `mapstructure:"threshold"`
	RoomInterval     time.Duration `mapstructure:"room_interval"`
	DirectInterval   time.Duration `mapstructure:"direct_interval"`
	PersistTimeout   time.Duration `mapstructure:"persist_timeout"`
	FlushConcurrency int           `mapstructure:"flush_concurrency"`
}

type RegistryConfig struct {
	ReapInterval time.Duration `mapstructure:"reap_interval"`
	// SlowConsumer is "kick" or "drop".
	SlowConsumer string `mapstructure:"slow_consumer"`
}

type JanusConfig struct {
	// URL is empty when calls are disabled.
	URL             string        `mapstructure:"url"`
	Plugin          string        `mapstructure:"plugin"`
	Publishers      int           `mapstructure:"publishers"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	LongPollTimeout time.Duration `mapstructure:"long_poll_timeout"`
	PollBackoff     time.Duration `mapstructure:"poll_backoff"`
	MaxEvents       int           `mapstructure:"max_events"`
	MaxIdle         time.Duration `mapstructure:"max_idle"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type RedisConfig struct {
	URL              string `mapstructure:"url"`
	MembersKeyPrefix string `mapstructure:"members_key_prefix"`
}

type LimitsConfig struct {
	MessagesPerSecond float64       `mapstructure:"messages_per_second"`
	Burst             int           `mapstructure:"burst"`
	IdleSweep         time.Duration `mapstructure:"idle_sweep"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.secret", "change-me")
	v.SetDefault("server.read_limit", 32768)
	v.SetDefault("server.ping_period", "54s")
	v.SetDefault("server.send_buffer", 32)

	v.SetDefault("batch.threshold", 10)
	v.SetDefault("batch.room_interval", "5s")
	v.SetDefault("batch.direct_interval", "30s")
	v.SetDefault("batch.persist_timeout", "5s")
	v.SetDefault("batch.flush_concurrency", 8)

	v.SetDefault("registry.reap_interval", "30s")
	v.SetDefault("registry.slow_consumer", "kick")

	v.SetDefault("janus.url", "")
	v.SetDefault("janus.plugin", "janus.plugin.videoroom")
	v.SetDefault("janus.publishers", 16)
	v.SetDefault("janus.request_timeout", "10s")
	v.SetDefault("janus.long_poll_timeout", "60s")
	v.SetDefault("janus.poll_backoff", "500ms")
	v.SetDefault("janus.max_events", 10)
	v.SetDefault("janus.max_idle", "0s")

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.dsn", "")

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.members_key_prefix", "members:")

	v.SetDefault("limits.messages_per_second", 5)
	v.SetDefault("limits.burst", 10)
	v.SetDefault("limits.idle_sweep", "10m")
}

// Load reads config/config.<env>.yaml. An empty env falls back to CONFIG_ENV,
// then to "dev". REALTIME_* variables override file values.
func Load(env string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if env == "" {
		env = os.Getenv("CONFIG_ENV")
	}
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.SetEnvPrefix("REALTIME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	var notFound viper.ConfigFileNotFoundError
	switch err := v.ReadInConfig(); {
	case err == nil:
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	case errors.Is(err, fs.ErrNotExist), errors.As(err, &notFound):
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	default:
		return nil, fmt.Errorf("read config %s: %w", fileName, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Server.Mode).Int("port", cfg.Server.Port).Str("store", cfg.Store.Driver).Bool("calls", cfg.CallsEnabled()).Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Driver != "memory" && c.Store.DSN == "" {
		return fmt.Errorf("config: store.dsn is required for %s", c.Store.Driver)
	}
	switch c.Registry.SlowConsumer {
	case "kick", "drop":
	default:
		return fmt.Errorf("config: registry.slow_consumer must be kick or drop, got %q", c.Registry.SlowConsumer)
	}
	if c.Batch.Threshold <= 0 {
		return fmt.Errorf("config: batch.threshold must be positive")
	}
	if c.Batch.RoomInterval <= 0 || c.Batch.DirectInterval <= 0 {
		return fmt.Errorf("config: batch intervals must be positive")
	}
	return nil
}

// CallsEnabled reports whether a media server is configured.
func (c *Config) CallsEnabled() bool { return c.Janus.URL != "" }
