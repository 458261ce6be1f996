// Package config loads and validates bot configuration from a YAML file and
// RADIORELAY_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "RADIORELAY_"

// Config is the full bot configuration.
type Config struct {
	Discord   DiscordConfig   `koanf:"discord"`
	Relay     RelayConfig     `koanf:"relay"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Storage   StorageConfig   `koanf:"storage"`
	Log       LogConfig       `koanf:"log"`
	Server    ServerConfig    `koanf:"server"`
}

// DiscordConfig identifies the bot and the channels it works in.
type DiscordConfig struct {
	Token          string `koanf:"token" validate:"required"`
	RadioChannelID string `koanf:"radio_channel_id" validate:"required"`
	AdminChannelID string `koanf:"admin_channel_id" validate:"required"`
	StaffRoleID    string `koanf:"staff_role_id" validate:"required"`
}

// RelayConfig controls the repost pipeline.
type RelayConfig struct {
	Retention    time.Duration `koanf:"retention" validate:"gt=0"`
	PublicFooter string        `koanf:"public_footer"`
	AdminFooter  string        `koanf:"admin_footer"`
}

// SchedulerConfig controls the reconciliation loop and retry policy.
type SchedulerConfig struct {
	TickInterval       time.Duration `koanf:"tick_interval" validate:"gt=0"`
	MaxAttempts        int           `koanf:"max_attempts" validate:"gte=1"`
	BaseBackoff        time.Duration `koanf:"base_backoff" validate:"gt=0"`
	MaxBackoff         time.Duration `koanf:"max_backoff" validate:"gt=0"`
	RequestTimeout     time.Duration `koanf:"request_timeout" validate:"gt=0"`
	RateLimitPerSec    float64       `koanf:"rate_limit_per_sec" validate:"gt=0"`
	HaltOnStorageError bool          `koanf:"halt_on_storage_error"`
}

// StorageConfig selects and configures the schedule backend.
type StorageConfig struct {
	Backend  string         `koanf:"backend" validate:"oneof=file postgres"`
	File     FileStorage    `koanf:"file"`
	Postgres PostgresConfig `koanf:"postgres"`
}

// FileStorage configures the file backend.
type FileStorage struct {
	Path string `koanf:"path"`
}

// PostgresConfig configures the relational backend.
type PostgresConfig struct {
	Host            string `koanf:"host"`
	Port            int    `koanf:"port"`
	User            string `koanf:"user"`
	Password        string `koanf:"password"`
	Database        string `koanf:"database"`
	MaxConns        int    `koanf:"max_conns"`
	ConnectAttempts int    `koanf:"connect_attempts"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// ServerConfig configures the metrics/health HTTP listener.
type ServerConfig struct {
	MetricsAddr string `koanf:"metrics_addr"`
}

// Default returns the configuration defaults.
func Default() Config {
	return Config{
		Relay: RelayConfig{
			Retention:    24 * time.Hour,
			PublicFooter: "ResurgenceRP Radio",
			AdminFooter:  "ResurgenceRP Radio Admin Log",
		},
		Scheduler: SchedulerConfig{
			TickInterval:       30 * time.Second,
			MaxAttempts:        5,
			BaseBackoff:        time.Minute,
			MaxBackoff:         15 * time.Minute,
			RequestTimeout:     10 * time.Second,
			RateLimitPerSec:    5,
			HaltOnStorageError: true,
		},
		Storage: StorageConfig{
			Backend: "file",
			File:    FileStorage{Path: "deletion_schedule.json"},
			Postgres: PostgresConfig{
				Host:            "localhost",
				Port:            5432,
				MaxConns:        4,
				ConnectAttempts: 5,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			MetricsAddr: ":9090",
		},
	}
}

// Load reads configuration from the YAML file at path (optional) and the
// environment, on top of defaults, and validates the result. Environment
// variables use RADIORELAY_ with "__" for nesting, e.g.
// RADIORELAY_DISCORD__TOKEN.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
			key = strings.ReplaceAll(key, "__", ".")
			return key, value
		},
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration, including backend-specific fields.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	switch c.Storage.Backend {
	case "file":
		if c.Storage.File.Path == "" {
			return errors.New("invalid config: storage.file.path is required for the file backend")
		}
	case "postgres":
		pg := c.Storage.Postgres
		if pg.Host == "" || pg.User == "" || pg.Database == "" {
			return errors.New("invalid config: storage.postgres host, user and database are required for the postgres backend")
		}
	}

	if c.Scheduler.MaxBackoff < c.Scheduler.BaseBackoff {
		return errors.New("invalid config: scheduler.max_backoff must be >= scheduler.base_backoff")
	}
	return nil
}
