// Package config loads the engine configuration from a TOML file and
// SYNCENGINE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/custodia-labs/syncengine/internal/connectors"
	"github.com/custodia-labs/syncengine/internal/core/domain"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SYNCENGINE"

// Lease backends.
const (
	LeaseSQLite = "sqlite"
	LeaseRedis  = "redis"
)

type Config struct {
	Server    ServerConfig              `mapstructure:"server" toml:"server"`
	Database  DatabaseConfig            `mapstructure:"database" toml:"database"`
	Log       LogConfig                 `mapstructure:"log" toml:"log"`
	Secrets   SecretsConfig             `mapstructure:"secrets" toml:"secrets"`
	Auth      AuthConfig                `mapstructure:"auth" toml:"auth"`
	Sync      SyncConfig                `mapstructure:"sync" toml:"sync"`
	Lease     LeaseConfig               `mapstructure:"lease" toml:"lease"`
	Notify    NotifyConfig              `mapstructure:"notify" toml:"notify"`
	Providers map[string]ProviderConfig `mapstructure:"providers" toml:"providers"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" toml:"addr"`
	BaseURL         string        `mapstructure:"base_url" toml:"base_url"`
	WebhookDeadline time.Duration `mapstructure:"webhook_deadline" toml:"webhook_deadline"`
	MaxWebhookBytes int64         `mapstructure:"max_webhook_bytes" toml:"max_webhook_bytes"`
	Debug           bool          `mapstructure:"debug" toml:"debug"`
}

type DatabaseConfig struct {
	// Dir holds syncengine.db. Defaults to the config directory.
	Dir string `mapstructure:"dir" toml:"dir"`
}

type LogConfig struct {
	Level      string `mapstructure:"level" toml:"level"`
	Encoding   string `mapstructure:"encoding" toml:"encoding"`
	File       string `mapstructure:"file" toml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" toml:"max_age_days"`
}

type SecretsConfig struct {
	KeyringFile  string `mapstructure:"keyring_file" toml:"keyring_file"`
	MasterKeyEnv string `mapstructure:"master_key_env" toml:"master_key_env"`
}

type AuthConfig struct {
	JWTSecret   string        `mapstructure:"jwt_secret" toml:"jwt_secret"`
	TokenTTL    time.Duration `mapstructure:"token_ttl" toml:"token_ttl"`
	StateTTL    time.Duration `mapstructure:"state_ttl" toml:"state_ttl"`
	RefreshSkew time.Duration `mapstructure:"refresh_skew" toml:"refresh_skew"`
}

type SyncConfig struct {
	Workers              int           `mapstructure:"workers" toml:"workers"`
	QueueSize            int           `mapstructure:"queue_size" toml:"queue_size"`
	ProviderConcurrency  int           `mapstructure:"provider_concurrency" toml:"provider_concurrency"`
	LeaseTTL             time.Duration `mapstructure:"lease_ttl" toml:"lease_ttl"`
	CallTimeout          time.Duration `mapstructure:"call_timeout" toml:"call_timeout"`
	MaxRetries           int           `mapstructure:"max_retries" toml:"max_retries"`
	BaseBackoff          time.Duration `mapstructure:"base_backoff" toml:"base_backoff"`
	ConflictWindow       time.Duration `mapstructure:"conflict_window" toml:"conflict_window"`
	UserParallelism      int           `mapstructure:"user_parallelism" toml:"user_parallelism"`
	DefaultLookback      time.Duration `mapstructure:"default_lookback" toml:"default_lookback"`
	SchedulerEnabled     bool          `mapstructure:"scheduler_enabled" toml:"scheduler_enabled"`
	Interval             time.Duration `mapstructure:"interval" toml:"interval"`
	StateCleanupInterval time.Duration `mapstructure:"state_cleanup_interval" toml:"state_cleanup_interval"`
}

type LeaseConfig struct {
	Backend       string `mapstructure:"backend" toml:"backend"`
	RedisAddr     string `mapstructure:"redis_addr" toml:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" toml:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" toml:"redis_db"`
	RedisPrefix   string `mapstructure:"redis_prefix" toml:"redis_prefix"`
}

type NotifyConfig struct {
	SlackWebhookURL string `mapstructure:"slack_webhook_url" toml:"slack_webhook_url"`
}

// ProviderConfig holds one provider's OAuth app registration.
type ProviderConfig struct {
	Enabled           bool     `mapstructure:"enabled" toml:"enabled"`
	ClientID          string   `mapstructure:"client_id" toml:"client_id"`
	ClientSecret      string   `mapstructure:"client_secret" toml:"client_secret"`
	Scopes            []string `mapstructure:"scopes" toml:"scopes"`
	WebhookSecret     string   `mapstructure:"webhook_secret" toml:"webhook_secret"`
	VerificationCode  string   `mapstructure:"verification_code" toml:"verification_code"`
	APIBaseURL        string   `mapstructure:"api_base_url" toml:"api_base_url"`
	RequestsPerSecond float64  `mapstructure:"requests_per_second" toml:"requests_per_second"`
}

// knownProviders get env-overridable defaults.
var knownProviders = []domain.ProviderType{
	domain.ProviderFitbit,
	domain.ProviderGoogleCalendar,
	domain.ProviderGitHub,
}

// Dir returns the default configuration directory, ~/.syncengine.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".syncengine"), nil
}

// DefaultPath returns ~/.syncengine/config.toml.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

func setDefaults(v *viper.Viper, dir string) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.webhook_deadline", "5s")
	v.SetDefault("server.max_webhook_bytes", 1<<20)
	v.SetDefault("server.debug", false)

	v.SetDefault("database.dir", dir)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)

	v.SetDefault("secrets.keyring_file", filepath.Join(dir, "keyring.json"))
	v.SetDefault("secrets.master_key_env", "SYNCENGINE_MASTER_KEY")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("auth.state_ttl", "5m")
	v.SetDefault("auth.refresh_skew", "1m")

	v.SetDefault("sync.workers", 4)
	v.SetDefault("sync.queue_size", 256)
	v.SetDefault("sync.provider_concurrency", 2)
	v.SetDefault("sync.lease_ttl", "15m")
	v.SetDefault("sync.call_timeout", "30s")
	v.SetDefault("sync.max_retries", 3)
	v.SetDefault("sync.base_backoff", "1s")
	v.SetDefault("sync.conflict_window", "15m")
	v.SetDefault("sync.user_parallelism", 4)
	v.SetDefault("sync.default_lookback", "720h")
	v.SetDefault("sync.scheduler_enabled", true)
	v.SetDefault("sync.interval", "1h")
	v.SetDefault("sync.state_cleanup_interval", "10m")

	v.SetDefault("lease.backend", LeaseSQLite)
	v.SetDefault("lease.redis_addr", "localhost:6379")
	v.SetDefault("lease.redis_password", "")
	v.SetDefault("lease.redis_db", 0)
	v.SetDefault("lease.redis_prefix", "syncengine:lease:")

	v.SetDefault("notify.slack_webhook_url", "")

	for _, p := range knownProviders {
		key := "providers." + string(p)
		v.SetDefault(key+".enabled", true)
		v.SetDefault(key+".client_id", "")
		v.SetDefault(key+".client_secret", "")
		v.SetDefault(key+".webhook_secret", "")
		v.SetDefault(key+".verification_code", "")
	}
}

// Load reads the config file at path, or the default path when empty.
// A missing file is not an error; defaults and environment apply.
func Load(path string) (Config, error) {
	dir, err := Dir()
	if err != nil {
		return Config{}, err
	}
	explicit := path != ""
	if !explicit {
		path = filepath.Join(dir, "config.toml")
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.AutomaticEnv()
	setDefaults(v, dir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound), !explicit && errors.Is(err, os.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks values that would otherwise fail late.
func (c Config) Validate() error {
	switch c.Lease.Backend {
	case LeaseSQLite, LeaseRedis:
	default:
		return fmt.Errorf("%w: lease.backend must be %q or %q", domain.ErrInvalidInput, LeaseSQLite, LeaseRedis)
	}
	if c.Sync.Workers <= 0 {
		return fmt.Errorf("%w: sync.workers must be positive", domain.ErrInvalidInput)
	}
	if c.Sync.LeaseTTL <= c.Sync.CallTimeout {
		return fmt.Errorf("%w: sync.lease_ttl must exceed sync.call_timeout", domain.ErrInvalidInput)
	}
	return nil
}

// Connectors converts the enabled provider sections into adapter configs.
func (c Config) Connectors() map[domain.ProviderType]connectors.Config {
	out := make(map[domain.ProviderType]connectors.Config, len(c.Providers))
	for name, p := range c.Providers {
		if !p.Enabled {
			continue
		}
		out[domain.ProviderType(name)] = connectors.Config{
			ClientID:          p.ClientID,
			ClientSecret:      p.ClientSecret,
			Scopes:            p.Scopes,
			WebhookSecret:     p.WebhookSecret,
			VerificationCode:  p.VerificationCode,
			APIBaseURL:        p.APIBaseURL,
			RequestsPerSecond: p.RequestsPerSecond,
		}
	}
	return out
}

// ProviderNames returns the configured provider names, sorted.
func (c Config) ProviderNames() []string {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default returns the configuration Load produces with no file and no
// environment.
func Default() (Config, error) {
	dir, err := Dir()
	if err != nil {
		return Config{}, err
	}
	v := viper.New()
	setDefaults(v, dir)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// tomlConfig is the on-disk form; durations are written as strings.
type tomlConfig struct {
	Server    map[string]any            `toml:"server"`
	Database  DatabaseConfig            `toml:"database"`
	Log       LogConfig                 `toml:"log"`
	Secrets   SecretsConfig             `toml:"secrets"`
	Auth      map[string]any            `toml:"auth"`
	Sync      map[string]any            `toml:"sync"`
	Lease     LeaseConfig               `toml:"lease"`
	Notify    NotifyConfig              `toml:"notify"`
	Providers map[string]ProviderConfig `toml:"providers"`
}

// Write saves cfg as TOML. Existing files are not overwritten unless force
// is set.
func Write(path string, cfg Config, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	out := tomlConfig{
		Server: map[string]any{
			"addr":              cfg.Server.Addr,
			"base_url":          cfg.Server.BaseURL,
			"webhook_deadline":  cfg.Server.WebhookDeadline.String(),
			"max_webhook_bytes": cfg.Server.MaxWebhookBytes,
			"debug":             cfg.Server.Debug,
		},
		Database: cfg.Database,
		Log:      cfg.Log,
		Secrets:  cfg.Secrets,
		Auth: map[string]any{
			"jwt_secret":   cfg.Auth.JWTSecret,
			"token_ttl":    cfg.Auth.TokenTTL.String(),
			"state_ttl":    cfg.Auth.StateTTL.String(),
			"refresh_skew": cfg.Auth.RefreshSkew.String(),
		},
		Sync: map[string]any{
			"workers":                cfg.Sync.Workers,
			"queue_size":             cfg.Sync.QueueSize,
			"provider_concurrency":   cfg.Sync.ProviderConcurrency,
			"lease_ttl":              cfg.Sync.LeaseTTL.String(),
			"call_timeout":           cfg.Sync.CallTimeout.String(),
			"max_retries":            cfg.Sync.MaxRetries,
			"base_backoff":           cfg.Sync.BaseBackoff.String(),
			"conflict_window":        cfg.Sync.ConflictWindow.String(),
			"user_parallelism":       cfg.Sync.UserParallelism,
			"default_lookback":       cfg.Sync.DefaultLookback.String(),
			"scheduler_enabled":      cfg.Sync.SchedulerEnabled,
			"interval":               cfg.Sync.Interval.String(),
			"state_cleanup_interval": cfg.Sync.StateCleanupInterval.String(),
		},
		Lease:     cfg.Lease,
		Notify:    cfg.Notify,
		Providers: cfg.Providers,
	}

	data, err := toml.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
