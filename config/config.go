package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Lamp       LampConfig       `yaml:"lamp"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	History    HistoryConfig    `yaml:"history"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// LampConfig holds the relay device settings for table lamps.
type LampConfig struct {
	BaseURL       string        `yaml:"base_url"`
	TimeoutMs     int           `yaml:"timeout_ms"`
	Timeout       time.Duration `yaml:"-"` // Ignored by YAML parser
	ResyncOnTopup *bool         `yaml:"resync_on_topup"`
}

// ResyncEnabled reports whether a top-up re-issues the lamp "on" command
// with the new remaining time. Defaults to true when unset; the relay's own
// auto-off timer is never trusted across a top-up.
func (c *LampConfig) ResyncEnabled() bool {
	return c.ResyncOnTopup == nil || *c.ResyncOnTopup
}

// MonitorConfig holds the auto-expiry scan settings.
type MonitorConfig struct {
	Enabled         bool          `yaml:"enabled"`
	IntervalSeconds int           `yaml:"interval_seconds"`
	Interval        time.Duration `yaml:"-"` // Ignored by YAML parser
}

// HistoryConfig holds the rental history retention settings.
type HistoryConfig struct {
	RetentionDays int `yaml:"retention_days"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the sizes of the background worker pools.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// LogConfig holds the logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills in defaults for unset or invalid values.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 5
	}

	if cfg.Lamp.TimeoutMs <= 0 {
		cfg.Lamp.TimeoutMs = 5000
	}
	cfg.Lamp.Timeout = time.Duration(cfg.Lamp.TimeoutMs) * time.Millisecond

	if cfg.Monitor.IntervalSeconds <= 0 {
		cfg.Monitor.IntervalSeconds = 15
	}
	cfg.Monitor.Interval = time.Duration(cfg.Monitor.IntervalSeconds) * time.Second

	if cfg.History.RetentionDays <= 0 {
		cfg.History.RetentionDays = 365
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		cfg.WorkerPool.Size = 1
	}
}
