package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Access     AccessConfig     `yaml:"access"`
	Sessions   SessionConfig    `yaml:"sessions"`
	Alerts     AlertConfig      `yaml:"alerts"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// ServerConfig holds the server-related configuration.
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

// AccessConfig holds the attendance/presence core configuration.
type AccessConfig struct {
	CorrectionWindowMinutes  int           `yaml:"correction_window_minutes"`
	CorrectionWindow         time.Duration `yaml:"-"`
	StorageTimeoutSeconds    int           `yaml:"storage_timeout_seconds"`
	StorageTimeout           time.Duration `yaml:"-"`
	ReconcileIntervalSeconds int           `yaml:"reconcile_interval_seconds"`
	ReconcileInterval        time.Duration `yaml:"-"`
	Timezone                 string        `yaml:"timezone"`
}

// SessionConfig holds the guard session configuration.
type SessionConfig struct {
	StaleAfterMinutes int           `yaml:"stale_after_minutes"`
	StaleAfter        time.Duration `yaml:"-"`
}

// AlertConfig holds the long-stay alert configuration.
type AlertConfig struct {
	Enabled              bool          `yaml:"enabled"`
	LongStayHours        int           `yaml:"long_stay_hours"`
	LongStayThreshold    time.Duration `yaml:"-"`
	CheckIntervalMinutes int           `yaml:"check_interval_minutes"`
	CheckInterval        time.Duration `yaml:"-"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the alert worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
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
		cfg.Server.CacheTTLSeconds = 30
	}

	if cfg.Access.CorrectionWindowMinutes <= 0 {
		cfg.Access.CorrectionWindowMinutes = 5
	}
	cfg.Access.CorrectionWindow = time.Duration(cfg.Access.CorrectionWindowMinutes) * time.Minute

	if cfg.Access.StorageTimeoutSeconds <= 0 {
		cfg.Access.StorageTimeoutSeconds = 5
	}
	cfg.Access.StorageTimeout = time.Duration(cfg.Access.StorageTimeoutSeconds) * time.Second

	if cfg.Access.ReconcileIntervalSeconds <= 0 {
		cfg.Access.ReconcileIntervalSeconds = 30
	}
	cfg.Access.ReconcileInterval = time.Duration(cfg.Access.ReconcileIntervalSeconds) * time.Second

	if cfg.Access.Timezone == "" {
		cfg.Access.Timezone = "America/Lima"
	}

	if cfg.Sessions.StaleAfterMinutes <= 0 {
		cfg.Sessions.StaleAfterMinutes = 10
	}
	cfg.Sessions.StaleAfter = time.Duration(cfg.Sessions.StaleAfterMinutes) * time.Minute

	if cfg.Alerts.LongStayHours <= 0 {
		cfg.Alerts.LongStayHours = 8
	}
	cfg.Alerts.LongStayThreshold = time.Duration(cfg.Alerts.LongStayHours) * time.Hour

	if cfg.Alerts.CheckIntervalMinutes <= 0 {
		cfg.Alerts.CheckIntervalMinutes = 15
	}
	cfg.Alerts.CheckInterval = time.Duration(cfg.Alerts.CheckIntervalMinutes) * time.Minute

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	return &cfg, nil
}

// Location resolves the configured timezone, falling back to UTC.
func (c *AccessConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Printf("Invalid timezone %q, falling back to UTC: %v", c.Timezone, err)
		return time.UTC
	}
	return loc
}
