package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Sink       SinkConfig       `yaml:"sink"`
	Push       PushConfig       `yaml:"push"`
	Sweep      SweepConfig      `yaml:"sweep"`
	Laundry    LaundryConfig    `yaml:"laundry"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RequestIPHeader string  `yaml:"request_ip_header"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLMillis  int     `yaml:"cache_ttl_millis"`
}

// DatabaseConfig holds the snapshot database configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // "sqlite" or "postgres"
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// SinkConfig holds the optional external reporting database configuration.
// Usage records are mirrored there best-effort; the sink never blocks or
// fails a state mutation.
type SinkConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// SweepConfig holds the configuration for the background timer sweep.
type SweepConfig struct {
	Enabled         bool          `yaml:"enabled"`
	IntervalSeconds int           `yaml:"interval_seconds"`
	Interval        time.Duration `yaml:"-"` // Ignored by YAML parser
}

// Mode is a named cycle duration preset offered to clients.
type Mode struct {
	Name            string `yaml:"name"`
	DurationMinutes int    `yaml:"duration_minutes"`
}

// LaundryConfig describes the fixed machine inventory and cycle economics.
type LaundryConfig struct {
	Washers               int     `yaml:"washers"`
	Dryers                int     `yaml:"dryers"`
	AvgWasherCycleMinutes int     `yaml:"avg_washer_cycle_minutes"`
	AvgDryerCycleMinutes  int     `yaml:"avg_dryer_cycle_minutes"`
	MinCycleMinutes       int     `yaml:"min_cycle_minutes"`
	MaxCycleMinutes       int     `yaml:"max_cycle_minutes"`
	WasherPricePerMinute  float64 `yaml:"washer_price_per_minute"`
	DryerPricePerMinute   float64 `yaml:"dryer_price_per_minute"`
	Modes                 []Mode  `yaml:"modes"`
}

// WorkerPoolConfig holds the configuration for the notification and sink
// worker pools.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// Load reads the configuration from the given path and applies defaults.
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
	if cfg.Server.CacheTTLMillis <= 0 {
		// Clients poll on the order of 0.5-1s; keep the cache well under that.
		cfg.Server.CacheTTLMillis = 400
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.Driver != "sqlite" && cfg.Database.Driver != "postgres" {
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "laundry.db"
	}

	if cfg.Sweep.IntervalSeconds <= 0 {
		cfg.Sweep.IntervalSeconds = 1
	}
	cfg.Sweep.Interval = time.Duration(cfg.Sweep.IntervalSeconds) * time.Second

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.Laundry.Washers <= 0 {
		cfg.Laundry.Washers = 6
	}
	if cfg.Laundry.Dryers <= 0 {
		cfg.Laundry.Dryers = 6
	}
	if cfg.Laundry.AvgWasherCycleMinutes <= 0 {
		cfg.Laundry.AvgWasherCycleMinutes = 40
	}
	if cfg.Laundry.AvgDryerCycleMinutes <= 0 {
		cfg.Laundry.AvgDryerCycleMinutes = 45
	}
	if cfg.Laundry.MinCycleMinutes <= 0 {
		cfg.Laundry.MinCycleMinutes = 1
	}
	if cfg.Laundry.MaxCycleMinutes <= 0 {
		cfg.Laundry.MaxCycleMinutes = 180
	}
	if len(cfg.Laundry.Modes) == 0 {
		cfg.Laundry.Modes = []Mode{
			{Name: "Normal", DurationMinutes: 30},
			{Name: "Extra 5 min", DurationMinutes: 35},
			{Name: "Extra 10 min", DurationMinutes: 40},
			{Name: "Extra 15 min", DurationMinutes: 45},
		}
	}

	if cfg.WorkerPool.Size <= 0 {
		cfg.WorkerPool.Size = 1
	}

	return &cfg, nil
}
