// Package config defines all configuration for the execution core. Config
// is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via EXEC_* environment variables, using
// viper with mapstructure tags, an env prefix override, and a Validate
// pass.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	Environment string          `mapstructure:"environment"` // "sandbox" or "live"
	OMS         string          `mapstructure:"oms"`         // "NETTING" or "HEDGING"
	Account     AccountConfig   `mapstructure:"account"`
	Venue       VenueConfig     `mapstructure:"venue"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
	Retry       RetryConfig     `mapstructure:"retry"`
	Reconcile   ReconcileConfig `mapstructure:"reconcile"`
	Cache       CacheConfig     `mapstructure:"cache"`
	Logging     LoggingConfig   `mapstructure:"logging"`
}

// AccountConfig identifies and types the trading account this process manages.
type AccountConfig struct {
	ID       string  `mapstructure:"id"`
	Type     string  `mapstructure:"type"` // CASH, MARGIN, BETTING
	Leverage float64 `mapstructure:"leverage"`
}

// VenueConfig holds venue connectivity and credentials. ApiSecret is
// sensitive and overridable via EXEC_VENUE_API_SECRET.
type VenueConfig struct {
	Name       string `mapstructure:"name"`
	BaseURL    string `mapstructure:"base_url"`
	WSURL      string `mapstructure:"ws_url"`
	ApiKey     string `mapstructure:"api_key"`
	ApiSecret  string `mapstructure:"api_secret"`
	Passphrase string `mapstructure:"passphrase"`
}

// RateLimitConfig sets per-category dual-bucket rate limits.
type RateLimitConfig struct {
	OrderBurstPerSec    float64 `mapstructure:"order_burst_per_sec"`
	OrderBurstCapacity  int     `mapstructure:"order_burst_capacity"`
	OrderWindowCapacity float64 `mapstructure:"order_window_capacity"`

	CancelBurstPerSec    float64 `mapstructure:"cancel_burst_per_sec"`
	CancelBurstCapacity  int     `mapstructure:"cancel_burst_capacity"`
	CancelWindowCapacity float64 `mapstructure:"cancel_window_capacity"`

	QueryBurstPerSec    float64 `mapstructure:"query_burst_per_sec"`
	QueryBurstCapacity  int     `mapstructure:"query_burst_capacity"`
	QueryWindowCapacity float64 `mapstructure:"query_window_capacity"`
}

// RetryConfig tunes the jittered exponential backoff retry policy.
type RetryConfig struct {
	Initial    time.Duration `mapstructure:"initial"`
	Factor     float64       `mapstructure:"factor"`
	Max        time.Duration `mapstructure:"max"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// ReconcileConfig controls startup and periodic reconciliation.
type ReconcileConfig struct {
	OnStartup     bool          `mapstructure:"on_startup"`
	Interval      time.Duration `mapstructure:"interval"`
	LookbackLimit int           `mapstructure:"lookback_limit"`
	PurgeCron     string        `mapstructure:"purge_cron"` // cron spec for closed-position snapshot purge
	PurgeAfter    time.Duration `mapstructure:"purge_after"`
}

// CacheConfig controls the durable cache backing store.
type CacheConfig struct {
	DurableEnabled bool   `mapstructure:"durable_enabled"`
	DataDir        string `mapstructure:"data_dir"`
	Prefix         string `mapstructure:"prefix"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from a YAML file with env var overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("EXEC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if secret := os.Getenv("EXEC_VENUE_API_SECRET"); secret != "" {
		cfg.Venue.ApiSecret = secret
	}
	if key := os.Getenv("EXEC_VENUE_API_KEY"); key != "" {
		cfg.Venue.ApiKey = key
	}
	if pass := os.Getenv("EXEC_VENUE_PASSPHRASE"); pass != "" {
		cfg.Venue.Passphrase = pass
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges, returning a
// descriptive error for the first one that fails.
func (c *Config) Validate() error {
	if c.Account.ID == "" {
		return fmt.Errorf("account.id is required")
	}
	switch c.Account.Type {
	case "CASH", "MARGIN", "BETTING":
	default:
		return fmt.Errorf("account.type must be one of CASH, MARGIN, BETTING")
	}
	if c.Account.Type == "MARGIN" && c.Account.Leverage <= 0 {
		return fmt.Errorf("account.leverage must be > 0 for MARGIN accounts")
	}
	switch c.OMS {
	case "NETTING", "HEDGING":
	default:
		return fmt.Errorf("oms must be NETTING or HEDGING")
	}
	if c.Venue.Name == "" {
		return fmt.Errorf("venue.name is required")
	}
	if c.Venue.BaseURL == "" && c.Environment != "sandbox" {
		return fmt.Errorf("venue.base_url is required outside sandbox environment")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be >= 0")
	}
	if c.Cache.DurableEnabled && c.Cache.DataDir == "" {
		return fmt.Errorf("cache.data_dir is required when cache.durable_enabled is true")
	}
	return nil
}
