// Package config loads and validates the fabric configuration.
//
// Configuration comes from three layers, later layers winning: built-in
// defaults registered by SetDefaults, an optional config file read by the
// CLI's initConfig, and LEVELCODE_* environment variables. The fabric root
// (where teams, tasks, and inboxes live) resolves to the configured value
// or <home>/.config/levelcode, so tests can relocate the whole store by
// overriding HOME (or USERPROFILE on Windows).
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete fabric configuration.
type Config struct {
	// Root overrides the fabric root directory. Empty means the default
	// <home>/.config/levelcode.
	Root string `mapstructure:"root"`

	Logging     LoggingConfig     `mapstructure:"logging"`
	Lock        LockConfig        `mapstructure:"lock"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Ledger      LedgerConfig      `mapstructure:"ledger"`
	Watch       WatchConfig       `mapstructure:"watch"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	// Enabled turns file logging on. When false the fabric logs nothing.
	Enabled bool `mapstructure:"enabled"`
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level"`
}

// LockConfig tunes the sidecar file locks.
type LockConfig struct {
	// StaleMs is the age in milliseconds after which a held lock is
	// considered abandoned and reclaimed.
	StaleMs int `mapstructure:"stale_ms"`
	// PollMs is the retry interval while waiting for a held lock.
	PollMs int `mapstructure:"poll_ms"`
	// TimeoutMs bounds how long an acquisition waits before failing.
	TimeoutMs int `mapstructure:"timeout_ms"`
}

// MaintenanceConfig tunes the housekeeping engine.
type MaintenanceConfig struct {
	// PruneAgeHours is the age after which completed tasks are moved to
	// the completed/ directory by the cleanup command.
	PruneAgeHours int `mapstructure:"prune_age_hours"`
}

// LedgerConfig selects and tunes the credit ledger store.
type LedgerConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `mapstructure:"driver"`
	// DSN is the driver-specific connection string. For sqlite this is a
	// file path; empty means <root>/ledger.db.
	DSN string `mapstructure:"dsn"`
	// MaxRetries bounds retry attempts on transient store failures.
	MaxRetries int `mapstructure:"max_retries"`
}

// WatchConfig tunes the inbox watcher.
type WatchConfig struct {
	// DebounceMs coalesces bursts of filesystem events.
	DebounceMs int `mapstructure:"debounce_ms"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
		},
		Lock: LockConfig{
			StaleMs:   10000,
			PollMs:    50,
			TimeoutMs: 10000,
		},
		Maintenance: MaintenanceConfig{
			PruneAgeHours: 24,
		},
		Ledger: LedgerConfig{
			Driver:     "sqlite",
			MaxRetries: 3,
		},
		Watch: WatchConfig{
			DebounceMs: 50,
		},
	}
}

// SetDefaults registers the built-in defaults with viper so they apply
// even when no config file exists.
func SetDefaults() {
	d := Default()
	viper.SetDefault("root", d.Root)
	viper.SetDefault("logging.enabled", d.Logging.Enabled)
	viper.SetDefault("logging.level", d.Logging.Level)
	viper.SetDefault("lock.stale_ms", d.Lock.StaleMs)
	viper.SetDefault("lock.poll_ms", d.Lock.PollMs)
	viper.SetDefault("lock.timeout_ms", d.Lock.TimeoutMs)
	viper.SetDefault("maintenance.prune_age_hours", d.Maintenance.PruneAgeHours)
	viper.SetDefault("ledger.driver", d.Ledger.Driver)
	viper.SetDefault("ledger.dsn", d.Ledger.DSN)
	viper.SetDefault("ledger.max_retries", d.Ledger.MaxRetries)
	viper.SetDefault("watch.debounce_ms", d.Watch.DebounceMs)
}

// Load unmarshals the current viper state into a Config and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// Get returns the loaded configuration, falling back to defaults when
// loading fails. Commands that want to surface config errors call Load.
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// ResolveRoot returns the fabric root directory: the configured value if
// set, otherwise <home>/.config/levelcode.
func (c *Config) ResolveRoot() string {
	if c.Root != "" {
		return c.Root
	}
	return DefaultRoot()
}

// DefaultRoot is the fabric root when no override is configured. It
// resolves through os.UserHomeDir, so HOME (unix) or USERPROFILE
// (Windows) relocates it.
func DefaultRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "levelcode")
	}
	return filepath.Join(home, ".config", "levelcode")
}

// ConfigDir returns the directory searched for the CLI's own config file.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "levelcode")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".levelcode"
	}
	return filepath.Join(home, ".config", "levelcode")
}

// LockStale returns the stale threshold as a duration.
func (c *Config) LockStale() time.Duration {
	return time.Duration(c.Lock.StaleMs) * time.Millisecond
}

// LockPoll returns the poll interval as a duration.
func (c *Config) LockPoll() time.Duration {
	return time.Duration(c.Lock.PollMs) * time.Millisecond
}

// LockTimeout returns the acquisition deadline as a duration.
func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.Lock.TimeoutMs) * time.Millisecond
}

// PruneAge returns the completed-task prune threshold as a duration.
func (c *Config) PruneAge() time.Duration {
	return time.Duration(c.Maintenance.PruneAgeHours) * time.Hour
}

// WatchDebounce returns the watcher debounce window as a duration.
func (c *Config) WatchDebounce() time.Duration {
	return time.Duration(c.Watch.DebounceMs) * time.Millisecond
}

// LedgerDSN returns the configured DSN, defaulting the sqlite driver to a
// ledger.db file under the fabric root.
func (c *Config) LedgerDSN() string {
	if c.Ledger.DSN != "" {
		return c.Ledger.DSN
	}
	if c.Ledger.Driver == "sqlite" {
		return filepath.Join(c.ResolveRoot(), "ledger.db")
	}
	return ""
}
