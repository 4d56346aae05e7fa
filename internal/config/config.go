// Package config handles spark configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tOgg1/spark/internal/feed"
	"github.com/tOgg1/spark/internal/logging"
)

// Config is the root configuration structure for spark.
type Config struct {
	// Global settings
	Global GlobalConfig `yaml:"global" mapstructure:"global"`

	// Database settings
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Feed settings
	Feed FeedConfig `yaml:"feed" mapstructure:"feed"`

	// Realtime transport settings
	Realtime RealtimeConfig `yaml:"realtime" mapstructure:"realtime"`

	// Notification settings
	Notify NotifyConfig `yaml:"notify" mapstructure:"notify"`

	// Identity of the signed-in user
	Identity IdentityConfig `yaml:"identity" mapstructure:"identity"`

	// TUI settings
	TUI TUIConfig `yaml:"tui" mapstructure:"tui"`
}

// GlobalConfig contains global spark settings.
type GlobalConfig struct {
	// DataDir is where spark stores its data (default: ~/.local/share/spark).
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// ConfigDir is where config files are stored (default: ~/.config/spark).
	ConfigDir string `yaml:"config_dir" mapstructure:"config_dir"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	// Path is the SQLite database file path.
	Path string `yaml:"path" mapstructure:"path"`

	// BusyTimeout is how long to wait for a locked database (milliseconds).
	BusyTimeoutMs int `yaml:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is an optional log file path. The TUI always logs to a file.
	File string `yaml:"file" mapstructure:"file"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// FeedConfig tunes the conversation feed.
type FeedConfig struct {
	// PageSize is the number of messages per history page.
	PageSize int `yaml:"page_size" mapstructure:"page_size"`

	// OrphanPolicy decides what happens to attachments that arrive before
	// their message (drop, hold).
	OrphanPolicy string `yaml:"orphan_policy" mapstructure:"orphan_policy"`
}

// RealtimeConfig selects the change broker.
type RealtimeConfig struct {
	// Backend is memory or redis.
	Backend string `yaml:"backend" mapstructure:"backend"`

	// RedisURL is the redis:// URL used by the redis backend.
	RedisURL string `yaml:"redis_url" mapstructure:"redis_url"`

	// ChannelPrefix namespaces pub/sub channels.
	ChannelPrefix string `yaml:"channel_prefix" mapstructure:"channel_prefix"`

	// Buffer is the per-subscription channel capacity.
	Buffer int `yaml:"buffer" mapstructure:"buffer"`
}

// NotifyConfig selects how incoming messages are announced.
type NotifyConfig struct {
	// Backend is none, desktop or expo.
	Backend string `yaml:"backend" mapstructure:"backend"`

	// ExpoURL overrides the Expo push endpoint.
	ExpoURL string `yaml:"expo_url" mapstructure:"expo_url"`

	// ExpoAccessToken authenticates push requests when set.
	ExpoAccessToken string `yaml:"expo_access_token" mapstructure:"expo_access_token"`

	// Timeout bounds a single push request.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// IdentityConfig names the signed-in user.
type IdentityConfig struct {
	// UserID is the current user. Empty means signed out.
	UserID string `yaml:"user_id" mapstructure:"user_id"`
}

// TUIConfig contains TUI settings.
type TUIConfig struct {
	// Theme is the color theme (default, high-contrast).
	Theme string `yaml:"theme" mapstructure:"theme"`

	// ShowTimestamps shows message times in the UI.
	ShowTimestamps bool `yaml:"show_timestamps" mapstructure:"show_timestamps"`
}

// Realtime backends.
const (
	RealtimeMemory = "memory"
	RealtimeRedis  = "redis"
)

// Notify backends.
const (
	NotifyNone    = "none"
	NotifyDesktop = "desktop"
	NotifyExpo    = "expo"
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Global: GlobalConfig{
			DataDir:   filepath.Join(homeDir, ".local", "share", "spark"),
			ConfigDir: filepath.Join(homeDir, ".config", "spark"),
		},
		Database: DatabaseConfig{
			Path:          "", // Will be set to DataDir/spark.db
			BusyTimeoutMs: 5000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Feed: FeedConfig{
			PageSize:     feed.DefaultPageSize,
			OrphanPolicy: feed.OrphanDrop.String(),
		},
		Realtime: RealtimeConfig{
			Backend:       RealtimeMemory,
			RedisURL:      "redis://localhost:6379/0",
			ChannelPrefix: "spark",
			Buffer:        256,
		},
		Notify: NotifyConfig{
			Backend: NotifyNone,
			Timeout: 10 * time.Second,
		},
		TUI: TUIConfig{
			Theme:          "default",
			ShowTimestamps: true,
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Database.BusyTimeoutMs < 0 {
		return fmt.Errorf("database.busy_timeout_ms must not be negative")
	}

	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json")
	}

	if c.Feed.PageSize < 1 || c.Feed.PageSize > 500 {
		return fmt.Errorf("feed.page_size must be between 1 and 500")
	}
	if _, err := feed.ParseOrphanPolicy(c.Feed.OrphanPolicy); err != nil {
		return fmt.Errorf("feed.orphan_policy: %w", err)
	}

	switch c.Realtime.Backend {
	case RealtimeMemory:
	case RealtimeRedis:
		if c.Realtime.RedisURL == "" {
			return fmt.Errorf("realtime.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("realtime.backend must be memory or redis")
	}
	if c.Realtime.Buffer < 1 {
		return fmt.Errorf("realtime.buffer must be at least 1")
	}

	switch c.Notify.Backend {
	case NotifyNone, NotifyDesktop, NotifyExpo:
	default:
		return fmt.Errorf("notify.backend must be one of none, desktop, expo")
	}
	if c.Notify.Timeout <= 0 {
		return fmt.Errorf("notify.timeout must be positive")
	}

	return nil
}

// OrphanPolicy returns the parsed feed.orphan_policy.
func (c *Config) OrphanPolicy() feed.OrphanPolicy {
	policy, _ := feed.ParseOrphanPolicy(c.Feed.OrphanPolicy)
	return policy
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Global.DataDir, c.Global.ConfigDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the full database path.
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.Global.DataDir, "spark.db")
}

// LogFilePath returns the configured log file, or the default one in DataDir.
func (c *Config) LogFilePath() string {
	if c.Logging.File != "" {
		return c.Logging.File
	}
	return filepath.Join(c.Global.DataDir, "spark.log")
}
