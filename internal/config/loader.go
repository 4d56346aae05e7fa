package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override (SPARK_FEED_PAGE_SIZE, ...).
const EnvPrefix = "SPARK"

// keys lists every configurable key. Each one gets a default, an env
// binding and a flag-compatible name.
var keys = []string{
	"global.data_dir",
	"global.config_dir",
	"database.path",
	"database.busy_timeout_ms",
	"logging.level",
	"logging.format",
	"logging.file",
	"logging.enable_caller",
	"feed.page_size",
	"feed.orphan_policy",
	"realtime.backend",
	"realtime.redis_url",
	"realtime.channel_prefix",
	"realtime.buffer",
	"notify.backend",
	"notify.expo_url",
	"notify.expo_access_token",
	"notify.timeout",
	"identity.user_id",
	"tui.theme",
	"tui.show_timestamps",
}

// Loader handles configuration loading with Viper.
type Loader struct {
	v          *viper.Viper
	configFile string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v: viper.New(),
	}
}

// SetConfigFile sets an explicit config file path.
func (l *Loader) SetConfigFile(path string) {
	l.configFile = path
}

// Load loads configuration with proper precedence:
// defaults < config file < env vars < CLI flags
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()
	l.setupViper(cfg)

	if err := l.loadConfigFile(); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// Every key is bound, so Unmarshal sees env and flag values too.
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	expandPaths(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// expandTilde expands ~ to the user's home directory.
func expandTilde(path string) string {
	if path == "" {
		return path
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// expandPaths expands ~ in all path-related config fields.
func expandPaths(cfg *Config) {
	cfg.Global.DataDir = expandTilde(cfg.Global.DataDir)
	cfg.Global.ConfigDir = expandTilde(cfg.Global.ConfigDir)
	cfg.Database.Path = expandTilde(cfg.Database.Path)
	cfg.Logging.File = expandTilde(cfg.Logging.File)
}

// setupViper configures Viper with defaults and environment bindings.
func (l *Loader) setupViper(cfg *Config) {
	v := l.v

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		v.AddConfigPath(filepath.Join(xdgConfig, "spark"))
	}
	if homeDir, _ := os.UserHomeDir(); homeDir != "" {
		v.AddConfigPath(filepath.Join(homeDir, ".config", "spark"))
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v, cfg)
	bindEnvVars(v)
	v.AutomaticEnv()
}

// setDefaults sets all default values in Viper.
func setDefaults(v *viper.Viper, cfg *Config) {
	defaults := map[string]any{
		"global.data_dir":          cfg.Global.DataDir,
		"global.config_dir":        cfg.Global.ConfigDir,
		"database.path":            cfg.Database.Path,
		"database.busy_timeout_ms": cfg.Database.BusyTimeoutMs,
		"logging.level":            cfg.Logging.Level,
		"logging.format":           cfg.Logging.Format,
		"logging.file":             cfg.Logging.File,
		"logging.enable_caller":    cfg.Logging.EnableCaller,
		"feed.page_size":           cfg.Feed.PageSize,
		"feed.orphan_policy":       cfg.Feed.OrphanPolicy,
		"realtime.backend":         cfg.Realtime.Backend,
		"realtime.redis_url":       cfg.Realtime.RedisURL,
		"realtime.channel_prefix":  cfg.Realtime.ChannelPrefix,
		"realtime.buffer":          cfg.Realtime.Buffer,
		"notify.backend":           cfg.Notify.Backend,
		"notify.expo_url":          cfg.Notify.ExpoURL,
		"notify.expo_access_token": cfg.Notify.ExpoAccessToken,
		"notify.timeout":           cfg.Notify.Timeout,
		"identity.user_id":         cfg.Identity.UserID,
		"tui.theme":                cfg.TUI.Theme,
		"tui.show_timestamps":      cfg.TUI.ShowTimestamps,
	}
	for _, key := range keys {
		v.SetDefault(key, defaults[key])
	}
}

// bindEnvVars binds SPARK_* environment variables for every key.
// Viper's Unmarshal ignores env vars on nested structs unless they are bound.
func bindEnvVars(v *viper.Viper) {
	for _, key := range keys {
		envVar := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(key, envVar)
	}
}

// loadConfigFile reads the configuration file. A missing file is only an
// error when it was named explicitly.
func (l *Loader) loadConfigFile() error {
	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	}

	err := l.v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if err == nil || (l.configFile == "" && errors.As(err, &notFound)) {
		return nil
	}
	return err
}

// ConfigFileUsed returns the config file that was loaded.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Set overrides a key, taking precedence over every other source.
func (l *Loader) Set(key string, value any) {
	l.v.Set(key, value)
}

// Viper returns the underlying Viper instance, e.g. for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// LoadFromFile loads configuration from a specific file.
func LoadFromFile(path string) (*Config, error) {
	loader := NewLoader()
	loader.SetConfigFile(path)
	return loader.Load()
}

// LoadDefault loads configuration with default search paths.
func LoadDefault() (*Config, error) {
	return NewLoader().Load()
}
