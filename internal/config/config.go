package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/jchantrell/gamepak/internal/cache"
	"github.com/jchantrell/gamepak/internal/formats"
	"github.com/spf13/viper"
)

// Config is read from gamepak.yaml and then overridden by GAMEPAK_*
// environment variables.
type Config struct {
	PluginDir  string   `mapstructure:"plugin_dir"  env:"GAMEPAK_PLUGIN_DIR"`
	Formats    []string `mapstructure:"formats"     env:"GAMEPAK_FORMATS"     envSeparator:","`
	CacheFiles bool     `mapstructure:"cache_files" env:"GAMEPAK_CACHE_FILES"`
	Catalog    string   `mapstructure:"catalog"     env:"GAMEPAK_CATALOG"`
	LogLevel   string   `mapstructure:"log_level"   env:"GAMEPAK_LOG_LEVEL"`
	LogFormat  string   `mapstructure:"log_format"  env:"GAMEPAK_LOG_FORMAT"`
	Workers    int      `mapstructure:"workers"     env:"GAMEPAK_WORKERS"`
}

// Load initializes and loads configuration from file
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	dirs := cache.CacheManager()

	v.SetDefault("plugin_dir", dirs.GetPluginDir())
	v.SetDefault("formats", []string{})
	v.SetDefault("cache_files", false)
	v.SetDefault("catalog", dirs.GetCatalogPath())
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("workers", runtime.NumCPU())

	// Config file handling
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}

		v.AddConfigPath(home)
		v.AddConfigPath(".")
		v.SetConfigName("gamepak")
		v.SetConfigType("yaml")
	}

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// fields whose variable is unset keep the file value
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks format names, log settings and the worker count.
func (c *Config) Validate() error {
	if _, err := c.Mask(); err != nil {
		return err
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (want text or json)", c.LogFormat)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	return nil
}

// Mask returns the standard loaders enabled by Formats.
func (c *Config) Mask() (formats.Mask, error) {
	return formats.ParseMask(c.Formats)
}

// ParseLevel maps a log level name to its slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", level)
	}
}
