package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/jchantrell/gamepak/internal/archive"
	"github.com/jchantrell/gamepak/internal/config"
	"github.com/jchantrell/gamepak/internal/formats"
	"github.com/jchantrell/gamepak/internal/plugin"
	"github.com/jchantrell/gamepak/internal/registry"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

var (
	cfg     *config.Config
	cfgFile string
	reg     *registry.Registry
	host    *plugin.Host

	pluginDir   string
	formatNames []string
	logLevel    string
	logFormat   string
	noProgress  bool
	noPlugins   bool
)

var rootCmd = &cobra.Command{
	Use:   "gamepak",
	Short: "Read, extract and build game package archives",
	Long: `gamepak opens the archive formats used by many games (PAK, WAD, GRP,
MPQ, VPK, PBO, ZIP based packs and more) through one registry of loaders,
lists and extracts their entries, and indexes them into a searchable
SQLite catalog.

Further formats can be added with Lua plugins placed in the plugin
directory.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		if cmd.Flags().Changed("plugins") {
			cfg.PluginDir = pluginDir
		}
		if cmd.Flags().Changed("formats") {
			cfg.Formats = formatNames
		}
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			cfg.LogFormat = logFormat
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		level, err := config.ParseLevel(cfg.LogLevel)
		if err != nil {
			return err
		}

		var handler slog.Handler
		if cfg.LogFormat == "json" {
			handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			})
		} else {
			handler = tint.NewHandler(os.Stderr, &tint.Options{
				Level: level,
			})
		}
		slog.SetDefault(slog.New(handler))

		slog.Debug("Configuration",
			"plugin_dir", cfg.PluginDir,
			"formats", cfg.Formats,
			"cache_files", cfg.CacheFiles,
			"catalog", cfg.Catalog,
			"workers", cfg.Workers)

		mask, err := cfg.Mask()
		if err != nil {
			return err
		}
		reg = formats.NewRegistry(mask,
			registry.WithCache(cfg.CacheFiles),
			registry.WithReporter(archive.SlogReporter{}))

		host = plugin.NewHost()
		if !noPlugins {
			loaded, err := host.LoadDir(cfg.PluginDir, reg)
			if err != nil {
				return fmt.Errorf("loading plugins: %w", err)
			}
			if len(loaded) > 0 {
				slog.Info("Loaded plugins", "count", len(loaded), "dir", cfg.PluginDir)
			}
		}
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is gamepak.yaml in home or pwd)")
	rootCmd.PersistentFlags().StringVar(&pluginDir, "plugins", "", "plugin directory")
	rootCmd.PersistentFlags().BoolVar(&noPlugins, "no-plugins", false, "do not load plugins")
	rootCmd.PersistentFlags().StringSliceVar(&formatNames, "formats", []string{}, "comma-separated list of enabled formats (default all)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json)")
	rootCmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false, "disable progress bar")
}
