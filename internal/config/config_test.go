package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/jchantrell/gamepak/internal/formats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gamepak.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, runtime.NumCPU(), cfg.Workers)
	assert.False(t, cfg.CacheFiles)
	assert.Equal(t, "plugins", filepath.Base(cfg.PluginDir))
	assert.Equal(t, "catalog.db", filepath.Base(cfg.Catalog))

	mask, err := cfg.Mask()
	require.NoError(t, err)
	assert.Equal(t, formats.All, mask)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
plugin_dir: /opt/gamepak/plugins
formats: [pak, wad]
cache_files: true
catalog: /tmp/games.db
log_level: debug
log_format: json
workers: 3
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/opt/gamepak/plugins", cfg.PluginDir)
	assert.Equal(t, []string{"pak", "wad"}, cfg.Formats)
	assert.True(t, cfg.CacheFiles)
	assert.Equal(t, "/tmp/games.db", cfg.Catalog)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 3, cfg.Workers)

	mask, err := cfg.Mask()
	require.NoError(t, err)
	assert.Equal(t, formats.MaskQuakePAK|formats.MaskDoomWAD, mask)
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "log_level: debug\nworkers: 3\n")
	t.Setenv("GAMEPAK_WORKERS", "7")
	t.Setenv("GAMEPAK_FORMATS", "zip,mpq")
	t.Setenv("GAMEPAK_CACHE_FILES", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Workers)
	assert.Equal(t, []string{"zip", "mpq"}, cfg.Formats)
	assert.True(t, cfg.CacheFiles)
	assert.Equal(t, "debug", cfg.LogLevel, "unset variables keep the file value")
}

func TestLoadRejects(t *testing.T) {
	tests := map[string]string{
		"unknown format":     "formats: [rar]\n",
		"unknown log level":  "log_level: loud\n",
		"unknown log format": "log_format: xml\n",
		"no workers":         "workers: 0\n",
		"broken yaml":        "formats: [\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}

	t.Run("bad environment", func(t *testing.T) {
		t.Setenv("GAMEPAK_WORKERS", "many")
		_, err := Load(writeConfig(t, ""))
		assert.Error(t, err)
	})
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"":      slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}
