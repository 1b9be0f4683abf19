package cache

import (
	"os"
	"path/filepath"
)

// Cache resolves the local directories gamepak keeps its state in.
type Cache struct {
	root string
}

// CacheManager returns a cache rooted at ~/.gamepak, or ./.gamepak when the
// home directory is unknown.
func CacheManager() *Cache {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return At(filepath.Join(".", ".gamepak"))
	}
	return At(filepath.Join(homeDir, ".gamepak"))
}

// At returns a cache rooted at dir.
func At(dir string) *Cache {
	return &Cache{root: dir}
}

// GetCacheDir returns the cache root
func (m *Cache) GetCacheDir() string {
	return m.root
}

// GetPluginDir returns the directory Lua plugins are loaded from
func (m *Cache) GetPluginDir() string {
	return filepath.Join(m.root, "plugins")
}

// GetCatalogPath returns the default SQLite catalog location
func (m *Cache) GetCatalogPath() string {
	return filepath.Join(m.root, "catalog.db")
}

// GetScratchDir returns a directory for intermediate files of asset
// conversion.
func (m *Cache) GetScratchDir() string {
	return filepath.Join(m.root, "scratch")
}

// EnsureDir creates a directory and all parent directories
func (m *Cache) EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}

// FileExists checks if a file exists
func (m *Cache) FileExists(filename string) bool {
	_, err := os.Stat(filename)
	return err == nil
}

// GetFileSize returns the size of a file, or 0 if it doesn't exist
func (m *Cache) GetFileSize(filename string) int64 {
	info, err := os.Stat(filename)
	if err != nil {
		return 0
	}
	return info.Size()
}
