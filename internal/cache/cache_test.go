package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayout(t *testing.T) {
	root := t.TempDir()
	c := At(root)

	assert.Equal(t, root, c.GetCacheDir())
	assert.Equal(t, filepath.Join(root, "plugins"), c.GetPluginDir())
	assert.Equal(t, filepath.Join(root, "catalog.db"), c.GetCatalogPath())
	assert.Equal(t, filepath.Join(root, "scratch"), c.GetScratchDir())
	assert.Equal(t, ".gamepak", filepath.Base(CacheManager().GetCacheDir()))
}

func TestFiles(t *testing.T) {
	c := At(t.TempDir())
	dir := filepath.Join(c.GetScratchDir(), "nested")
	require.NoError(t, c.EnsureDir(dir))

	path := filepath.Join(dir, "a.bin")
	assert.False(t, c.FileExists(path))
	assert.Equal(t, int64(0), c.GetFileSize(path))

	require.NoError(t, os.WriteFile(path, []byte("abcd"), 0o644))
	assert.True(t, c.FileExists(path))
	assert.Equal(t, int64(4), c.GetFileSize(path))
}
