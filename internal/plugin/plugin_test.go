package plugin

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/jchantrell/gamepak/internal/archive"
	"github.com/jchantrell/gamepak/internal/codec"
	"github.com/jchantrell/gamepak/internal/registry"
	"github.com/jchantrell/gamepak/internal/vfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mpkPlugin = `
return {
  name = "mpk",
  abi = "1.0",
  init = function(host)
    host.register("mpk", function(file, pkg)
      if file:size() < 8 then return false, "too short" end
      if file:bytes(4) ~= "MPK1" then return false, "bad magic" end
      local count = file:u32()
      for i = 1, count do
        local name = file:cstring(32)
        local offset = file:u32()
        local size = file:u32()
        local csize = file:u32()
        local method = "none"
        if csize ~= size then method = "zlib" end
        pkg:add{name = name, offset = offset, size = size, csize = csize, method = method}
      end
    end)
  end,
}
`

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

type mpkFile struct {
	name   string
	data   []byte
	packed bool
}

func buildMPK(t *testing.T, files ...mpkFile) []byte {
	t.Helper()

	stored := make([][]byte, len(files))
	tableSize := 8
	for i, f := range files {
		stored[i] = f.data
		if f.packed {
			p, err := codec.Encode(codec.Zlib, f.data)
			require.NoError(t, err)
			stored[i] = p
		}
		tableSize += len(f.name) + 1 + 12
	}

	var b bytes.Buffer
	b.WriteString("MPK1")
	binary.Write(&b, binary.LittleEndian, uint32(len(files)))
	off := tableSize
	for i, f := range files {
		b.WriteString(f.name)
		b.WriteByte(0)
		binary.Write(&b, binary.LittleEndian, uint32(off))
		binary.Write(&b, binary.LittleEndian, uint32(len(f.data)))
		binary.Write(&b, binary.LittleEndian, uint32(len(stored[i])))
		off += len(stored[i])
	}
	for _, s := range stored {
		b.Write(s)
	}
	return b.Bytes()
}

func TestPluginLoader(t *testing.T) {
	dir := t.TempDir()
	reg := registry.New()
	host := NewHost()

	p, err := host.LoadFile(writeScript(t, dir, "mpk.lua", mpkPlugin), reg)
	require.NoError(t, err)
	assert.Equal(t, "mpk", p.Name)
	assert.Equal(t, registry.Version{Major: 1, Minor: 0}, p.ABI)
	assert.Equal(t, []string{"mpk"}, p.Extensions)
	assert.Equal(t, 1, reg.Len())

	text := bytes.Repeat([]byte("plugin entry "), 20)
	data := buildMPK(t,
		mpkFile{name: "readme.txt", data: []byte("hello")},
		mpkFile{name: `levels\one.lvl`, data: text, packed: true},
	)
	path := filepath.Join(dir, "game.mpk")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	pkg, err := reg.Open(path)
	require.NoError(t, err)
	assert.Equal(t, "mpk", pkg.Format())
	require.Equal(t, 2, pkg.Len())

	got, err := pkg.ReadName("readme.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	got, err = pkg.ReadName("levels/one.lvl")
	require.NoError(t, err)
	assert.Equal(t, text, got)

	e, err := pkg.Entry(1)
	require.NoError(t, err)
	assert.Equal(t, codec.Zlib, e.Compression)

	assert.Len(t, host.Plugins(), 1)
}

func TestPluginRejectionContinuesChain(t *testing.T) {
	dir := t.TempDir()
	reg := registry.New()
	reg.Register("mpk", registry.HandleParser{Name: "fallback", Parse: func(f *vfile.File) (*archive.Package, error) {
		return archive.New(f, "fallback"), nil
	}})

	_, err := NewHost().LoadFile(writeScript(t, dir, "mpk.lua", mpkPlugin), reg)
	require.NoError(t, err)

	path := filepath.Join(dir, "other.mpk")
	require.NoError(t, os.WriteFile(path, []byte("NOPE....more"), 0o644))

	pkg, err := reg.Open(path)
	require.NoError(t, err)
	assert.Equal(t, "fallback", pkg.Format())
}

func TestPluginErrorsKeepTheirKind(t *testing.T) {
	dir := t.TempDir()
	reg := registry.New()
	_, err := NewHost().LoadFile(writeScript(t, dir, "mpk.lua", mpkPlugin), reg)
	require.NoError(t, err)

	t.Run("read past the end", func(t *testing.T) {
		var b bytes.Buffer
		b.WriteString("MPK1")
		binary.Write(&b, binary.LittleEndian, uint32(1_000_000))
		b.WriteString("a\x00")
		path := filepath.Join(dir, "short.mpk")
		require.NoError(t, os.WriteFile(path, b.Bytes(), 0o644))

		_, err := reg.Open(path)
		assert.ErrorIs(t, err, archive.ErrUnsupportedFormat)
		assert.ErrorIs(t, err, archive.ErrBounds)
	})

	t.Run("entry outside the file", func(t *testing.T) {
		var b bytes.Buffer
		b.WriteString("MPK1")
		binary.Write(&b, binary.LittleEndian, uint32(1))
		b.WriteString("a\x00")
		binary.Write(&b, binary.LittleEndian, uint32(0))
		binary.Write(&b, binary.LittleEndian, uint32(500))
		binary.Write(&b, binary.LittleEndian, uint32(500))
		path := filepath.Join(dir, "over.mpk")
		require.NoError(t, os.WriteFile(path, b.Bytes(), 0o644))

		_, err := reg.Open(path)
		assert.ErrorIs(t, err, archive.ErrBounds)
	})

	t.Run("explicit rejection", func(t *testing.T) {
		path := filepath.Join(dir, "magic.mpk")
		require.NoError(t, os.WriteFile(path, []byte("XXXXXXXXXXXX"), 0o644))

		_, err := reg.Open(path)
		assert.ErrorIs(t, err, archive.ErrFileType)
		assert.Contains(t, err.Error(), "bad magic")
	})
}

func TestPluginVersionChecked(t *testing.T) {
	tests := []struct {
		name string
		abi  string
		want error
	}{
		{name: "newer major", abi: fmt.Sprintf("%d.0", registry.InterfaceVersion.Major+1), want: registry.ErrPluginVersion},
		{name: "newer minor", abi: fmt.Sprintf("%d.%d", registry.InterfaceVersion.Major, registry.InterfaceVersion.Minor+1), want: registry.ErrPluginVersion},
		{name: "garbage", abi: "one", want: registry.ErrPluginVersion},
		{name: "missing", abi: "", want: registry.ErrPluginVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			// init would register a loader; it must never run
			script := fmt.Sprintf(`return { name = "v", abi = %q, init = function(host) host.register("v", function() end) end }`, tt.abi)
			reg := registry.New()
			_, err := NewHost().LoadFile(writeScript(t, dir, "v.lua", script), reg)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 0, reg.Len())
		})
	}
}

func TestPluginInvalidScripts(t *testing.T) {
	tests := map[string]string{
		"syntax error":  `return {`,
		"not a table":   `return 42`,
		"no init":       `return { name = "x", abi = "1.0" }`,
		"init raises":   `return { name = "x", abi = "1.0", init = function(host) host.register("x", function() end); error("boom") end }`,
		"bad register":  `return { name = "x", abi = "1.0", init = function(host) host.register("x", 5) end }`,
		"script raises": `error("at load time")`,
	}

	for name, script := range tests {
		t.Run(name, func(t *testing.T) {
			reg := registry.New()
			_, err := NewHost().LoadFile(writeScript(t, t.TempDir(), "x.lua", script), reg)
			assert.ErrorIs(t, err, ErrPlugin)
			assert.Equal(t, 0, reg.Len(), "nothing is registered from a failed plugin")
		})
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "a_mpk.lua", mpkPlugin)
	writeScript(t, dir, "b_broken.lua", `return 1`)
	writeScript(t, dir, "notes.txt", `not a plugin`)

	reg := registry.New()
	host := NewHost()
	loaded, err := host.LoadDir(dir, reg)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "mpk", loaded[0].Name)

	loaded, err = host.LoadDir(filepath.Join(dir, "missing"), reg)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}
