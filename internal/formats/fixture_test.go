package formats

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/jchantrell/gamepak/internal/archive"
	"github.com/jchantrell/gamepak/internal/vfile"
	"github.com/stretchr/testify/require"
)

// fixture assembles little-endian test archives.
type fixture struct {
	bytes.Buffer
}

func (b *fixture) u8(v uint8) *fixture {
	b.WriteByte(v)
	return b
}

func (b *fixture) u16(v uint16) *fixture {
	binary.Write(b, binary.LittleEndian, v)
	return b
}

func (b *fixture) u32(v uint32) *fixture {
	binary.Write(b, binary.LittleEndian, v)
	return b
}

func (b *fixture) u64(v uint64) *fixture {
	binary.Write(b, binary.LittleEndian, v)
	return b
}

func (b *fixture) u32be(v uint32) *fixture {
	binary.Write(b, binary.BigEndian, v)
	return b
}

func (b *fixture) str(s string) *fixture {
	b.WriteString(s)
	return b
}

func (b *fixture) cstr(s string) *fixture {
	b.WriteString(s)
	b.WriteByte(0)
	return b
}

// fixed writes s into an n-byte NUL padded field.
func (b *fixture) fixed(s string, n int) *fixture {
	field := make([]byte, n)
	copy(field, s)
	b.Write(field)
	return b
}

func (b *fixture) pad(n int) *fixture {
	b.Write(make([]byte, n))
	return b
}

// padTo zero fills up to absolute offset off.
func (b *fixture) padTo(off int) *fixture {
	if n := off - b.Len(); n > 0 {
		b.pad(n)
	}
	return b
}

func writeFixture(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func memFile(name string, data []byte) *vfile.File {
	return vfile.Wrap(name, data, vfile.Borrow)
}

// names returns the entry names of p in table order.
func names(p *archive.Package) []string {
	out := make([]string, 0, p.Len())
	for _, e := range p.Entries() {
		out = append(out, e.Name)
	}
	return out
}

func readString(t *testing.T, p *archive.Package, name string) string {
	t.Helper()
	data, err := p.ReadName(name)
	require.NoError(t, err, name)
	return string(data)
}
