package vfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.pak"), false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestOpenModes(t *testing.T) {
	content := []byte("0123456789")
	path := writeTemp(t, content)

	for _, cache := range []bool{false, true} {
		f, err := Open(path, cache)
		require.NoError(t, err)

		assert.Equal(t, int64(len(content)), f.Size())
		assert.Equal(t, path, f.Path())
		assert.Equal(t, cache, f.Cached())

		buf := make([]byte, 4)
		n, err := f.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, 4, n)
		assert.Equal(t, []byte("0123"), buf)
		assert.Equal(t, int64(4), f.Tell())

		require.NoError(t, f.Close())
	}
}

func TestWrapOwnership(t *testing.T) {
	src := []byte("abcdef")

	copied := Wrap("mem", src, Copy)
	src[0] = 'X'
	got, ok := copied.Bytes()
	require.True(t, ok)
	assert.Equal(t, byte('a'), got[0])

	borrowed := Wrap("mem", src, Borrow)
	require.NoError(t, borrowed.Close())
	assert.Equal(t, byte('X'), src[0])

	owned := Wrap("mem", []byte("xyz"), Own)
	require.NoError(t, owned.Close())
	_, ok = owned.Bytes()
	assert.False(t, ok)
}

func TestSeekBounds(t *testing.T) {
	f := Wrap("mem", make([]byte, 16), Borrow)

	pos, err := f.Seek(10, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(10), pos)

	_, err = f.Seek(7, io.SeekCurrent)
	require.ErrorIs(t, err, ErrOutOfRange)
	assert.Equal(t, int64(10), f.Tell())

	_, err = f.Seek(-11, io.SeekCurrent)
	require.ErrorIs(t, err, ErrOutOfRange)
	assert.Equal(t, int64(10), f.Tell())

	pos, err = f.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(16), pos)

	_, err = f.Seek(math.MaxInt64, io.SeekEnd)
	require.ErrorIs(t, err, ErrOutOfRange)
	assert.Equal(t, int64(16), f.Tell())

	require.NoError(t, f.Rewind())
	assert.Equal(t, int64(0), f.Tell())
}

func TestReadElements(t *testing.T) {
	f := Wrap("mem", []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, Borrow)
	dest := make([]byte, 12)

	got := f.ReadElements(dest, 4, 3)
	assert.Equal(t, 2, got)
	assert.Equal(t, int64(8), f.Tell())

	got = f.ReadElements(dest, 4, 1)
	assert.Equal(t, 0, got)
	assert.Equal(t, int64(8), f.Tell())

	got = f.ReadElements(dest, 1, 5)
	assert.Equal(t, 2, got)
	assert.Equal(t, []byte{9, 10}, dest[:2])
}

func TestReadElementsOverflow(t *testing.T) {
	f := Wrap("mem", make([]byte, 8), Borrow)
	dest := make([]byte, 8)
	assert.Equal(t, 1, f.ReadElements(dest, 8, math.MaxInt))
}

func TestSection(t *testing.T) {
	f := Wrap("mem", []byte("hello world"), Borrow)

	p, err := f.Section(6, 5)
	require.NoError(t, err)
	assert.Equal(t, "world", string(p))

	_, err = f.Section(6, 6)
	require.ErrorIs(t, err, ErrOutOfRange)

	_, err = f.Section(math.MaxInt64, math.MaxInt64)
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestReopenIsIndependent(t *testing.T) {
	path := writeTemp(t, []byte("abcdef"))
	f, err := Open(path, false)
	require.NoError(t, err)
	_, err = f.Seek(3, io.SeekStart)
	require.NoError(t, err)

	g, err := f.Reopen()
	require.NoError(t, err)
	defer g.Close()
	assert.Equal(t, int64(0), g.Tell())

	require.NoError(t, f.Close())
	p := make([]byte, 2)
	require.NoError(t, g.ReadFull(p))
	assert.Equal(t, "ab", string(p))
}

func TestCheckTable(t *testing.T) {
	tests := []struct {
		name    string
		off     uint64
		count   uint64
		recSize uint64
		size    uint64
		wantErr bool
	}{
		{name: "fits", off: 16, count: 4, recSize: 16, size: 80},
		{name: "one past", off: 16, count: 4, recSize: 16, size: 79, wantErr: true},
		{name: "million records", off: 8, count: 1000000, recSize: 16, size: 16, wantErr: true},
		{name: "multiply overflow", off: 0, count: math.MaxUint64, recSize: 2, size: math.MaxUint64, wantErr: true},
		{name: "add overflow", off: math.MaxUint64, count: 1, recSize: 1, size: math.MaxUint64, wantErr: true},
		{name: "empty", off: 80, count: 0, recSize: 16, size: 80},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckTable(tt.off, tt.count, tt.recSize, tt.size)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrOutOfRange)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDecoderSticky(t *testing.T) {
	data := make([]byte, 0, 32)
	data = binary.LittleEndian.AppendUint32(data, 0xdeadbeef)
	data = binary.BigEndian.AppendUint16(data, 0x1234)
	data = binary.LittleEndian.AppendUint64(data, math.Float64bits(1.5))
	data = append(data, 'h', 'i', 0, 'x')

	d := NewDecoder(Wrap("mem", data, Borrow))
	assert.Equal(t, uint32(0xdeadbeef), d.U32())
	assert.Equal(t, uint16(0x1234), d.U16BE())
	assert.Equal(t, 1.5, d.F64())
	assert.Equal(t, "hi", d.CString(16))
	require.NoError(t, d.Err())

	assert.Equal(t, uint32(0), d.U32())
	require.ErrorIs(t, d.Err(), ErrOutOfRange)
	assert.False(t, d.Ok())

	// a later read that would fit still reports the first failure
	assert.Equal(t, uint8(0), d.U8())
	require.ErrorIs(t, d.Err(), ErrOutOfRange)
}

func TestReadWhileClosing(t *testing.T) {
	data := bytes.Repeat([]byte("abcd"), 256)
	path := writeTemp(t, data)

	for _, cache := range []bool{false, true} {
		f, err := Open(path, cache)
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				buf := make([]byte, 16)
				for j := 0; j < 100; j++ {
					n, err := f.ReadAt(buf, int64(j*4))
					if err != nil {
						assert.ErrorIs(t, err, ErrClosed)
						return
					}
					assert.Equal(t, data[j*4:j*4+n], buf[:n])
					f.Bytes()
				}
			}()
		}
		require.NoError(t, f.Close())
		wg.Wait()

		_, err = f.ReadAt(make([]byte, 1), 0)
		assert.ErrorIs(t, err, ErrClosed)
		_, ok := f.Bytes()
		assert.False(t, ok)
	}
}

func TestDecoderSeekTo(t *testing.T) {
	d := NewDecoder(Wrap("mem", []byte{1, 2, 3, 4, 5, 6}, Borrow))
	d.SeekTo(4)
	assert.Equal(t, uint16(0x0605), d.U16())
	d.SeekTo(1)
	assert.Equal(t, int64(1), d.Tell())
	assert.Equal(t, uint8(2), d.U8())
	require.NoError(t, d.Err())

	d.SeekTo(7)
	require.ErrorIs(t, d.Err(), ErrOutOfRange)
	assert.Equal(t, int64(2), d.Tell(), "a failed seek leaves the cursor")
}

func TestDecoderBytesLimit(t *testing.T) {
	d := NewDecoder(Wrap("mem", make([]byte, 4), Borrow))
	assert.Nil(t, d.Bytes(1<<40))
	require.ErrorIs(t, d.Err(), ErrOutOfRange)
}

func TestDecoderBigEndian(t *testing.T) {
	d := NewDecoderOrder(Wrap("mem", []byte{0, 0, 1, 0, 0xff, 0xfe}, Borrow), binary.BigEndian)
	assert.Equal(t, uint32(256), d.U32())
	assert.Equal(t, int16(-2), d.I16())
	require.NoError(t, d.Err())
}
