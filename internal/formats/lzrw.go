package formats

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jchantrell/gamepak/internal/archive"
	"github.com/jchantrell/gamepak/internal/codec"
	"github.com/jchantrell/gamepak/internal/codec/lzrw1"
	"github.com/jchantrell/gamepak/internal/vfile"
)

// maxLZRW bounds the raw stream size, since the stream has to be decoded
// once at open time to learn its length.
const maxLZRW = 256 << 20

// parseLZRW wraps a bare LZRW1 stream as a package with one entry named
// after the file.
func parseLZRW(f *vfile.File) (*archive.Package, error) {
	if f.Size() < lzrw1.HeaderSize {
		return nil, fmt.Errorf("%w: lzrw: file too short", archive.ErrFileType)
	}
	if f.Size() > maxLZRW {
		return nil, fmt.Errorf("%w: lzrw: stream of %d bytes", archive.ErrBounds, f.Size())
	}

	d := vfile.NewDecoder(f)
	if flag := d.U32(); flag != lzrw1.FlagCompress && flag != lzrw1.FlagCopy {
		return nil, fmt.Errorf("%w: lzrw: bad flag word %#x", archive.ErrFileType, flag)
	}

	src, err := f.Section(0, f.Size())
	if err != nil {
		return nil, err
	}
	out, err := lzrw1.Decompress(src)
	if err != nil {
		return nil, fmt.Errorf("%w: lzrw: %w", archive.ErrDecompression, err)
	}

	base := filepath.Base(f.Path())
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if name == "" || name == "." {
		name = "data"
	}

	pkg := archive.New(f, "lzrw")
	e := archive.Entry{
		Name:           name,
		Size:           int64(len(out)),
		CompressedSize: f.Size(),
		Compression:    codec.LZRW1,
	}
	if err := pkg.Add(e); err != nil {
		return nil, err
	}
	return pkg, nil
}
