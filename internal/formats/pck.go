package formats

import (
	"fmt"
	"strings"

	"github.com/jchantrell/gamepak/internal/archive"
	"github.com/jchantrell/gamepak/internal/codec"
	"github.com/jchantrell/gamepak/internal/vfile"
)

const (
	pckFlagEncryptedDir = 1 << 0
	pckFileEncrypted    = 1 << 0
	// smallest record: path length, offset, size, md5
	pckMinRecord        = 4 + 8 + 8 + 16
)

// parseGodotPCK reads Godot engine packs, format versions 1 and 2.
func parseGodotPCK(f *vfile.File) (*archive.Package, error) {
	d := vfile.NewDecoder(f)
	if _, err := expectMagic(d, "pck", "GDPC"); err != nil {
		return nil, err
	}
	version := d.U32()
	_, _, _ = d.U32(), d.U32(), d.U32() // engine major, minor, patch
	if err := d.Err(); err != nil {
		return nil, headerErr("pck", err)
	}

	var flags uint32
	var base int64
	switch version {
	case 1:
	case 2:
		flags = d.U32()
		base = int64(d.U64())
		if flags&pckFlagEncryptedDir != 0 {
			return nil, fmt.Errorf("%w: pck directory is encrypted", archive.ErrFileVersion)
		}
	default:
		return nil, fmt.Errorf("%w: pck format version %d", archive.ErrFileVersion, version)
	}
	d.Skip(16 * 4) // reserved
	count := d.U32()
	if err := d.Err(); err != nil {
		return nil, headerErr("pck", err)
	}
	if base < 0 || base > f.Size() {
		return nil, fmt.Errorf("%w: pck file base %d", archive.ErrBounds, base)
	}
	if err := vfile.CheckTable(uint64(d.Tell()), uint64(count), pckMinRecord, uint64(f.Size())); err != nil {
		return nil, fmt.Errorf("pck directory: %w", err)
	}

	pkg := archive.New(f, "pck")
	for i := uint32(0); i < count; i++ {
		pathLen := d.U32()
		if pathLen > 4096 {
			return nil, fmt.Errorf("%w: pck entry %d path length %d", archive.ErrFileType, i, pathLen)
		}
		path := vfile.CString(d.Bytes(int64(pathLen)))
		off := d.U64()
		size := d.U64()
		d.Skip(16) // md5
		var fileFlags uint32
		if version == 2 {
			fileFlags = d.U32()
		}
		if err := d.Err(); err != nil {
			return nil, fmt.Errorf("pck entry %d: %w", i, err)
		}
		if off > 1<<62 || size > 1<<62 {
			return nil, fmt.Errorf("%w: pck entry %d offset %d size %d", archive.ErrBounds, i, off, size)
		}

		e := archive.Entry{
			Name:           strings.TrimPrefix(path, "res://"),
			Offset:         int64(off),
			Size:           int64(size),
			CompressedSize: int64(size),
		}
		if version == 2 {
			e.Offset += base
		}
		if fileFlags&pckFileEncrypted != 0 {
			e.Compression = codec.Unsupported
		}
		if err := pkg.Add(e); err != nil {
			return nil, fmt.Errorf("pck entry %d: %w", i, err)
		}
	}
	return pkg, nil
}
