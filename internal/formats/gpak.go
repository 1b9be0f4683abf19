package formats

import (
	"fmt"

	"github.com/jchantrell/gamepak/internal/archive"
	"github.com/jchantrell/gamepak/internal/codec"
	"github.com/jchantrell/gamepak/internal/vfile"
)

// GPAK is the native format: a small header, the stored entry data, a
// table of variable-length records and a fixed trailer pointing at it.
const (
	gpakMagic       = "GPAK"
	gpakVersion     = 1
	gpakHeaderSize  = 8
	gpakTrailerSize = 16
	gpakMinRecord   = 2 + 1 + 24
	gpakMaxName     = 4096
)

// gpakMethods maps method ids stored on disk to codecs. The ids are part of
// the file format and never change.
var gpakMethods = []codec.Method{
	0: codec.None,
	1: codec.Deflate,
	2: codec.Zlib,
	3: codec.LZRW1,
	4: codec.LZSS,
	5: codec.Zstd,
}

func gpakMethodID(m codec.Method) (uint8, error) {
	for id, gm := range gpakMethods {
		if gm == m {
			return uint8(id), nil
		}
	}
	return 0, fmt.Errorf("%w: gpak cannot store %s", codec.ErrUnsupported, m)
}

func parseGPAK(f *vfile.File) (*archive.Package, error) {
	d := vfile.NewDecoder(f)
	if _, err := expectMagic(d, "gpak", gpakMagic); err != nil {
		return nil, err
	}
	version := d.U32()
	if err := d.Err(); err != nil {
		return nil, headerErr("gpak", err)
	}
	if version != gpakVersion {
		return nil, fmt.Errorf("%w: gpak version %d", archive.ErrFileVersion, version)
	}

	size := f.Size()
	if size < gpakHeaderSize+gpakTrailerSize {
		return nil, fmt.Errorf("%w: gpak: no room for trailer", archive.ErrFileType)
	}
	trailerOff := size - gpakTrailerSize
	d.SeekTo(trailerOff)
	tableOff := d.U64()
	count := d.U32()
	if _, err := expectMagic(d, "gpak trailer", gpakMagic); err != nil {
		return nil, err
	}
	if tableOff < gpakHeaderSize || tableOff > uint64(trailerOff) {
		return nil, fmt.Errorf("%w: gpak table at %d", archive.ErrBounds, tableOff)
	}
	if err := vfile.CheckTable(tableOff, uint64(count), gpakMinRecord, uint64(trailerOff)); err != nil {
		return nil, fmt.Errorf("gpak table: %w", err)
	}

	pkg := archive.New(f, "gpak")
	d.SeekTo(int64(tableOff))
	for i := uint32(0); i < count; i++ {
		nameLen := d.U16()
		if nameLen > gpakMaxName {
			return nil, fmt.Errorf("%w: gpak entry %d name of %d bytes", archive.ErrBounds, i, nameLen)
		}
		name := d.Bytes(int64(nameLen))
		methodID := d.U8()
		off := d.U64()
		usize := d.U64()
		csize := d.U64()
		if err := d.Err(); err != nil {
			return nil, fmt.Errorf("gpak entry %d: %w", i, err)
		}
		if int(methodID) >= len(gpakMethods) {
			return nil, fmt.Errorf("%w: gpak entry %d uses method %d", archive.ErrFileVersion, i, methodID)
		}
		if usize > 1<<62 || off > 1<<62 || csize > 1<<62 {
			return nil, fmt.Errorf("%w: gpak entry %d size", archive.ErrBounds, i)
		}
		if off+csize > tableOff {
			return nil, fmt.Errorf("%w: gpak entry %d overlaps the table", archive.ErrBounds, i)
		}

		e := archive.Entry{
			Name:           string(name),
			Offset:         int64(off),
			Size:           int64(usize),
			CompressedSize: int64(csize),
			Compression:    gpakMethods[methodID],
		}
		if err := pkg.Add(e); err != nil {
			return nil, fmt.Errorf("gpak entry %d: %w", i, err)
		}
	}

	if d.Tell() != trailerOff {
		return nil, fmt.Errorf("%w: gpak table ends at %d, trailer at %d", archive.ErrFileType, d.Tell(), trailerOff)
	}
	return pkg, nil
}
