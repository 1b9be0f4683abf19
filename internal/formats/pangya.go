package formats

import (
	"fmt"

	"github.com/jchantrell/gamepak/internal/archive"
	"github.com/jchantrell/gamepak/internal/codec"
	"github.com/jchantrell/gamepak/internal/vfile"
)

const (
	pangyaTrailerSize = 9
	pangyaEntrySize   = 14

	pangyaStored    = 0
	pangyaLZ77      = 1
	pangyaDirectory = 2
)

// parsePangya reads a Pangya PAK. There is no magic: the 9-byte trailer
// points at the file list, and the list must end exactly at the trailer.
func parsePangya(f *vfile.File) (*archive.Package, error) {
	size := f.Size()
	if size < pangyaTrailerSize {
		return nil, fmt.Errorf("%w: pangya: file too short for trailer", archive.ErrFileType)
	}

	d := vfile.NewDecoder(f)
	d.SeekTo(size - pangyaTrailerSize)
	listOff := d.U32()
	count := d.U32()
	_ = d.U8() // version
	if err := d.Err(); err != nil {
		return nil, headerErr("pangya", err)
	}

	listEnd := uint64(size - pangyaTrailerSize)
	if err := vfile.CheckTable(uint64(listOff), uint64(count), pangyaEntrySize, listEnd); err != nil {
		return nil, fmt.Errorf("pangya file list: %w", err)
	}

	pkg := archive.New(f, "pangya")
	d.SeekTo(int64(listOff))
	for i := uint32(0); i < count; i++ {
		pathLen := d.U8()
		method := d.U8()
		off := d.U32()
		csize := d.U32()
		usize := d.U32()
		name := string(d.Bytes(int64(pathLen)))
		if err := d.Err(); err != nil {
			return nil, fmt.Errorf("pangya entry %d: %w", i, err)
		}
		if uint64(d.Tell()) > listEnd {
			return nil, fmt.Errorf("%w: pangya entry %d runs into the trailer", archive.ErrBounds, i)
		}

		e := archive.Entry{Name: name, Offset: int64(off), Size: int64(usize), CompressedSize: int64(csize)}
		switch method {
		case pangyaDirectory:
			continue
		case pangyaStored:
			if csize != usize {
				return nil, fmt.Errorf("%w: pangya entry %d stored with %d of %d bytes", archive.ErrFileType, i, csize, usize)
			}
		case pangyaLZ77:
			e.Compression = codec.Unsupported
		default:
			return nil, fmt.Errorf("%w: pangya entry %d has compression %d", archive.ErrFileType, i, method)
		}

		if err := pkg.Add(e); err != nil {
			return nil, fmt.Errorf("pangya entry %d: %w", i, err)
		}
	}

	if uint64(d.Tell()) != listEnd {
		return nil, fmt.Errorf("%w: pangya file list ends at %d, trailer starts at %d", archive.ErrFileType, d.Tell(), listEnd)
	}
	return pkg, nil
}
