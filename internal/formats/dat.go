package formats

import (
	"fmt"

	"github.com/jchantrell/gamepak/internal/archive"
	"github.com/jchantrell/gamepak/internal/codec"
	"github.com/jchantrell/gamepak/internal/vfile"
)

// smallest tree record: name length, one name byte, type, three sizes
const datMinRecord = 4 + 1 + 1 + 12

// parseFalloutDAT reads Fallout 2 DAT files. There is no magic; the last
// eight bytes hold the tree size and the total size, which must match the
// file.
func parseFalloutDAT(f *vfile.File) (*archive.Package, error) {
	size := f.Size()
	if size < 12 {
		return nil, fmt.Errorf("%w: dat: file too short", archive.ErrFileType)
	}

	d := vfile.NewDecoder(f)
	d.SeekTo(size - 8)
	treeSize := d.U32()
	dataSize := d.U32()
	if err := d.Err(); err != nil {
		return nil, headerErr("dat", err)
	}
	if int64(dataSize) != size {
		return nil, fmt.Errorf("%w: dat: trailer size %d does not match file size %d", archive.ErrFileType, dataSize, size)
	}
	if int64(treeSize)+8 > size {
		return nil, fmt.Errorf("%w: dat: tree of %d bytes does not fit", archive.ErrBounds, treeSize)
	}

	treeStart := size - 8 - int64(treeSize)
	d.SeekTo(treeStart)
	count := d.U32()
	if err := d.Err(); err != nil {
		return nil, headerErr("dat", err)
	}
	if err := vfile.CheckTable(uint64(treeStart)+4, uint64(count), datMinRecord, uint64(size-8)); err != nil {
		return nil, fmt.Errorf("dat tree: %w", err)
	}

	pkg := archive.New(f, "dat")
	for i := uint32(0); i < count; i++ {
		nameLen := d.U32()
		if nameLen > 1024 {
			return nil, fmt.Errorf("%w: dat entry %d name length %d", archive.ErrFileType, i, nameLen)
		}
		name := string(d.Bytes(int64(nameLen)))
		kind := d.U8()
		realSize := d.U32()
		packedSize := d.U32()
		off := d.U32()
		if err := d.Err(); err != nil {
			return nil, fmt.Errorf("dat entry %d: %w", i, err)
		}

		e := archive.Entry{Name: name, Offset: int64(off), Size: int64(realSize), CompressedSize: int64(packedSize)}
		switch kind {
		case 0:
			e.CompressedSize = e.Size
		case 1:
			e.Compression = codec.Zlib
		default:
			return nil, fmt.Errorf("%w: dat entry %d has type %d", archive.ErrFileType, i, kind)
		}
		if err := pkg.Add(e); err != nil {
			return nil, fmt.Errorf("dat entry %d: %w", i, err)
		}
	}

	if d.Tell() > size-8 {
		return nil, fmt.Errorf("%w: dat tree runs into the trailer", archive.ErrBounds)
	}
	return pkg, nil
}
