package formats

import (
	"fmt"

	"github.com/jchantrell/gamepak/internal/archive"
	"github.com/jchantrell/gamepak/internal/codec"
	"github.com/jchantrell/gamepak/internal/vfile"
)

// parseDoomWAD reads IWAD and PWAD files. Lump names repeat between maps, so
// lookups by name find the first lump.
func parseDoomWAD(f *vfile.File) (*archive.Package, error) {
	d := vfile.NewDecoder(f)
	if _, err := expectMagic(d, "wad", "IWAD", "PWAD"); err != nil {
		return nil, err
	}
	count := d.I32()
	dirOff := d.I32()
	if err := d.Err(); err != nil {
		return nil, headerErr("wad", err)
	}
	if count < 0 || dirOff < 0 {
		return nil, fmt.Errorf("%w: wad header has negative count or offset", archive.ErrBounds)
	}

	dir, err := readTable(f, "wad", uint64(dirOff), uint64(count), 16)
	if err != nil {
		return nil, err
	}

	pkg := archive.New(f, "wad")
	for i := 0; i < int(count); i++ {
		rec := dir[i*16:]
		filePos := int32(le.Uint32(rec))
		size := int32(le.Uint32(rec[4:]))
		name := fixedName(rec[8:16])
		if name == "" {
			return nil, fmt.Errorf("%w: wad lump %d has no name", archive.ErrFileType, i)
		}

		e := archive.Entry{Name: name, Offset: int64(filePos), Size: int64(size), CompressedSize: int64(size)}
		if size == 0 {
			// markers such as F_START often carry a junk position
			e.Offset = 0
		}
		if err := pkg.Add(e); err != nil {
			return nil, fmt.Errorf("wad lump %d: %w", i, err)
		}
	}
	return pkg, nil
}

// wad2Extensions gives lumps a suffix by type so textures and palettes with
// the same name stay apart.
var wad2Extensions = map[byte]string{
	0x40: ".pal",
	0x42: ".qpic",
	0x43: ".mip",
	0x44: ".mip",
	0x45: ".qpic",
}

// parseWAD2 reads Quake WAD2 and Half-Life WAD3 texture files.
func parseWAD2(f *vfile.File) (*archive.Package, error) {
	d := vfile.NewDecoder(f)
	if _, err := expectMagic(d, "wad2", "WAD2", "WAD3"); err != nil {
		return nil, err
	}
	count := d.U32()
	dirOff := d.U32()
	if err := d.Err(); err != nil {
		return nil, headerErr("wad2", err)
	}

	dir, err := readTable(f, "wad2", uint64(dirOff), uint64(count), 32)
	if err != nil {
		return nil, err
	}

	pkg := archive.New(f, "wad2")
	for i := uint32(0); i < count; i++ {
		rec := dir[i*32:]
		e := archive.Entry{
			Offset:         int64(le.Uint32(rec)),
			CompressedSize: int64(le.Uint32(rec[4:])),
			Size:           int64(le.Uint32(rec[8:])),
			Name:           fixedName(rec[16:32]) + wad2Extensions[rec[12]],
		}
		if rec[13] != 0 {
			e.Compression = codec.Unsupported
		} else if e.CompressedSize != e.Size {
			return nil, fmt.Errorf("%w: wad2 lump %d stored with %d of %d bytes", archive.ErrFileType, i, e.CompressedSize, e.Size)
		}

		if err := pkg.Add(e); err != nil {
			return nil, fmt.Errorf("wad2 lump %d: %w", i, err)
		}
	}
	return pkg, nil
}
