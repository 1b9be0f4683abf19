package formats

import (
	"fmt"

	"github.com/jchantrell/gamepak/internal/archive"
	"github.com/jchantrell/gamepak/internal/codec"
	"github.com/jchantrell/gamepak/internal/vfile"
)

const (
	lodTableOffset = 0x5c
	lodRecordSize  = 32
)

// parseLOD reads Heroes of Might and Magic III LOD archives. Entries with a
// zero compressed size are stored, the rest are zlib streams.
func parseLOD(f *vfile.File) (*archive.Package, error) {
	d := vfile.NewDecoder(f)
	if _, err := expectMagic(d, "lod", "LOD\x00"); err != nil {
		return nil, err
	}
	_ = d.U32() // archive type
	count := d.U32()
	if err := d.Err(); err != nil {
		return nil, headerErr("lod", err)
	}

	dir, err := readTable(f, "lod", lodTableOffset, uint64(count), lodRecordSize)
	if err != nil {
		return nil, err
	}

	pkg := archive.New(f, "lod")
	for i := uint32(0); i < count; i++ {
		rec := dir[i*lodRecordSize:]
		e := archive.Entry{
			Name:   fixedName(rec[:16]),
			Offset: int64(le.Uint32(rec[16:])),
			Size:   int64(le.Uint32(rec[20:])),
		}
		if csize := le.Uint32(rec[28:]); csize != 0 {
			e.CompressedSize = int64(csize)
			e.Compression = codec.Zlib
		} else {
			e.CompressedSize = e.Size
		}

		if err := pkg.Add(e); err != nil {
			return nil, fmt.Errorf("lod entry %d: %w", i, err)
		}
	}
	return pkg, nil
}
