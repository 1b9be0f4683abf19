package formats

import (
	"fmt"

	"github.com/jchantrell/gamepak/internal/archive"
	"github.com/jchantrell/gamepak/internal/codec"
	"github.com/jchantrell/gamepak/internal/vfile"
)

// pakLayout describes the "PACK" family: a 12-byte header pointing at a
// directory of fixed-size records.
type pakLayout struct {
	format  string
	magic   string
	nameLen int
	recSize int
	// Daikatana records carry a compressed size and a flag after the size.
	compressed bool
}

var (
	quakeLayout     = pakLayout{format: "pak", magic: "PACK", nameLen: 56, recSize: 64}
	sinLayout       = pakLayout{format: "sin", magic: "SPAK", nameLen: 120, recSize: 128}
	daikatanaLayout = pakLayout{format: "daikatana", magic: "PACK", nameLen: 56, recSize: 72, compressed: true}
)

func parseQuakePAK(f *vfile.File) (*archive.Package, error) {
	return parsePAKLayout(f, quakeLayout)
}

func parseSiNPAK(f *vfile.File) (*archive.Package, error) {
	return parsePAKLayout(f, sinLayout)
}

func parseDaikatanaPAK(f *vfile.File) (*archive.Package, error) {
	return parsePAKLayout(f, daikatanaLayout)
}

func parsePAKLayout(f *vfile.File, l pakLayout) (*archive.Package, error) {
	d := vfile.NewDecoder(f)
	if _, err := expectMagic(d, l.format, l.magic); err != nil {
		return nil, err
	}
	dirOff := d.U32()
	dirLen := d.U32()
	if err := d.Err(); err != nil {
		return nil, headerErr(l.format, err)
	}
	if dirLen%uint32(l.recSize) != 0 {
		return nil, fmt.Errorf("%w: %s: directory length %d is not a multiple of %d", archive.ErrFileType, l.format, dirLen, l.recSize)
	}

	count := uint64(dirLen) / uint64(l.recSize)
	dir, err := readTable(f, l.format, uint64(dirOff), count, uint64(l.recSize))
	if err != nil {
		return nil, err
	}

	pkg := archive.New(f, l.format)
	for i := uint64(0); i < count; i++ {
		rec := dir[i*uint64(l.recSize):]
		e := archive.Entry{
			Name:   fixedName(rec[:l.nameLen]),
			Offset: int64(le.Uint32(rec[l.nameLen:])),
			Size:   int64(le.Uint32(rec[l.nameLen+4:])),
		}
		e.CompressedSize = e.Size

		if l.compressed {
			csize := le.Uint32(rec[l.nameLen+8:])
			switch flag := le.Uint32(rec[l.nameLen+12:]); flag {
			case 0:
			case 1:
				// the Daikatana run-length scheme is not implemented
				e.CompressedSize = int64(csize)
				e.Compression = codec.Unsupported
			default:
				return nil, fmt.Errorf("%w: %s: entry %d has compression flag %d", archive.ErrFileType, l.format, i, flag)
			}
		}

		if err := pkg.Add(e); err != nil {
			return nil, fmt.Errorf("%s entry %d: %w", l.format, i, err)
		}
	}
	return pkg, nil
}
