package formats

import (
	"fmt"
	"math"
	"strings"

	"github.com/jchantrell/gamepak/internal/archive"
	"github.com/jchantrell/gamepak/internal/codec"
	"github.com/jchantrell/gamepak/internal/vfile"
	"github.com/klauspost/compress/zip"
)

// zipMethods maps ZIP method ids to codecs.
var zipMethods = map[uint16]codec.Method{
	zip.Store:   codec.None,
	zip.Deflate: codec.Deflate,
	6:           codec.Implode,
	12:          codec.Bzip2,
	93:          codec.Zstd,
}

const zipFlagEncrypted = 0x1

// parseZIP reads ZIP based packs (pk3, pk4, pke). The central directory is
// parsed by klauspost/compress/zip; entry data is read and decoded by the
// package like any other stored range.
func parseZIP(f *vfile.File) (*archive.Package, error) {
	zr, err := zip.NewReader(f, f.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: zip: %w", archive.ErrFileType, err)
	}

	pkg := archive.New(f, "zip")
	for i, zf := range zr.File {
		if strings.HasSuffix(zf.Name, "/") {
			continue
		}
		if zf.CompressedSize64 > math.MaxInt64 || zf.UncompressedSize64 > math.MaxInt64 {
			return nil, fmt.Errorf("%w: zip entry %d size overflows", archive.ErrBounds, i)
		}

		off, err := zf.DataOffset()
		if err != nil {
			return nil, fmt.Errorf("%w: zip entry %s: %w", archive.ErrBounds, zf.Name, err)
		}

		e := archive.Entry{
			Name:           zf.Name,
			Offset:         off,
			Size:           int64(zf.UncompressedSize64),
			CompressedSize: int64(zf.CompressedSize64),
		}
		method, ok := zipMethods[zf.Method]
		if !ok || zf.Flags&zipFlagEncrypted != 0 {
			method = codec.Unsupported
		}
		e.Compression = method

		if err := pkg.Add(e); err != nil {
			return nil, fmt.Errorf("zip entry %s: %w", zf.Name, err)
		}
	}
	return pkg, nil
}
