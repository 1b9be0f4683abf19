package codec

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/jchantrell/gamepak/internal/codec/lzrw1"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/woozymasta/lzss"
)

// Writable lists the methods Encode supports.
var Writable = []Method{None, Deflate, Zlib, LZRW1, LZSS, Zstd}

var (
	zstdEncOnce sync.Once
	zstdEnc     *zstd.Encoder
	zstdEncErr  error
)

// Encode compresses src with m.
func Encode(m Method, src []byte) ([]byte, error) {
	switch m {
	case None:
		return append([]byte(nil), src...), nil
	case Deflate:
		var buf bytes.Buffer
		w, err := flate.NewWriter(&buf, flate.BestCompression)
		if err != nil {
			return nil, fmt.Errorf("creating deflate writer: %w", err)
		}
		if _, err := w.Write(src); err != nil {
			return nil, fmt.Errorf("deflate: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("deflate: %w", err)
		}
		return buf.Bytes(), nil
	case Zlib:
		var buf bytes.Buffer
		w := zlib.NewWriter(&buf)
		if _, err := w.Write(src); err != nil {
			return nil, fmt.Errorf("zlib: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("zlib: %w", err)
		}
		return buf.Bytes(), nil
	case LZRW1:
		return lzrw1.Compress(src), nil
	case LZSS:
		out, err := lzss.Compress(src, lzss.DefaultCompressOptions())
		if err != nil {
			return nil, fmt.Errorf("lzss: %w", err)
		}
		return out, nil
	case Zstd:
		zstdEncOnce.Do(func() {
			zstdEnc, zstdEncErr = zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1), zstd.WithLowerEncoderMem(true))
		})
		if zstdEncErr != nil {
			return nil, fmt.Errorf("zstd: %w", zstdEncErr)
		}
		return zstdEnc.EncodeAll(src, nil), nil
	default:
		return nil, fmt.Errorf("%w: cannot encode %s", ErrUnsupported, m)
	}
}
