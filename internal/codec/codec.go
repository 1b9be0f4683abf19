// Package codec dispatches entry payloads to the decoder for their
// compression method.
package codec

import (
	"bytes"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/jchantrell/gamepak/internal/codec/lzrw1"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/oriath-net/gooz"
	"github.com/woozymasta/lzss"
)

// Method identifies how an entry payload is stored.
type Method uint8

const (
	None Method = iota
	Deflate
	Zlib
	Implode
	LZRW1
	LZSS
	Zstd
	Oodle
	Bzip2
	// Unsupported marks payloads whose compression flag is known to be set
	// but whose layout is not decoded.
	Unsupported
)

var methodNames = map[Method]string{
	None:        "none",
	Deflate:     "deflate",
	Zlib:        "zlib",
	Implode:     "implode",
	LZRW1:       "lzrw1",
	LZSS:        "lzss",
	Zstd:        "zstd",
	Oodle:       "oodle",
	Bzip2:       "bzip2",
	Unsupported: "unsupported",
}

func (m Method) String() string {
	if name, ok := methodNames[m]; ok {
		return name
	}
	return fmt.Sprintf("method(%d)", uint8(m))
}

// ParseMethod returns the method with the given name.
func ParseMethod(name string) (Method, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "store" {
		return None, nil
	}
	for m, n := range methodNames {
		if n == name {
			return m, nil
		}
	}
	return Unsupported, fmt.Errorf("%w: unknown method %q", ErrUnsupported, name)
}

var (
	// ErrUnsupported is returned for methods with no decoder.
	ErrUnsupported = errors.New("unsupported compression")
	// ErrSizeMismatch is returned when the decoded length differs from the
	// length recorded for the entry.
	ErrSizeMismatch = errors.New("decoded size mismatch")
)

// maxPrealloc bounds allocations made from header sizes before any data has
// been decoded.
const maxPrealloc = 1 << 30

// DecodeFunc decodes src into exactly size bytes. A negative size means the
// caller does not know the decoded length.
type DecodeFunc func(src []byte, size int64) ([]byte, error)

var (
	mu       sync.RWMutex
	decoders = map[Method]DecodeFunc{}
)

// RegisterDecoder installs fn for m, replacing any earlier decoder. Methods
// such as Implode have no built-in decoder and only work once one is
// registered.
func RegisterDecoder(m Method, fn DecodeFunc) {
	mu.Lock()
	defer mu.Unlock()
	if fn == nil {
		delete(decoders, m)
		return
	}
	decoders[m] = fn
}

func lookup(m Method) (DecodeFunc, bool) {
	mu.RLock()
	defer mu.RUnlock()
	fn, ok := decoders[m]
	return fn, ok
}

// Decode decodes src stored with method m. When size is not negative the
// result must be exactly size bytes long.
func Decode(m Method, src []byte, size int64) ([]byte, error) {
	var (
		out []byte
		err error
	)

	if fn, ok := lookup(m); ok {
		out, err = fn(src, size)
	} else {
		switch m {
		case None:
			out = src
		case Deflate:
			out, err = readAll(flate.NewReader(bytes.NewReader(src)), size)
		case Zlib:
			var zr io.ReadCloser
			if zr, err = zlib.NewReader(bytes.NewReader(src)); err == nil {
				out, err = readAll(zr, size)
				zr.Close()
			}
		case Bzip2:
			out, err = readAll(bzip2.NewReader(bytes.NewReader(src)), size)
		case Zstd:
			out, err = decodeZstd(src, size)
		case LZRW1:
			hint := 0
			if size > 0 && size < maxPrealloc {
				hint = int(size)
			}
			out, err = lzrw1.DecompressSize(src, hint)
		case LZSS:
			out, err = decodeLZSS(src, size)
		case Oodle:
			out, err = decodeOodle(src, size)
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupported, m)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m, err)
	}

	if size >= 0 && int64(len(out)) != size {
		return nil, fmt.Errorf("%w: %s produced %d bytes, want %d", ErrSizeMismatch, m, len(out), size)
	}
	return out, nil
}

// readAll reads at most size+1 bytes so an oversized stream is detected
// without reading it to the end.
func readAll(r io.Reader, size int64) ([]byte, error) {
	if size >= 0 {
		r = io.LimitReader(r, size+1)
	}
	return io.ReadAll(r)
}

// maxZstdMemory caps the window of streamed frames and the output of frames
// decoded without a known size.
const maxZstdMemory = 128 << 20

var (
	zstdOnce sync.Once
	zstdDec  *zstd.Decoder
	zstdErr  error
)

func decodeZstd(src []byte, size int64) ([]byte, error) {
	if size < 0 {
		zstdOnce.Do(func() {
			zstdDec, zstdErr = zstd.NewReader(nil,
				zstd.WithDecoderConcurrency(1),
				zstd.WithDecoderMaxMemory(maxZstdMemory))
		})
		if zstdErr != nil {
			return nil, zstdErr
		}
		return zstdDec.DecodeAll(src, nil)
	}

	var h zstd.Header
	if err := h.Decode(src); err == nil && h.HasFCS && h.FrameContentSize > uint64(size) {
		return nil, fmt.Errorf("%w: frame declares %d bytes, want %d", ErrSizeMismatch, h.FrameContentSize, size)
	}

	dec, err := zstd.NewReader(bytes.NewReader(src),
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(maxZstdMemory))
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return readAll(dec, size)
}

func decodeLZSS(src []byte, size int64) ([]byte, error) {
	if size < 0 || size > maxPrealloc {
		return nil, fmt.Errorf("lzss needs a known output size, got %d", size)
	}
	var buf bytes.Buffer
	buf.Grow(int(size))
	if _, err := lzss.DecompressToWriter(&buf, bytes.NewReader(src), int(size), nil); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeOodle(src []byte, size int64) ([]byte, error) {
	if size < 0 || size > maxPrealloc {
		return nil, fmt.Errorf("oodle needs a known output size, got %d", size)
	}
	dst := make([]byte, size)
	if _, err := gooz.Decompress(src, dst); err != nil {
		return nil, err
	}
	return dst, nil
}
