package vfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Decoder reads fixed-width values from a File. The first failed read is
// remembered; every later read returns zero without touching the file, so a
// parser can chain reads and check Err once.
type Decoder struct {
	f     *File
	order binary.ByteOrder
	err   error
	buf   [8]byte
}

// NewDecoder returns a little-endian decoder positioned at the file cursor.
func NewDecoder(f *File) *Decoder {
	return &Decoder{f: f, order: binary.LittleEndian}
}

// NewDecoderOrder returns a decoder using the given byte order.
func NewDecoderOrder(f *File, order binary.ByteOrder) *Decoder {
	return &Decoder{f: f, order: order}
}

// Err returns the first failure, if any.
func (d *Decoder) Err() error {
	return d.err
}

// Ok reports whether every read so far succeeded.
func (d *Decoder) Ok() bool {
	return d.err == nil
}

// Order returns the decoder byte order.
func (d *Decoder) Order() binary.ByteOrder {
	return d.order
}

// Tell returns the file cursor.
func (d *Decoder) Tell() int64 {
	return d.f.Tell()
}

// Remaining returns the bytes left after the cursor.
func (d *Decoder) Remaining() int64 {
	return d.f.Size() - d.f.Tell()
}

func (d *Decoder) fill(n int) []byte {
	if d.err != nil {
		return nil
	}
	p := d.buf[:n]
	if err := d.f.ReadFull(p); err != nil {
		d.err = err
		return nil
	}
	return p
}

// Fail records err unless an earlier failure is already recorded.
func (d *Decoder) Fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

func (d *Decoder) U8() uint8 {
	p := d.fill(1)
	if p == nil {
		return 0
	}
	return p[0]
}

func (d *Decoder) U16() uint16 {
	p := d.fill(2)
	if p == nil {
		return 0
	}
	return d.order.Uint16(p)
}

func (d *Decoder) U32() uint32 {
	p := d.fill(4)
	if p == nil {
		return 0
	}
	return d.order.Uint32(p)
}

func (d *Decoder) U64() uint64 {
	p := d.fill(8)
	if p == nil {
		return 0
	}
	return d.order.Uint64(p)
}

func (d *Decoder) I8() int8   { return int8(d.U8()) }
func (d *Decoder) I16() int16 { return int16(d.U16()) }
func (d *Decoder) I32() int32 { return int32(d.U32()) }
func (d *Decoder) I64() int64 { return int64(d.U64()) }

func (d *Decoder) F32() float32 { return math.Float32frombits(d.U32()) }
func (d *Decoder) F64() float64 { return math.Float64frombits(d.U64()) }

// U16BE and U32BE read big-endian values regardless of the decoder order.
func (d *Decoder) U16BE() uint16 {
	p := d.fill(2)
	if p == nil {
		return 0
	}
	return binary.BigEndian.Uint16(p)
}

func (d *Decoder) U32BE() uint32 {
	p := d.fill(4)
	if p == nil {
		return 0
	}
	return binary.BigEndian.Uint32(p)
}

// Bytes reads n bytes. The length is checked against the remaining file
// before anything is allocated.
func (d *Decoder) Bytes(n int64) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || n > d.Remaining() {
		d.err = fmt.Errorf("%w: read of %d bytes at %d in %s", ErrOutOfRange, n, d.Tell(), d.f.Path())
		return nil
	}
	p := make([]byte, n)
	if err := d.f.ReadFull(p); err != nil {
		d.err = err
		return nil
	}
	return p
}

// Skip advances the cursor by n bytes.
func (d *Decoder) Skip(n int64) {
	if d.err != nil {
		return
	}
	if _, err := d.f.Seek(n, io.SeekCurrent); err != nil {
		d.err = err
	}
}

// SeekTo moves to an absolute position.
func (d *Decoder) SeekTo(off int64) {
	if d.err != nil {
		return
	}
	if _, err := d.f.Seek(off, io.SeekStart); err != nil {
		d.err = err
	}
}

// FixedString reads an n-byte field and cuts it at the first NUL.
func (d *Decoder) FixedString(n int) string {
	p := d.Bytes(int64(n))
	if p == nil {
		return ""
	}
	return CString(p)
}

// CString reads a NUL-terminated string of at most limit bytes, terminator
// excluded.
func (d *Decoder) CString(limit int) string {
	if d.err != nil {
		return ""
	}
	var out []byte
	for i := 0; i <= limit; i++ {
		c := d.U8()
		if d.err != nil {
			return ""
		}
		if c == 0 {
			return string(out)
		}
		out = append(out, c)
	}
	d.err = fmt.Errorf("%w: string longer than %d bytes at %d in %s", ErrOutOfRange, limit, d.Tell(), d.f.Path())
	return ""
}

// CString cuts p at the first NUL byte.
func CString(p []byte) string {
	if i := bytes.IndexByte(p, 0); i >= 0 {
		p = p[:i]
	}
	return string(p)
}
