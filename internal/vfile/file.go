package vfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

var (
	// ErrOutOfRange is returned when an offset or length falls outside the handle.
	ErrOutOfRange = errors.New("range outside file bounds")
	// ErrClosed is returned for operations on a closed handle.
	ErrClosed = errors.New("file already closed")
)

// Ownership selects how a memory-backed handle treats the buffer it wraps.
type Ownership int

const (
	// Copy takes a private copy of the buffer.
	Copy Ownership = iota
	// Own takes the buffer and releases it on Close.
	Own
	// Borrow uses the buffer as-is and never releases it.
	Borrow
)

func (o Ownership) String() string {
	switch o {
	case Copy:
		return "copy"
	case Own:
		return "own"
	case Borrow:
		return "borrow"
	default:
		return fmt.Sprintf("ownership(%d)", int(o))
	}
}

// File is a seekable read handle over a disk file or a memory buffer.
// The cursor is always within [0, Size()].
type File struct {
	path   string
	size   int64
	pos    int64
	disk   *os.File
	buf    []byte
	owned  bool
	cached bool
	closed bool
	mu     sync.Mutex
}

// Open opens the file at path. With cache set the whole file is read into an
// owned buffer and the descriptor is closed before Open returns.
func Open(path string, cache bool) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("opening %s: is a directory", path)
	}

	if !cache {
		return &File{path: path, size: info.Size(), disk: f}, nil
	}

	defer f.Close()
	buf := make([]byte, info.Size())
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, fmt.Errorf("caching %s: %w", path, err)
	}

	return &File{path: path, size: int64(len(buf)), buf: buf, owned: true, cached: true}, nil
}

// Wrap creates a handle over buf. The name is only used for diagnostics.
func Wrap(name string, buf []byte, mode Ownership) *File {
	f := &File{path: name, size: int64(len(buf))}
	switch mode {
	case Copy:
		f.buf = append([]byte(nil), buf...)
		f.owned = true
	case Own:
		f.buf = buf
		f.owned = true
	default:
		f.buf = buf
	}
	return f
}

// Path returns the logical path of the handle.
func (f *File) Path() string {
	return f.path
}

// Size returns the total size in bytes.
func (f *File) Size() int64 {
	return f.size
}

// Tell returns the cursor position.
func (f *File) Tell() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos
}

// Cached reports whether the handle is backed by memory.
func (f *File) Cached() bool {
	return f.disk == nil
}

// Bytes exposes the backing buffer of a memory handle.
func (f *File) Bytes() ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disk != nil || f.closed {
		return nil, false
	}
	return f.buf, true
}

// Seek moves the cursor. A target outside [0, Size()] fails and leaves the
// cursor where it was.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return f.pos, ErrClosed
	}

	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = f.pos
	case io.SeekEnd:
		base = f.size
	default:
		return f.pos, fmt.Errorf("seek %s: invalid whence %d", f.path, whence)
	}

	target := base + offset
	if (offset > 0 && target < base) || (offset < 0 && target > base) || target < 0 || target > f.size {
		return f.pos, fmt.Errorf("%w: seek %s to %d+%d (size %d)", ErrOutOfRange, f.path, base, offset, f.size)
	}

	f.pos = target
	return f.pos, nil
}

// Rewind moves the cursor back to the start.
func (f *File) Rewind() error {
	_, err := f.Seek(0, io.SeekStart)
	return err
}

// Read implements io.Reader.
func (f *File) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, ErrClosed
	}
	if f.pos >= f.size {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}

	if remain := f.size - f.pos; int64(len(p)) > remain {
		p = p[:remain]
	}

	n, err := f.readAt(p, f.pos)
	f.pos += int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

// ReadAt implements io.ReaderAt and does not move the cursor.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("%w: read %s at %d", ErrOutOfRange, f.path, off)
	}
	return f.readAt(p, off)
}

func (f *File) readAt(p []byte, off int64) (int, error) {
	if f.disk != nil {
		return f.disk.ReadAt(p, off)
	}
	if off >= int64(len(f.buf)) {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, f.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// ReadElements reads up to count elements of elemSize bytes into dest and
// returns how many whole elements were read. A short count is not an error;
// callers compare the result against what they asked for.
func (f *File) ReadElements(dest []byte, elemSize, count int) int {
	if elemSize <= 0 || count <= 0 {
		return 0
	}

	want, err := checkedMul(uint64(elemSize), uint64(count))
	if err != nil || want > uint64(len(dest)) {
		count = len(dest) / elemSize
		want = uint64(count * elemSize)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0
	}

	avail := uint64(f.size - f.pos)
	if want > avail {
		want = avail - avail%uint64(elemSize)
	}
	if want == 0 {
		return 0
	}

	n, _ := f.readAt(dest[:want], f.pos)
	whole := n / elemSize
	f.pos += int64(whole * elemSize)
	return whole
}

// ReadFull fills p from the cursor or fails without a partial advance.
func (f *File) ReadFull(p []byte) error {
	if got := f.ReadElements(p, len(p), 1); len(p) > 0 && got != 1 {
		return fmt.Errorf("%w: read %d bytes at %d from %s", ErrOutOfRange, len(p), f.Tell(), f.path)
	}
	return nil
}

// Section returns a copy of length bytes at off after validating the range
// against the file size.
func (f *File) Section(off, length int64) ([]byte, error) {
	if off < 0 || length < 0 {
		return nil, fmt.Errorf("%w: section %d+%d of %s", ErrOutOfRange, off, length, f.path)
	}
	if err := CheckRange(uint64(off), uint64(length), uint64(f.size)); err != nil {
		return nil, fmt.Errorf("section of %s: %w", f.path, err)
	}

	buf := make([]byte, length)
	n, err := f.ReadAt(buf, off)
	if n != len(buf) {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("reading %d bytes at %d from %s: %w", length, off, f.path, err)
	}
	return buf, nil
}

// Reopen returns a fresh handle over the same source with its own cursor.
func (f *File) Reopen() (*File, error) {
	return f.Opener()()
}

// Opener returns a function producing fresh handles over the same source.
// The returned function does not depend on f staying open.
func (f *File) Opener() func() (*File, error) {
	path, cached := f.path, f.cached
	if f.disk != nil || cached {
		return func() (*File, error) {
			return Open(path, cached)
		}
	}

	f.mu.Lock()
	buf := f.buf
	f.mu.Unlock()
	return func() (*File, error) {
		if buf == nil {
			return nil, fmt.Errorf("reopen %s: %w", path, ErrClosed)
		}
		return Wrap(path, buf, Borrow), nil
	}
}

// Close releases the handle. Owned buffers are dropped; borrowed ones are
// left to the caller.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true

	if f.owned {
		f.buf = nil
	}
	if f.disk != nil {
		return f.disk.Close()
	}
	return nil
}
