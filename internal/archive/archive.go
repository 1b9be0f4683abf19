// Package archive holds the uniform view of an opened game package: an
// ordered table of entries and the logic to read them back.
package archive

import (
	"fmt"
	"strings"
	"sync"

	"github.com/jchantrell/gamepak/internal/codec"
	"github.com/jchantrell/gamepak/internal/vfile"
)

// Entry is one file inside a package.
type Entry struct {
	// Name is slash separated, relative, and free of ".." elements.
	Name string
	// Label is an optional human readable name for hash-named entries. It is
	// never used for lookups.
	Label string
	// Offset is where the stored bytes begin in the package source.
	Offset int64
	// Size is the decoded size.
	Size int64
	// CompressedSize is the number of stored bytes.
	CompressedSize int64
	Compression    codec.Method
	// Hash is set by formats that identify entries by hash only.
	Hash uint64
	// Extra carries format specific location data for extractors.
	Extra any
}

// Extractor produces the decoded bytes of entries that cannot be read with a
// single offset and size.
type Extractor func(p *Package, e *Entry) ([]byte, error)

// Package is an opened archive. Entries keep on-disk table order.
type Package struct {
	path      string
	format    string
	size      int64
	entries   []Entry
	index     map[string]int
	extract   Extractor
	open      func() (*vfile.File, error)
	mu        sync.Mutex
	source    *vfile.File
	closed    bool
	sealedErr error
}

// New creates an empty package over the source that f reads. The package
// does not keep f; it reopens the source when entries are read.
func New(f *vfile.File, format string) *Package {
	return &Package{
		path:   f.Path(),
		format: format,
		size:   f.Size(),
		index:  make(map[string]int),
		open:   f.Opener(),
	}
}

// NewDetached creates a package whose entries all live outside a single
// source file. An extractor must be set before entries are read.
func NewDetached(path, format string) *Package {
	return &Package{
		path:   path,
		format: format,
		index:  make(map[string]int),
	}
}

// Path returns the path the package was opened from.
func (p *Package) Path() string {
	return p.path
}

// Format returns the name of the format that parsed the package.
func (p *Package) Format() string {
	return p.format
}

// SourceSize returns the size of the package source in bytes.
func (p *Package) SourceSize() int64 {
	return p.size
}

// SetExtractor routes every entry read through fn.
func (p *Package) SetExtractor(fn Extractor) {
	p.extract = fn
}

// Add validates e against the source extent and appends it.
func (p *Package) Add(e Entry) error {
	if e.Offset < 0 || e.CompressedSize < 0 || e.Size < 0 {
		return fmt.Errorf("%w: entry %q has negative offset or size", ErrBounds, e.Name)
	}
	if err := vfile.CheckRange(uint64(e.Offset), uint64(e.CompressedSize), uint64(p.size)); err != nil {
		return fmt.Errorf("entry %q: %w", e.Name, err)
	}
	return p.AddDetached(e)
}

// AddDetached appends an entry whose bytes are not in the package source.
// Its extent is validated by whoever reads it.
func (p *Package) AddDetached(e Entry) error {
	name, err := NormalizeName(e.Name)
	if err != nil {
		return err
	}
	e.Name = name

	key := strings.ToLower(name)
	if _, dup := p.index[key]; !dup {
		p.index[key] = len(p.entries)
	}
	p.entries = append(p.entries, e)
	return nil
}

// Len returns the number of entries.
func (p *Package) Len() int {
	return len(p.entries)
}

// Entries returns the entry table. Callers must not modify it.
func (p *Package) Entries() []Entry {
	return p.entries
}

// Entry returns the entry at index i.
func (p *Package) Entry(i int) (*Entry, error) {
	if i < 0 || i >= len(p.entries) {
		return nil, fmt.Errorf("%w: entry index %d of %d", ErrNotFound, i, len(p.entries))
	}
	return &p.entries[i], nil
}

// Lookup returns the index of the named entry. Matching ignores case and
// slash direction. The first entry wins when names repeat.
func (p *Package) Lookup(name string) (int, error) {
	norm, err := NormalizeName(name)
	if err != nil {
		return -1, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if i, ok := p.index[strings.ToLower(norm)]; ok {
		return i, nil
	}
	return -1, fmt.Errorf("%w: %s in %s", ErrNotFound, name, p.path)
}

// Read returns the decoded bytes of entry i.
func (p *Package) Read(i int) ([]byte, error) {
	e, err := p.Entry(i)
	if err != nil {
		return nil, err
	}

	if p.extract != nil {
		data, err := p.extract(p, e)
		if err != nil {
			return nil, fmt.Errorf("extracting %s: %w", e.Name, err)
		}
		return data, nil
	}

	raw, err := p.ReadRaw(e.Offset, e.CompressedSize)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", e.Name, err)
	}
	return DecodeEntry(e, raw)
}

// ReadName returns the decoded bytes of the named entry.
func (p *Package) ReadName(name string) ([]byte, error) {
	i, err := p.Lookup(name)
	if err != nil {
		return nil, err
	}
	return p.Read(i)
}

// DecodeEntry decodes raw stored bytes of e, mapping codec failures to
// ErrDecompression.
func DecodeEntry(e *Entry, raw []byte) ([]byte, error) {
	if e.Compression == codec.None {
		if int64(len(raw)) != e.Size {
			return nil, fmt.Errorf("%w: %s stored %d bytes, want %d", ErrDecompression, e.Name, len(raw), e.Size)
		}
		return raw, nil
	}

	data, err := codec.Decode(e.Compression, raw, e.Size)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecompression, e.Name, err)
	}
	return data, nil
}

// ReadRaw reads length stored bytes at off from the package source.
func (p *Package) ReadRaw(off, length int64) ([]byte, error) {
	src, err := p.sourceFile()
	if err != nil {
		return nil, err
	}
	return src.Section(off, length)
}

func (p *Package) sourceFile() (*vfile.File, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, fmt.Errorf("%w: package %s is closed", ErrIO, p.path)
	}
	if p.source != nil {
		return p.source, nil
	}
	if p.open == nil {
		return nil, fmt.Errorf("%w: package %s has no single source", ErrIO, p.path)
	}
	if p.sealedErr != nil {
		return nil, p.sealedErr
	}

	f, err := p.open()
	if err != nil {
		return nil, fmt.Errorf("%w: reopening %s: %w", ErrIO, p.path, err)
	}
	if f.Size() != p.size {
		f.Close()
		p.sealedErr = fmt.Errorf("%w: %s changed size from %d to %d", ErrIO, p.path, p.size, f.Size())
		return nil, p.sealedErr
	}
	p.source = f
	return f, nil
}

// Close releases the source handle. Entries stay readable as metadata but
// Read fails afterwards.
func (p *Package) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	if p.source == nil {
		return nil
	}
	err := p.source.Close()
	p.source = nil
	return err
}

// NormalizeName converts name to the canonical entry form: forward slashes,
// no leading slash or "./", no empty elements. Names that climb out of the
// archive with ".." or carry a drive letter are rejected.
func NormalizeName(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	if len(name) >= 2 && name[1] == ':' {
		return "", fmt.Errorf("%w: entry name %q is absolute", ErrFileType, name)
	}

	parts := strings.Split(name, "/")
	clean := parts[:0]
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			return "", fmt.Errorf("%w: entry name %q escapes the archive", ErrFileType, name)
		}
		clean = append(clean, part)
	}
	if len(clean) == 0 {
		return "", fmt.Errorf("%w: empty entry name", ErrFileType)
	}
	return strings.Join(clean, "/"), nil
}
