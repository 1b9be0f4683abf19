package bundle

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jchantrell/gamepak/internal/archive"
	"github.com/jchantrell/gamepak/internal/codec"
	"github.com/jchantrell/gamepak/internal/vfile"
)

const (
	// IndexName is the file that lists every bundle and file of an install.
	IndexName    = "_.index.bin"
	bundleSuffix = ".bundle.bin"
	formatName   = "poe"
)

// IsIndex reports whether path names a bundle index.
func IsIndex(path string) bool {
	return strings.EqualFold(filepath.Base(path), IndexName)
}

// IsBundle reports whether path names a single bundle file.
func IsBundle(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), bundleSuffix) && !IsIndex(path)
}

// Load opens either an index, giving one entry per indexed file, or a
// single bundle, giving one entry with its decoded contents. Any other file
// is rejected with archive.ErrFileType.
func Load(path string) (*archive.Package, error) {
	switch {
	case IsIndex(path):
		return loadIndexPackage(path)
	case IsBundle(path):
		return loadBundlePackage(path)
	default:
		return nil, fmt.Errorf("%w: %s is neither %s nor a bundle", archive.ErrFileType, filepath.Base(path), IndexName)
	}
}

func loadIndexPackage(path string) (*archive.Package, error) {
	f, err := vfile.Open(path, true)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	idx, err := LoadIndex(f)
	if err != nil {
		return nil, fmt.Errorf("loading bundle index: %w", err)
	}
	slog.Debug("Bundle index loaded", "file_count", len(idx.Files), "resolved", idx.Resolved(), "bundles", len(idx.Bundles))

	pkg := archive.NewDetached(path, formatName)
	for _, fi := range idx.Files {
		name := fi.Path
		if name == "" {
			name = fmt.Sprintf("%016x", fi.Hash)
		}
		e := archive.Entry{
			Name:        name,
			Label:       idx.Bundles[fi.BundleID],
			Offset:      int64(fi.Offset),
			Size:        int64(fi.Size),
			Compression: codec.Oodle,
			Hash:        fi.Hash,
			Extra:       Location{Bundle: idx.Bundles[fi.BundleID], Offset: fi.Offset},
		}
		if err := pkg.AddDetached(e); err != nil {
			return nil, fmt.Errorf("bundle index entry %016x: %w", fi.Hash, err)
		}
	}

	m := &manager{dir: filepath.Dir(path)}
	pkg.SetExtractor(m.extract)
	return pkg, nil
}

func loadBundlePackage(path string) (*archive.Package, error) {
	f, err := vfile.Open(path, false)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	b, err := OpenBundle(f)
	if err != nil {
		return nil, err
	}

	base := filepath.Base(path)
	name := base[:len(base)-len(bundleSuffix)]
	pkg := archive.NewDetached(path, formatName)
	if err := pkg.AddDetached(archive.Entry{
		Name:           name,
		Size:           b.Size(),
		CompressedSize: f.Size(),
		Compression:    codec.Oodle,
	}); err != nil {
		return nil, err
	}

	pkg.SetExtractor(func(p *archive.Package, e *archive.Entry) ([]byte, error) {
		return readBundle(p.Path(), 0, e.Size)
	})
	return pkg, nil
}

// manager resolves index entries to bundle files next to the index. The
// most recently used bundle stays open along with its last decoded block.
type manager struct {
	dir string

	mu     sync.Mutex
	name   string
	file   *vfile.File
	bundle *Bundle
}

// open must be called with m.mu held.
func (m *manager) open(name string) (*Bundle, error) {
	if m.bundle != nil && m.name == name {
		return m.bundle, nil
	}
	if m.file != nil {
		m.file.Close()
		m.file, m.bundle = nil, nil
	}

	bundlePath := filepath.Join(m.dir, filepath.FromSlash(name)+bundleSuffix)
	f, err := vfile.Open(bundlePath, false)
	if err != nil {
		return nil, fmt.Errorf("%w: bundle %s: %w", archive.ErrIO, name, err)
	}
	b, err := OpenBundle(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("opening bundle %s: %w", name, err)
	}

	m.name, m.file, m.bundle = name, f, b
	return b, nil
}

func (m *manager) extract(p *archive.Package, e *archive.Entry) ([]byte, error) {
	loc, ok := e.Extra.(Location)
	if !ok {
		return nil, fmt.Errorf("%w: bundle entry %s has no location", archive.ErrIO, e.Name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.open(loc.Bundle)
	if err != nil {
		return nil, err
	}
	data, err := b.Section(int64(loc.Offset), e.Size)
	if err != nil {
		return nil, fmt.Errorf("reading file data from bundle %s (offset=%d, size=%d): %w", loc.Bundle, loc.Offset, e.Size, err)
	}
	return data, nil
}

func readBundle(path string, off, size int64) ([]byte, error) {
	f, err := vfile.Open(path, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", archive.ErrIO, err)
	}
	defer f.Close()

	b, err := OpenBundle(f)
	if err != nil {
		return nil, err
	}
	return b.Section(off, size)
}
