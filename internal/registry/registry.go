// Package registry maps file extensions to the loaders that can open them.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jchantrell/gamepak/internal/archive"
	"github.com/jchantrell/gamepak/internal/vfile"
)

// Loader is either a PathLoader or a HandleParser.
type Loader interface {
	LoaderName() string
	loader()
}

// PathLoader opens a package from its path. Used by formats that span
// several files or need to open siblings.
type PathLoader struct {
	Name string
	Load func(path string) (*archive.Package, error)
}

// HandleParser builds a package from an already opened handle. The handle is
// closed by the registry after Parse returns.
type HandleParser struct {
	Name  string
	Parse func(f *vfile.File) (*archive.Package, error)
}

func (l PathLoader) LoaderName() string   { return l.Name }
func (l HandleParser) LoaderName() string { return l.Name }
func (PathLoader) loader()                {}
func (HandleParser) loader()              {}

// Record is one registration.
type Record struct {
	Ext    string
	Loader Loader
}

// Kind returns "path" or "handle".
func (r Record) Kind() string {
	if _, ok := r.Loader.(PathLoader); ok {
		return "path"
	}
	return "handle"
}

// Registry holds loader records in registration order. It is not safe for
// concurrent mutation.
type Registry struct {
	records  []Record
	cache    bool
	reporter archive.Reporter
}

// Option configures a Registry.
type Option func(*Registry)

// WithCache makes handle parsers receive fully cached handles.
func WithCache(cache bool) Option {
	return func(r *Registry) {
		r.cache = cache
	}
}

// WithReporter sends every failed Open to rep.
func WithReporter(rep archive.Reporter) Option {
	return func(r *Registry) {
		r.reporter = rep
	}
}

// New returns an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register appends a loader for ext. The leading dot is optional and case is
// ignored. Registering the same loader twice adds a second record.
func (r *Registry) Register(ext string, l Loader) {
	r.records = append(r.records, Record{Ext: normalizeExt(ext), Loader: l})
}

// Len returns the number of records.
func (r *Registry) Len() int {
	return len(r.records)
}

// Records returns a copy of all records in registration order.
func (r *Registry) Records() []Record {
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// Extensions returns the sorted set of registered extensions.
func (r *Registry) Extensions() []string {
	seen := make(map[string]bool)
	var exts []string
	for _, rec := range r.records {
		if !seen[rec.Ext] {
			seen[rec.Ext] = true
			exts = append(exts, rec.Ext)
		}
	}
	sort.Strings(exts)
	return exts
}

// Open tries every loader registered for the extension of path, newest
// first, and returns the first package built. Files without an extension
// use the loaders registered for "". When every loader fails the
// error wraps ErrUnsupportedFormat and the last loader's error.
func (r *Registry) Open(path string) (*archive.Package, error) {
	pkg, err := r.open(path)
	if err != nil {
		archive.Report(r.reporter, err)
	}
	return pkg, err
}

func (r *Registry) open(path string) (*archive.Package, error) {
	ext := Ext(path)

	var lastErr error
	tried := 0
	for i := len(r.records) - 1; i >= 0; i-- {
		rec := r.records[i]
		if rec.Ext != ext {
			continue
		}
		tried++

		pkg, err := r.attempt(rec.Loader, path)
		var srcErr *sourceError
		if errors.As(err, &srcErr) {
			return nil, srcErr.err
		}
		if err == nil {
			slog.Debug("Opened package", "path", path, "loader", rec.Loader.LoaderName(), "entries", pkg.Len())
			return pkg, nil
		}

		slog.Debug("Loader rejected file", "path", path, "loader", rec.Loader.LoaderName(), "error", err)
		lastErr = err
	}

	if tried == 0 {
		return nil, fmt.Errorf("%w: no loader for %q (%s)", archive.ErrUnsupportedFormat, ext, path)
	}
	return nil, fmt.Errorf("%w: %s: %w", archive.ErrUnsupportedFormat, path, lastErr)
}

// sourceError is a failure to open the file itself. No later loader could
// get past it, so the chain stops.
type sourceError struct {
	err error
}

func (e *sourceError) Error() string { return e.err.Error() }
func (e *sourceError) Unwrap() error { return e.err }

func (r *Registry) attempt(l Loader, path string) (*archive.Package, error) {
	switch l := l.(type) {
	case PathLoader:
		return l.Load(path)
	case HandleParser:
		f, err := vfile.Open(path, r.cache)
		if err != nil {
			return nil, &sourceError{err: err}
		}
		defer f.Close()
		return l.Parse(f)
	default:
		return nil, fmt.Errorf("unknown loader type %T", l)
	}
}

// Ext returns the lower-cased extension of path without the dot.
func Ext(path string) string {
	base := path
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	i := strings.LastIndexByte(base, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(base[i+1:])
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
