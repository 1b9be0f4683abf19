package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jchantrell/gamepak/internal/archive"
	"github.com/jchantrell/gamepak/internal/asset"
	"github.com/woozymasta/pathrules"
	"golang.org/x/sync/errgroup"
)

// Opener opens a fresh handle on the package being exported. Each worker
// calls it once so no handle is shared between goroutines.
type Opener func() (*archive.Package, error)

// ProgressCallback is called to report export progress
type ProgressCallback func(current int, total int, description string)

// Options controls what is exported and where.
type Options struct {
	OutputDir string
	// Include and Exclude build the entry Filter.
	Include []string
	Exclude []string
	Workers int
	// Flatten writes every entry into OutputDir with "/" replaced by "@".
	Flatten bool
	// Convert, when set, passes textures and meshes through their
	// collaborator and writes the converted file instead.
	Convert  *asset.Dispatcher
	Progress ProgressCallback
}

// Summary describes a finished export.
type Summary struct {
	Files     int
	Bytes     int64
	Converted int
}

// Exporter handles exporting package entries to disk
type Exporter struct {
	open   Opener
	opts   Options
	filter *Filter
}

// NewExporter creates a new exporter. It fails on malformed patterns.
func NewExporter(open Opener, opts Options) (*Exporter, error) {
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	filter, err := NewFilter(opts.Include, opts.Exclude)
	if err != nil {
		return nil, err
	}
	return &Exporter{open: open, opts: opts, filter: filter}, nil
}

// Filter selects entry names with gitignore style patterns, ignoring case.
// With no include patterns every name is a candidate. Exclude patterns are
// applied after include patterns.
type Filter struct {
	matcher *pathrules.Matcher
}

// NewFilter builds a filter. It fails on malformed patterns.
func NewFilter(include, exclude []string) (*Filter, error) {
	def := pathrules.ActionInclude
	if len(include) > 0 {
		def = pathrules.ActionExclude
	}

	rules := make([]pathrules.Rule, 0, len(include)+len(exclude))
	for _, p := range include {
		rules = append(rules, pathrules.Rule{Action: pathrules.ActionInclude, Pattern: p})
	}
	for _, p := range exclude {
		rules = append(rules, pathrules.Rule{Action: pathrules.ActionExclude, Pattern: p})
	}

	m, err := pathrules.NewMatcher(rules, pathrules.MatcherOptions{
		CaseInsensitive: true,
		DefaultAction:   def,
	})
	if err != nil {
		return nil, fmt.Errorf("building entry filter: %w", err)
	}
	return &Filter{matcher: m}, nil
}

// Match reports whether name passes the filter.
func (f *Filter) Match(name string) bool {
	return f.matcher.Included(name, false)
}

type job struct {
	index  int
	name   string
	output string
}

// plan selects the entries to export and their output paths. The first
// entry wins when two map to the same path.
func (e *Exporter) plan(entries []archive.Entry) []job {
	seen := make(map[string]bool, len(entries))
	jobs := make([]job, 0, len(entries))
	for i, entry := range entries {
		if !e.filter.Match(entry.Name) {
			continue
		}

		out := entry.Name
		if e.opts.Convert != nil {
			out = e.opts.Convert.Target(out)
		}
		if e.opts.Flatten {
			out = sanitizePath(out)
		}

		key := strings.ToLower(out)
		if seen[key] {
			slog.Debug("Skipping duplicate entry", "name", entry.Name, "index", i)
			continue
		}
		seen[key] = true
		jobs = append(jobs, job{index: i, name: entry.Name, output: out})
	}
	return jobs
}

// Export writes every selected entry under OutputDir.
func (e *Exporter) Export(ctx context.Context) (*Summary, error) {
	pkg, err := e.open()
	if err != nil {
		return nil, fmt.Errorf("opening package: %w", err)
	}
	jobs := e.plan(pkg.Entries())
	pkg.Close()

	summary := &Summary{}
	if len(jobs) == 0 {
		return summary, nil
	}

	if err := os.MkdirAll(e.opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	var mu sync.Mutex
	done := func(j job, n int64, converted bool) {
		mu.Lock()
		defer mu.Unlock()
		summary.Files++
		summary.Bytes += n
		if converted {
			summary.Converted++
		}
		if e.opts.Progress != nil {
			e.opts.Progress(summary.Files, len(jobs), j.output)
		}
	}

	queue := make(chan job)
	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		defer close(queue)
		for _, j := range jobs {
			select {
			case queue <- j:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	workers := min(e.opts.Workers, len(jobs))
	for range workers {
		eg.Go(func() error {
			pkg, err := e.open()
			if err != nil {
				return fmt.Errorf("opening package: %w", err)
			}
			defer pkg.Close()

			for j := range queue {
				n, converted, err := e.exportOne(ctx, pkg, j)
				if err != nil {
					return err
				}
				done(j, n, converted)
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return summary, err
	}

	slog.Debug("Export finished", "files", summary.Files, "bytes", summary.Bytes, "converted", summary.Converted)
	return summary, nil
}

func (e *Exporter) exportOne(ctx context.Context, pkg *archive.Package, j job) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}

	data, err := pkg.Read(j.index)
	if err != nil {
		return 0, false, fmt.Errorf("loading file %s: %w", j.name, err)
	}

	outputPath, err := e.outputPath(j.output)
	if err != nil {
		return 0, false, err
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return 0, false, fmt.Errorf("creating directory for %s: %w", outputPath, err)
	}

	converted := false
	if e.opts.Convert != nil && e.opts.Convert.Classify(j.name) != asset.KindOther {
		var buf bytes.Buffer
		if err := e.opts.Convert.Convert(ctx, j.name, data, &buf); err != nil {
			return 0, false, err
		}
		data = buf.Bytes()
		converted = true
		slog.Debug("Converted entry", "path", j.name, "output", outputPath)
	}

	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return 0, false, fmt.Errorf("writing file %s: %w", outputPath, err)
	}

	slog.Debug("Exported entry", "path", j.name, "output", outputPath, "size", len(data))
	return int64(len(data)), converted, nil
}

// outputPath joins name to OutputDir and refuses paths that would land
// outside it.
func (e *Exporter) outputPath(name string) (string, error) {
	clean, err := archive.NormalizeName(name)
	if err != nil {
		return "", err
	}

	root := filepath.Clean(e.opts.OutputDir)
	out := filepath.Join(root, filepath.FromSlash(clean))
	rel, err := filepath.Rel(root, out)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s escapes the output directory", archive.ErrFileType, name)
	}
	return out, nil
}

// sanitizePath sanitizes a file path for use as a filename
// Replaces forward slashes with @ symbols
func sanitizePath(path string) string {
	return strings.ReplaceAll(path, "/", "@")
}
