package archive

import (
	"errors"
	"io/fs"
	"log/slog"

	"github.com/jchantrell/gamepak/internal/codec"
	"github.com/jchantrell/gamepak/internal/vfile"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrIO                     = errors.New("i/o error")
	ErrFileType               = errors.New("unrecognized file type")
	ErrFileVersion            = errors.New("unsupported file version")
	ErrBounds                 = vfile.ErrOutOfRange
	ErrUnsupportedFormat      = errors.New("unsupported format")
	ErrDecompression          = errors.New("decompression failed")
	ErrUnsupportedCompression = codec.ErrUnsupported
)

// Kind classifies an error for reporting.
type Kind int

const (
	KindNone Kind = iota
	KindNotFound
	KindIO
	KindFileType
	KindFileVersion
	KindBounds
	KindUnsupportedFormat
	KindDecompression
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNotFound:
		return "not_found"
	case KindIO:
		return "io"
	case KindFileType:
		return "file_type"
	case KindFileVersion:
		return "file_version"
	case KindBounds:
		return "bounds"
	case KindUnsupportedFormat:
		return "unsupported_format"
	case KindDecompression:
		return "decompression"
	default:
		return "other"
	}
}

// KindOf returns the most specific kind found in err's chain. A summary
// ErrUnsupportedFormat that wraps a parser failure reports the parser's kind.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrBounds):
		return KindBounds
	case errors.Is(err, ErrFileVersion):
		return KindFileVersion
	case errors.Is(err, ErrFileType):
		return KindFileType
	case errors.Is(err, ErrDecompression), errors.Is(err, ErrUnsupportedCompression), errors.Is(err, codec.ErrSizeMismatch):
		return KindDecompression
	case errors.Is(err, ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return KindNotFound
	case errors.Is(err, ErrUnsupportedFormat):
		return KindUnsupportedFormat
	case errors.Is(err, ErrIO), errors.Is(err, fs.ErrPermission), errors.Is(err, fs.ErrClosed), errors.Is(err, vfile.ErrClosed):
		return KindIO
	default:
		return KindOther
	}
}

// Reporter receives failures as a kind plus a formatted message.
type Reporter interface {
	Report(kind Kind, msg string)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(kind Kind, msg string)

func (f ReporterFunc) Report(kind Kind, msg string) {
	f(kind, msg)
}

// SlogReporter writes reports to a slog logger, or the default logger when
// Logger is nil.
type SlogReporter struct {
	Logger *slog.Logger
}

func (r SlogReporter) Report(kind Kind, msg string) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error(msg, "kind", kind.String())
}

// Report sends err to r. Nil errors and nil reporters are ignored.
func Report(r Reporter, err error) {
	if r == nil || err == nil {
		return
	}
	r.Report(KindOf(err), err.Error())
}
