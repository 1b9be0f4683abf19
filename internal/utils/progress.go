package utils

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"
)

// Progress is a single mpb bar on stderr. It stays silent when stderr is
// not a terminal.
type Progress struct {
	container *mpb.Progress
	bar       *mpb.Bar
	enabled   bool

	// mpb renders from its own goroutine
	mu          sync.Mutex
	description string
}

var descLength = 24

// NewProgress creates a new progress bar with the given total count
func NewProgress(total int, enabled bool) *Progress {
	p := &Progress{enabled: enabled && isTerminal()}
	if !p.enabled {
		return p
	}

	fmt.Fprintln(os.Stderr)

	p.container = mpb.New(
		mpb.WithOutput(os.Stderr),
		mpb.WithWidth(64),
		mpb.WithRefreshRate(100*time.Millisecond),
	)
	p.bar = p.container.New(int64(total),
		mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
		mpb.PrependDecorators(
			decor.Any(func(decor.Statistics) string {
				return p.label()
			}, decor.WC{W: descLength, C: decor.DindentRight}),
			decor.Name("  "),
			decor.CountersNoUnit("%d/%d", decor.WC{C: decor.DindentRight}),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
		),
	)
	return p
}

// label keeps the tail of long descriptions, where file names end.
func (p *Progress) label() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := []rune(p.description)
	if len(r) > descLength {
		return ".." + string(r[len(r)-descLength+2:])
	}
	return p.description
}

// SetEnabled allows manually enabling/disabling the progress bar
func (p *Progress) SetEnabled(enabled bool) {
	p.enabled = enabled
	if !enabled && p.container != nil {
		p.container.Shutdown()
		p.container = nil
		p.bar = nil
	}
}

// Update sets the bar to current and shows description beside it.
func (p *Progress) Update(current int, description string) {
	if !p.enabled || p.bar == nil {
		return
	}

	p.mu.Lock()
	p.description = description
	p.mu.Unlock()
	p.bar.SetCurrent(int64(current))
}

// Finish waits for the bar to complete and shuts down the container
func (p *Progress) Finish() {
	if !p.enabled || p.container == nil {
		return
	}

	p.container.Wait()
	fmt.Fprintln(os.Stderr)
}

// isTerminal checks if stderr is a terminal (TTY)
func isTerminal() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}
