package main

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// progressBar renders a single-line progress bar that redraws in place.
type progressBar struct {
	mu    sync.Mutex
	w     io.Writer
	model progress.Model
	done  int
}

// newProgressBar returns nil when f is not a terminal; a nil *progressBar
// ignores every call.
func newProgressBar(f *os.File) *progressBar {
	if !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()) {
		return nil
	}
	return newProgressBarTo(f)
}

func newProgressBarTo(w io.Writer) *progressBar {
	opts := []progress.Option{progress.WithWidth(40), progress.WithDefaultGradient()}
	if noColor {
		opts = append(opts, progress.WithColorProfile(termenv.Ascii))
	}
	return &progressBar{w: w, model: progress.New(opts...)}
}

// Update redraws the bar. Out-of-order calls never move it backwards.
func (b *progressBar) Update(processed, total int) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if processed < b.done {
		return
	}
	b.done = processed
	pct := 1.0
	if total > 0 {
		pct = float64(processed) / float64(total)
	}
	fmt.Fprintf(b.w, "\r%s %d/%d", b.model.ViewAs(pct), processed, total)
}

// Finish ends the bar line.
func (b *progressBar) Finish() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	fmt.Fprintln(b.w)
}
