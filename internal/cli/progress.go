package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/Veraticus/draftflow/internal/fetch"
)

// FetchProgress draws a progress bar over the pages of batched fetches.
// Its OnPage method is passed to the engine as the page callback and may be
// called from several goroutines.
type FetchProgress struct {
	writer  io.Writer
	bar     *progressbar.ProgressBar
	barDone int
	barMax  int
	done    int
	failed  int
	mu      sync.Mutex
}

// NewFetchProgress creates a progress reporter writing to writer.
func NewFetchProgress(writer io.Writer) *FetchProgress {
	if writer == nil {
		writer = os.Stderr
	}
	return &FetchProgress{writer: writer}
}

func (p *FetchProgress) initProgressBar(pages int) {
	p.barDone, p.barMax = 0, pages
	p.bar = progressbar.NewOptions(pages,
		progressbar.OptionSetWriter(p.writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Fetching pages...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(p.writer); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
}

// OnPage advances the bar by one page. The first event of a fetch, seen
// when the previous bar is full, starts a new bar sized to that fetch.
func (p *FetchProgress) OnPage(ev fetch.PageEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar == nil || p.barDone >= p.barMax {
		p.initProgressBar(ev.Pages)
	}
	p.barDone++
	p.done++
	if ev.Err != nil {
		p.failed++
	}
	if err := p.bar.Add(1); err != nil {
		slog.Warn("Failed to update progress bar", "error", err)
	}
}

// Done returns the pages completed and how many of them failed.
func (p *FetchProgress) Done() (pages, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done, p.failed
}

// Finish ends the line of a bar left short of full, for example after an
// interrupt. A full bar has already ended its line.
func (p *FetchProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar == nil || p.barDone >= p.barMax {
		return
	}
	if _, err := fmt.Fprintln(p.writer); err != nil {
		slog.Warn("Failed to write newline after progress bar", "error", err)
	}
}
