package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// InterruptHandler turns the first SIGINT or SIGTERM into a context
// cancellation so a running fetch can stop issuing waves and report what it
// collected. A second signal exits immediately.
type InterruptHandler struct {
	writer      io.Writer
	cancelFunc  context.CancelFunc
	exit        func(code int)
	interrupted bool
	showPartial bool
	mu          sync.Mutex
}

// NewInterruptHandler creates a new interrupt handler.
func NewInterruptHandler(writer io.Writer) *InterruptHandler {
	if writer == nil {
		writer = os.Stderr
	}
	return &InterruptHandler{
		writer: writer,
		exit:   os.Exit,
	}
}

// HandleInterrupts returns a context canceled on the first interrupt. When
// showPartial is set the message explains that partial results follow. The
// returned stop function releases the signal handler.
func (h *InterruptHandler) HandleInterrupts(ctx context.Context, showPartial bool) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	h.mu.Lock()
	h.cancelFunc = cancel
	h.showPartial = showPartial
	h.mu.Unlock()

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			case sig := <-sigChan:
				slog.Debug("Received signal", "signal", sig.String())
				if h.interrupt() {
					continue
				}
				h.exit(130)
				return
			}
		}
	}()

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			signal.Stop(sigChan)
			close(done)
			cancel()
		})
	}
}

// interrupt cancels the context and shows the message once. It reports
// whether this was the first interrupt.
func (h *InterruptHandler) interrupt() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.interrupted {
		return false
	}
	h.interrupted = true
	h.showInterruptMessage()
	if h.cancelFunc != nil {
		h.cancelFunc()
	}
	return true
}

func (h *InterruptHandler) showInterruptMessage() {
	msg := "\n" + FormatWarning("Fetch interrupted!")
	if h.showPartial {
		msg += "\n" + FormatInfo("Pages already in flight will finish. The report covers the rows collected so far.")
	}
	msg += "\n" + FormatInfo("Press Ctrl+C again to exit immediately.") + "\n"

	if _, err := fmt.Fprint(h.writer, msg); err != nil {
		slog.Warn("Failed to write interrupt message", "error", err)
	}
}

// WasInterrupted returns true if the process was interrupted.
func (h *InterruptHandler) WasInterrupted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.interrupted
}
