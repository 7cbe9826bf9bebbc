package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
)

// ErrInputCancelled is returned when input is canceled by context.
var ErrInputCancelled = errors.New("input canceled")

// maxLineSize bounds one JSON line of an import file.
const maxLineSize = 4 << 20

// LineReader reads newline-delimited input, such as a JSON lines import
// file, and gives up waiting when its context is canceled.
type LineReader struct {
	scanner *bufio.Scanner
	lines   chan lineResult
	line    int
	started bool
}

type lineResult struct {
	err   error
	value string
}

// NewLineReader creates a LineReader over reader.
func NewLineReader(reader io.Reader) *LineReader {
	if reader == nil {
		panic("reader cannot be nil")
	}
	s := bufio.NewScanner(reader)
	s.Buffer(make([]byte, 64*1024), maxLineSize)
	return &LineReader{scanner: s, lines: make(chan lineResult)}
}

func (r *LineReader) start() {
	r.started = true
	go func() {
		defer close(r.lines)
		for r.scanner.Scan() {
			r.lines <- lineResult{value: r.scanner.Text()}
		}
		if err := r.scanner.Err(); err != nil {
			r.lines <- lineResult{err: err}
		}
	}()
}

// ReadLine returns the next non-blank line, trimmed. It returns io.EOF at
// the end of input and ErrInputCancelled when ctx is done first.
func (r *LineReader) ReadLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", ErrInputCancelled
	}
	if !r.started {
		r.start()
	}
	for {
		select {
		case <-ctx.Done():
			return "", ErrInputCancelled
		case res, ok := <-r.lines:
			if !ok {
				return "", io.EOF
			}
			if res.err != nil {
				return "", res.err
			}
			r.line++
			if line := strings.TrimSpace(res.value); line != "" {
				return line, nil
			}
		}
	}
}

// Line returns the number of the line most recently read, starting at 1.
func (r *LineReader) Line() int {
	return r.line
}
