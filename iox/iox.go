// Package iox provides I/O helpers for resource cleanup and bounded capture.
package iox

import (
	"io"
	"strings"
	"sync"
)

// DiscardClose closes c and discards the error.
// Use in defer statements where close errors are unactionable:
//
//	defer iox.DiscardClose(f)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc returns a cleanup function that closes c.
// Designed for t.Cleanup and b.Cleanup registration:
//
//	t.Cleanup(iox.CloseFunc(f))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// DiscardErr calls fn and discards the returned error.
// Use for non-Close cleanup calls (e.g. Flush) where errors are unactionable:
//
//	defer iox.DiscardErr(w.Flush)
func DiscardErr(fn func() error) { _ = fn() }

// TailBuffer is an io.Writer that retains only the last N lines written.
// Used to capture the diagnostic tail of long subprocess output without
// holding the full stream in memory. Safe for concurrent writes.
type TailBuffer struct {
	mu       sync.Mutex
	maxLines int
	lines    []string
	partial  strings.Builder
}

// NewTailBuffer creates a TailBuffer retaining at most maxLines lines.
func NewTailBuffer(maxLines int) *TailBuffer {
	if maxLines < 1 {
		maxLines = 1
	}
	return &TailBuffer{maxLines: maxLines}
}

// Write implements io.Writer. Never returns an error.
func (t *TailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, b := range p {
		if b == '\n' {
			t.appendLine(t.partial.String())
			t.partial.Reset()
			continue
		}
		t.partial.WriteByte(b)
	}
	return len(p), nil
}

func (t *TailBuffer) appendLine(line string) {
	t.lines = append(t.lines, line)
	if len(t.lines) > t.maxLines {
		t.lines = t.lines[len(t.lines)-t.maxLines:]
	}
}

// Lines returns the retained lines, including any unterminated final line.
func (t *TailBuffer) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, len(t.lines))
	copy(out, t.lines)
	if t.partial.Len() > 0 {
		out = append(out, t.partial.String())
		if len(out) > t.maxLines {
			out = out[len(out)-t.maxLines:]
		}
	}
	return out
}

// String returns the retained tail as a newline-joined string.
func (t *TailBuffer) String() string {
	return strings.Join(t.Lines(), "\n")
}
