package cli

import (
	"bytes"
	"io"
	"sync"
)

// HoldWriter passes writes through to an underlying writer, except while
// held, when it buffers them. The CLI holds log output while the TUI or a
// progress bar owns the terminal and releases it afterwards.
type HoldWriter struct {
	mu      sync.Mutex
	w       io.Writer
	holding bool
	buf     bytes.Buffer
}

// NewHoldWriter wraps w.
func NewHoldWriter(w io.Writer) *HoldWriter {
	return &HoldWriter{w: w}
}

// Write implements io.Writer.
func (h *HoldWriter) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.holding {
		return h.buf.Write(p)
	}
	return h.w.Write(p)
}

// Hold starts buffering.
func (h *HoldWriter) Hold() {
	h.mu.Lock()
	h.holding = true
	h.mu.Unlock()
}

// Release stops buffering and flushes what was held.
func (h *HoldWriter) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.holding = false
	if h.buf.Len() == 0 {
		return nil
	}
	_, err := h.buf.WriteTo(h.w)
	return err
}
