// Package i3bar implements both directions of the i3bar protocol: the status
// stream written to stdout and the click events read from stdin.
//
// The status stream is a header object followed by an endless JSON array of
// frames:
//
//	{"version":1}
//	[
//	[{"full_text":"..."}]
//	,[{"full_text":"..."}]
package i3bar

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/bar"
)

// ProtocolVersion is the i3bar protocol version announced in the header.
const ProtocolVersion = 1

// Header is the first line of the status stream.
type Header struct {
	Version     int  `json:"version"`
	ClickEvents bool `json:"click_events,omitempty"`
}

var errNotStarted = errors.New("i3bar: Emit before Start")

// Writer serializes frames to the bar host. Every write is flushed so the
// host sees each frame as soon as it is emitted. Safe for concurrent use.
type Writer struct {
	mu      sync.Mutex
	out     *bufio.Writer
	enc     *json.Encoder
	started bool
	frames  int
}

// NewWriter returns a Writer on w.
func NewWriter(w io.Writer) *Writer {
	out := bufio.NewWriter(w)
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	return &Writer{out: out, enc: enc}
}

// Start writes the header and opens the infinite array. It may be called
// once.
func (w *Writer) Start(h Header) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return errors.New("i3bar: Start called twice")
	}
	if h.Version == 0 {
		h.Version = ProtocolVersion
	}
	if err := w.enc.Encode(h); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := w.out.WriteString("[\n"); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	w.started = true
	return w.out.Flush()
}

// Emit writes one frame as a single line. Every frame after the first is
// prefixed with a comma.
func (w *Writer) Emit(f bar.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return errNotStarted
	}
	if f == nil {
		f = bar.Frame{}
	}
	if w.frames > 0 {
		if err := w.out.WriteByte(','); err != nil {
			return fmt.Errorf("write frame: %w", err)
		}
	}
	if err := w.enc.Encode(f); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	if err := w.out.Flush(); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	w.frames++
	return nil
}

// Frames returns the number of frames emitted so far.
func (w *Writer) Frames() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames
}
