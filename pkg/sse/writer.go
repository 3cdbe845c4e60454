package sse

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/papercomputeco/chatrelay/pkg/llm"
)

// ErrWriterClosed is returned by Write and Heartbeat once the writer has
// emitted its terminal frame or has been closed.
var ErrWriterClosed = errors.New("sse writer closed")

// DefaultDisconnectMessage is the Error message synthesized by Close when the
// stream ends without a terminal event.
const DefaultDisconnectMessage = "upstream stream ended unexpectedly"

// HeaderSetter sets a response header. Both *fiber.Ctx and http.Header
// satisfy it.
type HeaderSetter interface {
	Set(key, value string)
}

// SetStreamHeaders applies the response headers every relayed event stream
// carries. X-Accel-Buffering disables response buffering in nginx style
// reverse proxies.
func SetStreamHeaders(h HeaderSetter) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// Writer emits llm.Events to a downstream sink, one "data: <json>\n\n"
// frame per Write. A Done or Error event is always the last frame: the writer
// closes itself right after writing it, and Close synthesizes an Error frame
// when no terminal event was written.
//
// Writer is safe for concurrent use so that heartbeats can run alongside the
// relay loop without interleaving frames.
type Writer struct {
	mu         sync.Mutex
	sink       io.Writer
	closed     bool
	terminated bool
	frames     int

	disconnectMessage string
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithDisconnectMessage overrides the message of the Error frame synthesized
// by Close.
func WithDisconnectMessage(msg string) WriterOption {
	return func(w *Writer) {
		w.disconnectMessage = msg
	}
}

// Open sets the stream headers on h (when non-nil) and returns a Writer over
// sink. When sink implements io.Closer it is closed together with the writer.
func Open(h HeaderSetter, sink io.Writer, opts ...WriterOption) *Writer {
	if h != nil {
		SetStreamHeaders(h)
	}

	w := &Writer{
		sink:              sink,
		disconnectMessage: DefaultDisconnectMessage,
	}
	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write serializes ev into exactly one frame and flushes it. Terminal events
// close the writer after their frame is written.
func (w *Writer) Write(ev llm.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}

	if err := w.writeFrame(ev); err != nil {
		// The sink is gone, there is nobody left to send a terminal frame to.
		w.terminated = true
		_ = w.closeSink()
		return err
	}

	if ev.IsTerminal() {
		w.terminated = true
		return w.closeSink()
	}

	return nil
}

// Heartbeat writes an SSE comment frame. Comments are ignored by clients but
// force a write on the downstream connection, which surfaces a vanished
// client as a write error.
func (w *Writer) Heartbeat() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}

	if _, err := io.WriteString(w.sink, ": ping\n\n"); err != nil {
		return fmt.Errorf("writing heartbeat: %w", err)
	}
	return w.flush()
}

// Close ends the stream. If no Done or Error frame was written, an Error
// frame describing the abnormal end is written first. Close is idempotent.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	if !w.terminated {
		w.terminated = true
		if err := w.writeFrame(llm.Error(w.disconnectMessage)); err != nil {
			_ = w.closeSink()
			return err
		}
	}

	return w.closeSink()
}

// Abort closes the sink without writing anything further. It is used when
// the downstream client is already gone.
func (w *Writer) Abort() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	w.terminated = true
	_ = w.closeSink()
}

// Frames returns the number of event frames written so far.
func (w *Writer) Frames() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames
}

// Closed reports whether the writer accepts no further events.
func (w *Writer) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *Writer) writeFrame(ev llm.Event) error {
	var buf bytes.Buffer
	buf.WriteString("data: ")

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(ev); err != nil {
		return fmt.Errorf("encoding %s event: %w", ev.Type, err)
	}

	// Encode terminates the JSON with "\n", one more ends the frame.
	buf.WriteByte('\n')

	if _, err := w.sink.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("writing %s frame: %w", ev.Type, err)
	}
	w.frames++

	return w.flush()
}

func (w *Writer) flush() error {
	switch f := w.sink.(type) {
	case interface{ Flush() error }:
		return f.Flush()
	case http.Flusher:
		f.Flush()
	}
	return nil
}

func (w *Writer) closeSink() error {
	w.closed = true
	if c, ok := w.sink.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
