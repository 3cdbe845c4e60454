package sse

import (
	"bytes"
	"strings"
)

// Decoder reassembles SSE lines from byte chunks that may be split at any
// position: mid line, mid "data:" marker, mid UTF-8 rune or exactly on a
// "\n\n" boundary.
//
// ┌────────────────┐   Feed   ┌─────────┐   []string   ┌────────────┐
// │ upstream bytes │────────▶│ Decoder │────────────▶│ Normalizer │
// └────────────────┘          └─────────┘              └────────────┘
//
// A Decoder owns its buffer and is not safe for concurrent use; every stream
// session creates its own. Splitting happens on raw bytes, and since "\n"
// never occurs inside a multi-byte UTF-8 sequence a rune split across two
// Feed calls is rejoined before any line is converted to a string.
type Decoder struct {
	framing Framing
	buf     []byte

	// data accumulates the "data:" values of the block being built when
	// framing is FramingEvent.
	data    []string
	hasData bool
}

// NewDecoder returns a Decoder using the given framing.
func NewDecoder(framing Framing) *Decoder {
	return &Decoder{framing: framing}
}

// Feed appends p to the buffer and returns every line completed by it. The
// trailing incomplete fragment stays buffered for the next Feed or Flush.
func (d *Decoder) Feed(p []byte) []string {
	d.buf = append(d.buf, p...)

	var lines []string
	start := 0
	for {
		i := bytes.IndexByte(d.buf[start:], '\n')
		if i < 0 {
			break
		}
		raw := d.buf[start : start+i]
		start += i + 1
		lines = d.accept(lines, string(bytes.TrimSuffix(raw, []byte{'\r'})))
	}

	// Shift the unconsumed fragment to the front so the backing array does
	// not grow with the length of the stream.
	if start > 0 {
		d.buf = append(d.buf[:0], d.buf[start:]...)
	}

	return lines
}

// Flush returns whatever is left once the upstream stream has ended. A
// non-empty trailing fragment is treated as a final line; with FramingEvent
// an unterminated block is closed as well.
func (d *Decoder) Flush() []string {
	rest := strings.TrimSuffix(string(d.buf), "\r")
	d.buf = d.buf[:0]

	var lines []string
	if d.framing == FramingLine {
		if strings.TrimSpace(rest) != "" {
			lines = append(lines, rest)
		}
		return lines
	}

	if rest != "" {
		lines = d.accept(lines, rest)
	}
	if d.hasData {
		lines = append(lines, d.block())
	}
	return lines
}

// Buffered returns the number of bytes waiting for a line terminator.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

func (d *Decoder) accept(lines []string, line string) []string {
	if d.framing == FramingLine {
		return append(lines, line)
	}

	// A blank line dispatches the current block.
	if line == "" {
		if d.hasData {
			lines = append(lines, d.block())
		}
		return lines
	}

	// Lines starting with ':' are comments.
	if strings.HasPrefix(line, ":") {
		return lines
	}

	field, value, _ := strings.Cut(line, ":")
	if field == "data" {
		d.data = append(d.data, strings.TrimPrefix(value, " "))
		d.hasData = true
	}
	// "event", "id", "retry" and unknown fields carry nothing the relay
	// forwards.

	return lines
}

// block renders the accumulated data values as a single data line and
// resets the block state.
func (d *Decoder) block() string {
	line := "data: " + strings.Join(d.data, "\n")
	d.data = d.data[:0]
	d.hasData = false
	return line
}
