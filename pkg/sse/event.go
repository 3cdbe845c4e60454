// Package sse provides the Server-Sent Events plumbing of the chatrelay
// pipeline: an incremental Decoder that reassembles lines and event blocks
// from arbitrarily split upstream byte chunks, and a Writer that emits one
// uniform "data: <json>\n\n" frame per relayed event.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

// Framing selects how a Decoder turns buffered bytes into RawSSELines.
type Framing int

const (
	// FramingLine yields every complete "\n" terminated line as-is. It is
	// tolerant of any event shape as long as each payload fits on one line.
	FramingLine Framing = iota

	// FramingEvent splits on blank lines and joins every "data:" field of a
	// block with "\n", yielding one "data: <payload>" line per event. Needed
	// when a provider spreads one JSON payload over several data lines.
	FramingEvent
)

// String returns the config name of the framing.
func (f Framing) String() string {
	switch f {
	case FramingEvent:
		return "event"
	default:
		return "line"
	}
}

// DataPrefix is the field marker carrying an event payload.
const DataPrefix = "data:"
