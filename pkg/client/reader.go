package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/papercomputeco/chatrelay/pkg/llm"
	"github.com/papercomputeco/chatrelay/pkg/logger"
	"github.com/papercomputeco/chatrelay/pkg/sse"
)

const readSize = 4096

// Reader pulls relayed events from a chatrelay event stream body. It keeps its
// own line buffer and is not safe for concurrent use.
type Reader struct {
	src     io.Reader
	decoder *sse.Decoder
	logger  *slog.Logger
	buf     []byte

	pending  []llm.Event
	eof      bool
	finished bool
	err      error
	skipped  int
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithReaderLogger sets the logger used to report skipped payloads.
func WithReaderLogger(l *slog.Logger) ReaderOption {
	return func(r *Reader) {
		r.logger = l
	}
}

// NewReader returns a Reader over body. Invalid UTF-8 is replaced with
// U+FFFD; runes split across reads are reassembled.
func NewReader(body io.Reader, opts ...ReaderOption) *Reader {
	r := &Reader{
		src:     transform.NewReader(body, unicode.UTF8.NewDecoder()),
		decoder: sse.NewDecoder(sse.FramingLine),
		logger:  logger.Nop(),
		buf:     make([]byte, readSize),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Next returns the next event in arrival order. After a Done or Error event it
// returns io.EOF. When the body ends without a terminal event, the trailing
// fragment is dispatched and a Done event is returned once.
func (r *Reader) Next() (llm.Event, error) {
	for {
		if r.finished {
			return llm.Event{}, io.EOF
		}

		// Events decoded from a read that also failed go out before the error.
		if len(r.pending) > 0 {
			ev := r.pending[0]
			r.pending = r.pending[1:]
			if ev.IsTerminal() {
				r.finished = true
				r.pending = nil
			}
			return ev, nil
		}

		if r.err != nil {
			return llm.Event{}, r.err
		}

		if r.eof {
			r.finished = true
			return llm.Done(), nil
		}

		n, err := r.src.Read(r.buf)
		if n > 0 {
			r.pending = r.dispatch(r.decoder.Feed(r.buf[:n]))
		}
		switch {
		case errors.Is(err, io.EOF):
			r.eof = true
			r.pending = append(r.pending, r.dispatch(r.decoder.Flush())...)
		case err != nil:
			r.err = err
		}
	}
}

// Skipped returns the number of payloads that could not be parsed.
func (r *Reader) Skipped() int {
	return r.skipped
}

func (r *Reader) dispatch(lines []string) []llm.Event {
	var events []llm.Event
	for _, line := range lines {
		payload, ok := strings.CutPrefix(strings.TrimSpace(line), sse.DataPrefix)
		if !ok {
			continue
		}
		payload = strings.TrimSpace(payload)
		if payload == "" {
			continue
		}

		var ev llm.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			r.skipped++
			r.logger.Debug("skipping unparseable event", "error", err)
			continue
		}

		switch ev.Type {
		case llm.EventChunk, llm.EventModelInfo, llm.EventDone, llm.EventError:
			events = append(events, ev)
		default:
			r.skipped++
			r.logger.Debug("skipping unknown event type", "type", ev.Type)
		}
	}
	return events
}

// Handlers receive the events of one stream. Any of them may be nil.
type Handlers struct {
	OnChunk     func(content string)
	OnModelInfo func(ev llm.Event)
	OnDone      func()
	OnError     func(message string)
}

// Consume reads body to its terminal event and dispatches every event to h.
// Exactly one of OnDone and OnError is called unless ctx is canceled first,
// in which case neither is called and ErrCanceled is returned. body is closed
// on return when it is an io.Closer.
func Consume(ctx context.Context, body io.Reader, h Handlers, opts ...ReaderOption) error {
	if closer, ok := body.(io.Closer); ok {
		defer closer.Close()

		// Unblock a pending Read as soon as the caller gives up.
		stop := context.AfterFunc(ctx, func() { _ = closer.Close() })
		defer stop()
	}

	r := NewReader(body, opts...)
	for {
		ev, err := r.Next()
		if ctx.Err() != nil {
			return ErrCanceled
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if h.OnError != nil {
				h.OnError(fmt.Sprintf("stream interrupted: %v", err))
			}
			return fmt.Errorf("reading event stream: %w", err)
		}

		switch ev.Type {
		case llm.EventChunk:
			if h.OnChunk != nil {
				h.OnChunk(ev.Content)
			}
		case llm.EventModelInfo:
			if h.OnModelInfo != nil {
				h.OnModelInfo(ev)
			}
		case llm.EventDone:
			if h.OnDone != nil {
				h.OnDone()
			}
		case llm.EventError:
			if h.OnError != nil {
				h.OnError(ev.Message)
			}
		}
	}
}
