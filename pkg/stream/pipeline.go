package stream

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/papercomputeco/chatrelay/pkg/llm"
	"github.com/papercomputeco/chatrelay/pkg/llm/provider"
	"github.com/papercomputeco/chatrelay/pkg/sse"
)

const readSize = 4096

// Pipeline chains a Decoder and a Normalizer for one upstream stream. It is
// owned by a single session and must not be shared.
type Pipeline struct {
	decoder    *sse.Decoder
	normalizer *Normalizer
	terminated bool
}

// NewPipeline returns a Pipeline framed and normalized for adapter.
func NewPipeline(adapter provider.Provider, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		decoder:    sse.NewDecoder(adapter.Framing()),
		normalizer: NewNormalizer(adapter, logger),
	}
}

// Push feeds one upstream chunk and returns the events it completes. Once a
// Done or Error event has been returned, Push returns nothing.
func (p *Pipeline) Push(chunk []byte) []llm.Event {
	if p.terminated {
		return nil
	}
	return p.normalize(p.decoder.Feed(chunk))
}

// Finish flushes the trailing fragment after the upstream body ended. It does
// not synthesize a terminal event; see Run.
func (p *Pipeline) Finish() []llm.Event {
	if p.terminated {
		return nil
	}
	return p.normalize(p.decoder.Flush())
}

// Terminated reports whether a Done or Error event has been produced.
func (p *Pipeline) Terminated() bool {
	return p.terminated
}

// Dropped returns the number of payloads the normalizer discarded.
func (p *Pipeline) Dropped() int {
	return p.normalizer.Dropped()
}

// Run reads body until it is exhausted and yields every event in upstream
// order. A clean end of body without a terminal event yields Done. A read
// failure, including ctx cancellation, is yielded as an error and ends the
// sequence. Invalid UTF-8 is replaced with U+FFFD; a rune split across reads
// is reassembled.
func (p *Pipeline) Run(ctx context.Context, body io.Reader) iter.Seq2[llm.Event, error] {
	return func(yield func(llm.Event, error) bool) {
		r := transform.NewReader(body, unicode.UTF8.NewDecoder())
		buf := make([]byte, readSize)

		for {
			if err := ctx.Err(); err != nil {
				yield(llm.Event{}, err)
				return
			}

			n, err := r.Read(buf)
			if n > 0 {
				for _, ev := range p.Push(buf[:n]) {
					if !yield(ev, nil) || ev.IsTerminal() {
						return
					}
				}
			}

			if errors.Is(err, io.EOF) {
				for _, ev := range p.Finish() {
					if !yield(ev, nil) || ev.IsTerminal() {
						return
					}
				}
				p.terminated = true
				yield(llm.Done(), nil)
				return
			}
			if err != nil {
				yield(llm.Event{}, err)
				return
			}
		}
	}
}

func (p *Pipeline) normalize(lines []string) []llm.Event {
	var events []llm.Event
	for _, line := range lines {
		ev, ok := p.normalizer.Normalize(line)
		if !ok {
			continue
		}
		events = append(events, ev)
		if ev.IsTerminal() {
			p.terminated = true
			break
		}
	}
	return events
}
