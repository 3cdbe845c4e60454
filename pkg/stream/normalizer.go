// Package stream turns raw upstream SSE lines into the uniform llm.Event
// sequence relayed downstream. Everything provider specific is asked of the
// provider.Provider adapter; the Normalizer itself is shared.
package stream

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/papercomputeco/chatrelay/pkg/llm"
	"github.com/papercomputeco/chatrelay/pkg/llm/provider"
	"github.com/papercomputeco/chatrelay/pkg/sse"
	"github.com/papercomputeco/chatrelay/pkg/utils"
)

// Normalizer maps one RawSSELine to at most one llm.Event.
type Normalizer struct {
	adapter provider.Provider
	logger  *slog.Logger
	dropped int
}

// NewNormalizer returns a Normalizer asking adapter for the sentinel, payload
// shapes and non-JSON policy.
func NewNormalizer(adapter provider.Provider, logger *slog.Logger) *Normalizer {
	return &Normalizer{
		adapter: adapter,
		logger:  logger,
	}
}

// Normalize classifies line. The boolean is false when the line carries no
// event: blank lines, non-data fields, empty deltas and dropped payloads.
func (n *Normalizer) Normalize(line string) (llm.Event, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return llm.Event{}, false
	}

	rest, ok := strings.CutPrefix(line, sse.DataPrefix)
	if !ok {
		return llm.Event{}, false
	}

	payload := strings.TrimSpace(rest)
	if payload == "" {
		return llm.Event{}, false
	}

	if n.adapter.IsDoneSentinel(payload) {
		return llm.Done(), true
	}

	var decoded any
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return n.nonJSON(payload, err)
	}

	obj, ok := decoded.(map[string]any)
	if !ok {
		return llm.Event{}, false
	}

	if msg, ok := n.adapter.ExtractError(obj); ok {
		return llm.Error(msg), true
	}

	if content, ok := n.adapter.ExtractContent(obj); ok {
		return llm.Chunk(content), true
	}

	return llm.Event{}, false
}

// Dropped returns the number of payloads discarded under NonJSONDrop.
func (n *Normalizer) Dropped() int {
	return n.dropped
}

func (n *Normalizer) nonJSON(payload string, err error) (llm.Event, bool) {
	if n.adapter.NonJSONPolicy() == llm.NonJSONPassthrough {
		return llm.Chunk(payload), true
	}

	n.dropped++
	n.logger.Debug("dropping non-JSON payload",
		"provider", n.adapter.Name(),
		"payload", utils.Truncate(payload, 120),
		"error", err,
	)
	return llm.Event{}, false
}
