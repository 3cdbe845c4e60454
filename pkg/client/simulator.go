package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/chatrelay/pkg/llm"
)

const defaultSimulatorDelay = 20 * time.Millisecond

// Simulator is a Streamer that replays a canned reply rune by rune without
// contacting a relay. It serves as a Conversation fallback for offline use.
type Simulator struct {
	// Delay is the pause before each rune. Zero uses 20ms; a negative value
	// disables pauses.
	Delay time.Duration

	// Reply builds the reply for a prompt. Nil uses a built-in reply.
	Reply func(prompt *llm.Prompt) string
}

// Stream implements Streamer.
func (sim *Simulator) Stream(ctx context.Context, prompt *llm.Prompt) (*Session, error) {
	if prompt == nil {
		return nil, llm.ErrEmptyPrompt
	}
	if err := prompt.Validate(); err != nil {
		return nil, err
	}

	reply := simulatedReply(prompt)
	if sim.Reply != nil {
		reply = sim.Reply(prompt)
	}

	delay := sim.Delay
	if delay == 0 {
		delay = defaultSimulatorDelay
	}

	return newSession(ctx, uuid.NewString(), func(ctx context.Context, h Handlers) error {
		h.OnModelInfo(llm.ModelInfo("Simulator", "offline replies", "n/a"))

		for _, r := range reply {
			if delay > 0 {
				t := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					t.Stop()
					return ErrCanceled
				case <-t.C:
				}
			}
			if ctx.Err() != nil {
				return ErrCanceled
			}
			h.OnChunk(string(r))
		}

		if ctx.Err() != nil {
			return ErrCanceled
		}
		h.OnDone()
		return nil
	}), nil
}

func simulatedReply(prompt *llm.Prompt) string {
	var b strings.Builder
	b.WriteString("The relay is unreachable, so this is a simulated reply.\n\n")
	if msg := strings.TrimSpace(prompt.Message); msg != "" {
		fmt.Fprintf(&b, "You said: %q", msg)
	}
	if n := len(prompt.Files); n > 0 {
		b.WriteString("\n")
		fmt.Fprintf(&b, "%d file(s) attached.", n)
	}
	return b.String()
}
