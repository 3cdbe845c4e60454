package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/papercomputeco/chatrelay/pkg/llm"
	"github.com/papercomputeco/chatrelay/pkg/logger"
)

// Conversation coordinates the sessions of one conversation: at most one
// session is active, and sending a new prompt cancels the previous one.
type Conversation struct {
	primary  Streamer
	fallback Streamer
	logger   *slog.Logger

	mu     sync.Mutex
	active *Session
}

// ConversationOption configures a Conversation.
type ConversationOption func(*Conversation)

// WithFallback sets the Streamer used when the primary cannot be reached.
func WithFallback(s Streamer) ConversationOption {
	return func(c *Conversation) {
		c.fallback = s
	}
}

// WithConversationLogger sets the conversation logger.
func WithConversationLogger(l *slog.Logger) ConversationOption {
	return func(c *Conversation) {
		c.logger = l
	}
}

// NewConversation returns a Conversation streaming through primary.
func NewConversation(primary Streamer, opts ...ConversationOption) *Conversation {
	c := &Conversation{
		primary: primary,
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send cancels any active session and starts a new one for prompt. When the
// primary Streamer is unreachable and a fallback is configured, the fallback
// streams the reply instead.
func (c *Conversation) Send(ctx context.Context, prompt *llm.Prompt) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		c.active.Cancel()
		c.active = nil
	}

	s, err := c.primary.Stream(ctx, prompt)
	if err != nil && c.fallback != nil && errors.Is(err, ErrUnreachable) {
		c.logger.Warn("relay unreachable, using fallback", "error", err)
		s, err = c.fallback.Stream(ctx, prompt)
	}
	if err != nil {
		return nil, err
	}

	c.active = s
	return s, nil
}

// Stop cancels the active session. It does nothing when no session is active.
func (c *Conversation) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		c.active.Cancel()
		c.active = nil
	}
}

// Active returns the session that is still running, if any.
func (c *Conversation) Active() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return nil
	}
	select {
	case <-c.active.Done():
		c.active = nil
		return nil
	default:
		return c.active
	}
}
