// Package client consumes the chatrelay event stream. It provides a pull
// style Reader, a callback style Consume and a channel based Session, plus a
// Conversation that supersedes and stops sessions.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/papercomputeco/chatrelay/pkg/llm"
	"github.com/papercomputeco/chatrelay/pkg/logger"
)

// StreamPath is the relay route serving event streams.
const StreamPath = "/api/chat/stream"

var (
	// ErrCanceled is returned when a stream is canceled by its caller.
	ErrCanceled = errors.New("stream canceled")

	// ErrUnreachable wraps transport failures that happen before the relay
	// opened the stream.
	ErrUnreachable = errors.New("relay unreachable")
)

// StatusError is returned when the relay rejects a request.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("relay rejected request: %d %s", e.StatusCode, e.Message)
}

// Streamer opens streaming sessions.
type Streamer interface {
	Stream(ctx context.Context, prompt *llm.Prompt) (*Session, error)
}

// Client streams prompts through a chatrelay server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests. It should not set
// a Timeout, which would cut long streams short.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New returns a Client for the relay at baseURL (e.g., "http://localhost:3001").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stream sends prompt and returns the session relaying the reply. Empty
// prompts are rejected without a request. Canceling ctx or the session
// aborts the request, which tears down the upstream exchange on the relay.
func (c *Client) Stream(ctx context.Context, prompt *llm.Prompt) (*Session, error) {
	if prompt == nil {
		return nil, llm.ErrEmptyPrompt
	}
	if err := prompt.Validate(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(prompt)
	if err != nil {
		return nil, fmt.Errorf("marshaling prompt: %w", err)
	}

	id := uuid.NewString()
	reqCtx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+StreamPath, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set(llm.SessionHeader, id)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		if ctx.Err() != nil {
			return nil, ErrCanceled
		}
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer cancel()
		defer resp.Body.Close()
		return nil, statusError(resp)
	}

	log := c.logger.With("session_id", id)
	log.Debug("stream opened", "model", prompt.Model)

	s := newSession(reqCtx, id, func(ctx context.Context, h Handlers) error {
		return Consume(ctx, resp.Body, h, WithReaderLogger(log))
	})

	// The request context outlives Stream; release it with the session.
	go func() {
		<-s.Done()
		cancel()
	}()

	return s, nil
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var body llm.ErrorResponse
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		msg = body.Error
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: msg}
}
