package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/papercomputeco/chatrelay/pkg/eventstream"
	"github.com/papercomputeco/chatrelay/pkg/llm"
	"github.com/papercomputeco/chatrelay/pkg/llm/provider"
	"github.com/papercomputeco/chatrelay/pkg/models"
	"github.com/papercomputeco/chatrelay/pkg/sse"
	"github.com/papercomputeco/chatrelay/pkg/stream"
	"github.com/papercomputeco/chatrelay/relay/header"
	"github.com/papercomputeco/chatrelay/relay/worker"
)

// maxErrorBody bounds how much of a failed upstream response is quoted in
// the Error event.
const maxErrorBody = 2048

var errRelayClosed = errors.New("relay closed")

// session is one streaming exchange: a client prompt, its upstream request
// and the SSE writer relaying the normalized events.
type session struct {
	id        string
	prov      provider.Provider
	model     string
	caps      models.Capabilities
	prompt    *llm.Prompt
	req       *http.Request
	maxTokens int
	timeout   time.Duration
	writer    *sse.Writer
	ctx       context.Context
	cancel    context.CancelFunc
	release   func() bool
	startedAt time.Time

	chunks  int
	chars   int
	dropped int
}

// handleStream validates the prompt, opens the SSE response and relays the
// upstream stream from a separate goroutine.
func (r *Relay) handleStream(c *fiber.Ctx) error {
	startTime := time.Now()

	var prompt llm.Prompt
	if err := c.BodyParser(&prompt); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid request body", Details: err.Error()})
	}
	if err := prompt.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: err.Error()})
	}

	prov, model := r.resolve(prompt.Model)
	caps := r.catalog.Lookup(model)

	// Use context.Background() instead of c.Context() because fasthttp
	// recycles its RequestCtx after the handler returns, but the relay
	// goroutine keeps the upstream connection open well past that point.
	ctx, cancel := context.WithCancel(context.Background())

	chatReq := r.buildChatRequest(ctx, &prompt, model, caps, true)

	httpReq, err := prov.BuildRequest(ctx, chatReq)
	if err != nil {
		cancel()
		r.logger.Error("failed to create upstream request", "provider", prov.Name(), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "internal error"})
	}
	r.headerHandler.SetUpstreamRequestHeaders(c, httpReq)

	// Fiber values are only valid within the handler.
	sessionID := strings.Clone(c.Get(header.SessionIDHeader))
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	c.Set(header.SessionIDHeader, sessionID)

	// Use io.Pipe + SetBodyStream: pw.Write blocks until fasthttp has read
	// the frame, and fasthttp flushes every chunk of a body stream to the
	// socket. fasthttp closes the body stream when the response ends or the
	// client write fails, which cancels the upstream exchange.
	pr, pw := io.Pipe()
	s := &session{
		id:        sessionID,
		prov:      prov,
		model:     model,
		caps:      caps,
		prompt:    &prompt,
		req:       httpReq,
		maxTokens: *chatReq.MaxTokens,
		timeout:   prov.Timeout(prompt.HasDocuments()),
		writer:    sse.Open(c, pw),
		ctx:       ctx,
		cancel:    cancel,
		startedAt: startTime,
	}

	// A relay shutdown ends the session like a client disconnect would.
	s.release = context.AfterFunc(r.closing, func() {
		cancel()
		_ = pw.CloseWithError(errRelayClosed)
	})

	r.sessions.Add(1)
	go r.relaySession(s)

	// Set the pipe reader as the body stream with unknown size (-1),
	// which triggers chunked transfer encoding in fasthttp.
	c.Context().Response.SetBodyStream(&cancelOnClose{PipeReader: pr, cancel: cancel}, -1)

	return nil
}

// relaySession runs one streaming exchange to completion. Exactly one
// terminal frame is written unless the client went away first.
func (r *Relay) relaySession(s *session) {
	defer r.sessions.Done()
	defer s.cancel()
	defer s.release()

	log := r.logger.With("session_id", s.id, "provider", s.prov.Name(), "model", s.model)

	outcome, message := r.pump(s)

	switch outcome {
	case eventstream.OutcomeAborted:
		s.writer.Abort()
		log.Info("client disconnected, upstream canceled", "chunks", s.chunks)
	case eventstream.OutcomeError:
		// An upstream Error event has already been relayed and closed the
		// writer; other failures still need their frame.
		if !s.writer.Closed() {
			if err := s.writer.Write(llm.Error(message)); err != nil {
				s.writer.Abort()
			}
		}
		log.Error("stream failed", "error", message, "chunks", s.chunks)
	default:
		log.Info("stream completed", "chunks", s.chunks, "duration", time.Since(s.startedAt))
	}

	// Close is a no-op after a terminal frame and otherwise guarantees one.
	_ = s.writer.Close()

	r.workerPool.Enqueue(worker.Job{Event: eventstream.NewSessionCompletedEvent(
		eventstream.EventSource{Service: r.config.Service, Provider: s.prov.Name(), Model: s.model},
		eventstream.RequestMeta{
			SessionID:   s.id,
			Path:        StreamPath,
			StartedAt:   s.startedAt,
			CompletedAt: time.Now(),
			DurationMs:  time.Since(s.startedAt).Milliseconds(),
			Streaming:   true,
			Files:       len(s.prompt.Files),
			MaxTokens:   s.maxTokens,
		},
		eventstream.SessionResult{
			Outcome: outcome,
			Error:   message,
			Chunks:  s.chunks,
			Chars:   s.chars,
			Dropped: s.dropped,
		},
	)})
}

// pump writes model_info, performs the upstream request and relays its
// events. It returns OutcomeDone once a Done frame was written, OutcomeError
// with a message when an Error frame still has to be written, and
// OutcomeAborted when the client is gone.
func (r *Relay) pump(s *session) (string, string) {
	if err := s.writer.Write(llm.ModelInfo(s.caps.Name, s.caps.Strength, s.caps.Context)); err != nil {
		return eventstream.OutcomeAborted, ""
	}

	stopHeartbeat := r.startHeartbeat(s)
	defer stopHeartbeat()

	wd := newWatchdog(s.timeout, s.cancel)
	defer wd.Stop()

	resp, err := r.httpClient.Do(s.req)
	if err != nil {
		return r.classify(s, wd, fmt.Errorf("upstream request failed: %w", err))
	}
	defer resp.Body.Close()
	wd.Kick()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return eventstream.OutcomeError, fmt.Sprintf("upstream error: %d - %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	pipeline := stream.NewPipeline(s.prov, r.logger)
	defer func() { s.dropped = pipeline.Dropped() }()

	for ev, err := range pipeline.Run(s.ctx, wd.Reader(resp.Body)) {
		if err != nil {
			return r.classify(s, wd, fmt.Errorf("upstream stream failed: %w", err))
		}

		if err := s.writer.Write(ev); err != nil {
			return eventstream.OutcomeAborted, ""
		}

		switch ev.Type {
		case llm.EventChunk:
			s.chunks++
			s.chars += len(ev.Content)
		case llm.EventError:
			return eventstream.OutcomeError, ev.Message
		}
	}

	return eventstream.OutcomeDone, ""
}

// classify maps an upstream failure to the session outcome.
func (r *Relay) classify(s *session, wd *watchdog, err error) (string, string) {
	switch {
	case wd.Expired():
		return eventstream.OutcomeError, fmt.Sprintf("upstream request timed out after %s", s.timeout)
	case errors.Is(s.ctx.Err(), context.Canceled):
		return eventstream.OutcomeAborted, ""
	default:
		return eventstream.OutcomeError, err.Error()
	}
}

// startHeartbeat writes SSE comments while the session is open. A failed
// heartbeat means the client is gone and cancels the upstream exchange.
func (r *Relay) startHeartbeat(s *session) func() {
	if r.config.Heartbeat <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	ticker := time.NewTicker(r.config.Heartbeat)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				if err := s.writer.Heartbeat(); err != nil {
					if !errors.Is(err, sse.ErrWriterClosed) {
						s.cancel()
					}
					return
				}
			}
		}
	}()

	return func() { close(done) }
}
