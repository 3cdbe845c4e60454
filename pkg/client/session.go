package client

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/papercomputeco/chatrelay/pkg/llm"
)

// StopMarker is appended to the text of a canceled session.
const StopMarker = "\n\n**[generation stopped]**"

// Outcome is how a session ended.
type Outcome string

const (
	OutcomeDone     Outcome = "done"
	OutcomeError    Outcome = "error"
	OutcomeCanceled Outcome = "canceled"
)

// Result is the final state of a session.
type Result struct {
	// Text is the accumulated reply. A canceled session ends with StopMarker.
	Text string

	Outcome Outcome

	// Err is the failure message of an errored session.
	Err string
}

// producer drives a session: it must report events through h and return
// ErrCanceled when ctx is canceled.
type producer func(ctx context.Context, h Handlers) error

// Session is one streaming exchange. Its events are delivered on Events,
// which is closed after the terminal event or cancellation.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	events chan llm.Event
	done   chan struct{}

	mu     sync.Mutex
	text   strings.Builder
	model  llm.Event
	result Result
}

func newSession(ctx context.Context, id string, produce producer) *Session {
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		id:     id,
		ctx:    ctx,
		cancel: cancel,
		events: make(chan llm.Event, 16),
		done:   make(chan struct{}),
	}
	go s.run(produce)
	return s
}

func (s *Session) run(produce producer) {
	defer close(s.done)
	defer close(s.events)
	defer s.cancel()

	result := Result{Outcome: OutcomeDone}
	err := produce(s.ctx, Handlers{
		OnChunk: func(content string) {
			s.mu.Lock()
			s.text.WriteString(content)
			s.mu.Unlock()
			s.emit(llm.Chunk(content))
		},
		OnModelInfo: func(ev llm.Event) {
			s.mu.Lock()
			s.model = ev
			s.mu.Unlock()
			s.emit(ev)
		},
		OnDone: func() {
			result = Result{Outcome: OutcomeDone}
			s.emit(llm.Done())
		},
		OnError: func(message string) {
			result = Result{Outcome: OutcomeError, Err: message}
			s.emit(llm.Error(message))
		},
	})

	text := s.Text()
	switch {
	case errors.Is(err, ErrCanceled):
		result = Result{Outcome: OutcomeCanceled, Text: text + StopMarker}
	case err != nil && result.Outcome != OutcomeError:
		result = Result{Outcome: OutcomeError, Err: err.Error()}
		fallthrough
	default:
		result.Text = text
	}

	s.mu.Lock()
	s.result = result
	s.mu.Unlock()
}

func (s *Session) emit(ev llm.Event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

// ID returns the session ID sent to the relay.
func (s *Session) ID() string {
	return s.id
}

// Events returns the session's events in arrival order.
func (s *Session) Events() <-chan llm.Event {
	return s.events
}

// Done is closed once the session has ended.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Cancel stops the session and aborts its request. Canceling a finished or
// already canceled session does nothing.
func (s *Session) Cancel() {
	s.once.Do(s.cancel)
}

// Text returns the reply accumulated so far.
func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text.String()
}

// ModelInfo returns the model_info event, if the relay sent one.
func (s *Session) ModelInfo() (llm.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model, s.model.Type == llm.EventModelInfo
}

// Wait blocks until the session ends and returns its result. Events not yet
// received from Events are discarded.
func (s *Session) Wait() Result {
	for range s.events {
	}
	<-s.done

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}
