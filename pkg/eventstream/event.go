package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeSessionCompleted is emitted after a relayed stream session ends.
	EventTypeSessionCompleted = "chatrelay.session.completed"
)

// Session outcomes.
const (
	OutcomeDone    = "done"
	OutcomeError   = "error"
	OutcomeAborted = "aborted"
)

// SessionCompletedEvent is a transport-neutral event payload for one relayed
// stream session.
type SessionCompletedEvent struct {
	SchemaVersion int           `json:"schema_version"`
	EventType     string        `json:"event_type"`
	EventID       string        `json:"event_id"`
	EmittedAt     time.Time     `json:"emitted_at"`
	Source        EventSource   `json:"source"`
	Request       RequestMeta   `json:"request"`
	Result        SessionResult `json:"result"`
}

// EventSource identifies where the session was served.
type EventSource struct {
	Service  string `json:"service"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// RequestMeta captures request lifecycle metadata for the event.
type RequestMeta struct {
	SessionID   string    `json:"session_id"`
	Path        string    `json:"path,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
	Streaming   bool      `json:"streaming"`
	Files       int       `json:"files"`
	MaxTokens   int       `json:"max_tokens"`
}

// SessionResult summarizes what was relayed downstream.
type SessionResult struct {
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
	Chunks  int    `json:"chunks"`
	Chars   int    `json:"chars"`
	Dropped int    `json:"dropped,omitempty"`
}

// NewSessionCompletedEvent stamps a new event with a fresh ID and the
// current time.
func NewSessionCompletedEvent(source EventSource, req RequestMeta, result SessionResult) *SessionCompletedEvent {
	return &SessionCompletedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeSessionCompleted,
		EventID:       "evt_" + uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source:        source,
		Request:       req,
		Result:        result,
	}
}
