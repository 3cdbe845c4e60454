package llm

// EventType tags a NormalizedEvent variant on the wire.
type EventType string

const (
	EventChunk     EventType = "chunk"
	EventDone      EventType = "done"
	EventError     EventType = "error"
	EventModelInfo EventType = "model_info"
)

// Event is the uniform event relayed downstream, one per SSE frame:
//
//	data: {"type":"chunk","content":"Hi"}
//	data: {"type":"model_info","model":"...","strength":"...","context":"..."}
//	data: {"type":"error","message":"..."}
//	data: {"type":"done"}
//
// Exactly one Done or Error terminates a stream.
type Event struct {
	Type EventType `json:"type"`

	// Content is the incremental assistant text (Chunk).
	Content string `json:"content,omitempty"`

	// Message is the human readable failure cause (Error).
	Message string `json:"message,omitempty"`

	// Model, Strength and Context describe the serving model (ModelInfo).
	Model    string `json:"model,omitempty"`
	Strength string `json:"strength,omitempty"`
	Context  string `json:"context,omitempty"`
}

// Chunk returns a Chunk event carrying content.
func Chunk(content string) Event {
	return Event{Type: EventChunk, Content: content}
}

// Done returns the terminal success event.
func Done() Event {
	return Event{Type: EventDone}
}

// Error returns the terminal failure event.
func Error(message string) Event {
	return Event{Type: EventError, Message: message}
}

// ModelInfo returns the optional metadata event sent before the first chunk.
func ModelInfo(model, strength, context string) Event {
	return Event{Type: EventModelInfo, Model: model, Strength: strength, Context: context}
}

// IsTerminal reports whether the event ends a stream.
func (e Event) IsTerminal() bool {
	return e.Type == EventDone || e.Type == EventError
}
