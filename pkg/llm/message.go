package llm

// Message represents a single message sent to an upstream provider.
// Content is stored as an array of ContentBlocks so that text and images can
// be mixed in one user turn.
type Message struct {
	Role    string         `json:"role"`    // "system", "user", "assistant"
	Content []ContentBlock `json:"content"` // Array of content blocks
}

// ContentBlock represents a single piece of content within a message.
// The Type field determines which other fields are populated.
type ContentBlock struct {
	Type string `json:"type"` // "text", "image"

	// Text content (type="text")
	Text string `json:"text,omitempty"`

	// Image content (type="image"). ImageURL is either a remote URL or a
	// data URL ("data:image/png;base64,...").
	ImageURL  string `json:"image_url,omitempty"`
	MediaType string `json:"media_type,omitempty"`
}

// NewTextMessage creates a simple text message with the given role and content.
func NewTextMessage(role, text string) Message {
	return Message{
		Role: role,
		Content: []ContentBlock{
			{Type: "text", Text: text},
		},
	}
}

// GetText returns the concatenated text content from all text blocks in the message.
func (m *Message) GetText() string {
	var result string
	for _, block := range m.Content {
		if block.Type == "text" {
			result += block.Text
		}
	}
	return result
}

// IsPlainText reports whether the message holds exactly one text block, in
// which case providers send it as a bare string instead of content parts.
func (m *Message) IsPlainText() bool {
	return len(m.Content) == 1 && m.Content[0].Type == "text"
}
