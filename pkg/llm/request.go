package llm

// ChatRequest represents a provider-agnostic chat completion request.
// The relay builds it from a client Prompt after files are resolved; provider
// adapters serialize it into their upstream wire format.
type ChatRequest struct {
	// Model name (e.g., "deepseek-chat", "glm-4.6v")
	Model string `json:"model"`

	// System prompt, sent as the first message
	System string `json:"system,omitempty"`

	// Conversation messages
	Messages []Message `json:"messages"`

	// Whether to stream the response
	Stream bool `json:"stream"`

	// Generation parameters
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}
