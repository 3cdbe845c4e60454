// Package provider defines the adapter interface between the relay pipeline
// and the upstream LLM providers. The decoder, normalizer and relay writer are
// shared; everything that differs between providers lives behind Provider.
package provider

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/papercomputeco/chatrelay/pkg/llm"
	"github.com/papercomputeco/chatrelay/pkg/llm/provider/openaicompat"
	"github.com/papercomputeco/chatrelay/pkg/sse"
)

// ErrMissingCredential is returned when a provider's API key is not set in
// the environment.
var ErrMissingCredential = errors.New("provider credential is not set")

// Options are the user supplied settings shared by every adapter.
type Options = openaicompat.Options

// Provider adapts one upstream LLM API.
type Provider interface {
	// Name returns the canonical provider name (e.g., "deepseek", "glm", "siliconflow")
	Name() string

	// DefaultModel is used when a prompt does not name a model.
	DefaultModel() string

	// CanHandle reports whether the model identifier belongs to this provider.
	CanHandle(model string) bool

	// BuildRequest converts an internal request into the upstream HTTP
	// request, credentials included.
	BuildRequest(ctx context.Context, req *llm.ChatRequest) (*http.Request, error)

	// ExtractContent returns the incremental text carried by a parsed
	// payload. The boolean is false when there is none.
	ExtractContent(payload map[string]any) (string, bool)

	// ExtractError returns the failure message when a parsed payload is an
	// application level error.
	ExtractError(payload map[string]any) (string, bool)

	// IsDoneSentinel reports whether a raw data payload ends the stream.
	IsDoneSentinel(payload string) bool

	// NonJSONPolicy decides what to do with payloads that are not JSON.
	NonJSONPolicy() llm.NonJSONPolicy

	// Framing is the decoder framing the provider's stream requires.
	Framing() sse.Framing

	// Timeout bounds how long one upstream exchange may stay silent.
	Timeout(hasDocuments bool) time.Duration

	// ParseResponse converts a non-streaming completion body.
	ParseResponse(payload []byte) (*llm.ChatResponse, error)
}
