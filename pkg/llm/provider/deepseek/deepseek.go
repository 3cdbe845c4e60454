// Package deepseek adapts the DeepSeek chat completions API.
package deepseek

import (
	"strings"
	"time"

	"github.com/papercomputeco/chatrelay/pkg/llm"
	"github.com/papercomputeco/chatrelay/pkg/llm/provider/openaicompat"
	"github.com/papercomputeco/chatrelay/pkg/sse"
)

const (
	// Name is the provider type name.
	Name = "deepseek"

	// APIKeyEnv holds the DeepSeek API key.
	APIKeyEnv = "DEEPSEEK_API_KEY"

	// DefaultBaseURL is the DeepSeek API root.
	DefaultBaseURL = "https://api.deepseek.com/v1"

	// DefaultModel is used when a prompt names no model.
	DefaultModel = "deepseek-chat"
)

// provider streams one JSON payload per "data:" line and never sends plain
// text, so non-JSON lines are dropped.
type provider struct {
	*openaicompat.Adapter
}

func New(opts openaicompat.Options) *provider {
	return &provider{
		Adapter: openaicompat.New(openaicompat.Spec{
			Name:            Name,
			BaseURL:         DefaultBaseURL,
			DefaultModel:    DefaultModel,
			Framing:         sse.FramingLine,
			NonJSON:         llm.NonJSONDrop,
			Timeout:         30 * time.Second,
			DocumentTimeout: 120 * time.Second,
			Matches: func(model string) bool {
				return strings.HasPrefix(model, "deepseek-") && !strings.Contains(model, "/")
			},
		}, opts),
	}
}
