// Package glm adapts the Zhipu BigModel (GLM) chat completions API.
package glm

import (
	"strings"
	"time"

	"github.com/papercomputeco/chatrelay/pkg/llm"
	"github.com/papercomputeco/chatrelay/pkg/llm/provider/openaicompat"
	"github.com/papercomputeco/chatrelay/pkg/sse"
)

const (
	// Name is the provider type name.
	Name = "glm"

	// APIKeyEnv holds the BigModel API key.
	APIKeyEnv = "GLM_API_KEY"

	// DefaultBaseURL is the BigModel API root.
	DefaultBaseURL = "https://open.bigmodel.cn/api/paas/v4"

	// DefaultModel is used when a prompt names no model.
	DefaultModel = "glm-4.6v"
)

// provider may split one JSON payload over several "data:" lines of the same
// event, so events are framed on blank lines. Payloads that are not JSON are
// plain text and passed through as chunks.
type provider struct {
	*openaicompat.Adapter
}

func New(opts openaicompat.Options) *provider {
	return &provider{
		Adapter: openaicompat.New(openaicompat.Spec{
			Name:            Name,
			BaseURL:         DefaultBaseURL,
			DefaultModel:    DefaultModel,
			Framing:         sse.FramingEvent,
			NonJSON:         llm.NonJSONPassthrough,
			Timeout:         120 * time.Second,
			DocumentTimeout: 120 * time.Second,
			Matches: func(model string) bool {
				return strings.HasPrefix(strings.ToLower(model), "glm-")
			},
		}, opts),
	}
}
