// Package siliconflow adapts the SiliconFlow chat completions API, which
// serves open models (DeepSeek, Qwen) under "org/model" identifiers.
package siliconflow

import (
	"strings"
	"time"

	"github.com/papercomputeco/chatrelay/pkg/llm"
	"github.com/papercomputeco/chatrelay/pkg/llm/provider/openaicompat"
	"github.com/papercomputeco/chatrelay/pkg/sse"
)

const (
	// Name is the provider type name.
	Name = "siliconflow"

	// APIKeyEnv holds the SiliconFlow API key.
	APIKeyEnv = "SILICONFLOW_API_KEY"

	// DefaultBaseURL is the SiliconFlow API root.
	DefaultBaseURL = "https://api.siliconflow.cn/v1"

	// DefaultModel is used when a prompt names no model.
	DefaultModel = "deepseek-ai/DeepSeek-V3.2"
)

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
			Timeout:         120 * time.Second,
			DocumentTimeout: 120 * time.Second,
			Matches: func(model string) bool {
				return strings.Contains(model, "/")
			},
		}, opts),
	}
}
