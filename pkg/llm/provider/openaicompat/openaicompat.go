// Package openaicompat implements the request construction and payload
// probing shared by every OpenAI chat completions compatible provider. The
// per-provider packages configure an Adapter with their endpoint, framing,
// non-JSON policy and timeouts.
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/chatrelay/pkg/llm"
	"github.com/papercomputeco/chatrelay/pkg/sse"
)

// DoneSentinel is the payload that ends an OpenAI style stream.
const DoneSentinel = "[DONE]"

const completionsPath = "/chat/completions"

// genericErrorMessage is used when a provider error body carries no message.
const genericErrorMessage = "upstream reported an error"

// Options are the user supplied settings of an adapter. Zero values fall back
// to the provider's defaults.
type Options struct {
	// BaseURL overrides the provider API root (e.g., "https://api.deepseek.com/v1").
	BaseURL string

	// APIKey is sent as a bearer token.
	APIKey string

	// Timeout bounds how long an upstream exchange for a plain prompt may
	// stay silent.
	Timeout time.Duration

	// DocumentTimeout replaces Timeout when documents are attached.
	DocumentTimeout time.Duration
}

// Spec describes the fixed traits of a provider.
type Spec struct {
	Name            string
	BaseURL         string
	DefaultModel    string
	Framing         sse.Framing
	NonJSON         llm.NonJSONPolicy
	Timeout         time.Duration
	DocumentTimeout time.Duration

	// Matches reports whether a model identifier belongs to the provider.
	Matches func(model string) bool
}

// Adapter is an OpenAI compatible provider adapter.
type Adapter struct {
	spec   Spec
	apiKey string
}

// New merges opts over spec and returns the adapter.
func New(spec Spec, opts Options) *Adapter {
	if opts.BaseURL != "" {
		spec.BaseURL = opts.BaseURL
	}
	if opts.Timeout > 0 {
		spec.Timeout = opts.Timeout
	}
	if opts.DocumentTimeout > 0 {
		spec.DocumentTimeout = opts.DocumentTimeout
	}
	spec.BaseURL = strings.TrimRight(spec.BaseURL, "/")

	return &Adapter{spec: spec, apiKey: opts.APIKey}
}

func (a *Adapter) Name() string {
	return a.spec.Name
}

// DefaultModel is used when a prompt does not name a model.
func (a *Adapter) DefaultModel() string {
	return a.spec.DefaultModel
}

// BaseURL returns the resolved API root.
func (a *Adapter) BaseURL() string {
	return a.spec.BaseURL
}

func (a *Adapter) CanHandle(model string) bool {
	if a.spec.Matches == nil {
		return false
	}
	return a.spec.Matches(model)
}

func (a *Adapter) Framing() sse.Framing {
	return a.spec.Framing
}

func (a *Adapter) NonJSONPolicy() llm.NonJSONPolicy {
	return a.spec.NonJSON
}

func (a *Adapter) Timeout(hasDocuments bool) time.Duration {
	if hasDocuments && a.spec.DocumentTimeout > 0 {
		return a.spec.DocumentTimeout
	}
	return a.spec.Timeout
}

func (a *Adapter) IsDoneSentinel(payload string) bool {
	return strings.TrimSpace(payload) == DoneSentinel
}

// BuildRequest serializes req into a POST to the chat completions endpoint.
func (a *Adapter) BuildRequest(ctx context.Context, req *llm.ChatRequest) (*http.Request, error) {
	if req == nil {
		return nil, errors.New("nil chat request")
	}

	model := req.Model
	if model == "" {
		model = a.spec.DefaultModel
	}

	body := chatRequest{
		Model:       model,
		Messages:    make([]chatMessage, 0, len(req.Messages)+1),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      req.Stream,
	}

	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	for _, msg := range req.Messages {
		body.Messages = append(body.Messages, convertMessage(msg))
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", a.spec.Name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.spec.BaseURL+completionsPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", a.spec.Name, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	}
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	} else {
		httpReq.Header.Set("Accept", "application/json")
	}

	return httpReq, nil
}

// ExtractContent probes choices[0].delta.content, falling back to
// choices[0].message.content. Empty strings count as absent.
func (a *Adapter) ExtractContent(payload map[string]any) (string, bool) {
	choices, ok := payload["choices"].([]any)
	if !ok || len(choices) == 0 {
		return "", false
	}

	choice, ok := choices[0].(map[string]any)
	if !ok {
		return "", false
	}

	if delta, ok := choice["delta"].(map[string]any); ok {
		if content, ok := delta["content"].(string); ok && content != "" {
			return content, true
		}
	}

	if message, ok := choice["message"].(map[string]any); ok {
		if content, ok := message["content"].(string); ok && content != "" {
			return content, true
		}
	}

	return "", false
}

// ExtractError recognizes the relay's own {"type":"error","message":...}
// shape and provider error bodies ({"error":{"message":...}} or
// {"error":"..."}).
func (a *Adapter) ExtractError(payload map[string]any) (string, bool) {
	if t, _ := payload["type"].(string); t == string(llm.EventError) {
		if msg, _ := payload["message"].(string); msg != "" {
			return msg, true
		}
		return genericErrorMessage, true
	}

	switch e := payload["error"].(type) {
	case string:
		if e != "" {
			return e, true
		}
	case map[string]any:
		if msg, _ := e["message"].(string); msg != "" {
			return msg, true
		}
		if code, ok := e["code"]; ok {
			return fmt.Sprintf("%s (code %v)", genericErrorMessage, code), true
		}
		return genericErrorMessage, true
	}

	return "", false
}

// ParseResponse converts a non-streaming completion body.
func (a *Adapter) ParseResponse(payload []byte) (*llm.ChatResponse, error) {
	var resp chatResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", a.spec.Name, err)
	}

	result := &llm.ChatResponse{
		Model:       resp.Model,
		RawResponse: payload,
	}
	if resp.Created > 0 {
		result.CreatedAt = time.Unix(resp.Created, 0)
	}
	if resp.Usage != nil {
		result.Usage = &llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}

	if len(resp.Choices) == 0 {
		return result, nil
	}

	choice := resp.Choices[0]
	result.StopReason = choice.FinishReason
	result.Message.Role = choice.Message.Role

	switch c := choice.Message.Content.(type) {
	case string:
		result.Message.Content = []llm.ContentBlock{{Type: "text", Text: c}}
	case []any:
		for _, item := range c {
			if part, ok := item.(map[string]any); ok {
				if text, ok := part["text"].(string); ok {
					result.Message.Content = append(result.Message.Content, llm.ContentBlock{Type: "text", Text: text})
				}
			}
		}
	}

	return result, nil
}

func convertMessage(msg llm.Message) chatMessage {
	if msg.IsPlainText() {
		return chatMessage{Role: msg.Role, Content: msg.Content[0].Text}
	}

	parts := make([]contentPart, 0, len(msg.Content))
	for _, block := range msg.Content {
		switch block.Type {
		case "image":
			parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: block.ImageURL}})
		default:
			parts = append(parts, contentPart{Type: "text", Text: block.Text})
		}
	}
	return chatMessage{Role: msg.Role, Content: parts}
}
