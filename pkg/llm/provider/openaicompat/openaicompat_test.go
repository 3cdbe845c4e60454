package openaicompat_test

import (
	"context"
	"encoding/json"
	"io"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatrelay/pkg/llm"
	"github.com/papercomputeco/chatrelay/pkg/llm/provider/openaicompat"
	"github.com/papercomputeco/chatrelay/pkg/sse"
)

func parse(s string) map[string]any {
	var m map[string]any
	Expect(json.Unmarshal([]byte(s), &m)).To(Succeed())
	return m
}

var _ = Describe("Adapter", func() {
	var (
		a    *openaicompat.Adapter
		spec openaicompat.Spec
	)

	BeforeEach(func() {
		spec = openaicompat.Spec{
			Name:            "test",
			BaseURL:         "https://api.example.com/v1/",
			DefaultModel:    "test-model",
			Framing:         sse.FramingLine,
			NonJSON:         llm.NonJSONDrop,
			Timeout:         30 * time.Second,
			DocumentTimeout: 120 * time.Second,
		}
		a = openaicompat.New(spec, openaicompat.Options{APIKey: "sk-test"})
	})

	Describe("New", func() {
		It("trims the trailing slash of the base URL", func() {
			Expect(a.BaseURL()).To(Equal("https://api.example.com/v1"))
		})

		It("lets options override the spec", func() {
			o := openaicompat.New(spec, openaicompat.Options{
				BaseURL:         "http://localhost:9000",
				Timeout:         time.Second,
				DocumentTimeout: 2 * time.Second,
			})
			Expect(o.BaseURL()).To(Equal("http://localhost:9000"))
			Expect(o.Timeout(false)).To(Equal(time.Second))
			Expect(o.Timeout(true)).To(Equal(2 * time.Second))
		})
	})

	Describe("Timeout", func() {
		It("uses the document timeout only when documents are attached", func() {
			Expect(a.Timeout(false)).To(Equal(30 * time.Second))
			Expect(a.Timeout(true)).To(Equal(120 * time.Second))
		})
	})

	Describe("IsDoneSentinel", func() {
		It("matches [DONE] with surrounding whitespace", func() {
			Expect(a.IsDoneSentinel("[DONE]")).To(BeTrue())
			Expect(a.IsDoneSentinel(" [DONE] ")).To(BeTrue())
			Expect(a.IsDoneSentinel("[DONE]x")).To(BeFalse())
			Expect(a.IsDoneSentinel(`{"done":true}`)).To(BeFalse())
		})
	})

	Describe("BuildRequest", func() {
		It("builds a streaming chat completions request", func() {
			maxTokens := 2000
			temperature := 0.7
			req, err := a.BuildRequest(context.Background(), &llm.ChatRequest{
				System:      "be brief",
				Messages:    []llm.Message{llm.NewTextMessage("user", "hello")},
				Stream:      true,
				MaxTokens:   &maxTokens,
				Temperature: &temperature,
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(req.Method).To(Equal("POST"))
			Expect(req.URL.String()).To(Equal("https://api.example.com/v1/chat/completions"))
			Expect(req.Header.Get("Authorization")).To(Equal("Bearer sk-test"))
			Expect(req.Header.Get("Content-Type")).To(Equal("application/json"))
			Expect(req.Header.Get("Accept")).To(Equal("text/event-stream"))

			raw, err := io.ReadAll(req.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(raw).To(MatchJSON(`{
				"model": "test-model",
				"messages": [
					{"role": "system", "content": "be brief"},
					{"role": "user", "content": "hello"}
				],
				"max_tokens": 2000,
				"temperature": 0.7,
				"stream": true
			}`))
		})

		It("sends multimodal content as parts", func() {
			req, err := a.BuildRequest(context.Background(), &llm.ChatRequest{
				Model: "vision-model",
				Messages: []llm.Message{{
					Role: "user",
					Content: []llm.ContentBlock{
						{Type: "text", Text: "what is this?"},
						{Type: "image", ImageURL: "data:image/png;base64,AAAA"},
					},
				}},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(req.Header.Get("Accept")).To(Equal("application/json"))

			raw, err := io.ReadAll(req.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(raw).To(MatchJSON(`{
				"model": "vision-model",
				"messages": [{
					"role": "user",
					"content": [
						{"type": "text", "text": "what is this?"},
						{"type": "image_url", "image_url": {"url": "data:image/png;base64,AAAA"}}
					]
				}],
				"stream": false
			}`))
		})

		It("omits the authorization header without a key", func() {
			anon := openaicompat.New(spec, openaicompat.Options{})
			req, err := anon.BuildRequest(context.Background(), &llm.ChatRequest{})
			Expect(err).NotTo(HaveOccurred())
			Expect(req.Header.Get("Authorization")).To(BeEmpty())
		})

		It("rejects a nil request", func() {
			_, err := a.BuildRequest(context.Background(), nil)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("ExtractContent", func() {
		It("reads choices[0].delta.content", func() {
			content, ok := a.ExtractContent(parse(`{"choices":[{"delta":{"content":"Hi"}}]}`))
			Expect(ok).To(BeTrue())
			Expect(content).To(Equal("Hi"))
		})

		It("falls back to choices[0].message.content", func() {
			content, ok := a.ExtractContent(parse(`{"choices":[{"message":{"content":"full"}}]}`))
			Expect(ok).To(BeTrue())
			Expect(content).To(Equal("full"))
		})

		It("falls back when the delta content is empty", func() {
			content, ok := a.ExtractContent(parse(`{"choices":[{"delta":{"content":""},"message":{"content":"m"}}]}`))
			Expect(ok).To(BeTrue())
			Expect(content).To(Equal("m"))
		})

		DescribeTable("reports no content",
			func(payload string) {
				_, ok := a.ExtractContent(parse(payload))
				Expect(ok).To(BeFalse())
			},
			Entry("role-only delta", `{"choices":[{"delta":{"role":"assistant"}}]}`),
			Entry("empty choices", `{"choices":[]}`),
			Entry("null content", `{"choices":[{"delta":{"content":null}}]}`),
			Entry("usage frame", `{"usage":{"total_tokens":3}}`),
			Entry("non-object choice", `{"choices":["x"]}`),
		)
	})

	Describe("ExtractError", func() {
		DescribeTable("recognizes error markers",
			func(payload, expected string) {
				msg, ok := a.ExtractError(parse(payload))
				Expect(ok).To(BeTrue())
				Expect(msg).To(Equal(expected))
			},
			Entry("uniform shape", `{"type":"error","message":"quota exceeded"}`, "quota exceeded"),
			Entry("uniform shape without message", `{"type":"error"}`, "upstream reported an error"),
			Entry("provider error object", `{"error":{"message":"invalid model","type":"invalid_request_error"}}`, "invalid model"),
			Entry("provider error code only", `{"error":{"code":"1301"}}`, "upstream reported an error (code 1301)"),
			Entry("provider error string", `{"error":"rate limited"}`, "rate limited"),
		)

		It("ignores payloads without an error", func() {
			_, ok := a.ExtractError(parse(`{"choices":[{"delta":{"content":"x"}}],"error":null}`))
			Expect(ok).To(BeFalse())
		})
	})

	Describe("ParseResponse", func() {
		It("parses a non-streaming completion", func() {
			resp, err := a.ParseResponse([]byte(`{
				"id": "chatcmpl-1",
				"object": "chat.completion",
				"created": 1700000000,
				"model": "test-model",
				"choices": [{"index": 0, "message": {"role": "assistant", "content": "Hello!"}, "finish_reason": "stop"}],
				"usage": {"prompt_tokens": 5, "completion_tokens": 2, "total_tokens": 7}
			}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Model).To(Equal("test-model"))
			Expect(resp.Message.Role).To(Equal("assistant"))
			Expect(resp.Message.GetText()).To(Equal("Hello!"))
			Expect(resp.StopReason).To(Equal("stop"))
			Expect(resp.Usage.TotalTokens).To(Equal(7))
			Expect(resp.CreatedAt.Unix()).To(Equal(int64(1700000000)))
		})

		It("returns an empty message without choices", func() {
			resp, err := a.ParseResponse([]byte(`{"model":"m","choices":[]}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Message.Content).To(BeEmpty())
		})

		It("fails on invalid JSON", func() {
			_, err := a.ParseResponse([]byte(`{not json`))
			Expect(err).To(HaveOccurred())
		})
	})
})
