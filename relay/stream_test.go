package relay

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatrelay/pkg/eventstream"
	"github.com/papercomputeco/chatrelay/pkg/llm"
	"github.com/papercomputeco/chatrelay/pkg/llm/provider"
	"github.com/papercomputeco/chatrelay/relay/header"
)

var _ = Describe("Streaming relay", func() {
	var (
		upstream *fakeUpstream
		r        *Relay
	)

	AfterEach(func() {
		if r != nil {
			r.Close()
			r = nil
		}
		if upstream != nil {
			upstream.Close()
			upstream = nil
		}
	})

	start := func(handler http.HandlerFunc) {
		upstream = newUpstream(handler)
		r = newTestRelay(Config{Provider: providerAt(provider.DeepSeek, upstream.URL)})
	}

	It("relays model info, chunks and done", func() {
		start(sseUpstream(
			deltaFrame("Hel"),
			deltaFrame("lo"),
			"data: [DONE]\n\n",
		))

		resp := postJSON(r, StreamPath, llm.Prompt{Message: "hi"})
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		events := readEvents(resp.Body)
		Expect(events).To(Equal([]llm.Event{
			llm.ModelInfo("DeepSeek Chat", "general conversation, code generation", "128K"),
			llm.Chunk("Hel"),
			llm.Chunk("lo"),
			llm.Done(),
		}))
	})

	It("sets the event stream headers and echoes the session id", func() {
		start(sseUpstream("data: [DONE]\n\n"))

		raw, _ := json.Marshal(llm.Prompt{Message: "hi"})
		req := httptest.NewRequest(http.MethodPost, StreamPath, bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(header.SessionIDHeader, "sess-42")

		resp, err := r.server.Test(req, -1)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Header.Get("Content-Type")).To(Equal("text/event-stream"))
		Expect(resp.Header.Get("Cache-Control")).To(Equal("no-cache"))
		Expect(resp.Header.Get("X-Accel-Buffering")).To(Equal("no"))
		Expect(resp.Header.Get(header.SessionIDHeader)).To(Equal("sess-42"))
	})

	It("generates a session id when the client sends none", func() {
		start(sseUpstream("data: [DONE]\n\n"))

		resp := postJSON(r, StreamPath, llm.Prompt{Message: "hi"})
		Expect(resp.Header.Get(header.SessionIDHeader)).NotTo(BeEmpty())
	})

	It("sends the system prompt, clamped max tokens and temperature upstream", func() {
		start(sseUpstream("data: [DONE]\n\n"))

		tooMany := 100000
		resp := postJSON(r, StreamPath, llm.Prompt{Message: "hi", MaxTokens: &tooMany})
		readEvents(resp.Body)

		body := upstream.lastBody()
		Expect(body["model"]).To(Equal("deepseek-chat"))
		Expect(body["stream"]).To(BeTrue())
		Expect(body["max_tokens"]).To(BeNumerically("==", 8192))
		Expect(body["temperature"]).To(BeNumerically("~", 0.7))
		Expect(upstream.lastRaw()).To(ContainSubstring(DefaultSystemPrompt))
	})

	It("sends a configured zero temperature upstream", func() {
		upstream = newUpstream(sseUpstream("data: [DONE]\n\n"))
		zero := 0.0
		r = newTestRelay(Config{
			Provider:    providerAt(provider.DeepSeek, upstream.URL),
			Temperature: &zero,
		})

		resp := postJSON(r, StreamPath, llm.Prompt{Message: "hi"})
		readEvents(resp.Body)

		Expect(upstream.lastBody()).To(HaveKeyWithValue("temperature", BeZero()))
	})

	It("bounds only the wait for upstream headers, not the stream length", func() {
		start(sseUpstream("data: [DONE]\n\n"))

		Expect(r.httpClient.Timeout).To(BeZero())
		transport, ok := r.httpClient.Transport.(*http.Transport)
		Expect(ok).To(BeTrue())
		Expect(transport.ResponseHeaderTimeout).To(Equal(responseHeaderTimeout))
	})

	It("keeps an active stream open past the provider timeout", func() {
		upstream = newUpstream(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			flusher := w.(http.Flusher)
			for range 6 {
				fmt.Fprint(w, deltaFrame("."))
				flusher.Flush()
				time.Sleep(40 * time.Millisecond)
			}
			fmt.Fprint(w, "data: [DONE]\n\n")
		})
		p, err := provider.New(provider.DeepSeek, provider.Options{
			BaseURL: upstream.URL,
			APIKey:  "test-key",
			Timeout: 100 * time.Millisecond,
		})
		Expect(err).NotTo(HaveOccurred())
		r = newTestRelay(Config{Provider: p})

		events := readEvents(postJSON(r, StreamPath, llm.Prompt{Message: "hi"}).Body)
		Expect(events).To(HaveLen(8))
		Expect(events[len(events)-1]).To(Equal(llm.Done()))
	})

	It("rejects an empty prompt without contacting the upstream", func() {
		start(sseUpstream("data: [DONE]\n\n"))

		resp := postJSON(r, StreamPath, llm.Prompt{Message: "   "})
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

		var body llm.ErrorResponse
		Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
		Expect(body.Error).To(Equal(llm.ErrEmptyPrompt.Error()))
		Expect(upstream.calls.Load()).To(BeZero())
	})

	It("rejects a malformed body", func() {
		start(sseUpstream("data: [DONE]\n\n"))

		req := httptest.NewRequest(http.MethodPost, StreamPath, strings.NewReader("{not json"))
		req.Header.Set("Content-Type", "application/json")
		resp, err := r.server.Test(req, -1)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		Expect(upstream.calls.Load()).To(BeZero())
	})

	It("uses the default file prompt when only files are attached", func() {
		start(sseUpstream("data: [DONE]\n\n"))

		resp := postJSON(r, StreamPath, llm.Prompt{
			Files: []llm.FileRef{{Name: "notes.txt", Type: "text/plain"}},
		})
		readEvents(resp.Body)

		Expect(upstream.lastRaw()).To(ContainSubstring(DefaultFilePrompt))
		Expect(upstream.lastRaw()).To(ContainSubstring("Received file: notes.txt"))
	})

	It("replaces images with a note for models without vision", func() {
		start(sseUpstream("data: [DONE]\n\n"))

		resp := postJSON(r, StreamPath, llm.Prompt{
			Message: "what is this?",
			Files:   []llm.FileRef{{Name: "cat.png", Type: "image/png", Data: "AAAA"}},
		})
		readEvents(resp.Body)

		raw := upstream.lastRaw()
		Expect(raw).To(ContainSubstring("[Image: cat.png. DeepSeek Chat cannot view images"))
		Expect(raw).NotTo(ContainSubstring("image_url"))
	})

	It("turns a non-2xx upstream response into one error frame", func() {
		start(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, "boom")
		})

		resp := postJSON(r, StreamPath, llm.Prompt{Message: "hi"})
		events := readEvents(resp.Body)
		Expect(events).To(HaveLen(2))
		Expect(events[0].Type).To(Equal(llm.EventModelInfo))
		Expect(events[1]).To(Equal(llm.Error("upstream error: 500 - boom")))
	})

	It("caps the quoted upstream error body", func() {
		start(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(w, strings.Repeat("x", 5000))
		})

		resp := postJSON(r, StreamPath, llm.Prompt{Message: "hi"})
		events := readEvents(resp.Body)
		last := events[len(events)-1]
		Expect(last.Type).To(Equal(llm.EventError))
		Expect(last.Message).To(Equal("upstream error: 502 - " + strings.Repeat("x", maxErrorBody)))
	})

	It("ends with done when the upstream closes without a sentinel", func() {
		start(sseUpstream(deltaFrame("only")))

		resp := postJSON(r, StreamPath, llm.Prompt{Message: "hi"})
		events := readEvents(resp.Body)
		Expect(events[1:]).To(Equal([]llm.Event{llm.Chunk("only"), llm.Done()}))
	})

	It("stops at an upstream error event", func() {
		start(sseUpstream(
			deltaFrame("partial"),
			`data: {"error":{"message":"quota exceeded"}}`+"\n\n",
			deltaFrame("never"),
			"data: [DONE]\n\n",
		))

		resp := postJSON(r, StreamPath, llm.Prompt{Message: "hi"})
		events := readEvents(resp.Body)
		Expect(events[1:]).To(Equal([]llm.Event{llm.Chunk("partial"), llm.Error("quota exceeded")}))
	})

	It("drops payloads that are not JSON", func() {
		start(sseUpstream(
			"data: keep-alive\n\n",
			deltaFrame("ok"),
			"data: [DONE]\n\n",
		))

		resp := postJSON(r, StreamPath, llm.Prompt{Message: "hi"})
		events := readEvents(resp.Body)
		Expect(events[1:]).To(Equal([]llm.Event{llm.Chunk("ok"), llm.Done()}))
	})

	It("reports a timeout when the upstream stays silent", func() {
		upstream = newUpstream(func(w http.ResponseWriter, req *http.Request) {
			select {
			case <-req.Context().Done():
			case <-time.After(3 * time.Second):
			}
		})
		p, err := provider.New(provider.DeepSeek, provider.Options{
			BaseURL: upstream.URL,
			APIKey:  "test-key",
			Timeout: 100 * time.Millisecond,
		})
		Expect(err).NotTo(HaveOccurred())
		r = newTestRelay(Config{Provider: p})

		resp := postJSON(r, StreamPath, llm.Prompt{Message: "hi"})
		events := readEvents(resp.Body)
		Expect(events).To(HaveLen(2))
		Expect(events[1]).To(Equal(llm.Error("upstream request timed out after 100ms")))
	})

	It("keeps a slow but active stream alive past the timeout", func() {
		upstream = newUpstream(func(w http.ResponseWriter, _ *http.Request) {
			flusher := w.(http.Flusher)
			for i := 0; i < 4; i++ {
				fmt.Fprint(w, deltaFrame("."))
				flusher.Flush()
				time.Sleep(60 * time.Millisecond)
			}
			fmt.Fprint(w, "data: [DONE]\n\n")
		})
		p, err := provider.New(provider.DeepSeek, provider.Options{
			BaseURL: upstream.URL,
			APIKey:  "test-key",
			Timeout: 150 * time.Millisecond,
		})
		Expect(err).NotTo(HaveOccurred())
		r = newTestRelay(Config{Provider: p})

		resp := postJSON(r, StreamPath, llm.Prompt{Message: "hi"})
		events := readEvents(resp.Body)
		Expect(events).To(HaveLen(6))
		Expect(events[5]).To(Equal(llm.Done()))
	})

	It("routes glm models to the glm provider", func() {
		upstream = newUpstream(sseUpstream(deltaFrame("from deepseek"), "data: [DONE]\n\n"))
		glmUpstream := newUpstream(sseUpstream(
			"event: message\ndata: "+`{"choices":[{"delta":{"content":"from glm"}}]}`+"\n\n",
			"data: [DONE]\n\n",
		))
		defer glmUpstream.Close()

		r = newTestRelay(Config{
			Provider:  providerAt(provider.DeepSeek, upstream.URL),
			Providers: []provider.Provider{providerAt(provider.GLM, glmUpstream.URL)},
		})

		resp := postJSON(r, StreamPath, llm.Prompt{Message: "hi", Model: "glm-4-flash"})
		events := readEvents(resp.Body)
		Expect(events[0].Model).To(Equal("GLM-4-Flash"))
		Expect(events[1:]).To(Equal([]llm.Event{llm.Chunk("from glm"), llm.Done()}))

		Expect(upstream.calls.Load()).To(BeZero())
		Expect(glmUpstream.lastBody()["model"]).To(Equal("glm-4-flash"))
	})

	It("writes heartbeat comments while the upstream is quiet", func() {
		upstream = newUpstream(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			w.(http.Flusher).Flush()
			time.Sleep(150 * time.Millisecond)
			fmt.Fprint(w, deltaFrame("late"), "data: [DONE]\n\n")
		})
		r = newTestRelay(Config{
			Provider:  providerAt(provider.DeepSeek, upstream.URL),
			Heartbeat: 20 * time.Millisecond,
		})

		resp := postJSON(r, StreamPath, llm.Prompt{Message: "hi"})
		raw, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(raw)).To(ContainSubstring(": ping\n\n"))
		Expect(strings.HasSuffix(string(raw), "data: {\"type\":\"done\"}\n\n")).To(BeTrue())
	})

	It("publishes a session event for every finished stream", func() {
		upstream = newUpstream(sseUpstream(deltaFrame("ab"), deltaFrame("c"), "data: [DONE]\n\n"))
		pub := &recordingPublisher{}
		r = newTestRelay(Config{
			Provider:  providerAt(provider.DeepSeek, upstream.URL),
			Publisher: pub,
		})

		raw, _ := json.Marshal(llm.Prompt{Message: "hi"})
		req := httptest.NewRequest(http.MethodPost, StreamPath, bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(header.SessionIDHeader, "sess-7")
		resp, err := r.server.Test(req, -1)
		Expect(err).NotTo(HaveOccurred())
		readEvents(resp.Body)

		Eventually(pub.published).Should(HaveLen(1))
		ev := pub.published()[0]
		Expect(ev.EventType).To(Equal(eventstream.EventTypeSessionCompleted))
		Expect(ev.Source.Provider).To(Equal(provider.DeepSeek))
		Expect(ev.Source.Model).To(Equal("deepseek-chat"))
		Expect(ev.Request.SessionID).To(Equal("sess-7"))
		Expect(ev.Request.Path).To(Equal(StreamPath))
		Expect(ev.Request.Streaming).To(BeTrue())
		Expect(ev.Result.Outcome).To(Equal(eventstream.OutcomeDone))
		Expect(ev.Result.Chunks).To(Equal(2))
		Expect(ev.Result.Chars).To(Equal(3))
	})

	It("records failed streams with their error", func() {
		upstream = newUpstream(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, "bad key")
		})
		pub := &recordingPublisher{}
		r = newTestRelay(Config{
			Provider:  providerAt(provider.DeepSeek, upstream.URL),
			Publisher: pub,
		})

		resp := postJSON(r, StreamPath, llm.Prompt{Message: "hi"})
		readEvents(resp.Body)

		Eventually(pub.published).Should(HaveLen(1))
		result := pub.published()[0].Result
		Expect(result.Outcome).To(Equal(eventstream.OutcomeError))
		Expect(result.Error).To(Equal("upstream error: 401 - bad key"))
	})

	Context("over a real connection", func() {
		It("cancels the upstream exchange when the client disconnects", func() {
			var canceled atomic.Bool
			upstream = newUpstream(func(w http.ResponseWriter, req *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				flusher := w.(http.Flusher)
				ticker := time.NewTicker(20 * time.Millisecond)
				defer ticker.Stop()
				for {
					select {
					case <-req.Context().Done():
						canceled.Store(true)
						return
					case <-ticker.C:
						fmt.Fprint(w, deltaFrame("tick"))
						flusher.Flush()
					}
				}
			})
			pub := &recordingPublisher{}
			r = newTestRelay(Config{
				Provider:  providerAt(provider.DeepSeek, upstream.URL),
				Publisher: pub,
				Heartbeat: 10 * time.Millisecond,
			})

			listener, err := net.Listen("tcp", "127.0.0.1:0")
			Expect(err).NotTo(HaveOccurred())
			go func() {
				_ = r.RunWithListener(listener)
			}()

			raw, _ := json.Marshal(llm.Prompt{Message: "hi"})
			resp, err := http.Post("http://"+listener.Addr().String()+StreamPath, "application/json", bytes.NewReader(raw))
			Expect(err).NotTo(HaveOccurred())

			reader := bufio.NewReader(resp.Body)
			for {
				line, err := reader.ReadString('\n')
				Expect(err).NotTo(HaveOccurred())
				if strings.Contains(line, `"type":"chunk"`) {
					break
				}
			}
			Expect(resp.Body.Close()).To(Succeed())

			Eventually(canceled.Load, 5*time.Second).Should(BeTrue())
			Eventually(pub.published, 5*time.Second).Should(HaveLen(1))
			Expect(pub.published()[0].Result.Outcome).To(Equal(eventstream.OutcomeAborted))
		})

		It("aborts open streams on Close and publishes them before returning", func() {
			var canceled atomic.Bool
			upstream = newUpstream(func(w http.ResponseWriter, req *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				flusher := w.(http.Flusher)
				ticker := time.NewTicker(20 * time.Millisecond)
				defer ticker.Stop()
				for {
					select {
					case <-req.Context().Done():
						canceled.Store(true)
						return
					case <-ticker.C:
						fmt.Fprint(w, deltaFrame("tick"))
						flusher.Flush()
					}
				}
			})
			pub := &recordingPublisher{}
			r = newTestRelay(Config{
				Provider:  providerAt(provider.DeepSeek, upstream.URL),
				Publisher: pub,
			})

			listener, err := net.Listen("tcp", "127.0.0.1:0")
			Expect(err).NotTo(HaveOccurred())
			go func() {
				_ = r.RunWithListener(listener)
			}()

			raw, _ := json.Marshal(llm.Prompt{Message: "hi"})
			resp, err := http.Post("http://"+listener.Addr().String()+StreamPath, "application/json", bytes.NewReader(raw))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			reader := bufio.NewReader(resp.Body)
			for {
				line, err := reader.ReadString('\n')
				Expect(err).NotTo(HaveOccurred())
				if strings.Contains(line, `"type":"chunk"`) {
					break
				}
			}

			closed := make(chan error, 1)
			go func() { closed <- r.Close() }()
			Eventually(closed, 5*time.Second).Should(Receive())
			r = nil

			Expect(pub.published()).To(HaveLen(1))
			Expect(pub.published()[0].Result.Outcome).To(Equal(eventstream.OutcomeAborted))
			Eventually(canceled.Load, 5*time.Second).Should(BeTrue())
		})
	})
})
