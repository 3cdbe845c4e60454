package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/papercomputeco/chatrelay/pkg/eventstream"
	"github.com/papercomputeco/chatrelay/pkg/llm"
	"github.com/papercomputeco/chatrelay/relay/worker"
)

// ChatResponse is the body returned by the non-streaming chat route.
type ChatResponse struct {
	Reply string     `json:"reply"`
	Model string     `json:"model"`
	Usage *llm.Usage `json:"usage,omitempty"`
}

// handleChat performs one non-streaming completion.
func (r *Relay) handleChat(c *fiber.Ctx) error {
	startTime := time.Now()

	var prompt llm.Prompt
	if err := c.BodyParser(&prompt); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid request body", Details: err.Error()})
	}
	if err := prompt.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: err.Error()})
	}

	prov, model := r.resolve(prompt.Model)
	caps := r.catalog.Lookup(model)
	timeout := prov.Timeout(prompt.HasDocuments())

	ctx, cancel := context.WithTimeout(c.Context(), timeout)
	defer cancel()

	chatReq := r.buildChatRequest(ctx, &prompt, model, caps, false)

	httpReq, err := prov.BuildRequest(ctx, chatReq)
	if err != nil {
		r.logger.Error("failed to create upstream request", "provider", prov.Name(), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "internal error"})
	}
	r.headerHandler.SetUpstreamRequestHeaders(c, httpReq)

	result := eventstream.SessionResult{Outcome: eventstream.OutcomeDone}
	defer func() {
		r.workerPool.Enqueue(worker.Job{Event: eventstream.NewSessionCompletedEvent(
			eventstream.EventSource{Service: r.config.Service, Provider: prov.Name(), Model: model},
			eventstream.RequestMeta{
				SessionID:   uuid.NewString(),
				Path:        ChatPath,
				StartedAt:   startTime,
				CompletedAt: time.Now(),
				DurationMs:  time.Since(startTime).Milliseconds(),
				Files:       len(prompt.Files),
				MaxTokens:   *chatReq.MaxTokens,
			},
			result,
		)})
	}()

	fail := func(status int, msg string, err error) error {
		result.Outcome = eventstream.OutcomeError
		result.Error = msg
		resp := llm.ErrorResponse{Error: msg}
		if err != nil {
			resp.Details = err.Error()
		}
		r.logger.Error("chat request failed", "provider", prov.Name(), "model", model, "error", msg)
		return c.Status(status).JSON(resp)
	}

	httpResp, err := r.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fail(fiber.StatusGatewayTimeout, fmt.Sprintf("upstream request timed out after %s", timeout), nil)
		}
		return fail(fiber.StatusBadGateway, "upstream request failed", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fail(fiber.StatusBadGateway, "failed to read upstream response", err)
	}

	r.headerHandler.SetClientResponseHeaders(c, httpResp)

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		body := string(respBody)
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return fail(fiber.StatusBadGateway, fmt.Sprintf("upstream error: %d - %s", httpResp.StatusCode, strings.TrimSpace(body)), nil)
	}

	parsed, err := prov.ParseResponse(respBody)
	if err != nil {
		return fail(fiber.StatusBadGateway, "failed to parse upstream response", err)
	}

	reply := parsed.Message.GetText()
	result.Chunks = 1
	result.Chars = len(reply)

	if parsed.Model == "" {
		parsed.Model = model
	}

	return c.JSON(ChatResponse{
		Reply: reply,
		Model: parsed.Model,
		Usage: parsed.Usage,
	})
}
