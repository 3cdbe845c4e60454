// Package header provides header handling for the chatrelay server.
//
// The relay sits between a chat client and an upstream LLM provider like so:
//
//	Client <--> Relay <--> Upstream LLM Provider
//
// Unlike a transparent proxy the relay builds its own upstream requests, so
// only a small set of client headers travels upstream and only provider
// metadata travels back down.
package header

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/chatrelay/pkg/llm"
)

// Handler manages headers between relay connections.
type Handler struct{}

// NewHandler creates a new header Handler.
func NewHandler() *Handler {
	return &Handler{}
}

// SessionIDHeader carries the relay session ID on responses and, when a
// client sets it, on requests.
const SessionIDHeader = llm.SessionHeader

// forwardRequest is the set of request headers (client --> relay --> upstream)
// forwarded to the upstream LLM provider. Credentials, cookies and
// hop-by-hop headers never leave the relay.
var forwardRequest = map[string]struct{}{
	"Accept-Language": {},
	"User-Agent":      {},
	"X-Request-Id":    {},
}

// forwardResponsePrefixes select upstream response headers
// (client <-- relay <-- upstream) copied back to the downstream client.
var forwardResponsePrefixes = []string{
	"X-Ratelimit-",
	"X-Request-Id",
}

// SetUpstreamRequestHeaders copies the forwardable request headers from the
// Fiber context to the outgoing http.Request. Headers the provider adapter
// already set are kept.
func (h *Handler) SetUpstreamRequestHeaders(c *fiber.Ctx, req *http.Request) {
	c.Request().Header.VisitAll(func(key, value []byte) {
		k := http.CanonicalHeaderKey(string(key))
		if _, ok := forwardRequest[k]; !ok {
			return
		}
		if req.Header.Get(k) == "" {
			req.Header.Set(k, string(value))
		}
	})
}

// SetClientResponseHeaders copies rate limit and request ID headers from the
// upstream http.Response to the Fiber context.
func (h *Handler) SetClientResponseHeaders(c *fiber.Ctx, resp *http.Response) {
	for k, v := range resp.Header {
		for _, prefix := range forwardResponsePrefixes {
			if strings.HasPrefix(k, prefix) {
				c.Set(k, strings.Join(v, ", "))
				break
			}
		}
	}
}
