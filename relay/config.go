package relay

import (
	"net/http"
	"time"

	"github.com/papercomputeco/chatrelay/pkg/eventstream"
	"github.com/papercomputeco/chatrelay/pkg/extract"
	"github.com/papercomputeco/chatrelay/pkg/llm/provider"
	"github.com/papercomputeco/chatrelay/pkg/models"
	"github.com/papercomputeco/chatrelay/pkg/upload"
)

const (
	defaultTemperature = 0.7
	defaultHeartbeat   = 15 * time.Second
	defaultService     = "chatrelay"

	// responseHeaderTimeout caps the wait for upstream response headers.
	responseHeaderTimeout = 5 * time.Minute
)

// DefaultSystemPrompt is sent before every user message unless configured.
const DefaultSystemPrompt = "You are a helpful assistant. Answer clearly and use Markdown where it helps readability."

// Config is the relay server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":3001")
	ListenAddr string

	// Provider serves prompts without a model and models no other provider
	// claims. Required.
	Provider provider.Provider

	// Providers are additional enabled providers, routed to by model name.
	Providers []provider.Provider

	// Model overrides the default provider's default model.
	Model string

	// SystemPrompt is sent as the first message of every upstream request.
	SystemPrompt string

	// Temperature is the sampling temperature. Nil selects 0.7; zero is a
	// valid setting.
	Temperature *float64

	// Heartbeat is the interval between SSE comment frames on idle streams
	// (defaults to 15s). A negative value disables heartbeats.
	Heartbeat time.Duration

	// Catalog describes the known models. Defaults to models.Default().
	Catalog *models.Catalog

	// Uploads stores attachments. When nil, upload routes are disabled and
	// files can only be sent inline as data URLs.
	Uploads *upload.DiskStore

	// Extractor reads document attachments. Defaults to extract.PlainText.
	Extractor extract.Extractor

	// Publisher receives an event for every finished session. Defaults to
	// a no-op publisher.
	Publisher eventstream.Publisher

	// HTTPClient is used for upstream requests.
	HTTPClient *http.Client

	// Service names the relay in health responses and session events.
	Service string
}
