// Package relay provides the chat relay server. It accepts chat prompts,
// opens one streaming request per prompt to an OpenAI compatible LLM provider,
// re-frames the provider's SSE stream into uniform llm.Events and relays them
// to the client as they arrive.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/papercomputeco/chatrelay/pkg/eventstream/nop"
	"github.com/papercomputeco/chatrelay/pkg/extract"
	"github.com/papercomputeco/chatrelay/pkg/llm/provider"
	"github.com/papercomputeco/chatrelay/pkg/models"
	"github.com/papercomputeco/chatrelay/pkg/upload"
	"github.com/papercomputeco/chatrelay/relay/header"
	"github.com/papercomputeco/chatrelay/relay/worker"
)

// Routes served by the relay.
const (
	StreamPath         = "/api/chat/stream"
	ChatPath           = "/api/chat"
	ModelsPath         = "/api/models"
	HealthPath         = "/api/health"
	UploadPath         = "/api/upload"
	UploadMultiplePath = "/api/upload/multiple"
	FilesPath          = "/api/files"
)

// Relay is the chat relay server.
type Relay struct {
	config        Config
	logger        *slog.Logger
	httpClient    *http.Client
	server        *fiber.App
	detector      *provider.Detector
	catalog       *models.Catalog
	extractor     extract.Extractor
	workerPool    *worker.Pool
	headerHandler *header.Handler

	// closing is canceled by Close to abort sessions still streaming.
	closing  context.Context
	abortAll context.CancelFunc
	sessions sync.WaitGroup
}

// New creates a new Relay.
// Returns an error if no default provider is configured.
func New(config Config, logger *slog.Logger) (*Relay, error) {
	if config.Provider == nil {
		return nil, errors.New("provider is required")
	}

	if config.Model == "" {
		config.Model = config.Provider.DefaultModel()
	}
	if config.SystemPrompt == "" {
		config.SystemPrompt = DefaultSystemPrompt
	}
	if config.Temperature == nil {
		temperature := defaultTemperature
		config.Temperature = &temperature
	}
	if config.Heartbeat == 0 {
		config.Heartbeat = defaultHeartbeat
	}
	if config.Catalog == nil {
		config.Catalog = models.Default()
	}
	if config.Extractor == nil {
		config.Extractor = extract.NewPlainText()
	}
	if config.Publisher == nil {
		config.Publisher = nop.NewPublisher()
	}
	if config.Service == "" {
		config.Service = defaultService
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		// No overall client timeout: a stream may run for as long as the
		// provider keeps sending. Silence is bounded by the session watchdog.
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.ResponseHeaderTimeout = responseHeaderTimeout
		httpClient = &http.Client{Transport: transport}
	}

	wp, err := worker.NewPool(&worker.Config{
		Publisher: config.Publisher,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create worker pool: %w", err)
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		// Room for a full multi-file upload plus form overhead
		BodyLimit: upload.MaxFileSize*upload.MaxFiles + 1<<20,
	})

	app.Use(recover.New())
	app.Use(cors.New())
	// Compression buffers the body, which would hold back SSE frames.
	app.Use(compress.New(compress.Config{
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == StreamPath
		},
	}))

	closing, abortAll := context.WithCancel(context.Background())

	r := &Relay{
		closing:       closing,
		abortAll:      abortAll,
		config:        config,
		logger:        logger,
		httpClient:    httpClient,
		server:        app,
		detector:      provider.NewDetector(config.Provider, config.Providers...),
		catalog:       config.Catalog,
		extractor:     config.Extractor,
		workerPool:    wp,
		headerHandler: header.NewHandler(),
	}

	app.Post(StreamPath, r.handleStream)
	app.Post(ChatPath, r.handleChat)
	app.Get(ModelsPath, r.handleModels)
	app.Get(HealthPath, r.handleHealth)

	if config.Uploads != nil {
		app.Post(UploadPath, r.handleUpload)
		app.Post(UploadMultiplePath, r.handleUploadMultiple)
		app.Get(FilesPath, r.handleFiles)
		app.Get(upload.URLPrefix+"*", adaptor.HTTPHandler(
			http.StripPrefix("/uploads", http.FileServer(http.Dir(config.Uploads.Dir()))),
		))
	}

	return r, nil
}

// Run starts the relay server on the configured listening address
func (r *Relay) Run() error {
	r.logger.Info("starting relay server",
		"listen", r.config.ListenAddr,
		"provider", r.config.Provider.Name(),
		"model", r.config.Model,
	)

	return r.server.Listen(r.config.ListenAddr)
}

// RunWithListener starts the relay server using the provided listener.
func (r *Relay) RunWithListener(listener net.Listener) error {
	r.logger.Info("starting relay server",
		"listen", listener.Addr().String(),
		"provider", r.config.Provider.Name(),
		"model", r.config.Model,
	)

	return r.server.Listener(listener)
}

// Close shuts down the relay. Streams still open are aborted first, since
// the server waits for every connection to finish, and their session events
// are published before the worker pool drains.
func (r *Relay) Close() error {
	r.abortAll()
	err := r.server.Shutdown()
	r.sessions.Wait()
	r.workerPool.Close()
	return err
}

// App exposes the underlying fiber application, mainly for tests.
func (r *Relay) App() *fiber.App {
	return r.server
}

// resolve picks the provider and model for a requested model identifier.
func (r *Relay) resolve(requested string) (provider.Provider, string) {
	if requested == "" {
		return r.config.Provider, r.config.Model
	}
	return r.detector.Detect(requested), requested
}
