// Package servecmder provides the serve command that runs the relay server.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/chatrelay/pkg/config"
	"github.com/papercomputeco/chatrelay/pkg/dotdir"
	"github.com/papercomputeco/chatrelay/pkg/eventstream"
	"github.com/papercomputeco/chatrelay/pkg/eventstream/kafka"
	"github.com/papercomputeco/chatrelay/pkg/eventstream/nop"
	"github.com/papercomputeco/chatrelay/pkg/llm/provider"
	"github.com/papercomputeco/chatrelay/pkg/logger"
	"github.com/papercomputeco/chatrelay/pkg/models"
	"github.com/papercomputeco/chatrelay/pkg/upload"
	"github.com/papercomputeco/chatrelay/relay"
)

const defaultEnvFile = ".env"

// registryFlags are the registry flags serve binds to viper.
var registryFlags = []string{
	config.FlagListen,
	config.FlagProvider,
	config.FlagBaseURL,
	config.FlagModel,
	config.FlagSystemPrompt,
	config.FlagTemperature,
	config.FlagTimeout,
	config.FlagDocumentTimeout,
	config.FlagHeartbeat,
	config.FlagUploadDir,
	config.FlagBrokers,
	config.FlagTopic,
}

type serveCommander struct {
	listen          string
	providerName    string
	baseURL         string
	model           string
	systemPrompt    string
	temperature     float64
	timeout         string
	documentTimeout string
	heartbeat       string
	uploadDir       string
	brokers         string
	topic           string

	envFile   string
	logFile   string
	jsonLogs  bool
	debug     bool
	configDir string

	apiKey string
	stdout io.Writer
	logger *slog.Logger
}

const serveLongDesc string = `Run the chatrelay server.

The relay accepts chat prompts on /api/chat/stream, opens one streaming
request per prompt to the configured LLM provider and relays the reply to
the client as uniform server-sent events: model_info, chunk, then exactly
one of done or error.

Provider API keys are read from the environment (DEEPSEEK_API_KEY,
GLM_API_KEY, SILICONFLOW_API_KEY), optionally loaded from a .env file.
The default provider's key is required; every other provider with a key
set is enabled and routed to by model name.

Settings resolve as: flags > CHATRELAY_* environment > config.toml > defaults.

Examples:
  chatrelay serve
  chatrelay serve --provider glm --listen :8080
  chatrelay serve --brokers localhost:9092 --log-file relay.log`

const serveShortDesc string = "Run the chatrelay server"

func NewServeCmd() *cobra.Command {
	return newServeCmd(&serveCommander{})
}

func newServeCmd(cmder *serveCommander) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			cmder.debug, _ = cmd.Flags().GetBool("debug")

			if err := cmder.loadEnv(cmd.Flags().Changed("env-file")); err != nil {
				return err
			}

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, registryFlags)
			cmder.applyViper(v)

			cmder.apiKey, err = provider.LookupCredential(cmder.providerName)
			if err != nil {
				return fmt.Errorf("provider %s: %w", cmder.providerName, err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.stdout = cmd.OutOrStdout()
			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagProvider, &cmder.providerName)
	config.AddStringFlag(cmd, config.Flags, config.FlagBaseURL, &cmder.baseURL)
	config.AddStringFlag(cmd, config.Flags, config.FlagModel, &cmder.model)
	config.AddStringFlag(cmd, config.Flags, config.FlagSystemPrompt, &cmder.systemPrompt)
	config.AddFloat64Flag(cmd, config.Flags, config.FlagTemperature, &cmder.temperature)
	config.AddStringFlag(cmd, config.Flags, config.FlagTimeout, &cmder.timeout)
	config.AddStringFlag(cmd, config.Flags, config.FlagDocumentTimeout, &cmder.documentTimeout)
	config.AddStringFlag(cmd, config.Flags, config.FlagHeartbeat, &cmder.heartbeat)
	config.AddStringFlag(cmd, config.Flags, config.FlagUploadDir, &cmder.uploadDir)
	config.AddStringFlag(cmd, config.Flags, config.FlagBrokers, &cmder.brokers)
	config.AddStringFlag(cmd, config.Flags, config.FlagTopic, &cmder.topic)

	cmd.Flags().StringVar(&cmder.envFile, "env-file", defaultEnvFile, "Dotenv file holding provider API keys")
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also write JSON logs to this file")
	cmd.Flags().BoolVar(&cmder.jsonLogs, "json", false, "Write JSON logs to stdout")

	return cmd
}

// loadEnv loads the dotenv file without overriding variables already set.
// A missing file is only an error when it was named explicitly.
func (c *serveCommander) loadEnv(explicit bool) error {
	err := godotenv.Load(c.envFile)
	if err == nil {
		return nil
	}
	if !explicit && errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading env file %s: %w", c.envFile, err)
}

func (c *serveCommander) applyViper(v *viper.Viper) {
	c.listen = v.GetString("server.listen")
	c.providerName = v.GetString("provider.name")
	c.baseURL = v.GetString("provider.base_url")
	c.model = v.GetString("provider.model")
	c.systemPrompt = v.GetString("provider.system_prompt")
	c.temperature = v.GetFloat64("provider.temperature")
	c.timeout = v.GetString("provider.timeout")
	c.documentTimeout = v.GetString("provider.document_timeout")
	c.heartbeat = v.GetString("server.heartbeat")
	c.uploadDir = v.GetString("upload.dir")
	c.brokers = v.GetString("eventstream.brokers")
	c.topic = v.GetString("eventstream.topic")
}

// newLogger builds the console logger and, with --log-file, tees records to
// a JSON file. With --json both sinks share a single JSON handler.
func (c *serveCommander) newLogger() (*slog.Logger, func(), error) {
	stdout := c.stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	opts := func(extra ...logger.Option) []logger.Option {
		return append([]logger.Option{
			logger.WithDebug(c.debug),
			logger.WithSource(c.debug),
		}, extra...)
	}

	if c.logFile == "" {
		return logger.New(opts(
			logger.WithPretty(!c.jsonLogs),
			logger.WithJSON(c.jsonLogs),
			logger.WithWriter(stdout),
		)...), func() {}, nil
	}

	f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	closeFile := func() { _ = f.Close() }

	if c.jsonLogs {
		return logger.New(opts(logger.WithJSON(true), logger.WithWriters(stdout, f))...), closeFile, nil
	}

	console := logger.New(opts(logger.WithPretty(true), logger.WithWriter(stdout))...)
	file := logger.New(opts(logger.WithJSON(true), logger.WithWriter(f))...)
	return logger.Multi(console, file), closeFile, nil
}

func (c *serveCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	log, closeLog, err := c.newLogger()
	if err != nil {
		return err
	}
	defer closeLog()
	c.logger = log

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	cfg, err := c.relayConfig()
	if err != nil {
		return err
	}
	defer cfg.Publisher.Close()

	c.watchCatalog(ctx, cfg.Catalog)

	r, err := relay.New(cfg, c.logger)
	if err != nil {
		return fmt.Errorf("creating relay: %w", err)
	}
	defer r.Close()

	// Channel to capture errors from the server goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := r.Run(); err != nil {
			errChan <- fmt.Errorf("relay error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
		return nil
	case <-ctx.Done():
		return nil
	}
}

// relayConfig assembles the relay configuration from the resolved settings.
func (c *serveCommander) relayConfig() (relay.Config, error) {
	timeout, err := parseDuration("provider.timeout", c.timeout)
	if err != nil {
		return relay.Config{}, err
	}
	documentTimeout, err := parseDuration("provider.document_timeout", c.documentTimeout)
	if err != nil {
		return relay.Config{}, err
	}
	heartbeat, err := parseDuration("server.heartbeat", c.heartbeat)
	if err != nil {
		return relay.Config{}, err
	}

	def, err := provider.New(c.providerName, provider.Options{
		BaseURL:         c.baseURL,
		APIKey:          c.apiKey,
		Timeout:         timeout,
		DocumentTimeout: documentTimeout,
	})
	if err != nil {
		return relay.Config{}, err
	}

	var others []provider.Provider
	for _, name := range provider.SupportedProviders() {
		if name == c.providerName {
			continue
		}
		key, err := provider.LookupCredential(name)
		if err != nil {
			c.logger.Debug("provider disabled", "provider", name, "reason", err)
			continue
		}
		p, err := provider.New(name, provider.Options{APIKey: key})
		if err != nil {
			return relay.Config{}, err
		}
		others = append(others, p)
		c.logger.Info("provider enabled", "provider", name)
	}

	var uploads *upload.DiskStore
	if c.uploadDir != "" {
		uploads, err = upload.NewDiskStore(c.uploadDir)
		if err != nil {
			return relay.Config{}, err
		}
		c.logger.Info("uploads enabled", "dir", c.uploadDir)
	}

	publisher, err := c.newPublisher()
	if err != nil {
		return relay.Config{}, err
	}

	return relay.Config{
		ListenAddr:   c.listen,
		Provider:     def,
		Providers:    others,
		Model:        c.model,
		SystemPrompt: c.systemPrompt,
		Temperature:  &c.temperature,
		Heartbeat:    heartbeat,
		Catalog:      models.Default(),
		Uploads:      uploads,
		Publisher:    publisher,
	}, nil
}

func (c *serveCommander) newPublisher() (eventstream.Publisher, error) {
	brokers := config.EventStreamConfig{Brokers: c.brokers}.BrokerList()
	if len(brokers) == 0 {
		return nop.NewPublisher(), nil
	}

	p, err := kafka.NewPublisher(kafka.Config{
		Brokers: brokers,
		Topic:   c.topic,
	}, c.logger)
	if err != nil {
		return nil, fmt.Errorf("creating kafka publisher: %w", err)
	}
	return p, nil
}

// watchCatalog hot reloads models.toml from the .chatrelay/ directory when
// the file exists.
func (c *serveCommander) watchCatalog(ctx context.Context, catalog *models.Catalog) {
	path, err := dotdir.NewManager().ModelsPath(c.configDir)
	if err != nil {
		c.logger.Warn("model catalog override unavailable", "error", err)
		return
	}
	if _, err := os.Stat(path); err != nil {
		c.logger.Debug("no model catalog override", "path", path)
		return
	}

	go func() {
		if err := catalog.Watch(ctx, path, c.logger); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error("model catalog watcher stopped", "path", path, "error", err)
		}
	}()
}

func parseDuration(key, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
