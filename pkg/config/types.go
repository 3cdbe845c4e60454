package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent chatrelay configuration stored as
// config.toml in the .chatrelay/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Provider    ProviderConfig    `toml:"provider"`
	Server      ServerConfig      `toml:"server"`
	Upload      UploadConfig      `toml:"upload"`
	Client      ClientConfig      `toml:"client"`
	EventStream EventStreamConfig `toml:"eventstream"`
}

// ProviderConfig selects and tunes the default upstream provider.
// Durations are Go duration strings (e.g. "30s"); empty values use the
// provider's own defaults.
type ProviderConfig struct {
	Name            string   `toml:"name,omitempty"`
	BaseURL         string   `toml:"base_url,omitempty"`
	Model           string   `toml:"model,omitempty"`
	SystemPrompt    string   `toml:"system_prompt,omitempty"`
	Temperature     *float64 `toml:"temperature,omitempty"`
	Timeout         string   `toml:"timeout,omitempty"`
	DocumentTimeout string   `toml:"document_timeout,omitempty"`
}

// ServerConfig holds relay server settings.
type ServerConfig struct {
	Listen    string `toml:"listen,omitempty"`
	Heartbeat string `toml:"heartbeat,omitempty"`
}

// UploadConfig holds attachment storage settings. A relative Dir is
// resolved against the working directory.
type UploadConfig struct {
	Dir string `toml:"dir,omitempty"`
}

// ClientConfig holds settings for CLI commands that connect to a running
// relay (e.g. chatrelay chat). Target is a full URL (scheme + host + port).
type ClientConfig struct {
	Target string `toml:"target,omitempty"`
}

// EventStreamConfig holds session event publishing settings. Brokers is a
// comma separated list of Kafka brokers; when empty, events are discarded.
type EventStreamConfig struct {
	Brokers string `toml:"brokers,omitempty"`
	Topic   string `toml:"topic,omitempty"`
}

// BrokerList splits Brokers into trimmed, non-empty addresses.
func (e EventStreamConfig) BrokerList() []string {
	var brokers []string
	for _, b := range strings.Split(e.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func durationSetter(key string, field func(c *Config) *string) func(c *Config, v string) error {
	return func(c *Config, v string) error {
		if v != "" {
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("invalid value for %s: %w", key, err)
			}
		}
		*field(c) = v
		return nil
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"provider.name": {
		get: func(c *Config) string { return c.Provider.Name },
		set: func(c *Config, v string) error { c.Provider.Name = v; return nil },
	},
	"provider.base_url": {
		get: func(c *Config) string { return c.Provider.BaseURL },
		set: func(c *Config, v string) error { c.Provider.BaseURL = v; return nil },
	},
	"provider.model": {
		get: func(c *Config) string { return c.Provider.Model },
		set: func(c *Config, v string) error { c.Provider.Model = v; return nil },
	},
	"provider.system_prompt": {
		get: func(c *Config) string { return c.Provider.SystemPrompt },
		set: func(c *Config, v string) error { c.Provider.SystemPrompt = v; return nil },
	},
	"provider.temperature": {
		get: func(c *Config) string {
			if c.Provider.Temperature == nil {
				return ""
			}
			return strconv.FormatFloat(*c.Provider.Temperature, 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for provider.temperature: %w", err)
			}
			if f < 0 || f > 2 {
				return fmt.Errorf("invalid value for provider.temperature: %v is outside [0, 2]", f)
			}
			c.Provider.Temperature = &f
			return nil
		},
	},
	"provider.timeout": {
		get: func(c *Config) string { return c.Provider.Timeout },
		set: durationSetter("provider.timeout", func(c *Config) *string { return &c.Provider.Timeout }),
	},
	"provider.document_timeout": {
		get: func(c *Config) string { return c.Provider.DocumentTimeout },
		set: durationSetter("provider.document_timeout", func(c *Config) *string { return &c.Provider.DocumentTimeout }),
	},
	"server.listen": {
		get: func(c *Config) string { return c.Server.Listen },
		set: func(c *Config, v string) error { c.Server.Listen = v; return nil },
	},
	"server.heartbeat": {
		get: func(c *Config) string { return c.Server.Heartbeat },
		set: durationSetter("server.heartbeat", func(c *Config) *string { return &c.Server.Heartbeat }),
	},
	"upload.dir": {
		get: func(c *Config) string { return c.Upload.Dir },
		set: func(c *Config, v string) error { c.Upload.Dir = v; return nil },
	},
	"client.target": {
		get: func(c *Config) string { return c.Client.Target },
		set: func(c *Config, v string) error { c.Client.Target = v; return nil },
	},
	"eventstream.brokers": {
		get: func(c *Config) string { return c.EventStream.Brokers },
		set: func(c *Config, v string) error { c.EventStream.Brokers = v; return nil },
	},
	"eventstream.topic": {
		get: func(c *Config) string { return c.EventStream.Topic },
		set: func(c *Config, v string) error { c.EventStream.Topic = v; return nil },
	},
}
