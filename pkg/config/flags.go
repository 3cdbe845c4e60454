package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --model
// on both "chatrelay serve" and "chatrelay chat").
type Flag struct {
	// Name is the long flag name (e.g. "listen").
	Name string

	// Shorthand is the one-letter short flag (e.g. "l"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "server.listen").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddFloat64Flag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagListen          = "listen"
	FlagProvider        = "provider"
	FlagBaseURL         = "base-url"
	FlagModel           = "model"
	FlagSystemPrompt    = "system-prompt"
	FlagTemperature     = "temperature"
	FlagTimeout         = "timeout"
	FlagDocumentTimeout = "document-timeout"
	FlagHeartbeat       = "heartbeat"
	FlagUploadDir       = "upload-dir"
	FlagTarget          = "target"
	FlagBrokers         = "brokers"
	FlagTopic           = "topic"
)

// Flags is the registry shared by every command.
var Flags = FlagSet{
	FlagListen:          {Name: "listen", Shorthand: "l", ViperKey: "server.listen", Description: "Address for the relay to listen on"},
	FlagProvider:        {Name: "provider", Shorthand: "p", ViperKey: "provider.name", Description: "Default LLM provider (deepseek, glm, siliconflow)"},
	FlagBaseURL:         {Name: "base-url", ViperKey: "provider.base_url", Description: "Override the default provider's API root"},
	FlagModel:           {Name: "model", Shorthand: "m", ViperKey: "provider.model", Description: "Model used when a prompt names none"},
	FlagSystemPrompt:    {Name: "system-prompt", ViperKey: "provider.system_prompt", Description: "System prompt sent before every message"},
	FlagTemperature:     {Name: "temperature", ViperKey: "provider.temperature", Description: "Sampling temperature"},
	FlagTimeout:         {Name: "timeout", ViperKey: "provider.timeout", Description: "Upstream idle timeout (e.g. 30s)"},
	FlagDocumentTimeout: {Name: "document-timeout", ViperKey: "provider.document_timeout", Description: "Upstream idle timeout when documents are attached"},
	FlagHeartbeat:       {Name: "heartbeat", ViperKey: "server.heartbeat", Description: "Interval between SSE heartbeat comments"},
	FlagUploadDir:       {Name: "upload-dir", ViperKey: "upload.dir", Description: "Directory storing uploaded files"},
	FlagTarget:          {Name: "target", Shorthand: "t", ViperKey: "client.target", Description: "chatrelay server URL"},
	FlagBrokers:         {Name: "brokers", ViperKey: "eventstream.brokers", Description: "Comma separated Kafka brokers for session events"},
	FlagTopic:           {Name: "topic", ViperKey: "eventstream.topic", Description: "Kafka topic for session events"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddFloat64Flag registers a float64 flag on cmd from the given FlagSet.
func AddFloat64Flag(cmd *cobra.Command, fs FlagSet, registryKey string, target *float64) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultFloat64(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().Float64VarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().Float64Var(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultFloat64 returns the default float64 value for a viper key from NewDefaultConfig.
func defaultFloat64(viperKey string) float64 {
	v := viper.New()
	setViperDefaults(v)
	return v.GetFloat64(viperKey)
}
