package config

const (
	defaultProvider     = "deepseek"
	defaultListen       = ":3001"
	defaultHeartbeat    = "15s"
	defaultTemperature  = 0.7
	defaultUploadDir    = "uploads"
	defaultClientTarget = "http://localhost:3001"
	defaultTopic        = "chatrelay.sessions"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Provider: ProviderConfig{
			Name:        defaultProvider,
			Temperature: float64Ptr(defaultTemperature),
		},
		Server: ServerConfig{
			Listen:    defaultListen,
			Heartbeat: defaultHeartbeat,
		},
		Upload: UploadConfig{
			Dir: defaultUploadDir,
		},
		Client: ClientConfig{
			Target: defaultClientTarget,
		},
		EventStream: EventStreamConfig{
			Topic: defaultTopic,
		},
	}
}

func float64Ptr(f float64) *float64 {
	return &f
}
