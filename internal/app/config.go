package app

import (
	"io"

	"farmportal/internal/config"
)

// Config holds the command-line side of the application configuration.
// Non-empty fields override config.yaml and the environment.
type Config struct {
	// ConfigPath is the configuration directory. Empty selects
	// ~/.config/farmportal.
	ConfigPath string

	// ServerURL overrides server.url.
	ServerURL string

	// LogLevel and LogFormat override the logging section.
	LogLevel  string
	LogFormat string

	// Debug forces debug logging.
	Debug bool

	// Page is the activity name sent with heartbeats.
	Page string

	// DisableHeartbeat turns heartbeats off for this run.
	DisableHeartbeat bool

	// LogOutput receives log lines. Defaults to os.Stderr.
	LogOutput io.Writer

	// Settings, when set, is used instead of loading config.yaml.
	Settings *config.Config
}

// NewConfig creates a new application configuration
func NewConfig(configPath, serverURL string) *Config {
	return &Config{
		ConfigPath: configPath,
		ServerURL:  serverURL,
	}
}
