package config

import "time"

// Config is the top-level configuration structure for farmportal.
type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	Session   SessionConfig   `yaml:"session" json:"session"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat" json:"heartbeat"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// ServerConfig locates the portal API.
type ServerConfig struct {
	URL     string        `yaml:"url,omitempty" json:"url,omitempty"`         // Portal URL; /api is appended
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"` // Per-request timeout (default: 30s)
}

// SessionConfig tunes credential storage and renewal.
type SessionConfig struct {
	// Dir holds the session files. Empty means <config dir>/sessions.
	Dir string `yaml:"dir,omitempty" json:"dir,omitempty"`

	RenewalTimeout    time.Duration `yaml:"renewalTimeout,omitempty" json:"renewalTimeout,omitempty"`       // Bound on one refresh call (default: 15s)
	ProactiveInterval time.Duration `yaml:"proactiveInterval,omitempty" json:"proactiveInterval,omitempty"` // Background check period (default: 1m)
	ProactiveMargin   time.Duration `yaml:"proactiveMargin,omitempty" json:"proactiveMargin,omitempty"`     // Renew in background below this (default: 5m)
	RequestMargin     time.Duration `yaml:"requestMargin,omitempty" json:"requestMargin,omitempty"`         // Renew before a request below this (default: 30s)

	WatchDebounce     time.Duration `yaml:"watchDebounce,omitempty" json:"watchDebounce,omitempty"`
	WatchPollInterval time.Duration `yaml:"watchPollInterval,omitempty" json:"watchPollInterval,omitempty"`
}

// HeartbeatConfig controls activity reporting.
type HeartbeatConfig struct {
	Enabled  bool          `yaml:"enabled" json:"enabled"`
	Interval time.Duration `yaml:"interval,omitempty" json:"interval,omitempty"` // default: 30s
}

// LoggingConfig selects log verbosity and output format.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty" json:"level,omitempty"`   // debug, info, warn, error
	Format string `yaml:"format,omitempty" json:"format,omitempty"` // text, json
}
