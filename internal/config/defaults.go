package config

import "time"

const (
	// DefaultRequestTimeout bounds a single API request.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultRenewalTimeout bounds a single refresh call.
	DefaultRenewalTimeout = 15 * time.Second

	// DefaultProactiveInterval is how often the background loop checks expiry.
	DefaultProactiveInterval = time.Minute

	// DefaultProactiveMargin is the remaining lifetime below which the
	// background loop renews.
	DefaultProactiveMargin = 5 * time.Minute

	// DefaultRequestMargin is the remaining lifetime below which a request
	// renews before it is sent.
	DefaultRequestMargin = 30 * time.Second

	// DefaultHeartbeatInterval is the time between activity reports.
	DefaultHeartbeatInterval = 30 * time.Second

	// DefaultWatchDebounce coalesces bursts of session file events.
	DefaultWatchDebounce = 200 * time.Millisecond

	// DefaultWatchPollInterval is used when file notifications are unavailable.
	DefaultWatchPollInterval = 2 * time.Second
)

// GetDefaultConfig returns the built-in configuration. It has no server URL.
func GetDefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Timeout: DefaultRequestTimeout,
		},
		Session: SessionConfig{
			RenewalTimeout:    DefaultRenewalTimeout,
			ProactiveInterval: DefaultProactiveInterval,
			ProactiveMargin:   DefaultProactiveMargin,
			RequestMargin:     DefaultRequestMargin,
			WatchDebounce:     DefaultWatchDebounce,
			WatchPollInterval: DefaultWatchPollInterval,
		},
		Heartbeat: HeartbeatConfig{
			Enabled:  true,
			Interval: DefaultHeartbeatInterval,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
