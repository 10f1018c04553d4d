package app

import (
	"fmt"
	"io"
	"os"
	"strings"

	"farmportal/internal/config"
	"farmportal/pkg/logging"
)

// Application bootstraps farmportal: it resolves configuration, sets up
// logging and wires the session services.
//
// Example usage:
//
//	application, err := app.NewApplication(app.NewConfig("", "https://farm.example.com"))
//	if err != nil {
//	    return err
//	}
//	defer application.Close()
//	mgr := application.Services().Session
type Application struct {
	config   *Config
	settings config.Config
	services *Services
}

// NewApplication performs the bootstrap sequence:
//
//  1. Configures logging from the command-line flags
//  2. Loads config.yaml and FARMPORTAL_* overrides, then applies the flags
//  3. Reconfigures logging from the merged settings
//  4. Initializes the portal client, credential store and session manager
func NewApplication(cfg *Config) (*Application, error) {
	output := cfg.LogOutput
	if output == nil {
		output = os.Stderr
	}

	initLogging(cfg.LogLevel, cfg.LogFormat, cfg.Debug, output)

	if cfg.ConfigPath == "" {
		path, err := config.GetDefaultConfigPath()
		if err != nil {
			return nil, err
		}
		cfg.ConfigPath = path
	}

	var settings config.Config
	if cfg.Settings != nil {
		settings = *cfg.Settings
	} else {
		loaded, err := config.LoadConfig(cfg.ConfigPath)
		if err != nil {
			logging.Error("Bootstrap", err, "Failed to load configuration from %s", cfg.ConfigPath)
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		settings = loaded
	}

	applyFlags(cfg, &settings)
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	initLogging(settings.Logging.Level, settings.Logging.Format, cfg.Debug, output)

	services, err := InitializeServices(cfg, settings)
	if err != nil {
		return nil, err
	}

	return &Application{
		config:   cfg,
		settings: settings,
		services: services,
	}, nil
}

// Services returns the wired session services.
func (a *Application) Services() *Services {
	return a.services
}

// Settings returns the effective configuration.
func (a *Application) Settings() config.Config {
	return a.settings
}

// ConfigPath returns the configuration directory in use.
func (a *Application) ConfigPath() string {
	return a.config.ConfigPath
}

// Close stops background work. The stored session is kept.
func (a *Application) Close() {
	a.services.Close()
}

func applyFlags(cfg *Config, settings *config.Config) {
	if cfg.ServerURL != "" {
		settings.Server.URL = cfg.ServerURL
	}
	if cfg.LogLevel != "" {
		settings.Logging.Level = cfg.LogLevel
	}
	if cfg.LogFormat != "" {
		settings.Logging.Format = cfg.LogFormat
	}
	if cfg.Debug {
		settings.Logging.Level = "debug"
	}
	if cfg.DisableHeartbeat {
		settings.Heartbeat.Enabled = false
	}
}

func initLogging(levelName, format string, debug bool, output io.Writer) {
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		level = logging.LevelInfo
	}
	if debug {
		level = logging.LevelDebug
	}
	logging.Init(level, logging.Format(strings.ToLower(format)), output)
}
