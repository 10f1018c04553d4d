package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"farmportal/pkg/logging"
)

const (
	userConfigDir  = ".config/farmportal"
	configFileName = "config.yaml"
	sessionsDir    = "sessions"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "FARMPORTAL_"
)

// Package-level hooks replaced in tests.
var (
	osUserHomeDir = os.UserHomeDir
	lookupEnv     = os.LookupEnv
)

// GetDefaultConfigPath returns ~/.config/farmportal.
func GetDefaultConfigPath() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// GetDefaultConfigPathOrPanic is GetDefaultConfigPath for flag defaults.
func GetDefaultConfigPathOrPanic() string {
	path, err := GetDefaultConfigPath()
	if err != nil {
		panic(err)
	}
	return path
}

// ConfigFilePath returns the config.yaml path inside configPath.
func ConfigFilePath(configPath string) string {
	return filepath.Join(configPath, configFileName)
}

// SessionDir returns where session files live for cfg loaded from configPath.
func SessionDir(configPath string, cfg Config) string {
	if cfg.Session.Dir != "" {
		return expandHome(cfg.Session.Dir)
	}
	return filepath.Join(configPath, sessionsDir)
}

// LoadConfig loads configuration from configPath, applies environment
// overrides and validates the result. A missing config.yaml is not an error.
func LoadConfig(configPath string) (Config, error) {
	configFilePath := ConfigFilePath(configPath)
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.Debug("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
	case err != nil:
		return Config{}, &ConfigurationError{
			FilePath:    configFilePath,
			ErrorType:   ErrorTypeIO,
			Message:     "cannot read file",
			Details:     err.Error(),
			Suggestions: []string{"Check the file permissions"},
			Err:         err,
		}
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, &ConfigurationError{
				FilePath:   configFilePath,
				ErrorType:  ErrorTypeParse,
				Message:    "malformed YAML",
				Details:    err.Error(),
				LineNumber: yamlErrorLine(err),
				Suggestions: []string{
					"Durations are written like 30s, 5m or 1h",
					"Indent with spaces, not tabs",
				},
				Err: err,
			}
		}
		logging.Debug("ConfigLoader", "Loaded configuration from %s", configFilePath)
	}

	if err := ApplyEnv(&config); err != nil {
		return Config{}, err
	}

	if err := config.Validate(); err != nil {
		return Config{}, &ConfigurationError{
			FilePath:    configFilePath,
			ErrorType:   ErrorTypeValidation,
			Message:     err.Error(),
			Suggestions: []string{"Fix the listed fields in config.yaml or the FARMPORTAL_* environment"},
			Err:         err,
		}
	}

	return config, nil
}

// ApplyEnv overrides cfg with FARMPORTAL_* environment variables:
// SERVER, TIMEOUT, SESSION_DIR, HEARTBEAT, HEARTBEAT_INTERVAL, LOG_LEVEL
// and LOG_FORMAT.
func ApplyEnv(cfg *Config) error {
	if v, ok := env("SERVER"); ok {
		cfg.Server.URL = v
	}
	if v, ok := env("SESSION_DIR"); ok {
		cfg.Session.Dir = v
	}
	if v, ok := env("LOG_LEVEL"); ok {
		cfg.Logging.Level = v
	}
	if v, ok := env("LOG_FORMAT"); ok {
		cfg.Logging.Format = v
	}
	if v, ok := env("HEARTBEAT"); ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return envError("HEARTBEAT", v, err)
		}
		cfg.Heartbeat.Enabled = enabled
	}
	if err := envDuration("TIMEOUT", &cfg.Server.Timeout); err != nil {
		return err
	}
	return envDuration("HEARTBEAT_INTERVAL", &cfg.Heartbeat.Interval)
}

func env(name string) (string, bool) {
	v, ok := lookupEnv(EnvPrefix + name)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func envDuration(name string, target *time.Duration) error {
	v, ok := env(name)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return envError(name, v, err)
	}
	*target = d
	return nil
}

func envError(name, value string, err error) error {
	return &ConfigurationError{
		ErrorType: ErrorTypeEnv,
		Message:   fmt.Sprintf("invalid value %q for %s%s", value, EnvPrefix, name),
		Details:   err.Error(),
		Err:       err,
	}
}

// yamlErrorLine extracts the line number from a yaml.v3 error, or 0.
func yamlErrorLine(err error) int {
	var typeErr *yaml.TypeError
	msg := err.Error()
	if errors.As(err, &typeErr) && len(typeErr.Errors) > 0 {
		msg = typeErr.Errors[0]
	}
	idx := strings.Index(msg, "line ")
	if idx < 0 {
		return 0
	}
	rest := msg[idx+len("line "):]
	end := strings.IndexFunc(rest, func(r rune) bool { return r < '0' || r > '9' })
	if end == 0 {
		return 0
	}
	if end > 0 {
		rest = rest[:end]
	}
	n, _ := strconv.Atoi(rest)
	return n
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := osUserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
