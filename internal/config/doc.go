// Package config loads the farmportal client configuration.
//
// Configuration lives in a single directory, ~/.config/farmportal by default
// or the directory given with --config-path. It holds:
//   - config.yaml, the settings below
//   - sessions/, the credential store (one file per portal server)
//
// Values are resolved in this order, later wins:
//  1. built-in defaults (GetDefaultConfig)
//  2. config.yaml
//  3. FARMPORTAL_* environment variables (ApplyEnv)
//  4. command-line flags, applied by the caller
//
// Example config.yaml:
//
//	server:
//	  url: https://farm.example.com
//	  timeout: 30s
//	session:
//	  renewalTimeout: 15s
//	  proactiveInterval: 1m
//	  proactiveMargin: 5m
//	  requestMargin: 30s
//	heartbeat:
//	  enabled: true
//	  interval: 30s
//	logging:
//	  level: info
//	  format: text
//
// A malformed file or an invalid value is reported as a ConfigurationError
// that names the file and suggests a fix.
package config
