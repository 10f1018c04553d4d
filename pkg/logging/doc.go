// Package logging provides subsystem-tagged, leveled logging for farmportal
// on top of Go's standard slog package.
//
// Every entry carries a subsystem attribute so that output from the
// credential store, the renewal coordinator and the CLI can be told apart:
//
//	logging.Init(logging.LevelInfo, logging.FormatText, os.Stderr)
//
//	logging.Info("Session", "Logged in as %s", email)
//	logging.Debug("Renewal", "Renewal already in flight, waiting")
//	logging.Warn("Sync", "fsnotify not available, falling back to polling")
//	logging.Error("Transport", err, "Renewal failed, tearing down session")
//
// Init also installs the logger as slog's default, so packages that emit
// structured audit events with slog directly end up in the same stream.
//
// Credential values must never be passed to this package.
package logging
