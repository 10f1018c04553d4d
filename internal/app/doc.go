// Package app bootstraps farmportal and wires one client session.
//
// The bootstrap sequence is:
//
//  1. Configure logging from the command-line flags
//  2. Load config.yaml from the configuration directory and apply
//     FARMPORTAL_* environment overrides, then the flags
//  3. Reconfigure logging from the merged settings
//  4. Initialize services
//
// # Services
//
// InitializeServices builds, in order:
//
//   - portal.Client for the configured server
//   - session.FileStore under the session directory, keyed by server
//   - heartbeat.Beater, when heartbeats are enabled
//   - session.Manager with the client as its backend
//
// The client is then bound to the manager's HTTP client, so every API call
// carries the stored credential and recovers from expiry the same way.
//
// # Watch Mode
//
// RunWatch keeps a stored session alive in the foreground until interrupted
// or until the session ends, including logouts made by another process.
package app
