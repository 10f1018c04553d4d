// Package heartbeat reports user activity to the portal while a session is
// open.
//
// A Beater posts the current page name to /auth/heartbeat immediately on
// Start and then every Interval until Stop. Failures are logged at debug
// level and otherwise ignored: an expired credential is handled by the
// session transport, and an unreachable server just misses a beat.
//
// Beater satisfies session.BackgroundTask, so a session.Manager starts and
// stops it together with the proactive renewal loop.
package heartbeat
