package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"farmportal/internal/session"
	"farmportal/pkg/logging"
)

// SessionEndedError reports that a watched session ended.
type SessionEndedError struct {
	Event session.LogoutEvent
}

// Error implements the error interface.
func (e *SessionEndedError) Error() string {
	if e.Event.Err != nil {
		return fmt.Sprintf("session ended (%s): %v", e.Event.Reason, e.Event.Err)
	}
	return fmt.Sprintf("session ended (%s)", e.Event.Reason)
}

// Unwrap returns the error that ended the session, if any.
func (e *SessionEndedError) Unwrap() error {
	return e.Event.Err
}

// RunWatch keeps a stored session alive in the foreground: it restores the
// session, runs proactive renewal and heartbeats, follows logouts made by
// other processes and blocks until one of these happens:
//   - ctx is cancelled or SIGINT/SIGTERM arrives: returns nil
//   - the session ends: returns *SessionEndedError
//
// onReady, when set, runs once the session is restored.
func RunWatch(ctx context.Context, services *Services, onReady func(*session.Identity)) error {
	mgr := services.Session

	ended := make(chan session.LogoutEvent, 1)
	unsubscribe := mgr.Subscribe(func(event session.LogoutEvent) {
		select {
		case ended <- event:
		default:
		}
	})
	defer unsubscribe()

	identity, err := mgr.Restore(ctx)
	if err != nil {
		return err
	}

	if err := mgr.Start(); err != nil {
		return fmt.Errorf("failed to follow session changes: %w", err)
	}
	defer mgr.Close()

	if onReady != nil {
		onReady(identity)
	}
	logging.Info("Watch", "Session active for %s. Press Ctrl+C to stop.", identity.Email)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logging.Info("Watch", "Stopping, session kept")
		return nil
	case event := <-ended:
		return &SessionEndedError{Event: event}
	}
}
