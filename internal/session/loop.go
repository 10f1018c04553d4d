package session

import (
	"context"
	"sync"
	"time"

	"farmportal/pkg/logging"
)

const (
	// DefaultProactiveInterval is how often the renewal loop checks the
	// stored credential.
	DefaultProactiveInterval = 60 * time.Second

	// DefaultProactiveMargin is how far ahead of expiry the loop renews.
	DefaultProactiveMargin = 5 * time.Minute
)

// RenewalLoop periodically renews the stored credential before it expires,
// so that interactive requests rarely meet an expired one.
//
// Failures are logged and swallowed; the next tick tries again. A session
// that really ended is detected by the transport on its next 401.
type RenewalLoop struct {
	coordinator *Coordinator
	store       Store
	clock       Clock
	interval    time.Duration
	margin      time.Duration

	// inflight tracks renewals started by ticks.
	inflight sync.WaitGroup

	mu         sync.Mutex
	running    bool
	cancel     context.CancelFunc
	done       chan struct{}
	generation int
}

// NewRenewalLoop creates a stopped loop. Non-positive durations select the
// defaults.
func NewRenewalLoop(coordinator *Coordinator, store Store, clock Clock, interval, margin time.Duration) *RenewalLoop {
	if interval <= 0 {
		interval = DefaultProactiveInterval
	}
	if margin <= 0 {
		margin = DefaultProactiveMargin
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &RenewalLoop{
		coordinator: coordinator,
		store:       store,
		clock:       clock,
		interval:    interval,
		margin:      margin,
	}
}

// Start launches the loop. Calling Start on a running loop does nothing, so
// there is never more than one ticker.
func (l *RenewalLoop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	l.running = true
	l.generation++

	go l.run(ctx, l.done)
	logging.Debug("RenewalLoop", "Started (interval %s, margin %s)", l.interval, l.margin)
}

// Stop halts the loop and waits for its goroutines to return. Stopping a
// stopped loop does nothing.
func (l *RenewalLoop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	l.cancel()
	done := l.done
	l.mu.Unlock()

	<-done
	l.inflight.Wait()
	logging.Debug("RenewalLoop", "Stopped")
}

// Running reports whether the loop is active.
func (l *RenewalLoop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *RenewalLoop) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

// tick starts a renewal when the stored access credential expires within
// the margin. It never waits for the renewal.
func (l *RenewalLoop) tick(ctx context.Context) {
	token, err := l.store.Get()
	if err != nil {
		logging.Warn("RenewalLoop", "Failed to read stored credential: %v", err)
		return
	}
	if !hasAccess(token) {
		return
	}
	if !IsExpiringSoon(token.AccessToken, l.margin, l.clock.Now()) {
		return
	}

	logging.Debug("RenewalLoop", "Credential expires within %s, renewing", l.margin)
	l.inflight.Add(1)
	go func() {
		defer l.inflight.Done()
		if _, err := l.coordinator.Renew(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			logging.Warn("RenewalLoop", "Proactive renewal failed, will retry on next tick: %v", err)
		}
	}()
}
