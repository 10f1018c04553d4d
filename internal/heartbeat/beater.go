package heartbeat

import (
	"context"
	"sync"
	"time"

	"farmportal/pkg/logging"
)

// DefaultInterval is the time between two heartbeats.
const DefaultInterval = 30 * time.Second

// Sender delivers one heartbeat. portal.Client implements it.
type Sender interface {
	Heartbeat(ctx context.Context, page string) error
}

// Beater sends heartbeats in the background.
type Beater struct {
	sender   Sender
	interval time.Duration

	mu      sync.Mutex
	page    string
	cancel  context.CancelFunc
	running bool
	sent    int
	failed  int
}

// New creates a stopped Beater reporting page. A non-positive interval
// selects DefaultInterval.
func New(sender Sender, page string, interval time.Duration) *Beater {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Beater{
		sender:   sender,
		interval: interval,
		page:     page,
	}
}

// SetPage changes the page reported by the following heartbeats.
func (b *Beater) SetPage(page string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.page = page
}

// Page returns the page currently reported.
func (b *Beater) Page() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.page
}

// Start sends a first heartbeat right away and then one per interval.
// Starting a running Beater does nothing.
func (b *Beater) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.running = true

	go b.run(ctx)
	logging.Debug("Heartbeat", "Started (interval %s)", b.interval)
}

// Stop ends the heartbeat loop. It does not wait for a heartbeat in flight;
// cancelling its context is enough.
func (b *Beater) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return
	}
	b.running = false
	b.cancel()
	logging.Debug("Heartbeat", "Stopped")
}

// Running reports whether the loop is active.
func (b *Beater) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Stats returns how many heartbeats were delivered and how many failed.
func (b *Beater) Stats() (sent, failed int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sent, b.failed
}

func (b *Beater) run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.beat(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.beat(ctx)
		}
	}
}

func (b *Beater) beat(ctx context.Context) {
	// A beat never outlives the next one.
	beatCtx, cancel := context.WithTimeout(ctx, b.interval)
	defer cancel()

	page := b.Page()
	err := b.sender.Heartbeat(beatCtx, page)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.failed++
		if ctx.Err() == nil {
			logging.Debug("Heartbeat", "Heartbeat for %q failed: %v", page, err)
		}
		return
	}
	b.sent++
}
