package mock

import (
	"sync"
	"time"
)

// Clock is the time source a PortalServer issues and checks tokens against.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system time. It is what a PortalServer uses when its
// config names no Clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// MockClock is a Clock that stands still until a test moves it, so access
// tokens can be expired without sleeping.
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockClock returns a clock frozen at start, or at the current time when
// start is zero.
func NewMockClock(start time.Time) *MockClock {
	if start.IsZero() {
		start = time.Now()
	}
	return &MockClock{now: start}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set jumps the clock to t, which may be in the past.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}
