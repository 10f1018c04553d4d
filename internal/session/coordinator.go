package session

import (
	"context"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"farmportal/pkg/logging"
)

// DefaultRenewalTimeout bounds a single refresh call.
const DefaultRenewalTimeout = 15 * time.Second

// renewKey is the only singleflight key: there is one session per store.
const renewKey = "renew"

// Refresher exchanges a refresh credential for a new credential pair.
// An empty RefreshToken in the result means the backend did not rotate it.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// CoordinatorStats reports renewal activity.
type CoordinatorStats struct {
	// Calls is the number of refresh calls sent to the backend.
	Calls int64
	// Joined is the number of Renew callers that shared another caller's
	// in-flight renewal.
	Joined int64
	// Failures is the number of refresh calls that failed.
	Failures int64
	// LastRenewal is when the last successful renewal was committed.
	LastRenewal time.Time
}

// Coordinator serializes credential renewal. While a renewal is in flight,
// every further Renew call waits for it and receives its outcome instead of
// starting another one. The new pair is committed to the store before any
// waiter is released.
type Coordinator struct {
	store     Store
	refresher Refresher
	timeout   time.Duration
	clock     Clock

	group singleflight.Group

	mu    sync.Mutex
	stats CoordinatorStats

	// epoch changes on login and teardown. A renewal that started in an
	// older epoch must not commit.
	epoch uint64
}

// NewCoordinator creates a coordinator. A non-positive timeout selects
// DefaultRenewalTimeout and a nil clock selects RealClock.
func NewCoordinator(store Store, refresher Refresher, timeout time.Duration, clock Clock) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultRenewalTimeout
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &Coordinator{
		store:     store,
		refresher: refresher,
		timeout:   timeout,
		clock:     clock,
	}
}

// Renew obtains a new credential pair, joining an in-flight renewal when
// there is one.
//
// Cancelling ctx releases this caller only; the shared refresh call keeps
// running for the other waiters and is bounded by the coordinator timeout.
// Failures are returned as *RenewalError.
func (c *Coordinator) Renew(ctx context.Context) (*oauth2.Token, error) {
	ch := c.group.DoChan(renewKey, func() (interface{}, error) {
		return c.renew(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.mu.Lock()
			c.stats.Joined++
			c.mu.Unlock()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneToken(res.Val.(*oauth2.Token)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// renewAfter renews unless the stored access credential already differs
// from stale, which means another renewal or a new login committed a pair
// after stale was sent.
func (c *Coordinator) renewAfter(ctx context.Context, stale string) (*oauth2.Token, error) {
	current, err := c.store.Get()
	if err == nil && hasAccess(current) && current.AccessToken != stale {
		logging.Debug("Renewal", "Credential already replaced since the failed request, skipping renewal")
		return current, nil
	}
	return c.Renew(ctx)
}

func (c *Coordinator) renew(ctx context.Context) (*oauth2.Token, error) {
	// The epoch is taken before the store read so a logout or login landing
	// between the two still discards the result.
	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()

	current, err := c.store.Get()
	if err != nil {
		return nil, &RenewalError{Kind: RenewalUnavailable, Err: err}
	}
	if current == nil || current.RefreshToken == "" {
		logging.Debug("Renewal", "No refresh credential stored")
		return nil, &RenewalError{Kind: RenewalRejected, Err: ErrNoRenewalCredential}
	}

	c.mu.Lock()
	c.stats.Calls++
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	logging.Debug("Renewal", "Refreshing session credentials")
	renewed, err := c.refresher.Refresh(ctx, current.RefreshToken)
	if err == nil && (renewed == nil || renewed.AccessToken == "") {
		err = errEmptyRenewal
	}
	if err != nil {
		c.mu.Lock()
		c.stats.Failures++
		c.mu.Unlock()

		renewalErr := classifyRenewalError(err)
		logging.Warn("Renewal", "Session renewal failed (%s): %v", renewalErr.Kind, err)
		return nil, renewalErr
	}

	next := &oauth2.Token{
		AccessToken:  renewed.AccessToken,
		RefreshToken: renewed.RefreshToken,
		TokenType:    renewed.TokenType,
	}
	if next.RefreshToken == "" {
		next.RefreshToken = current.RefreshToken
	}
	if next.TokenType == "" {
		next.TokenType = "Bearer"
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		logging.Debug("Renewal", "Session changed during renewal, discarding renewed credentials")
		return nil, &RenewalError{Kind: RenewalRejected, Err: ErrSessionChanged}
	}
	if err := c.store.Set(next); err != nil {
		c.mu.Unlock()
		return nil, &RenewalError{Kind: RenewalUnavailable, Err: err}
	}
	c.stats.LastRenewal = c.clock.Now()
	c.mu.Unlock()

	logging.Info("Renewal", "Session credentials renewed")
	return next, nil
}

// Invalidate makes any in-flight renewal discard its result instead of
// committing it. It is called when the session is replaced or ended.
func (c *Coordinator) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
}

// Stats returns a snapshot of renewal activity.
func (c *Coordinator) Stats() CoordinatorStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
