package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

var testSigningKey = []byte("session-test-key")

// signedToken returns an HS256 JWT expiring at exp.
func signedToken(t *testing.T, subject string, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": subject,
		"exp": exp.Unix(),
		"iat": exp.Add(-15 * time.Minute).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSigningKey)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

// statusError mimics a backend error that carries an HTTP status.
type statusError struct {
	status int
}

func (e *statusError) Error() string   { return fmt.Sprintf("backend returned %d", e.status) }
func (e *statusError) HTTPStatus() int { return e.status }

// fakeBackend implements Backend with overridable behavior.
type fakeBackend struct {
	refreshCalls atomic.Int32
	loginCalls   atomic.Int32
	logoutCalls  atomic.Int32
	meCalls      atomic.Int32

	mu        sync.Mutex
	refreshFn func(ctx context.Context, refreshToken string) (*oauth2.Token, error)
	loginFn   func(ctx context.Context, email, password string) (*LoginResult, error)
	logoutErr error
	meFn      func(ctx context.Context) (*Identity, error)
}

func (b *fakeBackend) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	b.refreshCalls.Add(1)
	b.mu.Lock()
	fn := b.refreshFn
	b.mu.Unlock()
	if fn == nil {
		return nil, &statusError{status: 401}
	}
	return fn(ctx, refreshToken)
}

func (b *fakeBackend) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	b.loginCalls.Add(1)
	b.mu.Lock()
	fn := b.loginFn
	b.mu.Unlock()
	if fn == nil {
		return nil, &statusError{status: 401}
	}
	return fn(ctx, email, password)
}

func (b *fakeBackend) Logout(ctx context.Context) error {
	b.logoutCalls.Add(1)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.logoutErr
}

func (b *fakeBackend) Me(ctx context.Context) (*Identity, error) {
	b.meCalls.Add(1)
	b.mu.Lock()
	fn := b.meFn
	b.mu.Unlock()
	if fn == nil {
		return nil, &statusError{status: 401}
	}
	return fn(ctx)
}

func (b *fakeBackend) setRefresh(fn func(ctx context.Context, refreshToken string) (*oauth2.Token, error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshFn = fn
}

// fakeTask records background task lifecycle calls.
type fakeTask struct {
	starts  atomic.Int32
	stops   atomic.Int32
	running atomic.Bool
}

func (f *fakeTask) Start() {
	f.starts.Add(1)
	f.running.Store(true)
}

func (f *fakeTask) Stop() {
	f.stops.Add(1)
	f.running.Store(false)
}

// eventRecorder collects logout events.
type eventRecorder struct {
	mu     sync.Mutex
	events []LogoutEvent
}

func (r *eventRecorder) record(ev LogoutEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) snapshot() []LogoutEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LogoutEvent(nil), r.events...)
}

// gatedStore pauses the first Get made after arm, once it has read the
// stored pair, until release is closed.
type gatedStore struct {
	Store

	armed   atomic.Bool
	reached chan struct{}
	release chan struct{}
}

func newGatedStore(inner Store) *gatedStore {
	return &gatedStore{
		Store:   inner,
		reached: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (s *gatedStore) arm() { s.armed.Store(true) }

func (s *gatedStore) Get() (*oauth2.Token, error) {
	token, err := s.Store.Get()
	if s.armed.CompareAndSwap(true, false) {
		close(s.reached)
		<-s.release
	}
	return token, err
}
