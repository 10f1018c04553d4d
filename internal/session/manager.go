package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"

	"farmportal/pkg/logging"
)

// LoginResult is what the backend returns for a successful login.
type LoginResult struct {
	Token *oauth2.Token
	User  *Identity
}

// Backend is the part of the portal API the session needs.
type Backend interface {
	Refresher
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	Logout(ctx context.Context) error
	Me(ctx context.Context) (*Identity, error)
}

// BackgroundTask is work that runs only while a session exists, such as the
// activity heartbeat. Start and Stop must be idempotent and Stop must not
// block on in-flight requests.
type BackgroundTask interface {
	Start()
	Stop()
}

// LogoutReason tells subscribers why the session ended.
type LogoutReason string

const (
	// ReasonLogout is an explicit Logout call in this process.
	ReasonLogout LogoutReason = "logout"
	// ReasonSessionExpired is a 401 that renewal could not recover from.
	ReasonSessionExpired LogoutReason = "session_expired"
	// ReasonRemoteLogout is a session cleared by another process.
	ReasonRemoteLogout LogoutReason = "remote_logout"
	// ReasonRestoreFailed is a stored session the backend no longer accepts.
	ReasonRestoreFailed LogoutReason = "restore_failed"
)

// LogoutEvent is delivered to subscribers once per logged-in period, when
// the session ends. The application routes the user back to login.
type LogoutEvent struct {
	Reason LogoutReason
	Err    error
	At     time.Time
}

// Config wires a Manager.
type Config struct {
	Store   Store
	Backend Backend

	// Heartbeat runs while logged in. Optional.
	Heartbeat BackgroundTask

	Clock Clock

	RenewalTimeout    time.Duration
	ProactiveInterval time.Duration
	ProactiveMargin   time.Duration
	RequestMargin     time.Duration

	// SkipPaths overrides DefaultSkipPaths for the transport.
	SkipPaths []string
}

// Manager owns one client session: login, logout, background renewal and
// reconciliation with other processes sharing the store.
type Manager struct {
	store       Store
	backend     Backend
	clock       Clock
	heartbeat   BackgroundTask
	coordinator *Coordinator
	loop        *RenewalLoop
	sync        *Synchronizer

	requestMargin time.Duration
	skipPaths     []string

	// loggedIn is true between a login (local or observed) and the logout
	// event that ends it. It makes the event fire once per session.
	loggedIn atomic.Bool

	// lifecycleMu orders a login's commit against teardown.
	lifecycleMu sync.Mutex

	subMu  sync.Mutex
	subs   map[int]func(LogoutEvent)
	nextID int
}

// NewManager creates a manager. Call Start to begin background work for an
// existing session and to follow changes made by other processes.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, errors.New("session manager requires a store")
	}
	if cfg.Backend == nil {
		return nil, errors.New("session manager requires a backend")
	}
	if cfg.Clock == nil {
		cfg.Clock = RealClock{}
	}

	coordinator := NewCoordinator(cfg.Store, cfg.Backend, cfg.RenewalTimeout, cfg.Clock)

	m := &Manager{
		store:         cfg.Store,
		backend:       cfg.Backend,
		clock:         cfg.Clock,
		heartbeat:     cfg.Heartbeat,
		coordinator:   coordinator,
		loop:          NewRenewalLoop(coordinator, cfg.Store, cfg.Clock, cfg.ProactiveInterval, cfg.ProactiveMargin),
		requestMargin: cfg.RequestMargin,
		skipPaths:     cfg.SkipPaths,
		subs:          make(map[int]func(LogoutEvent)),
	}
	m.sync = NewSynchronizer(cfg.Store, m.onStorePresent, m.onStoreRemoved)

	m.loggedIn.Store(m.IsAuthenticated())
	return m, nil
}

// Start follows store changes and, when a session is already stored,
// starts background renewal.
func (m *Manager) Start() error {
	if err := m.sync.Start(); err != nil {
		return fmt.Errorf("failed to follow session changes: %w", err)
	}
	if m.IsAuthenticated() {
		m.loggedIn.Store(true)
		m.startBackground()
	}
	return nil
}

// Close stops all background work. The stored session is kept.
func (m *Manager) Close() {
	m.sync.Stop()
	m.stopBackground()
}

// Login authenticates with the backend, stores the new session and starts
// background renewal.
func (m *Manager) Login(ctx context.Context, email, password string) (*Identity, error) {
	result, err := m.backend.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if result == nil || result.Token == nil || result.Token.AccessToken == "" {
		return nil, errors.New("login response carried no access credential")
	}

	token := cloneToken(result.Token)
	if token.TokenType == "" {
		token.TokenType = "Bearer"
	}

	m.lifecycleMu.Lock()
	m.coordinator.Invalidate()
	m.loggedIn.Store(true)
	if err := m.store.Set(token); err != nil {
		m.loggedIn.Store(false)
		m.lifecycleMu.Unlock()
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	identity := cloneIdentity(result.User)
	if identity != nil {
		if err := m.store.SetIdentity(identity); err != nil {
			logging.Warn("Session", "Failed to cache identity: %v", err)
		}
	}

	m.startBackground()
	m.lifecycleMu.Unlock()

	if identity != nil {
		logging.Info("Session", "Logged in as %s", identity.Email)
	} else {
		logging.Info("Session", "Logged in")
	}
	return identity, nil
}

// Logout ends the session. The backend is told on a best-effort basis; the
// local session is always cleared.
func (m *Manager) Logout(ctx context.Context) {
	if m.IsAuthenticated() {
		if err := m.backend.Logout(ctx); err != nil {
			logging.Debug("Session", "Backend logout failed, clearing local session anyway: %v", err)
		}
	}
	m.teardown(ReasonLogout, nil)
	logging.Info("Session", "Logged out")
}

// IsAuthenticated reports whether an access credential is stored.
func (m *Manager) IsAuthenticated() bool {
	token, err := m.store.Get()
	return err == nil && hasAccess(token)
}

// Restore validates a stored session against the backend and refreshes the
// cached identity. A session the backend rejects is cleared; an unreachable
// backend leaves it in place.
func (m *Manager) Restore(ctx context.Context) (*Identity, error) {
	if !m.IsAuthenticated() {
		return nil, ErrNotAuthenticated
	}

	identity, err := m.backend.Me(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var expired *SessionExpiredError
		if !errors.As(err, &expired) && isRejection(err) {
			m.teardown(ReasonRestoreFailed, err)
		}
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}

	identity = cloneIdentity(identity)
	if identity != nil {
		if err := m.store.SetIdentity(identity); err != nil {
			logging.Warn("Session", "Failed to cache identity: %v", err)
		}
	}

	m.loggedIn.Store(true)
	m.startBackground()
	return identity, nil
}

// Identity returns the cached identity, or nil when none is stored.
func (m *Manager) Identity() (*Identity, error) {
	return m.store.Identity()
}

// Token returns the stored credential pair, or nil when logged out.
func (m *Manager) Token() (*oauth2.Token, error) {
	return m.store.Get()
}

// Coordinator exposes the renewal coordinator, mainly for status output.
func (m *Manager) Coordinator() *Coordinator {
	return m.coordinator
}

// Transport wraps base with credential handling bound to this session.
func (m *Manager) Transport(base http.RoundTripper) *Transport {
	return NewTransport(TransportConfig{
		Base:        base,
		Store:       m.store,
		Coordinator: m.coordinator,
		Clock:       m.clock,
		Margin:      m.requestMargin,
		SkipPaths:   m.skipPaths,
		OnSessionExpired: func(sent string, err error) bool {
			return m.endSession(ReasonSessionExpired, err, sent)
		},
	})
}

// HTTPClient returns a client whose requests go through Transport.
func (m *Manager) HTTPClient(base http.RoundTripper, timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: m.Transport(base),
		Timeout:   timeout,
	}
}

// Subscribe registers fn for logout events. fn runs on the goroutine that
// ended the session and must not block.
func (m *Manager) Subscribe(fn func(LogoutEvent)) (unsubscribe func()) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	id := m.nextID
	m.nextID++
	m.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subs, id)
			m.subMu.Unlock()
		})
	}
}

// RenewalLoopRunning reports whether proactive renewal is active.
func (m *Manager) RenewalLoopRunning() bool {
	return m.loop.Running()
}

// teardown ends the local session: background work stops, the store is
// cleared and subscribers are told, once.
func (m *Manager) teardown(reason LogoutReason, cause error) {
	m.endSession(reason, cause, "")
}

// endSession is teardown limited to the session holding the access
// credential expected. It returns false, leaving the store alone, when a
// login or logout has already replaced that session. An empty expected
// ends whatever session exists.
func (m *Manager) endSession(reason LogoutReason, cause error, expected string) bool {
	m.lifecycleMu.Lock()
	if expected != "" {
		if token, err := m.store.Get(); err == nil && (!hasAccess(token) || token.AccessToken != expected) {
			m.lifecycleMu.Unlock()
			logging.Debug("Session", "Session already replaced, not ending it")
			return false
		}
	}

	m.coordinator.Invalidate()
	m.stopBackground()

	wasLoggedIn := m.loggedIn.CompareAndSwap(true, false)

	if err := m.store.Clear(); err != nil {
		logging.Error("Session", err, "Failed to clear session store")
	}
	m.lifecycleMu.Unlock()

	if wasLoggedIn {
		m.emit(LogoutEvent{Reason: reason, Err: cause, At: m.clock.Now()})
	}
	return true
}

// onStorePresent handles a stored credential appearing or changing,
// possibly written by another process.
func (m *Manager) onStorePresent() {
	if m.loggedIn.CompareAndSwap(false, true) {
		logging.Info("Session", "Session started in another process")
	}
	m.startBackground()
}

// onStoreRemoved handles the stored credential disappearing. When this
// manager did not clear it itself, another process logged out.
func (m *Manager) onStoreRemoved() {
	m.stopBackground()
	if m.loggedIn.CompareAndSwap(true, false) {
		logging.Info("Session", "Session ended in another process")
		m.emit(LogoutEvent{Reason: ReasonRemoteLogout, At: m.clock.Now()})
	}
}

func (m *Manager) startBackground() {
	m.loop.Start()
	if m.heartbeat != nil {
		m.heartbeat.Start()
	}
}

func (m *Manager) stopBackground() {
	if m.heartbeat != nil {
		m.heartbeat.Stop()
	}
	m.loop.Stop()
}

func (m *Manager) emit(event LogoutEvent) {
	m.subMu.Lock()
	subs := make([]func(LogoutEvent), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.subMu.Unlock()

	for _, fn := range subs {
		fn(event)
	}
}
