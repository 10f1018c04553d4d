package session

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"farmportal/internal/testing/mock"
)

// apiServer accepts only bearer credentials it was told are valid.
type apiServer struct {
	*httptest.Server

	mu       sync.Mutex
	valid    map[string]bool
	bodies   []string
	requests atomic.Int32
	lastAuth atomic.Value
}

func newAPIServer(t *testing.T, valid ...string) *apiServer {
	t.Helper()
	s := &apiServer{valid: make(map[string]bool)}
	for _, v := range valid {
		s.valid[v] = true
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

func (s *apiServer) allow(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.valid[token] = true
}

func (s *apiServer) handle(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)
	auth := r.Header.Get("Authorization")
	s.lastAuth.Store(auth)

	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	ok := strings.HasPrefix(auth, "Bearer ") && s.valid[strings.TrimPrefix(auth, "Bearer ")]
	s.bodies = append(s.bodies, string(body))
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"message":"Token expired","code":"TOKEN_EXPIRED"}`)
		return
	}
	_, _ = io.WriteString(w, `{"rooms":[]}`)
}

func renewingBackend(server *apiServer, next string) *fakeBackend {
	backend := &fakeBackend{}
	backend.setRefresh(func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
		server.allow(next)
		return &oauth2.Token{AccessToken: next, RefreshToken: refreshToken + "-rotated"}, nil
	})
	return backend
}

// longLived returns a credential the expiry check considers valid for an hour.
func longLived(t *testing.T, subject string) string {
	return signedToken(t, subject, time.Now().Add(time.Hour))
}

func newTestTransport(store Store, backend Backend, clock Clock, onExpired func(error)) *Transport {
	cfg := TransportConfig{
		Store:       store,
		Coordinator: NewCoordinator(store, backend, time.Second, clock),
		Clock:       clock,
	}
	if onExpired != nil {
		cfg.OnSessionExpired = func(_ string, err error) bool {
			onExpired(err)
			return true
		}
	}
	return NewTransport(cfg)
}

func TestTransport_AttachesBearerAndRequestID(t *testing.T) {
	a0 := longLived(t, "a0")
	server := newAPIServer(t, a0)
	store := storeWithPair(t, a0, "r0")

	var requestID string
	base := roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		requestID = req.Header.Get(RequestIDHeader)
		return http.DefaultTransport.RoundTrip(req)
	})

	tr := NewTransport(TransportConfig{
		Base:        base,
		Store:       store,
		Coordinator: NewCoordinator(store, &fakeBackend{}, time.Second, nil),
	})

	req, err := http.NewRequest(http.MethodGet, server.URL+"/api/rooms", nil)
	require.NoError(t, err)

	resp, err := (&http.Client{Transport: tr}).Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Bearer "+a0, server.lastAuth.Load())
	assert.NotEmpty(t, requestID)
	assert.Empty(t, req.Header.Get("Authorization"), "the caller's request must not be mutated")
}

func TestTransport_NoCredentialSendsUnauthenticated(t *testing.T) {
	server := newAPIServer(t)
	store := NewMemoryStore()
	backend := &fakeBackend{}

	var expired atomic.Int32
	tr := newTestTransport(store, backend, nil, func(error) { expired.Add(1) })

	resp, err := (&http.Client{Transport: tr}).Get(server.URL + "/api/rooms")
	require.NoError(t, err)
	defer resp.Body.Close()

	// A request that carried no credential gets the backend's answer as is.
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "", server.lastAuth.Load())
	assert.Equal(t, int32(0), backend.refreshCalls.Load())
	assert.Equal(t, int32(0), expired.Load())
}

// Scenario: the stored credential expires in 10s and the request margin is
// 30s, so the request waits for a renewal before it is sent.
func TestTransport_RenewsBeforeSendingWhenExpiring(t *testing.T) {
	clock := mock.NewMockClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	soon := signedToken(t, "u", clock.Now().Add(10*time.Second))
	fresh := signedToken(t, "u", clock.Now().Add(15*time.Minute))

	server := newAPIServer(t) // neither credential is valid yet
	store := storeWithPair(t, soon, "r0")
	backend := renewingBackend(server, fresh)

	tr := newTestTransport(store, backend, clock, nil)

	resp, err := (&http.Client{Transport: tr}).Get(server.URL + "/api/rooms")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), backend.refreshCalls.Load())
	assert.Equal(t, int32(1), server.requests.Load(), "the request must only be sent after renewal")
	assert.Equal(t, "Bearer "+fresh, server.lastAuth.Load())
}

func TestTransport_PreRequestRenewalFailureStillSends(t *testing.T) {
	clock := mock.NewMockClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	soon := signedToken(t, "u", clock.Now().Add(10*time.Second))

	server := newAPIServer(t, soon)
	store := storeWithPair(t, soon, "r0")
	backend := &fakeBackend{}
	backend.setRefresh(func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
		return nil, errors.New("connection refused")
	})

	tr := newTestTransport(store, backend, clock, nil)

	resp, err := (&http.Client{Transport: tr}).Get(server.URL + "/api/rooms")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Bearer "+soon, server.lastAuth.Load())
}

func TestTransport_RecoversFrom401AndReplaysBody(t *testing.T) {
	a1 := longLived(t, "a1")
	server := newAPIServer(t)
	store := storeWithPair(t, longLived(t, "a0"), "r0")
	backend := renewingBackend(server, a1)

	tr := newTestTransport(store, backend, nil, nil)

	resp, err := (&http.Client{Transport: tr}).Post(server.URL+"/api/rooms", "application/json",
		strings.NewReader(`{"name":"Veg A"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode, "the caller never sees the first 401")
	assert.Equal(t, int32(1), backend.refreshCalls.Load())
	assert.Equal(t, int32(2), server.requests.Load())

	server.mu.Lock()
	assert.Equal(t, []string{`{"name":"Veg A"}`, `{"name":"Veg A"}`}, server.bodies)
	server.mu.Unlock()

	stored, _ := store.Get()
	assert.Equal(t, a1, stored.AccessToken)
	assert.Equal(t, "r0-rotated", stored.RefreshToken)
}

func TestTransport_RetriesOnlyOnce(t *testing.T) {
	server := newAPIServer(t)
	store := storeWithPair(t, longLived(t, "a0"), "r0")

	// The renewal succeeds but the server keeps rejecting everything.
	backend := &fakeBackend{}
	backend.setRefresh(func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
		return &oauth2.Token{AccessToken: longLived(t, "a1"), RefreshToken: "r1"}, nil
	})

	var expired atomic.Int32
	tr := newTestTransport(store, backend, nil, func(error) { expired.Add(1) })

	resp, err := (&http.Client{Transport: tr}).Get(server.URL + "/api/rooms")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, int32(1), backend.refreshCalls.Load(), "no second renewal")
	assert.Equal(t, int32(2), server.requests.Load(), "no second replay")
	assert.Equal(t, int32(0), expired.Load(), "a final 401 after a good renewal does not end the session")
}

func TestTransport_RenewalFailureEndsSession(t *testing.T) {
	server := newAPIServer(t)
	store := storeWithPair(t, longLived(t, "a0"), "r0")
	backend := &fakeBackend{}
	backend.setRefresh(func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
		return nil, &statusError{status: http.StatusUnauthorized}
	})

	var expiredErr error
	tr := newTestTransport(store, backend, nil, func(err error) {
		expiredErr = err
		_ = store.Clear()
	})

	_, err := (&http.Client{Transport: tr}).Get(server.URL + "/api/rooms")
	require.Error(t, err)

	var sessionErr *SessionExpiredError
	require.ErrorAs(t, err, &sessionErr)
	assert.True(t, IsRenewalRejected(err))
	assert.True(t, IsRenewalRejected(expiredErr))
	assert.Equal(t, int32(1), server.requests.Load(), "a failed renewal is not replayed")
}

func TestTransport_RenewalFailureAfterNewLoginReplays(t *testing.T) {
	b0 := longLived(t, "b0")
	server := newAPIServer(t, b0)
	store := storeWithPair(t, longLived(t, "a0"), "r0")

	backend := &fakeBackend{}
	backend.setRefresh(func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
		// A login lands while the old pair is being refused.
		require.NoError(t, store.Set(&oauth2.Token{AccessToken: b0, RefreshToken: "s0", TokenType: "Bearer"}))
		return nil, &statusError{status: http.StatusUnauthorized}
	})

	var expired atomic.Int32
	tr := newTestTransport(store, backend, nil, func(error) { expired.Add(1) })

	resp, err := (&http.Client{Transport: tr}).Get(server.URL + "/api/rooms")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Bearer "+b0, server.lastAuth.Load())
	assert.Equal(t, int32(0), expired.Load(), "the new session is not ended")

	token, _ := store.Get()
	require.NotNil(t, token)
	assert.Equal(t, b0, token.AccessToken)
}

func TestTransport_RenewalFailureAfterSessionEndedReportsExpiry(t *testing.T) {
	server := newAPIServer(t)
	store := storeWithPair(t, longLived(t, "a0"), "r0")

	backend := &fakeBackend{}
	backend.setRefresh(func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
		// Another request already ended the session.
		require.NoError(t, store.Clear())
		return nil, &statusError{status: http.StatusUnauthorized}
	})

	var expired atomic.Int32
	tr := newTestTransport(store, backend, nil, func(error) { expired.Add(1) })

	_, err := (&http.Client{Transport: tr}).Get(server.URL + "/api/rooms")

	var sessionErr *SessionExpiredError
	require.ErrorAs(t, err, &sessionErr)
	assert.Equal(t, int32(0), expired.Load(), "the session is not ended twice")
}

func TestTransport_SkipsAuthEndpoints(t *testing.T) {
	server := newAPIServer(t)
	store := storeWithPair(t, "a0", "r0")
	backend := renewingBackend(server, "a1")

	tr := newTestTransport(store, backend, nil, nil)

	for _, path := range []string{"/api/auth/login", "/api/auth/refresh", "/api/auth/logout"} {
		resp, err := (&http.Client{Transport: tr}).Post(server.URL+path, "application/json", strings.NewReader(`{}`))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}

	assert.Equal(t, int32(0), backend.refreshCalls.Load())
}

func TestTransport_CallerCancelDoesNotEndSession(t *testing.T) {
	server := newAPIServer(t)
	store := storeWithPair(t, longLived(t, "a0"), "r0")

	backend := &fakeBackend{}
	backend.setRefresh(func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	var expired atomic.Int32
	tr := NewTransport(TransportConfig{
		Store:            store,
		Coordinator:      NewCoordinator(store, backend, 200*time.Millisecond, nil),
		OnSessionExpired: func(string, error) bool { expired.Add(1); return true },
	})

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/rooms", nil)

	go func() {
		assert.Eventually(t, func() bool { return backend.refreshCalls.Load() == 1 }, time.Second, time.Millisecond)
		cancel()
	}()

	_, err := (&http.Client{Transport: tr}).Do(req)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), expired.Load())
}

// Scenario: five requests fire together with a credential the server no
// longer accepts. One renewal happens and every request succeeds on replay.
func TestTransport_ConcurrentUnauthorizedShareOneRenewal(t *testing.T) {
	a1 := longLived(t, "a1")
	server := newAPIServer(t)
	store := storeWithPair(t, longLived(t, "revoked"), "r0")

	backend := &fakeBackend{}
	backend.setRefresh(func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
		time.Sleep(50 * time.Millisecond)
		server.allow(a1)
		return &oauth2.Token{AccessToken: a1, RefreshToken: "r1"}, nil
	})

	client := &http.Client{Transport: newTestTransport(store, backend, nil, nil)}

	const requests = 5
	statuses := make([]int, requests)
	errs := make([]error, requests)

	var start, wg sync.WaitGroup
	start.Add(1)
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start.Wait()
			resp, err := client.Get(server.URL + "/api/rooms")
			if err != nil {
				errs[i] = err
				return
			}
			statuses[i] = resp.StatusCode
			resp.Body.Close()
		}(i)
	}
	start.Done()
	wg.Wait()

	for i := 0; i < requests; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, http.StatusOK, statuses[i])
	}
	assert.Equal(t, int32(1), backend.refreshCalls.Load())
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
