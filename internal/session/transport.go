package session

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"farmportal/pkg/logging"
)

const (
	// DefaultRequestMargin is the last-chance expiry margin checked before
	// each request. It is tighter than the proactive loop's margin.
	DefaultRequestMargin = 30 * time.Second

	// RequestIDHeader correlates client and server logs.
	RequestIDHeader = "X-Request-ID"
)

// DefaultSkipPaths are the endpoints whose 401 responses are final. They
// are never renewed for or retried, since renewing on a failed refresh
// would recurse.
var DefaultSkipPaths = []string{"/auth/login", "/auth/refresh", "/auth/logout"}

// maxDrainBytes caps how much of a discarded response body is read so the
// connection can be reused.
const maxDrainBytes = 64 << 10

type retriedKey struct{}

// TransportConfig configures a Transport.
type TransportConfig struct {
	// Base performs the actual requests. Defaults to http.DefaultTransport.
	Base http.RoundTripper

	Store       Store
	Coordinator *Coordinator
	Clock       Clock

	// Margin is the pre-request expiry margin. Defaults to
	// DefaultRequestMargin.
	Margin time.Duration

	// SkipPaths are URL path suffixes excluded from renewal and replay.
	// Defaults to DefaultSkipPaths.
	SkipPaths []string

	// OnSessionExpired is called when a 401 could not be recovered from.
	// sent is the access credential the failed request carried. It returns
	// whether the session was ended; false means the session had already
	// been replaced and the request should be replayed.
	OnSessionExpired func(sent string, err error) bool
}

// Transport is an http.RoundTripper that keeps requests authenticated.
//
// Before sending, it attaches the stored access credential as a bearer
// header, renewing first when the credential is about to expire. A failed
// pre-request renewal does not drop the request; it goes out with the old
// credential and the 401 path takes over.
//
// On a 401 it renews through the Coordinator and replays the request once.
// A second 401 on the replay is returned to the caller as is. When the
// renewal fails the session is torn down and the caller receives a
// *SessionExpiredError, unless a login or logout replaced the session while
// the renewal was in flight. Then the request is replayed with whatever
// credential is stored now, or the 401 is returned when there is none.
type Transport struct {
	base             http.RoundTripper
	store            Store
	coordinator      *Coordinator
	clock            Clock
	margin           time.Duration
	skipPaths        []string
	onSessionExpired func(sent string, err error) bool
}

// NewTransport creates a Transport from cfg.
func NewTransport(cfg TransportConfig) *Transport {
	t := &Transport{
		base:             cfg.Base,
		store:            cfg.Store,
		coordinator:      cfg.Coordinator,
		clock:            cfg.Clock,
		margin:           cfg.Margin,
		skipPaths:        cfg.SkipPaths,
		onSessionExpired: cfg.OnSessionExpired,
	}
	if t.base == nil {
		t.base = http.DefaultTransport
	}
	if t.clock == nil {
		t.clock = RealClock{}
	}
	if t.margin <= 0 {
		t.margin = DefaultRequestMargin
	}
	if t.skipPaths == nil {
		t.skipPaths = DefaultSkipPaths
	}
	return t
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	skip := t.isSkipped(req)

	outgoing := req.Clone(ctx)
	if outgoing.Header.Get(RequestIDHeader) == "" {
		outgoing.Header.Set(RequestIDHeader, uuid.NewString())
	}

	sent := t.attachCredential(ctx, outgoing, skip)

	resp, err := t.base.RoundTrip(outgoing)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized || skip || isRetried(ctx) || sent == "" {
		return resp, nil
	}

	logging.Debug("Transport", "Received 401 for %s %s, renewing session", req.Method, req.URL.Path)

	if _, renewErr := t.coordinator.renewAfter(ctx, sent); renewErr != nil {
		if ctx.Err() != nil {
			drainAndClose(resp.Body)
			return nil, ctx.Err()
		}

		if !t.sessionReplaced(sent, renewErr) && t.expire(sent, renewErr) {
			drainAndClose(resp.Body)
			return nil, &SessionExpiredError{Err: renewErr}
		}
		if t.currentAccess() == "" {
			if !errors.Is(renewErr, ErrSessionChanged) {
				drainAndClose(resp.Body)
				return nil, &SessionExpiredError{Err: renewErr}
			}
			logging.Debug("Transport", "Session ended during renewal, returning original 401")
			return resp, nil
		}
		logging.Debug("Transport", "Session replaced during renewal, replaying with the current credential")
	}

	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		logging.Debug("Transport", "Request body cannot be replayed, returning original 401")
		return resp, nil
	}
	drainAndClose(resp.Body)

	replay := req.Clone(context.WithValue(ctx, retriedKey{}, true))
	replay.Header.Set(RequestIDHeader, outgoing.Header.Get(RequestIDHeader))
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		replay.Body = body
	}

	logging.Debug("Transport", "Replaying %s %s with renewed credential", req.Method, req.URL.Path)
	return t.RoundTrip(replay)
}

// attachCredential sets the bearer header from the store and returns the
// access credential that was attached ("" when none).
func (t *Transport) attachCredential(ctx context.Context, req *http.Request, skip bool) string {
	token, err := t.store.Get()
	if err != nil {
		logging.Warn("Transport", "Failed to read stored credential: %v", err)
		return ""
	}
	if !hasAccess(token) {
		return ""
	}

	if !skip && !isRetried(ctx) && IsExpiringSoon(token.AccessToken, t.margin, t.clock.Now()) {
		renewed, err := t.coordinator.Renew(ctx)
		if err != nil {
			logging.Debug("Transport", "Pre-request renewal failed, sending current credential: %v", err)
		} else {
			token = renewed
		}
	}

	token.SetAuthHeader(req)
	return token.AccessToken
}

// sessionReplaced reports whether the credential a request carried is no
// longer the stored one, so its failed renewal says nothing about the
// current session.
func (t *Transport) sessionReplaced(sent string, err error) bool {
	return errors.Is(err, ErrSessionChanged) || t.currentAccess() != sent
}

func (t *Transport) currentAccess() string {
	token, err := t.store.Get()
	if err != nil || !hasAccess(token) {
		return ""
	}
	return token.AccessToken
}

func (t *Transport) expire(sent string, err error) bool {
	logging.Warn("Transport", "Session renewal failed, ending session: %v", err)
	if t.onSessionExpired == nil {
		return true
	}
	return t.onSessionExpired(sent, err)
}

func (t *Transport) isSkipped(req *http.Request) bool {
	path := strings.TrimRight(req.URL.Path, "/")
	for _, suffix := range t.skipPaths {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}

func isRetried(ctx context.Context) bool {
	retried, _ := ctx.Value(retriedKey{}).(bool)
	return retried
}

func drainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.CopyN(io.Discard, body, maxDrainBytes)
	_ = body.Close()
}
