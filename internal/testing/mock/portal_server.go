package mock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// PortalUser is an account known to the mock portal backend.
type PortalUser struct {
	ID          string
	Email       string
	Password    string
	Name        string
	Roles       []PortalRole
	Permissions []string

	// Pending marks an account waiting for administrator approval.
	Pending bool
	// Disabled marks a deactivated account.
	Disabled bool
}

// PortalRole is a role assigned to a PortalUser.
type PortalRole struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PortalServerConfig configures the mock portal backend.
type PortalServerConfig struct {
	// Users are the accounts that can log in. Defaults to DefaultPortalUser.
	Users []PortalUser

	// AccessTokenLifetime is how long access tokens remain valid.
	AccessTokenLifetime time.Duration

	// RefreshTokenLifetime is how long refresh tokens remain valid.
	RefreshTokenLifetime time.Duration

	// ReuseRefreshTokens makes /auth/refresh hand back the presented refresh
	// token instead of rotating it. By default refresh tokens are single-use.
	ReuseRefreshTokens bool

	// SigningKey signs access tokens (HS256). A fixed test key is used when empty.
	SigningKey []byte

	// Clock is the clock used for issuing and validating tokens.
	// Set this to a MockClock to expire tokens without waiting.
	Clock Clock

	// SimulateErrors can be set to simulate failure conditions.
	SimulateErrors *PortalErrorSimulation

	// RefreshHook, when set, runs at the start of every refresh request.
	// Tests use it to hold a refresh in flight.
	RefreshHook func()

	// Debug enables debug logging
	Debug bool
}

// PortalErrorSimulation allows simulating backend failures.
type PortalErrorSimulation struct {
	// RefreshStatus, when non-zero, is returned by /auth/refresh.
	RefreshStatus int

	// LogoutStatus, when non-zero, is returned by /auth/logout.
	LogoutStatus int

	// MeStatus, when non-zero, is returned by /auth/me.
	MeStatus int
}

// DefaultPortalUser is the account used when PortalServerConfig.Users is empty.
var DefaultPortalUser = PortalUser{
	ID:          "64f0c0ffee00000000000001",
	Email:       "grower@example.com",
	Password:    "secret",
	Name:        "Test Grower",
	Roles:       []PortalRole{{ID: "64f0c0ffee00000000000a01", Name: "admin"}},
	Permissions: []string{"rooms.read", "rooms.write", "archive.read"},
}

// PortalRoom is a grow room served by the protected /rooms endpoint.
type PortalRoom struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

var defaultRooms = []PortalRoom{
	{ID: "1", Name: "Veg A", Active: true},
	{ID: "2", Name: "Flower B", Active: true},
	{ID: "3", Name: "Dry Room", Active: false},
}

var defaultSigningKey = []byte("farmportal-mock-signing-key")

type refreshEntry struct {
	UserID    string
	ExpiresAt time.Time
}

// accessClaims are the claims of an issued access token.
type accessClaims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// PortalServer is a mock of the farm portal REST backend: login, rotating
// refresh, logout, current user, activity heartbeat and one protected
// resource. Every endpoint is served under /api.
type PortalServer struct {
	config     PortalServerConfig
	httpServer *http.Server
	listener   net.Listener
	port       int
	running    bool
	mu         sync.RWMutex

	clock Clock

	users         map[string]*PortalUser // email -> user
	usersByID     map[string]*PortalUser
	refreshTokens map[string]*refreshEntry
	revoked       map[string]bool // access token jti -> revoked

	loginCalls     int
	refreshCalls   int
	logoutCalls    int
	heartbeatCalls int
	protectedCalls int
	lastPage       string
}

// NewPortalServer creates a new mock portal backend.
func NewPortalServer(config PortalServerConfig) *PortalServer {
	if config.AccessTokenLifetime == 0 {
		config.AccessTokenLifetime = 15 * time.Minute
	}
	if config.RefreshTokenLifetime == 0 {
		config.RefreshTokenLifetime = 7 * 24 * time.Hour
	}
	if len(config.SigningKey) == 0 {
		config.SigningKey = defaultSigningKey
	}
	if len(config.Users) == 0 {
		config.Users = []PortalUser{DefaultPortalUser}
	}

	clock := config.Clock
	if clock == nil {
		clock = RealClock{}
	}

	s := &PortalServer{
		config:        config,
		clock:         clock,
		users:         make(map[string]*PortalUser),
		usersByID:     make(map[string]*PortalUser),
		refreshTokens: make(map[string]*refreshEntry),
		revoked:       make(map[string]bool),
	}
	for i := range config.Users {
		u := config.Users[i]
		s.users[strings.ToLower(u.Email)] = &u
		s.usersByID[u.ID] = &u
	}
	return s
}

// Handler returns the HTTP handler, for use with httptest.NewServer.
func (s *PortalServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", s.handleLogin)
	mux.HandleFunc("/api/auth/refresh", s.handleRefresh)
	mux.HandleFunc("/api/auth/logout", s.protect(s.handleLogout))
	mux.HandleFunc("/api/auth/me", s.protect(s.handleMe))
	mux.HandleFunc("/api/auth/heartbeat", s.protect(s.handleHeartbeat))
	mux.HandleFunc("/api/rooms", s.protect(s.handleRooms))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusNotFound, "Not found", "")
	})
	return mux
}

// Start starts the server on a random available port
func (s *PortalServer) Start(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return s.port, nil
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("failed to listen: %w", err)
	}

	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port

	s.httpServer = &http.Server{
		Handler:  s.Handler(),
		ErrorLog: log.New(io.Discard, "", 0),
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			if s.config.Debug {
				fmt.Fprintf(os.Stderr, "Mock portal server error: %v\n", err)
			}
		}
	}()

	s.running = true
	if s.config.Debug {
		fmt.Fprintf(os.Stderr, "Mock portal server started on port %d\n", s.port)
	}
	return s.port, nil
}

// Stop stops the server
func (s *PortalServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	err := s.httpServer.Shutdown(ctx)
	s.running = false
	return err
}

// IsRunning reports whether Start has been called without a matching Stop.
func (s *PortalServer) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Port returns the port the server listens on.
func (s *PortalServer) Port() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.port
}

// URL returns the server root URL, e.g. http://127.0.0.1:41234
func (s *PortalServer) URL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fmt.Sprintf("http://127.0.0.1:%d", s.port)
}

// IssueAccessToken signs an access token for userID that expires at exp.
// Tests use it to plant credentials with a chosen expiry.
func (s *PortalServer) IssueAccessToken(userID string, exp time.Time) string {
	now := s.clock.Now()
	claims := accessClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.config.SigningKey)
	if err != nil {
		panic(fmt.Sprintf("mock portal: failed to sign token: %v", err))
	}
	return signed
}

// IssueRefreshToken registers a new refresh token for userID.
func (s *PortalServer) IssueRefreshToken(userID string) string {
	token := uuid.NewString()
	s.mu.Lock()
	s.refreshTokens[token] = &refreshEntry{
		UserID:    userID,
		ExpiresAt: s.clock.Now().Add(s.config.RefreshTokenLifetime),
	}
	s.mu.Unlock()
	return token
}

// RevokeAccessToken makes a still-unexpired access token invalid.
func (s *PortalServer) RevokeAccessToken(token string) bool {
	claims, err := s.parseAccessToken(token)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[claims.ID] = true
	return true
}

// RevokeRefreshTokens invalidates every refresh token. Returns the count.
func (s *PortalServer) RevokeRefreshTokens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := len(s.refreshTokens)
	s.refreshTokens = make(map[string]*refreshEntry)
	return count
}

// SetSimulateErrors replaces the error simulation settings.
func (s *PortalServer) SetSimulateErrors(sim *PortalErrorSimulation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config.SimulateErrors = sim
}

// LoginCalls returns how many login requests were received.
func (s *PortalServer) LoginCalls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loginCalls
}

// RefreshCalls returns how many refresh requests were received.
func (s *PortalServer) RefreshCalls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshCalls
}

// LogoutCalls returns how many authenticated logout requests were received.
func (s *PortalServer) LogoutCalls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logoutCalls
}

// HeartbeatCalls returns how many heartbeats were received.
func (s *PortalServer) HeartbeatCalls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.heartbeatCalls
}

// ProtectedCalls returns how many requests to /rooms were authorized.
func (s *PortalServer) ProtectedCalls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.protectedCalls
}

// LastHeartbeatPage returns the page reported by the last heartbeat.
func (s *PortalServer) LastHeartbeatPage() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastPage
}

// protect rejects requests without a valid bearer access token.
func (s *PortalServer) protect(next func(http.ResponseWriter, *http.Request, *PortalUser)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := ExtractBearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeMessage(w, http.StatusUnauthorized, "Not authorized, no token provided", "")
			return
		}

		claims, err := s.parseAccessToken(token)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				writeMessage(w, http.StatusUnauthorized, "Token expired", "TOKEN_EXPIRED")
				return
			}
			writeMessage(w, http.StatusUnauthorized, "Invalid token", "")
			return
		}

		s.mu.RLock()
		revoked := s.revoked[claims.ID]
		user := s.usersByID[claims.UserID]
		s.mu.RUnlock()

		if revoked {
			writeMessage(w, http.StatusUnauthorized, "Invalid token", "")
			return
		}
		if user == nil {
			writeMessage(w, http.StatusUnauthorized, "User not found", "")
			return
		}
		if user.Disabled {
			writeMessage(w, http.StatusUnauthorized, "Account deactivated", "")
			return
		}

		next(w, r, user)
	}
}

func (s *PortalServer) parseAccessToken(token string) (*accessClaims, error) {
	claims := &accessClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.config.SigningKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func (s *PortalServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	s.mu.Lock()
	s.loginCalls++
	s.mu.Unlock()

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body", "")
		return
	}

	s.mu.RLock()
	user := s.users[strings.ToLower(req.Email)]
	s.mu.RUnlock()

	switch {
	case user == nil:
		writeMessage(w, http.StatusUnauthorized, "Invalid email or password", "")
		return
	case user.Disabled:
		writeMessage(w, http.StatusUnauthorized, "Account deactivated", "")
		return
	case user.Pending:
		writeMessage(w, http.StatusForbidden, "Your account is waiting for administrator approval", "")
		return
	case user.Password != req.Password:
		writeMessage(w, http.StatusUnauthorized, "Invalid email or password", "")
		return
	}

	accessToken := s.IssueAccessToken(user.ID, s.clock.Now().Add(s.config.AccessTokenLifetime))
	refreshToken := s.IssueRefreshToken(user.ID)

	if s.config.Debug {
		fmt.Fprintf(os.Stderr, "Mock portal: %s logged in\n", user.Email)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"accessToken":  accessToken,
		"refreshToken": refreshToken,
		"user":         userPayload(user),
	})
}

func (s *PortalServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	if s.config.RefreshHook != nil {
		s.config.RefreshHook()
	}

	s.mu.Lock()
	s.refreshCalls++
	sim := s.config.SimulateErrors
	s.mu.Unlock()

	if sim != nil && sim.RefreshStatus != 0 {
		writeMessage(w, sim.RefreshStatus, "Refresh failed", "")
		return
	}

	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeMessage(w, http.StatusUnauthorized, "Refresh token not provided", "")
		return
	}

	s.mu.Lock()
	entry, ok := s.refreshTokens[req.RefreshToken]
	if ok && !s.config.ReuseRefreshTokens {
		delete(s.refreshTokens, req.RefreshToken)
	}
	var user *PortalUser
	if ok {
		user = s.usersByID[entry.UserID]
	}
	s.mu.Unlock()

	if !ok || s.clock.Now().After(entry.ExpiresAt) {
		writeMessage(w, http.StatusUnauthorized, "Invalid refresh token", "")
		return
	}
	if user == nil || user.Disabled {
		writeMessage(w, http.StatusUnauthorized, "User not found", "")
		return
	}

	next := req.RefreshToken
	if !s.config.ReuseRefreshTokens {
		next = s.IssueRefreshToken(user.ID)
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"accessToken":  s.IssueAccessToken(user.ID, s.clock.Now().Add(s.config.AccessTokenLifetime)),
		"refreshToken": next,
	})
}

func (s *PortalServer) handleLogout(w http.ResponseWriter, r *http.Request, user *PortalUser) {
	if r.Method != http.MethodPost {
		writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	s.mu.Lock()
	s.logoutCalls++
	sim := s.config.SimulateErrors
	if sim == nil || sim.LogoutStatus == 0 {
		for token, entry := range s.refreshTokens {
			if entry.UserID == user.ID {
				delete(s.refreshTokens, token)
			}
		}
	}
	s.mu.Unlock()

	if sim != nil && sim.LogoutStatus != 0 {
		writeMessage(w, sim.LogoutStatus, "Logout failed", "")
		return
	}
	writeMessage(w, http.StatusOK, "Logged out", "")
}

func (s *PortalServer) handleMe(w http.ResponseWriter, r *http.Request, user *PortalUser) {
	s.mu.RLock()
	sim := s.config.SimulateErrors
	s.mu.RUnlock()

	if sim != nil && sim.MeStatus != 0 {
		writeMessage(w, sim.MeStatus, "Server error", "")
		return
	}
	writeJSON(w, http.StatusOK, userPayload(user))
}

func (s *PortalServer) handleHeartbeat(w http.ResponseWriter, r *http.Request, user *PortalUser) {
	if r.Method != http.MethodPost {
		writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var req struct {
		Page string `json:"page"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	s.mu.Lock()
	s.heartbeatCalls++
	s.lastPage = req.Page
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *PortalServer) handleRooms(w http.ResponseWriter, r *http.Request, user *PortalUser) {
	s.mu.Lock()
	s.protectedCalls++
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, defaultRooms)
}

func userPayload(user *PortalUser) map[string]interface{} {
	roles := user.Roles
	if roles == nil {
		roles = []PortalRole{}
	}
	permissions := user.Permissions
	if permissions == nil {
		permissions = []string{}
	}
	return map[string]interface{}{
		"id":          user.ID,
		"email":       user.Email,
		"name":        user.Name,
		"roles":       roles,
		"permissions": permissions,
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeMessage(w http.ResponseWriter, status int, message, code string) {
	body := map[string]string{"message": message}
	if code != "" {
		body["code"] = code
	}
	writeJSON(w, status, body)
}

// ExtractBearerToken extracts a bearer token from an Authorization header
func ExtractBearerToken(authHeader string) string {
	if authHeader == "" {
		return ""
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(authHeader, "Bearer ")
}
