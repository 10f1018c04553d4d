// Package mock provides test doubles for farmportal components.
//
// PortalServer is an in-process fake of the farm portal REST backend. It
// serves the same wire format as the real API under /api:
//
//	POST /api/auth/login      {"email","password"} -> {"accessToken","refreshToken","user"}
//	POST /api/auth/refresh    {"refreshToken"}     -> {"accessToken","refreshToken"}
//	POST /api/auth/logout     (bearer)             -> {"message"}
//	GET  /api/auth/me         (bearer)             -> user
//	POST /api/auth/heartbeat  (bearer) {"page"}    -> {"ok":true}
//	GET  /api/rooms           (bearer)             -> [room...]
//
// Access tokens are HS256 JWTs validated against the server's Clock, so a
// MockClock can expire them instantly. Refresh tokens are opaque and
// single-use unless ReuseRefreshTokens is set. Failed authentication answers
// 401 with {"message"}, plus "code":"TOKEN_EXPIRED" when the access token
// has expired.
//
// Usage with httptest:
//
//	backend := mock.NewPortalServer(mock.PortalServerConfig{})
//	srv := httptest.NewServer(backend.Handler())
//	defer srv.Close()
//
// Or standalone on a random port:
//
//	port, err := backend.Start(ctx)
//	defer backend.Stop(ctx)
//
// Clock, RealClock and MockClock give tests control over time.
package mock
