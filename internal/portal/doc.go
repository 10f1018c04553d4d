// Package portal is a client for the farm portal REST API.
//
// Client covers the authentication endpoints (login, refresh, logout,
// current user, activity heartbeat) and generic JSON calls for everything
// else. It implements session.Backend, so a session.Manager can drive it:
//
//	api := portal.NewClient(serverURL)
//	mgr, err := session.NewManager(session.Config{Store: store, Backend: api, SkipPaths: portal.AuthPaths})
//	api.SetHTTPClient(mgr.HTTPClient(nil, 30*time.Second))
//
// Once bound, every call carries the session's bearer credential and 401
// responses are recovered by the session transport. The auth endpoints
// listed in AuthPaths are excluded from that recovery.
//
// Non-2xx responses are returned as *APIError carrying the status and the
// server's {"message","code"} body.
package portal
