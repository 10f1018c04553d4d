package portal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"farmportal/internal/session"
)

// Authentication endpoints, relative to the API base URL.
const (
	PathLogin     = "/auth/login"
	PathRefresh   = "/auth/refresh"
	PathLogout    = "/auth/logout"
	PathMe        = "/auth/me"
	PathHeartbeat = "/auth/heartbeat"
)

// AuthPaths are the endpoints a session transport must not renew for or
// replay. Logout is included so that leaving never starts a renewal.
var AuthPaths = []string{PathLogin, PathRefresh, PathLogout}

// IsAuthPath reports whether path targets one of AuthPaths.
func IsAuthPath(path string) bool {
	path = strings.TrimRight(path, "/")
	for _, p := range AuthPaths {
		if strings.HasSuffix(path, p) {
			return true
		}
	}
	return false
}

var _ session.Backend = (*Client)(nil)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type loginResponse struct {
	tokenPair
	User *session.Identity `json:"user"`
}

// Login exchanges credentials for a token pair and the user's identity.
// Bad credentials and inactive accounts fail with a 401 APIError; accounts
// awaiting approval fail with a 403.
func (c *Client) Login(ctx context.Context, email, password string) (*session.LoginResult, error) {
	var resp loginResponse
	if err := c.PostJSON(ctx, PathLogin, loginRequest{Email: email, Password: password}, &resp); err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	if resp.AccessToken == "" {
		return nil, errors.New("login failed: response carried no access token")
	}

	user := resp.User
	if user == nil {
		user = &session.Identity{Email: email}
	}

	return &session.LoginResult{
		Token: newToken(resp.AccessToken, resp.RefreshToken),
		User:  user.Normalize(),
	}, nil
}

// Refresh exchanges a refresh token for a new pair. When the response has
// no refresh token, the presented one is kept.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	var resp tokenPair
	if err := c.PostJSON(ctx, PathRefresh, map[string]string{"refreshToken": refreshToken}, &resp); err != nil {
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}
	if resp.AccessToken == "" {
		return nil, &APIError{StatusCode: http.StatusBadGateway, Message: "refresh response carried no access token"}
	}

	next := resp.RefreshToken
	if next == "" {
		next = refreshToken
	}
	return newToken(resp.AccessToken, next), nil
}

// Logout invalidates the session on the server.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.PostJSON(ctx, PathLogout, struct{}{}, nil); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}
	return nil
}

// Me returns the identity of the authenticated user.
func (c *Client) Me(ctx context.Context) (*session.Identity, error) {
	var identity session.Identity
	if err := c.GetJSON(ctx, PathMe, &identity); err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}
	return identity.Normalize(), nil
}

// Heartbeat reports that the user is active on page.
func (c *Client) Heartbeat(ctx context.Context, page string) error {
	return c.PostJSON(ctx, PathHeartbeat, map[string]string{"page": page}, nil)
}

func newToken(access, refresh string) *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
	}
	if exp, ok := session.ExpiresAt(access); ok {
		token.Expiry = exp
	}
	return token
}
