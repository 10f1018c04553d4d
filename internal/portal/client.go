package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"farmportal/pkg/logging"
)

const (
	// DefaultHTTPTimeout is the default timeout for API requests.
	DefaultHTTPTimeout = 30 * time.Second

	// APIPrefix is appended to the server URL to form the API base URL.
	APIPrefix = "/api"

	// maxErrorBody caps how much of an error response is decoded.
	maxErrorBody = 64 << 10
)

// Client talks to the farm portal API.
type Client struct {
	baseURL   string
	userAgent string

	mu         sync.RWMutex
	httpClient *http.Client
}

// ClientOption configures the portal client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(userAgent string) ClientOption {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// NewClient creates a client for the portal at serverURL. The API lives
// under serverURL + APIPrefix; a serverURL that already ends in it is kept.
func NewClient(serverURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    BaseURL(serverURL),
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
		userAgent:  "farmportal",
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL returns the API base URL for a server URL.
func BaseURL(serverURL string) string {
	base := strings.TrimRight(strings.TrimSpace(serverURL), "/")
	if strings.HasSuffix(base, APIPrefix) {
		return base
	}
	return base + APIPrefix
}

// BaseURL returns the API base URL this client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetHTTPClient replaces the HTTP client. It is used to route calls through
// a session transport once the session manager exists.
func (c *Client) SetHTTPClient(httpClient *http.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.httpClient = httpClient
}

func (c *Client) client() *http.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.httpClient
}

// GetJSON performs a GET on path and decodes the JSON response into out.
// out may be nil to discard the body.
func (c *Client) GetJSON(ctx context.Context, path string, out interface{}) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// PostJSON performs a POST on path with in encoded as JSON.
func (c *Client) PostJSON(ctx context.Context, path string, in, out interface{}) error {
	return c.Do(ctx, http.MethodPost, path, in, out)
}

// Do performs a request against the API. path is relative to the API base
// URL and may carry a query string. in, when non-nil, is sent as a JSON body;
// a 2xx response body is decoded into out when out is non-nil.
func (c *Client) Do(ctx context.Context, method, path string, in, out interface{}) error {
	req, err := c.newRequest(ctx, method, path, in)
	if err != nil {
		return err
	}

	resp, err := c.client().Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeError(resp)
		logging.Debug("PortalClient", "%s %s returned %d", method, path, resp.StatusCode)
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if raw, ok := out.(*json.RawMessage); ok {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response of %s %s: %w", method, path, err)
		}
		*raw = body
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response of %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, in interface{}) (*http.Request, error) {
	target, err := c.resolve(path)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		// bytes.Reader lets http.NewRequest set GetBody, so the session
		// transport can replay the request after a renewal.
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return req, nil
}

func (c *Client) resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty API path")
	}
	if strings.Contains(path, "://") {
		return "", fmt.Errorf("API path must be relative, got %q", path)
	}

	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("invalid API path %q: %w", path, err)
	}

	p := ref.Path
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	target := c.baseURL + p
	if ref.RawQuery != "" {
		target += "?" + ref.RawQuery
	}
	return target, nil
}

func decodeError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var payload struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err == nil && json.Unmarshal(body, &payload) == nil {
		apiErr.Message = payload.Message
		apiErr.Code = payload.Code
	}
	return apiErr
}
