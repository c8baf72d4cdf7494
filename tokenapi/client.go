package tokenapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	obtainPath     = "token/"
	refreshPath    = "token/refresh/"
	invalidatePath = "token/blacklist/"

	maxResponseBytes = 64 << 10
)

var (
	// ErrMalformedResponse is returned when a 2xx response body cannot be
	// decoded or carries no access token.
	ErrMalformedResponse = errors.New("tokenapi: malformed response")
	// ErrCredentialsRequired is returned by Obtain for a blank username or password.
	ErrCredentialsRequired = errors.New("tokenapi: username and password required")
)

// StatusError reports a non-2xx response.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("tokenapi: %s returned %d: %s", e.Endpoint, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("tokenapi: %s returned %d", e.Endpoint, e.StatusCode)
}

// Rejected reports whether the issuer refused the credential outright.
func (e *StatusError) Rejected() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsRejected reports whether err is a [StatusError] for 401 or 403.
func IsRejected(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Rejected()
}

// Grant is the credential exchange result.
type Grant struct {
	Access  string `json:"access"`
	IsAdmin bool   `json:"is_admin"`
}

type refreshResponse struct {
	Access string `json:"access"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// Client calls the issuer endpoints under a base URL.
type Client struct {
	base       *url.URL
	httpClient *http.Client
	userAgent  string
}

// Option configures a [Client].
type Option func(*Client)

// WithUserAgent sets the User-Agent header sent on every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New creates a [Client]. httpClient should carry a cookie jar; without one the
// renewal credential set by Obtain is dropped and Refresh will be rejected.
// A nil httpClient gets a 10s-timeout client with no jar.
func New(baseURL string, httpClient *http.Client, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("tokenapi: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("tokenapi: base url must be http or https, got %q", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	c := &Client{base: u, httpClient: httpClient}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the issuer base URL.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Obtain exchanges a username and password for an access token. The renewal
// credential arrives as a cookie and stays in the client's jar.
func (c *Client) Obtain(ctx context.Context, username, password string) (Grant, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return Grant{}, ErrCredentialsRequired
	}

	body := map[string]string{"username": username, "password": password}
	var g Grant
	if err := c.post(ctx, obtainPath, body, &g); err != nil {
		return Grant{}, err
	}
	if g.Access == "" {
		return Grant{}, fmt.Errorf("%w: missing access", ErrMalformedResponse)
	}
	return g, nil
}

// Refresh exchanges the renewal credential held in the jar for a new access token.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	var r refreshResponse
	if err := c.post(ctx, refreshPath, struct{}{}, &r); err != nil {
		return "", err
	}
	if r.Access == "" {
		return "", fmt.Errorf("%w: missing access", ErrMalformedResponse)
	}
	return r.Access, nil
}

// Invalidate asks the issuer to revoke the renewal credential. The response
// body is ignored.
func (c *Client) Invalidate(ctx context.Context) error {
	return c.post(ctx, invalidatePath, struct{}{}, nil)
}

func (c *Client) post(ctx context.Context, path string, in any, out any) error {
	endpoint := c.base.JoinPath(path).String()

	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("tokenapi: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("tokenapi: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("tokenapi: %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("tokenapi: read %s response: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{Endpoint: path, StatusCode: resp.StatusCode}
		var er errorResponse
		if json.Unmarshal(raw, &er) == nil {
			se.Detail = er.Detail
		}
		return se
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
