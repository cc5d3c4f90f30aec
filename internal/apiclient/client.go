// Package apiclient talks to the WalletFit REST API.
//
// Every request goes to one configured base URL with JSON content
// negotiation and a cookie jar. Responses pass through an interceptor: a
// 401/403 received while a session exists is reported to the configured
// AuthExpiredNotifier and then returned to the caller as an error matching
// ErrAuthExpired. The client itself never refreshes tokens or navigates.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"
)

// DefaultTimeout bounds a single request when no http.Client is supplied.
const DefaultTimeout = 15 * time.Second

// UserAgent is sent with every request.
const UserAgent = "walletfit-ui/1.0"

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 64 << 10

// TokenSource reports the current access token. An empty token means no session.
type TokenSource interface {
	AccessToken() string
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func() string

// AccessToken calls f.
func (f TokenSourceFunc) AccessToken() string { return f() }

// AuthExpiredEvent describes the response that ended a session.
type AuthExpiredEvent struct {
	Method string
	Path   string
	Status int
}

// AuthExpiredNotifier is told when a request is rejected while a session exists.
type AuthExpiredNotifier interface {
	AuthExpired(ctx context.Context, ev AuthExpiredEvent)
}

// NotifierFunc adapts a function to AuthExpiredNotifier.
type NotifierFunc func(ctx context.Context, ev AuthExpiredEvent)

// AuthExpired calls f.
func (f NotifierFunc) AuthExpired(ctx context.Context, ev AuthExpiredEvent) { f(ctx, ev) }

// Client is a configured WalletFit API client. It is safe for concurrent use.
type Client struct {
	baseURL  *url.URL
	http     *http.Client
	header   http.Header
	tokens   TokenSource
	notifier AuthExpiredNotifier
	logger   *slog.Logger
	metrics  *Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client. A cookie jar is added if it has none.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithTokenSource sets where bearer tokens come from.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithNotifier sets who is told about expired sessions.
func WithNotifier(n AuthExpiredNotifier) Option {
	return func(c *Client) { c.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records request metrics.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithHeader adds a default header sent with every request.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.header.Set(key, value) }
}

// New creates a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}

	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: DefaultTimeout},
		header:  http.Header{},
		logger:  slog.Default(),
	}
	c.header.Set("Content-Type", "application/json")
	c.header.Set("Accept", "application/json")
	c.header.Set("User-Agent", UserAgent)

	for _, opt := range opts {
		opt(c)
	}

	if c.http.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		c.http.Jar = jar
	}
	return c, nil
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string { return c.baseURL.String() }

// request describes one API call.
type request struct {
	method string
	path   string
	query  url.Values
	body   any
	// bearer overrides the token source when set.
	bearer string
	// noBearer sends no Authorization header.
	noBearer bool
	// noIntercept skips the auth-expired interceptor. Set for credential
	// exchanges, where a 401 means bad credentials.
	noIntercept bool
}

// resolve joins path beneath the base URL. Leading slashes are ignored so
// "users/token/" and "/users/token/" name the same endpoint.
func (c *Client) resolve(path string, query url.Values) *url.URL {
	ref := &url.URL{Path: strings.TrimLeft(path, "/")}
	u := c.baseURL.ResolveReference(ref)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u
}

// do sends req and decodes a 2xx JSON response into out (when non-nil).
func (c *Client) do(ctx context.Context, req request, out any) error {
	resp, err := c.send(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode %s %s response: %w", req.method, req.path, err)
	}
	return nil
}

// doRaw sends req and returns the raw 2xx body with its content type.
func (c *Client) doRaw(ctx context.Context, req request) ([]byte, string, error) {
	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: read %s %s: %w", ErrNetwork, req.method, req.path, err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// send performs the round trip and runs the response interceptor. On success
// the caller owns resp.Body; on failure the body has been consumed.
func (c *Client) send(ctx context.Context, req request) (*http.Response, error) {
	var body io.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", req.method, req.path, err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.resolve(req.path, req.query).String(), body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", req.method, req.path, err)
	}
	for key, values := range c.header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	httpReq.Header.Set("X-Request-ID", uuid.NewString())

	// Whether a session existed when the request left decides how a 401 is read.
	current := ""
	if c.tokens != nil {
		current = c.tokens.AccessToken()
	}
	sessionPresent := current != "" && !req.noIntercept
	if !req.noBearer {
		token := req.bearer
		if token == "" {
			token = current
		}
		if token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.metrics.observe(req.method, 0, time.Since(start))
		return nil, fmt.Errorf("%w: %s %s: %w", ErrNetwork, req.method, req.path, err)
	}
	c.metrics.observe(req.method, resp.StatusCode, time.Since(start))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
	apiErr := newAPIError(req.method, req.path, resp.StatusCode, data, sessionPresent)
	c.intercept(ctx, req, apiErr)
	return nil, apiErr
}

// intercept reports expired sessions. It only observes: the error still
// reaches the caller.
func (c *Client) intercept(ctx context.Context, req request, apiErr *APIError) {
	if req.noIntercept || apiErr.kind != ErrAuthExpired {
		return
	}
	c.logger.Warn("access token rejected, ending session",
		"method", req.method, "path", req.path, "status", apiErr.Status)
	c.metrics.authExpired()
	if c.notifier != nil {
		c.notifier.AuthExpired(ctx, AuthExpiredEvent{Method: req.method, Path: req.path, Status: apiErr.Status})
	}
}
