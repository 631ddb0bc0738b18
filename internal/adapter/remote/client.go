// Package remote is a domain.MeasurementStore that talks to the soma HTTP
// API. Each operation is one request and one response; nothing is cached or
// retried.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"soma/internal/domain"
)

// SessionCookie is the cookie carrying the server session token.
const SessionCookie = "session"

// ErrUnauthorized is returned for any 401 response.
var ErrUnauthorized = errors.New("remote: not logged in")

// StatusError is a non-2xx, non-401 response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote: %d %s", e.Code, e.Message)
}

// Is lets a 404 match domain.ErrMeasurementNotFound.
func (e *StatusError) Is(target error) bool {
	return target == domain.ErrMeasurementNotFound && e.Code == http.StatusNotFound
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client. Its Jar is replaced
// by the Client's own jar.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets a logger for request diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithSession seeds the cookie jar with a previously issued session token.
func WithSession(token string) Option {
	return func(c *Client) { c.token = token }
}

// Client implements domain.MeasurementStore against a remote server.
type Client struct {
	base   *url.URL
	http   *http.Client
	jar    http.CookieJar
	logger *zap.Logger
	token  string
}

var _ domain.MeasurementStore = (*Client)(nil)

// New returns a Client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("remote: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("remote: unsupported scheme %q", u.Scheme)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	c := &Client{
		base:   u,
		http:   &http.Client{Timeout: 15 * time.Second},
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	c.jar = jar
	c.http.Jar = jar
	if c.token != "" {
		jar.SetCookies(c.rootURL(), []*http.Cookie{{Name: SessionCookie, Value: c.token, Path: "/"}})
	}
	return c, nil
}

func (c *Client) rootURL() *url.URL {
	return &url.URL{Scheme: c.base.Scheme, Host: c.base.Host, Path: "/"}
}

// Session returns the session token currently held in the jar, if any.
func (c *Client) Session() string {
	for _, ck := range c.jar.Cookies(c.rootURL()) {
		if ck.Name == SessionCookie {
			return ck.Value
		}
	}
	return ""
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register creates an account. The server logs the new user in, so the
// returned token is immediately usable.
func (c *Client) Register(ctx context.Context, username, password string) (*domain.User, string, error) {
	var u domain.User
	if err := c.do(ctx, http.MethodPost, "/api/register", credentials{username, password}, &u); err != nil {
		return nil, "", err
	}
	return &u, c.Session(), nil
}

// Login authenticates and returns the session token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	if err := c.do(ctx, http.MethodPost, "/api/login", credentials{username, password}, nil); err != nil {
		return "", err
	}
	token := c.Session()
	if token == "" {
		return "", errors.New("remote: login response carried no session")
	}
	return token, nil
}

// Logout ends the server session.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/logout", nil, nil)
}

// Me returns the logged-in user.
func (c *Client) Me(ctx context.Context) (*domain.User, error) {
	var u domain.User
	if err := c.do(ctx, http.MethodGet, "/api/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// List implements domain.MeasurementStore.
func (c *Client) List(ctx context.Context) ([]domain.Measurement, error) {
	var out []domain.Measurement
	if err := c.do(ctx, http.MethodGet, "/api/measurements", nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.Measurement{}
	}
	return out, nil
}

// Add implements domain.MeasurementStore.
func (c *Client) Add(ctx context.Context, m domain.Measurement) (int64, error) {
	var created domain.Measurement
	if err := c.do(ctx, http.MethodPost, "/api/measurements", m, &created); err != nil {
		return 0, err
	}
	return created.ID, nil
}

// Update implements domain.MeasurementStore.
func (c *Client) Update(ctx context.Context, m domain.Measurement) error {
	return c.do(ctx, http.MethodPut, "/api/measurements/"+strconv.FormatInt(m.ID, 10), m, nil)
}

// Remove implements domain.MeasurementStore.
func (c *Client) Remove(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/api/measurements/"+strconv.FormatInt(id, 10), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("remote: encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return fmt.Errorf("remote: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("remote: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	c.logger.Debug("remote request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Message: errorMessage(resp)}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("remote: decode %s %s: %w", method, path, err)
	}
	return nil
}

// errorMessage prefers the "error" field of a JSON body, then the raw body,
// then the status text.
func errorMessage(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	text := strings.TrimSpace(string(raw))

	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	if text != "" {
		return text
	}
	return http.StatusText(resp.StatusCode)
}
