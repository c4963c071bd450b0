package roomapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-logr/logr"
	retryablehttp "github.com/hashicorp/go-retryablehttp"
)

var (
	// ErrNotFound is returned when the room does not exist.
	ErrNotFound = errors.New("roomapi: not found")
	// ErrUnauthorized is returned for missing or rejected credentials,
	// including a wrong room password.
	ErrUnauthorized = errors.New("roomapi: unauthorized")
)

// StatusError is returned for any non-2xx response. It matches ErrNotFound
// and ErrUnauthorized through errors.Is.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("roomapi: %s %s: %d %s", e.Method, e.URL, e.Code, http.StatusText(e.Code))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Code == http.StatusNotFound
	case ErrUnauthorized:
		return e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden
	}
	return false
}

// Client talks to the backend REST API.
type Client struct {
	baseURL *url.URL
	token   string
	http    *retryablehttp.Client
	log     logr.Logger
}

// Option configures a Client.
type Option func(*Client) error

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// WithRetryMax enables retrying transient failures up to n times.
// Default: 0
func WithRetryMax(n int) Option {
	return func(c *Client) error {
		if n < 0 {
			return errors.New("retry max must not be negative")
		}
		c.http.RetryMax = n
		return nil
	}
}

// WithLogger sets the logger. Default: logr.Discard().
func WithLogger(log logr.Logger) Option {
	return func(c *Client) error {
		c.log = log
		c.http.Logger = leveledLogger{log}
		return nil
	}
}

// WithHTTPClient overrides the underlying HTTP client, e.g. to trust a
// self-signed certificate.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.http.HTTPClient = hc
		return nil
	}
}

// New returns a client for the API served at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid api url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid api url: %q", baseURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")

	c := &Client{
		baseURL: u,
		log:     logr.Discard(),
		http: &retryablehttp.Client{
			HTTPClient:   &http.Client{Timeout: 30 * time.Second},
			Backoff:      retryablehttp.DefaultBackoff,
			CheckRetry:   retryablehttp.DefaultRetryPolicy,
			ErrorHandler: retryablehttp.PassthroughErrorHandler,
			RetryWaitMin: 100 * time.Millisecond,
			RetryWaitMax: 2 * time.Second,
			RetryMax:     0,
			Logger:       leveledLogger{logr.Discard()},
		},
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Token returns the bearer token in use.
func (c *Client) Token() string { return c.token }

// Room fetches a room. password is only needed for password-protected
// rooms the caller does not own.
func (c *Client) Room(ctx context.Context, id, password string) (*Room, error) {
	q := url.Values{}
	if password != "" {
		q.Set("password", password)
	}
	var room Room
	if err := c.do(ctx, http.MethodGet, "/Room/"+url.PathEscape(id), q, nil, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// Rooms lists the rooms owned by the authenticated user.
func (c *Client) Rooms(ctx context.Context) ([]Room, error) {
	var rooms []Room
	if err := c.do(ctx, http.MethodGet, "/api/rooms", nil, nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// Login exchanges credentials for a token. On success the token is used
// for subsequent requests.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	body := map[string]string{"email": email, "password": password}
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/login", nil, body, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", errors.New("roomapi: login response has no token")
	}
	c.token = resp.Token
	return resp.Token, nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, in, out any) error {
	u := *c.baseURL
	u.Path += path
	u.RawQuery = q.Encode()

	var body any
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = b
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.log.V(1).Info("request", "method", method, "url", u.String())
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("roomapi: %s %s: %w", method, u.String(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{
			Method: method,
			URL:    u.Path,
			Code:   resp.StatusCode,
			Body:   strings.TrimSpace(string(msg)),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("roomapi: decoding %s response: %w", u.Path, err)
	}
	return nil
}

// leveledLogger routes retryablehttp's logging through logr.
type leveledLogger struct {
	log logr.Logger
}

func (l leveledLogger) Error(msg string, kv ...any) { l.log.Error(nil, msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...any)  { l.log.Info(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...any)  { l.log.V(1).Info(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...any) { l.log.V(2).Info(msg, kv...) }
