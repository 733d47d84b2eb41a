// Package httpclient provides the HTTP transport used to reach the release
// source: per-request timeouts, exponential backoff and default headers.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"
)

var (
	// ErrMaxRetriesExceeded is returned when all retry attempts have failed
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
	// ErrRequestTimeout is returned when a request times out
	ErrRequestTimeout = errors.New("request timeout")
)

// envVarPattern matches ${VAR_NAME} syntax for environment variable substitution
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// RetryConfig holds configuration for retry behavior.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (default: 3)
	MaxRetries int
	// BaseDelay is the initial delay before first retry (default: 1s)
	BaseDelay time.Duration
	// MaxDelay is the maximum delay between retries (default: 4s)
	MaxDelay time.Duration
	// Timeout is the timeout for each individual request (default: 30s).
	// Zero disables the timeout, which is what artifact downloads use.
	Timeout time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
// Uses exponential backoff with delays of 1s, 2s, 4s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   4 * time.Second,
		Timeout:    30 * time.Second,
	}
}

// Client wraps an http.Client with retry logic and default headers.
type Client struct {
	client  *http.Client
	config  RetryConfig
	headers    map[string]string
	token      string
	tokenHosts map[string]bool

	// sleep waits between attempts; replaced in tests
	sleep func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	delays []time.Duration
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client (useful for httptest servers).
// The retry config timeout is applied on top of it.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		cp := *hc
		c.client = &cp
	}
}

// WithHeader adds a default header. Values support ${VAR} substitution.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers[key] = value
	}
}

// DefaultTokenHosts receive the token when WithToken names no hosts
var DefaultTokenHosts = []string{"api.github.com"}

// WithToken sets the bearer token sent to hosts (host or host:port).
// Without hosts the token goes to DefaultTokenHosts only.
func WithToken(token string, hosts ...string) Option {
	return func(c *Client) {
		c.token = SubstituteEnvVars(token)
		if len(hosts) == 0 {
			hosts = DefaultTokenHosts
		}
		c.tokenHosts = make(map[string]bool, len(hosts))
		for _, h := range hosts {
			if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
				c.tokenHosts[h] = true
			}
		}
	}
}

// WithSleep replaces the backoff sleep (tests pass a no-op)
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		c.sleep = fn
	}
}

// New creates a client with the given retry configuration.
func New(config RetryConfig, opts ...Option) *Client {
	c := &Client{
		client:  &http.Client{},
		config:  config,
		headers: make(map[string]string),
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.client.Timeout = config.Timeout
	return c
}

// NewDefault creates a client with DefaultRetryConfig
func NewDefault(opts ...Option) *Client {
	return New(DefaultRetryConfig(), opts...)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Delays returns the backoff delays waited so far
func (c *Client) Delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.delays...)
}

// Do executes an HTTP request with retry logic.
// It retries on network errors, 5xx server errors and 429 with exponential backoff.
// Requests must not carry a body, which holds for every GET the launcher sends.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	c.applyHeaders(req)

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if attempt > 0 {
			delay := c.calculateDelay(attempt)
			c.mu.Lock()
			c.delays = append(c.delays, delay)
			c.mu.Unlock()
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		resp, err := c.client.Do(req.Clone(ctx))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			if isTimeoutError(err) {
				lastErr = fmt.Errorf("%w: %v", ErrRequestTimeout, err)
			}
			continue
		}

		if shouldRetry(resp.StatusCode) {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: status %d", resp.StatusCode)
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}

// Get performs an HTTP GET request with retry logic.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.Do(req)
}

// calculateDelay returns baseDelay * 2^(attempt-1), capped at MaxDelay
func (c *Client) calculateDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	delay := c.config.BaseDelay * time.Duration(1<<(attempt-1))
	if delay > c.config.MaxDelay {
		delay = c.config.MaxDelay
	}
	return delay
}

// shouldRetry reports whether a status code is worth another attempt
func shouldRetry(statusCode int) bool {
	return statusCode >= 500 && statusCode < 600 || statusCode == http.StatusTooManyRequests
}

func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// applyHeaders sets default headers, then the token, without
// overriding headers already present on the request.
func (c *Client) applyHeaders(req *http.Request) {
	for key, value := range c.headers {
		if req.Header.Get(key) == "" {
			req.Header.Set(key, SubstituteEnvVars(value))
		}
	}
	if c.token != "" && c.sendsToken(req.URL) && req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// SubstituteEnvVars replaces ${VAR_NAME} patterns with environment values.
// Unset variables are replaced with an empty string.
func SubstituteEnvVars(value string) string {
	return envVarPattern.ReplaceAllStringFunc(value, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

// sendsToken reports whether u points at a host the token was given for
func (c *Client) sendsToken(u *url.URL) bool {
	return c.tokenHosts[strings.ToLower(u.Host)] || c.tokenHosts[strings.ToLower(u.Hostname())]
}
