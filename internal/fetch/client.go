// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/lmsync/internal/metrics"
)

// maxErrorBodySize limits the maximum amount of response body read for error reporting
const maxErrorBodySize = 64 * 1024 // 64KB

// maxBodySize bounds successful response bodies.
const maxBodySize = 256 << 20 // 256MB

// maxRetryAfter caps the Retry-After hint honoured from a server.
const maxRetryAfter = 5 * time.Minute

// readBodyForError reads the response body for error reporting (max 64KB)
// Uses io.LimitReader to prevent unbounded memory allocation
func readBodyForError(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return "(failed to read response body)"
	}
	if len(body) == maxErrorBodySize {
		return string(body) + "\n... (truncated)"
	}
	return string(body)
}

// Authorizer adds credentials to an outgoing request.
type Authorizer interface {
	Authorize(ctx context.Context, req *http.Request) error
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, req *http.Request) error

// Authorize calls f.
func (f AuthorizerFunc) Authorize(ctx context.Context, req *http.Request) error {
	return f(ctx, req)
}

// BearerToken authorizes with a static bearer token.
func BearerToken(token string) Authorizer {
	return AuthorizerFunc(func(_ context.Context, req *http.Request) error {
		req.Header.Set("Authorization", "Bearer "+token)
		return nil
	})
}

// ClientConfig configures a vendor Client.
type ClientConfig struct {
	Name       string // source label used for metrics and the breaker name
	BaseURL    string
	Timeout    time.Duration
	RateLimit  float64 // requests per second, 0 = unlimited
	RateBurst  int
	Authorizer Authorizer
	Breaker    BreakerConfig
	HTTPClient *http.Client // optional, Timeout is ignored when set
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	URL        string
}

// Decode unmarshals the body into out.
func (r *Response) Decode(out any) error {
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("decode response from %s: %w", r.URL, err)
	}
	return nil
}

// Client is a rate limited, circuit broken JSON client for one vendor API.
//
// Thread Safety: Safe for concurrent use.
type Client struct {
	name    string
	baseURL *url.URL
	http    *http.Client
	auth    Authorizer
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker[*Response]
}

// NewClient creates a Client. BaseURL must be absolute; a trailing slash is
// added so relative paths resolve beneath it.
func NewClient(cfg ClientConfig) (*Client, error) {
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL for %s: %w", cfg.Name, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base URL for %s must be absolute: %s", cfg.Name, cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}

	breakerCfg := cfg.Breaker
	if breakerCfg == (BreakerConfig{}) {
		breakerCfg = DefaultBreakerConfig()
	}

	return &Client{
		name:    cfg.Name,
		baseURL: base,
		http:    httpClient,
		auth:    cfg.Authorizer,
		limiter: rate.NewLimiter(limit, burst),
		cb:      newBreaker("lms-"+strings.ToLower(cfg.Name), breakerCfg),
	}, nil
}

// Name returns the source label.
func (c *Client) Name() string {
	return c.name
}

// Resolve turns a path relative to the base URL, or an absolute next-page
// URL, into an absolute URL with params merged into its query.
func (c *Client) Resolve(ref string, params url.Values) (string, error) {
	u, err := c.baseURL.Parse(strings.TrimPrefix(ref, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid request path %q: %w", ref, err)
	}
	if len(params) > 0 {
		q := u.Query()
		for k, vals := range params {
			q.Del(k)
			for _, v := range vals {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Get issues a GET request for ref.
func (c *Client) Get(ctx context.Context, ref string, params url.Values) (*Response, error) {
	return c.Do(ctx, http.MethodGet, ref, params, nil, nil)
}

// GetJSON issues a GET request and decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, ref string, params url.Values, out any) (*Response, error) {
	resp, err := c.Get(ctx, ref, params)
	if err != nil {
		return nil, err
	}
	if err := resp.Decode(out); err != nil {
		return nil, err
	}
	return resp, nil
}

// Do sends one request through the limiter and the circuit breaker. It does
// not retry; callers wrap it in a RetryPolicy. Non-2xx responses return a
// *StatusError. A 429 carries the Retry-After hint for the policy.
func (c *Client) Do(ctx context.Context, method, ref string, params url.Values, body []byte, header http.Header) (*Response, error) {
	target, err := c.Resolve(ref, params)
	if err != nil {
		return nil, Permanent(err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	start := time.Now()
	statusCode := 0
	resp, err := c.executeBreaker(func() (*Response, error) {
		r, err := c.send(ctx, method, target, body, header)
		if r != nil {
			statusCode = r.StatusCode
		}
		return r, err
	})
	metrics.RecordFetch(c.name, statusCode, time.Since(start), err)
	return resp, err
}

func (c *Client) send(ctx context.Context, method, target string, body []byte, header http.Header) (*Response, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	for k, vals := range header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	if c.auth != nil {
		if err := c.auth.Authorize(ctx, req); err != nil {
			return nil, fmt.Errorf("authorize request: %w", err)
		}
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer httpResp.Body.Close()

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		URL:        target,
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		statusErr := &StatusError{
			StatusCode: httpResp.StatusCode,
			URL:        redactURL(target),
			Body:       readBodyForError(httpResp.Body),
		}
		if httpResp.StatusCode == http.StatusTooManyRequests {
			statusErr.retryAfter = parseRetryAfter(httpResp.Header.Get("Retry-After"), time.Now())
		}
		return resp, statusErr
	}

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	resp.Body = data
	return resp, nil
}

// parseRetryAfter accepts delay-seconds or an HTTP date (RFC 9110).
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	var d time.Duration
	if seconds, err := strconv.Atoi(value); err == nil {
		d = time.Duration(seconds) * time.Second
	} else if t, err := http.ParseTime(value); err == nil {
		d = t.Sub(now)
	}
	if d < 0 {
		return 0
	}
	if d > maxRetryAfter {
		return maxRetryAfter
	}
	return d
}

// redactURL drops query strings, which may carry credentials or tokens.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	return u.String()
}

// IsStatus reports whether err is a *StatusError with the given code.
func IsStatus(err error, code int) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == code
}
