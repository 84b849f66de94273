package httpx

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

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy controls the retry behaviour for transient failures.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Jitter     float64
	RetryIf    func(resp *http.Response, err error) bool
}

// NoRetry sends every request exactly once. It is the default.
var NoRetry = RetryPolicy{}

// DefaultRetryPolicy implements a conservative retry strategy for callers
// that opt into retries.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries: 3,
	BaseDelay:  250 * time.Millisecond,
	MaxDelay:   2 * time.Second,
	Jitter:     0.25,
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used by the helper.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithHeaders assigns default headers added to every request that does not
// already carry them.
func WithHeaders(h http.Header) Option {
	return func(c *Client) {
		for k, values := range h {
			for _, v := range values {
				c.headers.Add(k, v)
			}
		}
	}
}

// WithRetryPolicy overrides the retry configuration.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Client) {
		c.retryPolicy = policy
	}
}

// Client wraps http.Client adding default headers and optional retries.
// It never interprets response status codes beyond retry decisions.
type Client struct {
	httpClient  *http.Client
	headers     http.Header
	retryPolicy RetryPolicy
}

// NewClient returns a Client configured by opts.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient:  &http.Client{},
		headers:     make(http.Header),
		retryPolicy: NoRetry,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retryPolicy.MaxRetries < 0 {
		c.retryPolicy.MaxRetries = 0
	}
	if c.retryPolicy.MaxRetries > 0 {
		if c.retryPolicy.BaseDelay <= 0 {
			c.retryPolicy.BaseDelay = DefaultRetryPolicy.BaseDelay
		}
		if c.retryPolicy.MaxDelay <= 0 {
			c.retryPolicy.MaxDelay = DefaultRetryPolicy.MaxDelay
		}
	}
	return c
}

// HTTPClient exposes the underlying client.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// Do sends req and returns the final response whatever its status. Requests
// with a body are only retried when req.GetBody can replay it.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("httpx: request is nil")
	}
	for k, values := range c.headers {
		if req.Header.Get(k) != "" {
			continue
		}
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}

	ctx := req.Context()
	var bo *backoff.ExponentialBackOff
	attemptReq := req
	for attempt := 0; ; attempt++ {
		resp, err := c.httpClient.Do(attemptReq)
		if !c.shouldRetry(req, attempt, resp, err) {
			return resp, err
		}
		if resp != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			closeBody(resp.Body)
		}

		if bo == nil {
			bo = c.newBackOff()
		}
		if err := sleep(ctx, bo.NextBackOff()); err != nil {
			return nil, err
		}

		attemptReq = req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("httpx: replay request body: %w", err)
			}
			attemptReq.Body = body
		}
	}
}

func (c *Client) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryPolicy.BaseDelay
	bo.MaxInterval = c.retryPolicy.MaxDelay
	bo.RandomizationFactor = c.retryPolicy.Jitter
	bo.Multiplier = 2
	bo.Reset()
	return bo
}

func (c *Client) shouldRetry(req *http.Request, attempt int, resp *http.Response, err error) bool {
	if attempt >= c.retryPolicy.MaxRetries {
		return false
	}
	if req.Context().Err() != nil {
		return false
	}
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return false
	}
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return false
	}
	if c.retryPolicy.RetryIf != nil {
		return c.retryPolicy.RetryIf(resp, err)
	}
	if err != nil {
		return true
	}
	if resp == nil {
		return false
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode == http.StatusRequestTimeout:
		return true
	case resp.StatusCode >= 500 && resp.StatusCode <= 599:
		return true
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func closeBody(rc io.ReadCloser) {
	if rc != nil {
		_ = rc.Close()
	}
}

// JoinURL concatenates base and path with exactly one slash between them and
// merges q into whatever query the result already carries.
func JoinURL(base, path string, q url.Values) (string, error) {
	full := strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
	parsed, err := url.Parse(full)
	if err != nil {
		return "", fmt.Errorf("httpx: invalid request URL %q: %w", full, err)
	}
	if len(q) > 0 {
		merged := parsed.Query()
		for k, values := range q {
			for _, v := range values {
				merged.Add(k, v)
			}
		}
		parsed.RawQuery = merged.Encode()
	}
	return parsed.String(), nil
}

// JSONMarshal encodes v without HTML escaping and without the trailing newline.
func JSONMarshal(v any) ([]byte, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ReadAllAndClose drains the reader and ensures it is closed.
func ReadAllAndClose(rc io.ReadCloser) ([]byte, error) {
	defer closeBody(rc)
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// CloneHeader deep-copies src; a nil header yields an empty one.
func CloneHeader(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	for k, values := range src {
		vCopy := make([]string, len(values))
		copy(vCopy, values)
		dst[k] = vCopy
	}
	return dst
}
