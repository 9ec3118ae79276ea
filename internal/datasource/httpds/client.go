// Package httpds fetches source data over HTTP with retry and exponential
// backoff on transient failures.
package httpds

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Config configures a Client. Zero values take these defaults: Timeout 30s,
// InitialBackoff 200ms, MaxBackoff 5s. MaxRetries 0 means a single attempt.
type Config struct {
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// InsecureSkipVerify disables TLS certificate checks. Ignored when
	// Transport is set.
	InsecureSkipVerify bool

	// Header is sent with every request.
	Header http.Header

	Transport http.RoundTripper
}

// Client issues GET requests, retrying 429, 5xx and transport errors.
type Client struct {
	hc      *http.Client
	retries int
	initial time.Duration
	max     time.Duration
	header  http.Header
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}
	rt := cfg.Transport
	if rt == nil {
		rt = &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}, //nolint:gosec // opt-in
		}
	}
	return &Client{
		hc:      &http.Client{Timeout: cfg.Timeout, Transport: rt},
		retries: cfg.MaxRetries,
		initial: cfg.InitialBackoff,
		max:     cfg.MaxBackoff,
		header:  cfg.Header.Clone(),
	}
}

// StatusError is a final non-2xx response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpds: GET %s: status %d", e.URL, e.Code)
}

// Get fetches url and returns the body of the first 2xx response. The caller
// closes it. A non-retryable status yields *StatusError; running out of
// attempts returns the last failure.
func (c *Client) Get(ctx context.Context, url string) (io.ReadCloser, error) {
	if url == "" {
		return nil, fmt.Errorf("httpds: empty url")
	}
	var last error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			d := backoff(c.initial, attempt-1, c.max)
			log.Printf("httpds: retry url=%s attempt=%d wait=%s err=%v", url, attempt, d, last)
			if err := wait(ctx, d); err != nil {
				return nil, err
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("httpds: build request: %w", err)
		}
		for k, vs := range c.header {
			req.Header[k] = append([]string(nil), vs...)
		}
		resp, err := c.hc.Do(req)
		if err != nil {
			last = err
			continue
		}
		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return resp.Body, nil
		case retryable(resp.StatusCode):
			resp.Body.Close()
			last = &StatusError{URL: url, Code: resp.StatusCode}
		default:
			resp.Body.Close()
			return nil, &StatusError{URL: url, Code: resp.StatusCode}
		}
	}
	return nil, last
}

// Remote binds a URL to c as an opener.
func (c *Client) Remote(url string) *Remote { return &Remote{c: c, url: url} }

// Remote opens one URL. Every Open issues a new request.
type Remote struct {
	c   *Client
	url string
}

func (r *Remote) URL() string { return r.url }

func (r *Remote) Open(ctx context.Context) (io.ReadCloser, error) { return r.c.Get(ctx, r.url) }

func retryable(code int) bool {
	return code == http.StatusTooManyRequests || (code >= 500 && code <= 599)
}

// backoff is initial * 2^n, clamped to max.
func backoff(initial time.Duration, n int, max time.Duration) time.Duration {
	if n > 30 {
		return max
	}
	d := initial << n
	if d > max || d <= 0 {
		return max
	}
	return d
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
