// Package httpclient provides the polite HTTP session used for all site
// traffic: shared default headers, randomized inter-request delays,
// robots.txt checks and response size limits.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/metrics"
)

const (
	// DefaultTimeout is the default request timeout
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize is the maximum response body size (10MB)
	MaxResponseSize = 10 * 1024 * 1024
)

// ErrRobotsDisallowed is returned when robots.txt forbids fetching a URL.
type ErrRobotsDisallowed struct {
	URL string
}

func (e *ErrRobotsDisallowed) Error() string {
	return fmt.Sprintf("blocked by robots.txt: %s", e.URL)
}

// Config holds HTTP client configuration
type Config struct {
	Timeout         time.Duration
	MaxIdleConns    int
	IdleConnTimeout time.Duration
	MinDelay        time.Duration
	MaxDelay        time.Duration
	RespectRobots   bool
	DefaultHeaders  map[string]string
}

// DefaultConfig returns default HTTP client configuration
func DefaultConfig() Config {
	return Config{
		Timeout:         DefaultTimeout,
		MaxIdleConns:    100,
		IdleConnTimeout: 90 * time.Second,
		MinDelay:        1 * time.Second,
		MaxDelay:        2500 * time.Millisecond,
		RespectRobots:   true,
	}
}

// Client wraps the HTTP client with default headers, politeness delays,
// robots checks, logging and size limits.
type Client struct {
	client *http.Client
	robots *RobotsCache
	cfg    Config
	logger ectologger.Logger
}

// NewClient creates a new HTTP client
func NewClient(cfg Config, logger ectologger.Logger) *Client {
	transport := &http.Transport{
		MaxIdleConns:    cfg.MaxIdleConns,
		IdleConnTimeout: cfg.IdleConnTimeout,
		Proxy:           http.ProxyFromEnvironment,
	}

	return &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		robots: NewRobotsCache(&http.Client{Timeout: 10 * time.Second}),
		cfg:    cfg,
		logger: logger,
	}
}

// Response represents an HTTP response
type Response struct {
	StatusCode    int               `json:"status_code"`
	Headers       map[string]string `json:"headers"`
	Body          []byte            `json:"-"`
	ContentType   string            `json:"content_type"`
	ContentLength int64             `json:"content_length"`
	Duration      time.Duration     `json:"duration_ms"`
}

// Do executes an HTTP request and returns the response
func (c *Client) Do(ctx context.Context, req *http.Request) (*Response, error) {
	start := time.Now()

	resp, err := c.client.Do(req.WithContext(ctx))
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Errorf("HTTP request failed: %s %s", req.Method, req.URL.String())
		metrics.RecordHTTPRequest(req.Method, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start)
	metrics.RecordHTTPRequest(req.Method, strconv.Itoa(resp.StatusCode), duration.Seconds())

	if resp.ContentLength > MaxResponseSize {
		return nil, fmt.Errorf("response too large: %d bytes (max %d)", resp.ContentLength, MaxResponseSize)
	}

	limitedReader := io.LimitReader(resp.Body, MaxResponseSize+1)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("response body too large: %d bytes (max %d)", len(body), MaxResponseSize)
	}

	headers := make(map[string]string)
	for key, values := range resp.Header {
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}

	response := &Response{
		StatusCode:    resp.StatusCode,
		Headers:       headers,
		Body:          body,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: int64(len(body)),
		Duration:      duration,
	}

	c.logger.WithContext(ctx).Debugf("HTTP %s %s -> %d (%s)",
		req.Method, req.URL.String(), resp.StatusCode, duration)

	return response, nil
}

// Get performs a GET request with the session's default headers merged with
// the provided per-call headers. Robots rules and the politeness delay apply.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) (*Response, error) {
	if c.cfg.RespectRobots {
		ua := c.cfg.DefaultHeaders["User-Agent"]
		if h, ok := headers["User-Agent"]; ok {
			ua = h
		}
		if !c.robots.IsAllowed(ctx, ua, url) {
			return nil, &ErrRobotsDisallowed{URL: url}
		}
	}

	c.sleep(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range c.cfg.DefaultHeaders {
		req.Header.Set(key, value)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return c.Do(ctx, req)
}

// FetchJSON performs a GET request and decodes the body as JSON, retrying up
// to three times on non-success statuses or decode failures.
func (c *Client) FetchJSON(ctx context.Context, url string, headers map[string]string) (any, error) {
	var lastErr error

	for attempt := 0; attempt < 3; attempt++ {
		resp, err := c.Get(ctx, url, headers)
		if err != nil {
			lastErr = err
		} else if !IsSuccessStatus(resp.StatusCode) {
			lastErr = fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
		} else {
			data, err := ParseJSON(resp.Body)
			if err == nil {
				return data, nil
			}
			lastErr = err
		}

		if attempt == 2 {
			break
		}

		// Brief backoff before retrying, capped at 3s.
		delay := time.Duration(attempt+1) * time.Second
		if delay > 3*time.Second {
			delay = 3 * time.Second
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, lastErr
}

// sleep waits a randomized interval between MinDelay and MaxDelay.
func (c *Client) sleep(ctx context.Context) {
	if c.cfg.MaxDelay <= 0 {
		return
	}
	delay := c.cfg.MinDelay
	if span := c.cfg.MaxDelay - c.cfg.MinDelay; span > 0 {
		delay += time.Duration(rand.Int63n(int64(span)))
	}
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

// SetTimeout sets a custom timeout for the client
func (c *Client) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}
