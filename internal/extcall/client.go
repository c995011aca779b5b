// Package extcall is the shared HTTP helper command handlers use to reach
// external APIs. It enforces a timeout and is the single place where
// upstream failures are turned into user-facing operational errors.
package extcall

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nextlevelbuilder/wabot/internal/commands"
)

const (
	DefaultTimeout = 30 * time.Second
	maxErrorBody   = 4 << 10
	maxBody        = 8 << 20
)

// HTTPError is a non-2xx upstream response.
type HTTPError struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Body)
}

// Client wraps an http.Client with a per-call timeout.
type Client struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
}

// New creates a Client. A non-positive timeout uses DefaultTimeout.
func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		client:    &http.Client{Timeout: timeout},
		timeout:   timeout,
		userAgent: "wabot/1.0",
	}
}

// Request describes one call.
type Request struct {
	Method  string
	URL     string
	Header  map[string]string
	Body    any // JSON-encoded when non-nil
	Timeout time.Duration
}

// Do performs req and returns the raw response body. Non-2xx responses
// become *HTTPError.
func (c *Client) Do(ctx context.Context, req Request) ([]byte, error) {
	timeout := c.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", c.userAgent)
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.Header {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &HTTPError{
			Status:     resp.StatusCode,
			Body:       string(respBody),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return data, nil
}

// DoJSON performs req and decodes the JSON response into out.
func (c *Client) DoJSON(ctx context.Context, req Request, out any) error {
	data, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Translate maps an upstream failure from the named service to an
// operational error the user can act on. Errors that are not about the
// upstream (encoding bugs, nil) are returned unchanged.
func Translate(service string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := commands.AsOperational(err); ok {
		return err
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.Status == http.StatusTooManyRequests:
			return commands.WrapOperational(err, "%s is busy, try again later", service)
		case httpErr.Status == http.StatusUnauthorized || httpErr.Status == http.StatusForbidden:
			return commands.WrapOperational(err, "%s rejected the configured credentials", service)
		case httpErr.Status == http.StatusNotFound:
			return commands.WrapOperational(err, "%s found nothing for that request", service)
		case httpErr.Status >= 500:
			return commands.WrapOperational(err, "%s is unavailable right now", service)
		default:
			return commands.WrapOperational(err, "%s refused the request (HTTP %d)", service, httpErr.Status)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return commands.WrapOperational(err, "%s timed out", service)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return commands.WrapOperational(err, "%s timed out", service)
		}
		return commands.WrapOperational(err, "%s is unreachable", service)
	}
	return err
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
