package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/musicgen/internal/domain"
)

const (
	// DefaultTimeout bounds a single attempt when neither the request nor the client sets one
	DefaultTimeout = 10 * time.Second
	// DefaultBaseDelay is the first backoff delay
	DefaultBaseDelay = time.Second
	// maxBodySnippet limits how much of an error body is kept
	maxBodySnippet = 512
)

// Config holds transport configuration
type Config struct {
	Timeout    time.Duration // per-attempt timeout
	MaxRetries int           // retries after the first attempt; 0 disables retry
	BaseDelay  time.Duration // backoff delay is BaseDelay * 2^attempt
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client performs outbound HTTP calls with a per-attempt timeout and
// exponential backoff on transport failures.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// Request is one outbound call
type Request struct {
	Method  string
	URL     string
	Header  http.Header
	Body    []byte
	Timeout time.Duration // overrides Config.Timeout when set
}

// Response is a fully read response with a 2xx status
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// StatusError is returned for non-2xx responses. It is never retried.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, Snippet(e.Body))
}

// NewClient creates a new transport client
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}

	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		httpClient: httpClient,
		timeout:    timeout,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		logger:     logger,
		sleep:      sleepContext,
	}
}

// Do sends req, retrying transport failures with exponential backoff.
// Non-2xx responses are returned immediately as *StatusError.
// When every attempt fails the error is a *domain.TransportError holding the last cause.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		attempts++
		resp, err := c.attempt(ctx, req, timeout)
		if err == nil {
			if attempt > 0 {
				c.logger.Info("Upstream call succeeded after retry",
					slog.String("url", req.URL),
					slog.Int("attempt", attempt+1),
				)
			}
			return resp, nil
		}

		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			return nil, statusErr
		}

		lastErr = err

		// the caller gave up; further attempts would fail the same way
		if ctx.Err() != nil {
			break
		}

		if attempt < c.maxRetries {
			backoffDelay := c.baseDelay * time.Duration(uint(1)<<uint(attempt))
			c.logger.Warn("Upstream call failed, retrying...",
				slog.String("method", req.Method),
				slog.String("url", req.URL),
				slog.Int("attempt", attempt+1),
				slog.Int("max_retries", c.maxRetries),
				slog.Duration("retry_after", backoffDelay),
				slog.Any("error", err),
			)
			if err := c.sleep(ctx, backoffDelay); err != nil {
				break
			}
		}
	}

	c.logger.Error("Upstream call failed after all retries",
		slog.String("method", req.Method),
		slog.String("url", req.URL),
		slog.Int("attempts", attempts),
		slog.Any("error", lastErr),
	)
	return nil, &domain.TransportError{Attempts: attempts, Err: lastErr}
}

func (c *Client) attempt(ctx context.Context, req *Request, timeout time.Duration) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("Upstream call completed",
		slog.String("method", method),
		slog.String("url", req.URL),
		slog.Int("status", resp.StatusCode),
		slog.Duration("latency", time.Since(start)),
		slog.Int("body_size", len(raw)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: raw}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       raw,
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snippet returns a bounded prefix of body for logs and error messages
func Snippet(body []byte) string {
	if len(body) > maxBodySnippet {
		return string(body[:maxBodySnippet]) + "..."
	}
	return string(body)
}
