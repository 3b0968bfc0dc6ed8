// Package suno talks to the upstream music generation provider.
package suno

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/cuongbtq/musicgen/internal/domain"
	"github.com/cuongbtq/musicgen/internal/transport"
)

const (
	// DefaultBaseURL is the provider API root
	DefaultBaseURL = "https://apibox.erweima.ai/api/v1"
	// DefaultGenerateTimeout bounds one generate/extend attempt
	DefaultGenerateTimeout = 120 * time.Second
	// DefaultStatusTimeout bounds one record-info attempt
	DefaultStatusTimeout = 10 * time.Second
	// DefaultMaxRetries is the transport retry count used when none is configured
	DefaultMaxRetries = 2

	codeOK = 200
)

// ErrMissingAPIKey indicates that the client was configured without credentials
var ErrMissingAPIKey = errors.New("suno: api key is required")

// Config holds provider client configuration
type Config struct {
	BaseURL         string
	APIKey          string
	GenerateTimeout time.Duration
	StatusTimeout   time.Duration
	MaxRetries      int
	RetryBaseDelay  time.Duration
	HTTPClient      *http.Client
	Logger          *slog.Logger
}

// Client performs calls to the provider's generate, record-info and extend endpoints
type Client struct {
	baseURL         string
	apiKey          string
	generateTimeout time.Duration
	statusTimeout   time.Duration
	transport       *transport.Client
	logger          *slog.Logger
}

// GenerateParams is the upstream generate payload
type GenerateParams struct {
	Prompt       string `json:"prompt,omitempty"`
	Style        string `json:"style,omitempty"`
	Title        string `json:"title,omitempty"`
	Tags         string `json:"tags,omitempty"`
	Model        string `json:"model,omitempty"`
	Tempo        string `json:"tempo,omitempty"`
	Instrumental bool   `json:"instrumental"`
	CustomMode   bool   `json:"customMode"`
	CallBackURL  string `json:"callBackUrl"`
}

// ExtendParams is the upstream extend payload
type ExtendParams struct {
	AudioID          string  `json:"audioId"`
	DefaultParamFlag bool    `json:"defaultParamFlag"`
	ContinueAt       float64 `json:"continueAt,omitempty"`
	Prompt           string  `json:"prompt,omitempty"`
	Style            string  `json:"style,omitempty"`
	Title            string  `json:"title,omitempty"`
	Model            string  `json:"model,omitempty"`
	CallBackURL      string  `json:"callBackUrl"`
}

// NewClient constructs a client with defaults applied
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	generateTimeout := cfg.GenerateTimeout
	if generateTimeout <= 0 {
		generateTimeout = DefaultGenerateTimeout
	}

	statusTimeout := cfg.StatusTimeout
	if statusTimeout <= 0 {
		statusTimeout = DefaultStatusTimeout
	}

	// zero is a valid setting that disables retry
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:         baseURL,
		apiKey:          strings.TrimSpace(cfg.APIKey),
		generateTimeout: generateTimeout,
		statusTimeout:   statusTimeout,
		transport: transport.NewClient(transport.Config{
			Timeout:    statusTimeout,
			MaxRetries: maxRetries,
			BaseDelay:  cfg.RetryBaseDelay,
			HTTPClient: cfg.HTTPClient,
			Logger:     logger,
		}),
		logger: logger,
	}
}

// HasCredentials reports whether the client can perform remote calls
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// BaseURL returns the configured provider root
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Generate submits a generation job and returns the raw provider document
func (c *Client) Generate(ctx context.Context, params GenerateParams) ([]byte, error) {
	return c.post(ctx, "/generate", params)
}

// Extend submits an extension of an existing track and returns the raw provider document
func (c *Client) Extend(ctx context.Context, params ExtendParams) ([]byte, error) {
	return c.post(ctx, "/generate/extend", params)
}

// RecordInfo fetches the provider's record for taskID
func (c *Client) RecordInfo(ctx context.Context, taskID string) (*RecordInfo, []byte, error) {
	if !c.HasCredentials() {
		return nil, nil, ErrMissingAPIKey
	}

	endpoint := c.baseURL + "/generate/record-info?taskId=" + url.QueryEscape(taskID)
	resp, err := c.transport.Do(ctx, &transport.Request{
		Method:  http.MethodGet,
		URL:     endpoint,
		Header:  c.headers(),
		Timeout: c.statusTimeout,
	})
	if err != nil {
		return nil, nil, c.mapError(err)
	}

	if err := checkEnvelope(resp.Body); err != nil {
		return nil, resp.Body, err
	}

	info, err := decodeRecordInfo(resp.Body)
	if err != nil {
		return nil, resp.Body, err
	}

	c.logger.Debug("Record info fetched",
		slog.String("task_id", taskID),
		slog.String("status", info.Status),
	)

	return info, resp.Body, nil
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIKey
	}

	body, err := sonic.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("suno: encode request: %w", err)
	}

	c.logger.Info("Calling provider",
		slog.String("path", path),
		slog.Int("body_size", len(body)),
	)

	headers := c.headers()
	headers.Set("Content-Type", "application/json")

	resp, err := c.transport.Do(ctx, &transport.Request{
		Method:  http.MethodPost,
		URL:     c.baseURL + path,
		Header:  headers,
		Body:    body,
		Timeout: c.generateTimeout,
	})
	if err != nil {
		return nil, c.mapError(err)
	}

	c.logger.Debug("Provider response",
		slog.String("path", path),
		slog.String("body", transport.Snippet(resp.Body)),
	)

	if err := checkEnvelope(resp.Body); err != nil {
		return resp.Body, err
	}

	return resp.Body, nil
}

func (c *Client) headers() http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json")
	h.Set("Authorization", "Bearer "+c.apiKey)
	return h
}

// mapError turns a non-2xx transport response into an UpstreamError
func (c *Client) mapError(err error) error {
	var statusErr *transport.StatusError
	if !errors.As(err, &statusErr) {
		return err
	}

	upstreamErr := &domain.UpstreamError{
		StatusCode: statusErr.StatusCode,
		Message:    strings.TrimSpace(transport.Snippet(statusErr.Body)),
	}

	var doc map[string]interface{}
	if sonic.Unmarshal(statusErr.Body, &doc) == nil {
		if code, ok := intValue(doc["code"]); ok {
			upstreamErr.Code = code
		}
		if msg := messageOf(doc); msg != "" {
			upstreamErr.Message = msg
		}
	}
	if upstreamErr.Message == "" {
		upstreamErr.Message = http.StatusText(statusErr.StatusCode)
	}

	return upstreamErr
}

// checkEnvelope rejects bodies that are not JSON objects and bodies whose
// provider-level code reports an error despite a 2xx HTTP status.
func checkEnvelope(body []byte) error {
	var doc map[string]interface{}
	if err := sonic.Unmarshal(body, &doc); err != nil {
		return &domain.ParseError{Snippet: transport.Snippet(body), Err: err}
	}

	code, ok := intValue(doc["code"])
	if !ok || code == codeOK {
		return nil
	}

	statusCode := http.StatusBadGateway
	if code >= 400 && code <= 599 {
		statusCode = code
	}

	msg := messageOf(doc)
	if msg == "" {
		msg = "provider reported code " + strconv.Itoa(code)
	}

	return &domain.UpstreamError{StatusCode: statusCode, Code: code, Message: msg}
}

func messageOf(doc map[string]interface{}) string {
	for _, key := range []string{"msg", "message", "error"} {
		if s, ok := doc[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func intValue(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int64:
		return int(n), true
	case int:
		return n, true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	default:
		return 0, false
	}
}
