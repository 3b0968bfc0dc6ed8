package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/cuongbtq/musicgen/internal/api/dto"
	"github.com/cuongbtq/musicgen/internal/domain"
	"github.com/cuongbtq/musicgen/internal/transport"
)

const (
	// DefaultSubmitTimeout bounds one submit or extend call
	DefaultSubmitTimeout = 130 * time.Second
	// DefaultPollTimeout bounds one status call
	DefaultPollTimeout = 15 * time.Second
)

// Backend is the API the tracker drives
type Backend interface {
	Submit(ctx context.Context, req dto.GenerateRequest) (*dto.JobEnvelope, error)
	Extend(ctx context.Context, req dto.ExtendRequest) (*dto.JobEnvelope, error)
	Status(ctx context.Context, id string) (*dto.StatusEnvelope, error)
}

// HTTPBackendConfig holds HTTP backend configuration
type HTTPBackendConfig struct {
	BaseURL       string
	SubmitTimeout time.Duration
	PollTimeout   time.Duration
	HTTPClient    *http.Client
	Logger        *slog.Logger
}

// HTTPBackend calls the service's /api/v1 endpoints.
// Transport retries are disabled; the tracker owns the retry policy.
type HTTPBackend struct {
	baseURL       string
	submitTimeout time.Duration
	pollTimeout   time.Duration
	client        *transport.Client
}

// NewHTTPBackend creates an HTTPBackend
func NewHTTPBackend(cfg HTTPBackendConfig) *HTTPBackend {
	submitTimeout := cfg.SubmitTimeout
	if submitTimeout <= 0 {
		submitTimeout = DefaultSubmitTimeout
	}
	pollTimeout := cfg.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}

	return &HTTPBackend{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		submitTimeout: submitTimeout,
		pollTimeout:   pollTimeout,
		client: transport.NewClient(transport.Config{
			Timeout:    pollTimeout,
			MaxRetries: 0,
			HTTPClient: cfg.HTTPClient,
			Logger:     cfg.Logger,
		}),
	}
}

// Submit calls POST /api/v1/generate
func (b *HTTPBackend) Submit(ctx context.Context, req dto.GenerateRequest) (*dto.JobEnvelope, error) {
	var env dto.JobEnvelope
	if err := b.post(ctx, "/api/v1/generate", req, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// Extend calls POST /api/v1/generate/extend
func (b *HTTPBackend) Extend(ctx context.Context, req dto.ExtendRequest) (*dto.JobEnvelope, error) {
	var env dto.JobEnvelope
	if err := b.post(ctx, "/api/v1/generate/extend", req, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// Status calls GET /api/v1/status?id=
func (b *HTTPBackend) Status(ctx context.Context, id string) (*dto.StatusEnvelope, error) {
	resp, err := b.client.Do(ctx, &transport.Request{
		Method:  http.MethodGet,
		URL:     b.baseURL + "/api/v1/status?id=" + url.QueryEscape(id),
		Header:  http.Header{"Accept": []string{"application/json"}},
		Timeout: b.pollTimeout,
	})
	if err != nil {
		return nil, decodeError(err)
	}

	var env dto.StatusEnvelope
	if err := decodeBody(resp.Body, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

func (b *HTTPBackend) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := sonic.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	resp, err := b.client.Do(ctx, &transport.Request{
		Method: http.MethodPost,
		URL:    b.baseURL + path,
		Header: http.Header{
			"Content-Type": []string{"application/json"},
			"Accept":       []string{"application/json"},
		},
		Body:    body,
		Timeout: b.submitTimeout,
	})
	if err != nil {
		return decodeError(err)
	}

	return decodeBody(resp.Body, out)
}

func decodeBody(body []byte, out interface{}) error {
	if err := sonic.Unmarshal(body, out); err != nil {
		return &domain.ParseError{Snippet: transport.Snippet(body), Err: err}
	}
	return nil
}

// decodeError turns an error answer back into the typed error the service raised
func decodeError(err error) error {
	var statusErr *transport.StatusError
	if !errors.As(err, &statusErr) {
		return err
	}

	var resp dto.ErrorResponse
	if decodeErr := sonic.Unmarshal(statusErr.Body, &resp); decodeErr != nil || resp.Kind == "" {
		return &domain.ParseError{
			Snippet: transport.Snippet(statusErr.Body),
			Err:     fmt.Errorf("unexpected status %d", statusErr.StatusCode),
		}
	}
	return domain.ErrorFromKind(resp.Kind, resp.Message, statusErr.StatusCode, resp.Code)
}
