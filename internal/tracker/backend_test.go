package tracker

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/musicgen/internal/api/dto"
	"github.com/cuongbtq/musicgen/internal/domain"
)

type seenRequest struct {
	mu    sync.Mutex
	path  string
	query url.Values
}

func (s *seenRequest) get() (string, url.Values) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path, s.query
}

func newBackendServer(t *testing.T, status int, body string) (*HTTPBackend, *seenRequest) {
	t.Helper()
	seen := &seenRequest{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.mu.Lock()
		seen.path, seen.query = r.URL.Path, r.URL.Query()
		seen.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	return NewHTTPBackend(HTTPBackendConfig{BaseURL: srv.URL + "/", PollTimeout: time.Second}), seen
}

func TestHTTPBackend_Status(t *testing.T) {
	backend, seen := newBackendServer(t, http.StatusOK,
		`{"id":"task-1","status":"COMPLETE","progress":1,"audioUrl":"https://cdn/x.mp3"}`)

	env, err := backend.Status(context.Background(), "pending-1 2")

	require.NoError(t, err)
	path, query := seen.get()
	assert.Equal(t, "/api/v1/status", path)
	assert.Equal(t, "pending-1 2", query.Get("id"))
	assert.Equal(t, domain.JobStatusComplete, env.Status)
	assert.Equal(t, "https://cdn/x.mp3", env.AudioURL)
}

func TestHTTPBackend_Submit(t *testing.T) {
	var got dto.GenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/generate", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"id":"task-1","status":"SUBMITTED","progress":0}`)
	}))
	defer srv.Close()

	instrumental := true
	backend := NewHTTPBackend(HTTPBackendConfig{BaseURL: srv.URL})
	env, err := backend.Submit(context.Background(), dto.GenerateRequest{Prompt: "lofi", Instrumental: &instrumental})

	require.NoError(t, err)
	assert.Equal(t, "task-1", env.ID)
	assert.Equal(t, "lofi", got.Prompt)
	require.NotNil(t, got.Instrumental)
	assert.True(t, *got.Instrumental)
}

func TestHTTPBackend_ErrorReconstruction(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantKind      domain.ErrorKind
		wantTransient bool
		wantHTTP      int
	}{
		{
			name:     "validation",
			status:   http.StatusBadRequest,
			body:     `{"message":"id: is required","kind":"validation"}`,
			wantKind: domain.KindValidation,
			wantHTTP: http.StatusBadRequest,
		},
		{
			name:          "transport",
			status:        http.StatusBadGateway,
			body:          `{"message":"transport exhausted","kind":"transport"}`,
			wantKind:      domain.KindTransport,
			wantTransient: true,
			wantHTTP:      http.StatusBadGateway,
		},
		{
			name:          "upstream keeps status and code",
			status:        http.StatusTooManyRequests,
			body:          `{"message":"insufficient credits","kind":"upstream","code":429}`,
			wantKind:      domain.KindUpstream,
			wantTransient: true,
			wantHTTP:      http.StatusTooManyRequests,
		},
		{
			name:     "upstream rejects credentials",
			status:   http.StatusUnauthorized,
			body:     `{"message":"invalid api key","kind":"upstream","code":401}`,
			wantKind: domain.KindUpstream,
			wantHTTP: http.StatusUnauthorized,
		},
		{
			name:          "service rate limit",
			status:        http.StatusTooManyRequests,
			body:          `{"message":"too many requests, retry in 2s","kind":"throttled"}`,
			wantKind:      domain.KindThrottled,
			wantTransient: true,
			wantHTTP:      http.StatusTooManyRequests,
		},
		{
			name:          "non-json error page",
			status:        http.StatusServiceUnavailable,
			body:          `<html>down</html>`,
			wantKind:      domain.KindParse,
			wantTransient: true,
			wantHTTP:      http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend, _ := newBackendServer(t, tt.status, tt.body)

			_, err := backend.Status(context.Background(), "task-1")

			require.Error(t, err)
			assert.Equal(t, tt.wantKind, domain.KindOf(err))
			assert.Equal(t, tt.wantTransient, domain.IsTransient(err))
			assert.Equal(t, tt.wantHTTP, domain.HTTPStatus(err))
		})
	}
}

func TestHTTPBackend_UndecodableSuccess(t *testing.T) {
	backend, _ := newBackendServer(t, http.StatusOK, `not json`)

	_, err := backend.Status(context.Background(), "task-1")

	assert.Equal(t, domain.KindParse, domain.KindOf(err))
}

func TestHTTPBackend_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	backend := NewHTTPBackend(HTTPBackendConfig{BaseURL: baseURL, PollTimeout: time.Second})
	_, err := backend.Status(context.Background(), "task-1")

	var transportErr *domain.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, 1, transportErr.Attempts)
	assert.True(t, domain.IsTransient(err))
}
