package router

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/musicgen/internal/api/dto"
	"github.com/cuongbtq/musicgen/internal/api/handler"
	"github.com/cuongbtq/musicgen/internal/domain"
)

type stubSubmitter struct{}

func (stubSubmitter) Submit(context.Context, dto.GenerateRequest) (*dto.JobEnvelope, error) {
	return &dto.JobEnvelope{ID: "task-1", Status: domain.JobStatusSubmitted}, nil
}

func (stubSubmitter) Extend(context.Context, dto.ExtendRequest) (*dto.JobEnvelope, error) {
	return &dto.JobEnvelope{ID: "task-2", Status: domain.JobStatusSubmitted}, nil
}

type stubStatusReader struct{}

func (stubStatusReader) Status(_ context.Context, id string, _ bool) (*dto.StatusEnvelope, error) {
	return &dto.StatusEnvelope{ID: id, Status: domain.JobStatusProcessing}, nil
}

func newTestRouter(rps int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	deps := &handler.Dependencies{
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Gateway:    stubSubmitter{},
		Normalizer: stubStatusReader{},
	}
	return SetupRouter(deps, Options{ServiceName: "musicgen-api-service", SubmitRateLimit: rps})
}

func serve(r *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSetupRouter_Routes(t *testing.T) {
	r := newTestRouter(0)

	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		wantStatus int
	}{
		{name: "health", method: http.MethodGet, target: "/health", wantStatus: http.StatusOK},
		{name: "generate", method: http.MethodPost, target: "/api/v1/generate", body: `{}`, wantStatus: http.StatusOK},
		{name: "extend", method: http.MethodPost, target: "/api/v1/generate/extend", body: `{"id":"a"}`, wantStatus: http.StatusOK},
		{name: "status query", method: http.MethodGet, target: "/api/v1/status?id=a", wantStatus: http.StatusOK},
		{name: "status path", method: http.MethodGet, target: "/api/v1/status/a", wantStatus: http.StatusOK},
		{name: "callback post", method: http.MethodPost, target: "/api/v1/callback", body: `{}`, wantStatus: http.StatusOK},
		{name: "callback head", method: http.MethodHead, target: "/api/v1/callback", wantStatus: http.StatusOK},
		{name: "callback cache disabled", method: http.MethodGet, target: "/api/v1/callbacks/t", wantStatus: http.StatusServiceUnavailable},
		{name: "jobs disabled", method: http.MethodGet, target: "/api/v1/jobs", wantStatus: http.StatusServiceUnavailable},
		{name: "debug", method: http.MethodGet, target: "/api/v1/debug", wantStatus: http.StatusOK},
		{name: "unknown", method: http.MethodGet, target: "/api/v1/nope", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(r, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	r := newTestRouter(0)

	w := serve(r, http.MethodOptions, "/api/v1/generate", "")

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestRateLimitMiddleware(t *testing.T) {
	r := newTestRouter(2)

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = serve(r, http.MethodPost, "/api/v1/generate", `{}`)
		codes = append(codes, last.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(last.Body.Bytes(), &resp))
	assert.Equal(t, domain.KindThrottled, resp.Kind)
	assert.True(t, domain.IsTransient(domain.ErrorFromKind(resp.Kind, resp.Message, last.Code, resp.Code)))

	// status polling is never limited
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/v1/status?id=a", "").Code)
	}
}

func TestRateLimiter_PerIPAndSweep(t *testing.T) {
	now := time.Unix(1700000000, 0)
	rl := NewRateLimiter(1)
	rl.now = func() time.Time { return now }

	require.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"))

	now = now.Add(limiterIdleTTL + time.Second)
	assert.True(t, rl.Allow("10.0.0.3"))
	assert.Len(t, rl.ips, 1)
}
