package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuongbtq/musicgen/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(maxRetries int, timeout time.Duration) (*Client, *[]time.Duration) {
	delays := &[]time.Duration{}
	c := NewClient(Config{
		Timeout:    timeout,
		MaxRetries: maxRetries,
		BaseDelay:  10 * time.Millisecond,
	})
	c.sleep = func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
	return c, delays
}

func TestClient_Do_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c, delays := newTestClient(2, time.Second)
	resp, err := c.Do(context.Background(), &Request{
		Method: http.MethodPost,
		URL:    srv.URL,
		Header: http.Header{"Authorization": []string{"Bearer key"}},
		Body:   []byte(`{}`),
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
	assert.Empty(t, *delays)
}

func TestClient_Do_StatusErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"msg":"bad key"}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(2, time.Second)
	_, err := c.Do(context.Background(), &Request{URL: srv.URL})

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.JSONEq(t, `{"msg":"bad key"}`, string(statusErr.Body))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_Do_TimeoutRetriedWithBackoff(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c, delays := newTestClient(2, 20*time.Millisecond)
	_, err := c.Do(context.Background(), &Request{URL: srv.URL})

	var transportErr *domain.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, 3, transportErr.Attempts)
	assert.Error(t, transportErr.Err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, *delays)
	assert.Equal(t, domain.KindTransport, domain.KindOf(err))
}

func TestClient_Do_RecoversAfterConnectionReset(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			hj, ok := w.(http.Hijacker)
			if !ok {
				return
			}
			if conn, _, err := hj.Hijack(); err == nil {
				_ = conn.Close()
			}
			return
		}
		_, _ = w.Write([]byte(`{"data":"ok"}`))
	}))
	defer srv.Close()

	c, delays := newTestClient(2, time.Second)
	resp, err := c.Do(context.Background(), &Request{URL: srv.URL})

	require.NoError(t, err)
	assert.JSONEq(t, `{"data":"ok"}`, string(resp.Body))
	assert.Equal(t, int32(2), calls.Load())
	assert.Len(t, *delays, 1)
}

func TestClient_Do_CanceledContextStopsRetrying(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c, delays := newTestClient(3, time.Second)
	_, err := c.Do(ctx, &Request{URL: srv.URL})

	var transportErr *domain.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, 1, transportErr.Attempts)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, *delays)
}

func TestSnippet(t *testing.T) {
	long := make([]byte, maxBodySnippet+10)
	for i := range long {
		long[i] = 'a'
	}

	assert.Equal(t, "short", Snippet([]byte("short")))
	assert.Len(t, Snippet(long), maxBodySnippet+3)
}
