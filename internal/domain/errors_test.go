package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantKind      ErrorKind
		wantStatus    int
		wantTransient bool
	}{
		{
			name:       "validation",
			err:        NewValidationError("prompt", "is required"),
			wantKind:   KindValidation,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:          "wrapped transport",
			err:           fmt.Errorf("generate: %w", &TransportError{Attempts: 3, Err: context.DeadlineExceeded}),
			wantKind:      KindTransport,
			wantStatus:    http.StatusBadGateway,
			wantTransient: true,
		},
		{
			name:          "upstream throttled",
			err:           &UpstreamError{StatusCode: http.StatusTooManyRequests, Message: "slow down"},
			wantKind:      KindUpstream,
			wantStatus:    http.StatusTooManyRequests,
			wantTransient: true,
		},
		{
			name:          "upstream server error",
			err:           &UpstreamError{StatusCode: http.StatusServiceUnavailable, Message: "maintenance"},
			wantKind:      KindUpstream,
			wantStatus:    http.StatusServiceUnavailable,
			wantTransient: true,
		},
		{
			name:       "upstream rejects credentials",
			err:        &UpstreamError{StatusCode: http.StatusUnauthorized, Message: "bad key"},
			wantKind:   KindUpstream,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "upstream body-level code",
			err:        &UpstreamError{Code: 430, Message: "credits"},
			wantKind:   KindUpstream,
			wantStatus: http.StatusBadGateway,
		},
		{
			name:          "parse",
			err:           &ParseError{Snippet: "<html>", Err: errors.New("invalid character")},
			wantKind:      KindParse,
			wantStatus:    http.StatusBadGateway,
			wantTransient: true,
		},
		{
			name:       "timeout",
			err:        fmt.Errorf("poll: %w", ErrTimeoutExceeded),
			wantKind:   KindTimeout,
			wantStatus: http.StatusGatewayTimeout,
		},
		{
			name:       "not found",
			err:        fmt.Errorf("job abc: %w", ErrNotFound),
			wantKind:   KindNotFound,
			wantStatus: http.StatusNotFound,
		},
		{
			name:          "throttled",
			err:           fmt.Errorf("submit: %w", ErrThrottled),
			wantKind:      KindThrottled,
			wantStatus:    http.StatusTooManyRequests,
			wantTransient: true,
		},
		{
			name:       "unknown",
			err:        errors.New("boom"),
			wantKind:   KindInternal,
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantKind, KindOf(tt.err))
			assert.Equal(t, tt.wantStatus, HTTPStatus(tt.err))
			assert.Equal(t, tt.wantTransient, IsTransient(tt.err))
		})
	}
}

func TestTransportError_Unwrap(t *testing.T) {
	err := &TransportError{Attempts: 2, Err: context.DeadlineExceeded}

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "2 attempt(s)")
}

func TestErrorFromKind(t *testing.T) {
	tests := []struct {
		kind          ErrorKind
		wantTransient bool
		wantStatus    int
	}{
		{kind: KindValidation, wantStatus: http.StatusBadRequest},
		{kind: KindTransport, wantTransient: true, wantStatus: http.StatusBadGateway},
		{kind: KindUpstream, wantTransient: true, wantStatus: http.StatusTooManyRequests},
		{kind: KindParse, wantTransient: true, wantStatus: http.StatusBadGateway},
		{kind: KindTimeout, wantStatus: http.StatusGatewayTimeout},
		{kind: KindNotFound, wantStatus: http.StatusNotFound},
		{kind: KindThrottled, wantTransient: true, wantStatus: http.StatusTooManyRequests},
		{kind: KindInternal, wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := ErrorFromKind(tt.kind, "boom", http.StatusTooManyRequests, 429)

			assert.Equal(t, tt.kind, KindOf(err))
			assert.Equal(t, tt.wantTransient, IsTransient(err))
			assert.Equal(t, tt.wantStatus, HTTPStatus(err))
			assert.Contains(t, err.Error(), "boom")
		})
	}
}
