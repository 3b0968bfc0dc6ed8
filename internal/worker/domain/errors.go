package domain

import "errors"

var (
	// ErrClaimLost is returned when another worker took the job over after a stale heartbeat
	ErrClaimLost = errors.New("job claim taken over by another worker")

	// ErrJobAlreadyClaimed is returned when a job is terminal or held by a live worker
	ErrJobAlreadyClaimed = errors.New("job already claimed or already finished")

	// ErrInvalidPayload is returned when a queued request cannot be decoded
	ErrInvalidPayload = errors.New("invalid job payload")

	// ErrJobTimeout is returned when a job outlives the worker's job timeout
	ErrJobTimeout = errors.New("job exceeded worker timeout")
)

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
