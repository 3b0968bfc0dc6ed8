package dto

import "time"

// EnqueueRequest queues a generation for the worker service.
// Key is an optional idempotency key; one is generated when empty.
type EnqueueRequest struct {
	Key     string          `json:"key,omitempty"`
	Request GenerateRequest `json:"request" binding:"required"`
}

// EnqueueResponse reports the queued job
type EnqueueResponse struct {
	Key     string `json:"key"`
	State   string `json:"state"`
	Created bool   `json:"created"`
}

// GenerationMessage is the RabbitMQ payload consumed by the worker
type GenerationMessage struct {
	Key     string          `json:"key"`
	Request GenerateRequest `json:"request"`
}

// ListJobsRequest holds list filters and keyset pagination
type ListJobsRequest struct {
	State    string `form:"state"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

// ListJobsResponse is one page of tracked jobs
type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

// JobDTO is a persisted tracker snapshot
type JobDTO struct {
	Key        string    `json:"key"`
	State      string    `json:"state"`
	ID         string    `json:"id,omitempty"`
	Status     string    `json:"status,omitempty"`
	Progress   float64   `json:"progress"`
	AudioURL   string    `json:"audioUrl,omitempty"`
	Error      string    `json:"error,omitempty"`
	ErrorKind  string    `json:"errorKind,omitempty"`
	RetryCount int       `json:"retryCount"`
	Polls      int       `json:"polls"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
