package model

import "time"

// GenerationJob is one row of generation_jobs: a queued request and
// the latest tracker snapshot the worker wrote for it.
type GenerationJob struct {
	RequestKey   string    `db:"request_key"`
	Request      []byte    `db:"request"`
	State        string    `db:"state"`
	JobID        string    `db:"job_id"`
	Status       string    `db:"status"`
	Progress     float64   `db:"progress"`
	AudioURL     string    `db:"audio_url"`
	ErrorMessage string    `db:"error_message"`
	ErrorKind    string    `db:"error_kind"`
	RetryCount   int       `db:"retry_count"`
	Polls        int       `db:"polls"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}
