package domain

import (
	"errors"
	"fmt"
)

// JobStatus is the normalized status of a generation job
type JobStatus string

// Job status constants
const (
	JobStatusSubmitted  JobStatus = "SUBMITTED"
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusComplete   JobStatus = "COMPLETE"
	JobStatusFailed     JobStatus = "FAILED"
)

var (
	// ErrJobTerminal is returned when a result is applied to a COMPLETE or FAILED job
	ErrJobTerminal = errors.New("job is terminal")

	// ErrInvalidStatus is returned for a status outside the job vocabulary
	ErrInvalidStatus = errors.New("invalid job status")
)

// IsTerminal reports whether no further transitions are allowed
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusComplete || s == JobStatusFailed
}

// Valid reports whether s belongs to the job status vocabulary
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusSubmitted, JobStatusPending, JobStatusProcessing, JobStatusComplete, JobStatusFailed:
		return true
	}
	return false
}

func (s JobStatus) rank() int {
	switch s {
	case JobStatusProcessing:
		return 1
	case JobStatusComplete, JobStatusFailed:
		return 2
	default:
		return 0
	}
}

// Job is one generation request's lifecycle record
type Job struct {
	ID         string    `json:"id"`
	Status     JobStatus `json:"status"`
	Progress   float64   `json:"progress"`
	AudioURL   string    `json:"audioUrl,omitempty"`
	Error      string    `json:"error,omitempty"`
	RetryCount int       `json:"retryCount"`
}

// Update is one observation of a job, as reported by the status endpoint
type Update struct {
	ID       string
	Status   JobStatus
	AudioURL string
	Error    string
}

// Apply folds an observation into the job.
// Status only moves forward; COMPLETE requires an audio URL and FAILED carries the error.
// Progress is binary: 0 until COMPLETE, 1 afterwards.
func (j *Job) Apply(u Update) error {
	if j.Status.IsTerminal() {
		return ErrJobTerminal
	}
	if !u.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, u.Status)
	}

	if u.ID != "" && IsProvisionalID(j.ID) && !IsProvisionalID(u.ID) {
		j.ID = u.ID
	}

	status := u.Status
	if status == JobStatusComplete && u.AudioURL == "" {
		status = JobStatusProcessing
	}
	if status.rank() < j.Status.rank() {
		return nil
	}

	j.Status = status
	switch status {
	case JobStatusComplete:
		j.AudioURL = u.AudioURL
		j.Progress = 1
	case JobStatusFailed:
		j.Error = u.Error
		if j.Error == "" {
			j.Error = "generation failed"
		}
	}
	return nil
}
