package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cuongbtq/musicgen/internal/api/model"
	"github.com/cuongbtq/musicgen/internal/domain"
	"github.com/jmoiron/sqlx"
)

// ErrJobNotFound is returned when no row matches the request key
var ErrJobNotFound = fmt.Errorf("job %w", domain.ErrNotFound)

// StateQueued is the tracker state stored for a job no worker has picked up yet
const StateQueued = "IDLE"

const jobColumns = `
	request_key, request, state, job_id, status, progress, audio_url,
	error_message, error_kind, retry_count, polls, created_at, updated_at`

// Storage reads and creates generation_jobs rows for the API service
type Storage struct {
	db *sqlx.DB
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB) *Storage {
	return &Storage{db: db}
}

// CreateJob inserts a queued job. It reports false when the key already exists,
// in which case job is overwritten with the stored row.
func (s *Storage) CreateJob(ctx context.Context, job *model.GenerationJob) (bool, error) {
	query := `
		INSERT INTO generation_jobs (request_key, request, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (request_key) DO NOTHING
	`

	result, err := s.db.ExecContext(ctx, query, job.RequestKey, string(job.Request), job.State, job.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to create job: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 1 {
		return true, nil
	}

	existing, err := s.GetJob(ctx, job.RequestKey)
	if err != nil {
		return false, err
	}
	*job = *existing
	return false, nil
}

// GetJob returns the row for key
func (s *Storage) GetJob(ctx context.Context, key string) (*model.GenerationJob, error) {
	var job model.GenerationJob
	query := `SELECT ` + jobColumns + ` FROM generation_jobs WHERE request_key = $1`

	if err := s.db.GetContext(ctx, &job, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// JobFilter narrows ListJobs
type JobFilter struct {
	State    string
	PageSize int
	Cursor   *JobCursor
}

// JobCursor is the keyset position of the last row of a page
type JobCursor struct {
	CreatedAt  time.Time
	RequestKey string
}

// ListJobs returns up to PageSize+1 rows newest first; the extra row signals another page
func (s *Storage) ListJobs(ctx context.Context, filter JobFilter) ([]model.GenerationJob, error) {
	query := `SELECT ` + jobColumns + ` FROM generation_jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.State != "" {
		query += fmt.Sprintf(" AND state = $%d", argIdx)
		args = append(args, filter.State)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, request_key) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.RequestKey)
		argIdx += 2
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC, request_key DESC LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []model.GenerationJob
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}
