package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/musicgen/internal/tracker"
	"github.com/cuongbtq/musicgen/internal/worker/domain"
)

// Storage handles all database operations for the worker
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// EnsureJob inserts a queued row for key unless one exists
func (s *Storage) EnsureJob(ctx context.Context, key string, request []byte) error {
	query := `
		INSERT INTO generation_jobs (request_key, request, state)
		VALUES ($1, $2, $3)
		ON CONFLICT (request_key) DO NOTHING
	`

	if _, err := s.db.ExecContext(ctx, query, key, string(request), string(tracker.StateIdle)); err != nil {
		return fmt.Errorf("failed to ensure job: %w", err)
	}
	return nil
}

// ClaimJob takes ownership of a non-terminal job using optimistic locking.
// A claim whose heartbeat is older than staleAfter can be taken over.
func (s *Storage) ClaimJob(ctx context.Context, key, workerID string, staleAfter time.Duration) (*domain.Job, error) {
	query := `
		UPDATE generation_jobs
		SET worker_id = $1,
		    last_heartbeat_at = NOW(),
		    updated_at = NOW()
		WHERE request_key = $2
		  AND state NOT IN ($3, $4, $5)
		  AND (worker_id IS NULL
		       OR worker_id = $1
		       OR last_heartbeat_at < NOW() - make_interval(secs => $6))
		RETURNING request_key, request, state, job_id
	`

	var job domain.Job
	err := s.db.QueryRowContext(ctx, query,
		workerID, key,
		string(tracker.StateComplete), string(tracker.StateFailed), string(tracker.StateTimedOut),
		staleAfter.Seconds(),
	).Scan(&job.Key, &job.Request, &job.State, &job.JobID)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("Failed to claim job - already claimed or finished",
				slog.String("key", key),
				slog.String("worker_id", workerID),
			)
			return nil, domain.ErrJobAlreadyClaimed
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	job.WorkerID = workerID

	s.logger.Info("Job claimed successfully",
		slog.String("key", key),
		slog.String("worker_id", workerID),
		slog.String("state", job.State),
	)

	return &job, nil
}

// UpdateHeartbeat refreshes last_heartbeat_at while workerID holds the job.
// It returns ErrClaimLost once another worker owns the row.
func (s *Storage) UpdateHeartbeat(ctx context.Context, key, workerID string) error {
	query := `
		UPDATE generation_jobs
		SET last_heartbeat_at = NOW()
		WHERE request_key = $1 AND worker_id = $2
	`

	result, err := s.db.ExecContext(ctx, query, key, workerID)
	if err != nil {
		return fmt.Errorf("failed to update job heartbeat: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		s.logger.Warn("Job heartbeat update - no rows affected, claim was taken over",
			slog.String("key", key),
			slog.String("worker_id", workerID),
		)
		return domain.ErrClaimLost
	}

	return nil
}

// ReleaseJob drops workerID's claim
func (s *Storage) ReleaseJob(ctx context.Context, key, workerID string) error {
	query := `
		UPDATE generation_jobs
		SET worker_id = NULL
		WHERE request_key = $1 AND worker_id = $2
	`

	if _, err := s.db.ExecContext(ctx, query, key, workerID); err != nil {
		return fmt.Errorf("failed to release job: %w", err)
	}
	return nil
}

// ListResumable returns unclaimed or abandoned jobs that were submitting or polling
func (s *Storage) ListResumable(ctx context.Context, staleAfter time.Duration, limit int) ([]domain.Job, error) {
	query := `
		SELECT request_key, request, state, job_id
		FROM generation_jobs
		WHERE state IN ($1, $2)
		  AND (worker_id IS NULL OR last_heartbeat_at < NOW() - make_interval(secs => $3))
		ORDER BY created_at
		LIMIT $4
	`

	rows, err := s.db.QueryContext(ctx, query,
		string(tracker.StateSubmitting), string(tracker.StatePolling), staleAfter.Seconds(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list resumable jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		var job domain.Job
		if err := rows.Scan(&job.Key, &job.Request, &job.State, &job.JobID); err != nil {
			return nil, fmt.Errorf("failed to scan resumable job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list resumable jobs: %w", err)
	}

	return jobs, nil
}

// SnapshotStore returns the tracker store backed by key's row, writable while workerID holds it
func (s *Storage) SnapshotStore(key, workerID string) tracker.Store {
	return &SnapshotStore{db: s.db, key: key, workerID: workerID}
}
