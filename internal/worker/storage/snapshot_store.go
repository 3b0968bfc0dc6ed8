package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/musicgen/internal/domain"
	"github.com/cuongbtq/musicgen/internal/tracker"
	workerdomain "github.com/cuongbtq/musicgen/internal/worker/domain"
)

// SnapshotStore persists one tracker's snapshot in its generation_jobs row.
// Writes only land while workerID still holds the claim.
type SnapshotStore struct {
	db       *sqlx.DB
	key      string
	workerID string
}

const saveSnapshotQuery = `
	UPDATE generation_jobs
	SET state = :state,
	    job_id = :job_id,
	    status = :status,
	    progress = :progress,
	    audio_url = :audio_url,
	    error_message = :error_message,
	    error_kind = :error_kind,
	    job_error = :job_error,
	    retry_count = :retry_count,
	    polls = :polls,
	    updated_at = :updated_at
	WHERE request_key = :request_key AND worker_id = :worker_id
`

type saveSnapshotArgs struct {
	snapshotRow
	RequestKey string `db:"request_key"`
	WorkerID   string `db:"worker_id"`
}

type snapshotRow struct {
	State        string    `db:"state"`
	JobID        string    `db:"job_id"`
	Status       string    `db:"status"`
	Progress     float64   `db:"progress"`
	AudioURL     string    `db:"audio_url"`
	ErrorMessage string    `db:"error_message"`
	ErrorKind    string    `db:"error_kind"`
	JobError     string    `db:"job_error"`
	RetryCount   int       `db:"retry_count"`
	Polls        int       `db:"polls"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func toRow(snap tracker.Snapshot) snapshotRow {
	row := snapshotRow{
		State:        string(snap.State),
		ErrorMessage: snap.Error,
		ErrorKind:    snap.ErrorKind,
		Polls:        snap.Polls,
		UpdatedAt:    snap.UpdatedAt,
	}
	if snap.Job != nil {
		row.JobID = snap.Job.ID
		row.Status = string(snap.Job.Status)
		row.Progress = snap.Job.Progress
		row.AudioURL = snap.Job.AudioURL
		row.JobError = snap.Job.Error
		row.RetryCount = snap.Job.RetryCount
	}
	return row
}

func (r snapshotRow) snapshot(key string) *tracker.Snapshot {
	snap := &tracker.Snapshot{
		Key:       key,
		State:     tracker.State(r.State),
		Error:     r.ErrorMessage,
		ErrorKind: r.ErrorKind,
		Polls:     r.Polls,
		UpdatedAt: r.UpdatedAt,
	}
	if r.JobID != "" {
		snap.Job = &domain.Job{
			ID:         r.JobID,
			Status:     domain.JobStatus(r.Status),
			Progress:   r.Progress,
			AudioURL:   r.AudioURL,
			Error:      r.JobError,
			RetryCount: r.RetryCount,
		}
	}
	return snap
}

// Save writes snap into the row
func (s *SnapshotStore) Save(ctx context.Context, snap tracker.Snapshot) error {
	arg := saveSnapshotArgs{snapshotRow: toRow(snap), RequestKey: s.key, WorkerID: s.workerID}
	if arg.UpdatedAt.IsZero() {
		arg.UpdatedAt = time.Now().UTC()
	}

	result, err := s.db.NamedExecContext(ctx, saveSnapshotQuery, arg)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to save snapshot for %s: %w", s.key, workerdomain.ErrClaimLost)
	}
	return nil
}

// Load reads the row. A row still queued has no snapshot.
func (s *SnapshotStore) Load(ctx context.Context) (*tracker.Snapshot, error) {
	query := `
		SELECT state, job_id, status, progress, audio_url, error_message,
		       error_kind, job_error, retry_count, polls, updated_at
		FROM generation_jobs
		WHERE request_key = $1
	`

	var row snapshotRow
	if err := s.db.GetContext(ctx, &row, query, s.key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, tracker.ErrNoSnapshot
		}
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	if tracker.State(row.State) == tracker.StateIdle {
		return nil, tracker.ErrNoSnapshot
	}
	return row.snapshot(s.key), nil
}

// Clear returns the row to the queued state
func (s *SnapshotStore) Clear(ctx context.Context) error {
	query := `
		UPDATE generation_jobs
		SET state = $3, job_id = '', status = '', progress = 0, audio_url = '',
		    error_message = '', error_kind = '', job_error = '',
		    retry_count = 0, polls = 0, updated_at = NOW()
		WHERE request_key = $1 AND worker_id = $2
	`

	result, err := s.db.ExecContext(ctx, query, s.key, s.workerID, string(tracker.StateIdle))
	if err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to clear snapshot for %s: %w", s.key, workerdomain.ErrClaimLost)
	}
	return nil
}
