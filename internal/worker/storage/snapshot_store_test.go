package storage

import (
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/musicgen/internal/domain"
	"github.com/cuongbtq/musicgen/internal/tracker"
)

func TestSnapshotRow_Mapping(t *testing.T) {
	updated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		snap tracker.Snapshot
	}{
		{
			name: "complete job",
			snap: tracker.Snapshot{
				Key:   "k1",
				State: tracker.StateComplete,
				Job: &domain.Job{
					ID:       "task-1",
					Status:   domain.JobStatusComplete,
					Progress: 1,
					AudioURL: "https://cdn/a.mp3",
				},
				Polls:     7,
				UpdatedAt: updated,
			},
		},
		{
			name: "failed job",
			snap: tracker.Snapshot{
				Key:       "k1",
				State:     tracker.StateFailed,
				Job:       &domain.Job{ID: "task-2", Status: domain.JobStatusFailed, Error: "quota"},
				Error:     "job failed: quota",
				ErrorKind: "job_failed",
				Polls:     2,
				UpdatedAt: updated,
			},
		},
		{
			name: "polling with retries",
			snap: tracker.Snapshot{
				Key:       "k1",
				State:     tracker.StatePolling,
				Job:       &domain.Job{ID: "task-3", Status: domain.JobStatusProcessing, RetryCount: 2},
				Polls:     4,
				UpdatedAt: updated,
			},
		},
		{
			name: "submission failed before an id",
			snap: tracker.Snapshot{
				Key:       "k1",
				State:     tracker.StateFailed,
				Error:     "gateway down",
				ErrorKind: string(domain.KindTransport),
				UpdatedAt: updated,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toRow(tt.snap).snapshot("k1")
			assert.Equal(t, tt.snap, *got)
		})
	}
}

func TestToRow_Columns(t *testing.T) {
	row := toRow(tracker.Snapshot{
		State: tracker.StatePolling,
		Job:   &domain.Job{ID: "task-1", Status: domain.JobStatusPending, RetryCount: 1},
		Polls: 3,
	})

	assert.Equal(t, "POLLING", row.State)
	assert.Equal(t, "task-1", row.JobID)
	assert.Equal(t, "PENDING", row.Status)
	assert.Equal(t, 1, row.RetryCount)
	assert.Equal(t, 3, row.Polls)
	assert.Empty(t, row.AudioURL)
}

func TestSaveSnapshotQuery_BindsOwner(t *testing.T) {
	arg := saveSnapshotArgs{
		snapshotRow: toRow(tracker.Snapshot{State: tracker.StatePolling, Job: &domain.Job{ID: "task-1"}}),
		RequestKey:  "k1",
		WorkerID:    "worker-a",
	}

	query, args, err := sqlx.Named(saveSnapshotQuery, arg)

	require.NoError(t, err)
	assert.Contains(t, query, "WHERE request_key = ? AND worker_id = ?")
	require.GreaterOrEqual(t, len(args), 2)
	assert.Equal(t, []interface{}{"k1", "worker-a"}, args[len(args)-2:])
}
