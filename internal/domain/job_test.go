package domain

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJob_Apply(t *testing.T) {
	tests := []struct {
		name    string
		job     Job
		update  Update
		want    Job
		wantErr error
	}{
		{
			name:   "processing keeps progress at zero",
			job:    Job{ID: "abc", Status: JobStatusSubmitted},
			update: Update{Status: JobStatusProcessing},
			want:   Job{ID: "abc", Status: JobStatusProcessing},
		},
		{
			name:   "complete sets audio and full progress",
			job:    Job{ID: "abc", Status: JobStatusProcessing},
			update: Update{Status: JobStatusComplete, AudioURL: "https://cdn/x.mp3"},
			want:   Job{ID: "abc", Status: JobStatusComplete, Progress: 1, AudioURL: "https://cdn/x.mp3"},
		},
		{
			name:   "complete without audio stays processing",
			job:    Job{ID: "abc", Status: JobStatusSubmitted},
			update: Update{Status: JobStatusComplete},
			want:   Job{ID: "abc", Status: JobStatusProcessing},
		},
		{
			name:   "failed carries the error",
			job:    Job{ID: "abc", Status: JobStatusProcessing},
			update: Update{Status: JobStatusFailed, Error: "GENERATE_AUDIO_FAILED: quota"},
			want:   Job{ID: "abc", Status: JobStatusFailed, Error: "GENERATE_AUDIO_FAILED: quota"},
		},
		{
			name:   "status never moves backwards",
			job:    Job{ID: "abc", Status: JobStatusProcessing},
			update: Update{Status: JobStatusPending},
			want:   Job{ID: "abc", Status: JobStatusProcessing},
		},
		{
			name:   "provisional id is rewritten once resolved",
			job:    Job{ID: "pending-1", Status: JobStatusPending},
			update: Update{ID: "task-9", Status: JobStatusProcessing},
			want:   Job{ID: "task-9", Status: JobStatusProcessing},
		},
		{
			name:   "resolved id is never rewritten",
			job:    Job{ID: "task-1", Status: JobStatusSubmitted},
			update: Update{ID: "task-2", Status: JobStatusProcessing},
			want:   Job{ID: "task-1", Status: JobStatusProcessing},
		},
		{
			name:    "terminal job is immutable",
			job:     Job{ID: "abc", Status: JobStatusComplete, Progress: 1, AudioURL: "x"},
			update:  Update{Status: JobStatusFailed, Error: "late"},
			want:    Job{ID: "abc", Status: JobStatusComplete, Progress: 1, AudioURL: "x"},
			wantErr: ErrJobTerminal,
		},
		{
			name:    "unknown status is rejected",
			job:     Job{ID: "abc", Status: JobStatusSubmitted},
			update:  Update{Status: "DONE"},
			want:    Job{ID: "abc", Status: JobStatusSubmitted},
			wantErr: ErrInvalidStatus,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := tt.job
			err := job.Apply(tt.update)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, job)
		})
	}
}

func TestIDGenerator_Next(t *testing.T) {
	frozen := time.Unix(1700000000, 0)
	gen := &IDGenerator{now: func() time.Time { return frozen }}

	first := gen.Next()
	second := gen.Next()

	assert.True(t, IsProvisionalID(first))
	assert.True(t, strings.HasPrefix(second, ProvisionalPrefix))
	assert.NotEqual(t, first, second)
	assert.Less(t, first, second)
}

func TestIDGenerator_Concurrent(t *testing.T) {
	gen := NewIDGenerator()

	var (
		mu   sync.Mutex
		seen = make(map[string]struct{})
		wg   sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := gen.Next()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 800)
}

func TestStripProvisional(t *testing.T) {
	assert.Equal(t, "123", StripProvisional("pending-123"))
	assert.Equal(t, "task-1", StripProvisional("task-1"))
	assert.False(t, IsProvisionalID("task-1"))
}
