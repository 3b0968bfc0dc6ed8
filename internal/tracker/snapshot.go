package tracker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cuongbtq/musicgen/internal/domain"
)

// ErrNoSnapshot is returned by Store.Load when nothing was persisted
var ErrNoSnapshot = errors.New("no snapshot")

// Snapshot is the persisted and rendered view of a tracker
type Snapshot struct {
	Key       string      `json:"key"`
	State     State       `json:"state"`
	Job       *domain.Job `json:"job,omitempty"`
	Error     string      `json:"error,omitempty"`
	ErrorKind string      `json:"errorKind,omitempty"`
	Polls     int         `json:"polls"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Store persists the snapshot of one tracker
type Store interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context) (*Snapshot, error)
	Clear(ctx context.Context) error
}

// Sink receives every rendered snapshot. Render runs with the tracker
// locked and must not call back into it.
type Sink interface {
	Render(snap Snapshot)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(snap Snapshot)

// Render calls f(snap)
func (f SinkFunc) Render(snap Snapshot) {
	f(snap)
}

// LogSink renders snapshots as log records: transitions at Info, polls at Debug
type LogSink struct {
	logger *slog.Logger
	last   State
}

// NewLogSink creates a sink writing to logger
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Render logs snap
func (s *LogSink) Render(snap Snapshot) {
	attrs := []any{
		slog.String("key", snap.Key),
		slog.String("state", string(snap.State)),
		slog.Int("polls", snap.Polls),
	}
	if snap.Job != nil {
		attrs = append(attrs,
			slog.String("id", snap.Job.ID),
			slog.String("status", string(snap.Job.Status)),
			slog.Float64("progress", snap.Job.Progress),
		)
		if snap.Job.AudioURL != "" {
			attrs = append(attrs, slog.String("audio_url", snap.Job.AudioURL))
		}
	}
	if snap.Error != "" {
		attrs = append(attrs, slog.String("error", snap.Error), slog.String("error_kind", snap.ErrorKind))
	}

	if snap.State != s.last {
		s.last = snap.State
		s.logger.Info("Tracker state changed", attrs...)
		return
	}
	s.logger.Debug("Tracker polled", attrs...)
}
