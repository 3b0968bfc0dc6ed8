package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/cuongbtq/musicgen/internal/api/dto"
	"github.com/cuongbtq/musicgen/internal/api/storage"
	"github.com/cuongbtq/musicgen/internal/domain"
	"github.com/cuongbtq/musicgen/internal/suno"
)

// Normalizer maps the provider's record info onto the fixed status contract
type Normalizer struct {
	provider  Provider
	callbacks CallbackLookup
	logger    *slog.Logger
}

// NewNormalizer creates a normalizer. callbacks may be nil.
func NewNormalizer(provider Provider, callbacks CallbackLookup, logger *slog.Logger) *Normalizer {
	return &Normalizer{provider: provider, callbacks: callbacks, logger: logger}
}

// TestStatus is the canned answer to a status query with test set
func TestStatus(id string) *dto.StatusEnvelope {
	if id == "" {
		id = TestGenerationID
	}
	return &dto.StatusEnvelope{
		ID:       id,
		Status:   domain.JobStatusComplete,
		Progress: 1,
		AudioURL: TestAudioURL,
	}
}

// Status queries the provider for id. A provisional prefix is stripped first
// since the provider never issued it. An error envelope in a 2xx answer reads
// as still processing; HTTP-level failures are returned.
func (n *Normalizer) Status(ctx context.Context, id string, includeRaw bool) (*dto.StatusEnvelope, error) {
	id = strings.TrimSpace(id)
	taskID := strings.TrimSpace(domain.StripProvisional(id))
	if taskID == "" {
		return nil, domain.NewValidationError("id", "is required")
	}

	info, body, err := n.provider.RecordInfo(ctx, taskID)
	if err != nil {
		var upstreamErr *domain.UpstreamError
		if !errors.As(err, &upstreamErr) || body == nil {
			return nil, err
		}
		// the provider answered with an error envelope, e.g. "record not found"
		// for a provisional id whose real task id has not arrived yet
		n.logger.Info("Record info not available yet",
			slog.String("id", id),
			slog.String("task_id", taskID),
			slog.Any("error", err),
		)
		info = &suno.RecordInfo{}
	}

	env := &dto.StatusEnvelope{ID: id, Status: domain.JobStatusProcessing}
	if resolved := info.ResolvedTaskID(); resolved != "" {
		env.ID = resolved
	}

	switch {
	case strings.EqualFold(info.Status, suno.StatusSuccess) && info.FirstAudioURL() != "":
		env.Status = domain.JobStatusComplete
		env.Progress = 1
		env.AudioURL = info.FirstAudioURL()
	case info.IsFailure():
		env.Status = domain.JobStatusFailed
		env.Error = info.FailureReason()
	default:
		n.applyCallback(ctx, taskID, env)
	}

	if includeRaw && len(body) > 0 {
		env.Raw = json.RawMessage(body)
	}

	n.logger.Debug("Status normalized",
		slog.String("id", env.ID),
		slog.String("upstream_status", info.Status),
		slog.String("status", string(env.Status)),
	)
	return env, nil
}

// applyCallback upgrades a still-running job when a completion callback was cached
func (n *Normalizer) applyCallback(ctx context.Context, taskID string, env *dto.StatusEnvelope) {
	if n.callbacks == nil {
		return
	}

	cb, err := n.callbacks.Get(ctx, taskID)
	if err != nil {
		if !errors.Is(err, storage.ErrCallbackNotFound) {
			n.logger.Warn("Callback lookup failed",
				slog.String("task_id", taskID),
				slog.Any("error", err),
			)
		}
		return
	}

	if cb.IsComplete() {
		env.Status = domain.JobStatusComplete
		env.Progress = 1
		env.AudioURL = cb.FirstAudioURL()
	}
}
