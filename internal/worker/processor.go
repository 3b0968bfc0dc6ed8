package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bytedance/sonic"

	"github.com/cuongbtq/musicgen/internal/api/dto"
	"github.com/cuongbtq/musicgen/internal/tracker"
	"github.com/cuongbtq/musicgen/internal/worker/domain"
)

const releaseTimeout = 5 * time.Second

// processJob claims the job, runs its tracker to a terminal state and releases the claim.
// A terminal outcome of any kind is a success for the queue.
func (w *Worker) processJob(ctx context.Context, msg *domain.JobMessage) error {
	if msg.Delivery != nil {
		payload, err := sonic.Marshal(msg.Message)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
		}
		if err := w.store.EnsureJob(ctx, msg.Key, payload); err != nil {
			return domain.NewRetryableError(err)
		}
	}

	job, err := w.store.ClaimJob(ctx, msg.Key, w.workerID, w.staleAfter())
	if err != nil {
		if errors.Is(err, domain.ErrJobAlreadyClaimed) {
			w.logger.Warn("Job already claimed or finished, skipping", slog.String("key", msg.Key))
			return fmt.Errorf("job %s: %w", msg.Key, err)
		}
		return domain.NewRetryableError(fmt.Errorf("failed to claim job: %w", err))
	}

	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		if err := w.store.ReleaseJob(releaseCtx, job.Key, w.workerID); err != nil {
			w.logger.Warn("Failed to release job", slog.String("key", job.Key), slog.Any("error", err))
		}
	}()

	var queued dto.GenerationMessage
	if err := sonic.Unmarshal(job.Request, &queued); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}

	jobCtx, cancelJob := context.WithCancelCause(ctx)
	defer cancelJob(nil)
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(jobCtx, w.jobTimeout)
		defer cancel()
	}

	heartbeatDone := make(chan struct{})
	go w.sendJobHeartbeat(jobCtx, job.Key, heartbeatDone, cancelJob)
	defer close(heartbeatDone)

	logger := w.logger.With(slog.String("key", job.Key))
	tr := tracker.New(tracker.Config{
		Key:          job.Key,
		PollInterval: w.trackerSettings.PollInterval,
		MaxRetries:   w.trackerSettings.MaxRetries,
		MaxPolls:     w.trackerSettings.MaxPolls,
		Backend:      w.backend,
		Store:        w.store.SnapshotStore(job.Key, w.workerID),
		Sink:         tracker.NewLogSink(logger),
		Scheduler:    w.trackerSettings.Scheduler,
		Logger:       logger,
	})
	defer tr.Close()

	w.register(job.Key, tr)
	defer w.unregister(job.Key)

	resumed, err := tr.Resume(jobCtx)
	if err != nil {
		return domain.NewRetryableError(fmt.Errorf("failed to resume tracker: %w", err))
	}

	if !resumed {
		if err := tr.Submit(jobCtx, queued.Request); err != nil {
			if ctx.Err() != nil {
				return domain.NewRetryableError(ctx.Err())
			}
			// the failure is recorded in the snapshot
			logger.Warn("Generation submission failed", slog.Any("error", err))
		}
	}

	snap, err := tr.Wait(jobCtx)
	switch {
	case ctx.Err() != nil:
		// shutting down: the snapshot stays non-terminal for the next worker
		return domain.NewRetryableError(ctx.Err())
	case errors.Is(context.Cause(jobCtx), domain.ErrClaimLost):
		return fmt.Errorf("job %s: %w", job.Key, domain.ErrClaimLost)
	case jobCtx.Err() != nil && errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w after %s", domain.ErrJobTimeout, w.jobTimeout)
	case errors.Is(err, tracker.ErrReset), errors.Is(err, tracker.ErrClosed), errors.Is(err, tracker.ErrIdle):
		return domain.NewRetryableError(err)
	}

	attrs := []any{slog.String("state", string(snap.State)), slog.Int("polls", snap.Polls)}
	if snap.Job != nil {
		attrs = append(attrs, slog.String("job_id", snap.Job.ID), slog.String("audio_url", snap.Job.AudioURL))
	}
	if err != nil {
		attrs = append(attrs, slog.Any("error", err))
	}
	logger.Info("Generation finished", attrs...)

	return nil
}

// sendJobHeartbeat periodically refreshes the claim on key and cancels the job once the claim is lost
func (w *Worker) sendJobHeartbeat(ctx context.Context, key string, done <-chan struct{}, cancel context.CancelCauseFunc) {
	ticker := time.NewTicker(w.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return

		case <-ctx.Done():
			return

		case <-ticker.C:
			err := w.store.UpdateHeartbeat(ctx, key, w.workerID)
			if errors.Is(err, domain.ErrClaimLost) {
				w.logger.Warn("Job claim lost, stopping tracker", slog.String("key", key))
				cancel(domain.ErrClaimLost)
				return
			}
			if err != nil {
				w.logger.Warn("Failed to update job heartbeat",
					slog.String("key", key),
					slog.Any("error", err),
				)
			}
		}
	}
}
