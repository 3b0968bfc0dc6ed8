package worker

import (
	"context"
	"log/slog"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/musicgen/internal/api/dto"
	jobdomain "github.com/cuongbtq/musicgen/internal/domain"
	"github.com/cuongbtq/musicgen/internal/suno"
	"github.com/cuongbtq/musicgen/internal/tracker"
)

func (w *Worker) register(key string, tr *tracker.Tracker) {
	w.activeMu.Lock()
	w.active[key] = tr
	w.activeMu.Unlock()
}

func (w *Worker) unregister(key string) {
	w.activeMu.Lock()
	delete(w.active, key)
	w.activeMu.Unlock()
}

// listenCallbacks feeds provider callbacks to the trackers this worker runs.
// Every delivery is acked: a callback for a job held elsewhere is that worker's concern.
func (w *Worker) listenCallbacks(ctx context.Context, deliveries <-chan amqp.Delivery) {
	defer w.wg.Done()
	w.logger.Info("Callback listener started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Callback listener stopped - context canceled")
			return

		case <-w.stopChan:
			w.logger.Info("Callback listener stopped")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ callback channel closed")
				return
			}

			w.handleCallback(delivery.Body)
			if err := delivery.Ack(false); err != nil {
				w.logger.Error("Failed to ACK callback", slog.Any("error", err))
			}
		}
	}
}

// handleCallback finishes the tracker polling the callback's task and returns
// how many trackers it finished.
func (w *Worker) handleCallback(body []byte) int {
	cb, err := suno.ParseCallback(body)
	if err != nil {
		w.logger.Warn("Dropping malformed callback", slog.Any("error", err))
		return 0
	}

	env, ok := callbackEnvelope(cb)
	if !ok {
		w.logger.Debug("Ignoring non-terminal callback",
			slog.String("task_id", cb.Data.TaskID),
			slog.String("callback_type", cb.Data.CallbackType),
		)
		return 0
	}

	w.activeMu.Lock()
	trackers := make([]*tracker.Tracker, 0, len(w.active))
	for _, tr := range w.active {
		trackers = append(trackers, tr)
	}
	w.activeMu.Unlock()

	finished := 0
	for _, tr := range trackers {
		if tr.Notify(env) {
			finished++
		}
	}

	if finished > 0 {
		w.logger.Info("Callback finished job",
			slog.String("task_id", env.ID),
			slog.String("status", string(env.Status)),
		)
	}
	return finished
}

// callbackEnvelope maps a terminal callback onto a status envelope
func callbackEnvelope(cb *suno.Callback) (*dto.StatusEnvelope, bool) {
	taskID := strings.TrimSpace(cb.Data.TaskID)
	if taskID == "" {
		return nil, false
	}

	switch {
	case cb.IsFailure():
		return &dto.StatusEnvelope{ID: taskID, Status: jobdomain.JobStatusFailed, Error: cb.FailureReason()}, true
	case cb.IsComplete():
		return &dto.StatusEnvelope{
			ID:       taskID,
			Status:   jobdomain.JobStatusComplete,
			Progress: 1,
			AudioURL: cb.FirstAudioURL(),
		}, true
	default:
		return nil, false
	}
}
