package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/musicgen/internal/worker/domain"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool", slog.Int("concurrency", w.concurrency))

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Debug("Worker goroutine started", slog.String("worker_name", workerName))

	for {
		select {
		case <-w.stopChan:
			w.logger.Debug("Worker goroutine stopping - stopChan closed", slog.String("worker_name", workerName))
			return

		case <-ctx.Done():
			w.logger.Debug("Worker goroutine stopping - context canceled", slog.String("worker_name", workerName))
			return

		case msg, ok := <-w.jobsChan:
			if !ok {
				return
			}

			w.logger.Info("Worker received job",
				slog.String("worker_name", workerName),
				slog.String("key", msg.Key),
				slog.Bool("resumed", msg.Delivery == nil),
			)

			err := w.processJob(ctx, msg)
			w.settle(workerName, msg, err)
		}
	}
}

// settle acknowledges the delivery of msg according to the processing result
func (w *Worker) settle(workerName string, msg *domain.JobMessage, err error) {
	attrs := []any{
		slog.String("worker_name", workerName),
		slog.String("key", msg.Key),
	}

	if err != nil {
		w.logger.Error("Job processing failed", append(attrs, slog.Any("error", err))...)
	}

	if msg.Delivery == nil {
		return
	}

	if err == nil {
		if ackErr := msg.Delivery.Ack(false); ackErr != nil {
			w.logger.Error("Failed to ACK message", append(attrs, slog.Any("error", ackErr))...)
			return
		}
		w.logger.Info("Job settled", attrs...)
		return
	}

	requeue := w.shouldRequeueJob(err)
	if nackErr := msg.Delivery.Nack(false, requeue); nackErr != nil {
		w.logger.Error("Failed to NACK message", append(attrs, slog.Any("error", nackErr))...)
		return
	}
	w.logger.Info("Message NACKed", append(attrs, slog.Bool("requeue", requeue))...)
}

// shouldRequeueJob determines if a job should be requeued based on the error type
func (w *Worker) shouldRequeueJob(err error) bool {
	// another worker owns it, or it already finished
	if errors.Is(err, domain.ErrJobAlreadyClaimed) || errors.Is(err, domain.ErrClaimLost) {
		return false
	}

	if errors.Is(err, domain.ErrInvalidPayload) {
		return false
	}

	// the row stays POLLING and is picked up by the next resume scan
	if errors.Is(err, domain.ErrJobTimeout) {
		return false
	}

	var retryableErr *domain.RetryableError
	return errors.As(err, &retryableErr)
}
