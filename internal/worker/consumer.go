package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bytedance/sonic"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/musicgen/internal/api/dto"
	"github.com/cuongbtq/musicgen/internal/worker/domain"
)

// setupConsumer starts consuming the generation queue under the worker id
func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	deliveries, err := w.queue.Consume(w.workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("RabbitMQ consumer started", slog.String("consumer_tag", w.workerID))

	return deliveries, nil
}

// startMessageDispatcher listens to RabbitMQ deliveries and dispatches jobs to the worker pool
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) {
	w.logger.Info("Message dispatcher started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed")
				return
			}

			jobMsg, err := decodeDelivery(delivery)
			if err != nil {
				w.logger.Error("Dropping malformed message",
					slog.String("message_id", delivery.MessageId),
					slog.String("body", string(delivery.Body)),
					slog.Any("error", err),
				)
				// malformed messages go to the dead letter queue
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					w.logger.Error("Failed to NACK malformed message", slog.Any("error", nackErr))
				}
				continue
			}

			select {
			case w.jobsChan <- jobMsg:
				w.logger.Debug("Job dispatched to worker pool",
					slog.String("key", jobMsg.Key),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-ctx.Done():
				w.logger.Info("Message dispatcher stopped while dispatching job")
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					w.logger.Error("Failed to NACK message on shutdown", slog.Any("error", nackErr))
				}
				return
			}
		}
	}
}

func decodeDelivery(delivery amqp.Delivery) (*domain.JobMessage, error) {
	var msg dto.GenerationMessage
	if err := sonic.Unmarshal(delivery.Body, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}

	msg.Key = strings.TrimSpace(msg.Key)
	if msg.Key == "" {
		msg.Key = strings.TrimSpace(delivery.MessageId)
	}
	if msg.Key == "" {
		return nil, fmt.Errorf("%w: missing key", domain.ErrInvalidPayload)
	}

	return &domain.JobMessage{
		Key:      msg.Key,
		Message:  &msg,
		Delivery: delivery,
	}, nil
}
