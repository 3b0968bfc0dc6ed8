package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/musicgen/internal/api/dto"
	"github.com/cuongbtq/musicgen/internal/api/model"
	"github.com/cuongbtq/musicgen/internal/api/storage"
	"github.com/cuongbtq/musicgen/internal/domain"
	"github.com/cuongbtq/musicgen/shared/rabbitmq"
)

// Submitter forwards submissions and extensions upstream
type Submitter interface {
	Submit(ctx context.Context, req dto.GenerateRequest) (*dto.JobEnvelope, error)
	Extend(ctx context.Context, req dto.ExtendRequest) (*dto.JobEnvelope, error)
}

// StatusReader answers status polls
type StatusReader interface {
	Status(ctx context.Context, id string, includeRaw bool) (*dto.StatusEnvelope, error)
}

// CallbackStore caches provider callbacks
type CallbackStore interface {
	Save(ctx context.Context, taskID string, body []byte) error
	Raw(ctx context.Context, taskID string) ([]byte, error)
}

// JobStore persists queued jobs and the worker's snapshots
type JobStore interface {
	CreateJob(ctx context.Context, job *model.GenerationJob) (bool, error)
	GetJob(ctx context.Context, key string) (*model.GenerationJob, error)
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]model.GenerationJob, error)
}

// Publisher sends messages to RabbitMQ
type Publisher interface {
	Publish(ctx context.Context, msg rabbitmq.Message) error
}

// Dependencies holds all dependencies needed by handlers.
// Callbacks, Jobs and Queue are nil when the backing service is disabled.
type Dependencies struct {
	Logger             *slog.Logger
	Gateway            Submitter
	Normalizer         StatusReader
	Callbacks          CallbackStore
	Jobs               JobStore
	Queue              Publisher
	CallbackRoutingKey string
	Debug              DebugInfo
	HealthChecks       map[string]HealthCheck
}

// respondError writes the fixed error body. Internal errors never leak their message.
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	status := domain.HTTPStatus(err)
	resp := dto.ErrorResponse{Message: err.Error(), Kind: domain.KindOf(err)}

	var upstreamErr *domain.UpstreamError
	if errors.As(err, &upstreamErr) {
		resp.Message = upstreamErr.Message
		resp.Code = upstreamErr.Code
	}

	if resp.Kind == domain.KindInternal {
		resp.Message = "internal server error"
	}

	attrs := []any{
		slog.String("path", c.Request.URL.Path),
		slog.Int("status", status),
		slog.String("kind", string(resp.Kind)),
		slog.Any("error", err),
	}
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", attrs...)
	} else {
		logger.Warn("Request rejected", attrs...)
	}

	c.JSON(status, resp)
}

func respondDisabled(c *gin.Context, what string) {
	c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{
		Message: what + " is disabled",
		Kind:    domain.KindInternal,
	})
}

func bindError(err error) error {
	return domain.NewValidationError("", "invalid request body: "+err.Error())
}
