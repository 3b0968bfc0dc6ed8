package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cuongbtq/musicgen/internal/api/dto"
	"github.com/cuongbtq/musicgen/internal/api/model"
	"github.com/cuongbtq/musicgen/internal/api/service"
	"github.com/cuongbtq/musicgen/internal/api/storage"
	"github.com/cuongbtq/musicgen/internal/domain"
	"github.com/cuongbtq/musicgen/shared/rabbitmq"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxKeyLength    = 128
)

// JobHandler queues generations for the worker service and exposes its snapshots
type JobHandler struct {
	logger *slog.Logger
	jobs   JobStore
	queue  Publisher
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger: deps.Logger,
		jobs:   deps.Jobs,
		queue:  deps.Queue,
	}
}

// CreateJob handles POST /api/v1/jobs.
// A repeated key returns the stored job without publishing again.
func (h *JobHandler) CreateJob(c *gin.Context) {
	if h.queue == nil {
		respondDisabled(c, "job queue")
		return
	}

	var req dto.EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, bindError(err))
		return
	}

	if !req.Request.Test {
		if err := service.ValidateGenerate(&req.Request); err != nil {
			respondError(c, h.logger, err)
			return
		}
	}

	key := strings.TrimSpace(req.Key)
	if key == "" {
		key = uuid.New().String()
	}
	if len(key) > maxKeyLength {
		respondError(c, h.logger, domain.NewValidationError("key", "is too long"))
		return
	}

	payload, err := sonic.Marshal(dto.GenerationMessage{Key: key, Request: req.Request})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if h.jobs != nil {
		job := &model.GenerationJob{
			RequestKey: key,
			Request:    payload,
			State:      storage.StateQueued,
			CreatedAt:  time.Now().UTC(),
		}
		created, err := h.jobs.CreateJob(c.Request.Context(), job)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		if !created {
			h.logger.Info("Duplicate job key, not republishing", slog.String("key", key))
			c.JSON(http.StatusOK, dto.EnqueueResponse{Key: key, State: job.State})
			return
		}
	}

	if err := h.queue.Publish(c.Request.Context(), rabbitmq.Message{MessageID: key, Body: payload}); err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("Generation queued", slog.String("key", key))
	c.JSON(http.StatusAccepted, dto.EnqueueResponse{Key: key, State: storage.StateQueued, Created: true})
}

// GetJob handles GET /api/v1/jobs/:key
func (h *JobHandler) GetJob(c *gin.Context) {
	if h.jobs == nil {
		respondDisabled(c, "job store")
		return
	}

	job, err := h.jobs.GetJob(c.Request.Context(), c.Param("key"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, toJobDTO(job))
}

// ListJobs handles GET /api/v1/jobs with state filter and keyset pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	if h.jobs == nil {
		respondDisabled(c, "job store")
		return
	}

	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		respondError(c, h.logger, domain.NewValidationError("", "invalid query parameters: "+err.Error()))
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		respondError(c, h.logger, domain.NewValidationError("cursor", err.Error()))
		return
	}

	jobs, err := h.jobs.ListJobs(c.Request.Context(), storage.JobFilter{
		State:    strings.ToUpper(strings.TrimSpace(req.State)),
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	resp := dto.ListJobsResponse{Jobs: make([]dto.JobDTO, len(jobs))}
	for i := range jobs {
		resp.Jobs[i] = toJobDTO(&jobs[i])
	}
	if hasMore {
		last := jobs[len(jobs)-1]
		resp.NextCursor = EncodeJobCursor(&storage.JobCursor{CreatedAt: last.CreatedAt, RequestKey: last.RequestKey})
	}

	c.JSON(http.StatusOK, resp)
}

func toJobDTO(job *model.GenerationJob) dto.JobDTO {
	return dto.JobDTO{
		Key:        job.RequestKey,
		State:      job.State,
		ID:         job.JobID,
		Status:     job.Status,
		Progress:   job.Progress,
		AudioURL:   job.AudioURL,
		Error:      job.ErrorMessage,
		ErrorKind:  job.ErrorKind,
		RetryCount: job.RetryCount,
		Polls:      job.Polls,
		CreatedAt:  job.CreatedAt,
		UpdatedAt:  job.UpdatedAt,
	}
}
