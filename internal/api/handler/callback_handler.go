package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/musicgen/internal/suno"
	"github.com/cuongbtq/musicgen/internal/transport"
	"github.com/cuongbtq/musicgen/shared/rabbitmq"
)

const maxCallbackBody = 1 << 20

// CallbackHandler is the passive receiver for provider pushes.
// Nothing on the polling path waits for it.
type CallbackHandler struct {
	logger     *slog.Logger
	cache      CallbackStore
	queue      Publisher
	routingKey string
}

// NewCallbackHandler creates a new CallbackHandler instance
func NewCallbackHandler(deps *Dependencies) *CallbackHandler {
	return &CallbackHandler{
		logger:     deps.Logger,
		cache:      deps.Callbacks,
		queue:      deps.Queue,
		routingKey: deps.CallbackRoutingKey,
	}
}

// Receive handles POST and HEAD /api/v1/callback. It always answers 200.
func (h *CallbackHandler) Receive(c *gin.Context) {
	if c.Request.Method == http.MethodHead {
		c.Status(http.StatusOK)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxCallbackBody))
	if err != nil {
		h.logger.Warn("Failed to read callback body", slog.Any("error", err))
		c.JSON(http.StatusOK, gin.H{"status": "received"})
		return
	}

	cb, err := suno.ParseCallback(body)
	if err != nil {
		h.logger.Warn("Unparsable callback",
			slog.String("body", transport.Snippet(body)),
			slog.Any("error", err),
		)
		c.JSON(http.StatusOK, gin.H{"status": "received"})
		return
	}

	taskID := cb.Data.TaskID
	h.logger.Info("Callback received",
		slog.String("task_id", taskID),
		slog.String("callback_type", cb.Data.CallbackType),
		slog.Int("code", cb.Code),
		slog.String("audio_url", cb.FirstAudioURL()),
	)

	if taskID != "" && h.cache != nil {
		if err := h.cache.Save(c.Request.Context(), taskID, body); err != nil {
			h.logger.Error("Failed to cache callback", slog.String("task_id", taskID), slog.Any("error", err))
		}
	}

	if h.queue != nil && h.routingKey != "" {
		msg := rabbitmq.Message{RoutingKey: h.routingKey, MessageID: taskID, Body: body}
		if err := h.queue.Publish(c.Request.Context(), msg); err != nil {
			h.logger.Error("Failed to fan out callback", slog.String("task_id", taskID), slog.Any("error", err))
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

// Get handles GET /api/v1/callbacks/:task_id
func (h *CallbackHandler) Get(c *gin.Context) {
	if h.cache == nil {
		respondDisabled(c, "callback cache")
		return
	}

	body, err := h.cache.Raw(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}
