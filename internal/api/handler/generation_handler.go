package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/musicgen/internal/api/dto"
	"github.com/cuongbtq/musicgen/internal/api/service"
	"github.com/cuongbtq/musicgen/internal/resolver"
)

// GenerationHandler serves submission, extension and status polling
type GenerationHandler struct {
	logger     *slog.Logger
	gateway    Submitter
	normalizer StatusReader
}

// NewGenerationHandler creates a new GenerationHandler instance
func NewGenerationHandler(deps *Dependencies) *GenerationHandler {
	return &GenerationHandler{
		logger:     deps.Logger,
		gateway:    deps.Gateway,
		normalizer: deps.Normalizer,
	}
}

// Generate handles POST /api/v1/generate
func (h *GenerationHandler) Generate(c *gin.Context) {
	var req dto.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, bindError(err))
		return
	}

	env, err := h.gateway.Submit(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, env)
}

// Extend handles POST /api/v1/generate/extend
func (h *GenerationHandler) Extend(c *gin.Context) {
	var req dto.ExtendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, bindError(err))
		return
	}

	env, err := h.gateway.Extend(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, env)
}

// Status handles GET /api/v1/status and GET /api/v1/status/:id.
// The id is taken from the query "id", then the query "taskId", then the path.
func (h *GenerationHandler) Status(c *gin.Context) {
	src, _ := resolver.First(
		resolver.Source{Name: "query.id", Value: c.Query("id")},
		resolver.Source{Name: "query.taskId", Value: c.Query("taskId")},
		resolver.Source{Name: "path.id", Value: c.Param("id")},
	)

	if c.Query("test") == "true" {
		c.JSON(http.StatusOK, service.TestStatus(src.Value))
		return
	}

	h.logger.Debug("Status requested",
		slog.String("id", src.Value),
		slog.String("source", src.Name),
	)

	env, err := h.normalizer.Status(c.Request.Context(), src.Value, c.Query("raw") == "true")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, env)
}
