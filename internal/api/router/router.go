package router

import (
	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/musicgen/internal/api/handler"
)

// Options tunes the router
type Options struct {
	ServiceName     string
	SubmitRateLimit int
}

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, opts Options) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", handler.Health(opts.ServiceName, deps.HealthChecks))

	generationHandler := handler.NewGenerationHandler(deps)
	callbackHandler := handler.NewCallbackHandler(deps)
	jobHandler := handler.NewJobHandler(deps)
	submitLimit := RateLimitMiddleware(opts.SubmitRateLimit)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/generate", submitLimit, generationHandler.Generate)
		v1.POST("/generate/extend", submitLimit, generationHandler.Extend)

		// id from ?id=, ?taskId= or the path
		v1.GET("/status", generationHandler.Status)
		v1.GET("/status/:id", generationHandler.Status)

		v1.POST("/callback", callbackHandler.Receive)
		v1.HEAD("/callback", callbackHandler.Receive)
		v1.GET("/callbacks/:task_id", callbackHandler.Get)

		jobs := v1.Group("/jobs")
		{
			jobs.POST("", submitLimit, jobHandler.CreateJob)
			jobs.GET("", jobHandler.ListJobs)
			jobs.GET("/:key", jobHandler.GetJob)
		}

		v1.GET("/debug", handler.Debug(deps.Debug))
	}

	return r
}
