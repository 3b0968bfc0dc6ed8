package handler

import (
	"context"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const healthCheckTimeout = 3 * time.Second

// HealthCheck checks one backing service
type HealthCheck func(ctx context.Context) error

// DebugInfo is the configuration surfaced by GET /debug
type DebugInfo struct {
	Service         string
	Version         string
	Environment     string
	SunoBaseURL     string
	APIKey          string
	CallbackURL     string
	DatabaseEnabled bool
	RabbitMQEnabled bool
	RedisEnabled    bool
}

// MaskKey keeps the first and last four characters of a secret
func MaskKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

// Debug handles GET /api/v1/debug
func Debug(info DebugInfo) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message":     "debug info",
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
			"service":     info.Service,
			"version":     info.Version,
			"environment": info.Environment,
			"goVersion":   runtime.Version(),
			"suno": gin.H{
				"baseUrl":       info.SunoBaseURL,
				"keyConfigured": strings.TrimSpace(info.APIKey) != "",
				"apiKey":        MaskKey(info.APIKey),
				"callbackUrl":   info.CallbackURL,
			},
			"features": gin.H{
				"database": info.DatabaseEnabled,
				"rabbitmq": info.RabbitMQEnabled,
				"redis":    info.RedisEnabled,
			},
		})
	}
}

// Health handles GET /health
func Health(service string, checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(checks) == 0 {
			c.JSON(http.StatusOK, gin.H{
				"status":  "healthy",
				"service": service,
			})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()

		status, code := "healthy", http.StatusOK
		results := gin.H{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = err.Error()
				status, code = "unhealthy", http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}

		c.JSON(code, gin.H{
			"status":   status,
			"service":  service,
			"services": results,
		})
	}
}
