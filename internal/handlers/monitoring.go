package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/DataShades/fpx/internal/storage"
	"github.com/DataShades/fpx/internal/utils"
)

// HealthCheckHandler checks the health of the application.
func HealthCheckHandler(store storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := utils.CheckStoreAvailability(c.Request.Context(), store, 5*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database connection failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	}
}

// DownloadMetricsHandler serves queue sizes and download counters.
func DownloadMetricsHandler(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"queue":     env.Queue.Stats(),
			"downloads": env.Monitor.GetMetrics(),
		})
	}
}
