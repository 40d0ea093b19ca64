package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// NewRouter mounts every route on a fresh engine.
func NewRouter(env *Env) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), CORS(env.Config.CORSOrigins))

	r.GET("/health", HealthCheckHandler(env.Store))
	r.GET("/health/downloads", DownloadMetricsHandler(env))

	tickets := r.Group("/ticket")
	tickets.GET("/", func(c *gin.Context) { TicketIndex(c, env) })
	tickets.POST("/generate", RequireClient(env.Store), func(c *gin.Context) { GenerateTicket(c, env) })
	tickets.GET("/:id/download", func(c *gin.Context) { DownloadTicket(c, env) })
	tickets.GET("/:id/wait", func(c *gin.Context) { WaitTicket(c, env) })

	r.GET("/stream/url/:token", func(c *gin.Context) { StreamURL(c, env) })

	return r
}

// CORS answers preflight requests and tags responses for allowed origins.
func CORS(origins []string) gin.HandlerFunc {
	allowAll := false
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "" && allowed[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Expose-Headers", "Content-Disposition")

		if c.Request.Method == http.MethodOptions {
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, Authorize, X-Fpx-Authorize")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
