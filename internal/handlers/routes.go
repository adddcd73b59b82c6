package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"imovel-monitor/internal/ratelimit"
)

// RateLimit rejects clients that exceed the limiter's windows with 429
func RateLimit(rl *ratelimit.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if !rl.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "Rate limit exceeded",
				"message": "Too many requests. Please try again later.",
				"stats":   rl.GetStats(key),
			})
			return
		}
		c.Next()
	}
}

// RegisterRoutes mounts the monitor API under /api/monitor
func RegisterRoutes(r gin.IRouter, monitor *MonitorHandler, admin *AdminHandler, rl *ratelimit.RateLimiter) {
	limited := RateLimit(rl)

	r.GET("/health", monitor.Health)

	api := r.Group("/api/monitor")
	{
		api.POST("/executar-monitoramento", limited, monitor.TriggerRun)
		api.GET("/status-monitoramento", monitor.GetRunStatus)
		api.GET("/historico-execucoes", monitor.ListRuns)

		api.GET("/imoveis", monitor.ListListings)
		api.DELETE("/imoveis/:id", monitor.DeactivateListing)
		api.GET("/estatisticas", monitor.GetStats)
		api.GET("/busca", monitor.Search)

		api.POST("/limpeza", limited, admin.RunCleanup)
		api.GET("/limpeza/logs", admin.GetDeleteLogs)
		api.GET("/limpeza/estatisticas", admin.GetDeleteStats)

		api.GET("/ratelimit", func(c *gin.Context) {
			c.JSON(http.StatusOK, rl.GetStats(c.ClientIP()))
		})
	}
}
