// Package http exposes the reminder engine over a JSON API and a websocket
// event stream.
package http

import (
	"net/http"
	"time"

	"georemind/internal/shared/logging"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const defaultMaxBodyBytes = 64 << 10

// NewRouter builds the gin engine with every endpoint and middleware.
func NewRouter(deps RouterDeps, cfg RouterConfig) *gin.Engine {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	logger := logging.OrNop(deps.Logger)
	if logging.IsNil(deps.Logger) {
		logger = logging.NewComponentLogger("Router")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware(cfg.AllowedOrigins))
	engine.Use(requestContextMiddleware())
	engine.Use(observabilityMiddleware(deps.Metrics, deps.Tracer))
	engine.Use(loggingMiddleware(logger))

	h := newAPIHandler(deps, cfg, logger)

	engine.GET("/healthz", h.handleHealth)
	if deps.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	v1 := engine.Group("/v1")
	v1.Use(identityMiddleware())
	v1.Use(rateLimitMiddleware(cfg.RateLimit))
	v1.Use(bodyLimitMiddleware(cfg.MaxBodyBytes))
	{
		v1.POST("/tasks", h.handleCreateTask)
		v1.GET("/tasks", h.handleListTasks)
		v1.GET("/tasks/summary", h.handleSummary)
		v1.POST("/tasks/complete-all", h.handleCompleteAll)
		v1.GET("/tasks/:id", h.handleGetTask)
		v1.DELETE("/tasks/:id", h.handleDeleteTask)
		v1.POST("/tasks/:id/complete", h.handleCompleteTask)
		v1.POST("/tasks/:id/reopen", h.handleReopenTask)

		v1.POST("/tasks/:id/reminders", h.handleStartReminder)
		v1.GET("/tasks/:id/reminders", h.handleGetReminder)
		v1.DELETE("/tasks/:id/reminders", h.handleCancelReminder)
		v1.GET("/reminders", h.handleListReminders)

		v1.POST("/positions", h.handlePublishPosition)
		v1.PUT("/permissions/location", h.handleSetPermission)
		v1.GET("/places", h.handleSearchPlaces)
		v1.GET("/events", h.handleEvents)
	}

	engine.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, "route not found")
	})
	return engine
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	cfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", userIDHeader, userEmailHeader, requestIDHeader}
	cfg.ExposeHeaders = []string{requestIDHeader}
	cfg.AllowWebSockets = true
	cfg.MaxAge = 12 * time.Hour
	return cors.New(cfg)
}
