package api

import (
	"net/http"

	"actiongate/internal/config"
	"actiongate/internal/server/api/middleware"
	av1 "actiongate/internal/server/api/v1"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Router handles all routing logic
type Router struct {
	engine *gin.Engine
	config *config.ServerConfig
	logger *zap.Logger
}

// NewRouter creates and configures a new router
func NewRouter(cfg *config.ServerConfig, gw av1.Gateway, sinks av1.SinkStats, logger *zap.Logger) *Router {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	r := &Router{
		engine: gin.New(),
		config: cfg,
		logger: logger,
	}

	r.setupMiddleware()
	r.setupAPIV1(gw, sinks)

	return r
}

// Handler returns the HTTP handler
func (r *Router) Handler() http.Handler {
	return r.engine
}

// setupMiddleware configures all middleware
func (r *Router) setupMiddleware() {
	m := middleware.New(r.logger)

	r.engine.Use(m.RequestID())
	r.engine.Use(m.Logger())
	r.engine.Use(m.Recovery())
	r.engine.Use(m.Secure())

	r.engine.NoRoute(m.NotFound())
}

// setupAPIV1 configures v1 API routes
func (r *Router) setupAPIV1(gw av1.Gateway, sinks av1.SinkStats) {
	api := av1.NewAPI(gw, sinks, r.logger)
	api.RegisterRoutes(r.engine.Group("/api/v1"))
}
