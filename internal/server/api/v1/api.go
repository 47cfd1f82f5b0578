package v1

import (
	"errors"
	"fmt"

	"actiongate/internal/dispatcher"
	"actiongate/internal/host"
	"actiongate/internal/server/api/response"
	"actiongate/internal/sink"
	"actiongate/internal/version"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Gateway is the host surface the API drives
type Gateway interface {
	Trigger(group, channel string, args ...any) error
	Rebind(group, name string, enabled bool) error
	Groups() []host.GroupStatus
	Group(name string) (host.GroupStatus, error)
}

// SinkStats reports the sink manager state
type SinkStats interface {
	Names() []string
	Stats() sink.Stats
}

// API represents the API
type API struct {
	gateway Gateway
	sinks   SinkStats
	logger  *zap.Logger
}

// NewAPI creates new API
func NewAPI(gw Gateway, sinks SinkStats, logger *zap.Logger) *API {
	return &API{
		gateway: gw,
		sinks:   sinks,
		logger:  logger,
	}
}

// RegisterRoutes registers API routes
func (api *API) RegisterRoutes(r *gin.RouterGroup) {
	groups := r.Group("/groups")
	{
		groups.GET("", api.getGroups)
		groups.GET("/:group", api.getGroup)
		groups.POST("/:group/channels/:channel/trigger", api.trigger)
		groups.PUT("/:group/actions/:action", api.rebind)
	}

	r.GET("/health", api.healthCheck)
	r.GET("/version", api.getVersion)
}

// TriggerRequest is the optional body of a trigger call
type TriggerRequest struct {
	Args []any `json:"args"`
}

// RebindRequest enables or disables an action
type RebindRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// trigger runs a call through the group's policy
func (api *API) trigger(c *gin.Context) {
	resp := response.New(c, api.logger)
	group, channel := c.Param("group"), c.Param("channel")

	var req TriggerRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			resp.BadRequest(fmt.Errorf("invalid trigger body: %w", err))
			return
		}
	}

	if err := api.gateway.Trigger(group, channel, req.Args...); err != nil {
		api.writeError(c, resp, err)
		return
	}

	resp.Accepted(gin.H{
		"group":   group,
		"channel": channel,
	})
}

// rebind swaps an action binding at runtime
func (api *API) rebind(c *gin.Context) {
	resp := response.New(c, api.logger)
	group, action := c.Param("group"), c.Param("action")

	var req RebindRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.BadRequest(fmt.Errorf("invalid rebind body: %w", err))
		return
	}

	if err := api.gateway.Rebind(group, action, *req.Enabled); err != nil {
		api.writeError(c, resp, err)
		return
	}

	status, err := api.gateway.Group(group)
	if err != nil {
		api.writeError(c, resp, err)
		return
	}
	resp.Success(status)
}

func (api *API) getGroups(c *gin.Context) {
	response.New(c, api.logger).Success(api.gateway.Groups())
}

func (api *API) getGroup(c *gin.Context) {
	resp := response.New(c, api.logger)

	status, err := api.gateway.Group(c.Param("group"))
	if err != nil {
		api.writeError(c, resp, err)
		return
	}
	resp.Success(status)
}

// healthCheck reports liveness plus sink delivery counters
func (api *API) healthCheck(c *gin.Context) {
	response.New(c, api.logger).Success(gin.H{
		"status": "ok",
		"groups": len(api.gateway.Groups()),
		"sinks":  api.sinks.Names(),
		"stats":  api.sinks.Stats(),
	})
}

func (api *API) getVersion(c *gin.Context) {
	response.New(c, api.logger).Success(version.GetInfo())
}

// writeError maps host and dispatcher errors to HTTP statuses
func (api *API) writeError(c *gin.Context, resp *response.Handler, err error) {
	switch {
	case errors.Is(err, host.ErrGroupNotFound), errors.Is(err, dispatcher.ErrUnknownChannel):
		resp.NotFound(err)
	case errors.Is(err, dispatcher.ErrDisposed), errors.Is(err, host.ErrNotStarted):
		resp.Conflict(err)
	default:
		api.logger.Error("Request failed",
			zap.String("request_id", c.GetString("request_id")),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		resp.InternalError(errors.New("internal server error"))
	}
}
