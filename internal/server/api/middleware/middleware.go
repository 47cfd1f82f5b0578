package middleware

import (
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"actiongate/internal/server/api/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HeaderRequestID carries the request ID in both directions
const HeaderRequestID = "X-Request-ID"

// Middleware builds the gin handlers shared by every route
type Middleware struct {
	logger *zap.Logger
}

// New creates the middleware set
func New(logger *zap.Logger) *Middleware {
	return &Middleware{
		logger: logger,
	}
}

// RequestID reuses the caller's X-Request-ID or assigns a new uuid
func (m *Middleware) RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header(HeaderRequestID, requestID)
		c.Next()
	}
}

// Logger writes one line per request once the handler chain returns
func (m *Middleware) Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := []zap.Field{
			zap.String("request_id", c.GetString("request_id")),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("route", c.FullPath()),
			zap.String("ip", c.ClientIP()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if errs := c.Errors.ByType(gin.ErrorTypePrivate).String(); errs != "" {
			fields = append(fields, zap.String("error", errs))
		}

		m.logger.Info("request completed", fields...)
	}
}

// Recovery turns a handler panic into a 500 envelope and logs the stack
func (m *Middleware) Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}

			m.logger.Error("panic recovered",
				zap.String("request_id", c.GetString("request_id")),
				zap.String("route", c.FullPath()),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))

			response.New(c, m.logger).InternalError(errors.New("internal server error"))
			c.Abort()
		}()
		c.Next()
	}
}

// Secure adds security headers
func (m *Middleware) Secure() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}

// NotFound answers unmatched routes with the standard envelope
func (m *Middleware) NotFound() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.New(c, m.logger).NotFound(fmt.Errorf("route %s %s not found", c.Request.Method, c.Request.URL.Path))
	}
}
