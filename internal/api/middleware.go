package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	ctxClientIP        = "client_ip"
	ctxClientUserAgent = "client_user_agent"
)

func LoggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency", latency.String(),
			"ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		if status >= 500 {
			logger.Error("Request", attrs...)
		} else if status >= 400 {
			logger.Warn("Request", attrs...)
		} else {
			logger.Info("Request", attrs...)
		}
	}
}

func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Writer.Header().Set("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}

// BearerAuthMiddleware checks the distributor's own credential, carried
// in a "Bearer" header. This is separate from the per-session container
// token.
func BearerAuthMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Bearer") != token {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}

// ClientIdentityMiddleware extracts the client ip and user agent that
// together key the session. Requests missing either cannot be mapped to
// a session and are rejected.
func ClientIdentityMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := strings.TrimSpace(c.GetHeader("X-Forwarded-For"))
		if ip == "" {
			ip = strings.TrimSpace(c.ClientIP())
		}
		userAgent := strings.TrimSpace(c.GetHeader("User-Agent"))

		if ip == "" || userAgent == "" {
			logger.Warn("Invalid request, client identity is missing",
				"method", c.Request.Method, "ip", ip, "user_agent", userAgent)
			c.AbortWithStatus(http.StatusMethodNotAllowed)
			return
		}

		c.Set(ctxClientIP, ip)
		c.Set(ctxClientUserAgent, userAgent)
		c.Next()
	}
}

func clientIdentity(c *gin.Context) (string, string) {
	return c.GetString(ctxClientIP), c.GetString(ctxClientUserAgent)
}
