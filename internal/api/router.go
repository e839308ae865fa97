package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// NewRouter wires the verb-per-action surface: one resource, four
// verbs, everything behind the bearer credential.
func NewRouter(handler *SessionHandler, bearerToken string, logger *slog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(logger))
	r.Use(RequestIDMiddleware())
	r.Use(BearerAuthMiddleware(bearerToken))
	r.Use(ClientIdentityMiddleware(logger))

	r.PUT("/", handler.Start)
	r.DELETE("/", handler.Stop)
	r.HEAD("/", handler.Extend)
	r.GET("/", handler.Status)

	r.NoMethod(func(c *gin.Context) {
		c.Status(http.StatusMethodNotAllowed)
	})

	return r
}
