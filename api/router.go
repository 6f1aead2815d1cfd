// Package api exposes sync runs over HTTP.
package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/noticesync/api/handler"
	"github.com/use-agent/noticesync/api/middleware"
	"github.com/use-agent/noticesync/config"
)

// Manager is what the routes need from runner.Manager.
type Manager interface {
	handler.Runs
	handler.Capacity
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health stays outside auth for liveness checks.
func NewRouter(m Manager, limiter *middleware.Limiter, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")
	v1.GET("/health", handler.Health(m, startTime))

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(limiter.Middleware())

	protected.POST("/sync", handler.PostSync(m))
	protected.GET("/sync/:id", handler.GetSync(m))

	return r
}
