package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/noticesync/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Capacity reports how many runs hold a browser right now.
type Capacity interface {
	Active() int
	MaxConcurrent() int
}

// Health returns a handler for GET /api/v1/health.
//
// Status degrades when every run slot is taken.
func Health(cp Capacity, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		active, max := cp.Active(), cp.MaxConcurrent()

		status := "healthy"
		if max > 0 && active >= max {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:     status,
			Uptime:     time.Since(startTime).Round(time.Second).String(),
			ActiveRuns: active,
			MaxRuns:    max,
			Version:    Version,
		})
	}
}
