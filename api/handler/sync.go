package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/noticesync/models"
)

// Runs is the part of runner.Manager the sync handlers use.
type Runs interface {
	Start(req models.SyncRequest) (models.Run, error)
	Get(id string) (models.Run, bool)
}

// PostSync returns a handler for POST /api/v1/sync.
//
// The run executes in the background; the response only acknowledges it.
// Poll GET /api/v1/sync/:id for the outcome.
func PostSync(runs Runs) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.SyncRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, models.NewSyncError(models.ErrKindInvalidInput, err.Error(), err))
			return
		}

		run, err := runs.Start(req)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusAccepted, models.SyncResponse{
			ID:     run.ID,
			Status: run.Status,
		})
	}
}

// GetSync returns a handler for GET /api/v1/sync/:id.
func GetSync(runs Runs) gin.HandlerFunc {
	return func(c *gin.Context) {
		run, ok := runs.Get(c.Param("id"))
		if !ok {
			respondError(c, models.NewSyncError(models.ErrKindNotFound, "run not found", nil))
			return
		}
		c.JSON(http.StatusOK, run)
	}
}

// respondError maps a SyncError to its HTTP status and writes the
// structured error body.
func respondError(c *gin.Context, err error) {
	var se *models.SyncError
	if !errors.As(err, &se) {
		se = models.NewSyncError(models.ErrKindInternal, err.Error(), err)
	}
	c.JSON(statusOf(se.Kind), models.SyncResponse{
		Status: models.RunStatusFailed,
		Error:  se.ToDetail(),
	})
}

func statusOf(kind string) int {
	switch kind {
	case models.ErrKindInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrKindUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrKindNotFound:
		return http.StatusNotFound // 404
	case models.ErrKindConflict:
		return http.StatusConflict // 409
	case models.ErrKindRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrKindConfiguration:
		return http.StatusServiceUnavailable // 503
	default:
		return http.StatusInternalServerError // 500
	}
}
