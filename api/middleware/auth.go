// Package middleware holds the gin middleware in front of the sync API.
package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/noticesync/models"
)

const apiKeyContextKey = "api_key"

// Auth returns API-key authentication middleware.
//
// Accepts either header:
//
//	X-API-Key: <key>
//	Authorization: Bearer <key>
//
// With no keys configured every request passes.
func Auth(apiKeys []string) gin.HandlerFunc {
	digests := make([][sha256.Size]byte, 0, len(apiKeys))
	for _, k := range apiKeys {
		if k != "" {
			digests = append(digests, sha256.Sum256([]byte(k)))
		}
	}
	if len(digests) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		key := extractAPIKey(c)
		if key == "" {
			abort(c, http.StatusUnauthorized, models.ErrKindUnauthorized,
				"missing API key: provide X-API-Key header or Authorization: Bearer <key>")
			return
		}

		// Constant time over every configured key.
		got := sha256.Sum256([]byte(key))
		matched := 0
		for i := range digests {
			matched |= subtle.ConstantTimeCompare(got[:], digests[i][:])
		}
		if matched != 1 {
			abort(c, http.StatusUnauthorized, models.ErrKindUnauthorized, "invalid API key")
			return
		}

		c.Set(apiKeyContextKey, key)
		c.Next()
	}
}

func abort(c *gin.Context, status int, kind, message string) {
	c.AbortWithStatusJSON(status, models.SyncResponse{
		Status: models.RunStatusFailed,
		Error:  &models.ErrorDetail{Kind: kind, Message: message},
	})
}

func extractAPIKey(c *gin.Context) string {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key
	}
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}
