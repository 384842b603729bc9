package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/corekit/storefront/internal/idempotency"
)

const idempotencyKeyContext = "idempotency_key"

// IdempotencyMiddleware requires the Idempotency-Key header and stores it in the context
func IdempotencyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(idempotency.Header))
		if key == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "missing_idempotency_key",
				"message": idempotency.Header + " header is required",
			})
			return
		}
		if len(key) > 255 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_idempotency_key",
				"message": idempotency.Header + " must be at most 255 characters",
			})
			return
		}

		c.Set(idempotencyKeyContext, key)
		c.Next()
	}
}

// GetIdempotencyKey returns the key stored by IdempotencyMiddleware
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	key, ok := c.Get(idempotencyKeyContext)
	if !ok {
		return "", false
	}
	s, ok := key.(string)
	return s, ok
}
