package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// APIKeyHeader carries the shared admin key.
const APIKeyHeader = "X-Internal-API-Key"

// presentedKey reads the key from APIKeyHeader, falling back to a bearer
// token so schedulers that only speak Authorization can call the API.
func presentedKey(c *gin.Context) string {
	if key := c.GetHeader(APIKeyHeader); key != "" {
		return key
	}
	auth := c.GetHeader("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// InternalAuthMiddleware guards the admin API with a shared key. An empty
// configured key fails every request closed.
func InternalAuthMiddleware(apiKey string) gin.HandlerFunc {
	if apiKey == "" {
		return func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "server misconfigured: INTERNAL_API_KEY not set",
				"code":  "misconfigured",
			})
		}
	}
	want := []byte(apiKey)

	return func(c *gin.Context) {
		if subtle.ConstantTimeCompare([]byte(presentedKey(c)), want) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing or invalid API key",
				"code":  "unauthorized",
			})
			return
		}
		c.Next()
	}
}
