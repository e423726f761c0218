package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
)

// APIKeyMiddleware validates the shared bearer secret carried by devices.
// A missing header is reported as 401, a present-but-wrong value as 403.
// This is a single per-deployment secret, not per-device identity; the
// device_id in the payload stays self-reported and unverified.
func APIKeyMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			log.WithField("request_id", GetRequestID(c)).Warn("Rejected request with missing API key")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing API key"})
			c.Abort()
			return
		}

		token := extractToken(authHeader)
		if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			log.WithField("request_id", GetRequestID(c)).Warn("Rejected request with invalid API key")
			c.JSON(http.StatusForbidden, gin.H{"error": "Invalid API key"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// extractToken extracts the token from the Authorization header
func extractToken(authHeader string) string {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}
