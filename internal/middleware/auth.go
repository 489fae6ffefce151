package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"lodestar/internal/auth"
)

// DeviceIDKey is the gin context key the token middleware resolves the
// authenticated device identity into.
const DeviceIDKey = "deviceId"

// RequireToken authenticates the Authorization: Bearer header and stores
// the asserted device id in the request context.
func RequireToken(tokens *auth.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		scheme, token, _ := strings.Cut(c.GetHeader("Authorization"), " ")
		if scheme != "Bearer" || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
			return
		}

		deviceID, err := tokens.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
			return
		}

		c.Set(DeviceIDKey, deviceID)
		c.Next()
	}
}
