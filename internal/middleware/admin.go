package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireAdmin gates the operator endpoints behind a shared key presented
// in the x-admin-key header. The comparison is constant-time.
func RequireAdmin(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader("x-admin-key")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(adminKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_admin_key"})
			return
		}
		c.Next()
	}
}
