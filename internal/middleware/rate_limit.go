package middleware

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitMiddleware applies a process-wide request budget. Health checks
// are exempt so probes keep working under load.
func RateLimitMiddleware(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" {
			c.Next()
			return
		}

		if !limiter.Allow() {
			log.Printf("Rate limit blocked IP: %s for path: %s",
				c.ClientIP(), c.Request.URL.Path)

			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limit_exceeded",
				"message": "please try again later",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
