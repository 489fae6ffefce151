package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"lodestar/internal/auth"
)

const (
	headerTimestamp = "x-timestamp"
	headerNonce     = "x-nonce"
	headerSignature = "x-signature"
)

// RequireSignature validates the HMAC triplet on an upload. It consumes the
// raw body for the digest and restores it so the handler can still bind.
// Runs after RequireToken has resolved the device identity.
func RequireSignature(verifier *auth.SignatureVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		deviceID := c.GetString(DeviceIDKey)

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable_body"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		timestamp, _ := strconv.ParseInt(c.GetHeader(headerTimestamp), 10, 64)
		in := auth.SignatureInput{
			Method:      c.Request.Method,
			Path:        c.Request.URL.Path,
			TimestampMs: timestamp,
			Nonce:       c.GetHeader(headerNonce),
			Signature:   strings.ToLower(c.GetHeader(headerSignature)),
			Body:        body,
		}

		switch err := verifier.Verify(c.Request.Context(), deviceID, in); {
		case err == nil:
			c.Next()
		case errors.Is(err, auth.ErrMissingSignatureHeaders):
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing_signature_headers"})
		case errors.Is(err, auth.ErrTimestampOutOfRange):
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "timestamp_out_of_range"})
		case errors.Is(err, auth.ErrUnknownDevice):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown_device"})
		case errors.Is(err, auth.ErrInvalidSignature):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_signature"})
		case errors.Is(err, auth.ErrReplayedNonce):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "replayed_nonce"})
		default:
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "store_unavailable"})
		}
	}
}
