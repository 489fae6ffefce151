package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"lodestar/internal/auth"
	"lodestar/internal/service"
)

type AuthHandler struct {
	devices service.DeviceService
}

func NewAuthHandler(devices service.DeviceService) *AuthHandler {
	return &AuthHandler{devices: devices}
}

type credentialsRequest struct {
	DeviceID string `json:"deviceId"`
	Secret   string `json:"secret"`
}

// Register is the explicit admin provisioning path: it always overwrites
// the stored secret hash, regardless of prior state.
func (h *AuthHandler) Register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.DeviceID == "" || req.Secret == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "deviceId_and_secret_required"})
		return
	}

	if _, err := h.devices.Upsert(c.Request.Context(), req.DeviceID, req.Secret); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store_unavailable"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"ok": true, "deviceId": req.DeviceID})
}

// Login exchanges device credentials for a bearer token, auto-registering
// unknown device ids on first contact.
func (h *AuthHandler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.DeviceID == "" || req.Secret == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "deviceId_and_secret_required"})
		return
	}

	result, err := h.devices.Login(c.Request.Context(), req.DeviceID, req.Secret)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredential) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store_unavailable"})
		return
	}

	if result.AutoRegistered {
		c.JSON(http.StatusCreated, gin.H{
			"token":          result.Token,
			"expiresIn":      result.ExpiresIn,
			"autoRegistered": true,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":     result.Token,
		"expiresIn": result.ExpiresIn,
	})
}
