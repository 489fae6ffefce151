package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"lodestar/internal/middleware"
	"lodestar/internal/models"
	"lodestar/internal/service"
)

type IngestHandler struct {
	ledger service.LedgerService
}

func NewIngestHandler(ledger service.LedgerService) *IngestHandler {
	return &IngestHandler{ledger: ledger}
}

// Ingest appends one signed upload to the ledger for kind. The signature
// middleware has already validated the body bytes this handler parses.
func (h *IngestHandler) Ingest(kind models.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		deviceID := c.GetString(middleware.DeviceIDKey)

		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable_body"})
			return
		}

		payload := models.Record{}
		if strings.TrimSpace(string(raw)) != "" {
			if err := json.Unmarshal(raw, &payload); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload"})
				return
			}
		}

		if err := h.ledger.Append(c.Request.Context(), kind, deviceID, payload); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store_unavailable"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"ok": true})
	}
}
