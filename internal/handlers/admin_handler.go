package handlers

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	goredis "github.com/go-redis/redis/v8"

	"lodestar/internal/models"
	"lodestar/internal/service"
	"lodestar/internal/store"
	pkgredis "lodestar/pkg/redis"
)

type AdminHandler struct {
	devices service.DeviceService
	ledger  service.LedgerService
	redis   *goredis.Client // nil unless the redis backend is active
}

func NewAdminHandler(devices service.DeviceService, ledger service.LedgerService, redis *goredis.Client) *AdminHandler {
	return &AdminHandler{devices: devices, ledger: ledger, redis: redis}
}

func (h *AdminHandler) Devices(c *gin.Context) {
	devices, err := h.devices.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store_unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": devices, "count": len(devices)})
}

func queryFromContext(c *gin.Context) service.Query {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	order := c.DefaultQuery("order", "desc")
	if order != "asc" {
		order = "desc"
	}
	return service.Query{
		Limit:    limit,
		DeviceID: c.Query("deviceId"),
		Order:    order,
	}
}

func (h *AdminHandler) Records(c *gin.Context) {
	kind, err := models.ParseKind(c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_kind"})
		return
	}

	items, err := h.ledger.ListRecent(c.Request.Context(), kind, queryFromContext(c))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store_unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"kind": kind, "items": items, "count": len(items)})
}

func (h *AdminHandler) Export(c *gin.Context) {
	kind, err := models.ParseKind(c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_kind"})
		return
	}

	format := c.DefaultQuery("format", "csv")

	var contentType, filename string
	switch format {
	case "csv":
		contentType = "text/csv"
		filename = string(kind) + "_export.csv"
	case "excel", "xlsx":
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		filename = string(kind) + "_export.xlsx"
	case "json":
		contentType = "application/json"
		filename = string(kind) + "_export.json"
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported_format"})
		return
	}

	path, err := h.ledger.Export(c.Request.Context(), kind, format, queryFromContext(c))
	if err != nil {
		if errors.Is(err, store.ErrStoreUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store_unavailable"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export_failed", "message": err.Error()})
		return
	}

	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", "attachment; filename="+filepath.Base(filename))
	c.File(path)
}

func (h *AdminHandler) Overview(c *gin.Context) {
	ctx := c.Request.Context()
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	devices, err := h.devices.List(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store_unavailable"})
		return
	}

	latest := gin.H{}
	totals := gin.H{"devices": len(devices)}
	for _, kind := range models.Kinds {
		items, err := h.ledger.ListRecent(ctx, kind, service.Query{Limit: limit})
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store_unavailable"})
			return
		}
		latest[string(kind)+"s"] = items
		totals[string(kind)+"s"] = len(items)
	}

	resp := gin.H{"totals": totals, "latest": latest}
	if h.redis != nil {
		if stats, err := pkgredis.GetStats(h.redis); err == nil {
			resp["store"] = stats
		}
	}

	c.JSON(http.StatusOK, resp)
}
