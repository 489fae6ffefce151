package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	goredis "github.com/go-redis/redis/v8"
	"golang.org/x/time/rate"

	"lodestar/internal/auth"
	"lodestar/internal/config"
	"lodestar/internal/handlers"
	"lodestar/internal/middleware"
	"lodestar/internal/models"
	"lodestar/internal/service"
)

// Deps carries everything the router wires together. The redis client is
// nil when the file backend is active.
type Deps struct {
	Config   *config.Config
	Devices  service.DeviceService
	Ledger   service.LedgerService
	Tokens   *auth.TokenService
	Verifier *auth.SignatureVerifier
	Redis    *goredis.Client
}

// SetupRouter builds the full HTTP surface: health, device auth, signed
// ingestion and the admin dashboard endpoints.
func SetupRouter(d Deps) *gin.Engine {
	r := gin.Default()

	r.Use(middleware.RequestID())

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", d.Config.App.FrontendURL},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "x-timestamp", "x-nonce", "x-signature", "x-admin-key"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	if !d.Config.App.Debug && d.Config.RateLimit.RequestsPerSecond > 0 {
		limiter := rate.NewLimiter(
			rate.Limit(d.Config.RateLimit.RequestsPerSecond),
			d.Config.RateLimit.Burst,
		)
		r.Use(middleware.RateLimitMiddleware(limiter))
	}

	authHandler := handlers.NewAuthHandler(d.Devices)
	ingestHandler := handlers.NewIngestHandler(d.Ledger)
	adminHandler := handlers.NewAdminHandler(d.Devices, d.Ledger, d.Redis)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ok":  true,
			"now": time.Now().UTC().Format(time.RFC3339),
		})
	})

	api := r.Group("/api/v1")

	api.POST("/auth/register", middleware.RequireAdmin(d.Config.Auth.AdminKey), authHandler.Register)
	api.POST("/auth/device-login", authHandler.Login)

	signed := api.Group("", middleware.RequireToken(d.Tokens), middleware.RequireSignature(d.Verifier))
	signed.POST("/heartbeat", ingestHandler.Ingest(models.KindHeartbeat))
	signed.POST("/location", ingestHandler.Ingest(models.KindLocation))
	signed.POST("/events", ingestHandler.Ingest(models.KindEvent))

	admin := api.Group("/admin", middleware.RequireAdmin(d.Config.Auth.AdminKey))
	admin.GET("/devices", adminHandler.Devices)
	admin.GET("/records/:kind", adminHandler.Records)
	admin.GET("/records/:kind/export", adminHandler.Export)
	admin.GET("/overview", adminHandler.Overview)

	return r
}
