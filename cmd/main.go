package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"lodestar/internal/api"
	"lodestar/internal/auth"
	"lodestar/internal/config"
	"lodestar/internal/service"
	"lodestar/internal/store"
	pkgredis "lodestar/pkg/redis"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	log.Println("=== Lodestar Tracker Backend Starting ===")

	cfg := config.Load()

	if cfg.App.Debug {
		gin.SetMode(gin.DebugMode)
		log.Println("Running in DEBUG mode")
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// The backend is chosen once here and never switched at runtime.
	var (
		st          store.Store
		redisClient *goredis.Client
	)
	switch cfg.Store.Backend {
	case "redis":
		client, err := pkgredis.Connect(pkgredis.Config{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Fatal("Failed to connect to Redis:", err)
		}
		redisClient = client
		st = store.NewRedisStore(client, cfg.Auth.NonceTTL)
		log.Println("Store backend: redis")

	case "file":
		fileStore, err := store.NewFileStore(cfg.Store.DataDir, cfg.Auth.NonceTTL)
		if err != nil {
			log.Fatal("Failed to open data directory:", err)
		}
		st = fileStore
		log.Printf("Store backend: file (%s)", cfg.Store.DataDir)

	default:
		log.Fatalf("Unknown STORE_BACKEND: %q (use \"file\" or \"redis\")", cfg.Store.Backend)
	}
	defer st.Close()

	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	verifier := auth.NewSignatureVerifier(st, cfg.Auth.TimestampWindow)
	devices := service.NewDeviceService(st, tokens)
	ledger := service.NewLedgerService(st, cfg.Ledger.ExportDir)

	r := api.SetupRouter(api.Deps{
		Config:   cfg,
		Devices:  devices,
		Ledger:   ledger,
		Tokens:   tokens,
		Verifier: verifier,
		Redis:    redisClient,
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on http://localhost:%s", cfg.App.Port)
		log.Printf("API available at http://localhost:%s/api/v1", cfg.App.Port)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed to start:", err)
		}
	}()

	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited properly")
}
