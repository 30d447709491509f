package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cinestream/server/internal/config"
	"github.com/cinestream/server/internal/database"
	"github.com/cinestream/server/internal/handlers"
	"github.com/cinestream/server/internal/middleware"
	"github.com/cinestream/server/internal/services"
	"github.com/cinestream/server/internal/storage"
	"github.com/cinestream/server/internal/upload"
	"github.com/cinestream/server/pkg/logger"
	"github.com/cinestream/server/pkg/utils"
	"github.com/cinestream/server/pkg/watchtoken"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.Log.Level, cfg.Log.Format)

	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)
	watchtoken.SetSecret(cfg.JWT.Secret)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	if err := database.SeedAuthorizedEmails(db, cfg.Bootstrap.AdminEmails); err != nil {
		log.Fatalf("failed seeding authorized emails: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ledger, redisClient, err := newLedger(ctx, cfg, db)
	if err != nil {
		log.Fatalf("upload ledger initialization failed: %v", err)
	}

	var provider upload.Provider
	driveClient, err := storage.NewDriveClient(ctx, cfg.Drive)
	switch {
	case errors.Is(err, storage.ErrDriveNotConfigured):
		logger.Warn("drive_not_configured", map[string]interface{}{
			"detail": "uploads will fail until DRIVE_CREDENTIALS_FILE is set",
		})
		provider = storage.UnconfiguredDrive{}
	case err != nil:
		log.Fatalf("google drive initialization failed: %v", err)
	default:
		provider = driveClient
	}

	coordinator := upload.NewCoordinator(provider, ledger, upload.NewPolicy(cfg.Upload), cfg.Upload.SessionTTL)
	coordinator.StartSweeper(ctx, cfg.Upload.SweepInterval)

	auditService := services.NewAuditService(db)

	deps := handlers.Dependencies{
		DB:          db,
		Coordinator: coordinator,
		Auth:        services.NewAuthService(db, cfg),
		Analytics:   services.NewAnalyticsService(db),
		Audit:       auditService,
		UploadHints: handlers.HintsFrom(cfg.Upload),
		FrontendURL: cfg.Server.FrontendURL,
	}
	if cfg.MinIO.Enabled {
		posters, err := storage.NewPosterStore(cfg.MinIO)
		if err != nil {
			log.Fatalf("minio initialization failed: %v", err)
		}
		if err := posters.EnsureBucket(ctx); err != nil {
			log.Fatalf("failed ensuring minio bucket: %v", err)
		}
		deps.Posters = posters
	}

	bodyLimit := cfg.Server.BodyLimitMB * 1024 * 1024
	app := fiber.New(fiber.Config{
		BodyLimit:    bodyLimit,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS(cfg.Server.FrontendURL))
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())
	app.Use(middleware.Metrics())

	app.Use("/api/auth/google", limiter.New(limiter.Config{
		Max:        20,
		Expiration: time.Minute,
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	handlers.RegisterRoutes(app, deps)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":          cfg.Server.Port,
		"address":       listenAddr,
		"body_limit_mb": cfg.Server.BodyLimitMB,
		"ledger":        cfg.Upload.Ledger,
		"max_file_mb":   cfg.Upload.MaxFileSizeMB,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		cancel()
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}

	auditService.Close(5 * time.Second)
	if redisClient != nil {
		_ = redisClient.Close()
	}
}

func newLedger(ctx context.Context, cfg *config.Config, db *gorm.DB) (upload.Ledger, *redis.Client, error) {
	switch cfg.Upload.Ledger {
	case config.LedgerDatabase:
		return upload.NewGormLedger(db), nil, nil
	case config.LedgerRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		return upload.NewRedisLedger(client, cfg.Upload.SessionTTL), client, nil
	default:
		return nil, nil, fmt.Errorf("unknown upload ledger %q", cfg.Upload.Ledger)
	}
}
