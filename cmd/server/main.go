// Package main runs the community platform HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/campusconnect/backend/config"
	"github.com/campusconnect/backend/internal/auth"
	"github.com/campusconnect/backend/internal/events"
	"github.com/campusconnect/backend/internal/exports"
	"github.com/campusconnect/backend/internal/middleware"
	"github.com/campusconnect/backend/internal/moderationlog"
	"github.com/campusconnect/backend/internal/registrations"
	"github.com/campusconnect/backend/internal/worker"
	"github.com/campusconnect/backend/pkg/database"
	"github.com/campusconnect/backend/pkg/queue"
	"github.com/campusconnect/backend/pkg/redis"
	"github.com/campusconnect/backend/pkg/response"
	"github.com/campusconnect/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ExportsBucket:        cfg.AWS.ExportsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
			s3Client = nil
		}
	} else {
		logger.Warn("s3 disabled (AWS_REGION not set); export archives unavailable")
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Events
	eventRepo := events.NewRepository(pool)
	eventHandler := events.NewHandler(eventRepo)

	// Registrations and moderation audit trail
	registrationRepo := registrations.NewRepository(pool)
	auditRepo := moderationlog.NewRepository(pool)
	registrationHandler := registrations.NewHandler(registrationRepo, eventRepo, auditRepo, logger)

	// Export archive jobs
	exportRepo := exports.NewRepository(pool)
	exportHandler := exports.NewHandler(exportRepo, jobQueue, s3Client, logger)
	exportProcessor := worker.NewExportProcessor(exportRepo, registrationRepo, s3Client, jobQueue, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		// Users (admin only)
		api.GET("/users", middleware.RequireRole("admin"), authHandler.List)

		// Events (read for everyone signed in; create is admin)
		api.GET("/events", eventHandler.List)
		api.GET("/events/:id", eventHandler.GetByID)
		api.POST("/events", middleware.RequireRole("admin"), eventHandler.Create)

		// Registration intake (any authenticated member)
		api.POST("/events/:id/register", registrationHandler.Register)

		// Moderation console (moderator-class roles only)
		mod := api.Group("/registrations")
		mod.Use(middleware.RequireRole("admin", "moderator"))
		{
			mod.GET("", registrationHandler.List)
			mod.GET("/export", registrationHandler.Export)
			mod.POST("/bulk-approve", registrationHandler.BulkApprove)
			mod.PATCH("/:id/approve", registrationHandler.Approve)
			mod.PATCH("/:id/reject", registrationHandler.Reject)
			mod.PATCH("/:id/attendance", registrationHandler.SetAttendance)
			mod.GET("/:id/history", registrationHandler.History)
			mod.POST("/export-jobs", exportHandler.Create)
			mod.GET("/export-jobs/:id", exportHandler.Get)
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background worker (export archives to S3)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if s3Client != nil {
		go exportProcessor.Run(workerCtx)
		logger.Info("export worker started")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
