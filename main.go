package main

import (
	// standard library
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	// third-party
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	// internal
	"github.com/rmitchellscott/ditherbox/internal/auth"
	"github.com/rmitchellscott/ditherbox/internal/config"
	"github.com/rmitchellscott/ditherbox/internal/database"
	"github.com/rmitchellscott/ditherbox/internal/handlers"
	"github.com/rmitchellscott/ditherbox/internal/logging"
	"github.com/rmitchellscott/ditherbox/internal/middleware"
	"github.com/rmitchellscott/ditherbox/internal/pollers"
	"github.com/rmitchellscott/ditherbox/internal/storage"
	"github.com/rmitchellscott/ditherbox/internal/version"
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-v") {
		fmt.Println(version.String())
		os.Exit(0)
	}

	cfg := config.Load()
	_, logCloser := logging.Setup(os.Stdout, logging.Options{
		Level:      logging.ParseLevel(cfg.LogLevel),
		Format:     cfg.LogFormat,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	defer logCloser.Close()

	logging.InfoWithComponent(logging.ComponentStartup, "Starting Ditherbox", "version", version.String())

	db, err := database.Initialize(cfg.Database, logging.ParseLevel(cfg.LogLevel) <= slog.LevelDebug)
	if err != nil {
		logging.ErrorWithComponent(logging.ComponentStartup, "Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer database.Close(db)

	presets, err := config.LoadPresets(cfg.PresetsFile)
	if err != nil {
		logging.ErrorWithComponent(logging.ComponentStartup, "Failed to load presets", "error", err)
		os.Exit(1)
	}
	logging.InfoWithComponent(logging.ComponentPresets, "Presets loaded", "count", len(presets.List()))

	jobs := database.NewJobService(db)
	images := storage.NewImageStorage(storage.NewFilesystemBackend(cfg.DataDir))
	links := auth.NewSigner(cfg.LinkSigningSecret, cfg.LinkTTL)
	limiter := middleware.NewIPRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst)

	// Background workers
	pollerManager := pollers.NewManager()
	pollerManager.Register(pollers.NewRetentionPoller(cfg.CleanupInterval, cfg.ResultRetention, jobs, images))
	pollerManager.Register(pollers.NewFuncPoller("rate-limiter-cleanup", 5*time.Minute, func() {
		if n := limiter.Cleanup(); n > 0 {
			logging.DebugWithComponent(logging.ComponentLimiter, "Evicted idle clients", "count", n)
		}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := pollerManager.Start(ctx); err != nil {
		logging.ErrorWithComponent(logging.ComponentStartup, "Failed to start pollers", "error", err)
		os.Exit(1)
	}

	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.MaxMultipartMemory = cfg.MaxUploadBytes

	corsConfig := cors.DefaultConfig()
	if len(cfg.CORSOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.CORSOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	corsConfig.ExposeHeaders = []string{
		"Content-Disposition",
		"Retry-After",
		"X-Dither-Algorithm",
		"X-Dither-Applied",
		"X-Dither-Format",
		"X-Dither-Warnings",
	}
	router.Use(cors.New(corsConfig))

	handlers.New(cfg, presets, jobs, images, links).RegisterRoutes(router, limiter)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logging.InfoWithComponent(logging.ComponentStartup, "Listening", "addr", srv.Addr, "data_dir", cfg.DataDir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithComponent(logging.ComponentStartup, "Server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.InfoWithComponent(logging.ComponentStartup, "Shutting down server...")

	if err := pollerManager.Stop(); err != nil {
		logging.WarnWithComponent(logging.ComponentStartup, "Failed to stop pollers", "error", err)
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.ErrorWithComponent(logging.ComponentStartup, "Server forced to shutdown", "error", err)
	}
	logging.InfoWithComponent(logging.ComponentStartup, "Server exited")
}
