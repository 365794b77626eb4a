package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"billiard-pos-backend/config"
	"billiard-pos-backend/internal/api"
	"billiard-pos-backend/internal/db"
	"billiard-pos-backend/internal/lamp"
	"billiard-pos-backend/internal/lampsync"
	"billiard-pos-backend/internal/logger"
	"billiard-pos-backend/internal/notification"
	"billiard-pos-backend/internal/rental"
	"billiard-pos-backend/internal/scheduler"
	"billiard-pos-backend/internal/store"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load configuration", "path", configPath, "error", err)
		os.Exit(1)
	}
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("configuration loaded", "path", configPath)

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	logger.Info("database initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)

	// Lamp relay plumbing: client -> worker pool -> change-feed syncer.
	lampClient := lamp.NewClient(cfg.Lamp.BaseURL, cfg.Lamp.Timeout)
	lamps := lamp.NewDispatcher(cfg.WorkerPool.Size, lampClient)
	lamps.Start(ctx)
	if cfg.Lamp.BaseURL == "" {
		logger.Warn("lamp.base_url is not configured; channel-derived lamp commands will fail")
	}

	// Availability push notifications are optional; without VAPID keys the
	// syncer simply skips them.
	var webpushOptions *webpush.Options
	var availabilitySink lampsync.AvailabilityNotifier
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		notifier := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions)
		notifier.Start(ctx)
		availabilitySink = notifier
	} else {
		logger.Warn("VAPID keys not configured; availability push notifications disabled")
	}
	syncer := lampsync.NewSyncer(lamps, availabilitySink)
	go syncer.Run(ctx, appStore)

	rentals := rental.NewService(appStore, lamps, cfg.Lamp.ResyncEnabled())

	sched := scheduler.New(rentals, appStore, cfg)
	if err := sched.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	router := api.NewRouter(appStore, rentals, webpushOptions, &cfg.Server)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("HTTP server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info("shutdown signal received, stopping services")

	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server gracefully stopped")
}
