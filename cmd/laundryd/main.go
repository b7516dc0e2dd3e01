package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"dorm-laundry-backend/config"
	"dorm-laundry-backend/internal/api"
	"dorm-laundry-backend/internal/db"
	"dorm-laundry-backend/internal/notification"
	"dorm-laundry-backend/internal/persist"
	"dorm-laundry-backend/internal/sink"
	"dorm-laundry-backend/internal/state"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.String("path", configPath), zap.Error(err))
	}
	logger.Info("configuration loaded", zap.String("path", configPath))

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatal("failed to initialize snapshot database", zap.Error(err))
	}
	logger.Info("snapshot database initialized", zap.String("driver", cfg.Database.Driver))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gateway := persist.NewGormGateway(gormDB)

	var opts []state.Option

	mirror, err := sink.Open(cfg.Sink, cfg.WorkerPool.Size, logger)
	if err != nil {
		// The sink is an optional one-way reporting mirror; run without it.
		logger.Warn("reporting sink unavailable, continuing without it", zap.Error(err))
	} else if mirror != nil {
		mirror.Start(ctx)
		opts = append(opts, state.WithSink(mirror))
		logger.Info("reporting sink started")
	}

	webpushOptions := &webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions, logger)
		pool.Start(ctx)
		opts = append(opts, state.WithNotifier(pool))
		logger.Info("waitlist notification pool started", zap.Int("workers", cfg.WorkerPool.Size))
	} else {
		logger.Warn("VAPID keys not configured, waitlist push notifications disabled")
	}

	store, err := state.New(cfg.Laundry, gateway, logger, opts...)
	if err != nil {
		logger.Fatal("failed to initialize state store", zap.Error(err))
	}

	sweep := state.NewSweep(store, cfg.Sweep.Interval, cfg.Sweep.Enabled, logger)
	go sweep.Run(ctx)

	router := api.NewRouter(&cfg.Server, store, gormDB, webpushOptions, logger)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info("shutdown signal received, stopping services")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("HTTP server shutdown failed", zap.Error(err))
	}

	logger.Info("server stopped")
}
