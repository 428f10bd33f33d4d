package main

import (
	"context"
	"fmt"
	"leadwallet/internal/client"
	"leadwallet/internal/config"
	"leadwallet/internal/events"
	"leadwallet/internal/pricing"
	"leadwallet/internal/repository"
	"leadwallet/internal/server"
	"leadwallet/internal/session"
	"leadwallet/pkg/logger"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

func main() {
	// load .env into os.Environ
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found (ok in prod)")
	}

	cfg := &config.Config{}
	if err := env.Parse(cfg); err != nil {
		fmt.Printf("Failed to parse config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid config: %v\n", err)
		os.Exit(1)
	}

	format := cfg.Log.Format
	if cfg.IsDevelopment() {
		format = "console"
	}
	log, err := logger.NewLogger(cfg.Log.Level, format)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	db, err := client.InitDBClient(cfg.DatabaseURL)
	if err != nil {
		log.Fatalw("failed to open database", "error", err)
	}
	attemptRepo := repository.NewAttemptRepository(db)

	nc, err := client.ConnectNats(cfg.Nats.URL)
	if err != nil {
		log.Warnw("nats unavailable, checkout events disabled", "error", err)
	}
	publisher := events.NewPublisher(events.NewBus(nc), log)

	bridge := client.NewRazorpayBridge(&cfg.Razorpay, log)
	prices := pricing.NewTable(cfg.Plans)

	sessions := session.NewManager(
		cfg,
		client.NewBackendFactory(&cfg.Backend),
		bridge,
		prices,
		attemptRepo,
		publisher,
		log,
	)

	// warm the gateway script so the first checkout does not wait on the CDN
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Razorpay.ScriptTimeout)
		defer cancel()
		if !bridge.EnsureLoaded(ctx) {
			log.Warnw("gateway script not loaded at startup, will retry on first checkout")
		}
	}()

	srv := server.NewServer(cfg, sessions, bridge, prices, attemptRepo, log)

	serverAddr := cfg.ServerAddr()
	log.Infow("starting HTTP server", "addr", serverAddr, "environment", cfg.Environment.Name)
	go func() {
		if err := srv.Start(serverAddr); err != nil && err != http.ErrServerClosed {
			log.Fatalw("HTTP server error", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	<-sigChan
	log.Infow("signal received, starting graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("HTTP server shutdown error", "error", err)
	}

	sessions.Shutdown()

	if nc != nil {
		if err := nc.Drain(); err != nil {
			log.Warnw("nats drain failed", "error", err)
			nc.Close()
		}
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Infow("shutdown complete")
}
