// Ledgerbus - Multi-tenant financial event bus.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/ledgerbus/internal/api"
	"github.com/opensource-finance/ledgerbus/internal/bus"
	"github.com/opensource-finance/ledgerbus/internal/counter"
	"github.com/opensource-finance/ledgerbus/internal/domain"
	"github.com/opensource-finance/ledgerbus/internal/handlers"
	"github.com/opensource-finance/ledgerbus/internal/pipeline"
	"github.com/opensource-finance/ledgerbus/internal/store"
	"github.com/opensource-finance/ledgerbus/internal/system"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("LEDGERBUS_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting ledgerbus",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("LEDGERBUS_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"store", cfg.Store.Driver,
		"counter", cfg.Counter.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Event Store
	eventStore, err := store.New(cfg.Store)
	if err != nil {
		slog.Error("failed to initialize event store", "error", err)
		os.Exit(1)
	}
	defer eventStore.Close()
	slog.Info("event store initialized", "driver", cfg.Store.Driver)

	// Initialize Rate Limit Counter
	rateCounter, err := counter.New(cfg.Counter)
	if err != nil {
		slog.Error("failed to initialize rate limit counter", "error", err)
		os.Exit(1)
	}
	defer rateCounter.Close()
	slog.Info("rate limit counter initialized", "type", cfg.Counter.Type)

	// Initialize Event Bus
	eventBus := bus.New(eventStore)
	defer eventBus.Close()
	slog.Info("event bus initialized")

	// Initialize Emission Pipeline. HTTP producers are untrusted, so the
	// hardened chain (sanitization, access control, audit trail) applies.
	chain := pipeline.Secure(pipeline.Config{
		Store:      eventStore,
		Counter:    rateCounter,
		RateLimits: cfg.RateLimits,
	})
	slog.Info("emission pipeline initialized")

	// Initialize Handler Registries
	auditRegistry, err := handlers.NewAudit(eventStore)
	if err != nil {
		slog.Error("failed to initialize audit registry", "error", err)
		os.Exit(1)
	}
	businessRegistry := handlers.NewBusiness()
	aiRegistry := handlers.NewAI()

	// Initialize Event System
	sys := system.New(eventBus, eventStore, businessRegistry, auditRegistry, aiRegistry)
	if err := sys.Initialize(ctx); err != nil {
		slog.Error("failed to initialize event system", "error", err)
		os.Exit(1)
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, eventBus, chain, sys, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("ledgerbus is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Wait for in-flight document classifications before closing the bus
	aiRegistry.Wait()

	if err := sys.Shutdown(shutdownCtx); err != nil {
		slog.Error("event system shutdown failed", "error", err)
	}

	slog.Info("ledgerbus shutdown complete")
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ==============================================")
	fmt.Println("                 LEDGERBUS")
	fmt.Println("        Financial Event Bus Engine")
	fmt.Println("  ==============================================")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /events       - Emit an event")
	fmt.Println("    GET  /events       - Event history")
	fmt.Println("    GET  /events/stats - Event statistics")
	fmt.Println("    GET  /health       - Health check")
	fmt.Println("    GET  /ready        - Readiness check")
	fmt.Println()
}
