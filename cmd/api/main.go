package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PRicaldone/atelier-sub003/infrastructure/config"
	"github.com/PRicaldone/atelier-sub003/infrastructure/di"
	"github.com/PRicaldone/atelier-sub003/interfaces/http/rest"

	"go.uber.org/zap"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize dependency container
	container, err := di.InitializeContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}

	// Restore persisted state and establish the structural invariants
	if err := container.Bootstrap(ctx); err != nil {
		container.Logger.Fatal("Bootstrap failed", zap.Error(err))
	}
	container.WatchRules()

	// Create router
	router := rest.NewRouter(cfg, rest.Dependencies{
		Containers: container.ContainerStore,
		Graphs:     container.GraphStore,
		Promotions: container.PromotionEngine,
		Integrity:  container.ConsistencyEngine,
		Queue:      container.Queue,
		Bus:        container.Bus,
		Store:      container.Store,
		Collector:  container.Collector,
	}, container.Logger)

	handler := router.Setup()

	// Create HTTP server. No write deadline: the event stream holds its
	// response open for the lifetime of the client connection.
	srv := &http.Server{
		Addr:        cfg.ServerAddress,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		container.Logger.Info("Starting server",
			zap.String("address", cfg.ServerAddress),
			zap.String("environment", cfg.Environment),
			zap.String("storage", cfg.StorageBackend),
		)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			container.Logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	container.Logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		container.Logger.Error("Server shutdown error", zap.Error(err))
	}

	// Drain pending snapshots and release resources
	container.Cleanup(shutdownCtx)

	log.Println("Server stopped")
}
