/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the bill-engine server: configuration, logging,
  SQLite store, background generation scheduler, HTTP API, graceful
  shutdown.

STARTUP SEQUENCE:
  1. Load configuration (defaults + optional TOML + BILLENGINE_ env)
  2. Initialize SQLite store
  3. Create API handler and generation scheduler
  4. Start HTTP server
  5. On SIGINT/SIGTERM: stop the scheduler, drain requests, close the store

CONFIGURATION:
  BILLENGINE_PORT                      HTTP port (default 8080)
  BILLENGINE_DATABASE_PATH             SQLite path (default billengine.db,
                                       ":memory:" for in-memory)
  BILLENGINE_SCHEDULE_HORIZON_MONTHS   Generation horizon (default 3)
  BILLENGINE_SCHEDULE_CRON             Generation cron spec (default @hourly)
  BILLENGINE_LOG_LEVEL                 logrus level (default info)

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Background generation
  - store/sqlite: Database implementation
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/bill-engine/api"
	"github.com/warp/bill-engine/config"
	"github.com/warp/bill-engine/store/sqlite"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Initialize handler and scheduler
	handler := api.NewHandler(store, cfg.Schedule.HorizonMonths, logger)
	scheduler := api.NewGenerationScheduler(handler.Mat, cfg.Schedule.Cron, logger)
	if err := scheduler.Start(); err != nil {
		logger.Fatalf("Failed to start scheduler: %v", err)
	}
	defer scheduler.Stop()

	// Create server
	router := api.NewRouter(handler)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Server starting on http://localhost:%d", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server stopped")
}
