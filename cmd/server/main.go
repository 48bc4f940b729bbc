package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vectorsearch/listings/app/api"
	"github.com/vectorsearch/listings/app/catalog"
	"github.com/vectorsearch/listings/app/categories"
	"github.com/vectorsearch/listings/app/config"
	"github.com/vectorsearch/listings/app/database"
	"github.com/vectorsearch/listings/models"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := config.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	// Initialize database connection
	openCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	pool, err := database.Open(openCtx, cfg.Database(), logger)
	cancel()
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := pool.Close(); err != nil {
			logger.WithError(err).Warn("Failed to drain connection pool")
		}
		logger.Info("Connection pool drained")
	}()

	// Initialize handlers
	prodRepo := models.NewProductsRepository(pool)
	searcher := models.NewSearcher(pool, cfg.SearchJob)

	catalogHandler := catalog.NewCatalogHandler(prodRepo, searcher, logger)
	categoryHandler := categories.NewCategoryHandler(prodRepo)

	// Set up routing
	mux := http.NewServeMux()
	catalogHandler.RegisterRoutes(mux)
	mux.HandleFunc("GET /categories", categoryHandler.HandleGetAll)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			api.ErrorResponse(w, http.StatusServiceUnavailable, "Database is unavailable")
			return
		}
		api.OKResponse(w, map[string]string{"status": "ok"})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.WithRequestLogging(logger, api.WithRecovery(logger, mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// A listener failure returns through the deferred pool drain instead of exiting.
	if err := serve(ctx, srv, cfg.ShutdownTimeout, logger); err != nil {
		logger.WithError(err).Error("Server failed")
	}
}

// serve runs srv until ctx is cancelled or the listener fails, then shuts it
// down within shutdownTimeout.
func serve(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration, logger *logrus.Logger) error {
	serveErr := make(chan error, 1)
	go func() {
		logger.WithField("addr", srv.Addr).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}
