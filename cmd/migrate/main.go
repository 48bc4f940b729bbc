package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vectorsearch/listings/app/config"
	"github.com/vectorsearch/listings/app/database"
	"github.com/vectorsearch/listings/models"
)

func main() {
	vectorize := flag.Bool("vectorize", false, "also register the products table with the vectorize extension")
	transformer := flag.String("transformer", models.DefaultTransformer, "embedding model used by the search job")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := config.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	// run returns before exiting so the pool is closed on every path.
	if err := run(cfg, logger, *vectorize, *transformer); err != nil {
		logger.Fatal(err)
	}
}

func run(cfg *config.Config, logger *logrus.Logger, vectorize bool, transformer string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := database.Open(ctx, cfg.Database(), logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if err := pool.DB().WithContext(ctx).AutoMigrate(&models.Product{}); err != nil {
		return fmt.Errorf("failed to migrate products: %w", err)
	}
	logger.Info("Products table migrated")

	if !vectorize {
		return nil
	}

	if err := models.NewSearcher(pool, cfg.SearchJob).CreateSearchJob(ctx, transformer); err != nil {
		return fmt.Errorf("failed to create search job %q: %w", cfg.SearchJob, err)
	}
	logger.Infof("Search job %q registered with transformer %s", cfg.SearchJob, transformer)
	return nil
}
