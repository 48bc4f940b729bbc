package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vectorsearch/listings/app/config"
	"github.com/vectorsearch/listings/app/database"
	"github.com/vectorsearch/listings/app/importer"
	"github.com/vectorsearch/listings/models"
)

func main() {
	file := flag.String("file", "", "path to an .xlsx file with listings")
	sheet := flag.String("sheet", "", "sheet to read (defaults to the first sheet)")
	dryRun := flag.Bool("dry-run", false, "validate the file without writing to the database")
	flag.Parse()

	if *file == "" {
		log.Fatal("-file is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := config.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	// run returns before exiting so the file and the pool are closed on every path.
	if err := run(cfg, logger, *file, *sheet, *dryRun); err != nil {
		logger.Fatal(err)
	}
}

func run(cfg *config.Config, logger *logrus.Logger, file, sheet string, dryRun bool) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", file, err)
	}
	defer f.Close()

	products, rowErrors, err := importer.ReadListings(f, sheet)
	if err != nil {
		return fmt.Errorf("failed to read listings: %w", err)
	}
	for _, rowErr := range rowErrors {
		logger.Warn(rowErr.Error())
	}
	logger.Infof("Read %d listings (%d rows skipped)", len(products), len(rowErrors))

	if dryRun {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.Open(ctx, cfg.Database(), logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	n, err := importer.Import(ctx, models.NewProductsRepository(pool), products, logger)
	if err != nil {
		return fmt.Errorf("import stopped after %d listings: %w", n, err)
	}
	logger.Infof("Imported %d listings", n)
	return nil
}
