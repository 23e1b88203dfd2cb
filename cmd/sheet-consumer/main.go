package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/maltedev/offer-scraper/internal/config"
	"github.com/maltedev/offer-scraper/internal/events"
	"github.com/maltedev/offer-scraper/internal/logger"
	"github.com/maltedev/offer-scraper/internal/sheet"
	"github.com/redis/go-redis/v9"
)

// sheet-consumer appends every relayed OFFER_EXTRACTED event to a workbook.
func main() {
	name := flag.String("name", "consumer-1", "Consumer name within the group")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	table, err := openTable(cfg.Sheet, logger)
	if err != nil {
		logger.Error("failed to open workbook", "error", err)
		os.Exit(1)
	}
	defer table.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to Redis", "addr", cfg.Redis.Addr)

	handler := func(ctx context.Context, payload *events.OfferExtractedPayload) error {
		if err := table.Save(ctx, payload.Records); err != nil {
			return err
		}
		return table.SaveAs(cfg.Sheet.OutputPath)
	}

	consumer := events.NewConsumer(rdb, events.ConsumerConfig{
		Stream: cfg.Redis.Stream,
		Group:  cfg.Redis.ConsumerGroup,
		Name:   *name,
	}, handler, logger)

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("consumer error", "error", err)
		os.Exit(1)
	}
	logger.Info("consumer stopped")
}

// openTable continues an existing output workbook, or starts from the template
// (or a blank sheet) when there is none yet.
func openTable(cfg config.SheetConfig, logger *slog.Logger) (*sheet.Table, error) {
	if _, err := os.Stat(cfg.OutputPath); err == nil {
		table, err := sheet.Open(cfg.OutputPath, cfg.SheetName, nil, cfg.StartRow, logger)
		if err != nil {
			return nil, err
		}
		next, err := table.Resume()
		if err != nil {
			table.Close()
			return nil, err
		}
		logger.Info("resuming workbook", "path", cfg.OutputPath, "next_row", next)
		return table, nil
	}

	if cfg.TemplatePath != "" {
		return sheet.Open(cfg.TemplatePath, cfg.SheetName, nil, cfg.StartRow, logger)
	}
	return sheet.New(nil, cfg.StartRow, logger)
}
