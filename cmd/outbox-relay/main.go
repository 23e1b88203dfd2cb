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
	"time"

	"github.com/maltedev/offer-scraper/internal/config"
	"github.com/maltedev/offer-scraper/internal/database"
	"github.com/maltedev/offer-scraper/internal/logger"
	"github.com/redis/go-redis/v9"
)

// outbox-relay publishes stored OFFER_EXTRACTED events to Redis for runs that
// used the db sink without the API server.
func main() {
	var (
		interval = flag.Duration("interval", 5*time.Second, "Outbox poll interval")
		batch    = flag.Int("batch", 100, "Events per poll")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := database.New(ctx, cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	relay := database.NewRelay(database.NewOutboxRepository(db), redisClient, logger, database.RelayConfig{
		PollInterval: *interval,
		BatchSize:    *batch,
	})

	if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("relay stopped with error", "error", err)
		os.Exit(1)
	}
}
