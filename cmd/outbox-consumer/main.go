package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/clashmarket/arena/internal/infra"
	"github.com/clashmarket/arena/internal/outbox"
	"github.com/clashmarket/arena/internal/repository"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
)

const appName = "clash-outbox-consumer"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("outbox consumer failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	producer := infra.NewKafkaProducer(cfg, logger)
	defer producer.Close()
	// A disabled producer would mark rows published without delivering them.
	if !producer.Enabled() {
		return fmt.Errorf("outbox relay requires KAFKA_ENABLED=true and KAFKA_BROKERS")
	}

	pool, err := infra.NewPostgresPool(ctx, cfg, appName)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("outbox-consumer connected to postgres")

	poller := outbox.NewPoller(pool, repository.NewOutboxRepository(), producer, cfg, clockwork.NewRealClock(), logger)
	poller.Run(ctx)
	return nil
}
