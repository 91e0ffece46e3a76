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

	"github.com/clashmarket/arena/internal/domain"
	"github.com/clashmarket/arena/internal/infra"
	"github.com/clashmarket/arena/internal/outbox"
	"github.com/clashmarket/arena/internal/repository"
	"github.com/clashmarket/arena/internal/service"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
)

const appName = "clash-match-recorder"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("match recorder failed", "error", err)
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

	topic := infra.OutboxTopic(cfg.KafkaTopicPrefix, string(domain.AggregateGame), string(domain.EventGameCompleted))
	consumer := infra.NewKafkaConsumer(cfg, topic, logger)
	defer consumer.Close()
	if !consumer.Enabled() {
		return fmt.Errorf("match recorder requires KAFKA_ENABLED=true and KAFKA_BROKERS")
	}

	pool, err := infra.NewPostgresPool(ctx, cfg, appName)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	matches := service.NewMatchService(repository.NewPgMatchRepository(pool), logger)
	return outbox.NewRecorder(consumer, matches, clockwork.NewRealClock(), logger).Run(ctx)
}
