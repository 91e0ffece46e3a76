// Command watch follows one game from a terminal: it shows the live countdown,
// rings milestone alerts, and exits when the game completes or is canceled.
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
	"time"

	"github.com/clashmarket/arena/internal/client"
	"github.com/clashmarket/arena/internal/countdown"
	"github.com/clashmarket/arena/internal/guard"
	"github.com/clashmarket/arena/internal/infra"
	"github.com/clashmarket/arena/internal/notify"
	"github.com/clashmarket/arena/internal/push"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: watch <game-id>")
		os.Exit(2)
	}
	gameID, err := uuid.Parse(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid game id %q: %v\n", os.Args[1], err)
		os.Exit(2)
	}

	if err := run(logger, gameID); err != nil {
		logger.Error("watch failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, gameID uuid.UUID) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg, err := infra.LoadWatchConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	clock := clockwork.NewRealClock()
	api := client.New(cfg.APIURL, cfg.Token, cfg.RequestTimeout, clock)

	var source push.Source
	switch {
	case cfg.NATSURL != "":
		nc, err := infra.ConnectNATS(cfg.NATSURL, "clash-watch", logger)
		if err != nil {
			logger.Warn("nats unavailable, polling only", "error", err)
			break
		}
		defer nc.Close()
		source = push.NewNATSSource(nc, cfg.NATSSubjectPrefix, logger)
	case cfg.UseWebSocket:
		ws, err := push.NewWSSource(cfg.APIURL, cfg.Token, clock, logger)
		if err != nil {
			return fmt.Errorf("websocket source: %w", err)
		}
		source = ws
	}

	var offset time.Duration
	if cfg.SyncClock {
		offset, err = api.ClockOffset(ctx, gameID)
		if err != nil {
			logger.Warn("clock sync failed, using local clock", "error", err)
			offset = 0
		}
	}

	notifier := notify.MultiNotifier{
		&notify.WriterNotifier{W: os.Stdout},
		notify.LogNotifier{Logger: logger},
	}
	breaker := guard.NewCircuitBreaker(3, 30*time.Second, clock)
	scheduler := notify.NewScheduler(gameID, notifier, breaker, logger)

	watcher := countdown.NewWatcher(api, source, scheduler, clock, logger, countdown.Config{
		PollInterval: cfg.PollInterval,
		TickInterval: cfg.TickInterval,
		ClockOffset:  offset,
	}, render)

	final, err := watcher.Watch(ctx, gameID)
	scheduler.Close()
	fmt.Println()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	fmt.Printf("game %s %s\n", gameID, final.Status)
	return nil
}

func render(v countdown.View) {
	fmt.Printf("\r%-9s %s   ", v.Status, v.Display)
}
