package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clashmarket/arena/internal/app"
	"github.com/clashmarket/arena/internal/auth"
	"github.com/clashmarket/arena/internal/guard"
	"github.com/clashmarket/arena/internal/infra"
	"github.com/clashmarket/arena/internal/push"
	"github.com/clashmarket/arena/internal/repository"
	"github.com/clashmarket/arena/internal/service"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

const appName = "clash-api"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server failed", "error", err)
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
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	pool, err := infra.NewPostgresPool(ctx, cfg, appName)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("connected to postgres")

	if cfg.MigrateOnStart {
		if err := infra.RunMigrations(cfg.DSN(), cfg.MigrationsDir, logger); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	clock := clockwork.NewRealClock()
	hub := push.NewHub(logger, nil)

	g, gctx := errgroup.WithContext(ctx)

	// With NATS, updates fan out through the broker so every API replica's hub
	// sees them. Without it the local hub is the only push channel.
	var publisher push.Publisher = hub
	if cfg.NATSURL != "" {
		nc, err := infra.ConnectNATS(cfg.NATSURL, appName, logger)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer nc.Drain()
		publisher = push.NewNATSPublisher(nc, cfg.NATSSubjectPrefix)
		relay := push.NewRelay(nc, cfg.NATSSubjectPrefix, hub, logger)
		g.Go(func() error { return relay.Run(gctx) })
	}

	outboxRepo := repository.NewOutboxRepository()
	store := repository.NewPgGameStore(pool, outboxRepo)
	matchRepo := repository.NewPgMatchRepository(pool)

	games := service.NewGameService(store, publisher, clock, logger, service.GameOptions{
		Timeout:         cfg.LifecycleTimeout,
		DefaultToken:    cfg.DefaultToken,
		DefaultDuration: cfg.DefaultDuration,
	})
	matches := service.NewMatchService(matchRepo, logger)

	idem := guard.NewIdempotencyGuard(24*time.Hour, clock)
	limiter := guard.NewRateLimiter(cfg.WriteRateLimit, time.Minute, clock)
	g.Go(func() error {
		ticker := clock.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.Chan():
				if n := idem.Sweep(); n > 0 {
					logger.Debug("idempotency keys swept", "count", n)
				}
				if n := limiter.Sweep(); n > 0 {
					logger.Debug("idle rate limit keys swept", "count", n)
				}
			}
		}
	})

	r := app.NewRouter(app.RouterDeps{
		Games:       games,
		Matches:     matches,
		Hub:         hub,
		JWTMgr:      auth.NewJWTManager(cfg.JWTSecret, cfg.JWTPlayerExpiry, cfg.JWTResolverExpiry, clock),
		Limiter:     limiter,
		Idempotency: idem,
		Health:      infra.PoolHealth(pool),
		Origins:     cfg.Origins(),
		Logger:      logger,
	})

	addr := fmt.Sprintf(":%d", cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g.Go(func() error {
		logger.Info("api server starting", "addr", addr, "nats", cfg.NATSURL != "")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		hub.Shutdown(shutdownCtx)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped gracefully")
	return nil
}
