package app

import (
	"log/slog"

	"github.com/clashmarket/arena/internal/auth"
	"github.com/clashmarket/arena/internal/guard"
	"github.com/clashmarket/arena/internal/handler"
	"github.com/clashmarket/arena/internal/push"
	"github.com/clashmarket/arena/internal/service"
	"github.com/go-chi/chi/v5"
)

// RouterDeps holds all dependencies needed by NewRouter.
type RouterDeps struct {
	Games       *service.GameService
	Matches     *service.MatchService
	Hub         *push.Hub
	JWTMgr      *auth.JWTManager
	Limiter     *guard.RateLimiter
	Idempotency *guard.IdempotencyGuard
	Health      handler.HealthCheckFunc
	Origins     []string
	Logger      *slog.Logger
}

// NewRouter assembles the chi.Router with all routes and middleware.
func NewRouter(deps RouterDeps) chi.Router {
	logger := deps.Logger

	gameHandler := handler.NewGameHandler(deps.Games, deps.Idempotency, logger)
	matchHandler := handler.NewMatchHandler(deps.Matches)
	socketHandler := handler.NewSocketHandler(deps.Games, deps.Hub, logger)

	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))
	r.Use(handler.CORSWithOrigins(deps.Origins))
	r.Use(handler.JSONContentType)

	r.Get("/health", handler.HealthHandler(deps.Health, deps.Hub.ConnectionCount))

	// Public reads
	r.Get("/games", gameHandler.ListGames)
	r.Get("/games/{id}", gameHandler.GetGame)
	r.Get("/games/{id}/countdown", gameHandler.GetCountdown)
	r.Get("/games/{id}/ws", socketHandler.ServeGame)
	r.Get("/matches/recent", matchHandler.RecentMatches)
	r.Get("/players/{id}/stats", matchHandler.PlayerStats)
	r.Get("/players/{id}/matches", matchHandler.PlayerMatches)

	// Player-authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.AuthenticatePlayer(deps.JWTMgr))

		r.Get("/games/mine", gameHandler.MyGames)

		r.Group(func(r chi.Router) {
			r.Use(handler.RateLimit(deps.Limiter, logger))

			r.Post("/games", gameHandler.CreateGame)
			r.Post("/games/join", gameHandler.JoinByCode)
			r.Post("/games/{id}/join", gameHandler.JoinGame)
			r.Post("/games/{id}/start", gameHandler.StartGame)
			r.Post("/games/start/{id}", gameHandler.StartGame)
			r.Post("/games/{id}/cancel", gameHandler.CancelGame)
			r.Patch("/games/{id}", gameHandler.EditGame)
		})
	})

	// Resolver-authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.AuthenticateResolver(deps.JWTMgr))
		r.Post("/games/{id}/complete", gameHandler.CompleteGame)
	})

	return r
}
