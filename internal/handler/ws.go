package handler

import (
	"log/slog"
	"net/http"

	"github.com/clashmarket/arena/internal/push"
	"github.com/clashmarket/arena/internal/service"
)

// SocketHandler upgrades watchers of one game onto the push hub.
type SocketHandler struct {
	games  *service.GameService
	hub    *push.Hub
	logger *slog.Logger
}

// NewSocketHandler creates a new SocketHandler.
func NewSocketHandler(games *service.GameService, hub *push.Hub, logger *slog.Logger) *SocketHandler {
	return &SocketHandler{games: games, hub: hub, logger: logger}
}

// ServeGame handles GET /games/{id}/ws.
func (h *SocketHandler) ServeGame(w http.ResponseWriter, r *http.Request) {
	id, err := gameIDParam(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	if _, err := h.games.Get(r.Context(), id); err != nil {
		RespondError(w, err)
		return
	}
	// The upgrader has already written an error response on failure.
	if err := h.hub.ServeGame(w, r, id); err != nil {
		h.logger.Warn("ws upgrade failed", "game_id", id, "error", err)
	}
}
