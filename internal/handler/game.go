package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/clashmarket/arena/internal/auth"
	"github.com/clashmarket/arena/internal/domain"
	"github.com/clashmarket/arena/internal/guard"
	"github.com/clashmarket/arena/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// GameHandler exposes the game lifecycle. Every write is one transition attempt.
type GameHandler struct {
	games  *service.GameService
	idem   *guard.IdempotencyGuard
	logger *slog.Logger
}

// NewGameHandler creates a new GameHandler.
func NewGameHandler(games *service.GameService, idem *guard.IdempotencyGuard, logger *slog.Logger) *GameHandler {
	return &GameHandler{games: games, idem: idem, logger: logger}
}

type joinByCodeRequest struct {
	Code string `json:"code"`
}

type completeRequest struct {
	WinnerID uuid.UUID `json:"winner_id"`
}

// ListGames handles GET /games.
func (h *GameHandler) ListGames(w http.ResponseWriter, r *http.Request) {
	games, err := h.games.ListActive(r.Context(), limitParam(r))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, games)
}

// MyGames handles GET /games/mine.
func (h *GameHandler) MyGames(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	games, err := h.games.ListForUser(r.Context(), actor, limitParam(r))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, games)
}

// GetGame handles GET /games/{id}.
func (h *GameHandler) GetGame(w http.ResponseWriter, r *http.Request) {
	id, err := gameIDParam(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	g, err := h.games.Get(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, g)
}

// GetCountdown handles GET /games/{id}/countdown.
func (h *GameHandler) GetCountdown(w http.ResponseWriter, r *http.Request) {
	id, err := gameIDParam(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	v, err := h.games.Countdown(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, v)
}

// CreateGame handles POST /games. A repeated Idempotency-Key from the same actor
// returns the game created by the first request.
func (h *GameHandler) CreateGame(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var in domain.CreateGameInput
	if err := DecodeJSON(r, &in); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}
	in.CreatorID = actor

	key := r.Header.Get("Idempotency-Key")
	if key != "" {
		key = actor.String() + ":" + key
	}
	res, prior := h.idem.Check(r.Context(), key)
	if !res.Allowed {
		h.replay(w, r, prior, res.Reason)
		return
	}

	g, err := h.games.Create(r.Context(), in)
	if err != nil {
		h.idem.Remove(key)
		RespondError(w, err)
		return
	}
	h.idem.Complete(key, g.ID.String())
	RespondJSON(w, http.StatusCreated, g)
}

func (h *GameHandler) replay(w http.ResponseWriter, r *http.Request, prior, reason string) {
	id, err := uuid.Parse(prior)
	if err != nil {
		RespondError(w, &domain.AppError{Code: "DUPLICATE_REQUEST", Message: reason, Status: http.StatusConflict})
		return
	}
	g, err := h.games.Get(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	h.logger.Info("idempotent create replayed", "game_id", id, "request_id", GetRequestID(r.Context()))
	RespondJSON(w, http.StatusOK, g)
}

// JoinGame handles POST /games/{id}/join.
func (h *GameHandler) JoinGame(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.games.Join)
}

// JoinByCode handles POST /games/join.
func (h *GameHandler) JoinByCode(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	var req joinByCodeRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}
	g, err := h.games.JoinByCode(r.Context(), req.Code, actor)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, g)
}

// StartGame handles POST /games/{id}/start and POST /games/start/{id}.
func (h *GameHandler) StartGame(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.games.Start)
}

// CancelGame handles POST /games/{id}/cancel.
func (h *GameHandler) CancelGame(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.games.Cancel)
}

// CompleteGame handles POST /games/{id}/complete for the resolver realm.
func (h *GameHandler) CompleteGame(w http.ResponseWriter, r *http.Request) {
	id, err := gameIDParam(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	var req completeRequest
	if err := DecodeJSON(r, &req); err != nil || req.WinnerID == uuid.Nil {
		RespondError(w, domain.ErrValidation("winner_id is required"))
		return
	}
	g, err := h.games.Complete(r.Context(), id, req.WinnerID)
	if err != nil {
		RespondError(w, err)
		return
	}
	h.logger.Info("game resolved", "game_id", id, "resolver", auth.SubjectFromContext(r.Context()))
	RespondJSON(w, http.StatusOK, g)
}

// EditGame handles PATCH /games/{id}.
func (h *GameHandler) EditGame(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	id, err := gameIDParam(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	var patch domain.GamePatch
	if err := DecodeJSON(r, &patch); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}
	g, err := h.games.Edit(r.Context(), id, actor, patch)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, g)
}

func (h *GameHandler) transition(w http.ResponseWriter, r *http.Request, do func(context.Context, uuid.UUID, uuid.UUID) (*domain.Game, error)) {
	actor, err := actorFromRequest(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	id, err := gameIDParam(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	g, err := do(r.Context(), id, actor)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, g)
}

func actorFromRequest(r *http.Request) (uuid.UUID, error) {
	id, ok := auth.ActorFromContext(r.Context())
	if !ok {
		return uuid.Nil, domain.ErrUnauthorized("missing actor")
	}
	return id, nil
}

func gameIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, domain.ErrValidation("invalid game id")
	}
	return id, nil
}

func limitParam(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return n
}
