package handler

import (
	"net/http"

	"github.com/clashmarket/arena/internal/domain"
	"github.com/clashmarket/arena/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// MatchHandler serves recorded match results.
type MatchHandler struct {
	matches *service.MatchService
}

// NewMatchHandler creates a new MatchHandler.
func NewMatchHandler(matches *service.MatchService) *MatchHandler {
	return &MatchHandler{matches: matches}
}

// PlayerStats handles GET /players/{id}/stats.
func (h *MatchHandler) PlayerStats(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, domain.ErrValidation("invalid player id"))
		return
	}
	stats, err := h.matches.Stats(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, stats)
}

// PlayerMatches handles GET /players/{id}/matches.
func (h *MatchHandler) PlayerMatches(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, domain.ErrValidation("invalid player id"))
		return
	}
	out, err := h.matches.History(r.Context(), id, limitParam(r))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, out)
}

// RecentMatches handles GET /matches/recent.
func (h *MatchHandler) RecentMatches(w http.ResponseWriter, r *http.Request) {
	out, err := h.matches.Recent(r.Context(), limitParam(r))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, out)
}
