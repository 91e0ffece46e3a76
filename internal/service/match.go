package service

import (
	"context"
	"log/slog"

	"github.com/clashmarket/arena/internal/domain"
	"github.com/clashmarket/arena/internal/repository"
	"github.com/google/uuid"
)

// MatchService records settled games and serves player statistics.
type MatchService struct {
	matches repository.MatchRepository
	logger  *slog.Logger
}

// NewMatchService creates a MatchService.
func NewMatchService(matches repository.MatchRepository, logger *slog.Logger) *MatchService {
	return &MatchService{matches: matches, logger: logger}
}

// Record stores the result of a completed game. Recording the same game twice is
// a no-op and reports false.
func (s *MatchService) Record(ctx context.Context, g *domain.Game) (bool, error) {
	m, ok := domain.MatchResultFromGame(g)
	if !ok {
		return false, domain.ErrValidation("game is not completed with a winner")
	}
	inserted, err := s.matches.Record(ctx, *m)
	if err != nil {
		return false, domain.ErrTransport("record match", err)
	}
	if inserted {
		s.logger.Info("match recorded", "game_id", g.ID, "winner_id", m.WinnerID, "loser_id", m.LoserID)
	}
	return inserted, nil
}

// Stats returns a player's win/loss record.
func (s *MatchService) Stats(ctx context.Context, userID uuid.UUID) (*domain.UserStats, error) {
	stats, err := s.matches.StatsForUser(ctx, userID)
	if err != nil {
		return nil, domain.ErrTransport("load stats", err)
	}
	return stats, nil
}

// Recent returns the latest match results.
func (s *MatchService) Recent(ctx context.Context, limit int) ([]domain.MatchResult, error) {
	out, err := s.matches.ListRecent(ctx, clampLimit(limit))
	if err != nil {
		return nil, domain.ErrTransport("list matches", err)
	}
	return out, nil
}

// History returns the matches a player took part in, newest first.
func (s *MatchService) History(ctx context.Context, userID uuid.UUID, limit int) ([]domain.MatchResult, error) {
	out, err := s.matches.ListForUser(ctx, userID, clampLimit(limit))
	if err != nil {
		return nil, domain.ErrTransport("list player matches", err)
	}
	return out, nil
}
