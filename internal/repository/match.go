package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/clashmarket/arena/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type pgMatchRepo struct {
	db DBTX
}

// NewPgMatchRepository returns a MatchRepository backed by pvp_matches.
func NewPgMatchRepository(db DBTX) MatchRepository {
	return &pgMatchRepo{db: db}
}

// Record is idempotent per game: redelivered completion events are ignored.
func (r *pgMatchRepo) Record(ctx context.Context, m domain.MatchResult) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO pvp_matches (id, game_id, winner_id, loser_id, match_date)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (game_id) DO NOTHING`,
		m.ID, m.GameID, m.WinnerID, m.LoserID, m.MatchDate)
	if err != nil {
		return false, fmt.Errorf("insert match: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *pgMatchRepo) StatsForUser(ctx context.Context, userID uuid.UUID) (*domain.UserStats, error) {
	var wins, losses int
	err := r.db.QueryRow(ctx, `
		SELECT
		  COUNT(*) FILTER (WHERE winner_id = $1),
		  COUNT(*) FILTER (WHERE loser_id = $1)
		FROM pvp_matches
		WHERE winner_id = $1 OR loser_id = $1`, userID).Scan(&wins, &losses)
	if errors.Is(err, pgx.ErrNoRows) {
		stats := domain.NewUserStats(userID, 0, 0)
		return &stats, nil
	}
	if err != nil {
		return nil, fmt.Errorf("user stats: %w", err)
	}
	stats := domain.NewUserStats(userID, wins, losses)
	return &stats, nil
}

func (r *pgMatchRepo) ListRecent(ctx context.Context, limit int) ([]domain.MatchResult, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, game_id, winner_id, loser_id, match_date
		FROM pvp_matches
		ORDER BY match_date DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	return collectMatches(rows)
}

func (r *pgMatchRepo) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.MatchResult, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, game_id, winner_id, loser_id, match_date
		FROM pvp_matches
		WHERE winner_id = $1 OR loser_id = $1
		ORDER BY match_date DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list user matches: %w", err)
	}
	return collectMatches(rows)
}

func collectMatches(rows pgx.Rows) ([]domain.MatchResult, error) {
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.MatchResult, error) {
		var m domain.MatchResult
		err := row.Scan(&m.ID, &m.GameID, &m.WinnerID, &m.LoserID, &m.MatchDate)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan match: %w", err)
	}
	return out, nil
}

// MemoryMatchRepository is an in-process MatchRepository.
type MemoryMatchRepository struct {
	mu     sync.Mutex
	byGame map[uuid.UUID]domain.MatchResult
}

// NewMemoryMatchRepository creates an empty MemoryMatchRepository.
func NewMemoryMatchRepository() *MemoryMatchRepository {
	return &MemoryMatchRepository{byGame: make(map[uuid.UUID]domain.MatchResult)}
}

func (r *MemoryMatchRepository) Record(_ context.Context, m domain.MatchResult) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byGame[m.GameID]; ok {
		return false, nil
	}
	r.byGame[m.GameID] = m
	return true, nil
}

func (r *MemoryMatchRepository) StatsForUser(_ context.Context, userID uuid.UUID) (*domain.UserStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var wins, losses int
	for _, m := range r.byGame {
		switch userID {
		case m.WinnerID:
			wins++
		case m.LoserID:
			losses++
		}
	}
	stats := domain.NewUserStats(userID, wins, losses)
	return &stats, nil
}

func (r *MemoryMatchRepository) ListRecent(_ context.Context, limit int) ([]domain.MatchResult, error) {
	return r.list(limit, func(domain.MatchResult) bool { return true }), nil
}

func (r *MemoryMatchRepository) ListForUser(_ context.Context, userID uuid.UUID, limit int) ([]domain.MatchResult, error) {
	return r.list(limit, func(m domain.MatchResult) bool {
		return m.WinnerID == userID || m.LoserID == userID
	}), nil
}

func (r *MemoryMatchRepository) list(limit int, keep func(domain.MatchResult) bool) []domain.MatchResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.MatchResult, 0, len(r.byGame))
	for _, m := range r.byGame {
		if keep(m) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MatchDate.After(out[j].MatchDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
