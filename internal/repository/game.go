package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clashmarket/arena/internal/domain"
	"github.com/clashmarket/arena/internal/infra"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

const gameColumns = `id, game_code, creator_id, opponent_id, principal_amount, pot_amount,
	token, duration_seconds, is_private, status, start_time, end_time, winner_id,
	created_at, updated_at`

// openCodeIndex is the partial unique index on game_code over non-terminal games.
const openCodeIndex = "games_open_code_key"

type pgGameStore struct {
	db     TxBeginner
	outbox OutboxRepository
}

// NewPgGameStore returns a GameStore backed by PostgreSQL. Each write commits the
// game row and its outbox event in one transaction.
func NewPgGameStore(db TxBeginner, outbox OutboxRepository) GameStore {
	return &pgGameStore{db: db, outbox: outbox}
}

func (s *pgGameStore) Create(ctx context.Context, g *domain.Game) (*domain.Game, error) {
	principal, err := infra.Float64ToNumeric(g.PrincipalAmount)
	if err != nil {
		return nil, err
	}
	pot, err := infra.Float64ToNumeric(g.PotAmount)
	if err != nil {
		return nil, err
	}

	return s.write(ctx, domain.EventGameCreated, `
		INSERT INTO games (id, game_code, creator_id, principal_amount, pot_amount, token,
		                   duration_seconds, is_private, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'created', $9, $9)
		RETURNING `+gameColumns,
		g.ID, g.Code, g.CreatorID, principal, pot, g.Token,
		g.DurationSeconds, g.IsPrivate, g.CreatedAt,
	)
}

func (s *pgGameStore) FindByID(ctx context.Context, id uuid.UUID) (*domain.Game, error) {
	row := s.db.QueryRow(ctx, `SELECT `+gameColumns+` FROM games WHERE id = $1`, id)
	return scanGame(row)
}

func (s *pgGameStore) FindOpenByCode(ctx context.Context, code string) (*domain.Game, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+gameColumns+` FROM games
		WHERE game_code = $1 AND status IN ('created', 'joined', 'active')`, code)
	return scanGame(row)
}

func (s *pgGameStore) ListByStatus(ctx context.Context, statuses []domain.GameStatus, limit int) ([]domain.Game, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+gameColumns+` FROM games
		WHERE status = ANY($1)
		ORDER BY created_at DESC
		LIMIT $2`, names, limit)
	if err != nil {
		return nil, fmt.Errorf("list games by status: %w", err)
	}
	return collectGames(rows)
}

func (s *pgGameStore) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Game, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+gameColumns+` FROM games
		WHERE creator_id = $1 OR opponent_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list games by user: %w", err)
	}
	return collectGames(rows)
}

func (s *pgGameStore) Join(ctx context.Context, id, actor uuid.UUID, at time.Time) (*domain.Game, error) {
	return s.write(ctx, domain.EventGameJoined, `
		UPDATE games SET opponent_id = $2, status = 'joined', updated_at = $3
		WHERE id = $1 AND status = 'created' AND opponent_id IS NULL AND creator_id <> $2
		RETURNING `+gameColumns, id, actor, at)
}

func (s *pgGameStore) Start(ctx context.Context, id, actor uuid.UUID, at time.Time) (*domain.Game, error) {
	return s.write(ctx, domain.EventGameStarted, `
		UPDATE games SET status = 'active', start_time = $3, updated_at = $3
		WHERE id = $1 AND status = 'joined' AND (creator_id = $2 OR opponent_id = $2)
		RETURNING `+gameColumns, id, actor, at)
}

func (s *pgGameStore) Complete(ctx context.Context, id, winner uuid.UUID, at time.Time) (*domain.Game, error) {
	return s.write(ctx, domain.EventGameCompleted, `
		UPDATE games SET status = 'completed', winner_id = $2, end_time = $3, updated_at = $3
		WHERE id = $1 AND status = 'active' AND (creator_id = $2 OR opponent_id = $2)
		RETURNING `+gameColumns, id, winner, at)
}

func (s *pgGameStore) Cancel(ctx context.Context, id, actor uuid.UUID, at time.Time) (*domain.Game, error) {
	return s.write(ctx, domain.EventGameCanceled, `
		UPDATE games SET status = 'canceled', updated_at = $3
		WHERE id = $1 AND status IN ('created', 'joined') AND (creator_id = $2 OR opponent_id = $2)
		RETURNING `+gameColumns, id, actor, at)
}

// Edit applies the non-nil fields. game_code follows edit.CodeMode:
// 1 clears it, 2 sets it, 3 keeps an existing code or falls back to $9.
func (s *pgGameStore) Edit(ctx context.Context, id, actor uuid.UUID, edit domain.GameEdit, at time.Time) (*domain.Game, error) {
	principal, err := infra.OptionalNumeric(edit.PrincipalAmount)
	if err != nil {
		return nil, err
	}
	pot, err := infra.OptionalNumeric(edit.PotAmount)
	if err != nil {
		return nil, err
	}

	return s.write(ctx, domain.EventGameEdited, `
		UPDATE games SET
		  principal_amount = COALESCE($3, principal_amount),
		  pot_amount       = COALESCE($4, pot_amount),
		  token            = COALESCE($5, token),
		  duration_seconds = COALESCE($6, duration_seconds),
		  is_private       = COALESCE($7, is_private),
		  game_code = CASE $8::int
		                WHEN 1 THEN NULL
		                WHEN 2 THEN $9::text
		                WHEN 3 THEN COALESCE(game_code, $9::text)
		                ELSE game_code
		              END,
		  updated_at = $10
		WHERE id = $1 AND creator_id = $2 AND status = 'created'
		RETURNING `+gameColumns,
		id, actor, principal, pot, edit.Token, edit.DurationSeconds, edit.IsPrivate,
		int(edit.CodeMode), edit.Code, at,
	)
}

// write runs a single-row RETURNING statement and records its outbox event in
// the same transaction. A statement matching no row returns (nil, nil).
func (s *pgGameStore) write(ctx context.Context, evt domain.EventType, query string, args ...interface{}) (*domain.Game, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	g, err := scanGame(tx.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, mapGameWriteErr(err)
	}
	if g == nil {
		return nil, nil
	}

	if err := s.outbox.Insert(ctx, tx, domain.NewGameEvent(evt, g)); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return g, nil
}

func mapGameWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == openCodeIndex {
		return ErrCodeTaken
	}
	return err
}

func collectGames(rows pgx.Rows) ([]domain.Game, error) {
	defer rows.Close()
	var games []domain.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, *g)
	}
	return games, rows.Err()
}

func scanGame(row pgx.Row) (*domain.Game, error) {
	g := &domain.Game{}
	var principal, pot pgtype.Numeric
	var status string
	err := row.Scan(&g.ID, &g.Code, &g.CreatorID, &g.OpponentID, &principal, &pot,
		&g.Token, &g.DurationSeconds, &g.IsPrivate, &status, &g.StartTime, &g.EndTime,
		&g.WinnerID, &g.CreatedAt, &g.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan game: %w", err)
	}
	g.Status = domain.GameStatus(status)

	var convErr error
	g.PrincipalAmount, convErr = infra.NumericToFloat64(principal)
	if convErr != nil {
		return nil, fmt.Errorf("convert principal_amount: %w", convErr)
	}
	g.PotAmount, convErr = infra.NumericToFloat64(pot)
	if convErr != nil {
		return nil, fmt.Errorf("convert pot_amount: %w", convErr)
	}
	return g, nil
}
