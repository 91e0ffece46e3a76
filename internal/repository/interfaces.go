package repository

import (
	"context"
	"errors"
	"time"

	"github.com/clashmarket/arena/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// TxBeginner is a DBTX that can open transactions. *pgxpool.Pool satisfies it.
type TxBeginner interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ErrCodeTaken is returned when a game code collides with another open game.
var ErrCodeTaken = errors.New("game code already in use by an open game")

// GameStore is the persistent home of game records. Every transition is a single
// conditional update: the guard is evaluated by the store atomically with the
// write, and a failed guard yields (nil, nil) with nothing modified.
type GameStore interface {
	// Create inserts a new game in status created.
	Create(ctx context.Context, g *domain.Game) (*domain.Game, error)

	// FindByID returns a game, or nil if not found.
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Game, error)

	// FindOpenByCode returns the non-terminal game holding code, or nil.
	FindOpenByCode(ctx context.Context, code string) (*domain.Game, error)

	// ListByStatus returns games in any of statuses, newest first.
	ListByStatus(ctx context.Context, statuses []domain.GameStatus, limit int) ([]domain.Game, error)

	// ListByUser returns games where userID is creator or opponent, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Game, error)

	// Join sets the opponent iff status=created, no opponent yet, and actor is not the creator.
	Join(ctx context.Context, id, actor uuid.UUID, at time.Time) (*domain.Game, error)

	// Start activates iff status=joined and actor is a participant.
	Start(ctx context.Context, id, actor uuid.UUID, at time.Time) (*domain.Game, error)

	// Complete records the winner iff status=active and winner is a participant.
	Complete(ctx context.Context, id, winner uuid.UUID, at time.Time) (*domain.Game, error)

	// Cancel terminates iff status is created or joined and actor is a participant.
	Cancel(ctx context.Context, id, actor uuid.UUID, at time.Time) (*domain.Game, error)

	// Edit applies edit iff status=created and actor is the creator.
	Edit(ctx context.Context, id, actor uuid.UUID, edit domain.GameEdit, at time.Time) (*domain.Game, error)
}

// OutboxRepository provides access to the event_outbox table.
type OutboxRepository interface {
	// Insert writes an outbox event (within the same transaction as the game write).
	Insert(ctx context.Context, db DBTX, draft domain.OutboxDraft) error

	// FetchUnpublished returns unpublished events for the outbox poller, oldest first.
	FetchUnpublished(ctx context.Context, db DBTX, limit int) ([]domain.OutboxRow, error)

	// MarkPublished marks events as published.
	MarkPublished(ctx context.Context, db DBTX, ids []int64) error

	// PurgePublished deletes rows published before the cutoff.
	PurgePublished(ctx context.Context, db DBTX, before time.Time) (int64, error)
}

// MatchRepository provides access to pvp_matches.
type MatchRepository interface {
	// Record inserts a match result. Returns false if the game was already recorded.
	Record(ctx context.Context, m domain.MatchResult) (bool, error)

	// StatsForUser counts wins and losses for a user.
	StatsForUser(ctx context.Context, userID uuid.UUID) (*domain.UserStats, error)

	// ListRecent returns the latest results, newest first.
	ListRecent(ctx context.Context, limit int) ([]domain.MatchResult, error)

	// ListForUser returns the results a user played in, newest first.
	ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.MatchResult, error)
}
