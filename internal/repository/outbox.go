package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/clashmarket/arena/internal/domain"
	"github.com/jackc/pgx/v5"
)

type outboxRepo struct{}

// NewOutboxRepository returns a pgx-backed OutboxRepository.
func NewOutboxRepository() OutboxRepository {
	return &outboxRepo{}
}

// The relay reads these columns by their quoted camelCase names.
const insertOutbox = `
	INSERT INTO event_outbox
	  ("eventId", "aggregateType", "aggregateId", "eventType", "partitionKey", "headers", "payload", "occurredAt")
	VALUES (@event_id, @aggregate_type, @aggregate_id, @event_type, @partition_key, @headers, @payload, @occurred_at)`

func (r *outboxRepo) Insert(ctx context.Context, db DBTX, draft domain.OutboxDraft) error {
	_, err := db.Exec(ctx, insertOutbox, pgx.NamedArgs{
		"event_id":       draft.EventID,
		"aggregate_type": string(draft.AggregateType),
		"aggregate_id":   draft.AggregateID,
		"event_type":     string(draft.EventType),
		"partition_key":  draft.PartitionKey,
		"headers":        draft.Headers,
		"payload":        draft.Payload,
		"occurred_at":    draft.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("insert %s event for game %s: %w", draft.EventType, draft.AggregateID, err)
	}
	return nil
}

// FetchUnpublished locks up to limit pending rows. Rows locked by another relay
// are skipped rather than waited on.
func (r *outboxRepo) FetchUnpublished(ctx context.Context, db DBTX, limit int) ([]domain.OutboxRow, error) {
	rows, err := db.Query(ctx, `
		SELECT "id", "eventId", "aggregateType", "aggregateId", "eventType",
		       "partitionKey", "headers", "payload", "occurredAt"
		FROM event_outbox
		WHERE "publishedAt" IS NULL
		ORDER BY "id"
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch pending outbox rows: %w", err)
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.OutboxRow, error) {
		var r domain.OutboxRow
		var aggType, evtType string
		err := row.Scan(&r.SeqID, &r.EventID, &aggType, &r.AggregateID,
			&evtType, &r.PartitionKey, &r.Headers, &r.Payload, &r.OccurredAt)
		r.AggregateType = domain.AggregateType(aggType)
		r.EventType = domain.EventType(evtType)
		return r, err
	})
}

func (r *outboxRepo) MarkPublished(ctx context.Context, db DBTX, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := db.Exec(ctx, `UPDATE event_outbox SET "publishedAt" = now() WHERE "id" = ANY($1)`, ids); err != nil {
		return fmt.Errorf("mark %d outbox rows published: %w", len(ids), err)
	}
	return nil
}

func (r *outboxRepo) PurgePublished(ctx context.Context, db DBTX, before time.Time) (int64, error) {
	tag, err := db.Exec(ctx, `DELETE FROM event_outbox WHERE "publishedAt" < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("purge published outbox rows: %w", err)
	}
	return tag.RowsAffected(), nil
}
