package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/clashmarket/arena/internal/domain"
	"github.com/clashmarket/arena/internal/infra"
	"github.com/clashmarket/arena/internal/repository"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Envelope is the Kafka message value for a relayed outbox event.
type Envelope struct {
	EventID       uuid.UUID       `json:"event_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// Publisher is the Kafka side of the relay. *infra.KafkaProducer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Poller polls the event_outbox table and publishes events to Kafka.
type Poller struct {
	db          repository.TxBeginner
	repo        repository.OutboxRepository
	producer    Publisher
	clock       clockwork.Clock
	logger      *slog.Logger
	topicPrefix string
	interval    time.Duration
	batchSize   int
	retention   time.Duration
}

// purgeEvery is how often published rows older than the retention are deleted.
const purgeEvery = time.Hour

// NewPoller creates a new outbox poller.
func NewPoller(db repository.TxBeginner, repo repository.OutboxRepository, producer Publisher, cfg *infra.Config, clock clockwork.Clock, logger *slog.Logger) *Poller {
	return &Poller{
		db:          db,
		repo:        repo,
		producer:    producer,
		clock:       clock,
		logger:      logger,
		topicPrefix: cfg.KafkaTopicPrefix,
		interval:    cfg.OutboxPollInterval,
		batchSize:   cfg.OutboxBatchSize,
		retention:   cfg.OutboxRetention,
	}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("outbox poller started", "interval", p.interval, "batch_size", p.batchSize, "retention", p.retention)

	poll := p.clock.NewTicker(p.interval)
	defer poll.Stop()
	purge := p.clock.NewTicker(purgeEvery)
	defer purge.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("outbox poller stopped")
			return
		case <-poll.Chan():
			n, err := p.Poll(ctx)
			if err != nil {
				p.logger.Error("outbox poll error", "error", err)
				continue
			}
			if n > 0 {
				p.logger.Debug("outbox poll complete", "published", n)
			}
			if n == p.batchSize {
				p.logger.Info("outbox backlog, batch was full", "batch_size", p.batchSize)
			}
		case <-purge.Chan():
			if n, err := p.Purge(ctx); err != nil {
				p.logger.Error("outbox purge error", "error", err)
			} else if n > 0 {
				p.logger.Info("outbox rows purged", "count", n)
			}
		}
	}
}

// Purge deletes published rows older than the retention. A zero retention keeps
// everything.
func (p *Poller) Purge(ctx context.Context) (int64, error) {
	if p.retention <= 0 {
		return 0, nil
	}
	return p.repo.PurgePublished(ctx, p.db, p.clock.Now().Add(-p.retention))
}

// Poll relays one batch. Rows are locked for the duration of the batch so several
// relays can run side by side. Publishing stops at the first failure to keep
// per-game ordering; the remaining rows are retried on the next poll.
func (p *Poller) Poll(ctx context.Context) (int, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	rows, err := p.repo.FetchUnpublished(ctx, tx, p.batchSize)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	published := make([]int64, 0, len(rows))
	for _, r := range rows {
		topic := infra.OutboxTopic(p.topicPrefix, string(r.AggregateType), string(r.EventType))
		msg, err := json.Marshal(Envelope{
			EventID:       r.EventID,
			AggregateType: string(r.AggregateType),
			AggregateID:   r.AggregateID,
			EventType:     string(r.EventType),
			Payload:       r.Payload,
			OccurredAt:    r.OccurredAt,
		})
		if err != nil {
			return 0, fmt.Errorf("marshal envelope: %w", err)
		}

		if err := p.producer.Publish(ctx, topic, []byte(r.PartitionKey), msg); err != nil {
			p.logger.Error("kafka publish failed", "event_id", r.EventID, "topic", topic, "error", err)
			break
		}
		published = append(published, r.SeqID)
	}

	if err := p.repo.MarkPublished(ctx, tx, published); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(published), nil
}

// DecodeGame extracts the game snapshot carried by a game event envelope.
func DecodeGame(value []byte) (*Envelope, *domain.Game, error) {
	var env Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return nil, nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.AggregateType != string(domain.AggregateGame) {
		return &env, nil, fmt.Errorf("unexpected aggregate type %q", env.AggregateType)
	}
	var g domain.Game
	if err := json.Unmarshal(env.Payload, &g); err != nil {
		return &env, nil, fmt.Errorf("decode game payload: %w", err)
	}
	return &env, &g, nil
}
