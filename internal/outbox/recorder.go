package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/clashmarket/arena/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/segmentio/kafka-go"
)

// MessageSource is the Kafka side of the recorder. *infra.KafkaConsumer satisfies it.
type MessageSource interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msgs ...kafka.Message) error
}

// MatchRecorder stores a match result for a completed game. *service.MatchService
// satisfies it.
type MatchRecorder interface {
	Record(ctx context.Context, g *domain.Game) (bool, error)
}

// Recorder consumes game.completed envelopes and records match results.
// Offsets are committed only after the result is stored, so a crash replays the
// message and the unique game_id makes the replay a no-op. A message that fails
// to record is retried until it succeeds; later offsets are never committed past it.
type Recorder struct {
	source  MessageSource
	matches MatchRecorder
	clock   clockwork.Clock
	logger  *slog.Logger
	backoff time.Duration
}

// NewRecorder creates a Recorder.
func NewRecorder(source MessageSource, matches MatchRecorder, clock clockwork.Clock, logger *slog.Logger) *Recorder {
	return &Recorder{source: source, matches: matches, clock: clock, logger: logger, backoff: time.Second}
}

// Run consumes until ctx is cancelled.
func (r *Recorder) Run(ctx context.Context) error {
	r.logger.Info("match recorder started")
	for {
		msg, err := r.source.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				r.logger.Info("match recorder stopped")
				return nil
			}
			return err
		}

		for err := r.Handle(ctx, msg); err != nil; err = r.Handle(ctx, msg) {
			r.logger.Error("record match failed", "offset", msg.Offset, "partition", msg.Partition, "error", err)
			select {
			case <-ctx.Done():
				r.logger.Info("match recorder stopped")
				return nil
			case <-r.clock.After(r.backoff):
			}
		}

		if err := r.source.Commit(ctx, msg); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Warn("commit offset failed", "offset", msg.Offset, "error", err)
		}
	}
}

// Handle records one message. Malformed and non-completion envelopes are skipped
// without error so they do not block the partition.
func (r *Recorder) Handle(ctx context.Context, msg kafka.Message) error {
	env, g, err := DecodeGame(msg.Value)
	if err != nil {
		r.logger.Warn("skipping undecodable message", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		return nil
	}
	if env.EventType != string(domain.EventGameCompleted) {
		return nil
	}

	inserted, err := r.matches.Record(ctx, g)
	if domain.IsValidation(err) {
		r.logger.Warn("skipping incomplete game", "game_id", g.ID, "error", err)
		return nil
	}
	if err != nil {
		return err
	}
	if !inserted {
		r.logger.Debug("match already recorded", "game_id", g.ID)
	}
	return nil
}
