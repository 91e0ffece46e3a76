package infra

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// ErrKafkaDisabled is returned by a consumer built without brokers.
var ErrKafkaDisabled = errors.New("kafka is disabled")

// OutboxTopic names the topic a game event is relayed to: the prefix, the
// aggregate, then the last segment of the event type (clash.game.completed).
func OutboxTopic(prefix, aggregateType, eventType string) string {
	action := eventType[strings.LastIndex(eventType, ".")+1:]
	return prefix + "." + aggregateType + "." + action
}

func brokerList(raw string) []string {
	var out []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// KafkaProducer relays outbox events. Messages are keyed by game id and the
// writer hashes on the key, so every event of one game lands on one partition
// in commit order.
type KafkaProducer struct {
	writer *kafka.Writer
}

// NewKafkaProducer returns a producer for cfg. With Kafka disabled the producer
// accepts and drops every message; callers that must not lose events check Enabled.
func NewKafkaProducer(cfg *Config, logger *slog.Logger) *KafkaProducer {
	brokers := brokerList(cfg.KafkaBrokers)
	if !cfg.KafkaEnabled || len(brokers) == 0 {
		logger.Info("kafka producer disabled")
		return &KafkaProducer{}
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}

	logger.Info("kafka producer initialized", "brokers", brokers)
	return &KafkaProducer{writer: w}
}

// Enabled reports whether messages actually reach a broker.
func (p *KafkaProducer) Enabled() bool { return p.writer != nil }

// Publish writes one keyed message to topic.
func (p *KafkaProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	if p.writer == nil {
		return nil
	}
	return p.writer.WriteMessages(ctx, kafka.Message{Topic: topic, Key: key, Value: value})
}

// Close flushes pending writes.
func (p *KafkaProducer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// KafkaConsumer reads one topic as a member of a consumer group. Offsets are
// committed explicitly so a message is only acknowledged once it is handled.
type KafkaConsumer struct {
	reader *kafka.Reader
}

// NewKafkaConsumer joins cfg.KafkaGroupID on topic. A new group starts from the
// oldest retained message so no completed game is skipped on first deploy.
func NewKafkaConsumer(cfg *Config, topic string, logger *slog.Logger) *KafkaConsumer {
	brokers := brokerList(cfg.KafkaBrokers)
	if !cfg.KafkaEnabled || len(brokers) == 0 {
		return &KafkaConsumer{}
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     cfg.KafkaGroupID,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
	})

	logger.Info("kafka consumer initialized", "topic", topic, "group", cfg.KafkaGroupID)
	return &KafkaConsumer{reader: r}
}

// Enabled reports whether the consumer has a reader.
func (c *KafkaConsumer) Enabled() bool { return c.reader != nil }

// FetchMessage blocks for the next message without committing it.
func (c *KafkaConsumer) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if c.reader == nil {
		return kafka.Message{}, ErrKafkaDisabled
	}
	return c.reader.FetchMessage(ctx)
}

// Commit acknowledges msgs for the group.
func (c *KafkaConsumer) Commit(ctx context.Context, msgs ...kafka.Message) error {
	if c.reader == nil {
		return ErrKafkaDisabled
	}
	return c.reader.CommitMessages(ctx, msgs...)
}

// Close leaves the group.
func (c *KafkaConsumer) Close() error {
	if c.reader == nil {
		return nil
	}
	return c.reader.Close()
}
