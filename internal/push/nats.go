package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// NATSPublisher publishes updates on <prefix>.<game_id>.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSPublisher creates a publisher on an established connection.
func NewNATSPublisher(nc *nats.Conn, prefix string) *NATSPublisher {
	return &NATSPublisher{nc: nc, prefix: prefix}
}

func (p *NATSPublisher) Publish(_ context.Context, u Update) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal update: %w", err)
	}
	if err := p.nc.Publish(Subject(p.prefix, u.GameID), data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

// NATSSource subscribes to a single game's subject. Resubscription after a broker
// outage is handled by the connection's reconnect logic.
type NATSSource struct {
	nc     *nats.Conn
	prefix string
	logger *slog.Logger
}

// NewNATSSource creates a source on an established connection.
func NewNATSSource(nc *nats.Conn, prefix string, logger *slog.Logger) *NATSSource {
	return &NATSSource{nc: nc, prefix: prefix, logger: logger}
}

func (s *NATSSource) Subscribe(ctx context.Context, gameID uuid.UUID) (<-chan Update, error) {
	ch := make(chan Update, 16)
	sub, err := s.nc.Subscribe(Subject(s.prefix, gameID), func(msg *nats.Msg) {
		var u Update
		if err := json.Unmarshal(msg.Data, &u); err != nil {
			s.logger.Warn("dropping malformed push update", "subject", msg.Subject, "error", err)
			return
		}
		select {
		case ch <- u:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe: %w", err)
	}

	go func() {
		<-ctx.Done()
		if err := sub.Unsubscribe(); err != nil && !isClosed(err) {
			s.logger.Debug("nats unsubscribe", "error", err)
		}
	}()
	return ch, nil
}

// Relay forwards every game update seen on NATS to a local publisher, normally
// the WebSocket hub of this API instance.
type Relay struct {
	nc     *nats.Conn
	prefix string
	local  Publisher
	logger *slog.Logger
}

// NewRelay creates a NATS -> local relay.
func NewRelay(nc *nats.Conn, prefix string, local Publisher, logger *slog.Logger) *Relay {
	return &Relay{nc: nc, prefix: prefix, local: local, logger: logger}
}

// Run relays until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	sub, err := r.nc.Subscribe(r.prefix+".*", func(msg *nats.Msg) {
		var u Update
		if err := json.Unmarshal(msg.Data, &u); err != nil {
			r.logger.Warn("relay: malformed update", "subject", msg.Subject, "error", err)
			return
		}
		if err := r.local.Publish(ctx, u); err != nil {
			r.logger.Warn("relay: local publish failed", "game_id", u.GameID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("relay subscribe: %w", err)
	}
	r.logger.Info("push relay started", "subject", r.prefix+".*")

	<-ctx.Done()
	if err := sub.Unsubscribe(); err != nil && !isClosed(err) {
		r.logger.Warn("relay unsubscribe", "error", err)
	}
	r.logger.Info("push relay stopped")
	return nil
}

func isClosed(err error) bool {
	return errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription)
}
