// Package push carries game state changes from the lifecycle to observers.
// Updates travel over NATS between processes and over WebSocket to clients.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/clashmarket/arena/internal/domain"
	"github.com/google/uuid"
)

// EventGameUpdated is the WebSocket event name for an Update.
const EventGameUpdated = "game.updated"

// Update is the push payload: the countdown-relevant slice of a game.
type Update struct {
	GameID          uuid.UUID         `json:"game_id"`
	Status          domain.GameStatus `json:"status"`
	StartTime       *time.Time        `json:"start_time"`
	DurationSeconds int               `json:"duration_seconds"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// UpdateFromGame projects a game onto its push payload.
func UpdateFromGame(g *domain.Game) Update {
	return Update{
		GameID:          g.ID,
		Status:          g.Status,
		StartTime:       g.StartTime,
		DurationSeconds: g.DurationSeconds,
		UpdatedAt:       g.UpdatedAt,
	}
}

// Message is the WebSocket frame.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// EncodeMessage wraps u in a game.updated frame.
func EncodeMessage(u Update) ([]byte, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("marshal update: %w", err)
	}
	return json.Marshal(Message{Event: EventGameUpdated, Data: data})
}

// DecodeMessage parses a frame. ok is false for events other than game.updated.
func DecodeMessage(raw []byte) (u Update, ok bool, err error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Update{}, false, fmt.Errorf("decode frame: %w", err)
	}
	if msg.Event != EventGameUpdated {
		return Update{}, false, nil
	}
	if err := json.Unmarshal(msg.Data, &u); err != nil {
		return Update{}, false, fmt.Errorf("decode update: %w", err)
	}
	return u, true, nil
}

// Subject is the NATS subject for one game.
func Subject(prefix string, gameID uuid.UUID) string {
	return prefix + "." + gameID.String()
}

// Publisher fans an update out to observers of its game.
type Publisher interface {
	Publish(ctx context.Context, u Update) error
}

// Source delivers updates for a single game. The returned channel is never
// closed; receivers stop when ctx is done.
type Source interface {
	Subscribe(ctx context.Context, gameID uuid.UUID) (<-chan Update, error)
}

// MultiPublisher publishes to every wrapped publisher and returns the first error.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, u Update) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, u); err != nil && first == nil {
			first = err
		}
	}
	return first
}
