package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventTypeForStatus maps the status a game just entered to its lifecycle event.
func EventTypeForStatus(s GameStatus) EventType {
	switch s {
	case GameJoined:
		return EventGameJoined
	case GameActive:
		return EventGameStarted
	case GameCompleted:
		return EventGameCompleted
	case GameCanceled:
		return EventGameCanceled
	default:
		return EventGameCreated
	}
}

// NewGameEvent creates the outbox event recording a game write.
func NewGameEvent(evtType EventType, g *Game) OutboxDraft {
	payload, _ := json.Marshal(g)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateGame,
		AggregateID:   g.ID.String(),
		EventType:     evtType,
		PartitionKey:  g.ID.String(),
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}
