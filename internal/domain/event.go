package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates all domain event types.
type EventType string

const (
	EventGameCreated   EventType = "clash.game.created"
	EventGameJoined    EventType = "clash.game.joined"
	EventGameStarted   EventType = "clash.game.started"
	EventGameCompleted EventType = "clash.game.completed"
	EventGameCanceled  EventType = "clash.game.canceled"
	EventGameEdited    EventType = "clash.game.edited"
)

// AggregateType enumerates the aggregate root types for outbox events.
type AggregateType string

const (
	AggregateGame AggregateType = "game"
)

// OutboxDraft is the payload written to the event_outbox table.
type OutboxDraft struct {
	EventID       uuid.UUID       `json:"eventId"`
	AggregateType AggregateType   `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	EventType     EventType       `json:"eventType"`
	PartitionKey  string          `json:"partitionKey"`
	Headers       json.RawMessage `json:"headers"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

// OutboxRow is an OutboxDraft as read back with its sequence id.
type OutboxRow struct {
	SeqID int64
	OutboxDraft
}
