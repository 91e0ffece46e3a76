package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GameStatus is the lifecycle state of a wagered 1v1 match.
type GameStatus string

const (
	GameCreated   GameStatus = "created"
	GameJoined    GameStatus = "joined"
	GameActive    GameStatus = "active"
	GameCompleted GameStatus = "completed"
	GameCanceled  GameStatus = "canceled"
)

// OpenStatuses are the non-terminal statuses. Game codes are unique only among these.
var OpenStatuses = []GameStatus{GameCreated, GameJoined, GameActive}

// Game is one wagered match record.
type Game struct {
	ID              uuid.UUID  `json:"id"`
	Code            *string    `json:"game_code"`
	CreatorID       uuid.UUID  `json:"creator_id"`
	OpponentID      *uuid.UUID `json:"opponent_id"`
	PrincipalAmount float64    `json:"principal_amount"`
	PotAmount       float64    `json:"pot_amount"`
	Token           string     `json:"token"`
	DurationSeconds int        `json:"duration_seconds"`
	IsPrivate       bool       `json:"is_private"`
	Status          GameStatus `json:"status"`
	StartTime       *time.Time `json:"start_time"`
	EndTime         *time.Time `json:"end_time"`
	WinnerID        *uuid.UUID `json:"winner_id"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Duration returns the configured play window.
func (g *Game) Duration() time.Duration {
	return time.Duration(g.DurationSeconds) * time.Second
}

// IsParticipant reports whether userID is the creator or the opponent.
func (g *Game) IsParticipant(userID uuid.UUID) bool {
	if g.CreatorID == userID {
		return true
	}
	return g.OpponentID != nil && *g.OpponentID == userID
}

// LoserID returns the participant who is not the winner, or nil before completion.
func (g *Game) LoserID() *uuid.UUID {
	if g.WinnerID == nil || g.OpponentID == nil {
		return nil
	}
	if *g.WinnerID == g.CreatorID {
		id := *g.OpponentID
		return &id
	}
	id := g.CreatorID
	return &id
}

// IsTerminal reports whether no transition can leave s.
func (s GameStatus) IsTerminal() bool {
	return s == GameCompleted || s == GameCanceled
}

// IsOpen reports whether s is one of the listed-as-active statuses.
func (s GameStatus) IsOpen() bool {
	return s == GameCreated || s == GameJoined || s == GameActive
}

// Valid reports whether s is a known status.
func (s GameStatus) Valid() bool {
	switch s {
	case GameCreated, GameJoined, GameActive, GameCompleted, GameCanceled:
		return true
	}
	return false
}

// Rank orders statuses along the lifecycle. Both terminal statuses share the top rank.
func (s GameStatus) Rank() int {
	switch s {
	case GameCreated:
		return 0
	case GameJoined:
		return 1
	case GameActive:
		return 2
	case GameCompleted, GameCanceled:
		return 3
	}
	return -1
}

var allowedTransitions = map[GameStatus][]GameStatus{
	GameCreated:   {GameJoined, GameCanceled},
	GameJoined:    {GameActive, GameCanceled},
	GameActive:    {GameCompleted},
	GameCompleted: {},
	GameCanceled:  {},
}

// CanTransition reports whether the state machine permits from -> to.
func CanTransition(from, to GameStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckInvariants verifies the record-level invariants that every stored game must hold.
func (g *Game) CheckInvariants() error {
	if !g.Status.Valid() {
		return fmt.Errorf("unknown status %q", g.Status)
	}
	if g.IsPrivate && g.Code == nil {
		return fmt.Errorf("private game requires a code")
	}
	if !g.IsPrivate && g.Code != nil {
		return fmt.Errorf("public game must not carry a code")
	}
	if g.Status == GameCreated && g.OpponentID != nil {
		return fmt.Errorf("opponent set while status is created")
	}
	if (g.Status == GameJoined || g.Status == GameActive || g.Status == GameCompleted) && g.OpponentID == nil {
		return fmt.Errorf("opponent missing while status is %s", g.Status)
	}
	started := g.Status == GameActive || g.Status == GameCompleted
	if started != (g.StartTime != nil) {
		return fmt.Errorf("start_time presence does not match status %s", g.Status)
	}
	if g.Status == GameCompleted {
		if g.WinnerID == nil || !g.IsParticipant(*g.WinnerID) {
			return fmt.Errorf("completed game must have a participant as winner")
		}
		if g.EndTime == nil {
			return fmt.Errorf("completed game must have end_time")
		}
	} else if g.WinnerID != nil {
		return fmt.Errorf("winner set while status is %s", g.Status)
	}
	return nil
}

// CreateGameInput is what a creator supplies for a new game.
type CreateGameInput struct {
	CreatorID       uuid.UUID `json:"-"`
	PrincipalAmount float64   `json:"principal_amount"`
	PotAmount       float64   `json:"pot_amount"`
	Token           string    `json:"token"`
	DurationSeconds int       `json:"duration_seconds"`
	IsPrivate       bool      `json:"is_private"`
	Code            *string   `json:"game_code"`
}

// GamePatch carries the editable fields. Nil means unchanged.
type GamePatch struct {
	PrincipalAmount *float64   `json:"principal_amount"`
	PotAmount       *float64   `json:"pot_amount"`
	Token           *string    `json:"token"`
	DurationSeconds *int       `json:"duration_seconds"`
	IsPrivate       *bool      `json:"is_private"`
	Code            *string    `json:"game_code"`
	CreatorID       *uuid.UUID `json:"creator_id"`
}

// Empty reports whether the patch changes nothing.
func (p GamePatch) Empty() bool {
	return p.PrincipalAmount == nil && p.PotAmount == nil && p.Token == nil &&
		p.DurationSeconds == nil && p.IsPrivate == nil && p.Code == nil
}

// GameEdit is a validated patch ready for the store. CodeMode decides what happens
// to game_code.
type GameEdit struct {
	PrincipalAmount *float64
	PotAmount       *float64
	Token           *string
	DurationSeconds *int
	IsPrivate       *bool
	CodeMode        CodeMode
	// Code is the explicit code for CodeSet, or the fallback code for CodeKeepOrGenerate.
	Code string
}

// CodeMode selects how an edit treats game_code.
type CodeMode int

const (
	CodeUnchanged CodeMode = iota
	CodeClear
	CodeSet
	CodeKeepOrGenerate
)
