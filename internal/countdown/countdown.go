// Package countdown derives a game's shared end time and keeps an observer's
// remaining-time display converged on it.
package countdown

import (
	"fmt"
	"time"

	"github.com/clashmarket/arena/internal/domain"
	"github.com/clashmarket/arena/internal/push"
	"github.com/google/uuid"
)

// Snapshot is the countdown-relevant state of a game as seen by an observer.
type Snapshot struct {
	GameID          uuid.UUID
	Status          domain.GameStatus
	StartTime       *time.Time
	DurationSeconds int
	UpdatedAt       time.Time
}

// SnapshotFromGame projects a fetched game.
func SnapshotFromGame(g *domain.Game) Snapshot {
	return Snapshot{
		GameID:          g.ID,
		Status:          g.Status,
		StartTime:       g.StartTime,
		DurationSeconds: g.DurationSeconds,
		UpdatedAt:       g.UpdatedAt,
	}
}

// SnapshotFromUpdate projects a push update.
func SnapshotFromUpdate(u push.Update) Snapshot {
	return Snapshot{
		GameID:          u.GameID,
		Status:          u.Status,
		StartTime:       u.StartTime,
		DurationSeconds: u.DurationSeconds,
		UpdatedAt:       u.UpdatedAt,
	}
}

// Duration is the configured play window.
func (s Snapshot) Duration() time.Duration {
	return time.Duration(s.DurationSeconds) * time.Second
}

// TargetEndTime is startTime + duration. ok is false until the game has started.
func (s Snapshot) TargetEndTime() (t time.Time, ok bool) {
	if s.StartTime == nil || (s.Status != domain.GameActive && s.Status != domain.GameCompleted) {
		return time.Time{}, false
	}
	return s.StartTime.Add(s.Duration()), true
}

// Remaining is the time left at now. Before activation it is the full duration,
// unanchored to any clock; after a terminal transition it is zero.
func (s Snapshot) Remaining(now time.Time) time.Duration {
	switch s.Status {
	case domain.GameCreated, domain.GameJoined:
		return s.Duration()
	case domain.GameActive:
		target, ok := s.TargetEndTime()
		if !ok {
			return s.Duration()
		}
		return Remaining(target, now)
	default:
		return 0
	}
}

// Remaining is max(0, target - now).
func Remaining(target, now time.Time) time.Duration {
	if d := target.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Breakdown splits a duration for display. Sub-second precision is truncated.
type Breakdown struct {
	Days    int `json:"days"`
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
	Seconds int `json:"seconds"`
}

// Split breaks d into days, hours, minutes and seconds. Negative durations are zero.
func Split(d time.Duration) Breakdown {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return Breakdown{
		Days:    total / 86400,
		Hours:   total % 86400 / 3600,
		Minutes: total % 3600 / 60,
		Seconds: total % 60,
	}
}

func (b Breakdown) String() string {
	if b.Days > 0 {
		return fmt.Sprintf("%dd %02d:%02d:%02d", b.Days, b.Hours, b.Minutes, b.Seconds)
	}
	return fmt.Sprintf("%02d:%02d:%02d", b.Hours, b.Minutes, b.Seconds)
}
