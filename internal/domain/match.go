package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// MatchResult is the settled outcome of a completed game.
type MatchResult struct {
	ID        uuid.UUID `json:"id"`
	GameID    uuid.UUID `json:"game_id"`
	WinnerID  uuid.UUID `json:"winner_id"`
	LoserID   uuid.UUID `json:"loser_id"`
	MatchDate time.Time `json:"match_date"`
}

// UserStats summarizes a user's recorded matches.
type UserStats struct {
	UserID       uuid.UUID `json:"user_id"`
	Wins         int       `json:"wins"`
	Losses       int       `json:"losses"`
	TotalMatches int       `json:"total_matches"`
	WinRate      float64   `json:"win_rate"`
}

// NewUserStats derives totals and the win rate percentage rounded to 2 decimals.
func NewUserStats(userID uuid.UUID, wins, losses int) UserStats {
	total := wins + losses
	rate := 0.0
	if total > 0 {
		rate = math.Round(float64(wins)/float64(total)*100*100) / 100
	}
	return UserStats{UserID: userID, Wins: wins, Losses: losses, TotalMatches: total, WinRate: rate}
}

// MatchResultFromGame builds the match record for a completed game.
func MatchResultFromGame(g *Game) (*MatchResult, bool) {
	if g.Status != GameCompleted || g.WinnerID == nil {
		return nil, false
	}
	loser := g.LoserID()
	if loser == nil {
		return nil, false
	}
	date := g.UpdatedAt
	if g.EndTime != nil {
		date = *g.EndTime
	}
	return &MatchResult{
		ID:        uuid.New(),
		GameID:    g.ID,
		WinnerID:  *g.WinnerID,
		LoserID:   *loser,
		MatchDate: date,
	}, true
}
