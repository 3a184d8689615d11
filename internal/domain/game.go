package domain

import "time"

// Sport identifies the league family a game belongs to.
type Sport string

const (
	SportBasketball Sport = "basketball"
	SportFootball   Sport = "football"
)

// GameStatus represents the lifecycle state of a game.
type GameStatus string

const (
	GameStatusScheduled GameStatus = "scheduled"
	GameStatusLive      GameStatus = "live"
	GameStatusFinal     GameStatus = "final"
	GameStatusCancelled GameStatus = "cancelled"
)

// Final reports whether the game has reached its terminal state.
func (s GameStatus) Final() bool {
	return s == GameStatusFinal
}

// Game represents a scheduled or completed matchup.
type Game struct {
	ID         string
	Sport      Sport
	League     string
	HomeTeam   string
	AwayTeam   string
	CommenceAt time.Time
	Status     GameStatus
	HomeScore  *int
	AwayScore  *int
	HomePrice  *int // latest consensus home moneyline, American odds
	AwayPrice  *int
	UpdatedAt  time.Time
}

// Result extracts the settlement-relevant view of the game.
func (g Game) Result() GameResult {
	return GameResult{Status: g.Status, HomeScore: g.HomeScore, AwayScore: g.AwayScore}
}

// GameResult is the final-status snapshot legs are graded against.
type GameResult struct {
	Status    GameStatus
	HomeScore *int
	AwayScore *int
}

// HasScores reports whether both scores are present.
func (r GameResult) HasScores() bool {
	return r.HomeScore != nil && r.AwayScore != nil
}
