package sportsdata

import (
	"strings"
	"time"

	"github.com/courtsidelabs/parlayengine/internal/domain"
)

// --------------------------------------------------------------------------
// Provider API DTOs
// --------------------------------------------------------------------------

// FeedGame is a schedule or results entry as the provider returns it.
// Score and moneyline fields are omitted when the provider has no value.
type FeedGame struct {
	GameID        string `json:"game_id"`
	Sport         string `json:"sport"`
	League        string `json:"league"`
	HomeTeam      string `json:"home_team"`
	AwayTeam      string `json:"away_team"`
	CommenceTime  string `json:"commence_time"` // RFC3339
	Status        string `json:"status"`
	HomeScore     *int   `json:"home_score,omitempty"`
	AwayScore     *int   `json:"away_score,omitempty"`
	HomeMoneyline *int   `json:"home_moneyline,omitempty"`
	AwayMoneyline *int   `json:"away_moneyline,omitempty"`
}

// SeasonStats is a team's season-to-date line from the provider.
type SeasonStats struct {
	Team             string  `json:"team"`
	Season           string  `json:"season"`
	GamesPlayed      int     `json:"games_played"`
	Wins             int     `json:"wins"`
	Losses           int     `json:"losses"`
	PointsForAvg     float64 `json:"points_for_avg"`
	PointsAgainstAvg float64 `json:"points_against_avg"`
	UpdatedAt        string  `json:"updated_at"`
}

// GameLog is one entry in a team's recent-game history, most recent
// first.
type GameLog struct {
	Opponent string `json:"opponent"`
	Won      bool   `json:"won"`
	Margin   int    `json:"margin"`
	PlayedAt string `json:"played_at"`
}

// TeamInjuries is a team's availability report from the provider.
type TeamInjuries struct {
	Team          string `json:"team"`
	PlayersOut    int    `json:"players_out"`
	KeyPlayersOut int    `json:"key_players_out"`
	UpdatedAt     string `json:"updated_at"`
}

// --------------------------------------------------------------------------
// Conversion helpers
// --------------------------------------------------------------------------

// ToDomain converts a FeedGame to a domain Game.
func (g FeedGame) ToDomain() domain.Game {
	return domain.Game{
		ID:         g.GameID,
		Sport:      domain.Sport(strings.ToLower(g.Sport)),
		League:     g.League,
		HomeTeam:   g.HomeTeam,
		AwayTeam:   g.AwayTeam,
		CommenceAt: parseTime(g.CommenceTime),
		Status:     parseStatus(g.Status),
		HomeScore:  g.HomeScore,
		AwayScore:  g.AwayScore,
		HomePrice:  g.HomeMoneyline,
		AwayPrice:  g.AwayMoneyline,
		UpdatedAt:  time.Now().UTC(),
	}
}

// ToDomain converts SeasonStats to domain TeamStats.
func (s SeasonStats) ToDomain() domain.TeamStats {
	return domain.TeamStats{
		Team:          s.Team,
		Season:        s.Season,
		GamesPlayed:   s.GamesPlayed,
		Wins:          s.Wins,
		Losses:        s.Losses,
		PointsFor:     s.PointsForAvg,
		PointsAgainst: s.PointsAgainstAvg,
		UpdatedAt:     parseTime(s.UpdatedAt),
	}
}

// ToDomain converts a GameLog to a domain FormGame.
func (g GameLog) ToDomain() domain.FormGame {
	return domain.FormGame{
		Opponent: g.Opponent,
		Won:      g.Won,
		Margin:   g.Margin,
		PlayedAt: parseTime(g.PlayedAt),
	}
}

// ToDomain converts TeamInjuries to a domain InjuryReport.
func (t TeamInjuries) ToDomain() domain.InjuryReport {
	return domain.InjuryReport{
		Team:          t.Team,
		PlayersOut:    t.PlayersOut,
		KeyPlayersOut: t.KeyPlayersOut,
		UpdatedAt:     parseTime(t.UpdatedAt),
	}
}

// parseStatus normalizes the provider's status vocabulary.
func parseStatus(s string) domain.GameStatus {
	switch strings.ToLower(s) {
	case "final", "completed", "closed":
		return domain.GameStatusFinal
	case "live", "in_progress":
		return domain.GameStatusLive
	case "cancelled", "canceled", "postponed":
		return domain.GameStatusCancelled
	default:
		return domain.GameStatusScheduled
	}
}

// parseTime parses an RFC3339 timestamp, returning the zero time when
// the field is empty or malformed.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
