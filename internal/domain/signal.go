package domain

import "time"

// SignalKind identifies a category of external signal.
type SignalKind string

const (
	SignalStats   SignalKind = "stats"
	SignalForm    SignalKind = "form"
	SignalInjury  SignalKind = "injuries"
	SignalWeather SignalKind = "weather"
)

// TeamStats is a season-to-date statistical summary for one team.
type TeamStats struct {
	Team          string
	Season        string
	GamesPlayed   int
	Wins          int
	Losses        int
	PointsFor     float64 // per-game average
	PointsAgainst float64 // per-game average
	UpdatedAt     time.Time
}

// WinPct returns the season win rate, 0.5 when no games are recorded.
func (s TeamStats) WinPct() float64 {
	if s.GamesPlayed == 0 {
		return 0.5
	}
	return float64(s.Wins) / float64(s.GamesPlayed)
}

// NetRating is the average per-game point differential.
func (s TeamStats) NetRating() float64 {
	return s.PointsFor - s.PointsAgainst
}

// FormGame is one entry in a team's recent-game history.
type FormGame struct {
	Opponent string
	Won      bool
	Margin   int // signed, positive when the team won
	PlayedAt time.Time
}

// InjuryReport summarizes a team's availability ahead of a game.
type InjuryReport struct {
	Team          string
	PlayersOut    int
	KeyPlayersOut int
	UpdatedAt     time.Time
}

// WeatherReport is the forecast at a game's venue around kickoff.
type WeatherReport struct {
	Team      string // home team, which identifies the venue
	TempC     float64
	WindKph   float64
	PrecipMM  float64
	Condition string
	FetchedAt time.Time
}

// PrefetchSummary reports what a signal prefetch attempted.
type PrefetchSummary struct {
	Games     int
	Attempted map[SignalKind]int
	Completed int // fetches that produced a cached value
	Absent    int // fetches resolved to absent
	Elapsed   time.Duration
	TimedOut  bool
}
