package domain

import (
	"context"
	"time"
)

// StatsSource provides season-to-date team statistics.
type StatsSource interface {
	TeamStats(ctx context.Context, team string) (TeamStats, error)
}

// FormSource provides a team's recent results, most recent first.
type FormSource interface {
	RecentForm(ctx context.Context, team string, games int) ([]FormGame, error)
}

// InjurySource provides team injury reports.
type InjurySource interface {
	InjuryReport(ctx context.Context, team string) (InjuryReport, error)
}

// WeatherSource provides the venue forecast around kickoff.
type WeatherSource interface {
	Forecast(ctx context.Context, team string, kickoff time.Time) (WeatherReport, error)
}

// GameFeed provides the schedule and completed results from the
// upstream sports data provider. UpcomingGames carries current
// moneyline prices when the provider has them; CompletedGames carries
// final scores.
type GameFeed interface {
	UpcomingGames(ctx context.Context, horizon time.Duration) ([]Game, error)
	CompletedGames(ctx context.Context, since time.Time) ([]Game, error)
}
