package domain

import (
	"context"
	"time"
)

// HealthState classifies decision-pipeline health.
type HealthState string

const (
	HealthGreen  HealthState = "GREEN"
	HealthYellow HealthState = "YELLOW"
	HealthRed    HealthState = "RED"
)

// CounterKey identifies a windowed health counter.
type CounterKey string

const (
	CounterErrors5m          CounterKey = "error_count_5m"
	CounterNotEnoughGames30m CounterKey = "not_enough_games_failures_30m"
	CounterGenerationFail5m  CounterKey = "generation_failures_5m"
	CounterAPIFail30m        CounterKey = "api_failures_30m"
	CounterAPICallsToday     CounterKey = "estimated_api_calls_today"
)

// Window returns the sliding window a counter is evaluated over. The
// daily API budget counter returns 0; it resets at UTC midnight
// instead of sliding.
func (k CounterKey) Window() time.Duration {
	switch k {
	case CounterErrors5m, CounterGenerationFail5m:
		return 5 * time.Minute
	case CounterNotEnoughGames30m, CounterAPIFail30m:
		return 30 * time.Minute
	default:
		return 0
	}
}

// StampKey identifies a health timestamp marker.
type StampKey string

const (
	StampOddsRefresh  StampKey = "last_successful_odds_refresh_at"
	StampGamesRefresh StampKey = "last_successful_games_refresh_at"
	StampRedSince     StampKey = "red_since"
	StampYellowSince  StampKey = "yellow_since"
)

// TelemetrySnapshot is a point-in-time view of the counters and markers
// the safety gate evaluates. Zero time values mean never recorded.
type TelemetrySnapshot struct {
	Errors5m           int
	NotEnoughGames30m  int
	GenerationFails5m  int
	APIFails30m        int
	APICallsToday      int
	LastOddsRefresh    time.Time
	LastGamesRefresh   time.Time
	RedSince           time.Time
	YellowSince        time.Time
	LastEffectiveState HealthState // empty when never recorded
	TakenAt            time.Time
}

// Transition records an effective health-state change.
type Transition struct {
	From    HealthState
	To      HealthState
	Reasons []string
	At      time.Time
}

// TelemetryStore is the shared mutable state behind the safety gate.
// Every process participating in the pipeline writes through it, so
// implementations must be safe for concurrent use from multiple
// goroutines and, for the production implementation, from multiple
// processes.
type TelemetryStore interface {
	Incr(ctx context.Context, key CounterKey) error
	SetStamp(ctx context.Context, key StampKey, at time.Time) error
	ClearStamp(ctx context.Context, key StampKey) error
	SetLastState(ctx context.Context, state HealthState) error
	RecordTransition(ctx context.Context, tr Transition) error
	RecentTransitions(ctx context.Context, limit int) ([]Transition, error)
	Snapshot(ctx context.Context) (TelemetrySnapshot, error)
}
