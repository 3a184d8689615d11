package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtsidelabs/parlayengine/internal/config"
	"github.com/courtsidelabs/parlayengine/internal/domain"
	"github.com/courtsidelabs/parlayengine/internal/safety"
	"github.com/courtsidelabs/parlayengine/internal/signals"
	"github.com/courtsidelabs/parlayengine/internal/telemetry"
)

type stubStats struct {
	mu    sync.Mutex
	calls map[string]int
	stats map[string]domain.TeamStats
}

func newStubStats() *stubStats {
	return &stubStats{calls: make(map[string]int), stats: make(map[string]domain.TeamStats)}
}

func (s *stubStats) TeamStats(_ context.Context, team string) (domain.TeamStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[team]++
	st, ok := s.stats[team]
	if !ok {
		return domain.TeamStats{}, domain.ErrNotFound
	}
	return st, nil
}

func (s *stubStats) callCount(team string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[team]
}

func testEngine(t *testing.T, store domain.TelemetryStore, sources signals.Sources) *Engine {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gate := safety.NewGate(store, config.Defaults().Safety, logger)
	return New(gate, nil, sources, config.Defaults().Signals, logger)
}

// healthyStore returns a telemetry store whose stamps read GREEN.
func healthyStore(t *testing.T) *telemetry.MemoryStore {
	t.Helper()
	store := telemetry.NewMemoryStore()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, store.SetStamp(ctx, domain.StampOddsRefresh, now))
	require.NoError(t, store.SetStamp(ctx, domain.StampGamesRefresh, now))
	return store
}

func intPtr(v int) *int { return &v }

func TestGenerationAllowedWhenHealthy(t *testing.T) {
	eng := testEngine(t, healthyStore(t), signals.Sources{})
	ctx := context.Background()

	assert.Equal(t, domain.HealthGreen, eng.State(ctx))
	assert.NoError(t, eng.RequireGenerationAllowed(ctx))
}

func TestGenerationBlockedWhenRed(t *testing.T) {
	store := healthyStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Incr(ctx, domain.CounterErrors5m))
	}
	eng := testEngine(t, store, signals.Sources{})

	assert.Equal(t, domain.HealthRed, eng.State(ctx))

	err := eng.RequireGenerationAllowed(ctx)
	require.Error(t, err)
	assert.True(t, domain.BlockedBySafety(err))
}

func TestDegradedPolicyCapsLegs(t *testing.T) {
	store := healthyStore(t)
	ctx := context.Background()
	// Stale odds push the gate to YELLOW without reaching RED.
	require.NoError(t, store.SetStamp(ctx, domain.StampOddsRefresh, time.Now().Add(-time.Hour)))
	eng := testEngine(t, store, signals.Sources{})

	params, applied := eng.ApplyDegradedPolicy(ctx, domain.GenerationParams{MaxLegs: 6, MinConfidence: 55})

	assert.Equal(t, 3, params.MaxLegs)
	assert.Equal(t, []string{"cap_legs"}, applied)
	assert.InDelta(t, 55, params.MinConfidence, 1e-9)
}

func TestRequestFetchesEachTeamOnce(t *testing.T) {
	stats := newStubStats()
	eng := testEngine(t, healthyStore(t), signals.Sources{Stats: stats})
	ctx := context.Background()

	games := []domain.Game{
		{ID: "g1", Sport: domain.SportBasketball, HomeTeam: "lakers", AwayTeam: "celtics", CommenceAt: time.Now().Add(time.Hour)},
		{ID: "g2", Sport: domain.SportBasketball, HomeTeam: "lakers", AwayTeam: "knicks", CommenceAt: time.Now().Add(2 * time.Hour)},
	}

	req := eng.NewRequest()
	summary := req.Prefetch(ctx, games)

	// Three distinct teams, so three stats fetches even though one team
	// appears in two games.
	assert.Equal(t, 3, summary.Attempted[domain.SignalStats])
	assert.Equal(t, 1, stats.callCount("lakers"))
	assert.Equal(t, 1, stats.callCount("celtics"))
	assert.Equal(t, 1, stats.callCount("knicks"))

	// Computing within the same request reuses the cache.
	req.Probability(ctx, games[0], domain.OddsQuote{})
	assert.Equal(t, 1, stats.callCount("lakers"))

	// A new request owns a fresh cache and fetches again.
	req2 := eng.NewRequest()
	req2.Probability(ctx, games[0], domain.OddsQuote{})
	assert.Equal(t, 2, stats.callCount("lakers"))
}

func TestProbabilityFavorsMarketFavorite(t *testing.T) {
	eng := testEngine(t, healthyStore(t), signals.Sources{})
	ctx := context.Background()

	game := domain.Game{
		ID:         "g1",
		Sport:      domain.SportBasketball,
		HomeTeam:   "lakers",
		AwayTeam:   "celtics",
		CommenceAt: time.Now().Add(time.Hour),
	}
	quote := domain.OddsQuote{
		GameID:    "g1",
		HomePrice: intPtr(-200),
		AwayPrice: intPtr(170),
	}

	mp := eng.NewRequest().Probability(ctx, game, quote)

	assert.Greater(t, mp.HomeProb, 0.5)
	assert.InDelta(t, 1.0, mp.HomeProb+mp.AwayProb, 1e-9)
	assert.GreaterOrEqual(t, mp.Confidence, 0.0)
	assert.LessOrEqual(t, mp.Confidence, 100.0)
}

func TestTicketStatusRollup(t *testing.T) {
	eng := testEngine(t, healthyStore(t), signals.Sources{})

	legs := []domain.ParlayLeg{
		{Status: domain.LegStatusWon},
		{Status: domain.LegStatusPush},
		{Status: domain.LegStatusWon},
	}
	assert.Equal(t, domain.TicketStatusWon, eng.TicketStatus(legs))

	legs[1].Status = domain.LegStatusLost
	assert.Equal(t, domain.TicketStatusLost, eng.TicketStatus(legs))

	assert.Equal(t, domain.TicketStatusPending, eng.TicketStatus(nil))
}

func TestSettleWithoutSettler(t *testing.T) {
	eng := testEngine(t, healthyStore(t), signals.Sources{})

	n, err := eng.SettleLegsForGame(context.Background(), "g1")
	require.NoError(t, err)
	assert.Zero(t, n)
}
