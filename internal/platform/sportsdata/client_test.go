package sportsdata

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtsidelabs/parlayengine/internal/domain"
)

// countingTelemetry records Incr calls per counter key.
type countingTelemetry struct {
	mu     sync.Mutex
	counts map[domain.CounterKey]int
}

func newCountingTelemetry() *countingTelemetry {
	return &countingTelemetry{counts: make(map[domain.CounterKey]int)}
}

func (t *countingTelemetry) Incr(_ context.Context, key domain.CounterKey) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[key]++
	return nil
}

func (t *countingTelemetry) count(key domain.CounterKey) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[key]
}

func (t *countingTelemetry) SetStamp(context.Context, domain.StampKey, time.Time) error { return nil }
func (t *countingTelemetry) ClearStamp(context.Context, domain.StampKey) error          { return nil }
func (t *countingTelemetry) SetLastState(context.Context, domain.HealthState) error     { return nil }
func (t *countingTelemetry) RecordTransition(context.Context, domain.Transition) error  { return nil }
func (t *countingTelemetry) RecentTransitions(context.Context, int) ([]domain.Transition, error) {
	return nil, nil
}
func (t *countingTelemetry) Snapshot(context.Context) (domain.TelemetrySnapshot, error) {
	return domain.TelemetrySnapshot{}, nil
}

var _ domain.TelemetryStore = (*countingTelemetry)(nil)

func testClient(t *testing.T, srv *httptest.Server, telemetry domain.TelemetryStore) *Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(ClientConfig{
		BaseURL:           srv.URL,
		APIKey:            "test-key",
		RequestsPerSecond: 1000,
		Burst:             100,
	}, telemetry, logger)
}

func TestTeamStats(t *testing.T) {
	var gotPath, gotKey, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("Ocp-Apim-Subscription-Key")
		gotAccept = r.Header.Get("Accept")
		json.NewEncoder(w).Encode(SeasonStats{
			Team:             "lakers",
			Season:           "2025-26",
			GamesPlayed:      10,
			Wins:             7,
			Losses:           3,
			PointsForAvg:     112.5,
			PointsAgainstAvg: 108.0,
			UpdatedAt:        "2026-01-10T04:00:00Z",
		})
	}))
	defer srv.Close()

	c := testClient(t, srv, nil)
	stats, err := c.TeamStats(context.Background(), "lakers")
	require.NoError(t, err)

	assert.Equal(t, "/teams/lakers/stats", gotPath)
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, "application/json", gotAccept)
	assert.Equal(t, 7, stats.Wins)
	assert.InDelta(t, 0.7, stats.WinPct(), 1e-9)
	assert.InDelta(t, 4.5, stats.NetRating(), 1e-9)
	assert.Equal(t, 2026, stats.UpdatedAt.Year())
}

func TestRecentForm(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode([]GameLog{
			{Opponent: "celtics", Won: true, Margin: 8, PlayedAt: "2026-01-09T02:00:00Z"},
			{Opponent: "heat", Won: false, Margin: -3, PlayedAt: "2026-01-07T01:00:00Z"},
		})
	}))
	defer srv.Close()

	c := testClient(t, srv, nil)
	form, err := c.RecentForm(context.Background(), "lakers", 5)
	require.NoError(t, err)

	assert.Equal(t, "limit=5", gotQuery)
	require.Len(t, form, 2)
	assert.True(t, form[0].Won)
	assert.Equal(t, -3, form[1].Margin)
}

func TestInjuryReport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(TeamInjuries{Team: "packers", PlayersOut: 4, KeyPlayersOut: 1})
	}))
	defer srv.Close()

	c := testClient(t, srv, nil)
	rep, err := c.InjuryReport(context.Background(), "packers")
	require.NoError(t, err)
	assert.Equal(t, 4, rep.PlayersOut)
	assert.Equal(t, 1, rep.KeyPlayersOut)
}

func TestUpcomingGames(t *testing.T) {
	homePrice := -150
	awayPrice := 130
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode([]FeedGame{
			{
				GameID:        "nba-1001",
				Sport:         "Basketball",
				League:        "NBA",
				HomeTeam:      "lakers",
				AwayTeam:      "celtics",
				CommenceTime:  "2026-01-11T03:00:00Z",
				Status:        "scheduled",
				HomeMoneyline: &homePrice,
				AwayMoneyline: &awayPrice,
			},
			// missing commence_time, must be skipped
			{GameID: "nba-1002", HomeTeam: "heat", AwayTeam: "bulls"},
		})
	}))
	defer srv.Close()

	c := testClient(t, srv, nil)
	games, err := c.UpcomingGames(context.Background(), 24*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, "hours=24", gotQuery)
	require.Len(t, games, 1)
	g := games[0]
	assert.Equal(t, "nba-1001", g.ID)
	assert.Equal(t, domain.SportBasketball, g.Sport)
	assert.Equal(t, domain.GameStatusScheduled, g.Status)
	require.NotNil(t, g.HomePrice)
	assert.Equal(t, -150, *g.HomePrice)
	require.NotNil(t, g.AwayPrice)
	assert.Equal(t, 130, *g.AwayPrice)
}

func TestCompletedGames(t *testing.T) {
	home, away := 104, 99
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode([]FeedGame{
			{
				GameID:       "nba-900",
				Sport:        "basketball",
				HomeTeam:     "lakers",
				AwayTeam:     "celtics",
				CommenceTime: "2026-01-09T03:00:00Z",
				Status:       "completed",
				HomeScore:    &home,
				AwayScore:    &away,
			},
		})
	}))
	defer srv.Close()

	c := testClient(t, srv, nil)
	since := time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC)
	games, err := c.CompletedGames(context.Background(), since)
	require.NoError(t, err)

	assert.Equal(t, "since=2026-01-09T00%3A00%3A00Z", gotQuery)
	require.Len(t, games, 1)
	assert.Equal(t, domain.GameStatusFinal, games[0].Status)
	require.NotNil(t, games[0].HomeScore)
	assert.Equal(t, 104, *games[0].HomeScore)
}

func TestParseStatus(t *testing.T) {
	cases := map[string]domain.GameStatus{
		"scheduled":   domain.GameStatusScheduled,
		"Final":       domain.GameStatusFinal,
		"completed":   domain.GameStatusFinal,
		"closed":      domain.GameStatusFinal,
		"live":        domain.GameStatusLive,
		"in_progress": domain.GameStatusLive,
		"postponed":   domain.GameStatusCancelled,
		"canceled":    domain.GameStatusCancelled,
		"whatever":    domain.GameStatusScheduled,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseStatus(in), "status %q", in)
	}
}

func TestCheckHTTPStatus(t *testing.T) {
	assert.NoError(t, checkHTTPStatus(http.StatusOK, nil))

	cases := []struct {
		code int
		want error
	}{
		{http.StatusNotFound, domain.ErrNotFound},
		{http.StatusUnauthorized, domain.ErrUnauthorized},
		{http.StatusForbidden, domain.ErrUnauthorized},
		{http.StatusTooManyRequests, domain.ErrRateLimited},
		{http.StatusBadGateway, domain.ErrSourceUnavailable},
	}
	for _, tc := range cases {
		err := checkHTTPStatus(tc.code, []byte("body"))
		assert.ErrorIs(t, err, tc.want, "status %d", tc.code)
	}

	err := checkHTTPStatus(http.StatusTeapot, []byte("short and stout"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 418")
}

func TestCallsAreMetered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(TeamInjuries{Team: "lakers"})
	}))
	defer srv.Close()

	telemetry := newCountingTelemetry()
	c := testClient(t, srv, telemetry)

	_, err := c.InjuryReport(context.Background(), "lakers")
	require.NoError(t, err)
	_, err = c.InjuryReport(context.Background(), "celtics")
	require.NoError(t, err)

	assert.Equal(t, 2, telemetry.count(domain.CounterAPICallsToday))
	assert.Equal(t, 0, telemetry.count(domain.CounterAPIFail30m))
}

func TestFailuresAreMetered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	telemetry := newCountingTelemetry()
	c := testClient(t, srv, telemetry)

	_, err := c.TeamStats(context.Background(), "lakers")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)

	assert.Equal(t, 1, telemetry.count(domain.CounterAPICallsToday))
	assert.Equal(t, 1, telemetry.count(domain.CounterAPIFail30m))
}

func TestBreakerFailsFastAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(t, srv, nil)
	ctx := context.Background()

	for i := 0; i < int(breakerTrip); i++ {
		_, err := c.TeamStats(ctx, "lakers")
		require.Error(t, err)
	}
	require.Equal(t, int32(breakerTrip), hits.Load())

	// Circuit is open now: no request goes out.
	_, err := c.TeamStats(ctx, "lakers")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
	assert.Contains(t, err.Error(), "circuit open")
	assert.Equal(t, int32(breakerTrip), hits.Load())
}

func TestNotFoundMapsToDomainError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"unknown team"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := testClient(t, srv, nil)
	_, err := c.TeamStats(context.Background(), "nobody")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.False(t, errors.Is(err, domain.ErrSourceUnavailable))
}
