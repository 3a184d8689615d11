package settlement

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtsidelabs/parlayengine/internal/config"
	"github.com/courtsidelabs/parlayengine/internal/domain"
)

type stubFeed struct {
	completed []domain.Game
	err       error
}

func (f *stubFeed) UpcomingGames(_ context.Context, _ time.Duration) ([]domain.Game, error) {
	return nil, nil
}

func (f *stubFeed) CompletedGames(_ context.Context, _ time.Time) ([]domain.Game, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.completed, nil
}

type stubLocks struct {
	held     map[string]bool
	acquired []string
	released int
	err      error
}

func (l *stubLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.acquired = append(l.acquired, key)
	return func() { l.released++ }, nil
}

type counterStore struct {
	counts map[domain.CounterKey]int
}

func newCounterStore() *counterStore {
	return &counterStore{counts: make(map[domain.CounterKey]int)}
}

func (c *counterStore) Incr(_ context.Context, key domain.CounterKey) error {
	c.counts[key]++
	return nil
}

func (c *counterStore) SetStamp(context.Context, domain.StampKey, time.Time) error { return nil }
func (c *counterStore) ClearStamp(context.Context, domain.StampKey) error          { return nil }
func (c *counterStore) SetLastState(context.Context, domain.HealthState) error     { return nil }
func (c *counterStore) RecordTransition(context.Context, domain.Transition) error  { return nil }
func (c *counterStore) RecentTransitions(context.Context, int) ([]domain.Transition, error) {
	return nil, nil
}
func (c *counterStore) Snapshot(context.Context) (domain.TelemetrySnapshot, error) {
	return domain.TelemetrySnapshot{}, nil
}

func testSweeper(games *stubGameStore, tickets *stubTicketStore, feed domain.GameFeed, locks domain.LockManager, telemetry domain.TelemetryStore) *Sweeper {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSweeper(config.Defaults().Settle, NewSettler(games, tickets, logger), games, feed, locks, telemetry, logger)
}

func TestSweepSettlesAllFinalGames(t *testing.T) {
	games := &stubGameStore{games: map[string]domain.Game{
		"g1": finalGame("g1", 24, 20),
		"g2": finalGame("g2", 10, 31),
	}}
	tickets := newStubTicketStore(
		domain.ParlayLeg{ID: "l1", GameID: "g1", Market: domain.MarketMoneyline, Pick: domain.PickHome, Status: domain.LegStatusPending},
		domain.ParlayLeg{ID: "l2", GameID: "g2", Market: domain.MarketMoneyline, Pick: domain.PickAway, Status: domain.LegStatusPending},
	)
	locks := &stubLocks{}

	summary, err := testSweeper(games, tickets, nil, locks, nil).Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Games)
	assert.Equal(t, 2, summary.Settled)
	assert.Zero(t, summary.Skipped)
	assert.Zero(t, summary.Errors)
	assert.ElementsMatch(t, []string{"settle:g1", "settle:g2"}, locks.acquired)
	assert.Equal(t, 2, locks.released)
	assert.Equal(t, domain.LegStatusWon, tickets.settled["l1"])
	assert.Equal(t, domain.LegStatusWon, tickets.settled["l2"])
}

func TestSweepIsIdempotent(t *testing.T) {
	games := &stubGameStore{games: map[string]domain.Game{"g1": finalGame("g1", 7, 3)}}
	tickets := newStubTicketStore(
		domain.ParlayLeg{ID: "l1", GameID: "g1", Market: domain.MarketMoneyline, Pick: domain.PickHome, Status: domain.LegStatusPending},
	)
	sweeper := testSweeper(games, tickets, nil, nil, nil)

	first, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	second, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, first.Settled)
	assert.Zero(t, second.Settled)
}

func TestSweepSkipsGamesLockedElsewhere(t *testing.T) {
	games := &stubGameStore{games: map[string]domain.Game{"g1": finalGame("g1", 24, 20)}}
	tickets := newStubTicketStore(
		domain.ParlayLeg{ID: "l1", GameID: "g1", Market: domain.MarketMoneyline, Pick: domain.PickHome, Status: domain.LegStatusPending},
	)
	locks := &stubLocks{held: map[string]bool{"settle:g1": true}}

	summary, err := testSweeper(games, tickets, nil, locks, nil).Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, summary.Settled)
	assert.Empty(t, tickets.settled)
}

func TestSweepRefreshesFinalsFromFeed(t *testing.T) {
	games := &stubGameStore{}
	tickets := newStubTicketStore(
		domain.ParlayLeg{ID: "l1", GameID: "g1", Market: domain.MarketMoneyline, Pick: domain.PickAway, Status: domain.LegStatusPending},
	)
	feed := &stubFeed{completed: []domain.Game{finalGame("g1", 90, 101)}}

	summary, err := testSweeper(games, tickets, feed, nil, nil).Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Games)
	assert.Equal(t, 1, summary.Settled)
	assert.Equal(t, domain.LegStatusWon, tickets.settled["l1"])
}

func TestSweepSurvivesFeedFailure(t *testing.T) {
	games := &stubGameStore{games: map[string]domain.Game{"g1": finalGame("g1", 24, 20)}}
	tickets := newStubTicketStore(
		domain.ParlayLeg{ID: "l1", GameID: "g1", Market: domain.MarketMoneyline, Pick: domain.PickHome, Status: domain.LegStatusPending},
	)
	feed := &stubFeed{err: errors.New("provider down")}
	telemetry := newCounterStore()

	summary, err := testSweeper(games, tickets, feed, nil, telemetry).Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 1, summary.Settled)
	assert.Equal(t, 1, telemetry.counts[domain.CounterErrors5m])
}

func TestSweepCountsSettlementErrors(t *testing.T) {
	games := &stubGameStore{games: map[string]domain.Game{"g1": finalGame("g1", 24, 20)}}
	tickets := newStubTicketStore(
		domain.ParlayLeg{ID: "l1", GameID: "g1", Market: domain.MarketMoneyline, Pick: domain.PickHome, Status: domain.LegStatusPending},
	)
	tickets.settleErr = errors.New("pool exhausted")
	telemetry := newCounterStore()

	summary, err := testSweeper(games, tickets, nil, nil, telemetry).Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Errors)
	assert.Zero(t, summary.Settled)
	assert.Equal(t, 1, telemetry.counts[domain.CounterErrors5m])
}

func TestSweepAbortsWhenFinalsListFails(t *testing.T) {
	boom := errors.New("connection refused")
	games := &stubGameStore{finalErr: boom}
	telemetry := newCounterStore()

	_, err := testSweeper(games, newStubTicketStore(), nil, nil, telemetry).Sweep(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, telemetry.counts[domain.CounterErrors5m])
}

func TestSweepNotifiesListeners(t *testing.T) {
	games := &stubGameStore{games: map[string]domain.Game{"g1": finalGame("g1", 24, 20)}}
	tickets := newStubTicketStore(
		domain.ParlayLeg{ID: "l1", GameID: "g1", Market: domain.MarketMoneyline, Pick: domain.PickHome, Status: domain.LegStatusPending},
	)
	sweeper := testSweeper(games, tickets, nil, nil, nil)

	var got []SweepSummary
	sweeper.OnSweep(func(_ context.Context, s SweepSummary) { got = append(got, s) })

	_, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Settled)

	// A quiet sweep fires nothing.
	_, err = sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
