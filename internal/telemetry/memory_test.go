package telemetry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtsidelabs/parlayengine/internal/domain"
)

func TestCountersDecayWithWindow(t *testing.T) {
	clock := time.Date(2025, 11, 2, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.now = func() time.Time { return clock }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Incr(ctx, domain.CounterErrors5m))
	}
	require.NoError(t, store.Incr(ctx, domain.CounterAPIFail30m))

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Errors5m)
	assert.Equal(t, 1, snap.APIFails30m)

	// Past the 5m window the error count decays, the 30m one survives.
	clock = clock.Add(6 * time.Minute)
	snap, err = store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Zero(t, snap.Errors5m)
	assert.Equal(t, 1, snap.APIFails30m)

	clock = clock.Add(30 * time.Minute)
	snap, err = store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Zero(t, snap.APIFails30m)
}

func TestDailyBudgetResetsAtMidnightUTC(t *testing.T) {
	clock := time.Date(2025, 11, 2, 23, 50, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.now = func() time.Time { return clock }
	ctx := context.Background()

	require.NoError(t, store.Incr(ctx, domain.CounterAPICallsToday))
	require.NoError(t, store.Incr(ctx, domain.CounterAPICallsToday))

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.APICallsToday)

	clock = clock.Add(20 * time.Minute) // crosses midnight
	snap, err = store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Zero(t, snap.APICallsToday)

	require.NoError(t, store.Incr(ctx, domain.CounterAPICallsToday))
	snap, err = store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.APICallsToday)
}

func TestStampsRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	at := time.Date(2025, 11, 2, 9, 30, 0, 0, time.UTC)

	require.NoError(t, store.SetStamp(ctx, domain.StampRedSince, at))
	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, at, snap.RedSince)
	assert.True(t, snap.YellowSince.IsZero())

	require.NoError(t, store.ClearStamp(ctx, domain.StampRedSince))
	snap, err = store.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.RedSince.IsZero())
}

func TestLastStateRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.LastEffectiveState)

	require.NoError(t, store.SetLastState(ctx, domain.HealthYellow))
	snap, err = store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.HealthYellow, snap.LastEffectiveState)
}

func TestRecentTransitionsNewestFirstAndBounded(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < maxTransitions+5; i++ {
		tr := domain.Transition{
			From: domain.HealthGreen,
			To:   domain.HealthYellow,
			At:   time.Unix(int64(i), 0),
			Reasons: []string{
				fmt.Sprintf("reason-%d", i),
			},
		}
		require.NoError(t, store.RecordTransition(ctx, tr))
	}

	all, err := store.RecentTransitions(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, maxTransitions)

	top, err := store.RecentTransitions(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.True(t, top[0].At.After(top[1].At))
	assert.Equal(t, fmt.Sprintf("reason-%d", maxTransitions+4), top[0].Reasons[0])
}
