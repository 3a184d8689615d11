// Package telemetry provides the in-memory TelemetryStore used by
// tests and single-process deployments. The redis adapter is its
// multi-process twin.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/courtsidelabs/parlayengine/internal/domain"
)

const maxTransitions = 1000

// MemoryStore is a process-local TelemetryStore. Windowed counters are
// kept as observation timestamps and pruned on read, so counts decay
// exactly the way the redis sorted-set implementation decays them.
type MemoryStore struct {
	mu          sync.Mutex
	obs         map[domain.CounterKey][]time.Time
	dailyCount  int
	dailyDate   string // UTC yyyy-mm-dd the daily counter belongs to
	stamps      map[domain.StampKey]time.Time
	lastState   domain.HealthState
	transitions []domain.Transition
	now         func() time.Time
}

var _ domain.TelemetryStore = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		obs:    make(map[domain.CounterKey][]time.Time),
		stamps: make(map[domain.StampKey]time.Time),
		now:    time.Now,
	}
}

// Incr records one observation for key at the current time.
func (m *MemoryStore) Incr(_ context.Context, key domain.CounterKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if key.Window() == 0 {
		day := now.UTC().Format("2006-01-02")
		if day != m.dailyDate {
			m.dailyDate = day
			m.dailyCount = 0
		}
		m.dailyCount++
		return nil
	}
	m.obs[key] = append(m.obs[key], now)
	return nil
}

// count prunes expired observations for key and returns the remainder.
// Callers must hold m.mu.
func (m *MemoryStore) count(key domain.CounterKey, now time.Time) int {
	cutoff := now.Add(-key.Window())
	kept := m.obs[key][:0]
	for _, t := range m.obs[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	m.obs[key] = kept
	return len(kept)
}

// SetStamp records a timestamp marker.
func (m *MemoryStore) SetStamp(_ context.Context, key domain.StampKey, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stamps[key] = at
	return nil
}

// ClearStamp removes a timestamp marker.
func (m *MemoryStore) ClearStamp(_ context.Context, key domain.StampKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stamps, key)
	return nil
}

// SetLastState records the most recent effective health state.
func (m *MemoryStore) SetLastState(_ context.Context, state domain.HealthState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastState = state
	return nil
}

// RecordTransition appends a health-state transition, keeping only the
// most recent maxTransitions entries.
func (m *MemoryStore) RecordTransition(_ context.Context, tr domain.Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, tr)
	if len(m.transitions) > maxTransitions {
		m.transitions = m.transitions[len(m.transitions)-maxTransitions:]
	}
	return nil
}

// RecentTransitions returns up to limit transitions, newest first.
// limit <= 0 returns everything retained.
func (m *MemoryStore) RecentTransitions(_ context.Context, limit int) ([]domain.Transition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.transitions) {
		limit = len(m.transitions)
	}
	out := make([]domain.Transition, limit)
	for i := 0; i < limit; i++ {
		out[i] = m.transitions[len(m.transitions)-1-i]
	}
	return out, nil
}

// Snapshot returns a point-in-time view of every counter and marker.
func (m *MemoryStore) Snapshot(_ context.Context) (domain.TelemetrySnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	daily := m.dailyCount
	if now.UTC().Format("2006-01-02") != m.dailyDate {
		daily = 0
	}

	return domain.TelemetrySnapshot{
		Errors5m:           m.count(domain.CounterErrors5m, now),
		NotEnoughGames30m:  m.count(domain.CounterNotEnoughGames30m, now),
		GenerationFails5m:  m.count(domain.CounterGenerationFail5m, now),
		APIFails30m:        m.count(domain.CounterAPIFail30m, now),
		APICallsToday:      daily,
		LastOddsRefresh:    m.stamps[domain.StampOddsRefresh],
		LastGamesRefresh:   m.stamps[domain.StampGamesRefresh],
		RedSince:           m.stamps[domain.StampRedSince],
		YellowSince:        m.stamps[domain.StampYellowSince],
		LastEffectiveState: m.lastState,
		TakenAt:            now,
	}, nil
}
