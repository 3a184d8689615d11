package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/courtsidelabs/parlayengine/internal/domain"
)

const (
	telemetryPrefix   = "parlay:telemetry:"
	transitionsStream = telemetryPrefix + "transitions"
	lastStateKey      = telemetryPrefix + "last_state"

	// transitionsMaxLen bounds the transition history, enforced via
	// XADD MAXLEN ~.
	transitionsMaxLen int64 = 1000

	// dailyCounterTTL keeps yesterday's budget key around long enough
	// to inspect, then lets it expire on its own.
	dailyCounterTTL = 48 * time.Hour
)

// TelemetryStore implements domain.TelemetryStore on Redis so every
// daemon in a deployment shares one view of pipeline health.
//
// Windowed counters are sorted sets scored by event time in unix
// nanoseconds; reads trim members older than the window and count the
// rest. The daily API counter is a plain INCR on a date-suffixed key,
// which makes the midnight UTC reset implicit. Transitions go to a
// capped stream.
type TelemetryStore struct {
	rdb *redis.Client
	now func() time.Time
}

// NewTelemetryStore creates a TelemetryStore backed by the given Client.
func NewTelemetryStore(c *Client) *TelemetryStore {
	return &TelemetryStore{rdb: c.Underlying(), now: time.Now}
}

// Compile-time interface check.
var _ domain.TelemetryStore = (*TelemetryStore)(nil)

func telemetryKey(name string) string {
	return telemetryPrefix + name
}

func (ts *TelemetryStore) dailyKey(day time.Time) string {
	return telemetryKey(string(domain.CounterAPICallsToday)) + ":" + day.UTC().Format("2006-01-02")
}

// Incr records one observation for the given counter.
func (ts *TelemetryStore) Incr(ctx context.Context, key domain.CounterKey) error {
	now := ts.now()

	if key.Window() <= 0 {
		k := ts.dailyKey(now)
		pipe := ts.rdb.TxPipeline()
		pipe.Incr(ctx, k)
		pipe.Expire(ctx, k, dailyCounterTTL)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("redis: incr %s: %w", key, err)
		}
		return nil
	}

	k := telemetryKey(string(key))
	pipe := ts.rdb.TxPipeline()
	pipe.ZAdd(ctx, k, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: uuid.New().String(),
	})
	pipe.Expire(ctx, k, key.Window()+time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: incr %s: %w", key, err)
	}
	return nil
}

// SetStamp records a timestamp marker.
func (ts *TelemetryStore) SetStamp(ctx context.Context, key domain.StampKey, at time.Time) error {
	v := at.UTC().Format(time.RFC3339Nano)
	if err := ts.rdb.Set(ctx, telemetryKey(string(key)), v, 0).Err(); err != nil {
		return fmt.Errorf("redis: set stamp %s: %w", key, err)
	}
	return nil
}

// ClearStamp removes a timestamp marker.
func (ts *TelemetryStore) ClearStamp(ctx context.Context, key domain.StampKey) error {
	if err := ts.rdb.Del(ctx, telemetryKey(string(key))).Err(); err != nil {
		return fmt.Errorf("redis: clear stamp %s: %w", key, err)
	}
	return nil
}

// SetLastState persists the last effective health state.
func (ts *TelemetryStore) SetLastState(ctx context.Context, state domain.HealthState) error {
	if err := ts.rdb.Set(ctx, lastStateKey, string(state), 0).Err(); err != nil {
		return fmt.Errorf("redis: set last state: %w", err)
	}
	return nil
}

// RecordTransition appends a health transition to the capped stream.
func (ts *TelemetryStore) RecordTransition(ctx context.Context, tr domain.Transition) error {
	payload, err := json.Marshal(tr)
	if err != nil {
		return fmt.Errorf("redis: marshal transition: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: transitionsStream,
		MaxLen: transitionsMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"payload": payload,
		},
	}
	if err := ts.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: record transition: %w", err)
	}
	return nil
}

// RecentTransitions returns up to limit transitions, newest first.
// limit <= 0 returns the full retained history.
func (ts *TelemetryStore) RecentTransitions(ctx context.Context, limit int) ([]domain.Transition, error) {
	if limit <= 0 || int64(limit) > transitionsMaxLen {
		limit = int(transitionsMaxLen)
	}

	msgs, err := ts.rdb.XRevRangeN(ctx, transitionsStream, "+", "-", int64(limit)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: read transitions: %w", err)
	}

	out := make([]domain.Transition, 0, len(msgs))
	for _, msg := range msgs {
		raw, ok := msg.Values["payload"]
		if !ok {
			continue
		}

		var data []byte
		switch v := raw.(type) {
		case string:
			data = []byte(v)
		case []byte:
			data = v
		default:
			continue
		}

		var tr domain.Transition
		if err := json.Unmarshal(data, &tr); err != nil {
			continue
		}
		out = append(out, tr)
	}
	return out, nil
}

// Snapshot reads every counter and marker in one consistent-enough
// pass for the health gate to classify.
func (ts *TelemetryStore) Snapshot(ctx context.Context) (domain.TelemetrySnapshot, error) {
	now := ts.now()
	snap := domain.TelemetrySnapshot{TakenAt: now}

	var err error
	if snap.Errors5m, err = ts.windowCount(ctx, domain.CounterErrors5m, now); err != nil {
		return domain.TelemetrySnapshot{}, err
	}
	if snap.NotEnoughGames30m, err = ts.windowCount(ctx, domain.CounterNotEnoughGames30m, now); err != nil {
		return domain.TelemetrySnapshot{}, err
	}
	if snap.GenerationFails5m, err = ts.windowCount(ctx, domain.CounterGenerationFail5m, now); err != nil {
		return domain.TelemetrySnapshot{}, err
	}
	if snap.APIFails30m, err = ts.windowCount(ctx, domain.CounterAPIFail30m, now); err != nil {
		return domain.TelemetrySnapshot{}, err
	}

	daily, err := ts.rdb.Get(ctx, ts.dailyKey(now)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// No calls recorded today.
	case err != nil:
		return domain.TelemetrySnapshot{}, fmt.Errorf("redis: read daily counter: %w", err)
	default:
		n, convErr := strconv.Atoi(daily)
		if convErr != nil {
			return domain.TelemetrySnapshot{}, fmt.Errorf("redis: parse daily counter %q: %w", daily, convErr)
		}
		snap.APICallsToday = n
	}

	if snap.LastOddsRefresh, err = ts.stamp(ctx, domain.StampOddsRefresh); err != nil {
		return domain.TelemetrySnapshot{}, err
	}
	if snap.LastGamesRefresh, err = ts.stamp(ctx, domain.StampGamesRefresh); err != nil {
		return domain.TelemetrySnapshot{}, err
	}
	if snap.RedSince, err = ts.stamp(ctx, domain.StampRedSince); err != nil {
		return domain.TelemetrySnapshot{}, err
	}
	if snap.YellowSince, err = ts.stamp(ctx, domain.StampYellowSince); err != nil {
		return domain.TelemetrySnapshot{}, err
	}

	state, err := ts.rdb.Get(ctx, lastStateKey).Result()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return domain.TelemetrySnapshot{}, fmt.Errorf("redis: read last state: %w", err)
	default:
		snap.LastEffectiveState = domain.HealthState(state)
	}

	return snap, nil
}

// windowCount trims expired members for the counter and returns the
// surviving cardinality.
func (ts *TelemetryStore) windowCount(ctx context.Context, key domain.CounterKey, now time.Time) (int, error) {
	k := telemetryKey(string(key))
	cutoff := strconv.FormatInt(now.Add(-key.Window()).UnixNano(), 10)

	pipe := ts.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, k, "-inf", "("+cutoff)
	card := pipe.ZCard(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis: count %s: %w", key, err)
	}
	return int(card.Val()), nil
}

func (ts *TelemetryStore) stamp(ctx context.Context, key domain.StampKey) (time.Time, error) {
	v, err := ts.rdb.Get(ctx, telemetryKey(string(key))).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("redis: read stamp %s: %w", key, err)
	}

	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("redis: parse stamp %s: %w", key, err)
	}
	return t, nil
}
