// Package signals provides a request-scoped cache over the external
// signal sources. A cache lives for one advisory cycle: each
// (kind, team) pair is fetched at most once, failures resolve to
// absent rather than erroring, and a bulk prefetch warms the cache
// under a concurrency bound before the calculator starts reading.
package signals

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/courtsidelabs/parlayengine/internal/config"
	"github.com/courtsidelabs/parlayengine/internal/domain"
	"github.com/courtsidelabs/parlayengine/internal/probability"
)

// Sources bundles the upstream providers. Nil fields resolve to
// absent for their signal kind.
type Sources struct {
	Stats    domain.StatsSource
	Form     domain.FormSource
	Injuries domain.InjurySource
	Weather  domain.WeatherSource
}

type key struct {
	kind domain.SignalKind
	team string
}

// newKey normalizes the team name so "Lakers" and "lakers" share one
// fetch slot regardless of how the caller spells it.
func newKey(kind domain.SignalKind, team string) key {
	return key{kind: kind, team: strings.ToLower(strings.TrimSpace(team))}
}

// entry is a single fetch slot. The first resolution wins; anything
// arriving after that is dropped, which is how results landing past
// the prefetch grace window get discarded.
type entry struct {
	done     chan struct{}
	val      any
	ok       bool
	resolved bool
}

// Cache is the request-scoped signal cache. Safe for concurrent use.
type Cache struct {
	cfg     config.SignalsConfig
	sources Sources
	logger  *slog.Logger
	sem     *semaphore.Weighted

	mu      sync.Mutex
	entries map[key]*entry
}

var _ probability.SignalReader = (*Cache)(nil)

// NewCache builds an empty cache for one advisory cycle.
func NewCache(cfg config.SignalsConfig, sources Sources, logger *slog.Logger) *Cache {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	return &Cache{
		cfg:     cfg,
		sources: sources,
		logger:  logger.With(slog.String("component", "signals")),
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		entries: make(map[key]*entry),
	}
}

type prefetchTask struct {
	k       key
	e       *entry
	kickoff time.Time
}

// Prefetch warms the cache for every signal the calculator will want
// for the given games. The whole phase is bounded by prefetch_timeout;
// when that expires, in-flight fetches get cancel_grace to land and
// everything still outstanding is marked absent. Prefetch never
// fails: missing signals degrade confidence, they do not stop a cycle.
func (c *Cache) Prefetch(ctx context.Context, games []domain.Game) domain.PrefetchSummary {
	start := time.Now()
	summary := domain.PrefetchSummary{
		Games:     len(games),
		Attempted: make(map[domain.SignalKind]int),
	}
	if !c.cfg.Enabled || len(games) == 0 {
		return summary
	}

	// Claim every key up front so shared teams are fetched once no
	// matter how many games they appear in.
	var owned []prefetchTask
	for _, g := range games {
		for _, t := range gameKeys(g) {
			e, won := c.claim(t.k)
			if !won {
				continue
			}
			t.e = e
			owned = append(owned, t)
			summary.Attempted[t.k.kind]++
		}
	}

	pctx, cancel := context.WithTimeout(ctx, c.cfg.PrefetchTimeout.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for _, t := range owned {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.sem.Acquire(pctx, 1); err != nil {
				c.resolve(t.e, nil, false)
				return
			}
			defer c.sem.Release(1)
			// The fetch runs off the request context, not the phase
			// context: a fetch in flight when the phase expires may
			// still land during the grace window.
			val, ok := c.fetch(ctx, t.k, t.kickoff)
			c.resolve(t.e, val, ok)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-pctx.Done():
		summary.TimedOut = true
		select {
		case <-done:
		case <-time.After(c.cfg.CancelGrace.Duration):
		}
		for _, t := range owned {
			c.resolve(t.e, nil, false)
		}
	}

	c.mu.Lock()
	for _, t := range owned {
		if t.e.ok {
			summary.Completed++
		} else {
			summary.Absent++
		}
	}
	c.mu.Unlock()
	summary.Elapsed = time.Since(start)

	c.logger.InfoContext(ctx, "signal prefetch complete",
		slog.Int("games", summary.Games),
		slog.Int("completed", summary.Completed),
		slog.Int("absent", summary.Absent),
		slog.Bool("timed_out", summary.TimedOut),
		slog.Duration("elapsed", summary.Elapsed),
	)
	return summary
}

// TeamStats returns the cached season stats for team, fetching once
// if the prefetch never attempted it.
func (c *Cache) TeamStats(ctx context.Context, team string) (domain.TeamStats, bool) {
	v, ok := c.get(ctx, newKey(domain.SignalStats, team), time.Time{})
	if !ok {
		return domain.TeamStats{}, false
	}
	return v.(domain.TeamStats), true
}

// RecentForm returns the cached recent results for team.
func (c *Cache) RecentForm(ctx context.Context, team string) ([]domain.FormGame, bool) {
	v, ok := c.get(ctx, newKey(domain.SignalForm, team), time.Time{})
	if !ok {
		return nil, false
	}
	return v.([]domain.FormGame), true
}

// InjuryReport returns the cached injury report for team.
func (c *Cache) InjuryReport(ctx context.Context, team string) (domain.InjuryReport, bool) {
	v, ok := c.get(ctx, newKey(domain.SignalInjury, team), time.Time{})
	if !ok {
		return domain.InjuryReport{}, false
	}
	return v.(domain.InjuryReport), true
}

// Weather returns the cached venue forecast for the home team.
func (c *Cache) Weather(ctx context.Context, team string, kickoff time.Time) (domain.WeatherReport, bool) {
	v, ok := c.get(ctx, newKey(domain.SignalWeather, team), kickoff)
	if !ok {
		return domain.WeatherReport{}, false
	}
	return v.(domain.WeatherReport), true
}

// get resolves one key: waits if another caller owns the fetch,
// fetches synchronously if nobody claimed it yet.
func (c *Cache) get(ctx context.Context, k key, kickoff time.Time) (any, bool) {
	if !c.cfg.Enabled {
		return nil, false
	}
	e, won := c.claim(k)
	if !won {
		select {
		case <-e.done:
			return c.value(e)
		case <-ctx.Done():
			return nil, false
		}
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		c.resolve(e, nil, false)
		return nil, false
	}
	val, ok := c.fetch(ctx, k, kickoff)
	c.sem.Release(1)
	c.resolve(e, val, ok)
	return c.value(e)
}

// claim returns the entry for k and whether the caller now owns its fetch.
func (c *Cache) claim(k key) (*entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[k]; ok {
		return e, false
	}
	e := &entry{done: make(chan struct{})}
	c.entries[k] = e
	return e, true
}

// resolve commits a fetch outcome. Only the first resolution of an
// entry sticks.
func (c *Cache) resolve(e *entry, val any, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e.resolved {
		return
	}
	e.resolved = true
	e.val = val
	e.ok = ok
	close(e.done)
}

func (c *Cache) value(e *entry) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !e.resolved || !e.ok {
		return nil, false
	}
	return e.val, true
}

// fetch runs one upstream call under the per-fetch timeout. Any error
// resolves to absent; upstream counters and retries live in the
// platform clients, not here.
func (c *Cache) fetch(ctx context.Context, k key, kickoff time.Time) (any, bool) {
	fctx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout.Duration)
	defer cancel()

	var (
		val any
		err error
	)
	switch k.kind {
	case domain.SignalStats:
		if c.sources.Stats == nil {
			return nil, false
		}
		val, err = c.sources.Stats.TeamStats(fctx, k.team)
	case domain.SignalForm:
		if c.sources.Form == nil {
			return nil, false
		}
		val, err = c.sources.Form.RecentForm(fctx, k.team, c.cfg.FormGames)
	case domain.SignalInjury:
		if c.sources.Injuries == nil {
			return nil, false
		}
		val, err = c.sources.Injuries.InjuryReport(fctx, k.team)
	case domain.SignalWeather:
		if c.sources.Weather == nil {
			return nil, false
		}
		val, err = c.sources.Weather.Forecast(fctx, k.team, kickoff)
	default:
		return nil, false
	}
	if err != nil {
		c.logger.DebugContext(ctx, "signal fetch resolved absent",
			slog.String("kind", string(k.kind)),
			slog.String("team", k.team),
			slog.Any("error", err),
		)
		return nil, false
	}
	return val, true
}

// gameKeys lists the signals one game wants: both sides' stats, form,
// and injuries, plus the venue forecast keyed by the home team.
func gameKeys(g domain.Game) []prefetchTask {
	return []prefetchTask{
		{k: newKey(domain.SignalStats, g.HomeTeam)},
		{k: newKey(domain.SignalStats, g.AwayTeam)},
		{k: newKey(domain.SignalForm, g.HomeTeam)},
		{k: newKey(domain.SignalForm, g.AwayTeam)},
		{k: newKey(domain.SignalInjury, g.HomeTeam)},
		{k: newKey(domain.SignalInjury, g.AwayTeam)},
		{k: newKey(domain.SignalWeather, g.HomeTeam), kickoff: g.CommenceAt},
	}
}
