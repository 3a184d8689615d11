package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/courtsidelabs/parlayengine/internal/config"
	"github.com/courtsidelabs/parlayengine/internal/domain"
)

// sweepLookback bounds how far back a sweep scans for finals. Sweeps
// are idempotent, so rescanning recent finals only costs reads and
// picks up legs written after their game went final.
const sweepLookback = 48 * time.Hour

// SweepSummary reports what one settlement sweep did.
type SweepSummary struct {
	Games   int
	Settled int
	Skipped int // lock held by another instance
	Errors  int
	Elapsed time.Duration
}

// Sweeper drives periodic settlement: pull fresh finals from the feed,
// then grade every open leg on every recently final game. A per-game
// distributed lock keeps concurrent daemons from double-grading.
type Sweeper struct {
	cfg       config.SettleConfig
	settler   *Settler
	games     domain.GameStore
	feed      domain.GameFeed
	locks     domain.LockManager
	telemetry domain.TelemetryStore
	logger    *slog.Logger
	now       func() time.Time
	listeners []func(context.Context, SweepSummary)
}

// NewSweeper constructs a Sweeper. feed, locks, and telemetry may each
// be nil: without a feed the sweep grades only stored finals, without
// locks it assumes a single instance, and without telemetry failures
// are not counted toward the health gate.
func NewSweeper(cfg config.SettleConfig, settler *Settler, games domain.GameStore, feed domain.GameFeed, locks domain.LockManager, telemetry domain.TelemetryStore, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		cfg:       cfg,
		settler:   settler,
		games:     games,
		feed:      feed,
		locks:     locks,
		telemetry: telemetry,
		logger:    logger.With(slog.String("component", "sweeper")),
		now:       time.Now,
	}
}

// OnSweep registers a listener invoked after any sweep that settled
// legs or hit errors. Listeners must not block.
func (s *Sweeper) OnSweep(fn func(context.Context, SweepSummary)) {
	s.listeners = append(s.listeners, fn)
}

// Run sweeps immediately and then on every interval tick until ctx is
// cancelled. Sweep failures are logged and counted, never fatal.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "settlement sweeper started",
		slog.Duration("interval", s.cfg.Interval.Duration))

	ticker := time.NewTicker(s.cfg.Interval.Duration)
	defer ticker.Stop()

	for {
		if _, err := s.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.ErrorContext(ctx, "settlement sweep failed", slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "settlement sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sweep runs a single settlement pass over every game that went final
// within the lookback window. Per-game failures are counted and the
// pass continues; only failing to list finals aborts it.
func (s *Sweeper) Sweep(ctx context.Context) (SweepSummary, error) {
	start := s.now()
	since := start.Add(-sweepLookback)
	var summary SweepSummary

	s.refreshFinals(ctx, since, &summary)

	finals, err := s.games.ListFinalSince(ctx, since)
	if err != nil {
		summary.Errors++
		s.countError(ctx)
		return summary, fmt.Errorf("sweeper: list finals: %w", err)
	}
	summary.Games = len(finals)

	for _, game := range finals {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		s.settleGame(ctx, game.ID, &summary)
	}

	summary.Elapsed = s.now().Sub(start)
	s.logger.InfoContext(ctx, "settlement sweep complete",
		slog.Int("games", summary.Games),
		slog.Int("settled", summary.Settled),
		slog.Int("skipped", summary.Skipped),
		slog.Int("errors", summary.Errors),
		slog.Duration("elapsed", summary.Elapsed),
	)

	if summary.Settled > 0 || summary.Errors > 0 {
		for _, fn := range s.listeners {
			fn(ctx, summary)
		}
	}
	return summary, nil
}

// refreshFinals lands recent results from the feed so the sweep grades
// against current scores. Feed trouble degrades to stored data.
func (s *Sweeper) refreshFinals(ctx context.Context, since time.Time, summary *SweepSummary) {
	if s.feed == nil {
		return
	}

	completed, err := s.feed.CompletedGames(ctx, since)
	if err != nil {
		summary.Errors++
		s.countError(ctx)
		s.logger.WarnContext(ctx, "completed-games refresh failed, sweeping stored finals",
			slog.Any("error", err))
		return
	}
	if err := s.games.UpsertGames(ctx, completed); err != nil {
		summary.Errors++
		s.countError(ctx)
		s.logger.WarnContext(ctx, "completed-games upsert failed", slog.Any("error", err))
	}
}

func (s *Sweeper) settleGame(ctx context.Context, gameID string, summary *SweepSummary) {
	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, "settle:"+gameID, s.cfg.LockTTL.Duration)
		if errors.Is(err, domain.ErrLockHeld) {
			summary.Skipped++
			return
		}
		if err != nil {
			summary.Errors++
			s.countError(ctx)
			s.logger.WarnContext(ctx, "settlement lock failed",
				slog.String("game_id", gameID), slog.Any("error", err))
			return
		}
		defer unlock()
	}

	settled, err := s.settler.SettleLegsForGame(ctx, gameID)
	summary.Settled += settled
	if err != nil {
		summary.Errors++
		s.countError(ctx)
		s.logger.ErrorContext(ctx, "game settlement failed",
			slog.String("game_id", gameID), slog.Any("error", err))
	}
}

func (s *Sweeper) countError(ctx context.Context) {
	if s.telemetry == nil {
		return
	}
	if err := s.telemetry.Incr(ctx, domain.CounterErrors5m); err != nil {
		s.logger.DebugContext(ctx, "telemetry incr failed", slog.Any("error", err))
	}
}
