package app

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/courtsidelabs/parlayengine/internal/archive"
	"github.com/courtsidelabs/parlayengine/internal/domain"
	"github.com/courtsidelabs/parlayengine/internal/settlement"
)

// AdviseMode runs the pick-advisory loop alone. Nothing is settled.
func (a *App) AdviseMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting advise mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startAdviseLoop(ctx, g, deps)
	return g.Wait()
}

// SettleMode runs the settlement sweeper alone, plus the archive cron
// when the settled-ticket archive is enabled. No picks are generated.
func (a *App) SettleMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting settle mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startSettleLoop(ctx, g, deps)
	return g.Wait()
}

// FullMode runs advisory and settlement side by side. Both loops share
// the telemetry store, so settlement trouble degrades pick generation
// through the health gate.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startAdviseLoop(ctx, g, deps)
	a.startSettleLoop(ctx, g, deps)
	return g.Wait()
}

// startAdviseLoop adds the advisory goroutine to the group: refresh the
// game book, pass the health gate, score every upcoming game, and log
// the picks that clear the confidence bar. Runs one cycle immediately
// and then on every interval tick.
func (a *App) startAdviseLoop(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	interval := a.cfg.Advise.Interval.Duration
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	// Surface where health left off before the restart.
	if trs, err := deps.Telemetry.RecentTransitions(ctx, 1); err != nil {
		a.logger.DebugContext(ctx, "recent transitions lookup failed", slog.String("error", err.Error()))
	} else if len(trs) > 0 {
		a.logger.InfoContext(ctx, "last recorded health transition",
			slog.String("from", string(trs[0].From)),
			slog.String("to", string(trs[0].To)),
			slog.Time("at", trs[0].At),
		)
	}

	g.Go(func() error {
		a.logger.InfoContext(ctx, "advisory loop started", slog.Duration("interval", interval))

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			a.adviseOnce(ctx, deps)

			select {
			case <-ctx.Done():
				a.logger.InfoContext(ctx, "advisory loop stopped")
				return ctx.Err()
			case <-ticker.C:
			}
		}
	})
}

// adviseOnce runs a single advisory cycle. Failures are logged and
// counted toward the health gate, never fatal; the next tick retries.
func (a *App) adviseOnce(ctx context.Context, deps *Dependencies) {
	start := time.Now()

	a.refreshGames(ctx, deps)

	if err := deps.Engine.RequireGenerationAllowed(ctx); err != nil {
		if domain.BlockedBySafety(err) {
			a.logger.WarnContext(ctx, "advisory cycle blocked by health gate",
				slog.String("error", err.Error()))
		} else {
			a.logger.ErrorContext(ctx, "health evaluation failed",
				slog.String("error", err.Error()))
		}
		return
	}

	params, applied := deps.Engine.ApplyDegradedPolicy(ctx, domain.GenerationParams{
		MaxLegs:       a.cfg.Advise.MaxLegs,
		MinConfidence: a.cfg.Advise.MinConfidence,
	})
	if len(applied) > 0 {
		a.logger.InfoContext(ctx, "degraded generation policy in effect",
			slog.Any("applied", applied),
			slog.Int("max_legs", params.MaxLegs),
		)
	}

	games, err := deps.GameStore.ListUpcoming(ctx, a.cfg.Advise.Horizon.Duration)
	if err != nil {
		a.countCycleFailure(ctx, deps)
		a.logger.ErrorContext(ctx, "list upcoming games failed", slog.String("error", err.Error()))
		return
	}
	if len(games) == 0 {
		if err := deps.Telemetry.Incr(ctx, domain.CounterNotEnoughGames30m); err != nil {
			a.logger.DebugContext(ctx, "telemetry incr failed", slog.String("error", err.Error()))
		}
		a.logger.WarnContext(ctx, "no upcoming games within horizon",
			slog.Duration("horizon", a.cfg.Advise.Horizon.Duration))
		return
	}

	req := deps.Engine.NewRequest()
	summary := req.Prefetch(ctx, games)
	a.logger.DebugContext(ctx, "signal prefetch complete",
		slog.Int("games", summary.Games),
		slog.Int("completed", summary.Completed),
		slog.Int("absent", summary.Absent),
		slog.Bool("timed_out", summary.TimedOut),
	)

	picks := make([]advisoryPick, 0, len(games))
	for _, game := range games {
		prob := req.Probability(ctx, game, quoteFromGame(game))
		if prob.Confidence < params.MinConfidence {
			continue
		}
		picks = append(picks, advisoryPick{game: game, prob: prob})
	}
	sort.SliceStable(picks, func(i, j int) bool {
		return picks[i].prob.Confidence > picks[j].prob.Confidence
	})
	if len(picks) > params.MaxLegs {
		picks = picks[:params.MaxLegs]
	}

	for _, p := range picks {
		side, winProb := p.pickSide()
		a.logger.InfoContext(ctx, "advisory pick",
			slog.String("game_id", p.game.ID),
			slog.String("matchup", p.game.AwayTeam+" @ "+p.game.HomeTeam),
			slog.String("side", string(side)),
			slog.Float64("win_prob", winProb),
			slog.Float64("confidence", p.prob.Confidence),
			slog.Time("commence_at", p.game.CommenceAt),
		)
	}

	a.logger.InfoContext(ctx, "advisory cycle complete",
		slog.Int("games", len(games)),
		slog.Int("picks", len(picks)),
		slog.Duration("elapsed", time.Since(start)),
	)
}

// refreshGames lands the provider's upcoming schedule in the game book.
// Feed trouble degrades to stored games; staleness then surfaces
// through the health gate rather than failing the cycle here.
func (a *App) refreshGames(ctx context.Context, deps *Dependencies) {
	games, err := deps.Feed.UpcomingGames(ctx, a.cfg.Advise.Horizon.Duration)
	if err != nil {
		a.logger.WarnContext(ctx, "upcoming-games refresh failed, advising on stored games",
			slog.String("error", err.Error()))
		return
	}
	if err := deps.GameStore.UpsertGames(ctx, games); err != nil {
		a.countError(ctx, deps)
		a.logger.WarnContext(ctx, "games upsert failed", slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()
	if err := deps.Telemetry.SetStamp(ctx, domain.StampGamesRefresh, now); err != nil {
		a.logger.DebugContext(ctx, "games refresh stamp failed", slog.String("error", err.Error()))
	}
	// The odds stamp only moves when the refresh actually carried prices,
	// so a schedule-only response still trips the staleness check.
	if hasPrices(games) {
		if err := deps.Telemetry.SetStamp(ctx, domain.StampOddsRefresh, now); err != nil {
			a.logger.DebugContext(ctx, "odds refresh stamp failed", slog.String("error", err.Error()))
		}
	}
}

// startSettleLoop adds the settlement sweeper to the group, plus the
// archive cron when the settled-ticket archive is enabled.
func (a *App) startSettleLoop(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	sweeper := settlement.NewSweeper(a.cfg.Settle, deps.Settler, deps.GameStore, deps.Feed, deps.Locks, deps.Telemetry, a.logger)

	notifier := deps.Notifier
	sweeper.OnSweep(func(ctx context.Context, s settlement.SweepSummary) {
		if err := notifier.SettlementSweep(ctx, s.Games, s.Settled, s.Skipped, s.Errors, s.Elapsed); err != nil {
			a.logger.DebugContext(ctx, "sweep alert failed", slog.String("error", err.Error()))
		}
	})

	g.Go(func() error {
		return sweeper.Run(ctx)
	})

	if a.cfg.Settle.ArchiveEnabled && deps.Archiver != nil {
		a.logLastArchive(ctx, deps)

		runner := archive.NewRunner(deps.Archiver, deps.Locks, a.cfg.Settle.ArchiveAfter.Duration, a.logger)
		cronExpr := a.cfg.Settle.ArchiveCron
		g.Go(func() error {
			return runner.RunCron(ctx, cronExpr)
		})
	}
}

// logLastArchive surfaces when the archive last ran, so an operator can
// spot a cron that silently stopped firing across restarts.
func (a *App) logLastArchive(ctx context.Context, deps *Dependencies) {
	entries, err := deps.AuditStore.List(ctx, domain.AuditFilter{Event: "archive.tickets", Limit: 1})
	if err != nil {
		a.logger.DebugContext(ctx, "archive audit lookup failed", slog.String("error", err.Error()))
		return
	}
	if len(entries) == 0 {
		a.logger.InfoContext(ctx, "no previous ticket archive recorded")
		return
	}
	a.logger.InfoContext(ctx, "last ticket archive",
		slog.Time("at", entries[0].CreatedAt),
		slog.Any("detail", entries[0].Detail),
	)
}

// countError counts a pipeline error toward the RED burst threshold.
func (a *App) countError(ctx context.Context, deps *Dependencies) {
	if err := deps.Telemetry.Incr(ctx, domain.CounterErrors5m); err != nil {
		a.logger.DebugContext(ctx, "telemetry incr failed", slog.String("error", err.Error()))
	}
}

// countCycleFailure counts an aborted advisory cycle. The incident is
// both a pipeline error and a failed generation attempt; the two
// counters feed different thresholds.
func (a *App) countCycleFailure(ctx context.Context, deps *Dependencies) {
	a.countError(ctx, deps)
	if err := deps.Telemetry.Incr(ctx, domain.CounterGenerationFail5m); err != nil {
		a.logger.DebugContext(ctx, "telemetry incr failed", slog.String("error", err.Error()))
	}
}

// advisoryPick pairs a game with its computed probability for ranking.
type advisoryPick struct {
	game domain.Game
	prob domain.ModelProbability
}

// pickSide returns the favored side and its win probability.
func (p advisoryPick) pickSide() (domain.PickSide, float64) {
	if p.prob.HomeProb >= p.prob.AwayProb {
		return domain.PickHome, p.prob.HomeProb
	}
	return domain.PickAway, p.prob.AwayProb
}

// quoteFromGame builds a consensus-book quote from the prices the last
// feed refresh stored on the game row.
func quoteFromGame(g domain.Game) domain.OddsQuote {
	return domain.OddsQuote{
		GameID:    g.ID,
		Book:      "consensus",
		HomePrice: g.HomePrice,
		AwayPrice: g.AwayPrice,
		FetchedAt: g.UpdatedAt,
	}
}

func hasPrices(games []domain.Game) bool {
	for _, g := range games {
		if g.HomePrice != nil && g.AwayPrice != nil {
			return true
		}
	}
	return false
}
