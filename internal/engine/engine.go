// Package engine is the facade over the decision and settlement core.
// Upstream services consult it for the current safety state, permission
// to generate picks, calibrated win probabilities, and settlement of
// issued legs. Everything stateful behind it is injected; the facade
// itself adds only the request boundary for signal caching.
package engine

import (
	"context"
	"log/slog"

	"github.com/courtsidelabs/parlayengine/internal/config"
	"github.com/courtsidelabs/parlayengine/internal/domain"
	"github.com/courtsidelabs/parlayengine/internal/probability"
	"github.com/courtsidelabs/parlayengine/internal/safety"
	"github.com/courtsidelabs/parlayengine/internal/settlement"
	"github.com/courtsidelabs/parlayengine/internal/signals"
)

// Engine bundles the long-lived collaborators of the decision core.
type Engine struct {
	gate       *safety.Gate
	calc       *probability.Calculator
	settler    *settlement.Settler
	sources    signals.Sources
	signalsCfg config.SignalsConfig
	logger     *slog.Logger
}

// New constructs the Engine. settler may be nil for advisory-only
// deployments; SettleLegsForGame then settles nothing.
func New(gate *safety.Gate, settler *settlement.Settler, sources signals.Sources, signalsCfg config.SignalsConfig, logger *slog.Logger) *Engine {
	return &Engine{
		gate:       gate,
		calc:       probability.NewCalculator(logger),
		settler:    settler,
		sources:    sources,
		signalsCfg: signalsCfg,
		logger:     logger.With(slog.String("component", "engine")),
	}
}

// State returns the current effective health state.
func (e *Engine) State(ctx context.Context) domain.HealthState {
	return e.gate.State(ctx)
}

// RequireGenerationAllowed returns a domain.GenerationBlockedError when
// the health gate is RED. This is the engine's only hard stop; callers
// must check it before any probability work.
func (e *Engine) RequireGenerationAllowed(ctx context.Context) error {
	return e.gate.RequireGenerationAllowed(ctx)
}

// ApplyDegradedPolicy narrows generation parameters according to the
// current health state and reports which policies were applied.
func (e *Engine) ApplyDegradedPolicy(ctx context.Context, params domain.GenerationParams) (domain.GenerationParams, []string) {
	return e.gate.ApplyDegradedPolicy(ctx, params)
}

// SettleLegsForGame grades every open leg referencing gameID once the
// game is final and returns how many legs reached a terminal status.
func (e *Engine) SettleLegsForGame(ctx context.Context, gameID string) (int, error) {
	if e.settler == nil {
		return 0, nil
	}
	return e.settler.SettleLegsForGame(ctx, gameID)
}

// TicketStatus derives the rollup status of a parlay from its current
// leg statuses.
func (e *Engine) TicketStatus(legs []domain.ParlayLeg) domain.TicketStatus {
	return settlement.TicketStatus(legs)
}

// NewRequest opens an advisory request. Each request owns a fresh
// signal cache: every (kind, team) pair is fetched at most once within
// it, and nothing cached survives the request.
func (e *Engine) NewRequest() *Request {
	return &Request{
		cache: signals.NewCache(e.signalsCfg, e.sources, e.logger),
		calc:  e.calc,
	}
}

// Request is one advisory pass over a batch of games. Not safe to
// reuse across requests; open a new one per cycle.
type Request struct {
	cache *signals.Cache
	calc  *probability.Calculator
}

// Prefetch warms the request's signal cache for the given games under
// the configured concurrency and time budgets. It never fails; signals
// that cannot be fetched resolve to absent.
func (r *Request) Prefetch(ctx context.Context, games []domain.Game) domain.PrefetchSummary {
	return r.cache.Prefetch(ctx, games)
}

// Probability blends the market quote with this request's cached
// signals into a calibrated win probability for game.
func (r *Request) Probability(ctx context.Context, game domain.Game, quote domain.OddsQuote) domain.ModelProbability {
	return r.calc.Compute(ctx, game, quote, r.cache)
}
