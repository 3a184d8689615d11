// Package safety classifies decision-pipeline health from shared
// telemetry and gates pick generation on the result.
package safety

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/courtsidelabs/parlayengine/internal/config"
	"github.com/courtsidelabs/parlayengine/internal/domain"
)

// Evaluation is the outcome of one gate pass. Effective is the state
// after hysteresis and is what callers act on; Raw is the state the
// counters alone produce.
type Evaluation struct {
	Raw       domain.HealthState
	Effective domain.HealthState
	Reasons   []string
	Snapshot  domain.TelemetrySnapshot
}

// Gate evaluates telemetry into a GREEN/YELLOW/RED health state with
// hysteresis holds, emits transition events, and enforces the
// generation policy derived from the state. RED is the only state
// that hard-blocks generation; YELLOW degrades it.
type Gate struct {
	store     domain.TelemetryStore
	cfg       config.SafetyConfig
	logger    *slog.Logger
	now       func() time.Time
	listeners []func(context.Context, domain.Transition)
}

// NewGate constructs a Gate over the given telemetry store.
func NewGate(store domain.TelemetryStore, cfg config.SafetyConfig, logger *slog.Logger) *Gate {
	return &Gate{
		store:  store,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "safety")),
		now:    time.Now,
	}
}

// OnTransition registers fn to be called synchronously whenever the
// effective state changes. Register before the gate starts evaluating.
func (g *Gate) OnTransition(fn func(context.Context, domain.Transition)) {
	g.listeners = append(g.listeners, fn)
}

// Evaluate computes the current evaluation, maintains the hysteresis
// stamps, and records a transition event when the effective state
// moved since the previous evaluation.
func (g *Gate) Evaluate(ctx context.Context) (Evaluation, error) {
	snap, err := g.store.Snapshot(ctx)
	if err != nil {
		return Evaluation{}, fmt.Errorf("safety: snapshot: %w", err)
	}
	now := g.now()

	raw, reasons := g.rawState(snap, now)

	// Raw RED/YELLOW stamps (or refreshes) the matching hysteresis
	// marker, so holds are measured from the last raw occurrence.
	switch raw {
	case domain.HealthRed:
		if err := g.store.SetStamp(ctx, domain.StampRedSince, now); err != nil {
			return Evaluation{}, fmt.Errorf("safety: stamp red_since: %w", err)
		}
		snap.RedSince = now
	case domain.HealthYellow:
		if err := g.store.SetStamp(ctx, domain.StampYellowSince, now); err != nil {
			return Evaluation{}, fmt.Errorf("safety: stamp yellow_since: %w", err)
		}
		snap.YellowSince = now
	}

	effective := raw
	if effective != domain.HealthRed && !snap.RedSince.IsZero() {
		if held := now.Sub(snap.RedSince); held < g.cfg.RedHold.Duration {
			effective = domain.HealthRed
			reasons = append(reasons, fmt.Sprintf("red hold: %s of %s elapsed", held.Round(time.Second), g.cfg.RedHold.Duration))
		} else {
			if err := g.store.ClearStamp(ctx, domain.StampRedSince); err != nil {
				return Evaluation{}, fmt.Errorf("safety: clear red_since: %w", err)
			}
			snap.RedSince = time.Time{}
		}
	}
	if effective == domain.HealthGreen && !snap.YellowSince.IsZero() {
		if held := now.Sub(snap.YellowSince); held < g.cfg.YellowHold.Duration {
			effective = domain.HealthYellow
			reasons = append(reasons, fmt.Sprintf("yellow hold: %s of %s elapsed", held.Round(time.Second), g.cfg.YellowHold.Duration))
		} else {
			if err := g.store.ClearStamp(ctx, domain.StampYellowSince); err != nil {
				return Evaluation{}, fmt.Errorf("safety: clear yellow_since: %w", err)
			}
			snap.YellowSince = time.Time{}
		}
	}

	eval := Evaluation{Raw: raw, Effective: effective, Reasons: reasons, Snapshot: snap}

	if snap.LastEffectiveState != effective {
		tr := domain.Transition{From: snap.LastEffectiveState, To: effective, Reasons: reasons, At: now}
		if err := g.store.RecordTransition(ctx, tr); err != nil {
			return Evaluation{}, fmt.Errorf("safety: record transition: %w", err)
		}
		if err := g.store.SetLastState(ctx, effective); err != nil {
			return Evaluation{}, fmt.Errorf("safety: set last state: %w", err)
		}
		g.logTransition(ctx, tr)
		for _, fn := range g.listeners {
			fn(ctx, tr)
		}
	}

	return eval, nil
}

// State returns the current effective health state. Telemetry failures
// fail closed to RED.
func (g *Gate) State(ctx context.Context) domain.HealthState {
	eval, err := g.Evaluate(ctx)
	if err != nil {
		g.logger.ErrorContext(ctx, "health evaluation failed, failing closed", slog.Any("error", err))
		return domain.HealthRed
	}
	return eval.Effective
}

// RequireGenerationAllowed returns a GenerationBlockedError when the
// effective state is RED. YELLOW and GREEN allow generation; YELLOW
// callers are expected to run ApplyDegradedPolicy as well.
func (g *Gate) RequireGenerationAllowed(ctx context.Context) error {
	eval, err := g.Evaluate(ctx)
	if err != nil {
		return err
	}
	if eval.Effective == domain.HealthRed {
		return &domain.GenerationBlockedError{
			State:    eval.Effective,
			Reasons:  eval.Reasons,
			Snapshot: eval.Snapshot,
		}
	}
	return nil
}

// ApplyDegradedPolicy adjusts generation parameters for the current
// state and reports which policies were applied. In YELLOW the leg
// count is capped; GREEN leaves the parameters untouched.
func (g *Gate) ApplyDegradedPolicy(ctx context.Context, params domain.GenerationParams) (domain.GenerationParams, []string) {
	eval, err := g.Evaluate(ctx)
	if err != nil {
		g.logger.ErrorContext(ctx, "health evaluation failed, leaving params untouched", slog.Any("error", err))
		return params, nil
	}
	if eval.Effective != domain.HealthYellow {
		return params, nil
	}

	var applied []string
	if params.MaxLegs > g.cfg.DegradedMaxLegs {
		params.MaxLegs = g.cfg.DegradedMaxLegs
		applied = append(applied, "cap_legs")
	}
	return params, applied
}

// rawState classifies the snapshot without hysteresis. RED conditions
// are disqualifying on their own; YELLOW conditions accumulate.
func (g *Gate) rawState(snap domain.TelemetrySnapshot, now time.Time) (domain.HealthState, []string) {
	var reasons []string

	if snap.Errors5m >= g.cfg.RedErrorThreshold {
		reasons = append(reasons, fmt.Sprintf("error burst: %d errors in 5m (threshold %d)", snap.Errors5m, g.cfg.RedErrorThreshold))
	}
	if snap.NotEnoughGames30m >= g.cfg.RedShortageThreshold {
		reasons = append(reasons, fmt.Sprintf("game shortage: %d failures in 30m (threshold %d)", snap.NotEnoughGames30m, g.cfg.RedShortageThreshold))
	}
	if len(reasons) > 0 {
		return domain.HealthRed, reasons
	}

	if snap.LastOddsRefresh.IsZero() {
		reasons = append(reasons, "odds never refreshed")
	} else if age := now.Sub(snap.LastOddsRefresh); age > g.cfg.OddsStaleAfter.Duration {
		reasons = append(reasons, fmt.Sprintf("odds stale: last refresh %s ago", age.Round(time.Second)))
	}
	if snap.LastGamesRefresh.IsZero() {
		reasons = append(reasons, "games never refreshed")
	} else if age := now.Sub(snap.LastGamesRefresh); age > g.cfg.GamesStaleAfter.Duration {
		reasons = append(reasons, fmt.Sprintf("games stale: last refresh %s ago", age.Round(time.Second)))
	}
	if softCap := int(float64(g.cfg.ApiBudgetDaily) * g.cfg.ApiBudgetRatio); snap.APICallsToday >= softCap {
		reasons = append(reasons, fmt.Sprintf("api budget: %d calls today (soft cap %d)", snap.APICallsToday, softCap))
	}
	if snap.GenerationFails5m >= g.cfg.GenerationFailures {
		reasons = append(reasons, fmt.Sprintf("generation failures: %d in 5m (threshold %d)", snap.GenerationFails5m, g.cfg.GenerationFailures))
	}
	if snap.APIFails30m >= g.cfg.ApiFailures {
		reasons = append(reasons, fmt.Sprintf("api failures: %d in 30m (threshold %d)", snap.APIFails30m, g.cfg.ApiFailures))
	}
	if len(reasons) > 0 {
		return domain.HealthYellow, reasons
	}

	return domain.HealthGreen, nil
}

func (g *Gate) logTransition(ctx context.Context, tr domain.Transition) {
	attrs := []any{
		slog.String("from", string(tr.From)),
		slog.String("to", string(tr.To)),
		slog.Any("reasons", tr.Reasons),
	}
	if tr.To == domain.HealthRed {
		g.logger.WarnContext(ctx, "health state degraded", attrs...)
		return
	}
	g.logger.InfoContext(ctx, "health state changed", attrs...)
}
