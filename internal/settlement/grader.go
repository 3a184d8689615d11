// Package settlement grades parlay legs against final game results and
// rolls leg outcomes up to ticket level.
package settlement

import (
	"github.com/courtsidelabs/parlayengine/internal/domain"
)

// lineEpsilon guards float comparison on half-point lines.
const lineEpsilon = 1e-9

// GradeLeg grades a single leg against a game result. Legs referencing
// games that are not final keep their current status. On a final game,
// missing scores, a missing line, or an unsupported market grade VOID
// rather than guessing an outcome.
func GradeLeg(leg domain.ParlayLeg, res domain.GameResult) domain.LegStatus {
	if !res.Status.Final() {
		return leg.Status
	}
	if !res.HasScores() {
		return domain.LegStatusVoid
	}

	home := *res.HomeScore
	away := *res.AwayScore

	switch leg.Market {
	case domain.MarketSpread:
		return gradeSpread(leg, home, away)
	case domain.MarketTotal:
		return gradeTotal(leg, home, away)
	case domain.MarketMoneyline:
		return gradeMoneyline(leg, home, away)
	default:
		return domain.LegStatusVoid
	}
}

// gradeSpread settles the picked side by its cover margin: the side's
// winning margin plus the line attached to it. Landing exactly on the
// number pushes.
func gradeSpread(leg domain.ParlayLeg, home, away int) domain.LegStatus {
	if leg.Line == nil {
		return domain.LegStatusVoid
	}

	var margin float64
	switch leg.Pick {
	case domain.PickHome:
		margin = float64(home - away)
	case domain.PickAway:
		margin = float64(away - home)
	default:
		return domain.LegStatusVoid
	}

	cover := margin + *leg.Line
	switch {
	case cover > lineEpsilon:
		return domain.LegStatusWon
	case cover < -lineEpsilon:
		return domain.LegStatusLost
	default:
		return domain.LegStatusPush
	}
}

func gradeTotal(leg domain.ParlayLeg, home, away int) domain.LegStatus {
	if leg.Line == nil {
		return domain.LegStatusVoid
	}

	diff := float64(home+away) - *leg.Line
	switch leg.Pick {
	case domain.PickOver:
		switch {
		case diff > lineEpsilon:
			return domain.LegStatusWon
		case diff < -lineEpsilon:
			return domain.LegStatusLost
		default:
			return domain.LegStatusPush
		}
	case domain.PickUnder:
		switch {
		case diff < -lineEpsilon:
			return domain.LegStatusWon
		case diff > lineEpsilon:
			return domain.LegStatusLost
		default:
			return domain.LegStatusPush
		}
	default:
		return domain.LegStatusVoid
	}
}

// gradeMoneyline settles on the outright winner. A drawn game loses
// for both sides; moneyline ties are not refunded.
func gradeMoneyline(leg domain.ParlayLeg, home, away int) domain.LegStatus {
	switch leg.Pick {
	case domain.PickHome:
		if home > away {
			return domain.LegStatusWon
		}
		return domain.LegStatusLost
	case domain.PickAway:
		if away > home {
			return domain.LegStatusWon
		}
		return domain.LegStatusLost
	default:
		return domain.LegStatusVoid
	}
}

// TicketStatus derives the rollup status for a set of legs. Any loss
// sinks the whole ticket, a live leg beats pending, a full set of
// won/pushed legs wins, a fully voided ticket voids, and anything
// else, including a partial void, stays pending.
func TicketStatus(legs []domain.ParlayLeg) domain.TicketStatus {
	if len(legs) == 0 {
		return domain.TicketStatusPending
	}

	var lost, live, pending, wonOrPush, void int
	for _, leg := range legs {
		switch leg.Status {
		case domain.LegStatusLost:
			lost++
		case domain.LegStatusLive:
			live++
		case domain.LegStatusPending:
			pending++
		case domain.LegStatusWon, domain.LegStatusPush:
			wonOrPush++
		case domain.LegStatusVoid:
			void++
		}
	}

	switch {
	case lost > 0:
		return domain.TicketStatusLost
	case live > 0:
		return domain.TicketStatusLive
	case pending > 0:
		return domain.TicketStatusPending
	case wonOrPush == len(legs):
		return domain.TicketStatusWon
	case void == len(legs):
		return domain.TicketStatusVoid
	default:
		return domain.TicketStatusPending
	}
}
