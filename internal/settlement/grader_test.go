package settlement

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/courtsidelabs/parlayengine/internal/domain"
)

func ip(v int) *int         { return &v }
func fp(v float64) *float64 { return &v }

func finalResult(home, away int) domain.GameResult {
	return domain.GameResult{Status: domain.GameStatusFinal, HomeScore: ip(home), AwayScore: ip(away)}
}

func TestGradeLegSpread(t *testing.T) {
	cases := []struct {
		name string
		pick domain.PickSide
		line float64
		home int
		away int
		want domain.LegStatus
	}{
		{"home favorite covers", domain.PickHome, -4.0, 30, 20, domain.LegStatusWon},
		{"home favorite lands on number", domain.PickHome, -4.0, 24, 20, domain.LegStatusPush},
		{"home favorite misses", domain.PickHome, -4.0, 23, 20, domain.LegStatusLost},
		{"away dog covers outright loss", domain.PickAway, 6.5, 24, 20, domain.LegStatusWon},
		{"away dog blown out", domain.PickAway, 6.5, 31, 20, domain.LegStatusLost},
		{"half point never pushes", domain.PickHome, -3.5, 24, 20, domain.LegStatusWon},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			leg := domain.ParlayLeg{Market: domain.MarketSpread, Pick: tc.pick, Line: fp(tc.line), Status: domain.LegStatusPending}
			assert.Equal(t, tc.want, GradeLeg(leg, finalResult(tc.home, tc.away)))
		})
	}
}

func TestGradeLegTotal(t *testing.T) {
	cases := []struct {
		name string
		pick domain.PickSide
		line float64
		home int
		away int
		want domain.LegStatus
	}{
		{"over clears", domain.PickOver, 44.5, 28, 21, domain.LegStatusWon},
		{"over falls short", domain.PickOver, 44.5, 20, 17, domain.LegStatusLost},
		{"over lands on number", domain.PickOver, 44.0, 24, 20, domain.LegStatusPush},
		{"under lands on number", domain.PickUnder, 44.0, 24, 20, domain.LegStatusPush},
		{"under clears", domain.PickUnder, 44.5, 20, 17, domain.LegStatusWon},
		{"under busts", domain.PickUnder, 44.5, 28, 21, domain.LegStatusLost},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			leg := domain.ParlayLeg{Market: domain.MarketTotal, Pick: tc.pick, Line: fp(tc.line), Status: domain.LegStatusPending}
			assert.Equal(t, tc.want, GradeLeg(leg, finalResult(tc.home, tc.away)))
		})
	}
}

func TestGradeLegMoneyline(t *testing.T) {
	homePick := domain.ParlayLeg{Market: domain.MarketMoneyline, Pick: domain.PickHome, Status: domain.LegStatusPending}
	awayPick := domain.ParlayLeg{Market: domain.MarketMoneyline, Pick: domain.PickAway, Status: domain.LegStatusPending}

	assert.Equal(t, domain.LegStatusWon, GradeLeg(homePick, finalResult(3, 0)))
	assert.Equal(t, domain.LegStatusLost, GradeLeg(homePick, finalResult(0, 3)))
	assert.Equal(t, domain.LegStatusWon, GradeLeg(awayPick, finalResult(0, 3)))

	// Draws lose for both sides, including a 0-0 final.
	assert.Equal(t, domain.LegStatusLost, GradeLeg(homePick, finalResult(0, 0)))
	assert.Equal(t, domain.LegStatusLost, GradeLeg(awayPick, finalResult(0, 0)))
	assert.Equal(t, domain.LegStatusLost, GradeLeg(homePick, finalResult(21, 21)))
}

func TestGradeLegVoids(t *testing.T) {
	spreadNoLine := domain.ParlayLeg{Market: domain.MarketSpread, Pick: domain.PickHome, Status: domain.LegStatusPending}
	assert.Equal(t, domain.LegStatusVoid, GradeLeg(spreadNoLine, finalResult(24, 20)))

	totalNoLine := domain.ParlayLeg{Market: domain.MarketTotal, Pick: domain.PickOver, Status: domain.LegStatusPending}
	assert.Equal(t, domain.LegStatusVoid, GradeLeg(totalNoLine, finalResult(24, 20)))

	unknownMarket := domain.ParlayLeg{Market: "player_props", Pick: domain.PickHome, Status: domain.LegStatusPending}
	assert.Equal(t, domain.LegStatusVoid, GradeLeg(unknownMarket, finalResult(24, 20)))

	wrongSide := domain.ParlayLeg{Market: domain.MarketSpread, Pick: domain.PickOver, Line: fp(-3.0), Status: domain.LegStatusPending}
	assert.Equal(t, domain.LegStatusVoid, GradeLeg(wrongSide, finalResult(24, 20)))

	missingScores := domain.GameResult{Status: domain.GameStatusFinal, HomeScore: ip(24)}
	ml := domain.ParlayLeg{Market: domain.MarketMoneyline, Pick: domain.PickHome, Status: domain.LegStatusPending}
	assert.Equal(t, domain.LegStatusVoid, GradeLeg(ml, missingScores))
}

func TestGradeLegKeepsStatusUntilFinal(t *testing.T) {
	leg := domain.ParlayLeg{Market: domain.MarketMoneyline, Pick: domain.PickHome, Status: domain.LegStatusLive}
	live := domain.GameResult{Status: domain.GameStatusLive, HomeScore: ip(14), AwayScore: ip(7)}

	assert.Equal(t, domain.LegStatusLive, GradeLeg(leg, live))

	leg.Status = domain.LegStatusPending
	scheduled := domain.GameResult{Status: domain.GameStatusScheduled}
	assert.Equal(t, domain.LegStatusPending, GradeLeg(leg, scheduled))
}

func legsWith(statuses ...domain.LegStatus) []domain.ParlayLeg {
	legs := make([]domain.ParlayLeg, len(statuses))
	for i, s := range statuses {
		legs[i] = domain.ParlayLeg{Status: s}
	}
	return legs
}

func TestTicketStatusRollup(t *testing.T) {
	cases := []struct {
		name     string
		statuses []domain.LegStatus
		want     domain.TicketStatus
	}{
		{"all won", []domain.LegStatus{domain.LegStatusWon, domain.LegStatusWon}, domain.TicketStatusWon},
		{"won with push", []domain.LegStatus{domain.LegStatusWon, domain.LegStatusPush, domain.LegStatusWon}, domain.TicketStatusWon},
		{"all push", []domain.LegStatus{domain.LegStatusPush, domain.LegStatusPush}, domain.TicketStatusWon},
		{"loss sinks live", []domain.LegStatus{domain.LegStatusWon, domain.LegStatusLost, domain.LegStatusLive}, domain.TicketStatusLost},
		{"live beats pending", []domain.LegStatus{domain.LegStatusLive, domain.LegStatusPending}, domain.TicketStatusLive},
		{"pending blocks payout", []domain.LegStatus{domain.LegStatusPending, domain.LegStatusWon}, domain.TicketStatusPending},
		{"all void", []domain.LegStatus{domain.LegStatusVoid, domain.LegStatusVoid}, domain.TicketStatusVoid},
		{"partial void stays pending", []domain.LegStatus{domain.LegStatusVoid, domain.LegStatusWon}, domain.TicketStatusPending},
		{"empty ticket", nil, domain.TicketStatusPending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, TicketStatus(legsWith(tc.statuses...)))
		})
	}
}
