// Package probability blends market odds with auxiliary team signals
// into calibrated win probabilities for scheduled games.
package probability

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/courtsidelabs/parlayengine/internal/domain"
)

// Blend weights for the three probability components. They sum to 1.
const (
	WeightMarket      = 0.50
	WeightTeam        = 0.30
	WeightSituational = 0.20
)

// Home advantage added to the situational component, by sport. Court
// sports run hotter home edges than gridiron sports.
const (
	homeAdvBasketball = 0.08
	homeAdvFootball   = 0.05
	homeAdvDefault    = 0.05
)

// Confidence scoring. Confidence starts from the base, moves up as
// inputs arrive and agree, and is clamped to [0, 100]. A degenerate
// quote caps the result because the market input cannot be trusted.
const (
	confidenceBase          = 50.0
	confidenceOdds          = 15.0
	confidenceStats         = 5.0
	confidenceForm          = 5.0
	confidenceInjuries      = 3.0
	confidenceWeather       = 2.0
	confidenceAgreement     = 10.0
	confidenceStrongSide    = 5.0
	confidenceDegenerateCap = 30.0
)

// Team-strength weighting. Net rating is scaled per 10 points of
// differential before weighting.
const (
	winPctWeight    = 0.25
	netRatingWeight = 0.15
	formWeight      = 0.20
	keyInjuryShift  = 0.03
)

// Situational shifts beyond the base home advantage.
const (
	restDayShift   = 0.01
	restShiftCap   = 0.03
	weatherShift   = 0.01
	severeWindKph  = 30.0
	severePrecipMM = 5.0
)

// SignalReader is the request-scoped signal view the calculator reads.
// Absent signals are reported with ok=false, never an error.
type SignalReader interface {
	TeamStats(ctx context.Context, team string) (domain.TeamStats, bool)
	RecentForm(ctx context.Context, team string) ([]domain.FormGame, bool)
	InjuryReport(ctx context.Context, team string) (domain.InjuryReport, bool)
	Weather(ctx context.Context, team string, kickoff time.Time) (domain.WeatherReport, bool)
}

// Calculator computes blended win probabilities.
type Calculator struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewCalculator constructs a Calculator.
func NewCalculator(logger *slog.Logger) *Calculator {
	return &Calculator{
		logger: logger.With(slog.String("component", "probability")),
		now:    time.Now,
	}
}

// Compute blends the market quote with the auxiliary signals for game
// and returns home/away win probabilities plus a 0-100 confidence
// score. The two probabilities always sum to 1 by construction; the
// away side is 1-home. signals may be nil, in which case every
// auxiliary component evaluates to its neutral baseline.
func (c *Calculator) Compute(ctx context.Context, game domain.Game, quote domain.OddsQuote, signals SignalReader) domain.ModelProbability {
	marketHome, _, marketOK := FairProbabilities(quote)
	oddsSupplied := !quote.Empty()
	degenerate := oddsSupplied && !marketOK

	team := c.teamComponent(ctx, game, signals)
	situ := c.situationalComponent(ctx, game, signals)

	home := WeightMarket*marketHome + WeightTeam*team.prob + WeightSituational*situ.prob
	home = clamp(home, 0.02, 0.98)

	conf := confidenceBase
	if oddsSupplied && !degenerate {
		conf += confidenceOdds
	}
	if team.statsPresent {
		conf += confidenceStats
	}
	if team.formPresent {
		conf += confidenceForm
	}
	if team.injuriesPresent {
		conf += confidenceInjuries
	}
	if situ.weatherPresent {
		conf += confidenceWeather
	}
	if oddsSupplied && !degenerate && team.informed() {
		// Auxiliary signals reinforcing the market side earn a bonus.
		if (marketHome-0.5)*(team.prob-0.5) > 0 {
			conf += confidenceAgreement
		}
		if math.Abs(home-0.5) > 0.15 {
			conf += confidenceStrongSide
		}
	}
	if degenerate {
		conf = math.Min(conf, confidenceDegenerateCap)
	}
	conf = clamp(conf, 0, 100)

	mp := domain.ModelProbability{
		GameID:     game.ID,
		HomeProb:   home,
		AwayProb:   1 - home,
		Confidence: conf,
		ComputedAt: c.now(),
	}

	c.logger.DebugContext(ctx, "model probability computed",
		slog.String("game_id", game.ID),
		slog.Float64("home_prob", mp.HomeProb),
		slog.Float64("confidence", mp.Confidence),
		slog.Bool("odds_supplied", oddsSupplied),
	)
	return mp
}

type teamSignal struct {
	prob            float64
	statsPresent    bool
	formPresent     bool
	injuriesPresent bool
}

func (t teamSignal) informed() bool {
	return t.statsPresent || t.formPresent || t.injuriesPresent
}

// teamComponent scores relative team strength from season stats,
// recent form, and key injuries. Missing inputs contribute nothing, so
// with no signals at all the component stays at the even baseline.
func (c *Calculator) teamComponent(ctx context.Context, game domain.Game, signals SignalReader) teamSignal {
	out := teamSignal{prob: 0.5}
	if signals == nil {
		return out
	}

	var score float64

	homeStats, hok := signals.TeamStats(ctx, game.HomeTeam)
	awayStats, aok := signals.TeamStats(ctx, game.AwayTeam)
	if hok && aok {
		out.statsPresent = true
		score += winPctWeight * (homeStats.WinPct() - awayStats.WinPct())
		score += netRatingWeight * clamp((homeStats.NetRating()-awayStats.NetRating())/10, -1, 1)
	}

	homeForm, hfok := signals.RecentForm(ctx, game.HomeTeam)
	awayForm, afok := signals.RecentForm(ctx, game.AwayTeam)
	if hfok && afok && len(homeForm) > 0 && len(awayForm) > 0 {
		out.formPresent = true
		score += formWeight * (winRate(homeForm) - winRate(awayForm))
	}

	homeInj, hiok := signals.InjuryReport(ctx, game.HomeTeam)
	awayInj, aiok := signals.InjuryReport(ctx, game.AwayTeam)
	if hiok && aiok {
		out.injuriesPresent = true
		score -= keyInjuryShift * float64(homeInj.KeyPlayersOut-awayInj.KeyPlayersOut)
	}

	out.prob = clamp(0.5+score, 0.05, 0.95)
	return out
}

type situSignal struct {
	prob           float64
	weatherPresent bool
}

// situationalComponent folds in home advantage, the rest-day
// differential, and venue weather. The home-advantage constant keeps
// this component above even whenever everything else is symmetric.
func (c *Calculator) situationalComponent(ctx context.Context, game domain.Game, signals SignalReader) situSignal {
	shift := homeAdvantage(game.Sport)
	out := situSignal{}

	if signals != nil {
		homeForm, hok := signals.RecentForm(ctx, game.HomeTeam)
		awayForm, aok := signals.RecentForm(ctx, game.AwayTeam)
		if hok && aok {
			rest := restDays(homeForm, game.CommenceAt) - restDays(awayForm, game.CommenceAt)
			shift += clamp(float64(rest)*restDayShift, -restShiftCap, restShiftCap)
		}

		if wx, ok := signals.Weather(ctx, game.HomeTeam, game.CommenceAt); ok {
			out.weatherPresent = true
			// Harsh outdoor conditions favor the acclimated home side.
			if game.Sport == domain.SportFootball && (wx.WindKph >= severeWindKph || wx.PrecipMM >= severePrecipMM) {
				shift += weatherShift
			}
		}
	}

	out.prob = clamp(0.5+shift, 0.05, 0.95)
	return out
}

func homeAdvantage(sport domain.Sport) float64 {
	switch sport {
	case domain.SportBasketball:
		return homeAdvBasketball
	case domain.SportFootball:
		return homeAdvFootball
	default:
		return homeAdvDefault
	}
}

// restDays returns full days between a team's most recent game and
// kickoff, 0 when the form history is empty or in the future.
func restDays(form []domain.FormGame, kickoff time.Time) int {
	if len(form) == 0 {
		return 0
	}
	last := form[0].PlayedAt
	for _, g := range form[1:] {
		if g.PlayedAt.After(last) {
			last = g.PlayedAt
		}
	}
	d := kickoff.Sub(last)
	if d < 0 {
		return 0
	}
	return int(d.Hours() / 24)
}

func winRate(form []domain.FormGame) float64 {
	if len(form) == 0 {
		return 0.5
	}
	wins := 0
	for _, g := range form {
		if g.Won {
			wins++
		}
	}
	return float64(wins) / float64(len(form))
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
