package probability

import (
	"math"

	"github.com/courtsidelabs/parlayengine/internal/domain"
)

// ImpliedFromAmerican converts an American price to its implied
// probability, bookmaker margin included. Favorites (negative prices)
// map to |p|/(|p|+100), underdogs to 100/(p+100).
func ImpliedFromAmerican(price int) float64 {
	if price < 0 {
		p := float64(-price)
		return p / (p + 100)
	}
	return 100 / (float64(price) + 100)
}

// Devig normalizes a pair of implied probabilities (which usually sum
// past 1 because of the bookmaker margin) to a fair pair summing to
// exactly 1. ok is false for degenerate input, in which case the even
// prior (0.5, 0.5) is returned.
func Devig(homeImplied, awayImplied float64) (home, away float64, ok bool) {
	total := homeImplied + awayImplied
	if homeImplied < 0 || awayImplied < 0 || total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return 0.5, 0.5, false
	}
	return homeImplied / total, awayImplied / total, true
}

// FairProbabilities extracts devigged home/away win probabilities from
// a quote. American prices are preferred when both forms are present.
// ok is false when the quote is empty or degenerate.
func FairProbabilities(q domain.OddsQuote) (home, away float64, ok bool) {
	switch {
	case q.HasPrices():
		return Devig(ImpliedFromAmerican(*q.HomePrice), ImpliedFromAmerican(*q.AwayPrice))
	case q.HasImplied():
		return Devig(*q.HomeImplied, *q.AwayImplied)
	default:
		return 0.5, 0.5, false
	}
}
