package domain

import "time"

// OddsQuote carries the market moneyline for a single game. Either
// American prices or pre-computed implied probabilities may be
// supplied; prices take precedence when both are present.
type OddsQuote struct {
	GameID      string
	Book        string
	HomePrice   *int // American odds, e.g. -150
	AwayPrice   *int
	HomeImplied *float64 // raw implied probability, vig included
	AwayImplied *float64
	FetchedAt   time.Time
}

// HasPrices reports whether both American prices are present.
func (q OddsQuote) HasPrices() bool {
	return q.HomePrice != nil && q.AwayPrice != nil
}

// HasImplied reports whether both implied probabilities are present.
func (q OddsQuote) HasImplied() bool {
	return q.HomeImplied != nil && q.AwayImplied != nil
}

// Empty reports whether the quote carries no usable market input.
func (q OddsQuote) Empty() bool {
	return !q.HasPrices() && !q.HasImplied()
}
