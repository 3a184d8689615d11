package domain

import "time"

// MarketType identifies the bet market a leg was placed on.
type MarketType string

const (
	MarketSpread    MarketType = "spread"
	MarketTotal     MarketType = "total"
	MarketMoneyline MarketType = "moneyline"
)

// PickSide is the side of the market a leg selects.
type PickSide string

const (
	PickHome  PickSide = "home"
	PickAway  PickSide = "away"
	PickOver  PickSide = "over"
	PickUnder PickSide = "under"
)

// LegStatus represents the settlement state of a single leg.
type LegStatus string

const (
	LegStatusPending LegStatus = "pending"
	LegStatusLive    LegStatus = "live"
	LegStatusWon     LegStatus = "won"
	LegStatusLost    LegStatus = "lost"
	LegStatusPush    LegStatus = "push"
	LegStatusVoid    LegStatus = "void"
)

// Terminal reports whether the status is settled and immutable.
func (s LegStatus) Terminal() bool {
	switch s {
	case LegStatusWon, LegStatusLost, LegStatusPush, LegStatusVoid:
		return true
	}
	return false
}

// TicketStatus is the derived rollup state of a parlay ticket.
type TicketStatus string

const (
	TicketStatusPending TicketStatus = "pending"
	TicketStatusLive    TicketStatus = "live"
	TicketStatusWon     TicketStatus = "won"
	TicketStatusLost    TicketStatus = "lost"
	TicketStatusVoid    TicketStatus = "void"
)

// ParlayLeg is a single pick within a parlay ticket.
type ParlayLeg struct {
	ID        string
	TicketID  string
	GameID    string
	Market    MarketType
	Pick      PickSide
	Line      *float64 // spread or total line; nil for moneyline
	Price     int      // American odds at issue
	Status    LegStatus
	SettledAt *time.Time
	CreatedAt time.Time
}

// Ticket is a parlay of legs. Its rollup status is always derived from
// the current leg statuses and never stored alongside them.
type Ticket struct {
	ID        string
	UserID    string
	Stake     float64
	Legs      []ParlayLeg
	CreatedAt time.Time
}
