package domain

import (
	"context"
	"time"
)

// GameStore persists the game book. UpsertGames is how feed refreshes
// land; absent scores or prices in an upsert never clobber values a
// previous refresh recorded.
type GameStore interface {
	GetByID(ctx context.Context, id string) (Game, error)
	ListUpcoming(ctx context.Context, within time.Duration) ([]Game, error)
	ListFinalSince(ctx context.Context, since time.Time) ([]Game, error)
	UpsertGames(ctx context.Context, games []Game) error
}

// TicketStore persists parlay legs and their settlement state.
type TicketStore interface {
	ListOpenLegsByGame(ctx context.Context, gameID string) ([]ParlayLeg, error)
	SettleLeg(ctx context.Context, legID string, status LegStatus, settledAt time.Time) error
	ListSettledBefore(ctx context.Context, before time.Time) ([]Ticket, error)
	DeleteTicket(ctx context.Context, id string) error
}
