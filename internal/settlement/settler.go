package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/courtsidelabs/parlayengine/internal/domain"
)

// Settler applies leg grading to persisted tickets.
type Settler struct {
	games   domain.GameStore
	tickets domain.TicketStore
	logger  *slog.Logger
	now     func() time.Time
}

// NewSettler constructs a Settler over the given stores.
func NewSettler(games domain.GameStore, tickets domain.TicketStore, logger *slog.Logger) *Settler {
	return &Settler{
		games:   games,
		tickets: tickets,
		logger:  logger.With(slog.String("component", "settlement")),
		now:     time.Now,
	}
}

// SettleLegsForGame grades every open leg that references gameID and
// persists the terminal outcomes. Games that are not yet final settle
// nothing. The operation is idempotent: settled legs never re-enter
// the open set, so repeated calls are safe.
func (s *Settler) SettleLegsForGame(ctx context.Context, gameID string) (int, error) {
	game, err := s.games.GetByID(ctx, gameID)
	if err != nil {
		return 0, fmt.Errorf("settlement: load game %s: %w", gameID, err)
	}
	if !game.Status.Final() {
		return 0, nil
	}

	legs, err := s.tickets.ListOpenLegsByGame(ctx, gameID)
	if err != nil {
		return 0, fmt.Errorf("settlement: list open legs for game %s: %w", gameID, err)
	}

	res := game.Result()
	settled := 0
	for _, leg := range legs {
		status := GradeLeg(leg, res)
		if !status.Terminal() {
			continue
		}
		if err := s.tickets.SettleLeg(ctx, leg.ID, status, s.now()); err != nil {
			return settled, fmt.Errorf("settlement: settle leg %s: %w", leg.ID, err)
		}
		settled++
		s.logger.InfoContext(ctx, "leg settled",
			slog.String("leg_id", leg.ID),
			slog.String("ticket_id", leg.TicketID),
			slog.String("game_id", gameID),
			slog.String("status", string(status)),
		)
	}
	return settled, nil
}
