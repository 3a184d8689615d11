package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/courtsidelabs/parlayengine/internal/domain"
)

// TicketStore implements domain.TicketStore using PostgreSQL.
type TicketStore struct {
	pool *pgxpool.Pool
}

// NewTicketStore creates a TicketStore backed by the given connection pool.
func NewTicketStore(pool *pgxpool.Pool) *TicketStore {
	return &TicketStore{pool: pool}
}

// Compile-time interface check.
var _ domain.TicketStore = (*TicketStore)(nil)

const legSelectCols = `id, ticket_id, game_id, market, pick, line, price, status,
	settled_at, created_at`

func scanLegFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.ParlayLeg, error) {
	var l domain.ParlayLeg
	var market, pick, status string

	err := scanner.Scan(
		&l.ID, &l.TicketID, &l.GameID,
		&market, &pick, &l.Line, &l.Price, &status,
		&l.SettledAt, &l.CreatedAt,
	)
	if err != nil {
		return domain.ParlayLeg{}, err
	}

	l.Market = domain.MarketType(market)
	l.Pick = domain.PickSide(pick)
	l.Status = domain.LegStatus(status)
	return l, nil
}

func scanLegRows(rows pgx.Rows) ([]domain.ParlayLeg, error) {
	var legs []domain.ParlayLeg
	for rows.Next() {
		l, err := scanLegFromRow(rows)
		if err != nil {
			return nil, err
		}
		legs = append(legs, l)
	}
	return legs, rows.Err()
}

// ListOpenLegsByGame returns all non-terminal legs referencing a game.
func (s *TicketStore) ListOpenLegsByGame(ctx context.Context, gameID string) ([]domain.ParlayLeg, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+legSelectCols+` FROM parlay_legs
		 WHERE game_id = $1 AND status IN ('pending', 'live')
		 ORDER BY created_at ASC`, gameID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open legs for game %s: %w", gameID, err)
	}
	defer rows.Close()

	legs, err := scanLegRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open legs for game %s: %w", gameID, err)
	}
	return legs, nil
}

// SettleLeg writes a terminal status and settlement timestamp for one
// leg. The status guard makes it idempotent: a leg already settled by
// an earlier sweep (or a concurrent daemon) is left untouched and no
// error is returned.
func (s *TicketStore) SettleLeg(ctx context.Context, legID string, status domain.LegStatus, settledAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE parlay_legs SET status = $1, settled_at = $2
		 WHERE id = $3 AND status IN ('pending', 'live')`,
		string(status), settledAt, legID)
	if err != nil {
		return fmt.Errorf("postgres: settle leg %s: %w", legID, err)
	}
	return nil
}

// ListSettledBefore returns tickets whose every leg is terminal and
// whose latest settlement happened before the given time, legs
// included, oldest ticket first.
func (s *TicketStore) ListSettledBefore(ctx context.Context, before time.Time) ([]domain.Ticket, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT t.id, t.user_id, t.stake, t.created_at
		 FROM tickets t
		 WHERE EXISTS (
		     SELECT 1 FROM parlay_legs l WHERE l.ticket_id = t.id
		 )
		 AND NOT EXISTS (
		     SELECT 1 FROM parlay_legs l
		     WHERE l.ticket_id = t.id AND l.status IN ('pending', 'live')
		 )
		 AND (
		     SELECT MAX(l.settled_at) FROM parlay_legs l WHERE l.ticket_id = t.id
		 ) < $1
		 ORDER BY t.created_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settled tickets: %w", err)
	}
	defer rows.Close()

	var tickets []domain.Ticket
	ids := []string{}
	for rows.Next() {
		var t domain.Ticket
		if err := rows.Scan(&t.ID, &t.UserID, &t.Stake, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan settled ticket: %w", err)
		}
		tickets = append(tickets, t)
		ids = append(ids, t.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: scan settled tickets: %w", err)
	}
	if len(tickets) == 0 {
		return nil, nil
	}

	legRows, err := s.pool.Query(ctx,
		`SELECT `+legSelectCols+` FROM parlay_legs
		 WHERE ticket_id = ANY($1)
		 ORDER BY created_at ASC`, ids)
	if err != nil {
		return nil, fmt.Errorf("postgres: list legs for settled tickets: %w", err)
	}
	defer legRows.Close()

	legs, err := scanLegRows(legRows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan legs for settled tickets: %w", err)
	}

	byTicket := make(map[string][]domain.ParlayLeg, len(tickets))
	for _, l := range legs {
		byTicket[l.TicketID] = append(byTicket[l.TicketID], l)
	}
	for i := range tickets {
		tickets[i].Legs = byTicket[tickets[i].ID]
	}
	return tickets, nil
}

// DeleteTicket removes a ticket and, via cascade, its legs. Used by the
// archiver after a ticket has been written to cold storage.
func (s *TicketStore) DeleteTicket(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tickets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete ticket %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
