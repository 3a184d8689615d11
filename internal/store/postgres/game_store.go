package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/courtsidelabs/parlayengine/internal/domain"
)

// GameStore implements domain.GameStore using PostgreSQL.
type GameStore struct {
	pool *pgxpool.Pool
}

// NewGameStore creates a GameStore backed by the given connection pool.
func NewGameStore(pool *pgxpool.Pool) *GameStore {
	return &GameStore{pool: pool}
}

// Compile-time interface check.
var _ domain.GameStore = (*GameStore)(nil)

const gameSelectCols = `id, sport, league, home_team, away_team, commence_at, status,
	home_score, away_score, home_price, away_price, updated_at`

func scanGameFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.Game, error) {
	var g domain.Game
	var sport, status string

	err := scanner.Scan(
		&g.ID, &sport, &g.League, &g.HomeTeam, &g.AwayTeam,
		&g.CommenceAt, &status,
		&g.HomeScore, &g.AwayScore, &g.HomePrice, &g.AwayPrice,
		&g.UpdatedAt,
	)
	if err != nil {
		return domain.Game{}, err
	}

	g.Sport = domain.Sport(sport)
	g.Status = domain.GameStatus(status)
	return g, nil
}

func scanGameRows(rows pgx.Rows) ([]domain.Game, error) {
	var games []domain.Game
	for rows.Next() {
		g, err := scanGameFromRow(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

// GetByID retrieves a single game by ID.
func (s *GameStore) GetByID(ctx context.Context, id string) (domain.Game, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+gameSelectCols+` FROM games WHERE id = $1`, id)

	g, err := scanGameFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Game{}, domain.ErrNotFound
		}
		return domain.Game{}, fmt.Errorf("postgres: get game %s: %w", id, err)
	}
	return g, nil
}

// ListUpcoming returns scheduled games commencing within the given
// duration from now, soonest first.
func (s *GameStore) ListUpcoming(ctx context.Context, within time.Duration) ([]domain.Game, error) {
	now := time.Now()
	rows, err := s.pool.Query(ctx,
		`SELECT `+gameSelectCols+` FROM games
		 WHERE status = 'scheduled' AND commence_at > $1 AND commence_at <= $2
		 ORDER BY commence_at ASC`, now, now.Add(within))
	if err != nil {
		return nil, fmt.Errorf("postgres: list upcoming games: %w", err)
	}
	defer rows.Close()

	games, err := scanGameRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan upcoming games: %w", err)
	}
	return games, nil
}

// ListFinalSince returns games marked final whose record was updated at
// or after the given time, oldest update first.
func (s *GameStore) ListFinalSince(ctx context.Context, since time.Time) ([]domain.Game, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+gameSelectCols+` FROM games
		 WHERE status = 'final' AND updated_at >= $1
		 ORDER BY updated_at ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: list final games: %w", err)
	}
	defer rows.Close()

	games, err := scanGameRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan final games: %w", err)
	}
	return games, nil
}

// UpsertGames inserts or refreshes a batch of games in one transaction.
// Scores and prices absent from the incoming row never overwrite values
// a previous refresh recorded: the schedule feed carries no scores and
// the results feed may carry no prices.
func (s *GameStore) UpsertGames(ctx context.Context, games []domain.Game) error {
	if len(games) == 0 {
		return nil
	}

	const query = `
		INSERT INTO games (
			id, sport, league, home_team, away_team, commence_at, status,
			home_score, away_score, home_price, away_price, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			sport       = EXCLUDED.sport,
			league      = EXCLUDED.league,
			home_team   = EXCLUDED.home_team,
			away_team   = EXCLUDED.away_team,
			commence_at = EXCLUDED.commence_at,
			status      = EXCLUDED.status,
			home_score  = COALESCE(EXCLUDED.home_score, games.home_score),
			away_score  = COALESCE(EXCLUDED.away_score, games.away_score),
			home_price  = COALESCE(EXCLUDED.home_price, games.home_price),
			away_price  = COALESCE(EXCLUDED.away_price, games.away_price),
			updated_at  = NOW()`

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin upsert games: %w", err)
	}

	for _, g := range games {
		_, err := tx.Exec(ctx, query,
			g.ID, string(g.Sport), g.League, g.HomeTeam, g.AwayTeam,
			g.CommenceAt, string(g.Status),
			g.HomeScore, g.AwayScore, g.HomePrice, g.AwayPrice,
		)
		if err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("postgres: upsert game %s: %w", g.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit upsert games: %w", err)
	}
	return nil
}
