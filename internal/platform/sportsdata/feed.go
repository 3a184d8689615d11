package sportsdata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strconv"
	"time"

	"github.com/courtsidelabs/parlayengine/internal/domain"
)

var _ domain.GameFeed = (*Client)(nil)

// UpcomingGames fetches scheduled games commencing within horizon,
// carrying current moneyline prices where the provider quotes them.
func (c *Client) UpcomingGames(ctx context.Context, horizon time.Duration) ([]domain.Game, error) {
	hours := int(math.Ceil(horizon.Hours()))
	if hours < 1 {
		hours = 1
	}

	params := url.Values{}
	params.Set("hours", strconv.Itoa(hours))
	path := "/games/upcoming?" + params.Encode()

	body, err := c.doGet(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("sportsdata: upcoming games: %w", err)
	}
	return c.decodeGames(ctx, body)
}

// CompletedGames fetches games that went final since the given time,
// carrying final scores.
func (c *Client) CompletedGames(ctx context.Context, since time.Time) ([]domain.Game, error) {
	params := url.Values{}
	params.Set("since", since.UTC().Format(time.RFC3339))
	path := "/games/completed?" + params.Encode()

	body, err := c.doGet(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("sportsdata: completed games: %w", err)
	}
	return c.decodeGames(ctx, body)
}

// decodeGames parses a feed response, skipping entries without the
// fields a game record cannot do without.
func (c *Client) decodeGames(ctx context.Context, body []byte) ([]domain.Game, error) {
	var feed []FeedGame
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("sportsdata: decode games: %w", err)
	}

	games := make([]domain.Game, 0, len(feed))
	for _, fg := range feed {
		g := fg.ToDomain()
		if g.ID == "" || g.HomeTeam == "" || g.AwayTeam == "" || g.CommenceAt.IsZero() {
			c.logger.DebugContext(ctx, "skipping malformed feed entry",
				slog.String("game_id", fg.GameID))
			continue
		}
		games = append(games, g)
	}
	return games, nil
}
