package sportsdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/courtsidelabs/parlayengine/internal/domain"
)

var (
	_ domain.StatsSource  = (*Client)(nil)
	_ domain.FormSource   = (*Client)(nil)
	_ domain.InjurySource = (*Client)(nil)
)

// TeamStats fetches a team's season-to-date statistics.
func (c *Client) TeamStats(ctx context.Context, team string) (domain.TeamStats, error) {
	path := "/teams/" + url.PathEscape(team) + "/stats"

	body, err := c.doGet(ctx, path)
	if err != nil {
		return domain.TeamStats{}, fmt.Errorf("sportsdata: team stats %q: %w", team, err)
	}

	var stats SeasonStats
	if err := json.Unmarshal(body, &stats); err != nil {
		return domain.TeamStats{}, fmt.Errorf("sportsdata: decode team stats: %w", err)
	}
	return stats.ToDomain(), nil
}

// RecentForm fetches a team's last games, most recent first.
func (c *Client) RecentForm(ctx context.Context, team string, games int) ([]domain.FormGame, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(games))
	path := "/teams/" + url.PathEscape(team) + "/games?" + params.Encode()

	body, err := c.doGet(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("sportsdata: recent form %q: %w", team, err)
	}

	var logs []GameLog
	if err := json.Unmarshal(body, &logs); err != nil {
		return nil, fmt.Errorf("sportsdata: decode recent form: %w", err)
	}

	form := make([]domain.FormGame, 0, len(logs))
	for _, l := range logs {
		form = append(form, l.ToDomain())
	}
	return form, nil
}

// InjuryReport fetches a team's current availability report.
func (c *Client) InjuryReport(ctx context.Context, team string) (domain.InjuryReport, error) {
	path := "/teams/" + url.PathEscape(team) + "/injuries"

	body, err := c.doGet(ctx, path)
	if err != nil {
		return domain.InjuryReport{}, fmt.Errorf("sportsdata: injury report %q: %w", team, err)
	}

	var injuries TeamInjuries
	if err := json.Unmarshal(body, &injuries); err != nil {
		return domain.InjuryReport{}, fmt.Errorf("sportsdata: decode injury report: %w", err)
	}
	return injuries.ToDomain(), nil
}
