// Package openweather fetches venue weather for outdoor games. Only
// current conditions are pulled; games inside the advisory horizon
// start soon enough for that to stand in for a kickoff forecast.
package openweather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/courtsidelabs/parlayengine/internal/domain"
)

const (
	breakerTrip  uint32 = 5
	breakerReset        = 30 * time.Second

	requestTimeout = 10 * time.Second

	// The free tier allows 60 calls/min; stay well under it.
	requestsPerSecond = 0.5
	burst             = 2
)

// ClientConfig holds the weather endpoint and credentials.
type ClientConfig struct {
	BaseURL string
	APIKey  string
}

// Client is the weather provider client. It implements
// domain.WeatherSource.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	telemetry  domain.TelemetryStore
	logger     *slog.Logger
}

var _ domain.WeatherSource = (*Client)(nil)

// New creates a weather client. telemetry may be nil, in which case
// calls are not metered.
func New(cfg ClientConfig, telemetry domain.TelemetryStore, logger *slog.Logger) *Client {
	st := gobreaker.Settings{
		Name:    "openweather",
		Timeout: breakerReset,
	}
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= breakerTrip
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: requestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		breaker:    gobreaker.NewCircuitBreaker(st),
		telemetry:  telemetry,
		logger:     logger.With(slog.String("component", "openweather")),
	}
}

// currentConditions is the provider's current-weather response. Wind
// speed arrives in m/s, rain in mm over the trailing hour.
type currentConditions struct {
	Main struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Rain struct {
		OneHour float64 `json:"1h"`
	} `json:"rain"`
	Weather []struct {
		Main string `json:"main"`
	} `json:"weather"`
}

// Forecast fetches current conditions at the home team's venue. The
// kickoff time is accepted for interface compatibility; the current-
// conditions endpoint has no forecast parameter.
func (c *Client) Forecast(ctx context.Context, team string, kickoff time.Time) (domain.WeatherReport, error) {
	params := url.Values{}
	params.Set("q", team)
	params.Set("units", "metric")
	if c.apiKey != "" {
		params.Set("appid", c.apiKey)
	}

	body, err := c.doGet(ctx, "/weather?"+params.Encode())
	if err != nil {
		return domain.WeatherReport{}, fmt.Errorf("openweather: forecast %q: %w", team, err)
	}

	var cur currentConditions
	if err := json.Unmarshal(body, &cur); err != nil {
		return domain.WeatherReport{}, fmt.Errorf("openweather: decode forecast: %w", err)
	}

	condition := ""
	if len(cur.Weather) > 0 {
		condition = cur.Weather[0].Main
	}

	return domain.WeatherReport{
		Team:      team,
		TempC:     cur.Main.Temp,
		WindKph:   cur.Wind.Speed * 3.6,
		PrecipMM:  cur.Rain.OneHour,
		Condition: condition,
		FetchedAt: time.Now().UTC(),
	}, nil
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate wait: %w", err)
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.get(ctx, path)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: circuit open", domain.ErrSourceUnavailable)
		}
		return nil, err
	}
	return out.([]byte), nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	c.countCall(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.countFailure(ctx)
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.countFailure(ctx)
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		c.countFailure(ctx)
		return nil, err
	}

	return body, nil
}

func (c *Client) countCall(ctx context.Context) {
	if c.telemetry == nil {
		return
	}
	if err := c.telemetry.Incr(ctx, domain.CounterAPICallsToday); err != nil {
		c.logger.DebugContext(ctx, "telemetry incr failed", slog.Any("error", err))
	}
}

func (c *Client) countFailure(ctx context.Context) {
	if c.telemetry == nil || ctx.Err() != nil {
		return
	}
	if err := c.telemetry.Incr(ctx, domain.CounterAPIFail30m); err != nil {
		c.logger.DebugContext(ctx, "telemetry incr failed", slog.Any("error", err))
	}
}

func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch {
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	case statusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrSourceUnavailable, statusCode, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
