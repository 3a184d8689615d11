// Package sportsdata is the REST client for the sports data provider:
// schedule and results feed, season stats, recent form, and injury
// reports. Every outbound call is metered against the shared telemetry
// budget and guarded by a token bucket and a circuit breaker.
package sportsdata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/courtsidelabs/parlayengine/internal/domain"
)

// breakerTrip is the consecutive-failure count that opens the circuit;
// breakerReset is how long it stays open before probing again.
const (
	breakerTrip  uint32 = 5
	breakerReset        = 30 * time.Second

	requestTimeout = 10 * time.Second
)

// ClientConfig holds the provider endpoint, credentials, and request
// budget.
type ClientConfig struct {
	BaseURL           string
	APIKey            string
	RequestsPerSecond float64
	Burst             int
}

// Client is the provider REST client. It implements the signal source
// interfaces and the game feed.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	telemetry  domain.TelemetryStore
	logger     *slog.Logger
}

// New creates a provider client. telemetry may be nil, in which case
// calls are not metered.
func New(cfg ClientConfig, telemetry domain.TelemetryStore, logger *slog.Logger) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	st := gobreaker.Settings{
		Name:    "sportsdata",
		Timeout: breakerReset,
	}
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= breakerTrip
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: requestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		breaker:    gobreaker.NewCircuitBreaker(st),
		telemetry:  telemetry,
		logger:     logger.With(slog.String("component", "sportsdata")),
	}
}

// doGet runs one GET through the limiter and breaker and returns the
// response body. An open breaker fails fast as ErrSourceUnavailable
// without spending an API call.
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
	if c.apiKey != "" {
		req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)
	}

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

// countFailure meters a provider-side failure. Cancellation by the
// caller is not a provider failure and is not counted.
func (c *Client) countFailure(ctx context.Context) {
	if c.telemetry == nil || ctx.Err() != nil {
		return
	}
	if err := c.telemetry.Incr(ctx, domain.CounterAPIFail30m); err != nil {
		c.logger.DebugContext(ctx, "telemetry incr failed", slog.Any("error", err))
	}
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
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
