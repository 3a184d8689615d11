package openweather

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtsidelabs/parlayengine/internal/domain"
)

func testClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(ClientConfig{BaseURL: srv.URL, APIKey: "weather-key"}, nil, logger)
}

func TestForecast(t *testing.T) {
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		io.WriteString(w, `{
			"main": {"temp": 4.5},
			"wind": {"speed": 5.0},
			"rain": {"1h": 1.2},
			"weather": [{"main": "Rain"}]
		}`)
	}))
	defer srv.Close()

	c := testClient(t, srv)
	kickoff := time.Now().Add(2 * time.Hour)
	rep, err := c.Forecast(context.Background(), "packers", kickoff)
	require.NoError(t, err)

	assert.Equal(t, []string{"packers"}, gotQuery["q"])
	assert.Equal(t, []string{"metric"}, gotQuery["units"])
	assert.Equal(t, []string{"weather-key"}, gotQuery["appid"])

	assert.Equal(t, "packers", rep.Team)
	assert.InDelta(t, 4.5, rep.TempC, 1e-9)
	assert.InDelta(t, 18.0, rep.WindKph, 1e-9)
	assert.InDelta(t, 1.2, rep.PrecipMM, 1e-9)
	assert.Equal(t, "Rain", rep.Condition)
	assert.False(t, rep.FetchedAt.IsZero())
}

func TestForecastClearConditions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"main": {"temp": 21.0}, "wind": {"speed": 1.5}, "weather": [{"main": "Clear"}]}`)
	}))
	defer srv.Close()

	c := testClient(t, srv)
	rep, err := c.Forecast(context.Background(), "lakers", time.Now())
	require.NoError(t, err)
	assert.Zero(t, rep.PrecipMM)
	assert.Equal(t, "Clear", rep.Condition)
}

func TestForecastUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"cod":401,"message":"Invalid API key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := testClient(t, srv)
	_, err := c.Forecast(context.Background(), "packers", time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}
