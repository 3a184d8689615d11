package notify

import (
	"context"
	"encoding/json"
	"errors"
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

type fakeSender struct {
	name     string
	titles   []string
	messages []string
	err      error
}

func (f *fakeSender) Send(_ context.Context, title, message string) error {
	if f.err != nil {
		return f.err
	}
	f.titles = append(f.titles, title)
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeSender) Name() string { return f.name }

func testNotifier(events []string, senders ...Sender) *Notifier {
	return NewNotifier(senders, events, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestNotifyFiltersEvents(t *testing.T) {
	sender := &fakeSender{name: "fake"}
	n := testNotifier([]string{"safety_red"}, sender)

	require.NoError(t, n.Notify(context.Background(), EventSafetyRed, "alert", "down"))
	require.NoError(t, n.Notify(context.Background(), EventSettlementSweep, "sweep", "done"))

	require.Len(t, sender.titles, 1)
	assert.Equal(t, "alert", sender.titles[0])
}

func TestNotifyEmptyFilterAllowsAll(t *testing.T) {
	sender := &fakeSender{name: "fake"}
	n := testNotifier(nil, sender)

	require.NoError(t, n.Notify(context.Background(), EventError, "oops", "broke"))
	assert.Len(t, sender.titles, 1)
}

func TestDispatchContinuesPastFailedSender(t *testing.T) {
	broken := &fakeSender{name: "broken", err: errors.New("webhook gone")}
	working := &fakeSender{name: "working"}
	n := testNotifier(nil, broken, working)

	err := n.Notify(context.Background(), EventError, "oops", "broke")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Len(t, working.titles, 1)
}

func TestHealthChangedEventSelection(t *testing.T) {
	cases := []struct {
		from, to domain.HealthState
		allowed  Event
		sent     bool
	}{
		{domain.HealthGreen, domain.HealthRed, EventSafetyRed, true},
		{domain.HealthRed, domain.HealthGreen, EventSafetyRecovered, true},
		{domain.HealthGreen, domain.HealthYellow, EventSafetyYellow, true},
		{domain.HealthGreen, domain.HealthRed, EventSafetyRecovered, false},
	}

	for _, tc := range cases {
		sender := &fakeSender{name: "fake"}
		n := testNotifier([]string{string(tc.allowed)}, sender)

		err := n.HealthChanged(context.Background(), domain.Transition{
			From:    tc.from,
			To:      tc.to,
			Reasons: []string{"error burst: 6 errors in 5m"},
			At:      time.Now(),
		})
		require.NoError(t, err)

		if tc.sent {
			require.Len(t, sender.titles, 1, "%s -> %s", tc.from, tc.to)
			assert.Contains(t, sender.titles[0], string(tc.to))
			assert.Contains(t, sender.messages[0], "error burst")
		} else {
			assert.Empty(t, sender.titles)
		}
	}
}

func TestSettlementSweepMessage(t *testing.T) {
	sender := &fakeSender{name: "fake"}
	n := testNotifier(nil, sender)

	require.NoError(t, n.SettlementSweep(context.Background(), 3, 7, 1, 0, 420*time.Millisecond))

	require.Len(t, sender.titles, 1)
	assert.Equal(t, "Settlement: 7 legs settled", sender.titles[0])
	assert.Contains(t, sender.messages[0], "games 3")
	assert.Contains(t, sender.messages[0], "skipped 1")
}

func TestTelegramSender(t *testing.T) {
	var gotPath string
	var payload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&payload)
		io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	sender := NewTelegramSender("bot-token", "chat-42")
	sender.api = srv.URL

	require.NoError(t, sender.Send(context.Background(), "Health: GREEN -> RED", "error burst"))
	assert.Equal(t, "/botbot-token/sendMessage", gotPath)
	assert.Equal(t, "chat-42", payload["chat_id"])
	assert.Contains(t, payload["text"], "*Health: GREEN -> RED*")
}

func TestDiscordSenderRejectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Invalid Webhook Token"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	sender := NewDiscordSender(srv.URL)
	err := sender.Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
