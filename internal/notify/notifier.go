// Package notify pushes operator alerts for the decision pipeline:
// health-state changes, settlement sweep results, and errors that need
// eyes. Alerts fan out to every configured channel and are filtered by
// event type so operators receive only what they asked for.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/courtsidelabs/parlayengine/internal/domain"
)

// Event classifies an alert for filtering.
type Event string

const (
	EventSafetyRed       Event = "safety_red"
	EventSafetyYellow    Event = "safety_yellow"
	EventSafetyRecovered Event = "safety_recovered"
	EventSettlementSweep Event = "settlement_sweep"
	EventError           Event = "error"
)

// Sender is one delivery channel.
type Sender interface {
	// Send delivers an alert with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns the channel identifier (e.g. "telegram").
	Name() string
}

// Notifier dispatches alerts to one or more Senders, filtered by an
// allowed-event set. An empty set allows everything.
type Notifier struct {
	senders []Sender
	events  map[Event]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders. Only
// events listed in events pass the filter; an empty list allows all.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[Event]bool, len(events))
	for _, e := range events {
		allowed[Event(strings.TrimSpace(e))] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify sends an alert to all senders if the event passes the filter.
func (n *Notifier) Notify(ctx context.Context, event Event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", string(event)))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// HealthChanged formats and sends an alert for a health-state
// transition. Degrading to RED, recovering from RED, and entering
// YELLOW map to their own event types.
func (n *Notifier) HealthChanged(ctx context.Context, tr domain.Transition) error {
	event := EventSafetyYellow
	switch {
	case tr.To == domain.HealthRed:
		event = EventSafetyRed
	case tr.From == domain.HealthRed:
		event = EventSafetyRecovered
	}

	title := fmt.Sprintf("Health: %s -> %s", tr.From, tr.To)
	body := "no reasons recorded"
	if len(tr.Reasons) > 0 {
		body = "- " + strings.Join(tr.Reasons, "\n- ")
	}
	return n.Notify(ctx, event, title, body)
}

// SettlementSweep sends a sweep result summary.
func (n *Notifier) SettlementSweep(ctx context.Context, games, settled, skipped, errs int, elapsed time.Duration) error {
	title := fmt.Sprintf("Settlement: %d legs settled", settled)
	body := fmt.Sprintf("games %d, skipped %d, errors %d, took %s", games, skipped, errs, elapsed.Round(time.Millisecond))
	return n.Notify(ctx, EventSettlementSweep, title, body)
}

// SystemError sends an error alert attributed to a component.
func (n *Notifier) SystemError(ctx context.Context, component string, err error) error {
	return n.Notify(ctx, EventError, "Error in "+component, err.Error())
}

// dispatch fans out to every sender, collecting failures so one broken
// channel does not silence the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "alert sent",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
