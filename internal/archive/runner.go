// Package archive schedules cold-storage archival of settled tickets.
// A cron-style runner fires the blob archiver against an age cutoff,
// behind a distributed lock so one daemon archives at a time.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/courtsidelabs/parlayengine/internal/domain"
)

// lockTTL bounds how long a crashed run can hold the archive lock.
const lockTTL = 10 * time.Minute

// Runner drives periodic archive passes.
type Runner struct {
	archiver domain.Archiver
	locks    domain.LockManager
	after    time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewRunner creates a Runner archiving tickets whose settlement is
// older than after. locks may be nil for single-instance deploys.
func NewRunner(archiver domain.Archiver, locks domain.LockManager, after time.Duration, logger *slog.Logger) *Runner {
	return &Runner{
		archiver: archiver,
		locks:    locks,
		after:    after,
		logger:   logger.With(slog.String("component", "archive")),
		now:      time.Now,
	}
}

// Run executes a single archive pass. Held locks skip the pass quietly;
// another instance is on it.
func (r *Runner) Run(ctx context.Context) error {
	if r.locks != nil {
		unlock, err := r.locks.Acquire(ctx, "archive", lockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			r.logger.InfoContext(ctx, "archive lock held elsewhere, skipping run")
			return nil
		}
		if err != nil {
			return fmt.Errorf("archive: acquire lock: %w", err)
		}
		defer unlock()
	}

	cutoff := r.now().UTC().Add(-r.after)
	r.logger.InfoContext(ctx, "starting archive run", slog.Time("cutoff", cutoff))

	archived, err := r.archiver.ArchiveSettledTickets(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive: tickets before %v: %w", cutoff, err)
	}

	r.logger.InfoContext(ctx, "archive run complete", slog.Int64("tickets_archived", archived))
	return nil
}

// RunCron runs archive passes on a cron schedule until the context is
// cancelled. Expressions use the standard 5-field format:
// "minute hour day-of-month month day-of-week".
//
// Example: "30 4 * * *" runs daily at 04:30 UTC.
func (r *Runner) RunCron(ctx context.Context, cronExpr string) error {
	r.logger.InfoContext(ctx, "archive cron started", slog.String("cron", cronExpr))

	for {
		next, err := nextCronTime(cronExpr, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("archive: parsing cron expression %q: %w", cronExpr, err)
		}

		wait := time.Until(next)
		r.logger.InfoContext(ctx, "archive waiting for next cron trigger",
			slog.Time("next_run", next),
			slog.Duration("wait", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			r.logger.InfoContext(ctx, "archive cron stopped")
			return ctx.Err()
		case <-timer.C:
			if err := r.Run(ctx); err != nil {
				r.logger.ErrorContext(ctx, "archive run failed", slog.Any("error", err))
			}
		}
	}
}

// cronField is a parsed cron field that can match against a value.
type cronField struct {
	wildcard bool
	values   []int
}

func (f cronField) matches(val int) bool {
	if f.wildcard {
		return true
	}
	for _, v := range f.values {
		if v == val {
			return true
		}
	}
	return false
}

// parseCronField parses a single cron field (e.g. "0", "*", "1,15").
func parseCronField(field string) (cronField, error) {
	if field == "*" {
		return cronField{wildcard: true}, nil
	}

	parts := strings.Split(field, ",")
	values := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return cronField{}, fmt.Errorf("invalid cron field value %q: %w", p, err)
		}
		values = append(values, v)
	}
	return cronField{values: values}, nil
}

// parsedCron holds five parsed cron fields.
type parsedCron struct {
	minute     cronField
	hour       cronField
	dayOfMonth cronField
	month      cronField
	dayOfWeek  cronField
}

func (c parsedCron) matchesTime(t time.Time) bool {
	return c.minute.matches(t.Minute()) &&
		c.hour.matches(t.Hour()) &&
		c.dayOfMonth.matches(t.Day()) &&
		c.month.matches(int(t.Month())) &&
		c.dayOfWeek.matches(int(t.Weekday()))
}

// parseCron parses a 5-field cron expression.
func parseCron(expr string) (parsedCron, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return parsedCron{}, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}

	minute, err := parseCronField(fields[0])
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing minute field: %w", err)
	}
	hour, err := parseCronField(fields[1])
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing hour field: %w", err)
	}
	dayOfMonth, err := parseCronField(fields[2])
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing day-of-month field: %w", err)
	}
	month, err := parseCronField(fields[3])
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing month field: %w", err)
	}
	dayOfWeek, err := parseCronField(fields[4])
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing day-of-week field: %w", err)
	}

	return parsedCron{
		minute:     minute,
		hour:       hour,
		dayOfMonth: dayOfMonth,
		month:      month,
		dayOfWeek:  dayOfWeek,
	}, nil
}

// nextCronTime finds the next time after 'after' matching the cron
// expression, searching minute-by-minute up to one year ahead.
func nextCronTime(cronExpr string, after time.Time) (time.Time, error) {
	cron, err := parseCron(cronExpr)
	if err != nil {
		return time.Time{}, err
	}

	candidate := after.Truncate(time.Minute).Add(time.Minute)
	limit := after.Add(366 * 24 * time.Hour)

	for candidate.Before(limit) {
		if cron.matchesTime(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}

	return time.Time{}, fmt.Errorf("no matching cron time found within one year for %q", cronExpr)
}
