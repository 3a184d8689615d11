package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrRateLimited       = errors.New("rate limited")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrSourceUnavailable = errors.New("signal source unavailable")
	ErrLockHeld          = errors.New("lock already held")
)

// GenerationBlockedError is returned when the safety gate refuses pick
// generation. It carries the reasons and the telemetry snapshot behind
// the decision so callers can log or surface them.
type GenerationBlockedError struct {
	State    HealthState
	Reasons  []string
	Snapshot TelemetrySnapshot
}

func (e *GenerationBlockedError) Error() string {
	return fmt.Sprintf("generation blocked: state %s: %s", e.State, strings.Join(e.Reasons, "; "))
}

// BlockedBySafety reports whether err is a safety-gate refusal.
func BlockedBySafety(err error) bool {
	var blocked *GenerationBlockedError
	return errors.As(err, &blocked)
}
