package domain

import (
	"context"
	"time"
)

// AuditEntry is one operational event worth keeping a paper trail for:
// an archive run, a health transition, a settlement anomaly.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditFilter narrows an audit listing.
type AuditFilter struct {
	Event string // empty matches all events
	Since time.Time
	Limit int
}

// AuditStore persists the operational audit trail.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}
