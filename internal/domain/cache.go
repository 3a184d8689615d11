package domain

import (
	"context"
	"time"
)

// LockManager provides distributed locking so only one process runs a
// settlement sweep at a time.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
