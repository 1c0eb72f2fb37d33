package lock

import (
	"context"
	"time"
)

// Lock is an advisory mutual-exclusion record. It is held while
// ExpiresAt is after now; a released lock has ExpiresAt at the epoch.
type Lock struct {
	Key       string    `json:"key"`
	Owner     string    `json:"owner,omitempty"`
	LockedAt  time.Time `json:"locked_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (l Lock) Held(now time.Time) bool {
	return l.ExpiresAt.After(now)
}

// ILocker acquires and releases named locks. Acquire returns false without
// error when the lock is currently held by someone else.
type ILocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}
