package ports

import (
	"context"
	"time"
)

// CooldownStore persists the per-user "no new request before" timestamp.
// Get reports false when the user has no record.
type CooldownStore interface {
	Get(ctx context.Context, userID string) (time.Time, bool, error)
	Set(ctx context.Context, userID string, until time.Time) error
}
