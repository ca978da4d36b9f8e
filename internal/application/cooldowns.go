package application

import (
	"context"
	"fmt"
	"time"

	"github.com/bnema/botfleet/internal/domain"
	"github.com/bnema/botfleet/internal/ports"
)

// CooldownLedger enforces the per-user delay between two requests.
type CooldownLedger struct {
	store  ports.CooldownStore
	clock  ports.Clock
	window time.Duration
	exempt map[string]struct{}
}

func NewCooldownLedger(store ports.CooldownStore, clock ports.Clock, window time.Duration, exemptUsers []string) *CooldownLedger {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	exempt := make(map[string]struct{}, len(exemptUsers))
	for _, user := range exemptUsers {
		exempt[user] = struct{}{}
	}

	return &CooldownLedger{
		store:  store,
		clock:  clock,
		window: window,
		exempt: exempt,
	}
}

func (l *CooldownLedger) Window() time.Duration {
	return l.window
}

func (l *CooldownLedger) Exempt(userID string) bool {
	_, ok := l.exempt[userID]
	return ok
}

func (l *CooldownLedger) Get(ctx context.Context, userID string) (domain.Cooldown, error) {
	until, _, err := l.store.Get(ctx, userID)
	if err != nil {
		return domain.Cooldown{}, fmt.Errorf("get cooldown: %w", err)
	}

	remaining := until.Sub(l.clock.Now())
	if remaining < 0 {
		remaining = 0
	}

	return domain.Cooldown{UserID: userID, Until: until, Remaining: remaining}, nil
}

func (l *CooldownLedger) Set(ctx context.Context, userID string, until time.Time) error {
	if err := l.store.Set(ctx, userID, until); err != nil {
		return fmt.Errorf("set cooldown: %w", err)
	}
	return nil
}

// Start puts the user on cooldown until the window has elapsed after
// batchUntil. With a zero window the record is still written with now, so a
// previous future value never outlives an aborted request.
func (l *CooldownLedger) Start(ctx context.Context, userID string, batchUntil time.Time) error {
	if l.window <= 0 {
		return l.Set(ctx, userID, l.clock.Now())
	}
	return l.Set(ctx, userID, batchUntil.Add(l.window))
}

// Reset ends the cooldown of a user. The record is rewound rather than
// deleted.
func (l *CooldownLedger) Reset(ctx context.Context, userID string) (domain.Cooldown, error) {
	until := l.clock.Now().Add(-l.window)
	if err := l.Set(ctx, userID, until); err != nil {
		return domain.Cooldown{}, err
	}
	return domain.Cooldown{UserID: userID, Until: until}, nil
}

func (l *CooldownLedger) Check(ctx context.Context, userID string) error {
	if l.Exempt(userID) {
		return nil
	}

	cooldown, err := l.Get(ctx, userID)
	if err != nil {
		return err
	}
	if cooldown.Active() {
		return &CooldownError{Cooldown: cooldown}
	}

	return nil
}

// CooldownError reports when a user may submit again.
type CooldownError struct {
	Cooldown domain.Cooldown
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s: %s remaining", domain.ErrUserOnCooldown, e.Cooldown.Remaining.Round(time.Second))
}

func (e *CooldownError) Unwrap() error {
	return domain.ErrUserOnCooldown
}
