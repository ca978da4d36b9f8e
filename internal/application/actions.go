package application

import (
	"context"
	"fmt"

	"github.com/bnema/botfleet/internal/domain"
	"github.com/bnema/botfleet/internal/ports"
)

// BindAction turns an interaction into the unit callback run by the
// scheduler.
func BindAction(platform ports.Platform, target domain.Target, interaction domain.Interaction) (domain.Action, error) {
	switch v := interaction.(type) {
	case domain.Comment:
		return func(ctx context.Context, account domain.Account, unit int) error {
			return platform.Comment(ctx, account, target, v.TextFor(unit))
		}, nil
	case domain.Vote:
		return func(ctx context.Context, account domain.Account, _ int) error {
			return platform.Vote(ctx, account, target, v.Direction)
		}, nil
	case domain.Favorite:
		return func(ctx context.Context, account domain.Account, _ int) error {
			return platform.Favorite(ctx, account, target, v.Remove)
		}, nil
	case domain.Follow:
		return func(ctx context.Context, account domain.Account, _ int) error {
			return platform.Follow(ctx, account, target, v.Remove)
		}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported interaction %T", domain.ErrInvalidInteraction, interaction)
	}
}
