package ports

import (
	"context"

	"github.com/bnema/botfleet/internal/domain"
)

// Platform performs interactions on behalf of one account.
type Platform interface {
	Comment(ctx context.Context, account domain.Account, target domain.Target, text string) error
	Vote(ctx context.Context, account domain.Account, target domain.Target, direction domain.VoteDirection) error
	Favorite(ctx context.Context, account domain.Account, target domain.Target, remove bool) error
	Follow(ctx context.Context, account domain.Account, target domain.Target, remove bool) error
}

// RelationshipChecker reports whether an account has the prerequisite
// relationship (friendship, group membership) with a target.
type RelationshipChecker interface {
	Related(ctx context.Context, account domain.Account, target domain.Target) (bool, error)
}

// Resolver turns raw user input (id, vanity name, link) into a canonical
// target. expected may be empty when the caller does not know the type.
type Resolver interface {
	Resolve(ctx context.Context, raw string, expected domain.TargetType) (domain.Target, error)
}
