package ports

import (
	"context"

	"github.com/bnema/botfleet/internal/domain"
)

// AccountRegistry is the read side of the bot roster. List returns every
// account when no status filter is given.
type AccountRegistry interface {
	GetByID(ctx context.Context, id domain.AccountID) (domain.Account, error)
	List(ctx context.Context, statuses ...domain.AccountStatus) ([]domain.Account, error)
}

type AccountRepository interface {
	AccountRegistry
	Save(ctx context.Context, account domain.Account) error
}
