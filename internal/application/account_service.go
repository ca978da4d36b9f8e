package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bnema/botfleet/internal/domain"
	"github.com/bnema/botfleet/internal/ports"
)

type RegisterAccountCommand struct {
	ID         domain.AccountID
	Name       string
	ProxyIndex int
	Limited    bool
}

// AccountService manages the bot roster and account credentials.
type AccountService struct {
	repo  ports.AccountRepository
	store ports.SecretStore
}

func NewAccountService(repo ports.AccountRepository, store ports.SecretStore) *AccountService {
	return &AccountService{
		repo:  repo,
		store: store,
	}
}

// Register adds an offline account at the next free roster index.
func (s *AccountService) Register(ctx context.Context, cmd RegisterAccountCommand) (domain.Account, error) {
	if strings.TrimSpace(string(cmd.ID)) == "" {
		return domain.Account{}, errors.New("account id is required")
	}

	accounts, err := s.repo.List(ctx)
	if err != nil {
		return domain.Account{}, fmt.Errorf("list accounts: %w", err)
	}

	next := 0
	for _, account := range accounts {
		if account.ID == cmd.ID {
			return domain.Account{}, fmt.Errorf("%w: %s", domain.ErrAccountExists, cmd.ID)
		}
		if account.Index >= next {
			next = account.Index + 1
		}
	}

	account := domain.Account{
		ID:         cmd.ID,
		Index:      next,
		Name:       cmd.Name,
		Status:     domain.AccountOffline,
		Limited:    cmd.Limited,
		ProxyIndex: cmd.ProxyIndex,
	}
	if err := s.repo.Save(ctx, account); err != nil {
		return domain.Account{}, fmt.Errorf("save account: %w", err)
	}

	return account, nil
}

func (s *AccountService) List(ctx context.Context, statuses ...domain.AccountStatus) ([]domain.Account, error) {
	accounts, err := s.repo.List(ctx, statuses...)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

// SetAuth stores the secret first and only then points the account at it.
// The previous secret is deleted last; on failure the account is restored.
func (s *AccountService) SetAuth(ctx context.Context, id domain.AccountID, method domain.AuthMethod, secretKey, secretValue string) error {
	account, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get account by id: %w", err)
	}
	original := account
	previousRef := account.Auth.SecretRef

	if err := s.store.Put(ctx, secretKey, secretValue); err != nil {
		return fmt.Errorf("store auth secret: %w", err)
	}

	account.Auth = domain.Auth{Method: method, SecretRef: secretKey}

	if err := s.repo.Save(ctx, account); err != nil {
		if rollbackErr := s.store.Delete(ctx, secretKey); rollbackErr != nil {
			return fmt.Errorf("save account auth and rollback stored secret: %w", errors.Join(err, rollbackErr))
		}
		return fmt.Errorf("save account auth: %w", err)
	}

	if previousRef == "" || previousRef == secretKey {
		return nil
	}

	if err := s.store.Delete(ctx, previousRef); err != nil {
		var rollbackErr error
		if restoreErr := s.repo.Save(ctx, original); restoreErr != nil {
			rollbackErr = errors.Join(rollbackErr, restoreErr)
		}
		if newSecretDeleteErr := s.store.Delete(ctx, secretKey); newSecretDeleteErr != nil {
			rollbackErr = errors.Join(rollbackErr, newSecretDeleteErr)
		}
		if rollbackErr != nil {
			return fmt.Errorf("delete previous auth secret and rollback auth update: %w", errors.Join(err, rollbackErr))
		}
		return fmt.Errorf("delete previous auth secret: %w", err)
	}

	return nil
}

func (s *AccountService) RemoveAuth(ctx context.Context, id domain.AccountID) error {
	account, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get account by id: %w", err)
	}
	original := account
	secretRef := account.Auth.SecretRef

	account.Auth = domain.Auth{}
	if err := s.repo.Save(ctx, account); err != nil {
		return fmt.Errorf("save account auth: %w", err)
	}

	if secretRef == "" {
		return nil
	}

	if err := s.store.Delete(ctx, secretRef); err != nil {
		if restoreErr := s.repo.Save(ctx, original); restoreErr != nil {
			return fmt.Errorf("delete auth secret and restore account: %w", errors.Join(err, restoreErr))
		}
		return fmt.Errorf("delete auth secret: %w", err)
	}

	return nil
}

func (s *AccountService) SetStatus(ctx context.Context, id domain.AccountID, status domain.AccountStatus) error {
	if !status.Valid() {
		return fmt.Errorf("unknown account status %q", status)
	}

	return s.update(ctx, id, "status", func(account *domain.Account) {
		account.Status = status
	})
}

func (s *AccountService) SetLimited(ctx context.Context, id domain.AccountID, limited bool) error {
	return s.update(ctx, id, "limited flag", func(account *domain.Account) {
		account.Limited = limited
	})
}

func (s *AccountService) SetProxy(ctx context.Context, id domain.AccountID, proxyIndex int) error {
	if proxyIndex < 0 {
		return fmt.Errorf("proxy index must not be negative, got %d", proxyIndex)
	}

	return s.update(ctx, id, "proxy", func(account *domain.Account) {
		account.ProxyIndex = proxyIndex
	})
}

func (s *AccountService) SetAccountName(ctx context.Context, id domain.AccountID, name string) error {
	return s.update(ctx, id, "name", func(account *domain.Account) {
		account.Name = name
	})
}

func (s *AccountService) update(ctx context.Context, id domain.AccountID, field string, mutate func(*domain.Account)) error {
	account, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get account by id: %w", err)
	}

	mutate(&account)

	if err := s.repo.Save(ctx, account); err != nil {
		return fmt.Errorf("save account %s: %w", field, err)
	}

	return nil
}

// RosterSummary counts accounts per status.
type RosterSummary struct {
	Total    int
	ByStatus map[domain.AccountStatus]int
	Limited  int
	Proxies  int
}

func Summarize(accounts []domain.Account) RosterSummary {
	summary := RosterSummary{Total: len(accounts), ByStatus: map[domain.AccountStatus]int{}}
	proxies := map[int]struct{}{}
	for _, account := range accounts {
		summary.ByStatus[account.Status]++
		if account.Limited {
			summary.Limited++
		}
		proxies[account.ProxyIndex] = struct{}{}
	}
	summary.Proxies = len(proxies)
	return summary
}
