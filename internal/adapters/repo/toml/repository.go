package toml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/bnema/botfleet/internal/domain"
	"github.com/bnema/botfleet/internal/ports"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	accountsPathKey = "accounts.path"
	accountsFile    = "accounts.toml"
)

// Repository stores the bot roster in a single TOML file.
type Repository struct {
	accountsPath string
	mu           *sync.RWMutex
}

var _ ports.AccountRepository = (*Repository)(nil)

func NewRepository(cfg *viper.Viper) (*Repository, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	accountsPath, err := resolvePath(cfg.GetString(accountsPathKey), accountsFile)
	if err != nil {
		return nil, err
	}

	return &Repository{accountsPath: accountsPath, mu: lockForPath(accountsPath)}, nil
}

func (r *Repository) Path() string {
	return r.accountsPath
}

func (r *Repository) Save(ctx context.Context, account domain.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.readSchema()
	if err != nil {
		return err
	}

	encoded := toSchema(account)
	updated := false
	for i := range file.Accounts {
		if file.Accounts[i].ID == encoded.ID {
			file.Accounts[i] = encoded
			updated = true
			continue
		}
		if file.Accounts[i].Index == encoded.Index {
			return fmt.Errorf("save account %s: index %d already used by %s", encoded.ID, encoded.Index, file.Accounts[i].ID)
		}
	}

	if !updated {
		file.Accounts = append(file.Accounts, encoded)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	file.applyDefaults()
	return writeTOMLFile(r.accountsPath, file)
}

func (r *Repository) GetByID(ctx context.Context, id domain.AccountID) (domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return domain.Account{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return domain.Account{}, err
	}

	for _, entry := range file.Accounts {
		if entry.ID == string(id) {
			return fromSchema(entry), nil
		}
	}

	return domain.Account{}, domain.ErrAccountNotFound
}

// List returns the roster ordered by index, optionally filtered by status.
func (r *Repository) List(ctx context.Context, statuses ...domain.AccountStatus) ([]domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return nil, err
	}

	accounts := make([]domain.Account, 0, len(file.Accounts))
	for _, entry := range file.Accounts {
		account := fromSchema(entry)
		if !matchesStatus(account.Status, statuses) {
			continue
		}
		accounts = append(accounts, account)
	}

	sort.SliceStable(accounts, func(i, j int) bool {
		return accounts[i].Index < accounts[j].Index
	})

	return accounts, nil
}

func matchesStatus(status domain.AccountStatus, statuses []domain.AccountStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, candidate := range statuses {
		if candidate == status {
			return true
		}
	}
	return false
}

func (r *Repository) readSchema() (fileSchema, error) {
	data, err := os.ReadFile(r.accountsPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileSchema{Version: currentSchemaVersion}, nil
		}
		return fileSchema{}, fmt.Errorf("read accounts file: %w", err)
	}

	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return fileSchema{}, fmt.Errorf("decode accounts file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return fileSchema{}, err
	}
	file.applyDefaults()

	return file, nil
}

func toSchema(account domain.Account) accountSchema {
	return accountSchema{
		ID:         string(account.ID),
		Index:      account.Index,
		Name:       account.Name,
		Status:     string(account.Status),
		Limited:    account.Limited,
		ProxyIndex: account.ProxyIndex,
		Auth: authSchema{
			Method:    string(account.Auth.Method),
			SecretRef: account.Auth.SecretRef,
		},
	}
}

func fromSchema(account accountSchema) domain.Account {
	status := domain.AccountStatus(account.Status)
	if !status.Valid() {
		status = domain.AccountError
	}

	return domain.Account{
		ID:         domain.AccountID(account.ID),
		Index:      account.Index,
		Name:       account.Name,
		Status:     status,
		Limited:    account.Limited,
		ProxyIndex: account.ProxyIndex,
		Auth: domain.Auth{
			Method:    domain.AuthMethod(account.Auth.Method),
			SecretRef: account.Auth.SecretRef,
		},
	}
}
