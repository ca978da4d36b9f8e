package toml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/bnema/botfleet/internal/ports"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	cooldownsPathKey = "cooldowns.path"
	cooldownsFile    = "cooldowns.toml"
)

// CooldownRepository persists user cooldowns next to the roster so they
// survive restarts of the CLI.
type CooldownRepository struct {
	path string
	mu   *sync.RWMutex
}

var _ ports.CooldownStore = (*CooldownRepository)(nil)

func NewCooldownRepository(cfg *viper.Viper) (*CooldownRepository, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	path, err := resolvePath(cfg.GetString(cooldownsPathKey), cooldownsFile)
	if err != nil {
		return nil, err
	}

	return &CooldownRepository{path: path, mu: lockForPath(path)}, nil
}

func (r *CooldownRepository) Get(ctx context.Context, userID string) (time.Time, bool, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return time.Time{}, false, err
	}

	for _, entry := range file.Cooldowns {
		if entry.UserID == userID {
			return parseTime(entry.Until), true, nil
		}
	}

	return time.Time{}, false, nil
}

func (r *CooldownRepository) Set(ctx context.Context, userID string, until time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.readSchema()
	if err != nil {
		return err
	}

	encoded := cooldownSchema{UserID: userID, Until: formatTime(until)}
	updated := false
	for i := range file.Cooldowns {
		if file.Cooldowns[i].UserID == userID {
			file.Cooldowns[i] = encoded
			updated = true
			break
		}
	}
	if !updated {
		file.Cooldowns = append(file.Cooldowns, encoded)
	}

	return writeTOMLFile(r.path, file)
}

func (r *CooldownRepository) readSchema() (cooldownsFileSchema, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cooldownsFileSchema{Version: currentCooldownsSchemaVersion}, nil
		}
		return cooldownsFileSchema{}, fmt.Errorf("read cooldowns file: %w", err)
	}

	var file cooldownsFileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return cooldownsFileSchema{}, fmt.Errorf("decode cooldowns file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return cooldownsFileSchema{}, err
	}
	file.applyDefaults()

	return file, nil
}
