// Package memory keeps user cooldowns for the lifetime of the process.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/bnema/botfleet/internal/ports"
)

var _ ports.CooldownStore = (*Store)(nil)

type Store struct {
	mu    sync.RWMutex
	until map[string]time.Time
}

func NewStore() *Store {
	return &Store{until: map[string]time.Time{}}
}

func (s *Store) Get(_ context.Context, userID string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	until, ok := s.until[userID]
	return until, ok, nil
}

func (s *Store) Set(_ context.Context, userID string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.until[userID] = until
	return nil
}
