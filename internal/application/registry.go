package application

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bnema/botfleet/internal/domain"
	"github.com/bnema/botfleet/internal/ports"
)

// Registry tracks the latest batch per target. A batch stays registered
// until its Until plus the account cooldown has passed, so the selector can
// keep its accounts reserved.
type Registry struct {
	mu      sync.Mutex
	clock   ports.Clock
	grace   time.Duration
	batches map[string]*domain.Batch
}

func NewRegistry(clock ports.Clock, accountCooldown time.Duration) *Registry {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &Registry{
		clock:   clock,
		grace:   accountCooldown,
		batches: map[string]*domain.Batch{},
	}
}

func (r *Registry) expired(batch *domain.Batch, now time.Time) bool {
	return now.After(batch.Until().Add(r.grace))
}

// TryRegister stores batch unless an active, unexpired batch already exists
// for the same target.
func (r *Registry) TryRegister(batch *domain.Batch) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	targetID := batch.Target().ID
	if existing, ok := r.batches[targetID]; ok {
		if existing.Status() == domain.BatchActive && !r.expired(existing, r.clock.Now()) {
			return false
		}
	}

	r.batches[targetID] = batch
	return true
}

// Remove drops batch if it is still the registered batch of its target.
func (r *Registry) Remove(batch *domain.Batch) {
	r.mu.Lock()
	defer r.mu.Unlock()

	targetID := batch.Target().ID
	if r.batches[targetID] == batch {
		delete(r.batches, targetID)
	}
}

func (r *Registry) Get(targetID string) (*domain.Batch, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	batch, ok := r.batches[targetID]
	return batch, ok
}

// Active returns the running batch of a target, if any.
func (r *Registry) Active(targetID string) (*domain.Batch, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	batch, ok := r.batches[targetID]
	if !ok || batch.Status() != domain.BatchActive || r.expired(batch, r.clock.Now()) {
		return nil, false
	}
	return batch, true
}

// List drops expired entries and returns the rest, oldest first.
func (r *Registry) List() []*domain.Batch {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	batches := make([]*domain.Batch, 0, len(r.batches))
	for targetID, batch := range r.batches {
		if batch.Status() != domain.BatchActive && r.expired(batch, now) {
			delete(r.batches, targetID)
			continue
		}
		batches = append(batches, batch)
	}

	sort.Slice(batches, func(i, j int) bool {
		return batches[i].CreatedAt().Before(batches[j].CreatedAt())
	})

	return batches
}

// Unexpired returns batches of a family whose accounts are still reserved,
// latest Until first.
func (r *Registry) Unexpired(family domain.Family) []*domain.Batch {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	batches := make([]*domain.Batch, 0, len(r.batches))
	for _, batch := range r.batches {
		if batch.Kind().Family != family || r.expired(batch, now) {
			continue
		}
		batches = append(batches, batch)
	}

	sort.SliceStable(batches, func(i, j int) bool {
		return batches[i].Until().After(batches[j].Until())
	})

	return batches
}

// Abort flags the active batch of a target as aborted. The scheduler notices
// on its next tick.
func (r *Registry) Abort(targetID string) (*domain.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	batch, ok := r.batches[targetID]
	if !ok || !batch.Abort() {
		return nil, fmt.Errorf("abort request for %s: %w", targetID, domain.ErrBatchNotFound)
	}

	return batch, nil
}
