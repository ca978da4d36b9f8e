package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bnema/botfleet/internal/domain"
	"github.com/bnema/botfleet/internal/ports"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Request struct {
	User         string
	RawTarget    string
	ExpectedType domain.TargetType
	Interaction  domain.Interaction
	Amount       AmountSpec
	// Public overrides the visibility reported by the resolver when set.
	Public *bool
}

type RequestServiceConfig struct {
	MaxAmount    int
	RequestDelay time.Duration
}

type RequestServiceDeps struct {
	Accounts  ports.AccountRegistry
	Resolver  ports.Resolver
	Platform  ports.Platform
	Ledger    *CooldownLedger
	Registry  *Registry
	Selector  *AccountSelector
	Scheduler *IterationScheduler
	Retry     *RetryCoordinator
	Observer  ports.Observer
	Clock     ports.Clock
	Logger    zerolog.Logger
}

// RequestService admits user requests and runs each accepted batch in its
// own goroutine.
type RequestService struct {
	deps      RequestServiceDeps
	cfg       RequestServiceConfig
	admission sync.Mutex
	running   sync.WaitGroup
	newID     func() string
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewRequestService(deps RequestServiceDeps, cfg RequestServiceConfig) *RequestService {
	if deps.Clock == nil {
		deps.Clock = ports.SystemClock{}
	}
	if deps.Observer == nil {
		deps.Observer = ports.NopObserver{}
	}

	return &RequestService{
		deps:  deps,
		cfg:   cfg,
		newID: uuid.NewString,
		sleep: sleepContext,
	}
}

// Handle follows a submitted batch.
type Handle struct {
	batch   *domain.Batch
	done    chan struct{}
	outcome domain.Outcome
}

func (h *Handle) Batch() *domain.Batch {
	return h.batch
}

func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the batch produced its outcome or ctx is done.
func (h *Handle) Wait(ctx context.Context) (domain.Outcome, error) {
	select {
	case <-h.done:
		return h.outcome, nil
	case <-ctx.Done():
		return domain.Outcome{}, ctx.Err()
	}
}

// Submit validates and admits a request, then starts its batch. Cancelling
// ctx aborts the batch.
func (s *RequestService) Submit(ctx context.Context, req Request) (*Handle, error) {
	if err := s.validateAmount(req.Amount); err != nil {
		return nil, err
	}

	if err := s.deps.Ledger.Check(ctx, req.User); err != nil {
		return nil, err
	}

	target, err := s.resolve(ctx, req.RawTarget, req.ExpectedType)
	if err != nil {
		return nil, err
	}
	if req.Public != nil {
		target.Public = *req.Public
	}

	if err := domain.ValidateInteraction(req.Interaction, target.Type); err != nil {
		return nil, err
	}
	kind := domain.KindOf(req.Interaction, target.Type)

	if _, busy := s.deps.Registry.Active(target.ID); busy {
		return nil, fmt.Errorf("%w: %s", domain.ErrTargetBusy, target.ID)
	}

	action, err := BindAction(s.deps.Platform, target, req.Interaction)
	if err != nil {
		return nil, err
	}

	s.admission.Lock()
	defer s.admission.Unlock()

	// Concurrent submissions of one user all pass the first check while
	// resolving. Only the one admitted first under the lock may start.
	if err := s.deps.Ledger.Check(ctx, req.User); err != nil {
		return nil, err
	}

	selection, err := s.deps.Selector.Select(ctx, SelectionRequest{Amount: req.Amount, Target: target, Kind: kind})
	if err != nil {
		return nil, err
	}

	now := s.deps.Clock.Now()
	until := now.Add(time.Duration(selection.Amount) * s.cfg.RequestDelay)
	batch := domain.NewBatch(domain.BatchParams{
		ID:          s.newID(),
		Target:      target,
		Interaction: req.Interaction,
		Amount:      selection.Amount,
		Accounts:    selection.AccountIDs(),
		RequestedBy: req.User,
		Until:       until,
		CreatedAt:   now,
	})

	if !s.deps.Registry.TryRegister(batch) {
		return nil, fmt.Errorf("%w: %s", domain.ErrTargetBusy, target.ID)
	}

	if err := s.deps.Ledger.Start(ctx, req.User, until); err != nil {
		s.deps.Registry.Remove(batch)
		return nil, err
	}

	s.deps.Logger.Info().
		Str("batch_id", batch.ID()).
		Str("target", target.ID).
		Str("kind", kind.String()).
		Int("amount", selection.Amount).
		Int("accounts", len(selection.Eligible)).
		Str("user", req.User).
		Msg("request accepted")

	handle := &Handle{batch: batch, done: make(chan struct{})}
	s.running.Add(1)
	go func() {
		defer s.running.Done()
		s.run(ctx, handle, action)
	}()

	return handle, nil
}

func (s *RequestService) validateAmount(amount AmountSpec) error {
	if amount.All {
		return nil
	}
	if amount.N < 1 || (s.cfg.MaxAmount > 0 && amount.N > s.cfg.MaxAmount) {
		return fmt.Errorf("%w: %d is outside 1..%d", domain.ErrInvalidAmount, amount.N, s.cfg.MaxAmount)
	}
	return nil
}

func (s *RequestService) resolve(ctx context.Context, raw string, expected domain.TargetType) (domain.Target, error) {
	target, err := s.deps.Resolver.Resolve(ctx, raw, expected)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTarget) {
			return domain.Target{}, err
		}
		return domain.Target{}, fmt.Errorf("%w: %w", domain.ErrInvalidTarget, err)
	}
	if err := target.Validate(); err != nil {
		return domain.Target{}, err
	}
	return target, nil
}

// run drives the scheduler and the retry loop until the batch is final.
func (s *RequestService) run(ctx context.Context, handle *Handle, action domain.Action) {
	defer close(handle.done)

	batch := handle.batch
	log := s.deps.Logger.With().Str("batch_id", batch.ID()).Str("target", batch.Target().ID).Logger()
	cleanup := context.WithoutCancel(ctx)

	for {
		if err := s.deps.Scheduler.Run(ctx, batch, action); err != nil {
			log.Error().Err(err).Msg("scheduler failed")
			batch.Update(func(state *domain.BatchState) {
				if state.Status == domain.BatchActive {
					state.Status = domain.BatchError
				}
			})
			break
		}

		if !s.deps.Retry.ShouldRetry(batch.Snapshot()) {
			break
		}

		added, until := s.deps.Retry.Rearm(batch)
		if err := s.deps.Ledger.Start(cleanup, batch.RequestedBy(), until); err != nil {
			log.Error().Err(err).Msg("extend cooldown for retry")
		}
		log.Info().Int("units", added).Int("attempt", batch.Snapshot().RetryAttempt).Msg("retrying failed units")

		if err := s.sleep(ctx, s.deps.Retry.Delay()); err != nil {
			batch.Abort()
		}
		if batch.Status() == domain.BatchAborted {
			s.cancelRetry(cleanup, batch)
			break
		}
	}

	batch.Update(func(state *domain.BatchState) {
		if state.Status == domain.BatchActive {
			state.Status = domain.BatchCooldown
		}
	})

	snapshot := batch.Snapshot()
	if snapshot.Status == domain.BatchAborted {
		if err := s.deps.Ledger.Set(cleanup, batch.RequestedBy(), s.deps.Clock.Now()); err != nil {
			log.Error().Err(err).Msg("clear cooldown of aborted request")
		}
	} else if err := s.deps.Ledger.Start(cleanup, batch.RequestedBy(), snapshot.Until); err != nil {
		log.Error().Err(err).Msg("sync cooldown with request")
	}

	handle.outcome = snapshot.Outcome()
	log.Info().
		Str("status", string(handle.outcome.Status)).
		Int("succeeded", handle.outcome.Succeeded).
		Int("failed", handle.outcome.Failed).
		Msg("request finished")
	s.deps.Observer.OnFinish(handle.outcome)
}

func (s *RequestService) cancelRetry(ctx context.Context, batch *domain.Batch) {
	accounts, err := s.deps.Accounts.List(ctx)
	if err != nil {
		s.deps.Logger.Error().Err(err).Str("batch_id", batch.ID()).Msg("list accounts for aborted retry")
	}
	s.deps.Retry.Cancel(batch, NewRoster(accounts))
}

// Abort stops the active request on a target. Only the requester or an admin
// may abort.
func (s *RequestService) Abort(ctx context.Context, rawTarget, user string, admin bool) (*domain.Batch, error) {
	target, err := s.resolve(ctx, rawTarget, "")
	if err != nil {
		return nil, err
	}

	batch, ok := s.deps.Registry.Active(target.ID)
	if !ok {
		return nil, fmt.Errorf("abort request for %s: %w", target.ID, domain.ErrBatchNotFound)
	}
	if batch.RequestedBy() != user && !admin {
		return nil, fmt.Errorf("abort request for %s: %w", target.ID, domain.ErrNotRequestOwner)
	}

	return s.deps.Registry.Abort(target.ID)
}

// Drain blocks until every submitted batch has produced its outcome or ctx is
// done.
func (s *RequestService) Drain(ctx context.Context) error {
	drained := make(chan struct{})
	go func() {
		s.running.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *RequestService) Requests() []domain.BatchSnapshot {
	batches := s.deps.Registry.List()
	snapshots := make([]domain.BatchSnapshot, 0, len(batches))
	for _, batch := range batches {
		snapshots = append(snapshots, batch.Snapshot())
	}
	return snapshots
}

func (s *RequestService) Cooldown(ctx context.Context, user string) (domain.Cooldown, error) {
	return s.deps.Ledger.Get(ctx, user)
}

func (s *RequestService) ResetCooldown(ctx context.Context, user string) (domain.Cooldown, error) {
	return s.deps.Ledger.Reset(ctx, user)
}
