package application

import (
	"context"
	"fmt"
	"time"

	"github.com/bnema/botfleet/internal/domain"
	"github.com/bnema/botfleet/internal/ports"
	"github.com/rs/zerolog"
)

type tickDecision int

const (
	tickPerform tickDecision = iota
	tickSkip
	tickStop
)

// IterationScheduler drives one pass over a batch: one unit per tick, with
// RequestDelay between two performed units.
type IterationScheduler struct {
	accounts   ports.AccountRegistry
	history    ports.HistoryStore
	classifier *FailureClassifier
	observer   ports.Observer
	clock      ports.Clock
	delay      time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
	log        zerolog.Logger
}

type SchedulerOption func(*IterationScheduler)

func WithObserver(observer ports.Observer) SchedulerOption {
	return func(s *IterationScheduler) {
		if observer != nil {
			s.observer = observer
		}
	}
}

func WithSchedulerLogger(log zerolog.Logger) SchedulerOption {
	return func(s *IterationScheduler) { s.log = log }
}

func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) SchedulerOption {
	return func(s *IterationScheduler) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

func NewIterationScheduler(accounts ports.AccountRegistry, history ports.HistoryStore, classifier *FailureClassifier, clock ports.Clock, requestDelay time.Duration, opts ...SchedulerOption) *IterationScheduler {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	s := &IterationScheduler{
		accounts:   accounts,
		history:    history,
		classifier: classifier,
		observer:   ports.NopObserver{},
		clock:      clock,
		delay:      requestDelay,
		sleep:      sleepContext,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Run ticks until the pass is complete, the batch is aborted or the
// scheduler gives up on it. Cancelling ctx aborts the batch. Unit errors are
// recorded in the ledger and never returned.
func (s *IterationScheduler) Run(ctx context.Context, batch *domain.Batch, action domain.Action) error {
	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}
	roster := NewRoster(accounts)

	log := s.log.With().Str("batch_id", batch.ID()).Str("target", batch.Target().ID).Str("kind", batch.Kind().String()).Logger()

	performed, first := false, true
	for {
		snapshot := batch.Snapshot()
		if snapshot.CurrentIteration+1 >= snapshot.Amount {
			log.Debug().Int("amount", snapshot.Amount).Msg("pass complete")
			return nil
		}

		if performed && s.delay > 0 {
			if err := s.sleep(ctx, s.delay); err != nil {
				batch.Abort()
			}
		}
		if ctx.Err() != nil {
			batch.Abort()
		} else if !first {
			roster = s.refreshRoster(ctx, roster, log)
		}
		first = false

		decision, iteration, account := s.tick(batch, roster)
		performed = false

		switch decision {
		case tickStop:
			snapshot := batch.Snapshot()
			log.Info().Int("iteration", iteration).Str("status", string(snapshot.Status)).Msg("pass stopped")
			s.observer.OnTick(snapshot, ports.Tick{Iteration: iteration, Account: account.ID})
			return nil
		case tickSkip:
			log.Debug().Int("iteration", iteration).Str("account", string(account.ID)).Msg("unit skipped")
			s.observer.OnTick(batch.Snapshot(), ports.Tick{Iteration: iteration, Account: account.ID})
			continue
		}

		performed = true
		tick := ports.Tick{Iteration: iteration, Account: account.ID, Performed: true}

		if err := action(ctx, account, iteration); err != nil {
			cls := s.classifier.Record(batch, iteration, account, roster, err)
			tick.Cause = cls.Cause
			log.Warn().Err(err).
				Int("iteration", iteration).
				Str("account", string(account.ID)).
				Int("proxy", account.ProxyIndex).
				Str("cause", string(cls.Cause)).
				Msg("unit failed")
		} else {
			log.Debug().Int("iteration", iteration).Str("account", string(account.ID)).Msg("unit done")
			s.recordHistory(ctx, batch, account, log)
		}

		s.observer.OnTick(batch.Snapshot(), tick)
	}
}

// refreshRoster re-reads the accounts so that status changes made while the
// batch runs apply to the next tick. The previous roster is kept when the
// registry cannot be read.
func (s *IterationScheduler) refreshRoster(ctx context.Context, previous Roster, log zerolog.Logger) Roster {
	accounts, err := s.accounts.List(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("refresh accounts")
		return previous
	}
	return NewRoster(accounts)
}

// tick advances the batch by one iteration and applies the skip policy.
func (s *IterationScheduler) tick(batch *domain.Batch, roster Roster) (tickDecision, int, domain.Account) {
	decision := tickPerform
	var iteration int
	var account domain.Account

	batch.Update(func(state *domain.BatchState) {
		state.CurrentIteration++
		iteration = state.CurrentIteration

		id, ok := batch.AccountFor(iteration)
		found := false
		if ok {
			account, found = roster[id]
		}
		key := failureKey(iteration, account, found)

		switch {
		case !found:
			state.Failed[key] = domain.Failure{Cause: domain.CauseAccountMissing, Description: fmt.Sprintf("account %q is not in the roster", id)}
			decision = tickSkip
		case !account.Online():
			state.Failed[key] = domain.Failure{Cause: domain.CauseAccountOffline, Description: fmt.Sprintf("account is %s", account.Status)}
			decision = tickSkip
		case state.Status == domain.BatchAborted:
			backfillAborted(batch, state, roster, iteration)
			decision = tickStop
		case cascadingIPRateLimit(state, iteration):
			state.Status = domain.BatchError
			decision = tickStop
		default:
			if _, doomed := state.Failed[key]; doomed {
				decision = tickSkip
			}
		}
	})

	return decision, iteration, account
}

// cascadingIPRateLimit reports whether every iteration left in the pass,
// the current one included, already failed on a proxy rate limit. The last
// iteration is never considered a cascade.
//
// This checks the remaining iterations directly instead of comparing the
// count of rate-limit failures plus the current position with the amount.
// That count would also include rate-limit failures of iterations already
// passed, and could stop a pass that still has units on healthy proxies.
func cascadingIPRateLimit(state *domain.BatchState, iteration int) bool {
	if iteration >= state.Amount-1 {
		return false
	}

	limited := make(map[int]struct{}, len(state.Failed))
	for key, failure := range state.Failed {
		if failure.Cause == domain.CauseIPRateLimit {
			limited[key.Iteration] = struct{}{}
		}
	}

	for next := iteration; next < state.Amount; next++ {
		if _, ok := limited[next]; !ok {
			return false
		}
	}

	return true
}

// backfillAborted marks every iteration from "from" to the end of the pass as
// aborted.
func backfillAborted(batch *domain.Batch, state *domain.BatchState, roster Roster, from int) {
	for next := from; next < state.Amount; next++ {
		id, ok := batch.AccountFor(next)
		account, found := domain.Account{}, false
		if ok {
			account, found = roster[id]
		}
		state.Failed[failureKey(next, account, found)] = domain.Failure{Cause: domain.CauseAborted, Description: "request was aborted"}
	}
}

func (s *IterationScheduler) recordHistory(ctx context.Context, batch *domain.Batch, account domain.Account, log zerolog.Logger) {
	kind := batch.Kind()
	if s.history == nil || !kind.TracksHistory() {
		return
	}

	query := domain.HistoryQuery{
		TargetID:   batch.Target().ID,
		Family:     kind.Family,
		TargetType: kind.Target,
		AccountID:  account.ID,
	}

	if kind.Inverse {
		if _, err := s.history.Remove(ctx, query); err != nil {
			log.Error().Err(err).Str("account", string(account.ID)).Msg("remove interaction record")
		}
		return
	}

	record := domain.InteractionRecord{
		TargetID:   query.TargetID,
		Family:     query.Family,
		TargetType: query.TargetType,
		AccountID:  query.AccountID,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.history.Insert(ctx, record); err != nil {
		log.Error().Err(err).Str("account", string(account.ID)).Msg("insert interaction record")
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
