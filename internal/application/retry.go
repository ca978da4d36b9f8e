package application

import (
	"time"

	"github.com/bnema/botfleet/internal/domain"
)

type RetryPolicy struct {
	Enabled      bool
	MaxAttempts  int
	Delay        time.Duration
	RequestDelay time.Duration
}

// RetryCoordinator re-arms a finished pass so that only its failed units run
// again.
type RetryCoordinator struct {
	policy RetryPolicy
}

func NewRetryCoordinator(policy RetryPolicy) *RetryCoordinator {
	return &RetryCoordinator{policy: policy}
}

func (r *RetryCoordinator) Delay() time.Duration {
	return r.policy.Delay
}

func (r *RetryCoordinator) ShouldRetry(snapshot domain.BatchSnapshot) bool {
	return r.policy.Enabled &&
		len(snapshot.Failures) > 0 &&
		snapshot.Status != domain.BatchAborted &&
		snapshot.RetryAttempt < r.policy.MaxAttempts
}

// Rearm appends one unit per failed iteration to the batch and returns the
// number of added units and the new Until.
func (r *RetryCoordinator) Rearm(batch *domain.Batch) (int, time.Time) {
	var added int
	var until time.Time

	batch.Update(func(s *domain.BatchState) {
		added = s.FailedIterations()
		previous := s.Amount

		s.AmountBeforeRetry = previous
		s.Amount = previous + added
		s.Until = s.Until.Add(time.Duration(added)*r.policy.RequestDelay + r.policy.Delay)
		s.Failed = map[domain.FailureKey]domain.Failure{}
		s.CurrentIteration = previous - 1
		s.RetryAttempt++
		s.Status = domain.BatchActive

		until = s.Until
	})

	return added, until
}

// Cancel closes a re-armed pass that was aborted before it started.
func (r *RetryCoordinator) Cancel(batch *domain.Batch, roster Roster) {
	batch.Update(func(s *domain.BatchState) {
		s.Status = domain.BatchAborted
		backfillAborted(batch, s, roster, s.CurrentIteration+1)
	})
}
