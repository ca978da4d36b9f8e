package application

import (
	"testing"
	"time"

	"github.com/bnema/botfleet/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestRetryCoordinatorShouldRetry(t *testing.T) {
	t.Parallel()

	failed := []domain.FailureEntry{{Key: domain.FailureKey{Iteration: 1}}}

	tests := []struct {
		name     string
		policy   RetryPolicy
		snapshot domain.BatchSnapshot
		want     bool
	}{
		{name: "failures left", policy: RetryPolicy{Enabled: true, MaxAttempts: 2}, snapshot: domain.BatchSnapshot{Status: domain.BatchActive, Failures: failed}, want: true},
		{name: "disabled", policy: RetryPolicy{MaxAttempts: 2}, snapshot: domain.BatchSnapshot{Status: domain.BatchActive, Failures: failed}},
		{name: "no failures", policy: RetryPolicy{Enabled: true, MaxAttempts: 2}, snapshot: domain.BatchSnapshot{Status: domain.BatchActive}},
		{name: "aborted", policy: RetryPolicy{Enabled: true, MaxAttempts: 2}, snapshot: domain.BatchSnapshot{Status: domain.BatchAborted, Failures: failed}},
		{name: "error status retries", policy: RetryPolicy{Enabled: true, MaxAttempts: 2}, snapshot: domain.BatchSnapshot{Status: domain.BatchError, Failures: failed}, want: true},
		{name: "attempts exhausted", policy: RetryPolicy{Enabled: true, MaxAttempts: 2}, snapshot: domain.BatchSnapshot{Status: domain.BatchActive, Failures: failed, RetryAttempt: 2}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, NewRetryCoordinator(tc.policy).ShouldRetry(tc.snapshot))
		})
	}
}

func TestRetryCoordinatorRearmAppendsFailedUnits(t *testing.T) {
	t.Parallel()

	pool := onlineAccounts(5, ownProxy)
	batch := newTestBatch(fileTarget, domain.Favorite{}, 5, pool, testNow)
	batch.Update(func(s *domain.BatchState) {
		s.CurrentIteration = 4
		s.Status = domain.BatchError
		s.IPCooldownPenaltyAdded = true
		s.Failed[domain.FailureKey{Iteration: 1, AccountIndex: 1, ProxyIndex: 1}] = domain.Failure{Cause: domain.CauseUnknown}
		s.Failed[domain.FailureKey{Iteration: 3, AccountIndex: 3, ProxyIndex: 3}] = domain.Failure{Cause: domain.CauseUnknown}
		s.Failed[domain.FailureKey{Iteration: 3, AccountIndex: domain.UnknownIndex, ProxyIndex: domain.UnknownIndex}] = domain.Failure{Cause: domain.CauseUnknown}
	})

	coordinator := NewRetryCoordinator(RetryPolicy{Enabled: true, MaxAttempts: 2, Delay: time.Minute, RequestDelay: 5 * time.Second})
	added, until := coordinator.Rearm(batch)

	snapshot := batch.Snapshot()
	assert.Equal(t, 2, added)
	assert.Equal(t, 7, snapshot.Amount)
	assert.Equal(t, 5, snapshot.AmountBeforeRetry)
	assert.Equal(t, 4, snapshot.CurrentIteration)
	assert.Equal(t, 1, snapshot.RetryAttempt)
	assert.Equal(t, domain.BatchActive, snapshot.Status)
	assert.Empty(t, snapshot.Failures)
	assert.True(t, snapshot.IPCooldownPenaltyAdded)
	assert.Equal(t, testNow.Add(10*time.Second+time.Minute), until)
	assert.Equal(t, until, snapshot.Until)
	assert.Equal(t, 5, snapshot.Requested)
}

func TestRetryCoordinatorCancelBackfillsRearmedPass(t *testing.T) {
	t.Parallel()

	pool := onlineAccounts(2, ownProxy)
	batch := newTestBatch(fileTarget, domain.Favorite{}, 3, pool, testNow)
	batch.Update(func(s *domain.BatchState) {
		s.CurrentIteration = 2
		s.Failed[domain.FailureKey{Iteration: 0, AccountIndex: 0, ProxyIndex: 0}] = domain.Failure{Cause: domain.CauseUnknown}
	})

	coordinator := NewRetryCoordinator(RetryPolicy{Enabled: true, MaxAttempts: 1})
	coordinator.Rearm(batch)
	coordinator.Cancel(batch, NewRoster(pool))

	snapshot := batch.Snapshot()
	assert.Equal(t, domain.BatchAborted, snapshot.Status)
	if assert.Len(t, snapshot.Failures, 1) {
		assert.Equal(t, "i4 b1 p1", snapshot.Failures[0].Key.String())
		assert.Equal(t, domain.CauseAborted, snapshot.Failures[0].Cause)
	}
}
