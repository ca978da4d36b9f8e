package application

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bnema/botfleet/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusError struct {
	code int
	msg  string
}

func (e statusError) Error() string   { return e.msg }
func (e statusError) StatusCode() int { return e.code }

func TestFailureClassifierClassify(t *testing.T) {
	t.Parallel()

	classifier := NewFailureClassifier(time.Minute)

	tests := []struct {
		name    string
		err     error
		cause   domain.FailureCause
		penalty bool
	}{
		{name: "http 429", err: statusError{code: 429, msg: "slow"}, cause: domain.CauseIPRateLimit, penalty: true},
		{name: "too many requests text", err: errors.New("Too Many Requests"), cause: domain.CauseIPRateLimit, penalty: true},
		{name: "posting too frequently", err: errors.New("You've been posting too frequently"), cause: domain.CauseAccountRateLimit, penalty: true},
		{name: "http 403", err: statusError{code: 403, msg: "nope"}, cause: domain.CausePermission},
		{name: "steam guard", err: errors.New("Steam Guard confirmation required"), cause: domain.CausePermission},
		{name: "must be friends", err: errors.New("you must be friends to comment"), cause: domain.CausePermission},
		{name: "http 502", err: statusError{code: 502, msg: "gateway"}, cause: domain.CauseServerError},
		{name: "servers down text", err: errors.New("the servers are down"), cause: domain.CauseServerError},
		{name: "deadline", err: fmt.Errorf("post: %w", context.DeadlineExceeded), cause: domain.CauseServerError},
		{name: "canceled", err: context.Canceled, cause: domain.CauseAborted},
		{name: "unknown", err: errors.New("something odd"), cause: domain.CauseUnknown},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cls := classifier.Classify(tc.err)
			assert.Equal(t, tc.cause, cls.Cause)
			assert.Equal(t, tc.penalty, cls.Penalty)
			assert.NotEmpty(t, cls.Description)
		})
	}
}

func TestFailureClassifierRecordIPRateLimitDoomsSameProxy(t *testing.T) {
	t.Parallel()

	accounts := onlineAccounts(4, func(i int) int { return i % 2 })
	batch := newTestBatch(domain.Target{ID: "file-1", Type: domain.TargetSharedfile}, domain.Favorite{}, 6, accounts, testNow)
	classifier := NewFailureClassifier(10 * time.Minute)

	cls := classifier.Record(batch, 0, accounts[0], NewRoster(accounts), statusError{code: 429, msg: "429"})
	assert.Equal(t, domain.CauseIPRateLimit, cls.Cause)

	snapshot := batch.Snapshot()
	keys := make([]string, 0, len(snapshot.Failures))
	for _, entry := range snapshot.Failures {
		keys = append(keys, entry.Key.String())
	}
	assert.Equal(t, []string{"i1 b0 p0", "i3 b2 p0", "i5 b0 p0"}, keys)
	assert.Equal(t, testNow.Add(10*time.Minute), snapshot.Until)
	assert.True(t, snapshot.IPCooldownPenaltyAdded)

	classifier.Record(batch, 1, accounts[1], NewRoster(accounts), errors.New("posting too frequently"))
	assert.Equal(t, testNow.Add(10*time.Minute), batch.Until(), "penalty applies once per batch")
}

func TestFailureClassifierRecordPermissionBlocksAccount(t *testing.T) {
	t.Parallel()

	accounts := onlineAccounts(2, sameProxy)
	batch := newTestBatch(domain.Target{ID: "profile-1", Type: domain.TargetProfile}, domain.Comment{Texts: []string{"hi"}}, 5, accounts, testNow)
	classifier := NewFailureClassifier(time.Minute)

	classifier.Record(batch, 1, accounts[1], NewRoster(accounts), errors.New("access denied"))

	snapshot := batch.Snapshot()
	require.Len(t, snapshot.Failures, 2)
	assert.Equal(t, 1, snapshot.Failures[0].Key.Iteration)
	assert.Equal(t, 3, snapshot.Failures[1].Key.Iteration)
	assert.Equal(t, domain.CausePermission, snapshot.Failures[1].Cause)
	assert.False(t, snapshot.IPCooldownPenaltyAdded)
	assert.Equal(t, testNow, snapshot.Until)
}
