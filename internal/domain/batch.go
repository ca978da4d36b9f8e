package domain

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

type BatchStatus string

const (
	BatchActive   BatchStatus = "active"
	BatchCooldown BatchStatus = "cooldown"
	BatchAborted  BatchStatus = "aborted"
	BatchError    BatchStatus = "error"
)

// UnknownIndex marks an account or proxy index that could not be resolved.
const UnknownIndex = -1

type FailureCause string

const (
	CauseIPRateLimit      FailureCause = "ip_rate_limit"
	CauseAccountRateLimit FailureCause = "account_rate_limit"
	CauseServerError      FailureCause = "server_error"
	CausePermission       FailureCause = "permission"
	CauseAccountMissing   FailureCause = "account_missing"
	CauseAccountOffline   FailureCause = "account_offline"
	CauseAborted          FailureCause = "aborted"
	CauseUnknown          FailureCause = "unknown"
)

type FailureKey struct {
	Iteration    int
	AccountIndex int
	ProxyIndex   int
}

func (k FailureKey) String() string {
	account, proxy := "?", "?"
	if k.AccountIndex != UnknownIndex {
		account = fmt.Sprint(k.AccountIndex)
	}
	if k.ProxyIndex != UnknownIndex {
		proxy = fmt.Sprint(k.ProxyIndex)
	}
	return fmt.Sprintf("i%d b%s p%s", k.Iteration+1, account, proxy)
}

type Failure struct {
	Cause       FailureCause
	Description string
}

type FailureEntry struct {
	Key FailureKey
	Failure
}

// BatchState is the mutable part of a batch. It is only touched through
// Batch.Update so that the scheduler goroutine and readers never race.
type BatchState struct {
	Amount                 int
	CurrentIteration       int
	RetryAttempt           int
	AmountBeforeRetry      int
	Status                 BatchStatus
	Until                  time.Time
	Failed                 map[FailureKey]Failure
	IPCooldownPenaltyAdded bool
}

// FailedIterations counts distinct iterations with at least one failure.
func (s *BatchState) FailedIterations() int {
	seen := make(map[int]struct{}, len(s.Failed))
	for key := range s.Failed {
		seen[key.Iteration] = struct{}{}
	}
	return len(seen)
}

func (s *BatchState) HasFailureAt(iteration int) bool {
	for key := range s.Failed {
		if key.Iteration == iteration {
			return true
		}
	}
	return false
}

type BatchParams struct {
	ID          string
	Target      Target
	Interaction Interaction
	Amount      int
	Accounts    []AccountID
	RequestedBy string
	Until       time.Time
	CreatedAt   time.Time
}

// Batch is one user request to perform Amount units of the same interaction
// against one target.
type Batch struct {
	mu          sync.Mutex
	id          string
	target      Target
	interaction Interaction
	kind        Kind
	requested   int
	accounts    []AccountID
	requestedBy string
	createdAt   time.Time
	state       BatchState
}

func NewBatch(p BatchParams) *Batch {
	accounts := make([]AccountID, len(p.Accounts))
	copy(accounts, p.Accounts)

	return &Batch{
		id:          p.ID,
		target:      p.Target,
		interaction: p.Interaction,
		kind:        KindOf(p.Interaction, p.Target.Type),
		requested:   p.Amount,
		accounts:    accounts,
		requestedBy: p.RequestedBy,
		createdAt:   p.CreatedAt,
		state: BatchState{
			Amount:           p.Amount,
			CurrentIteration: -1,
			Status:           BatchActive,
			Until:            p.Until,
			Failed:           map[FailureKey]Failure{},
		},
	}
}

func (b *Batch) ID() string               { return b.id }
func (b *Batch) Target() Target           { return b.target }
func (b *Batch) Kind() Kind               { return b.kind }
func (b *Batch) Interaction() Interaction { return b.interaction }
func (b *Batch) Requested() int           { return b.requested }
func (b *Batch) RequestedBy() string      { return b.requestedBy }
func (b *Batch) CreatedAt() time.Time     { return b.createdAt }

func (b *Batch) Accounts() []AccountID {
	accounts := make([]AccountID, len(b.accounts))
	copy(accounts, b.accounts)
	return accounts
}

// AccountFor returns the account slot of an iteration (round-robin).
func (b *Batch) AccountFor(iteration int) (AccountID, bool) {
	if len(b.accounts) == 0 || iteration < 0 {
		return "", false
	}
	return b.accounts[iteration%len(b.accounts)], true
}

func (b *Batch) Update(fn func(s *BatchState)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(&b.state)
}

func (b *Batch) Status() BatchStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.Status
}

func (b *Batch) Until() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.Until
}

// Abort flags an active batch as aborted. It reports whether the status
// changed.
func (b *Batch) Abort() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state.Status != BatchActive {
		return false
	}
	b.state.Status = BatchAborted
	return true
}

type BatchSnapshot struct {
	ID                     string
	Target                 Target
	Kind                   Kind
	Requested              int
	Accounts               []AccountID
	RequestedBy            string
	CreatedAt              time.Time
	Amount                 int
	CurrentIteration       int
	RetryAttempt           int
	AmountBeforeRetry      int
	Status                 BatchStatus
	Until                  time.Time
	Failures               []FailureEntry
	IPCooldownPenaltyAdded bool
}

func (b *Batch) Snapshot() BatchSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	return BatchSnapshot{
		ID:                     b.id,
		Target:                 b.target,
		Kind:                   b.kind,
		Requested:              b.requested,
		Accounts:               b.Accounts(),
		RequestedBy:            b.requestedBy,
		CreatedAt:              b.createdAt,
		Amount:                 b.state.Amount,
		CurrentIteration:       b.state.CurrentIteration,
		RetryAttempt:           b.state.RetryAttempt,
		AmountBeforeRetry:      b.state.AmountBeforeRetry,
		Status:                 b.state.Status,
		Until:                  b.state.Until,
		Failures:               SortFailures(b.state.Failed),
		IPCooldownPenaltyAdded: b.state.IPCooldownPenaltyAdded,
	}
}

// SortFailures flattens a failure ledger ascending by iteration, then account
// and proxy index.
func SortFailures(failed map[FailureKey]Failure) []FailureEntry {
	entries := make([]FailureEntry, 0, len(failed))
	for key, failure := range failed {
		entries = append(entries, FailureEntry{Key: key, Failure: failure})
	}

	sort.Slice(entries, func(i, j int) bool {
		left, right := entries[i].Key, entries[j].Key
		if left.Iteration != right.Iteration {
			return left.Iteration < right.Iteration
		}
		if left.AccountIndex != right.AccountIndex {
			return left.AccountIndex < right.AccountIndex
		}
		return left.ProxyIndex < right.ProxyIndex
	})

	return entries
}

func (b *Batch) SortedFailures() []FailureEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return SortFailures(b.state.Failed)
}
