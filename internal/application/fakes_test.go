package application

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bnema/botfleet/internal/domain"
	"github.com/bnema/botfleet/internal/ports"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock(now time.Time) *fixedClock {
	return &fixedClock{now: now}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var testNow = time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)

type inMemoryAccounts struct {
	mu       sync.Mutex
	accounts []domain.Account
}

func newInMemoryAccounts(accounts ...domain.Account) *inMemoryAccounts {
	return &inMemoryAccounts{accounts: accounts}
}

func (r *inMemoryAccounts) GetByID(_ context.Context, id domain.AccountID) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, account := range r.accounts {
		if account.ID == id {
			return account, nil
		}
	}
	return domain.Account{}, domain.ErrAccountNotFound
}

func (r *inMemoryAccounts) List(_ context.Context, statuses ...domain.AccountStatus) ([]domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Account, 0, len(r.accounts))
	for _, account := range r.accounts {
		if len(statuses) > 0 && !containsStatus(statuses, account.Status) {
			continue
		}
		out = append(out, account)
	}
	return out, nil
}

func (r *inMemoryAccounts) setStatus(id domain.AccountID, status domain.AccountStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.accounts {
		if r.accounts[i].ID == id {
			r.accounts[i].Status = status
		}
	}
}

func containsStatus(statuses []domain.AccountStatus, status domain.AccountStatus) bool {
	for _, candidate := range statuses {
		if candidate == status {
			return true
		}
	}
	return false
}

// onlineAccounts builds n online accounts; proxy assigns the proxy index of
// account i.
func onlineAccounts(n int, proxy func(i int) int) []domain.Account {
	accounts := make([]domain.Account, 0, n)
	for i := 0; i < n; i++ {
		accounts = append(accounts, domain.Account{
			ID:         domain.AccountID(fmt.Sprintf("bot-%d", i)),
			Index:      i,
			Status:     domain.AccountOnline,
			ProxyIndex: proxy(i),
		})
	}
	return accounts
}

func sameProxy(int) int  { return 0 }
func ownProxy(i int) int { return i }
func accountIDs(accounts []domain.Account) []domain.AccountID {
	return Selection{Eligible: accounts}.AccountIDs()
}

type inMemoryHistory struct {
	mu      sync.Mutex
	records []domain.InteractionRecord
}

func (h *inMemoryHistory) Find(_ context.Context, query domain.HistoryQuery) ([]domain.InteractionRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []domain.InteractionRecord
	for _, record := range h.records {
		if matchesQuery(record, query) {
			out = append(out, record)
		}
	}
	return out, nil
}

func (h *inMemoryHistory) Insert(_ context.Context, record domain.InteractionRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, record)
	return nil
}

func (h *inMemoryHistory) Remove(_ context.Context, query domain.HistoryQuery) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	kept := h.records[:0]
	var removed int64
	for _, record := range h.records {
		if matchesQuery(record, query) {
			removed++
			continue
		}
		kept = append(kept, record)
	}
	h.records = kept
	return removed, nil
}

func (h *inMemoryHistory) snapshot() []domain.InteractionRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.InteractionRecord(nil), h.records...)
}

func matchesQuery(record domain.InteractionRecord, query domain.HistoryQuery) bool {
	return (query.TargetID == "" || record.TargetID == query.TargetID) &&
		(query.Family == "" || record.Family == query.Family) &&
		(query.TargetType == "" || record.TargetType == query.TargetType) &&
		(query.AccountID == "" || record.AccountID == query.AccountID)
}

type inMemoryCooldowns struct {
	mu    sync.Mutex
	until map[string]time.Time
}

func newInMemoryCooldowns() *inMemoryCooldowns {
	return &inMemoryCooldowns{until: map[string]time.Time{}}
}

func (s *inMemoryCooldowns) Get(_ context.Context, userID string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.until[userID]
	return until, ok, nil
}

func (s *inMemoryCooldowns) Set(_ context.Context, userID string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.until[userID] = until
	return nil
}

type staticResolver struct {
	public bool
}

// Resolve accepts "type:id" or a bare id of the expected type.
func (r staticResolver) Resolve(_ context.Context, raw string, expected domain.TargetType) (domain.Target, error) {
	targetType, id := expected, raw
	if before, after, ok := strings.Cut(raw, ":"); ok {
		targetType, id = domain.TargetType(before), after
	}
	if targetType == "" {
		targetType = domain.TargetSharedfile
	}
	if id == "" {
		return domain.Target{}, fmt.Errorf("%w: empty id", domain.ErrInvalidTarget)
	}
	return domain.Target{ID: id, Type: targetType, Public: r.public}, nil
}

// slowResolver resolves like staticResolver after waiting delay.
type slowResolver struct {
	delay time.Duration
}

func (r slowResolver) Resolve(ctx context.Context, raw string, expected domain.TargetType) (domain.Target, error) {
	select {
	case <-time.After(r.delay):
	case <-ctx.Done():
		return domain.Target{}, ctx.Err()
	}
	return staticResolver{public: true}.Resolve(ctx, raw, expected)
}

type fakeRelations struct {
	related map[domain.AccountID]bool
}

func (f fakeRelations) Related(_ context.Context, account domain.Account, _ domain.Target) (bool, error) {
	return f.related[account.ID], nil
}

type platformCall struct {
	Family  domain.Family
	Account domain.AccountID
	Arg     string
}

// recordingPlatform answers every call with fail(account, call number).
type recordingPlatform struct {
	mu    sync.Mutex
	calls []platformCall
	fail  func(account domain.Account, call int) error
}

func (p *recordingPlatform) record(family domain.Family, account domain.Account, arg string) error {
	p.mu.Lock()
	call := len(p.calls)
	p.calls = append(p.calls, platformCall{Family: family, Account: account.ID, Arg: arg})
	fail := p.fail
	p.mu.Unlock()

	if fail != nil {
		return fail(account, call)
	}
	return nil
}

func (p *recordingPlatform) Comment(_ context.Context, account domain.Account, _ domain.Target, text string) error {
	return p.record(domain.FamilyComment, account, text)
}

func (p *recordingPlatform) Vote(_ context.Context, account domain.Account, _ domain.Target, direction domain.VoteDirection) error {
	return p.record(domain.FamilyVote, account, string(direction))
}

func (p *recordingPlatform) Favorite(_ context.Context, account domain.Account, _ domain.Target, remove bool) error {
	return p.record(domain.FamilyFavorite, account, fmt.Sprint(remove))
}

func (p *recordingPlatform) Follow(_ context.Context, account domain.Account, _ domain.Target, remove bool) error {
	return p.record(domain.FamilyFollow, account, fmt.Sprint(remove))
}

func (p *recordingPlatform) Calls() []platformCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]platformCall(nil), p.calls...)
}

type recordingObserver struct {
	mu       sync.Mutex
	ticks    []ports.Tick
	outcomes []domain.Outcome
}

func (o *recordingObserver) OnTick(_ domain.BatchSnapshot, tick ports.Tick) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ticks = append(o.ticks, tick)
}

func (o *recordingObserver) OnFinish(outcome domain.Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func (o *recordingObserver) Outcomes() []domain.Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]domain.Outcome(nil), o.outcomes...)
}

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func newTestBatch(target domain.Target, interaction domain.Interaction, amount int, accounts []domain.Account, until time.Time) *domain.Batch {
	return domain.NewBatch(domain.BatchParams{
		ID:          "batch-" + target.ID,
		Target:      target,
		Interaction: interaction,
		Amount:      amount,
		Accounts:    accountIDs(accounts),
		RequestedBy: "alice",
		Until:       until,
		CreatedAt:   testNow,
	})
}
