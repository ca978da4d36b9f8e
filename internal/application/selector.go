package application

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bnema/botfleet/internal/domain"
	"github.com/bnema/botfleet/internal/ports"
)

// AmountSpec is a requested unit count. All asks for every eligible account.
type AmountSpec struct {
	N   int
	All bool
}

func ParseAmount(raw string) (AmountSpec, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "all", "max":
		return AmountSpec{All: true}, nil
	}

	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return AmountSpec{}, fmt.Errorf("%w: %q", domain.ErrInvalidAmount, raw)
	}
	return AmountSpec{N: n}, nil
}

func (a AmountSpec) String() string {
	if a.All {
		return "all"
	}
	return strconv.Itoa(a.N)
}

type SelectionPolicy struct {
	MaxCommentsPerAccount int
	Randomize             bool
	AllowLimited          bool
}

type SelectionRequest struct {
	Amount AmountSpec
	Target domain.Target
	Kind   domain.Kind
}

// Selection is the account plan for a batch. WaitUntil is set when busy
// accounts are the reason the plan falls short.
type Selection struct {
	Amount           int
	MinAccounts      int
	MaxAccounts      int
	Eligible         []domain.Account
	NeedPrerequisite []domain.Account
	WaitUntil        time.Time
}

func (s Selection) AccountIDs() []domain.AccountID {
	ids := make([]domain.AccountID, 0, len(s.Eligible))
	for _, account := range s.Eligible {
		ids = append(ids, account.ID)
	}
	return ids
}

// SelectionError carries the partial selection with the failure reason.
type SelectionError struct {
	Selection Selection
	Err       error
}

func (e *SelectionError) Error() string {
	switch {
	case !e.Selection.WaitUntil.IsZero():
		return fmt.Sprintf("%s: %d of %d accounts available until %s", e.Err, len(e.Selection.Eligible), e.Selection.MinAccounts, e.Selection.WaitUntil.Format(time.RFC3339))
	case len(e.Selection.NeedPrerequisite) > 0:
		return fmt.Sprintf("%s: %d accounts", e.Err, len(e.Selection.NeedPrerequisite))
	default:
		return fmt.Sprintf("%s: %d of %d accounts", e.Err, len(e.Selection.Eligible), e.Selection.MinAccounts)
	}
}

func (e *SelectionError) Unwrap() error {
	return e.Err
}

type AccountSelector struct {
	accounts  ports.AccountRegistry
	history   ports.HistoryStore
	relations ports.RelationshipChecker
	registry  *Registry
	policy    SelectionPolicy
	shuffle   func(n int, swap func(i, j int))
}

func NewAccountSelector(accounts ports.AccountRegistry, history ports.HistoryStore, relations ports.RelationshipChecker, registry *Registry, policy SelectionPolicy) *AccountSelector {
	return &AccountSelector{
		accounts:  accounts,
		history:   history,
		relations: relations,
		registry:  registry,
		policy:    policy,
		shuffle:   rand.Shuffle,
	}
}

func (s *AccountSelector) Select(ctx context.Context, req SelectionRequest) (Selection, error) {
	kind := req.Kind

	pool, err := s.accounts.List(ctx, domain.AccountOnline)
	if err != nil {
		return Selection{}, fmt.Errorf("list online accounts: %w", err)
	}

	if kind.ForbidsLimited() && !s.policy.AllowLimited {
		pool = filterAccounts(pool, func(account domain.Account) bool { return !account.Limited })
	}

	if kind.TracksHistory() && s.history != nil {
		pool, err = s.filterHistory(ctx, pool, req.Target, kind)
		if err != nil {
			return Selection{}, err
		}
	}

	perAccount := kind.PerAccountCap(s.policy.MaxCommentsPerAccount)
	amount := req.Amount.N
	minAccounts := 0
	if !req.Amount.All {
		minAccounts = ceilDiv(amount, perAccount)
	}

	var waitUntil time.Time
	if s.registry != nil {
		for _, other := range s.registry.Unexpired(kind.Family) {
			if other.Target().ID == req.Target.ID {
				continue
			}
			before := len(pool)
			pool = withoutAccounts(pool, other.Accounts())
			if !req.Amount.All && len(pool) < before && len(pool) < minAccounts && waitUntil.IsZero() {
				waitUntil = other.Until()
			}
		}
	}

	if req.Amount.All {
		amount = len(pool)
		minAccounts = ceilDiv(amount, perAccount)
	}

	if s.policy.Randomize {
		s.shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	}

	related := map[domain.AccountID]bool{}
	if kind.PrioritizesRelationship() && s.relations != nil {
		for _, account := range pool {
			ok, err := s.relations.Related(ctx, account, req.Target)
			if err != nil {
				return Selection{}, fmt.Errorf("check relationship of %s: %w", account.ID, err)
			}
			related[account.ID] = ok
		}
		sort.SliceStable(pool, func(i, j int) bool {
			return related[pool[i].ID] && !related[pool[j].ID]
		})
	}

	maxAccounts := min(amount, len(pool))
	selection := Selection{
		Amount:      amount,
		MinAccounts: minAccounts,
		MaxAccounts: maxAccounts,
		Eligible:    pool[:maxAccounts],
		WaitUntil:   waitUntil,
	}

	switch {
	case amount == 0 || (len(pool) == 0 && waitUntil.IsZero()):
		selection.WaitUntil = time.Time{}
		return selection, &SelectionError{Selection: selection, Err: domain.ErrNoEligibleAccounts}
	case len(selection.Eligible) < minAccounts && !waitUntil.IsZero():
		return selection, &SelectionError{Selection: selection, Err: domain.ErrAccountsBusy}
	case len(selection.Eligible) < minAccounts:
		return selection, &SelectionError{Selection: selection, Err: domain.ErrInsufficientAccounts}
	}

	if kind.NeedsPrerequisite() && !req.Target.Public && s.relations != nil {
		for _, account := range selection.Eligible {
			ok, checked := related[account.ID]
			if !checked {
				var err error
				ok, err = s.relations.Related(ctx, account, req.Target)
				if err != nil {
					return Selection{}, fmt.Errorf("check relationship of %s: %w", account.ID, err)
				}
			}
			if !ok {
				selection.NeedPrerequisite = append(selection.NeedPrerequisite, account)
			}
		}
		if len(selection.NeedPrerequisite) > 0 {
			return selection, &SelectionError{Selection: selection, Err: domain.ErrPrerequisiteMissing}
		}
	}

	return selection, nil
}

// filterHistory drops accounts that already interacted with the target, or
// for an undo keeps only those.
func (s *AccountSelector) filterHistory(ctx context.Context, pool []domain.Account, target domain.Target, kind domain.Kind) ([]domain.Account, error) {
	records, err := s.history.Find(ctx, domain.HistoryQuery{
		TargetID:   target.ID,
		Family:     kind.Family,
		TargetType: kind.Target,
	})
	if err != nil {
		return nil, fmt.Errorf("find interaction history: %w", err)
	}

	seen := make(map[domain.AccountID]struct{}, len(records))
	for _, record := range records {
		seen[record.AccountID] = struct{}{}
	}

	return filterAccounts(pool, func(account domain.Account) bool {
		_, ok := seen[account.ID]
		return ok == kind.Inverse
	}), nil
}

func filterAccounts(accounts []domain.Account, keep func(domain.Account) bool) []domain.Account {
	out := make([]domain.Account, 0, len(accounts))
	for _, account := range accounts {
		if keep(account) {
			out = append(out, account)
		}
	}
	return out
}

func withoutAccounts(accounts []domain.Account, busy []domain.AccountID) []domain.Account {
	if len(busy) == 0 {
		return accounts
	}
	set := make(map[domain.AccountID]struct{}, len(busy))
	for _, id := range busy {
		set[id] = struct{}{}
	}
	return filterAccounts(accounts, func(account domain.Account) bool {
		_, ok := set[account.ID]
		return !ok
	})
}

func ceilDiv(n, d int) int {
	if d < 1 {
		d = 1
	}
	if n <= 0 {
		return 0
	}
	return (n + d - 1) / d
}
