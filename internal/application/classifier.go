package application

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/bnema/botfleet/internal/domain"
)

// Classification is the verdict for one failed unit. Penalty marks rate
// limits that push the batch Until further out.
type Classification struct {
	Cause       domain.FailureCause
	Description string
	Penalty     bool
}

// StatusCoder is implemented by platform errors that carry an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

type causePattern struct {
	cause       domain.FailureCause
	description string
	pattern     *regexp.Regexp
}

// Checked in order; the first match wins.
var causePatterns = []causePattern{
	{
		cause:       domain.CauseIPRateLimit,
		description: "too many requests from this proxy",
		pattern:     regexp.MustCompile(`(?i)\b429\b|too many requests`),
	},
	{
		cause:       domain.CauseAccountRateLimit,
		description: "account is posting too frequently",
		pattern:     regexp.MustCompile(`(?i)posting too frequently|rate[ _-]?limit|slow down`),
	},
	{
		cause:       domain.CausePermission,
		description: "account is not allowed to do this",
		pattern:     regexp.MustCompile(`(?i)steam ?guard|access denied|account (is )?locked|permission|private|must be (a )?friends?|not a member`),
	},
	{
		cause:       domain.CauseServerError,
		description: "platform servers are unavailable",
		pattern:     regexp.MustCompile(`(?i)\b5\d\d\b|time(d)? ?out|servers? (are |is )?down|unavailable|bad gateway`),
	},
}

// FailureClassifier maps unit errors to causes and maintains the failure
// ledger of a batch.
type FailureClassifier struct {
	penalty time.Duration
}

func NewFailureClassifier(rateLimitPenalty time.Duration) *FailureClassifier {
	return &FailureClassifier{penalty: rateLimitPenalty}
}

func (c *FailureClassifier) Classify(err error) Classification {
	if err == nil {
		return Classification{}
	}

	if errors.Is(err, context.Canceled) {
		return Classification{Cause: domain.CauseAborted, Description: "request was aborted"}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return classification(domain.CauseServerError, "platform did not answer in time")
	}

	var coded StatusCoder
	if errors.As(err, &coded) {
		switch code := coded.StatusCode(); {
		case code == http.StatusTooManyRequests:
			return classification(domain.CauseIPRateLimit, "too many requests from this proxy")
		case code == http.StatusUnauthorized || code == http.StatusForbidden:
			return classification(domain.CausePermission, "account is not allowed to do this")
		case code >= http.StatusInternalServerError:
			return classification(domain.CauseServerError, "platform servers are unavailable")
		}
	}

	if cls, ok := matchPattern(err.Error()); ok {
		return cls
	}

	return Classification{Cause: domain.CauseUnknown, Description: strings.TrimSpace(err.Error())}
}

func matchPattern(message string) (Classification, bool) {
	for _, candidate := range causePatterns {
		if candidate.pattern.MatchString(message) {
			return classification(candidate.cause, candidate.description), true
		}
	}
	return Classification{}, false
}

func classification(cause domain.FailureCause, description string) Classification {
	return Classification{
		Cause:       cause,
		Description: description,
		Penalty:     cause == domain.CauseIPRateLimit || cause == domain.CauseAccountRateLimit,
	}
}

// Record classifies err and writes it into the ledger of batch. An IP rate
// limit dooms every later unit routed through the same proxy, a permission
// failure every later unit of the same account.
func (c *FailureClassifier) Record(batch *domain.Batch, iteration int, account domain.Account, roster Roster, err error) Classification {
	cls := c.Classify(err)

	batch.Update(func(s *domain.BatchState) {
		s.Failed[failureKey(iteration, account, true)] = domain.Failure{Cause: cls.Cause, Description: cls.Description}

		if cls.Penalty && c.penalty > 0 && !s.IPCooldownPenaltyAdded {
			s.Until = s.Until.Add(c.penalty)
			s.IPCooldownPenaltyAdded = true
		}

		var doomed func(other domain.Account) bool
		var description string
		switch cls.Cause {
		case domain.CauseIPRateLimit:
			doomed = func(other domain.Account) bool { return other.ProxyIndex == account.ProxyIndex }
			description = "proxy is rate limited"
		case domain.CausePermission:
			doomed = func(other domain.Account) bool { return other.ID == account.ID }
			description = "account is blocked for this request"
		default:
			return
		}

		for next := iteration + 1; next < s.Amount; next++ {
			id, ok := batch.AccountFor(next)
			if !ok {
				continue
			}
			other, found := roster[id]
			if !found || !doomed(other) {
				continue
			}
			s.Failed[failureKey(next, other, true)] = domain.Failure{Cause: cls.Cause, Description: description}
		}
	})

	return cls
}

func failureKey(iteration int, account domain.Account, found bool) domain.FailureKey {
	if !found {
		return domain.FailureKey{Iteration: iteration, AccountIndex: domain.UnknownIndex, ProxyIndex: domain.UnknownIndex}
	}
	return domain.FailureKey{Iteration: iteration, AccountIndex: account.Index, ProxyIndex: account.ProxyIndex}
}

// Roster indexes accounts by id for the duration of one scheduler pass.
type Roster map[domain.AccountID]domain.Account

func NewRoster(accounts []domain.Account) Roster {
	roster := make(Roster, len(accounts))
	for _, account := range accounts {
		roster[account.ID] = account
	}
	return roster
}
