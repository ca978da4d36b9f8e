package domain

type AccountID string

type AccountStatus string

const (
	AccountOnline  AccountStatus = "online"
	AccountOffline AccountStatus = "offline"
	AccountError   AccountStatus = "error"
	AccountSkipped AccountStatus = "skipped"
)

func (s AccountStatus) Valid() bool {
	switch s {
	case AccountOnline, AccountOffline, AccountError, AccountSkipped:
		return true
	default:
		return false
	}
}

// Account is a bot account of the fleet. Index is the stable roster position
// used in failure keys; ProxyIndex identifies the network egress the account
// logs in through.
type Account struct {
	ID         AccountID
	Index      int
	Name       string
	Status     AccountStatus
	Limited    bool
	ProxyIndex int
	Auth       Auth
}

func (a Account) Online() bool {
	return a.Status == AccountOnline
}

func (a Account) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return string(a.ID)
}
