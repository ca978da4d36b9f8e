package domain

import "time"

// InteractionRecord remembers that an account performed an interaction on a
// target, so it is not repeated by later batches.
type InteractionRecord struct {
	TargetID   string
	Family     Family
	TargetType TargetType
	AccountID  AccountID
	CreatedAt  time.Time
}

type HistoryQuery struct {
	TargetID   string
	Family     Family
	TargetType TargetType
	AccountID  AccountID
}
