package ports

import (
	"context"

	"github.com/bnema/botfleet/internal/domain"
)

type HistoryStore interface {
	Find(ctx context.Context, query domain.HistoryQuery) ([]domain.InteractionRecord, error)
	Insert(ctx context.Context, record domain.InteractionRecord) error
	Remove(ctx context.Context, query domain.HistoryQuery) (int64, error)
}
