package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/bnema/botfleet/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "history.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func record(target string, family domain.Family, account domain.AccountID) domain.InteractionRecord {
	return domain.InteractionRecord{
		TargetID:   target,
		Family:     family,
		TargetType: domain.TargetSharedfile,
		AccountID:  account,
		CreatedAt:  time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC),
	}
}

func TestOpenAppliesMigrations(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)

	version, err := store.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(migrations), version)
}

func TestReopenKeepsDataAndVersion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	store, err := Open(ctx, path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, store.Insert(ctx, record("file-1", domain.FamilyFavorite, "bot-1")))
	require.NoError(t, store.Close())

	reopened, err := Open(ctx, path, zerolog.Nop())
	require.NoError(t, err)
	defer reopened.Close()

	records, err := reopened.Find(ctx, domain.HistoryQuery{TargetID: "file-1"})
	require.NoError(t, err)
	assert.Len(t, records, 1)

	version, err := reopened.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), version)
}

func TestInsertFindAndRemove(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.Insert(ctx, record("file-1", domain.FamilyFavorite, "bot-1")))
	require.NoError(t, store.Insert(ctx, record("file-1", domain.FamilyFavorite, "bot-2")))
	require.NoError(t, store.Insert(ctx, record("file-1", domain.FamilyVote, "bot-1")))
	require.NoError(t, store.Insert(ctx, record("file-2", domain.FamilyFavorite, "bot-1")))

	// Duplicates collapse onto one row.
	require.NoError(t, store.Insert(ctx, record("file-1", domain.FamilyFavorite, "bot-1")))

	favorites, err := store.Find(ctx, domain.HistoryQuery{TargetID: "file-1", Family: domain.FamilyFavorite, TargetType: domain.TargetSharedfile})
	require.NoError(t, err)
	require.Len(t, favorites, 2)
	assert.ElementsMatch(t, []domain.AccountID{"bot-1", "bot-2"}, []domain.AccountID{favorites[0].AccountID, favorites[1].AccountID})
	assert.True(t, favorites[0].CreatedAt.Equal(time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)))

	removed, err := store.Remove(ctx, domain.HistoryQuery{TargetID: "file-1", AccountID: "bot-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	rest, err := store.Find(ctx, domain.HistoryQuery{})
	require.NoError(t, err)
	assert.Len(t, rest, 2)
}

func TestRemoveRefusesEmptyQuery(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)

	_, err := store.Remove(context.Background(), domain.HistoryQuery{})
	require.Error(t, err)
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), " ", zerolog.Nop())
	require.Error(t, err)
}
