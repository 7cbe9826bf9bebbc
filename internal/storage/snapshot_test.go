package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/draftflow/internal/model"
)

func newSnapshotManager(t *testing.T, store *SQLiteStore, keep int) *SnapshotManager {
	t.Helper()
	m, err := NewSnapshotManager(store, keep)
	require.NoError(t, err)

	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return m
}

func countComparisons(t *testing.T, store *SQLiteStore) int {
	t.Helper()
	counts, err := store.rowCounts(context.Background())
	require.NoError(t, err)
	return counts[string(model.TableComparisons)]
}

func TestSnapshot_CreateListGet(t *testing.T) {
	store := createTestStorage(t)
	seedComparisons(t, store)
	m := newSnapshotManager(t, store, 5)
	ctx := context.Background()

	info, err := m.Create(ctx, "before-cleanup", "manual")
	require.NoError(t, err)
	assert.Equal(t, "before-cleanup", info.ID)
	assert.Equal(t, 9, info.RowCounts["comparisons"])
	assert.Equal(t, ExpectedSchemaVersion, info.SchemaVersion)
	assert.Positive(t, info.FileSize)
	assert.False(t, info.Auto)
	assert.FileExists(t, filepath.Join(m.Dir(), "before-cleanup.db"))

	generated, err := m.Create(ctx, "", "")
	require.NoError(t, err)
	assert.Contains(t, generated.ID, "snapshot-20240301")

	list, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, generated.ID, list[0].ID, "newest first")

	got, err := m.Get(ctx, "before-cleanup")
	require.NoError(t, err)
	assert.Equal(t, "manual", got.Description)

	_, err = m.Create(ctx, "before-cleanup", "")
	require.ErrorIs(t, err, ErrSnapshotExists)
	_, err = m.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestSnapshot_InvalidIDs(t *testing.T) {
	m := newSnapshotManager(t, createTestStorage(t), 5)
	ctx := context.Background()

	for _, id := range []string{"../escape", "a/b", `a\b`, "it's", "x;y"} {
		t.Run(id, func(t *testing.T) {
			_, err := m.Create(ctx, id, "")
			require.ErrorIs(t, err, ErrInvalidSnapshotID)
			require.ErrorIs(t, m.Delete(ctx, id), ErrInvalidSnapshotID)
			require.ErrorIs(t, m.Restore(ctx, id), ErrInvalidSnapshotID)
		})
	}
}

func TestSnapshot_InMemory(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	_, err = NewSnapshotManager(store, 1)
	require.Error(t, err)
}

func TestSnapshot_AutoPrunes(t *testing.T) {
	store := createTestStorage(t)
	m := newSnapshotManager(t, store, 2)
	ctx := context.Background()

	_, err := m.Create(ctx, "keep-me", "")
	require.NoError(t, err)
	for range 4 {
		_, err := m.Auto(ctx, "import")
		require.NoError(t, err)
	}

	list, err := m.List(ctx)
	require.NoError(t, err)
	auto := 0
	for _, s := range list {
		if s.Auto {
			auto++
			assert.Contains(t, s.Description, "before import")
		}
	}
	assert.Equal(t, 2, auto)
	assert.Len(t, list, 3, "manual snapshots are never pruned")
}

func TestSnapshot_Restore(t *testing.T) {
	store := createTestStorage(t)
	seedComparisons(t, store)
	m := newSnapshotManager(t, store, 5)
	ctx := context.Background()

	_, err := m.Create(ctx, "seeded", "")
	require.NoError(t, err)

	_, err = store.db.ExecContext(ctx, "DELETE FROM comparisons")
	require.NoError(t, err)
	require.Zero(t, countComparisons(t, store))

	require.NoError(t, m.Restore(ctx, "seeded"))

	reopened, err := NewSQLiteStore(store.Path())
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	assert.Equal(t, 9, countComparisons(t, reopened))
	assert.NoFileExists(t, store.Path()+".restore-backup")
}

func TestSnapshot_RestoreCorrupted(t *testing.T) {
	store := createTestStorage(t)
	m := newSnapshotManager(t, store, 5)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(m.Dir(), "broken.db"), []byte("not a database"), 0o600))
	require.ErrorIs(t, m.Restore(ctx, "broken"), ErrSnapshotCorrupted)
	require.ErrorIs(t, m.Restore(ctx, "absent"), ErrSnapshotNotFound)

	// The store stays usable after a rejected restore.
	assert.Zero(t, countComparisons(t, store))
}

func TestSnapshot_Delete(t *testing.T) {
	store := createTestStorage(t)
	m := newSnapshotManager(t, store, 5)
	ctx := context.Background()

	_, err := m.Create(ctx, "old", "")
	require.NoError(t, err)
	require.NoError(t, m.Delete(ctx, "old"))
	assert.NoFileExists(t, filepath.Join(m.Dir(), "old.db"))
	assert.NoFileExists(t, filepath.Join(m.Dir(), "old.meta.json"))
	require.ErrorIs(t, m.Delete(ctx, "old"), ErrSnapshotNotFound)
}
