package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/draftflow/internal/common"
	"github.com/Veraticus/draftflow/internal/model"
	"github.com/Veraticus/draftflow/internal/service"
	"github.com/Veraticus/draftflow/internal/testutil"
)

// Helper function to create test storage.
func createTestStorage(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Migrate(context.Background()))
	return store
}

var seedStart = time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)

func seedComparisons(t *testing.T, store *SQLiteStore) []model.ComparisonRecord {
	t.Helper()
	recs := testutil.NewComparisonBuilder(seedStart).
		Step(time.Hour).
		Category("billing").Version("v1").Add(3, "critical_error").
		Category("billing").Version("v2").Add(2, "NO_SIGNIFICANT_CHANGE").
		Category("shipping").Version("v2").Add(4, "").
		Build()
	require.NoError(t, store.InsertComparisons(context.Background(), recs))
	return recs
}

func TestMigrate(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	version, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchemaVersion, version)

	// Running again is a no-op.
	require.NoError(t, store.Migrate(ctx))

	var indexCount int
	err = store.db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='index' AND name='idx_comparisons_category_version'
	`).Scan(&indexCount)
	require.NoError(t, err)
	assert.Equal(t, 1, indexCount)
}

func TestNewSQLiteStore_EmptyPath(t *testing.T) {
	_, err := NewSQLiteStore("  ")
	assert.ErrorIs(t, err, ErrEmptyString)
}

func TestSQLiteStore_CountAndPage(t *testing.T) {
	store := createTestStorage(t)
	seedComparisons(t, store)
	ctx := context.Background()

	f := baseFilter()
	n, err := store.Count(ctx, model.TableComparisons, f)
	require.NoError(t, err)
	assert.Equal(t, 9, n)

	first, err := store.FetchPage(ctx, model.TableComparisons, f, nil, 0, 5)
	require.NoError(t, err)
	second, err := store.FetchPage(ctx, model.TableComparisons, f, nil, 5, 5)
	require.NoError(t, err)
	assert.Len(t, first, 5)
	assert.Len(t, second, 4)

	seen := map[any]bool{}
	for _, row := range append(first, second...) {
		assert.False(t, seen[row["id"]], "pages overlap at %v", row["id"])
		seen[row["id"]] = true
	}

	recs, err := model.DecodeRows[model.ComparisonRecord](first)
	require.NoError(t, err)
	assert.Equal(t, "1", recs[0].ID)
	assert.Equal(t, seedStart, recs[0].CreatedAt.UTC())
	assert.Equal(t, "critical_error", recs[0].Label())
	assert.True(t, recs[0].Changed)
	require.NotNil(t, recs[0].HumanReplyDate)
}

func TestSQLiteStore_FilterSets(t *testing.T) {
	store := createTestStorage(t)
	seedComparisons(t, store)
	ctx := context.Background()

	tests := []struct {
		name   string
		modify func(*model.Filter)
		want   int
	}{
		{"category", func(f *model.Filter) { f.Categories = []string{"shipping"} }, 4},
		{"version", func(f *model.Filter) { f.Versions = []string{"v2"} }, 6},
		{"both", func(f *model.Filter) {
			f.Categories = []string{"billing"}
			f.Versions = []string{"v2"}
		}, 2},
		{"no match", func(f *model.Filter) { f.Agents = []string{"nobody"} }, 0},
		{"human reply date skips unreviewed", func(f *model.Filter) { f.DateField = model.DateFieldHumanReply }, 5},
		{"range end inclusive at ms", func(f *model.Filter) {
			f.DateRange = model.DateRange{From: seedStart, To: seedStart}
		}, 1},
		{"range ends before second record", func(f *model.Filter) {
			f.DateRange = model.DateRange{From: seedStart, To: seedStart.Add(time.Hour - time.Millisecond)}
		}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := baseFilter()
			tt.modify(&f)
			n, err := store.Count(ctx, model.TableComparisons, f)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)

			rows, err := store.FetchPage(ctx, model.TableComparisons, f, []string{"id"}, 0, 100)
			require.NoError(t, err)
			assert.Len(t, rows, tt.want)
		})
	}
}

func TestSQLiteStore_Threads(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	threads := []model.SupportThreadRecord{
		testutil.Thread("1", seedStart, model.ThreadResolved, true, false, model.FlagRequiresReply),
		testutil.Thread("2", seedStart, model.ThreadOpen, true, true, model.FlagRequiresReply, model.FlagRequiresRefund),
		testutil.Thread("3", seedStart, model.ThreadClosed, false, false),
	}
	require.NoError(t, store.InsertThreads(ctx, threads))

	f := baseFilter()
	f.RequirementFlags = []string{model.FlagRequiresReply}
	n, err := store.Count(ctx, model.TableSupportThreads, f)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err := store.FetchPage(ctx, model.TableSupportThreads, baseFilter(), nil, 0, 10)
	require.NoError(t, err)
	decoded, err := model.DecodeRows[model.SupportThreadRecord](rows)
	require.NoError(t, err)
	require.Len(t, decoded, 3)

	assert.True(t, decoded[1].RequiresRefund)
	assert.True(t, decoded[1].WasEdited())
	assert.False(t, decoded[2].HasDraft())
	assert.Nil(t, decoded[2].HumanChanged)
}

func TestSQLiteStore_CategoryDistribution(t *testing.T) {
	store := createTestStorage(t)
	seedComparisons(t, store)
	ctx := context.Background()

	rows, err := store.CallProcedure(ctx, service.ProcCategoryDistribution, map[string]any{
		service.ArgDateFrom: rangeFrom,
		service.ArgDateTo:   rangeTo.Add(time.Millisecond),
	})
	require.NoError(t, err)

	dist, err := model.DecodeRows[model.CategoryCount](rows)
	require.NoError(t, err)
	require.Len(t, dist, 2)
	assert.Equal(t, model.CategoryCount{Category: "billing", Count: 5, Changed: 3}, dist[0])
	assert.Equal(t, model.CategoryCount{Category: "shipping", Count: 4, Changed: 0}, dist[1])
}

func TestSQLiteStore_CallProcedureErrors(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	_, err := store.CallProcedure(ctx, "nope", nil)
	assert.ErrorIs(t, err, common.ErrUnknownProcedure)

	_, err = store.CallProcedure(ctx, service.ProcCategoryDistribution, map[string]any{})
	assert.ErrorIs(t, err, common.ErrDateRangeInvalid)
}

func TestSQLiteStore_InsertValidation(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	assert.ErrorIs(t, store.InsertComparisons(ctx, nil), ErrEmptySlice)
	assert.ErrorIs(t, store.InsertComparisons(ctx, []model.ComparisonRecord{{ID: "1"}}), ErrInvalidRecord)
	assert.ErrorIs(t, store.InsertThreads(ctx, []model.SupportThreadRecord{
		{ID: "1", CreatedAt: seedStart, Status: "archived"},
	}), ErrInvalidStatus)
}

func TestSQLiteStore_Upsert(t *testing.T) {
	store := createTestStorage(t)
	recs := seedComparisons(t, store)
	ctx := context.Background()

	label := "HALLUCINATION"
	recs[0].Classification = &label
	require.NoError(t, store.InsertComparisons(ctx, recs[:1]))

	n, err := store.Count(ctx, model.TableComparisons, baseFilter())
	require.NoError(t, err)
	assert.Equal(t, 9, n)

	rows, err := store.FetchPage(ctx, model.TableComparisons, baseFilter(), []string{"id", "classification"}, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, label, rows[0]["classification"])
}

func TestSQLiteStore_RecordImport(t *testing.T) {
	store := createTestStorage(t)
	id, err := store.RecordImport(context.Background(), model.TableComparisons, "fixtures.jsonl", 9)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	var rows int
	require.NoError(t, store.db.QueryRow(`SELECT row_count FROM import_runs WHERE id = ?`, id).Scan(&rows))
	assert.Equal(t, 9, rows)
}
