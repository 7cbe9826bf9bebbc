package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/draftflow/internal/common"
	"github.com/Veraticus/draftflow/internal/model"
	"github.com/Veraticus/draftflow/internal/service"
)

var (
	rangeFrom = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rangeTo   = time.Date(2024, 1, 31, 23, 59, 59, 999_000_000, time.UTC)
)

func baseFilter() model.Filter {
	return model.Filter{DateRange: model.DateRange{From: rangeFrom, To: rangeTo}}
}

func TestBuildWhere(t *testing.T) {
	comparisons, err := model.SchemaFor(model.TableComparisons)
	require.NoError(t, err)
	threads, err := model.SchemaFor(model.TableSupportThreads)
	require.NoError(t, err)

	tests := []struct {
		name       string
		schema     model.Schema
		filter     func() model.Filter
		style      Placeholder
		wantClause string
		wantArgs   int
	}{
		{
			name:       "date range only",
			schema:     comparisons,
			filter:     baseFilter,
			style:      Question,
			wantClause: "created_at >= ? AND created_at < ?",
			wantArgs:   2,
		},
		{
			name:   "sets with dollar placeholders",
			schema: comparisons,
			filter: func() model.Filter {
				f := baseFilter()
				f.Versions = []string{"v2", "v1"}
				f.Categories = []string{"billing"}
				return f
			},
			style:      Dollar,
			wantClause: "created_at >= $1 AND created_at < $2 AND version IN ($3, $4) AND category IN ($5)",
			wantArgs:   5,
		},
		{
			name:   "human reply date",
			schema: comparisons,
			filter: func() model.Filter {
				f := baseFilter()
				f.DateField = model.DateFieldHumanReply
				return f
			},
			style:      Question,
			wantClause: "human_reply_date >= ? AND human_reply_date < ?",
			wantArgs:   2,
		},
		{
			name:   "flags and statuses on threads",
			schema: threads,
			filter: func() model.Filter {
				f := baseFilter()
				f.Statuses = []string{"resolved"}
				f.RequirementFlags = []string{model.FlagRequiresRefund}
				f.Versions = []string{"v9"} // threads have no version column
				return f
			},
			style:      Dollar,
			wantClause: "created_at >= $1 AND created_at < $2 AND status IN ($3) AND requires_refund = $4",
			wantArgs:   4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := BuildWhere(tt.schema, tt.filter(), tt.style)
			require.NoError(t, err)
			assert.Equal(t, tt.wantClause, w.Clause)
			assert.Len(t, w.Args, tt.wantArgs)
		})
	}
}

func TestBuildWhere_InclusiveEndBound(t *testing.T) {
	schema, err := model.SchemaFor(model.TableComparisons)
	require.NoError(t, err)

	local := time.FixedZone("UTC+2", 2*60*60)
	f := model.Filter{DateRange: model.DateRange{From: rangeFrom.In(local), To: rangeTo.In(local)}}
	w, err := BuildWhere(schema, f, Question)
	require.NoError(t, err)

	require.Len(t, w.Args, 2)
	assert.Equal(t, rangeFrom, w.Args[0])
	assert.Equal(t, time.UTC, w.Args[0].(time.Time).Location())
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), w.Args[1])
}

func TestBuildWhere_RejectsInvalidRange(t *testing.T) {
	schema, err := model.SchemaFor(model.TableComparisons)
	require.NoError(t, err)

	f := model.Filter{DateRange: model.DateRange{From: rangeTo, To: rangeFrom}}
	_, err = BuildWhere(schema, f, Question)
	assert.ErrorIs(t, err, common.ErrDateRangeInvalid)
}

func TestPageQuery(t *testing.T) {
	query, args, err := PageQuery(model.TableComparisons, baseFilter(), []string{"id", "category"}, 500, 250, Dollar)
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT id, category FROM comparisons WHERE created_at >= $1 AND created_at < $2 ORDER BY id LIMIT $3 OFFSET $4",
		query)
	assert.Equal(t, []any{rangeFrom, rangeTo.Add(time.Millisecond), 250, 500}, args)

	_, _, err = PageQuery(model.TableComparisons, baseFilter(), []string{"id; DROP TABLE comparisons"}, 0, 10, Question)
	assert.ErrorIs(t, err, common.ErrUnsupportedColumn)

	_, _, err = PageQuery(model.TableComparisons, baseFilter(), nil, -1, 10, Question)
	assert.ErrorIs(t, err, common.ErrInvalidConfig)

	_, _, err = PageQuery("users", baseFilter(), nil, 0, 10, Question)
	assert.ErrorIs(t, err, common.ErrUnknownTable)
}

func TestCountQuery(t *testing.T) {
	query, args, err := CountQuery(model.TableSupportThreads, baseFilter(), Question)
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) FROM support_threads WHERE created_at >= ? AND created_at < ?", query)
	assert.Len(t, args, 2)
}

func TestProcedureQuery(t *testing.T) {
	query, named, err := procedureQuery(service.ProcCategoryDistribution, map[string]any{
		service.ArgDateTo:   rangeTo,
		service.ArgDateFrom: rangeFrom,
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM category_distribution(date_from => @date_from, date_to => @date_to)", query)
	assert.Equal(t, rangeFrom, named[service.ArgDateFrom])

	_, _, err = procedureQuery("drop table x", nil)
	assert.ErrorIs(t, err, common.ErrUnknownProcedure)

	_, _, err = procedureQuery("ok", map[string]any{"bad-name": 1})
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}
