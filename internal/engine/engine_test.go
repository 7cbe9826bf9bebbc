package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/draftflow/internal/common"
	"github.com/Veraticus/draftflow/internal/flow"
	"github.com/Veraticus/draftflow/internal/model"
	"github.com/Veraticus/draftflow/internal/service"
	"github.com/Veraticus/draftflow/internal/testutil"
)

// Monday.
var weekStart = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func weekFilter() model.Filter {
	return model.Filter{DateRange: model.DateRange{From: weekStart, To: weekStart.AddDate(0, 0, 7).Add(-time.Millisecond)}}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Location = time.UTC
	cfg.WaveDelay = 0
	return cfg
}

func newTestEngine(t *testing.T, port service.QueryPort, mutate ...func(*Config)) *Engine {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	e, err := NewWithConfig(port, cfg)
	require.NoError(t, err)
	return e
}

func TestNewWithConfig_Validation(t *testing.T) {
	port := testutil.NewFakePort()

	_, err := NewWithConfig(nil, testConfig())
	assert.ErrorIs(t, err, common.ErrMissingConfig)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"page size above store limit", func(c *Config) { c.PageSize = 1001 }},
		{"zero page size", func(c *Config) { c.PageSize = 0 }},
		{"zero concurrency", func(c *Config) { c.MaxConcurrency = 0 }},
		{"negative wave delay", func(c *Config) { c.WaveDelay = -time.Second }},
		{"unknown attribution", func(c *Config) { c.FlowAttribution = "causal" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := NewWithConfig(port, cfg)
			assert.ErrorIs(t, err, common.ErrInvalidConfig)
		})
	}

	e, err := New(port)
	require.NoError(t, err)
	assert.Equal(t, flow.AttributionEven, e.Config().FlowAttribution)
	assert.True(t, e.Config().PushDown)
}

func TestQualityByCategory_EndToEnd1300(t *testing.T) {
	recs := testutil.NewComparisonBuilder(weekStart.Add(time.Hour)).
		Step(time.Second).
		Category("billing").Add(700, "critical_error").
		Category("shipping").Add(400, "NO_SIGNIFICANT_CHANGE").
		Category("returns").Add(200, "").
		Build()
	port := testutil.NewFakePort().AddComparisons(recs...)
	e := newTestEngine(t, port, func(c *Config) {
		c.PageSize = 500
		c.MaxConcurrency = 3
	})

	report, err := e.QualityByCategory(context.Background(), weekFilter())
	require.NoError(t, err)

	assert.Equal(t, 1, port.CountCalls())
	assert.Equal(t, 3, port.PageCalls())
	assert.Empty(t, report.Warnings)
	assert.False(t, report.Partial)
	assert.Equal(t, 1300, report.Records)

	require.Len(t, report.Groups, 3)
	assert.Equal(t, []string{"billing", "returns", "shipping"},
		[]string{report.Groups[0].GroupKey, report.Groups[1].GroupKey, report.Groups[2].GroupKey})

	total := 0
	for _, g := range report.Groups {
		total += g.Total
	}
	assert.Equal(t, 1300, total)
	assert.Equal(t, 700, report.Groups[0].Error)
	assert.Equal(t, 200, report.Groups[1].Unclassified)
	assert.Equal(t, 400, report.Groups[2].Quality)
	assert.Equal(t, 1300, report.Overall.Total)
}

func TestQualityByCategory_UnifiedCounters(t *testing.T) {
	recs := testutil.NewComparisonBuilder(weekStart.Add(time.Hour)).
		Add(5, "critical_error").
		Add(5, "NO_SIGNIFICANT_CHANGE").
		Build()
	e := newTestEngine(t, testutil.NewFakePort().AddComparisons(recs...))

	report, err := e.QualityByCategory(context.Background(), weekFilter())
	require.NoError(t, err)

	c := report.Counts
	assert.Equal(t, 5, c.CriticalFactErrors)
	assert.Equal(t, 5, c.PerfectMatches)
	assert.Equal(t, 10, c.Evaluable())
	assert.InDelta(t, 50.0, c.QualityRate(), 1e-9)
}

func TestGroup_UnknownGrouping(t *testing.T) {
	port := testutil.NewFakePort()
	e := newTestEngine(t, port)
	_, err := e.Group(context.Background(), weekFilter(), "weekday")
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
	assert.Zero(t, port.CountCalls())
}

func TestGroup_ByVersion(t *testing.T) {
	recs := testutil.NewComparisonBuilder(weekStart.Add(time.Hour)).
		Version("v1").Add(2, "STYLISTIC_EDIT").
		Version("v2").Add(3, "HALLUCINATION").
		Build()
	e := newTestEngine(t, testutil.NewFakePort().AddComparisons(recs...))

	report, err := e.Group(context.Background(), weekFilter(), GroupVersion)
	require.NoError(t, err)
	require.Len(t, report.Groups, 2)
	assert.Equal(t, model.GroupedStat{GroupKey: "v1", Total: 2, Quality: 2}, report.Groups[0])
	assert.Equal(t, model.GroupedStat{GroupKey: "v2", Total: 3, Error: 3}, report.Groups[1])
}

func TestQualityReport_PeriodOverPeriod(t *testing.T) {
	prevStart := weekStart.AddDate(0, 0, -7)
	recs := testutil.NewComparisonBuilder(weekStart.Add(time.Hour)).
		Category("billing").Add(2, "no_significant_change").Add(2, "critical_error").
		At(prevStart.Add(time.Hour)).
		Category("billing").Add(2, "STYLISTIC_EDIT").
		Category("shipping").Add(1, "WRONG_TONE").
		Build()
	port := testutil.NewFakePort().AddComparisons(recs...)
	e := newTestEngine(t, port)

	report, err := e.QualityReport(context.Background(), weekFilter())
	require.NoError(t, err)

	assert.Equal(t, 2, port.CountCalls())
	assert.Equal(t, prevStart, report.Previous.From)
	assert.Equal(t, weekStart.Add(-time.Millisecond), report.Previous.To)
	assert.Equal(t, 7, report.Records)

	require.Len(t, report.Categories, 2)
	billing := report.Categories[0]
	assert.Equal(t, "billing", billing.Category)
	assert.Equal(t, 4, billing.Stat.Total)
	assert.InDelta(t, 50.0, billing.QualityRate.Current, 1e-9)
	assert.InDelta(t, 100.0, billing.QualityRate.Previous, 1e-9)
	assert.Equal(t, model.TrendDown, billing.QualityRate.Trend.Direction)
	assert.InDelta(t, 50.0, billing.QualityRate.Trend.Percent, 1e-9)
	assert.Equal(t, model.TrendUp, billing.Errors.Trend.Direction)
	assert.InDelta(t, 100.0, billing.Errors.Trend.Percent, 1e-9)

	shipping := report.Categories[1]
	assert.Equal(t, "shipping", shipping.Category)
	assert.Zero(t, shipping.Stat.Total)
	assert.Equal(t, model.TrendDown, shipping.Total.Trend.Direction)

	assert.InDelta(t, 4.0, report.Overall.Total.Current, 1e-9)
	assert.InDelta(t, 3.0, report.Overall.Total.Previous, 1e-9)
	assert.Equal(t, 2, report.Counts.CriticalFactErrors)
}

func TestQualityReport_UnknownLabelsShareOneRate(t *testing.T) {
	recs := testutil.NewComparisonBuilder(weekStart.Add(time.Hour)).
		Category("billing").
		Add(1, "no_significant_change").
		Add(1, "critical_error").
		Add(2, "bogus_label").
		Build()
	e := newTestEngine(t, testutil.NewFakePort().AddComparisons(recs...))

	report, err := e.QualityReport(context.Background(), weekFilter())
	require.NoError(t, err)

	assert.Equal(t, 4, report.Counts.Evaluable())
	assert.InDelta(t, 25.0, report.Counts.QualityRate(), 1e-9)
	assert.Equal(t, 4, report.Overall.Stat.Evaluable())
	assert.InDelta(t, 25.0, report.Overall.QualityRate.Current, 1e-9)

	require.Len(t, report.Categories, 1)
	assert.Equal(t, 2, report.Categories[0].Stat.Unknown)
	assert.InDelta(t, 25.0, report.Categories[0].QualityRate.Current, 1e-9)
}

func TestDetailedTable(t *testing.T) {
	recs := testutil.NewComparisonBuilder(weekStart.Add(time.Hour)).
		Category("billing").Version("v1").Add(1, "critical_error").
		Category("billing").Version("v10").Add(1, "no_significant_change").
		Category("billing").Version("v2").Add(1, "no_significant_change").
		Category("account").Version("v1").Add(1, "").
		Build()
	e := newTestEngine(t, testutil.NewFakePort().AddComparisons(recs...))

	report, err := e.DetailedTable(context.Background(), weekFilter())
	require.NoError(t, err)
	require.Len(t, report.Rows, 4)

	var order []string
	for _, r := range report.Rows {
		order = append(order, r.Category+"/"+r.Version)
		sum := model.GroupedStat{}
		for _, w := range r.Weeks {
			sum.Add(w.Stat)
		}
		assert.Equal(t, r.Stat.Total, sum.Total)
	}
	assert.Equal(t, []string{"account/v1", "billing/v10", "billing/v2", "billing/v1"}, order)
	assert.Equal(t, weekStart, report.Rows[0].Weeks[0].WeekStart)
}

func TestTrends_Weekly(t *testing.T) {
	third := weekStart.AddDate(0, 0, 14)
	recs := testutil.NewComparisonBuilder(weekStart.Add(24*time.Hour)).
		Add(2, "no_significant_change").
		At(third.Add(24*time.Hour)).
		Add(1, "no_significant_change").
		Add(1, "CRITICAL_FACT_ERROR").
		Build()
	e := newTestEngine(t, testutil.NewFakePort().AddComparisons(recs...))

	f := model.Filter{DateRange: model.DateRange{From: weekStart, To: third.AddDate(0, 0, 7).Add(-time.Millisecond)}}
	report, err := e.Trends(context.Background(), f, Weekly)
	require.NoError(t, err)

	require.Len(t, report.Points, 3)
	assert.Equal(t, "2024-03-04", report.Points[0].Key)
	assert.Equal(t, "2024-03-11", report.Points[1].Key)
	assert.Equal(t, "2024-03-18", report.Points[2].Key)

	assert.InDelta(t, 100.0, report.Points[0].QualityRate, 1e-9)
	assert.Zero(t, report.Points[1].Stat.Total)
	assert.Equal(t, model.TrendDown, report.Points[1].Change.Trend.Direction)
	assert.InDelta(t, 50.0, report.Points[2].QualityRate, 1e-9)
	assert.Equal(t, model.TrendUp, report.Points[2].Change.Trend.Direction)
	assert.InDelta(t, 100.0, report.Points[2].Change.Trend.Percent, 1e-9)
}

func TestTrends_DailyUsesLocation(t *testing.T) {
	// 23:30 UTC on Monday is Tuesday in UTC+2.
	recs := testutil.NewComparisonBuilder(weekStart.Add(23*time.Hour + 30*time.Minute)).
		Add(1, "no_significant_change").
		Build()
	plus2 := time.FixedZone("UTC+2", 2*60*60)
	e := newTestEngine(t, testutil.NewFakePort().AddComparisons(recs...), func(c *Config) { c.Location = plus2 })

	f := model.Filter{DateRange: model.DateRange{
		From: time.Date(2024, 3, 4, 0, 0, 0, 0, plus2),
		To:   time.Date(2024, 3, 5, 23, 59, 59, 999_000_000, plus2),
	}}
	report, err := e.Trends(context.Background(), f, Daily)
	require.NoError(t, err)
	require.Len(t, report.Points, 2)
	assert.Zero(t, report.Points[0].Stat.Total)
	assert.Equal(t, "2024-03-05", report.Points[1].Key)
	assert.Equal(t, 1, report.Points[1].Stat.Total)

	_, err = e.Trends(context.Background(), f, "hourly")
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}

func distributionPort() *testutil.FakePort {
	recs := testutil.NewComparisonBuilder(weekStart.Add(time.Hour)).
		Category("billing").Add(3, "critical_error").
		Category("shipping").Add(3, "no_significant_change").
		Category("account").Add(1, "critical_error").
		Build()
	return testutil.NewFakePort().AddComparisons(recs...)
}

func TestCategoryDistribution_PushDown(t *testing.T) {
	var gotArgs map[string]any
	port := distributionPort().WithProcedure(service.ProcCategoryDistribution,
		func(_ context.Context, args map[string]any) ([]model.Row, error) {
			gotArgs = args
			return []model.Row{
				{"category": "shipping", "count": 3, "changed": 0},
				{"category": "billing", "count": 3, "changed": 3},
				{"category": "account", "count": 1, "changed": 1},
			}, nil
		})
	e := newTestEngine(t, port)

	report, err := e.CategoryDistribution(context.Background(), weekFilter())
	require.NoError(t, err)

	assert.True(t, report.PushedDown)
	assert.Equal(t, 1, port.ProcedureCalls())
	assert.Zero(t, port.PageCalls())
	assert.Equal(t, weekStart, gotArgs[service.ArgDateFrom])
	assert.Equal(t, weekStart.AddDate(0, 0, 7), gotArgs[service.ArgDateTo])
	assert.Equal(t, []model.CategoryCount{
		{Category: "billing", Count: 3, Changed: 3},
		{Category: "shipping", Count: 3, Changed: 0},
		{Category: "account", Count: 1, Changed: 1},
	}, report.Categories)
	assert.Equal(t, 7, report.Records)
}

func TestCategoryDistribution_ClientSide(t *testing.T) {
	want := []model.CategoryCount{
		{Category: "billing", Count: 3, Changed: 3},
		{Category: "shipping", Count: 3, Changed: 0},
		{Category: "account", Count: 1, Changed: 1},
	}

	tests := []struct {
		name   string
		filter func() model.Filter
		mutate func(*Config)
	}{
		{"push-down disabled", weekFilter, func(c *Config) { c.PushDown = false }},
		{"procedure missing", weekFilter, func(*Config) {}},
		{"filter not expressible", func() model.Filter {
			f := weekFilter()
			f.Agents = []string{"agent-1"}
			return f
		}, func(*Config) {}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port := distributionPort()
			e := newTestEngine(t, port, tt.mutate)

			report, err := e.CategoryDistribution(context.Background(), tt.filter())
			require.NoError(t, err)
			assert.False(t, report.PushedDown)
			assert.Equal(t, want, report.Categories)
			assert.Equal(t, 1, port.PageCalls())
		})
	}
}

func TestCategoryDistribution_ProcedureFailure(t *testing.T) {
	port := distributionPort().WithProcedure(service.ProcCategoryDistribution,
		func(context.Context, map[string]any) ([]model.Row, error) {
			return nil, errors.New("statement timeout")
		})
	e := newTestEngine(t, port)

	_, err := e.CategoryDistribution(context.Background(), weekFilter())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statement timeout")
	assert.Zero(t, port.PageCalls())
}

func threadPort() *testutil.FakePort {
	at := weekStart.Add(time.Hour)
	return testutil.NewFakePort().AddThreads(
		testutil.Thread("1", at, model.ThreadResolved, true, false, model.FlagRequiresReply),
		testutil.Thread("2", at, model.ThreadResolved, true, false, model.FlagRequiresReply, model.FlagRequiresRefund),
		testutil.Thread("3", at, model.ThreadOpen, true, true, model.FlagRequiresRefund),
		testutil.Thread("4", at, model.ThreadClosed, true, true),
		testutil.Thread("5", at, model.ThreadPending, false, false, model.FlagRequiresReply),
	)
}

func TestCorrelation(t *testing.T) {
	e := newTestEngine(t, threadPort())

	report, err := e.Correlation(context.Background(), weekFilter(), model.FlagRequiresReply, model.FlagRequiresRefund)
	require.NoError(t, err)

	assert.Equal(t, 5, report.Records)
	require.Len(t, report.Cells, 4)
	require.Len(t, report.Matrix, 2)
	assert.InDelta(t, 0.6, report.Matrix[0][0], 1e-9)
	assert.InDelta(t, 0.4, report.Matrix[1][1], 1e-9)
	assert.InDelta(t, 0.2, report.Matrix[0][1], 1e-9)
	assert.Equal(t, report.Matrix[0][1], report.Matrix[1][0])
}

func TestCorrelation_AllFlagsAndUnknownFlag(t *testing.T) {
	port := threadPort()
	e := newTestEngine(t, port)

	report, err := e.Correlation(context.Background(), weekFilter())
	require.NoError(t, err)
	assert.Equal(t, model.ThreadFlags, report.Flags)
	assert.Len(t, report.Cells, len(model.ThreadFlags)*len(model.ThreadFlags))

	port.ResetCalls()
	_, err = e.Correlation(context.Background(), weekFilter(), "requires_coffee")
	assert.ErrorIs(t, err, common.ErrUnsupportedColumn)
	assert.Zero(t, port.CountCalls())
}

func TestFlow(t *testing.T) {
	tests := []struct {
		name        string
		attribution flow.Attribution
		approximate bool
	}{
		{"even", flow.AttributionEven, true},
		{"exact", flow.AttributionExact, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, threadPort(), func(c *Config) { c.FlowAttribution = tt.attribution })

			report, err := e.Flow(context.Background(), weekFilter())
			require.NoError(t, err)
			assert.Equal(t, tt.attribution, report.Attribution)
			assert.Equal(t, tt.approximate, report.Graph.Approximate)

			created, ok := report.Graph.Node(model.FlowCreated)
			require.True(t, ok)
			assert.Equal(t, 4, created.Count)
			rejected, ok := report.Graph.Node(model.FlowRejected)
			require.True(t, ok)
			assert.Equal(t, 1, rejected.Count)

			for _, n := range report.Graph.Nodes {
				assert.LessOrEqual(t, report.Graph.Outgoing(n.ID), n.Count, "node %s", n.ID)
			}
		})
	}
}

func bigPort(n int) *testutil.FakePort {
	recs := testutil.NewComparisonBuilder(weekStart.Add(time.Hour)).
		Step(time.Second).
		Add(n, "no_significant_change").
		Build()
	return testutil.NewFakePort().AddComparisons(recs...)
}

func TestPartialFetch(t *testing.T) {
	port := bigPort(1300).FailPageAt(500, errors.New("connection reset"))
	e := newTestEngine(t, port, func(c *Config) { c.PageSize = 500 })

	report, err := e.QualityByCategory(context.Background(), weekFilter())
	require.NoError(t, err)
	assert.True(t, report.Partial)
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, 500, report.Warnings[0].Offset)
	assert.Equal(t, 800, report.Records)
}

func TestPartialFetch_FailOnPartial(t *testing.T) {
	port := bigPort(1300).FailPageAt(500, errors.New("connection reset"))
	e := newTestEngine(t, port, func(c *Config) {
		c.PageSize = 500
		c.FailOnPartial = true
	})

	report, err := e.DetailedTable(context.Background(), weekFilter())
	var partial *common.PartialFetchError
	require.ErrorAs(t, err, &partial)
	assert.Len(t, partial.Warnings, 1)
	require.NotNil(t, report)
	assert.Equal(t, 800, report.Records)
}

func TestFatalErrors(t *testing.T) {
	tests := []struct {
		name string
		port *testutil.FakePort
	}{
		{"count fails", bigPort(10).FailCount(errors.New("permission denied"))},
		{"every page fails", bigPort(10).FailPageAt(0, errors.New("boom"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, tt.port)
			report, err := e.QualityByCategory(context.Background(), weekFilter())
			assert.Nil(t, report)
			assert.True(t, common.IsFatal(err))
		})
	}
}

func TestInvalidRangeIssuesNoQuery(t *testing.T) {
	port := bigPort(10)
	e := newTestEngine(t, port)

	bad := model.Filter{DateRange: model.DateRange{From: weekStart, To: weekStart.Add(-time.Hour)}}
	_, err := e.QualityByCategory(context.Background(), bad)
	assert.ErrorIs(t, err, common.ErrDateRangeInvalid)
	_, err = e.QualityReport(context.Background(), bad)
	assert.ErrorIs(t, err, common.ErrDateRangeInvalid)
	_, err = e.CategoryDistribution(context.Background(), bad)
	assert.ErrorIs(t, err, common.ErrDateRangeInvalid)
	assert.Zero(t, port.CountCalls())
}

func TestCancellationReturnsCollectedRecords(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	port := bigPort(1000).OnPage(func(offset int) {
		if offset == 0 {
			cancel()
		}
	})
	e := newTestEngine(t, port, func(c *Config) {
		c.PageSize = 100
		c.MaxConcurrency = 1
	})

	report, err := e.QualityByCategory(ctx, weekFilter())
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.True(t, report.Partial)
	assert.Equal(t, 100, report.Records)
	assert.Equal(t, 1, port.PageCalls())
}
