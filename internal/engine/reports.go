package engine

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/Veraticus/draftflow/internal/aggregate"
	"github.com/Veraticus/draftflow/internal/common"
	"github.com/Veraticus/draftflow/internal/correlation"
	"github.com/Veraticus/draftflow/internal/flow"
	"github.com/Veraticus/draftflow/internal/model"
	"github.com/Veraticus/draftflow/internal/service"
	"github.com/Veraticus/draftflow/internal/taxonomy"
)

// Projections requested per report. Free-text columns are never fetched.
var (
	statFields         = []string{"id", "created_at", "human_reply_date", "category", "version", "agent", "classification"}
	distributionFields = []string{"id", "created_at", "category", "changed"}
	flowFields         = []string{"id", "created_at", "status", "ai_draft_id", "human_changed", "requires_editing"}
)

// Grouping keys accepted by Group.
const (
	GroupCategory        = "category"
	GroupVersion         = "version"
	GroupAgent           = "agent"
	GroupCategoryVersion = "category_version"
)

var groupKeys = map[string]aggregate.KeyFunc{
	GroupCategory:        aggregate.ByCategory,
	GroupVersion:         aggregate.ByVersion,
	GroupAgent:           aggregate.ByAgent,
	GroupCategoryVersion: aggregate.ByCategoryVersion,
}

// Granularity is the bucket width of a trend series.
type Granularity string

// Trend granularities.
const (
	Daily  Granularity = "day"
	Weekly Granularity = "week"
)

// Meta describes the fetch behind a report.
type Meta struct {
	Warnings []common.PageWarning `json:"warnings,omitempty"`
	Records  int                  `json:"records"`
	Partial  bool                 `json:"partial"`
}

func (m *Meta) absorb(warnings []common.PageWarning, records int, partial bool) {
	m.Warnings = append(m.Warnings, warnings...)
	m.Records += records
	m.Partial = m.Partial || partial
}

func metaOf[T any](f *Fetched[T]) Meta {
	var m Meta
	m.absorb(f.Warnings, len(f.Records), f.Partial)
	return m
}

// GroupReport is a set of grouped statistics plus their overall sum.
type GroupReport struct {
	Meta
	By      string              `json:"by"`
	Groups  []model.GroupedStat `json:"groups"`
	Overall model.GroupedStat   `json:"overall"`
	Counts  taxonomy.Counts     `json:"counts"`
}

// Group partitions matching comparisons by one of the Group* keys.
func (e *Engine) Group(ctx context.Context, filter model.Filter, by string) (*GroupReport, error) {
	key, ok := groupKeys[by]
	if !ok {
		return nil, fmt.Errorf("%w: unknown grouping %q", common.ErrInvalidConfig, by)
	}
	f, err := e.FetchComparisons(ctx, filter, statFields...)
	if f == nil {
		return nil, err
	}
	counts := e.agg.Summarize(f.Records)
	return &GroupReport{
		Meta:    metaOf(f),
		By:      by,
		Groups:  aggregate.SortedStats(e.agg.GroupBy(f.Records, key)),
		Overall: counts.Stat("all"),
		Counts:  counts,
	}, err
}

// QualityByCategory groups matching comparisons by category.
func (e *Engine) QualityByCategory(ctx context.Context, filter model.Filter) (*GroupReport, error) {
	return e.Group(ctx, filter, GroupCategory)
}

// CategoryQuality is one category's current statistics and its change from
// the previous period.
type CategoryQuality struct {
	Category    string            `json:"category"`
	Stat        model.GroupedStat `json:"stat"`
	QualityRate model.TrendMetric `json:"quality_rate"`
	Errors      model.TrendMetric `json:"errors"`
	Total       model.TrendMetric `json:"total"`
}

// QualityReport compares a period with the one of equal length before it.
type QualityReport struct {
	Meta
	Range      model.DateRange   `json:"range"`
	Previous   model.DateRange   `json:"previous"`
	Counts     taxonomy.Counts   `json:"counts"`
	Overall    CategoryQuality   `json:"overall"`
	Categories []CategoryQuality `json:"categories"`
}

// QualityReport computes per-category quality with period-over-period trends.
func (e *Engine) QualityReport(ctx context.Context, filter model.Filter) (*QualityReport, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	prevRange := aggregate.PreviousPeriod(filter.DateRange)

	cur, err := e.FetchComparisons(ctx, filter, statFields...)
	if cur == nil {
		return nil, err
	}
	report := &QualityReport{
		Meta:     metaOf(cur),
		Range:    filter.DateRange,
		Previous: prevRange,
		Counts:   e.agg.Summarize(cur.Records),
	}
	if err != nil {
		report.Overall, report.Categories = e.compare(cur.Records, nil)
		return report, err
	}

	prev, err := e.FetchComparisons(ctx, filter.WithRange(prevRange), statFields...)
	if prev == nil {
		return nil, fmt.Errorf("previous period: %w", err)
	}
	report.absorb(prev.Warnings, len(prev.Records), prev.Partial)
	report.Overall, report.Categories = e.compare(cur.Records, prev.Records)
	return report, err
}

func (e *Engine) compare(current, previous []model.ComparisonRecord) (CategoryQuality, []CategoryQuality) {
	curGroups := e.agg.GroupBy(current, aggregate.ByCategory)
	prevGroups := e.agg.GroupBy(previous, aggregate.ByCategory)

	keys := make([]string, 0, len(curGroups))
	for k := range curGroups {
		keys = append(keys, k)
	}
	for k := range prevGroups {
		if _, ok := curGroups[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	categories := make([]CategoryQuality, 0, len(keys))
	for _, k := range keys {
		c, p := curGroups[k], prevGroups[k]
		c.GroupKey = k
		categories = append(categories, trendOf(k, c, p))
	}

	overall := trendOf("all",
		e.agg.Summarize(current).Stat("all"),
		e.agg.Summarize(previous).Stat("all"))
	return overall, categories
}

func trendOf(key string, cur, prev model.GroupedStat) CategoryQuality {
	return CategoryQuality{
		Category:    key,
		Stat:        cur,
		QualityRate: aggregate.Trend(cur.QualityRate(), prev.QualityRate()),
		Errors:      aggregate.Trend(float64(cur.Error), float64(prev.Error)),
		Total:       aggregate.Trend(float64(cur.Total), float64(prev.Total)),
	}
}

// DetailReport is the category by version table with weekly breakdowns.
type DetailReport struct {
	Meta
	Rows []model.DetailRow `json:"rows"`
}

// DetailedTable groups matching comparisons by category and version, split
// into weeks of the filter's date field.
func (e *Engine) DetailedTable(ctx context.Context, filter model.Filter) (*DetailReport, error) {
	f, err := e.FetchComparisons(ctx, filter, statFields...)
	if f == nil {
		return nil, err
	}
	return &DetailReport{
		Meta: metaOf(f),
		Rows: e.agg.DetailedTable(f.Records, dateField(filter)),
	}, err
}

// TrendPoint is one bucket of a trend series.
type TrendPoint struct {
	Key         string            `json:"key"`
	Stat        model.GroupedStat `json:"stat"`
	QualityRate float64           `json:"quality_rate"`
	// Change is relative to the preceding bucket.
	Change model.TrendMetric `json:"change"`
}

// TrendReport is a quality series over calendar buckets.
type TrendReport struct {
	Meta
	Granularity Granularity  `json:"granularity"`
	Points      []TrendPoint `json:"points"`
}

// Trends buckets matching comparisons by day or week. Every bucket between
// the range bounds is present, empty ones with zero counts; records lacking
// the selected date form a trailing "undated" bucket.
func (e *Engine) Trends(ctx context.Context, filter model.Filter, granularity Granularity) (*TrendReport, error) {
	var key aggregate.KeyFunc
	var step func(time.Time) time.Time
	var start func(time.Time, *time.Location) time.Time
	field := dateField(filter)
	loc := e.agg.Location()

	switch granularity {
	case Daily:
		key, start = aggregate.ByDay(field, loc), aggregate.DayStart
		step = func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }
	case Weekly:
		key, start = aggregate.ByWeek(field, loc), aggregate.WeekStart
		step = func(t time.Time) time.Time { return t.AddDate(0, 0, 7) }
	default:
		return nil, fmt.Errorf("%w: unknown granularity %q", common.ErrInvalidConfig, granularity)
	}

	f, err := e.FetchComparisons(ctx, filter, statFields...)
	if f == nil {
		return nil, err
	}
	groups := e.agg.GroupBy(f.Records, key)

	last := start(filter.DateRange.To, loc)
	for t := start(filter.DateRange.From, loc); !t.After(last); t = step(t) {
		k := t.Format(time.DateOnly)
		if _, ok := groups[k]; !ok {
			groups[k] = model.GroupedStat{GroupKey: k}
		}
	}

	// Date keys sort chronologically and "undated" sorts after all of them.
	stats := aggregate.SortedStats(groups)
	points := make([]TrendPoint, len(stats))
	for i, s := range stats {
		points[i] = TrendPoint{Key: s.GroupKey, Stat: s, QualityRate: s.QualityRate()}
		if i > 0 && s.GroupKey != aggregate.UndatedKey {
			points[i].Change = aggregate.Trend(s.QualityRate(), stats[i-1].QualityRate())
		}
	}
	return &TrendReport{Meta: metaOf(f), Granularity: granularity, Points: points}, err
}

// DistributionReport counts comparisons per category.
type DistributionReport struct {
	Meta
	Categories []model.CategoryCount `json:"categories"`
	// PushedDown is set when the store computed the distribution.
	PushedDown bool `json:"pushed_down"`
}

// CategoryDistribution counts matching comparisons and changed replies per
// category, most frequent first. When push-down is enabled and the filter is
// a plain created-date range, the store computes it in one procedure call;
// otherwise the records are fetched and counted here.
func (e *Engine) CategoryDistribution(ctx context.Context, filter model.Filter) (*DistributionReport, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	if e.cfg.PushDown && pushable(filter) {
		dist, err := e.distributionPushDown(ctx, filter)
		switch {
		case err == nil:
			return &DistributionReport{Categories: dist, PushedDown: true, Meta: Meta{Records: sumCounts(dist)}}, nil
		case errors.Is(err, common.ErrUnknownProcedure):
			slog.Warn("Store lacks distribution procedure, counting locally", "error", err)
		default:
			return nil, err
		}
	}

	f, err := e.FetchComparisons(ctx, filter, distributionFields...)
	if f == nil {
		return nil, err
	}
	byCategory := make(map[string]*model.CategoryCount)
	for i := range f.Records {
		rec := &f.Records[i]
		c, ok := byCategory[rec.Category]
		if !ok {
			c = &model.CategoryCount{Category: rec.Category}
			byCategory[rec.Category] = c
		}
		c.Count++
		if rec.Changed {
			c.Changed++
		}
	}
	dist := make([]model.CategoryCount, 0, len(byCategory))
	for _, c := range byCategory {
		dist = append(dist, *c)
	}
	sortDistribution(dist)
	return &DistributionReport{Meta: metaOf(f), Categories: dist}, err
}

func (e *Engine) distributionPushDown(ctx context.Context, filter model.Filter) ([]model.CategoryCount, error) {
	rows, err := e.port.CallProcedure(ctx, service.ProcCategoryDistribution, map[string]any{
		service.ArgDateFrom: filter.DateRange.From,
		service.ArgDateTo:   filter.DateRange.ExclusiveEnd(),
	})
	if err != nil {
		return nil, fmt.Errorf("category distribution: %w", err)
	}
	dist, err := model.DecodeRows[model.CategoryCount](rows)
	if err != nil {
		return nil, fmt.Errorf("failed to decode category distribution: %w", err)
	}
	sortDistribution(dist)
	return dist, nil
}

// pushable reports whether the procedure can express filter: it only takes
// a created-date range.
func pushable(filter model.Filter) bool {
	n := filter.Normalize()
	return n.DateField == model.DateFieldCreated &&
		len(n.Versions) == 0 && len(n.Categories) == 0 && len(n.Agents) == 0 &&
		len(n.Statuses) == 0 && len(n.RequirementFlags) == 0
}

func sortDistribution(dist []model.CategoryCount) {
	slices.SortFunc(dist, func(a, b model.CategoryCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Category, b.Category)
	})
}

func sumCounts(dist []model.CategoryCount) int {
	total := 0
	for _, c := range dist {
		total += c.Count
	}
	return total
}

// CorrelationReport is the co-occurrence matrix over requirement flags.
type CorrelationReport struct {
	Meta
	Flags  []string                `json:"flags"`
	Cells  []model.CorrelationCell `json:"cells"`
	Matrix [][]float64             `json:"matrix"`
}

// Correlation computes pairwise co-occurrence rates of flags over matching
// support threads. No flags selects every known flag.
func (e *Engine) Correlation(ctx context.Context, filter model.Filter, flags ...string) (*CorrelationReport, error) {
	if len(flags) == 0 {
		flags = model.ThreadFlags
	}
	for _, flag := range flags {
		if !slices.Contains(model.ThreadFlags, flag) {
			return nil, fmt.Errorf("%w: %s is not a requirement flag", common.ErrUnsupportedColumn, flag)
		}
	}

	fields := append([]string{"id", "created_at"}, flags...)
	f, err := e.FetchThreads(ctx, filter, fields...)
	if f == nil {
		return nil, err
	}
	cells := correlation.Correlate(f.Records, flags)
	return &CorrelationReport{
		Meta:   metaOf(f),
		Flags:  slices.Clone(flags),
		Cells:  cells,
		Matrix: correlation.Matrix(cells, flags),
	}, err
}

// FlowReport is the draft flow graph over matching support threads.
type FlowReport struct {
	Meta
	Attribution flow.Attribution `json:"attribution"`
	Graph       model.FlowGraph  `json:"graph"`
}

// Flow builds the draft flow graph using the configured attribution.
func (e *Engine) Flow(ctx context.Context, filter model.Filter) (*FlowReport, error) {
	f, err := e.FetchThreads(ctx, filter, flowFields...)
	if f == nil {
		return nil, err
	}
	return &FlowReport{
		Meta:        metaOf(f),
		Attribution: e.cfg.FlowAttribution,
		Graph:       flow.BuildWith(f.Records, e.cfg.FlowAttribution),
	}, err
}

func dateField(filter model.Filter) model.DateField {
	if filter.DateField == "" {
		return model.DateFieldCreated
	}
	return filter.DateField
}
