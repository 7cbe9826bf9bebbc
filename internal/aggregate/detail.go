package aggregate

import (
	"cmp"
	"slices"
	"time"

	"github.com/Veraticus/draftflow/internal/common"
	"github.com/Veraticus/draftflow/internal/model"
)

type detailKey struct {
	category string
	version  string
}

// DetailedTable groups records by category and version, then splits each
// group by the Monday-start week of field. Rows are ordered by category
// ascending and version descending; weeks run most recent first with
// undated records last.
func (a *Aggregator) DetailedTable(records []model.ComparisonRecord, field model.DateField) []model.DetailRow {
	type bucket struct {
		weeks map[time.Time][]model.ComparisonRecord
		all   []model.ComparisonRecord
	}
	buckets := make(map[detailKey]*bucket)

	for i := range records {
		rec := records[i]
		k := detailKey{category: rec.Category, version: rec.Version}
		b, ok := buckets[k]
		if !ok {
			b = &bucket{weeks: make(map[time.Time][]model.ComparisonRecord)}
			buckets[k] = b
		}
		var week time.Time
		if d, ok := rec.Date(field); ok {
			week = WeekStart(d, a.loc)
		}
		b.weeks[week] = append(b.weeks[week], rec)
		b.all = append(b.all, rec)
	}

	rows := make([]model.DetailRow, 0, len(buckets))
	for k, b := range buckets {
		row := model.DetailRow{
			Category: k.category,
			Version:  k.version,
			Stat:     model.GroupedStat{GroupKey: k.category + "/" + k.version},
			Weeks:    make([]model.WeekStat, 0, len(b.weeks)),
		}
		for week, recs := range b.weeks {
			key := UndatedKey
			if !week.IsZero() {
				key = week.Format(time.DateOnly)
			}
			stat := a.tax.CountAll(recs).Stat(key)
			row.Weeks = append(row.Weeks, model.WeekStat{WeekStart: week, Stat: stat})
			row.Stat.Add(stat)
		}
		slices.SortFunc(row.Weeks, func(x, y model.WeekStat) int {
			return y.WeekStart.Compare(x.WeekStart)
		})
		rows = append(rows, row)
	}

	SortDetailRows(rows)
	return rows
}

// SortDetailRows orders rows by category ascending, then version descending.
func SortDetailRows(rows []model.DetailRow) {
	slices.SortFunc(rows, func(x, y model.DetailRow) int {
		if c := cmp.Compare(x.Category, y.Category); c != 0 {
			return c
		}
		return CompareVersionsDesc(x.Version, y.Version)
	})
}

// CompareVersionsDesc orders versions by their embedded number, highest
// first. Versions without a number sort after numbered ones; ties fall back
// to descending string order.
func CompareVersionsDesc(a, b string) int {
	na, okA := common.VersionNumber(a)
	nb, okB := common.VersionNumber(b)
	switch {
	case okA && okB && na != nb:
		return cmp.Compare(nb, na)
	case okA && !okB:
		return -1
	case !okA && okB:
		return 1
	}
	return cmp.Compare(b, a)
}

// SortedStats returns the groups ordered by key.
func SortedStats(groups map[string]model.GroupedStat) []model.GroupedStat {
	out := make([]model.GroupedStat, 0, len(groups))
	for _, s := range groups {
		out = append(out, s)
	}
	slices.SortFunc(out, func(x, y model.GroupedStat) int {
		return cmp.Compare(x.GroupKey, y.GroupKey)
	})
	return out
}
