package aggregate

import (
	"time"

	"github.com/Veraticus/draftflow/internal/model"
	"github.com/Veraticus/draftflow/internal/taxonomy"
)

// UndatedKey groups records that lack the requested date.
const UndatedKey = "undated"

// KeyFunc returns the group a record belongs to.
type KeyFunc func(rec *model.ComparisonRecord) string

// ByCategory groups by category.
func ByCategory(rec *model.ComparisonRecord) string {
	return rec.Category
}

// ByVersion groups by version.
func ByVersion(rec *model.ComparisonRecord) string {
	return rec.Version
}

// ByAgent groups by agent.
func ByAgent(rec *model.ComparisonRecord) string {
	return rec.Agent
}

// ByCategoryVersion groups by the category and version pair.
func ByCategoryVersion(rec *model.ComparisonRecord) string {
	return rec.Category + "/" + rec.Version
}

// ByWeek groups by the Monday-start week of the selected date.
func ByWeek(field model.DateField, loc *time.Location) KeyFunc {
	return func(rec *model.ComparisonRecord) string {
		d, ok := rec.Date(field)
		if !ok {
			return UndatedKey
		}
		return WeekStart(d, loc).Format(time.DateOnly)
	}
}

// ByDay groups by the local day of the selected date.
func ByDay(field model.DateField, loc *time.Location) KeyFunc {
	return func(rec *model.ComparisonRecord) string {
		d, ok := rec.Date(field)
		if !ok {
			return UndatedKey
		}
		return DayStart(d, loc).Format(time.DateOnly)
	}
}

// Aggregator groups records and classifies their labels.
type Aggregator struct {
	tax *taxonomy.Taxonomy
	loc *time.Location
}

// New creates an Aggregator. Week and day buckets use loc; nil means time.Local.
func New(tax *taxonomy.Taxonomy, loc *time.Location) *Aggregator {
	if tax == nil {
		tax = taxonomy.New()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Aggregator{tax: tax, loc: loc}
}

// Location returns the time zone used for calendar buckets.
func (a *Aggregator) Location() *time.Location {
	return a.loc
}

// GroupBy partitions records by key. Every record lands in exactly one group.
func (a *Aggregator) GroupBy(records []model.ComparisonRecord, key KeyFunc) map[string]model.GroupedStat {
	groups := make(map[string][]model.ComparisonRecord)
	for i := range records {
		k := key(&records[i])
		groups[k] = append(groups[k], records[i])
	}

	out := make(map[string]model.GroupedStat, len(groups))
	for k, recs := range groups {
		out[k] = a.tax.CountAll(recs).Stat(k)
	}
	return out
}

// Summarize counts every record as one group.
func (a *Aggregator) Summarize(records []model.ComparisonRecord) taxonomy.Counts {
	return a.tax.CountAll(records)
}
