package taxonomy

import (
	"github.com/Veraticus/draftflow/internal/model"
)

// Counts holds one counter per concrete label plus the derived partition
// and unified-bucket sums.
type Counts struct {
	ByLabel       map[model.ClassificationLabel]int `json:"by_label"`
	UnknownLabels map[string]int                    `json:"unknown_labels,omitempty"`

	Total      int `json:"total"`
	Reviewed   int `json:"reviewed"`
	Unreviewed int `json:"unreviewed"`
	Unknown    int `json:"unknown"`

	Quality  int `json:"quality"`
	Error    int `json:"error"`
	Excluded int `json:"excluded"`

	PerfectMatches         int `json:"perfect_matches"`
	StylisticChanges       int `json:"stylistic_changes"`
	MeaningfulImprovements int `json:"meaningful_improvements"`
	CriticalFactErrors     int `json:"critical_fact_errors"`
	ContextShifts          int `json:"context_shifts"`
}

// Evaluable is the number of reviewed records minus the excluded ones.
func (c Counts) Evaluable() int {
	return c.Reviewed - c.Excluded
}

// QualityRate is the quality share of evaluable records, in percent.
func (c Counts) QualityRate() float64 {
	evaluable := c.Evaluable()
	if evaluable <= 0 {
		return 0
	}
	return float64(c.Quality) / float64(evaluable) * 100
}

// Bucket returns the unified counter for b.
func (c Counts) Bucket(b model.UnifiedBucket) int {
	switch b {
	case model.BucketPerfectMatches:
		return c.PerfectMatches
	case model.BucketStylisticChanges:
		return c.StylisticChanges
	case model.BucketMeaningfulImprovements:
		return c.MeaningfulImprovements
	case model.BucketCriticalFactErrors:
		return c.CriticalFactErrors
	case model.BucketContextShifts:
		return c.ContextShifts
	default:
		return 0
	}
}

// Stat converts the counts to a GroupedStat keyed by key.
func (c Counts) Stat(key string) model.GroupedStat {
	return model.GroupedStat{
		GroupKey:     key,
		Total:        c.Total,
		Quality:      c.Quality,
		Error:        c.Error,
		Excluded:     c.Excluded,
		Unclassified: c.Unreviewed + c.Unknown,
		Unknown:      c.Unknown,
	}
}

// CountAll counts records with the package default Taxonomy.
func CountAll(records []model.ComparisonRecord) Counts {
	return defaultTaxonomy.CountAll(records)
}

// CountAll tallies the labels of records.
func (t *Taxonomy) CountAll(records []model.ComparisonRecord) Counts {
	c := Counts{ByLabel: make(map[model.ClassificationLabel]int, len(entries))}
	for i := range records {
		t.add(&c, &records[i])
	}
	return c
}

func (t *Taxonomy) add(c *Counts, rec *model.ComparisonRecord) {
	c.Total++
	if !rec.Reviewed() {
		c.Unreviewed++
		return
	}
	c.Reviewed++

	e, ok := Lookup(rec.Label())
	if !ok {
		t.reportUnknown(rec.Label())
		c.Unknown++
		if c.UnknownLabels == nil {
			c.UnknownLabels = make(map[string]int)
		}
		c.UnknownLabels[rec.Label()]++
		return
	}

	c.ByLabel[e.Label]++

	switch e.Partition {
	case model.PartitionQuality:
		c.Quality++
	case model.PartitionError:
		c.Error++
	case model.PartitionExcluded:
		c.Excluded++
	}

	switch e.Bucket {
	case model.BucketPerfectMatches:
		c.PerfectMatches++
	case model.BucketStylisticChanges:
		c.StylisticChanges++
	case model.BucketMeaningfulImprovements:
		c.MeaningfulImprovements++
	case model.BucketCriticalFactErrors:
		c.CriticalFactErrors++
	case model.BucketContextShifts:
		c.ContextShifts++
	}
}
