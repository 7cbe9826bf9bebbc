// Package taxonomy maps the legacy and new review vocabularies onto the
// quality, error and excluded partitions used for reporting.
package taxonomy

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/Veraticus/draftflow/internal/model"
)

// Entry describes one known label.
type Entry struct {
	Label      model.ClassificationLabel `json:"label"`
	Vocabulary model.Vocabulary          `json:"vocabulary"`
	Partition  model.Partition           `json:"partition"`
	Bucket     model.UnifiedBucket       `json:"bucket"`
}

// entries is the complete mapping. Every label belongs to exactly one
// partition and one unified bucket; the buckets never cross partitions.
var entries = []Entry{
	{model.LabelNoSignificantChange, model.VocabularyLegacy, model.PartitionQuality, model.BucketPerfectMatches},
	{model.LabelStylisticPreference, model.VocabularyLegacy, model.PartitionQuality, model.BucketStylisticChanges},
	{model.LabelMeaningfulImprovement, model.VocabularyLegacy, model.PartitionError, model.BucketMeaningfulImprovements},
	{model.LabelCriticalError, model.VocabularyLegacy, model.PartitionError, model.BucketCriticalFactErrors},
	{model.LabelContextShift, model.VocabularyLegacy, model.PartitionExcluded, model.BucketContextShifts},

	{model.LabelNoSignificantChangeNew, model.VocabularyNew, model.PartitionQuality, model.BucketPerfectMatches},
	{model.LabelStylisticEdit, model.VocabularyNew, model.PartitionQuality, model.BucketStylisticChanges},
	{model.LabelStructureFix, model.VocabularyNew, model.PartitionQuality, model.BucketStylisticChanges},
	{model.LabelCriticalFactError, model.VocabularyNew, model.PartitionError, model.BucketCriticalFactErrors},
	{model.LabelHallucination, model.VocabularyNew, model.PartitionError, model.BucketCriticalFactErrors},
	{model.LabelIncompleteInfo, model.VocabularyNew, model.PartitionError, model.BucketMeaningfulImprovements},
	{model.LabelWrongTone, model.VocabularyNew, model.PartitionError, model.BucketMeaningfulImprovements},
	{model.LabelMissingAction, model.VocabularyNew, model.PartitionError, model.BucketMeaningfulImprovements},
	{model.LabelContextShiftNew, model.VocabularyNew, model.PartitionExcluded, model.BucketContextShifts},
	{model.LabelWorkflowChange, model.VocabularyNew, model.PartitionExcluded, model.BucketContextShifts},
}

var byLabel = func() map[model.ClassificationLabel]Entry {
	m := make(map[model.ClassificationLabel]Entry, len(entries))
	for _, e := range entries {
		m[e.Label] = e
	}
	return m
}()

// Entries returns a copy of the mapping table.
func Entries() []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

// Lookup returns the entry for a raw label string. Labels match exactly after
// trimming surrounding whitespace; the two vocabularies differ in case.
func Lookup(label string) (Entry, bool) {
	e, ok := byLabel[model.ClassificationLabel(strings.TrimSpace(label))]
	return e, ok
}

// Taxonomy classifies labels and reports each unknown label once.
type Taxonomy struct {
	seen map[string]struct{}
	mu   sync.Mutex
}

// New creates a Taxonomy with an empty unknown-label log.
func New() *Taxonomy {
	return &Taxonomy{seen: make(map[string]struct{})}
}

var defaultTaxonomy = New()

// PartitionOf classifies label with the package default Taxonomy.
func PartitionOf(label string) model.Partition {
	return defaultTaxonomy.PartitionOf(label)
}

// PartitionOf returns the partition of label. Unknown labels are
// PartitionUnclassified and logged the first time they are seen.
func (t *Taxonomy) PartitionOf(label string) model.Partition {
	if e, ok := Lookup(label); ok {
		return e.Partition
	}
	t.reportUnknown(label)
	return model.PartitionUnclassified
}

func (t *Taxonomy) reportUnknown(label string) {
	t.mu.Lock()
	_, dup := t.seen[label]
	if !dup {
		t.seen[label] = struct{}{}
	}
	t.mu.Unlock()

	if !dup {
		slog.Warn("Unknown classification label, counting as unclassified", "label", label)
	}
}

// UnknownLabels returns the distinct unknown labels seen so far.
func (t *Taxonomy) UnknownLabels() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.seen))
	for l := range t.seen {
		out = append(out, l)
	}
	return out
}
