// Package model defines the core domain models used throughout the application.
package model

// Partition is the reporting bucket a classification label belongs to.
type Partition string

// Partition constants.
const (
	PartitionQuality      Partition = "QUALITY"
	PartitionError        Partition = "ERROR"
	PartitionExcluded     Partition = "EXCLUDED"
	PartitionUnclassified Partition = "UNCLASSIFIED"
)

// Vocabulary identifies the era a classification label comes from.
type Vocabulary string

// Vocabulary constants.
const (
	VocabularyLegacy Vocabulary = "legacy"
	VocabularyNew    Vocabulary = "new"
)

// ClassificationLabel is a review label from one of the two closed vocabularies.
type ClassificationLabel string

// Legacy labels.
const (
	LabelNoSignificantChange   ClassificationLabel = "no_significant_change"
	LabelStylisticPreference   ClassificationLabel = "stylistic_preference"
	LabelMeaningfulImprovement ClassificationLabel = "meaningful_improvement"
	LabelCriticalError         ClassificationLabel = "critical_error"
	LabelContextShift          ClassificationLabel = "context_shift"
)

// New labels.
const (
	LabelNoSignificantChangeNew ClassificationLabel = "NO_SIGNIFICANT_CHANGE"
	LabelStylisticEdit          ClassificationLabel = "STYLISTIC_EDIT"
	LabelStructureFix           ClassificationLabel = "STRUCTURE_FIX"
	LabelCriticalFactError      ClassificationLabel = "CRITICAL_FACT_ERROR"
	LabelHallucination          ClassificationLabel = "HALLUCINATION"
	LabelIncompleteInfo         ClassificationLabel = "INCOMPLETE_INFO"
	LabelWrongTone              ClassificationLabel = "WRONG_TONE"
	LabelMissingAction          ClassificationLabel = "MISSING_ACTION"
	LabelContextShiftNew        ClassificationLabel = "CONTEXT_SHIFT"
	LabelWorkflowChange         ClassificationLabel = "WORKFLOW_CHANGE"
)

// UnifiedBucket merges a legacy label with the new labels that replaced it.
type UnifiedBucket string

// Unified buckets.
const (
	BucketPerfectMatches         UnifiedBucket = "perfect_matches"
	BucketStylisticChanges       UnifiedBucket = "stylistic_changes"
	BucketMeaningfulImprovements UnifiedBucket = "meaningful_improvements"
	BucketCriticalFactErrors     UnifiedBucket = "critical_fact_errors"
	BucketContextShifts          UnifiedBucket = "context_shifts"
)
