package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/draftflow/internal/model"
)

// Validation errors.
var (
	ErrNilContext    = errors.New("context cannot be nil")
	ErrEmptyString   = errors.New("string parameter cannot be empty")
	ErrEmptySlice    = errors.New("slice cannot be empty")
	ErrInvalidRecord = errors.New("invalid comparison record")
	ErrInvalidThread = errors.New("invalid support thread")
	ErrInvalidStatus = errors.New("invalid thread status")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateComparisons validates a slice of comparison records.
func validateComparisons(recs []model.ComparisonRecord) error {
	if len(recs) == 0 {
		return fmt.Errorf("%w: comparisons", ErrEmptySlice)
	}
	for i := range recs {
		if err := validateComparison(&recs[i]); err != nil {
			return fmt.Errorf("comparison at index %d: %w", i, err)
		}
	}
	return nil
}

// validateComparison validates a single comparison record.
func validateComparison(rec *model.ComparisonRecord) error {
	if strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidRecord)
	}
	if rec.CreatedAt.IsZero() {
		return fmt.Errorf("%w: missing created_at", ErrInvalidRecord)
	}
	if rec.HumanReplyDate != nil && rec.HumanReplyDate.Before(rec.CreatedAt) {
		return fmt.Errorf("%w: human reply precedes creation", ErrInvalidRecord)
	}
	return nil
}

// validateThreads validates a slice of support threads.
func validateThreads(threads []model.SupportThreadRecord) error {
	if len(threads) == 0 {
		return fmt.Errorf("%w: threads", ErrEmptySlice)
	}
	for i := range threads {
		if err := validateThread(&threads[i]); err != nil {
			return fmt.Errorf("thread at index %d: %w", i, err)
		}
	}
	return nil
}

// validateThread validates a single support thread.
func validateThread(th *model.SupportThreadRecord) error {
	if strings.TrimSpace(th.ID) == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidThread)
	}
	if th.CreatedAt.IsZero() {
		return fmt.Errorf("%w: missing created_at", ErrInvalidThread)
	}
	switch th.Status {
	case model.ThreadOpen, model.ThreadPending, model.ThreadResolved, model.ThreadClosed:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStatus, th.Status)
	}
	return nil
}
