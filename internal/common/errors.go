// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Common application errors.
var (
	// Query errors.
	ErrUnknownTable      = errors.New("unknown table")
	ErrUnknownProcedure  = errors.New("unknown procedure")
	ErrUnsupportedColumn = errors.New("unsupported column")
	ErrAllPagesFailed    = errors.New("all pages failed")

	// Filter errors.
	ErrDateRangeInvalid = errors.New("invalid date range")

	// Store errors.
	ErrStoreRateLimit = errors.New("store rate limit exceeded")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// FatalQueryError reports a query failure that left no usable data behind:
// the count query failed, or every page of a batched fetch failed.
type FatalQueryError struct {
	Err   error
	Op    string
	Table string
}

func (e *FatalQueryError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Table, e.Err)
}

func (e *FatalQueryError) Unwrap() error {
	return e.Err
}

// PageWarning records a single page that could not be fetched.
type PageWarning struct {
	Err    error  `json:"-"`
	Table  string `json:"table"`
	Reason string `json:"reason"`
	Page   int    `json:"page"`
	Offset int    `json:"offset"`
	Limit  int    `json:"limit"`
}

func (w PageWarning) String() string {
	return fmt.Sprintf("%s page %d (rows %d-%d): %s", w.Table, w.Page, w.Offset, w.Offset+w.Limit-1, w.Reason)
}

// PartialFetchError is returned alongside data when some, but not all,
// pages of a batched fetch failed. Callers decide whether to accept it.
type PartialFetchError struct {
	Warnings []PageWarning
}

func (e *PartialFetchError) Error() string {
	parts := make([]string, 0, len(e.Warnings))
	for _, w := range e.Warnings {
		parts = append(parts, w.String())
	}
	return fmt.Sprintf("partial fetch, %d page(s) failed: %s", len(e.Warnings), strings.Join(parts, "; "))
}

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// IsFatal reports whether err is a FatalQueryError.
func IsFatal(err error) bool {
	var fatal *FatalQueryError
	return errors.As(err, &fatal)
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrStoreRateLimit) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
