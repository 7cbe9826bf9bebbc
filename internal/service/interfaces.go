// Package service defines the contracts between the engine and its collaborators.
package service

import (
	"context"

	"github.com/Veraticus/draftflow/internal/model"
)

// QueryPort is the engine's only way to reach the record store. Adapters
// implement it on top of a SQL database or a paginated HTTP API.
//
// Implementations must apply the same predicate in Count and FetchPage, and
// must order pages by a stable key so that consecutive offsets never overlap.
type QueryPort interface {
	// Count returns the number of rows in table that match filter.
	Count(ctx context.Context, table model.Table, filter model.Filter) (int, error)
	// FetchPage returns at most limit matching rows starting at offset,
	// projected onto fields. An empty fields list selects the table defaults.
	FetchPage(ctx context.Context, table model.Table, filter model.Filter, fields []string, offset, limit int) ([]model.Row, error)
	// CallProcedure invokes a named server-side aggregate.
	CallProcedure(ctx context.Context, name string, args map[string]any) ([]model.Row, error)
}

// Store is a QueryPort that owns a connection and can be closed.
type Store interface {
	QueryPort
	Close() error
}

// Procedure names understood by every adapter.
const (
	// ProcCategoryDistribution returns category, count and changed columns for
	// comparisons whose created_at falls in [date_from, date_to).
	ProcCategoryDistribution = "category_distribution"
)

// Procedure argument names.
const (
	ArgDateFrom = "date_from"
	ArgDateTo   = "date_to"
)
