// Package engine answers aggregate questions over comparison and support
// thread records. Every operation is a thin call site: it supplies a filter
// and a projection to the shared fetcher, then hands the decoded records to
// the taxonomy, aggregator, correlation or flow builders.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/draftflow/internal/aggregate"
	"github.com/Veraticus/draftflow/internal/common"
	"github.com/Veraticus/draftflow/internal/fetch"
	"github.com/Veraticus/draftflow/internal/model"
	"github.com/Veraticus/draftflow/internal/service"
	"github.com/Veraticus/draftflow/internal/taxonomy"
)

// Engine orchestrates fetching and aggregation. It holds no mutable state
// between calls and is safe for concurrent use.
type Engine struct {
	port    service.QueryPort
	fetcher *fetch.Fetcher
	tax     *taxonomy.Taxonomy
	agg     *aggregate.Aggregator
	cfg     Config
}

// New creates an engine over port with the default configuration.
func New(port service.QueryPort) (*Engine, error) {
	return NewWithConfig(port, DefaultConfig())
}

// NewWithConfig creates an engine with custom configuration.
func NewWithConfig(port service.QueryPort, cfg Config) (*Engine, error) {
	if port == nil {
		return nil, fmt.Errorf("%w: query port is required", common.ErrMissingConfig)
	}
	if cfg.FlowAttribution == "" {
		cfg.FlowAttribution = DefaultConfig().FlowAttribution
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	fetcher, err := fetch.New(port, cfg.fetchOptions())
	if err != nil {
		return nil, err
	}
	tax := taxonomy.New()
	return &Engine{
		port:    port,
		fetcher: fetcher,
		tax:     tax,
		agg:     aggregate.New(tax, cfg.Location),
		cfg:     cfg,
	}, nil
}

// Config returns the engine's effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// UnknownLabels lists the classification labels seen so far that are not in
// the taxonomy.
func (e *Engine) UnknownLabels() []string {
	return e.tax.UnknownLabels()
}

// Fetched is a decoded fetch result.
type Fetched[T any] struct {
	OperationID string               `json:"operation_id"`
	Records     []T                  `json:"records"`
	Warnings    []common.PageWarning `json:"warnings,omitempty"`
	Count       int                  `json:"count"`
	// Partial is set when pages failed or were skipped on cancellation.
	Partial bool `json:"partial"`
}

// FetchComparisons returns every comparison record matching filter.
// The fields list narrows the projection; nil selects the table defaults.
func (e *Engine) FetchComparisons(ctx context.Context, filter model.Filter, fields ...string) (*Fetched[model.ComparisonRecord], error) {
	return fetchRecords[model.ComparisonRecord](ctx, e, model.TableComparisons, filter, fields)
}

// FetchThreads returns every support thread matching filter.
func (e *Engine) FetchThreads(ctx context.Context, filter model.Filter, fields ...string) (*Fetched[model.SupportThreadRecord], error) {
	return fetchRecords[model.SupportThreadRecord](ctx, e, model.TableSupportThreads, filter, fields)
}

// fetchRecords runs one batched fetch and decodes the rows. On cancellation
// the records collected so far are returned together with the error.
func fetchRecords[T any](ctx context.Context, e *Engine, table model.Table, filter model.Filter, fields []string) (*Fetched[T], error) {
	res, fetchErr := e.fetcher.FetchAll(ctx, table, filter, fields)
	if res == nil {
		return nil, fetchErr
	}

	records, err := model.DecodeRows[T](res.Rows)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", table, err)
	}
	out := &Fetched[T]{
		OperationID: res.OperationID,
		Records:     records,
		Warnings:    res.Warnings,
		Count:       res.Count,
		Partial:     res.Partial(),
	}
	if fetchErr != nil {
		return out, fetchErr
	}
	if e.cfg.FailOnPartial {
		if perr := res.Err(); perr != nil {
			slog.Warn("Rejecting partial fetch", "operation_id", res.OperationID, "table", table, "failed_pages", len(res.Warnings))
			return out, perr
		}
	}
	return out, nil
}
