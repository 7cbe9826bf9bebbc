// Package fetch retrieves large result sets from a row-limited store by
// issuing bounded waves of concurrent page requests.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/draftflow/internal/common"
	"github.com/Veraticus/draftflow/internal/model"
	"github.com/Veraticus/draftflow/internal/service"
)

// MaxPageSize is the largest page the remote store will return in one response.
const MaxPageSize = 1000

// Options configures batched fetching.
type Options struct {
	// OnPage, when set, is called after every page completes. It may be
	// called from several goroutines at once.
	OnPage         func(PageEvent)
	PageSize       int
	MaxConcurrency int
	WaveDelay      time.Duration
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		PageSize:       500,
		MaxConcurrency: 3,
		WaveDelay:      50 * time.Millisecond,
	}
}

// Validate checks the options for usable values.
func (o Options) Validate() error {
	if o.PageSize <= 0 || o.PageSize > MaxPageSize {
		return fmt.Errorf("%w: page size must be between 1 and %d, got %d", common.ErrInvalidConfig, MaxPageSize, o.PageSize)
	}
	if o.MaxConcurrency <= 0 {
		return fmt.Errorf("%w: max concurrency must be positive, got %d", common.ErrInvalidConfig, o.MaxConcurrency)
	}
	if o.WaveDelay < 0 {
		return fmt.Errorf("%w: wave delay must not be negative", common.ErrInvalidConfig)
	}
	return nil
}

// PageEvent reports the outcome of a single page fetch.
type PageEvent struct {
	Err   error
	Table model.Table
	Page  int
	Pages int
	Rows  int
}

// Result holds everything a FetchAll produced.
type Result struct {
	OperationID string
	Rows        []model.Row
	Warnings    []common.PageWarning
	Count       int
	Pages       int
	// Skipped is the number of pages never requested because the
	// context was canceled.
	Skipped int
}

// Partial reports whether any page is missing from Rows.
func (r *Result) Partial() bool {
	return len(r.Warnings) > 0 || r.Skipped > 0
}

// Err returns a PartialFetchError when pages failed, nil otherwise.
func (r *Result) Err() error {
	if len(r.Warnings) == 0 {
		return nil
	}
	return &common.PartialFetchError{Warnings: r.Warnings}
}

// Fetcher retrieves every row matching a filter through a QueryPort.
// It holds no state between calls and is safe for concurrent use.
type Fetcher struct {
	port service.QueryPort
	opts Options
}

// New creates a Fetcher. A zero PageSize or MaxConcurrency takes its
// default; a zero WaveDelay disables pacing between waves.
func New(port service.QueryPort, opts Options) (*Fetcher, error) {
	if port == nil {
		return nil, fmt.Errorf("%w: query port is required", common.ErrMissingConfig)
	}
	def := DefaultOptions()
	if opts.PageSize == 0 {
		opts.PageSize = def.PageSize
	}
	if opts.MaxConcurrency == 0 {
		opts.MaxConcurrency = def.MaxConcurrency
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Fetcher{port: port, opts: opts}, nil
}

// Options returns the fetcher's effective options.
func (f *Fetcher) Options() Options {
	return f.opts
}

// FetchAll counts the matching rows, then fetches every page in waves of at
// most MaxConcurrency concurrent requests with WaveDelay between waves.
//
// A failed page is recorded in Result.Warnings and never stops sibling or
// later pages. The error is a *common.FatalQueryError when the count fails or
// every page fails. When ctx is canceled no further waves start; pages already
// in flight run to completion and the rows collected so far are returned
// together with the context error.
//
// Row order is unspecified. Every request is clamped to the counted window,
// so rows inserted after the count never push len(Rows) above Count; rows
// deleted after the count can leave it lower.
func (f *Fetcher) FetchAll(ctx context.Context, table model.Table, filter model.Filter, fields []string) (*Result, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	res := &Result{OperationID: uuid.NewString()}
	log := slog.With("operation_id", res.OperationID, "table", table)

	count, err := f.port.Count(ctx, table, filter)
	if err != nil {
		fetchDuration.WithLabelValues(string(table), "fatal").Observe(time.Since(start).Seconds())
		return nil, &common.FatalQueryError{Op: "count", Table: string(table), Err: err}
	}
	res.Count = count
	if count == 0 {
		log.Debug("No rows match filter")
		fetchDuration.WithLabelValues(string(table), "empty").Observe(time.Since(start).Seconds())
		return res, nil
	}

	pageSize := f.opts.PageSize
	res.Pages = (count + pageSize - 1) / pageSize
	res.Rows = make([]model.Row, 0, count)

	log.Debug("Starting batched fetch",
		"count", count,
		"pages", res.Pages,
		"page_size", pageSize,
		"max_concurrency", f.opts.MaxConcurrency)

	// In-flight pages outlive a cancellation of ctx.
	pageCtx := context.WithoutCancel(ctx)
	var pageErrs []error
	issued := 0

	for waveStart := 0; waveStart < res.Pages; waveStart += f.opts.MaxConcurrency {
		if waveStart > 0 {
			if err := f.pause(ctx); err != nil {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}

		waveEnd := min(waveStart+f.opts.MaxConcurrency, res.Pages)
		issued += waveEnd - waveStart
		results := make([][]model.Row, waveEnd-waveStart)
		errs := make([]error, waveEnd-waveStart)

		var g errgroup.Group
		g.SetLimit(f.opts.MaxConcurrency)
		for page := waveStart; page < waveEnd; page++ {
			slot := page - waveStart
			g.Go(func() error {
				offset, limit := pageWindow(page, pageSize, count)
				rows, err := f.port.FetchPage(pageCtx, table, filter, fields, offset, limit)
				if err != nil {
					errs[slot] = fmt.Errorf("fetch %s rows %d-%d: %w", table, offset, offset+limit-1, err)
				} else {
					results[slot] = rows
				}
				if f.opts.OnPage != nil {
					f.opts.OnPage(PageEvent{Table: table, Page: page, Pages: res.Pages, Rows: len(rows), Err: errs[slot]})
				}
				return nil
			})
		}
		_ = g.Wait()

		for slot, rows := range results {
			page := waveStart + slot
			if err := errs[slot]; err != nil {
				pagesTotal.WithLabelValues(string(table), "error").Inc()
				pageErrs = append(pageErrs, err)
				offset, limit := pageWindow(page, pageSize, count)
				w := common.PageWarning{
					Err:    err,
					Table:  string(table),
					Reason: err.Error(),
					Page:   page,
					Offset: offset,
					Limit:  limit,
				}
				res.Warnings = append(res.Warnings, w)
				log.Warn("Page fetch failed", "page", page, "offset", w.Offset, "error", err)
				continue
			}
			pagesTotal.WithLabelValues(string(table), "ok").Inc()
			rowsTotal.WithLabelValues(string(table)).Add(float64(len(rows)))
			res.Rows = append(res.Rows, rows...)
		}
		log.Debug("Wave complete", "first_page", waveStart, "last_page", waveEnd-1, "rows_so_far", len(res.Rows))
	}

	elapsed := time.Since(start)
	res.Skipped = res.Pages - issued

	if res.Skipped > 0 {
		fetchDuration.WithLabelValues(string(table), "canceled").Observe(elapsed.Seconds())
		log.Warn("Batched fetch canceled",
			"pages_issued", issued,
			"pages", res.Pages,
			"rows", len(res.Rows))
		return res, fmt.Errorf("fetch %s canceled after %d of %d pages: %w", table, issued, res.Pages, context.Cause(ctx))
	}

	if len(pageErrs) == res.Pages {
		fetchDuration.WithLabelValues(string(table), "fatal").Observe(elapsed.Seconds())
		return nil, &common.FatalQueryError{
			Op:    "fetch",
			Table: string(table),
			Err:   fmt.Errorf("%w: %w", common.ErrAllPagesFailed, errors.Join(pageErrs...)),
		}
	}

	outcome := "ok"
	if len(res.Warnings) > 0 {
		outcome = "partial"
	}
	fetchDuration.WithLabelValues(string(table), outcome).Observe(elapsed.Seconds())
	log.Info("Batched fetch complete",
		"count", res.Count,
		"rows", len(res.Rows),
		"pages", res.Pages,
		"failed_pages", len(res.Warnings),
		"duration", elapsed)
	return res, nil
}

// pause waits WaveDelay or until ctx is done.
func (f *Fetcher) pause(ctx context.Context) error {
	if f.opts.WaveDelay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(f.opts.WaveDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// pageWindow returns the offset and limit of page, clamped so the last page
// never reads past count.
func pageWindow(page, pageSize, count int) (int, int) {
	offset := page * pageSize
	return offset, min(pageSize, count-offset)
}
