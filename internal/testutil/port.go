// Package testutil provides an in-memory query port and record builders for
// tests that exercise the engine without a real store.
package testutil

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Veraticus/draftflow/internal/common"
	"github.com/Veraticus/draftflow/internal/model"
)

// ProcedureFunc implements a named server-side aggregate for FakePort.
type ProcedureFunc func(ctx context.Context, args map[string]any) ([]model.Row, error)

// FakePort is an in-memory QueryPort. It applies filters the way the SQL
// adapters do, orders rows by id, counts calls and can inject failures.
type FakePort struct {
	tables     map[model.Table][]model.Row
	procedures map[string]ProcedureFunc
	// pageErrs maps an offset to the error FetchPage returns for it.
	pageErrs map[int]error
	countErr error
	// onPage runs inside FetchPage before the page is served.
	onPage    func(offset int)
	delay     time.Duration
	mu        sync.RWMutex
	counts    atomic.Int64
	pages     atomic.Int64
	procs     atomic.Int64
	inFlight  atomic.Int64
	maxFlight atomic.Int64
}

// NewFakePort creates an empty FakePort.
func NewFakePort() *FakePort {
	return &FakePort{
		tables:     make(map[model.Table][]model.Row),
		procedures: make(map[string]ProcedureFunc),
		pageErrs:   make(map[int]error),
	}
}

// Add appends rows to a table. Rows are kept sorted by their "id" column.
func (p *FakePort) Add(table model.Table, rows ...model.Row) *FakePort {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tables[table] = append(p.tables[table], rows...)
	slices.SortStableFunc(p.tables[table], func(a, b model.Row) int {
		return compareIDs(fmt.Sprint(a["id"]), fmt.Sprint(b["id"]))
	})
	return p
}

// AddComparisons appends comparison records.
func (p *FakePort) AddComparisons(recs ...model.ComparisonRecord) *FakePort {
	rows := make([]model.Row, 0, len(recs))
	for i := range recs {
		rows = append(rows, ComparisonRow(recs[i]))
	}
	return p.Add(model.TableComparisons, rows...)
}

// AddThreads appends support thread records.
func (p *FakePort) AddThreads(threads ...model.SupportThreadRecord) *FakePort {
	rows := make([]model.Row, 0, len(threads))
	for i := range threads {
		rows = append(rows, ThreadRow(threads[i]))
	}
	return p.Add(model.TableSupportThreads, rows...)
}

// FailCount makes every Count call return err.
func (p *FakePort) FailCount(err error) *FakePort {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.countErr = err
	return p
}

// FailPageAt makes the FetchPage call for offset return err.
func (p *FakePort) FailPageAt(offset int, err error) *FakePort {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pageErrs[offset] = err
	return p
}

// WithDelay makes every FetchPage call sleep for d.
func (p *FakePort) WithDelay(d time.Duration) *FakePort {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delay = d
	return p
}

// OnPage registers a hook that runs at the start of every FetchPage call.
func (p *FakePort) OnPage(fn func(offset int)) *FakePort {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onPage = fn
	return p
}

// WithProcedure registers a named procedure.
func (p *FakePort) WithProcedure(name string, fn ProcedureFunc) *FakePort {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.procedures[name] = fn
	return p
}

// CountCalls returns how many times Count was called.
func (p *FakePort) CountCalls() int { return int(p.counts.Load()) }

// PageCalls returns how many times FetchPage was called.
func (p *FakePort) PageCalls() int { return int(p.pages.Load()) }

// ProcedureCalls returns how many times CallProcedure was called.
func (p *FakePort) ProcedureCalls() int { return int(p.procs.Load()) }

// MaxInFlight returns the highest number of concurrent FetchPage calls seen.
func (p *FakePort) MaxInFlight() int { return int(p.maxFlight.Load()) }

// ResetCalls zeroes every call counter.
func (p *FakePort) ResetCalls() {
	p.counts.Store(0)
	p.pages.Store(0)
	p.procs.Store(0)
	p.maxFlight.Store(0)
}

// Count implements service.QueryPort.
func (p *FakePort) Count(ctx context.Context, table model.Table, filter model.Filter) (int, error) {
	p.counts.Add(1)
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.countErr != nil {
		return 0, p.countErr
	}
	rows, err := p.match(table, filter)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// FetchPage implements service.QueryPort.
func (p *FakePort) FetchPage(ctx context.Context, table model.Table, filter model.Filter, fields []string, offset, limit int) ([]model.Row, error) {
	p.pages.Add(1)
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		peak := p.maxFlight.Load()
		if n <= peak || p.maxFlight.CompareAndSwap(peak, n) {
			break
		}
	}

	p.mu.RLock()
	hook, delay, pageErr := p.onPage, p.delay, p.pageErrs[offset]
	p.mu.RUnlock()

	if hook != nil {
		hook(offset)
	}
	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if pageErr != nil {
		return nil, pageErr
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	rows, err := p.match(table, filter)
	if err != nil {
		return nil, err
	}
	if offset >= len(rows) {
		return []model.Row{}, nil
	}
	end := min(offset+limit, len(rows))
	out := make([]model.Row, 0, end-offset)
	for _, row := range rows[offset:end] {
		out = append(out, project(row, fields))
	}
	return out, nil
}

// CallProcedure implements service.QueryPort.
func (p *FakePort) CallProcedure(ctx context.Context, name string, args map[string]any) ([]model.Row, error) {
	p.procs.Add(1)
	p.mu.RLock()
	fn, ok := p.procedures[name]
	p.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrUnknownProcedure, name)
	}
	return fn(ctx, args)
}

// Close implements service.Store.
func (p *FakePort) Close() error { return nil }

func (p *FakePort) match(table model.Table, filter model.Filter) ([]model.Row, error) {
	schema, err := model.SchemaFor(table)
	if err != nil {
		return nil, err
	}
	f := schema.Project(filter)
	col, err := schema.DateColumn(f.DateField)
	if err != nil {
		return nil, err
	}

	var out []model.Row
	for _, row := range p.tables[table] {
		if MatchRow(schema, f, col, row) {
			out = append(out, row)
		}
	}
	return out, nil
}

// MatchRow reports whether row satisfies a projected filter.
func MatchRow(schema model.Schema, f model.Filter, dateColumn string, row model.Row) bool {
	ts, ok := rowTime(row[dateColumn])
	if !ok || !f.DateRange.Contains(ts) {
		return false
	}
	sets := map[string][]string{
		model.SetVersions:   f.Versions,
		model.SetCategories: f.Categories,
		model.SetAgents:     f.Agents,
		model.SetStatuses:   f.Statuses,
	}
	for set, values := range sets {
		if len(values) == 0 {
			continue
		}
		col := schema.SetColumns[set]
		if !slices.Contains(values, fmt.Sprint(row[col])) {
			return false
		}
	}
	for _, flag := range f.RequirementFlags {
		if v, _ := row[flag].(bool); !v {
			return false
		}
	}
	return true
}

func rowTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	default:
		return time.Time{}, false
	}
}

func project(row model.Row, fields []string) model.Row {
	if len(fields) == 0 {
		out := make(model.Row, len(row))
		for k, v := range row {
			out[k] = v
		}
		return out
	}
	out := make(model.Row, len(fields))
	for _, f := range fields {
		if v, ok := row[f]; ok {
			out[f] = v
		}
	}
	return out
}

// compareIDs orders ids by length, then lexically, so unpadded numeric ids
// sort in numeric order.
func compareIDs(a, b string) int {
	if len(a) != len(b) {
		return len(a) - len(b)
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
