package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/Veraticus/draftflow/internal/cache"
	"github.com/Veraticus/draftflow/internal/common"
	"github.com/Veraticus/draftflow/internal/fetch"
	"github.com/Veraticus/draftflow/internal/model"
)

// Page is one page of raw rows served to a paging consumer.
type Page struct {
	Rows    []model.Row `json:"rows"`
	Number  int         `json:"page"`
	Size    int         `json:"page_size"`
	Total   int         `json:"total"`
	HasMore bool        `json:"has_more"`
	Cached  bool        `json:"cached"`
}

// Session pages through one table for a consumer that reads a page at a
// time. Its cache follows the filter: asking for a different filter drops
// the pages cached for the previous one.
type Session struct {
	cache  *cache.PageCache
	engine *Engine
	ID     string
	table  model.Table
	fields []string
	mu     sync.Mutex
}

// NewSession creates a session over table with its own page cache.
func (e *Engine) NewSession(table model.Table, fields ...string) (*Session, error) {
	if _, err := model.SchemaFor(table); err != nil {
		return nil, err
	}
	c, err := cache.New(e.cfg.Cache)
	if err != nil {
		return nil, err
	}
	return &Session{
		cache:  c,
		engine: e,
		ID:     uuid.NewString(),
		table:  table,
		fields: fields,
	}, nil
}

// Table returns the table the session reads.
func (s *Session) Table() model.Table {
	return s.table
}

// Page returns page number (zero-based) of size rows. A zero size uses the
// engine page size. Counts and pages come from the cache when the filter is
// unchanged since the previous call.
func (s *Session) Page(ctx context.Context, filter model.Filter, number, size int) (*Page, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if size == 0 {
		size = s.engine.cfg.PageSize
	}
	if number < 0 || size < 0 || size > fetch.MaxPageSize {
		return nil, fmt.Errorf("%w: page %d of size %d", common.ErrInvalidConfig, number, size)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache.Bind(s.table, filter) {
		slog.Debug("Session filter changed", "session_id", s.ID, "table", s.table)
	}

	total, ok := s.cache.Count()
	if !ok {
		n, err := s.engine.port.Count(ctx, s.table, filter)
		if err != nil {
			return nil, &common.FatalQueryError{Op: "count", Table: string(s.table), Err: err}
		}
		s.cache.SetCount(n)
		total = n
	}

	page := &Page{Number: number, Size: size, Total: total, Rows: []model.Row{}}
	offset := number * size
	if offset >= total {
		return page, nil
	}

	rows, hit := s.cache.Page(offset, size)
	if !hit {
		var err error
		rows, err = s.engine.port.FetchPage(ctx, s.table, filter, s.fields, offset, size)
		if err != nil {
			return nil, fmt.Errorf("fetch %s rows %d-%d: %w", s.table, offset, offset+size-1, err)
		}
		s.cache.Put(offset, size, rows)
	}

	page.Rows = rows
	page.Cached = hit
	page.HasMore = offset+len(rows) < total
	return page, nil
}

// Invalidate drops every cached page and count.
func (s *Session) Invalidate() {
	s.cache.Invalidate()
}

// Stats reports cache activity for the session.
func (s *Session) Stats() cache.Stats {
	return s.cache.Stats()
}
