// Package cache holds pages a session already fetched so that paging back and
// forth through a result set does not hit the store again.
package cache

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Veraticus/draftflow/internal/common"
	"github.com/Veraticus/draftflow/internal/model"
)

var lookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "draftflow_page_cache_lookups_total",
	Help: "Page cache lookups by result",
}, []string{"result"})

// Options bounds a PageCache.
type Options struct {
	// MaxPages caps the number of cached pages.
	MaxPages int
	// MaxRows caps the number of cached rows across all pages. Zero means
	// only MaxPages applies.
	MaxRows int
	// TTL expires pages and counts. Zero keeps them until evicted.
	TTL time.Duration
}

// DefaultOptions returns the default quota.
func DefaultOptions() Options {
	return Options{
		MaxPages: 64,
		MaxRows:  20000,
		TTL:      15 * time.Minute,
	}
}

type pageKey struct {
	offset int
	limit  int
}

type entry struct {
	expiry time.Time
	rows   []model.Row
}

// Stats reports cache activity since creation.
type Stats struct {
	Hits          int `json:"hits"`
	Misses        int `json:"misses"`
	Evictions     int `json:"evictions"`
	Invalidations int `json:"invalidations"`
	Pages         int `json:"pages"`
	Rows          int `json:"rows"`
}

// PageCache stores pages of one (table, filter) pair at a time. Binding a
// different filter drops everything cached for the previous one. It belongs
// to a single session but is safe for concurrent use.
type PageCache struct {
	now         func() time.Time
	pages       *lru.Cache[pageKey, entry]
	countExpiry time.Time
	table       model.Table
	fingerprint string
	opts        Options
	stats       Stats
	count       int
	hasCount    bool
	mu          sync.Mutex
}

// New creates a PageCache.
func New(opts Options) (*PageCache, error) {
	if opts.MaxPages <= 0 {
		return nil, fmt.Errorf("%w: cache max pages must be positive, got %d", common.ErrInvalidConfig, opts.MaxPages)
	}
	if opts.MaxRows < 0 || opts.TTL < 0 {
		return nil, fmt.Errorf("%w: cache quotas must not be negative", common.ErrInvalidConfig)
	}

	c := &PageCache{opts: opts, now: time.Now}
	pages, err := lru.NewWithEvict(opts.MaxPages, c.onEvict)
	if err != nil {
		return nil, fmt.Errorf("failed to create page cache: %w", err)
	}
	c.pages = pages
	return c, nil
}

// onEvict runs inside lru calls, which only happen with c.mu held.
func (c *PageCache) onEvict(_ pageKey, e entry) {
	c.stats.Rows -= len(e.rows)
	c.stats.Evictions++
}

// Bind points the cache at a table and filter. When either differs from the
// current binding every cached page and count is dropped. It reports whether
// the cache was invalidated.
func (c *PageCache) Bind(table model.Table, filter model.Filter) bool {
	fp := filter.Fingerprint()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.table == table && c.fingerprint == fp {
		return false
	}
	changed := c.fingerprint != ""
	c.table = table
	c.fingerprint = fp
	if changed {
		c.purgeLocked()
		slog.Debug("Page cache invalidated by filter change", "table", table)
	}
	return changed
}

// Fingerprint returns the fingerprint of the bound filter.
func (c *PageCache) Fingerprint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fingerprint
}

// Page returns the cached rows for offset and limit.
func (c *PageCache) Page(offset, limit int) ([]model.Row, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := pageKey{offset: offset, limit: limit}
	e, ok := c.pages.Get(key)
	if ok && c.expired(e.expiry) {
		c.pages.Remove(key)
		ok = false
	}
	if !ok {
		c.stats.Misses++
		lookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	c.stats.Hits++
	lookups.WithLabelValues("hit").Inc()
	return e.rows, true
}

// Put stores a page. Least recently used pages are evicted until both quotas
// hold. A page larger than MaxRows is not stored.
func (c *PageCache) Put(offset, limit int, rows []model.Row) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.opts.MaxRows > 0 && len(rows) > c.opts.MaxRows {
		slog.Debug("Page exceeds cache row quota", "rows", len(rows), "max_rows", c.opts.MaxRows)
		return
	}

	key := pageKey{offset: offset, limit: limit}
	// Add replaces an existing page in place without an eviction callback.
	if old, ok := c.pages.Peek(key); ok {
		c.stats.Rows -= len(old.rows)
	}

	c.pages.Add(key, entry{rows: rows, expiry: c.expiryFrom(c.now())})
	c.stats.Rows += len(rows)

	for c.opts.MaxRows > 0 && c.stats.Rows > c.opts.MaxRows {
		if _, _, ok := c.pages.RemoveOldest(); !ok {
			break
		}
	}
}

// Count returns the cached row count for the bound filter.
func (c *PageCache) Count() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasCount || c.expired(c.countExpiry) {
		return 0, false
	}
	return c.count, true
}

// SetCount caches the row count for the bound filter.
func (c *PageCache) SetCount(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count = n
	c.hasCount = true
	c.countExpiry = c.expiryFrom(c.now())
}

// Invalidate drops every cached page and count but keeps the binding.
func (c *PageCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeLocked()
}

// Stats returns a snapshot of cache activity.
func (c *PageCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Pages = c.pages.Len()
	return s
}

func (c *PageCache) purgeLocked() {
	evictions := c.stats.Evictions
	c.pages.Purge()
	// Purge calls onEvict for every page; those are not quota evictions.
	c.stats.Evictions = evictions
	c.stats.Rows = 0
	c.stats.Invalidations++
	c.count = 0
	c.hasCount = false
}

func (c *PageCache) expiryFrom(t time.Time) time.Time {
	if c.opts.TTL == 0 {
		return time.Time{}
	}
	return t.Add(c.opts.TTL)
}

func (c *PageCache) expired(expiry time.Time) bool {
	return !expiry.IsZero() && c.now().After(expiry)
}
