// Package storage provides the SQL query port adapters: an embedded SQLite
// store for local analysis and a PostgreSQL store for the shared database.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Veraticus/draftflow/internal/common"
	"github.com/Veraticus/draftflow/internal/model"
	"github.com/Veraticus/draftflow/internal/service"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore implements service.Store on an SQLite database file.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

var _ service.Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't benefit from multiple connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// Count implements service.QueryPort.
func (s *SQLiteStore) Count(ctx context.Context, table model.Table, filter model.Filter) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	query, args, err := CountQuery(table, filter, Question)
	if err != nil {
		return 0, err
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

// FetchPage implements service.QueryPort.
func (s *SQLiteStore) FetchPage(ctx context.Context, table model.Table, filter model.Filter, fields []string, offset, limit int) ([]model.Row, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	query, args, err := PageQuery(table, filter, fields, offset, limit, Question)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s rows %d-%d: %w", table, offset, offset+limit-1, err)
	}
	defer func() { _ = rows.Close() }()

	return scanRows(rows)
}

// CallProcedure implements service.QueryPort. SQLite has no stored
// procedures, so each known procedure is emulated with a query.
func (s *SQLiteStore) CallProcedure(ctx context.Context, name string, args map[string]any) ([]model.Row, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	switch name {
	case service.ProcCategoryDistribution:
		from, to, err := procedureRange(args)
		if err != nil {
			return nil, err
		}
		rows, err := s.db.QueryContext(ctx, `
			SELECT category, COUNT(*) AS count, COALESCE(SUM(changed), 0) AS changed
			FROM comparisons
			WHERE created_at >= ? AND created_at < ?
			GROUP BY category
			ORDER BY count DESC, category ASC
		`, from.UTC(), to.UTC())
		if err != nil {
			return nil, fmt.Errorf("failed to call %s: %w", name, err)
		}
		defer func() { _ = rows.Close() }()
		return scanRows(rows)
	default:
		return nil, fmt.Errorf("%w: %s", common.ErrUnknownProcedure, name)
	}
}

// procedureRange extracts the date range arguments shared by the procedures.
func procedureRange(args map[string]any) (time.Time, time.Time, error) {
	from, okFrom := args[service.ArgDateFrom].(time.Time)
	to, okTo := args[service.ArgDateTo].(time.Time)
	if !okFrom || !okTo {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %s and %s must be timestamps",
			common.ErrDateRangeInvalid, service.ArgDateFrom, service.ArgDateTo)
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %s is before %s",
			common.ErrDateRangeInvalid, service.ArgDateTo, service.ArgDateFrom)
	}
	return from, to, nil
}

// scanRows reads every row into a column-keyed map.
func scanRows(rows *sql.Rows) ([]model.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	out := []model.Row{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(model.Row, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	slog.Debug("Scanned rows", "count", len(out))
	return out, nil
}
