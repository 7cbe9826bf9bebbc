package storage

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Veraticus/draftflow/internal/common"
	"github.com/Veraticus/draftflow/internal/model"
	"github.com/Veraticus/draftflow/internal/service"
)

// PostgresStore implements service.Store on a PostgreSQL pool. Named
// procedures are server-side set-returning functions.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ service.Store = (*PostgresStore)(nil)

// NewPostgresStore connects to databaseURL. maxConns of zero keeps the pool default.
func NewPostgresStore(ctx context.Context, databaseURL string, maxConns int32) (*PostgresStore, error) {
	if err := validateString(databaseURL, "databaseURL"); err != nil {
		return nil, err
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases every pooled connection.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Count implements service.QueryPort.
func (s *PostgresStore) Count(ctx context.Context, table model.Table, filter model.Filter) (int, error) {
	query, args, err := CountQuery(table, filter, Dollar)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return int(n), nil
}

// FetchPage implements service.QueryPort.
func (s *PostgresStore) FetchPage(ctx context.Context, table model.Table, filter model.Filter, fields []string, offset, limit int) ([]model.Row, error) {
	query, args, err := PageQuery(table, filter, fields, offset, limit, Dollar)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s rows %d-%d: %w", table, offset, offset+limit-1, err)
	}
	return collectRows(rows)
}

// CallProcedure implements service.QueryPort.
func (s *PostgresStore) CallProcedure(ctx context.Context, name string, args map[string]any) ([]model.Row, error) {
	query, named, err := procedureQuery(name, args)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, query, named)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", name, err)
	}
	return collectRows(rows)
}

// procedureQuery renders "SELECT * FROM name(arg => @arg, ...)" with
// arguments in sorted order so the statement text is stable.
func procedureQuery(name string, args map[string]any) (string, pgx.NamedArgs, error) {
	if !validIdent(name) {
		return "", nil, fmt.Errorf("%w: %q", common.ErrUnknownProcedure, name)
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		if !validIdent(k) {
			return "", nil, fmt.Errorf("%w: invalid argument name %q", common.ErrInvalidConfig, k)
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)

	params := make([]string, len(keys))
	named := make(pgx.NamedArgs, len(keys))
	for i, k := range keys {
		params[i] = fmt.Sprintf("%s => @%s", k, k)
		v := args[k]
		if t, ok := v.(time.Time); ok {
			v = t.UTC()
		}
		named[k] = v
	}
	return fmt.Sprintf("SELECT * FROM %s(%s)", name, strings.Join(params, ", ")), named, nil
}

func collectRows(rows pgx.Rows) ([]model.Row, error) {
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("failed to collect rows: %w", err)
	}
	out := make([]model.Row, len(maps))
	for i, m := range maps {
		out[i] = model.Row(m)
	}
	return out, nil
}
