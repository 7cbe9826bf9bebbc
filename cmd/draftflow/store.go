package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/draftflow/internal/cli"
	"github.com/Veraticus/draftflow/internal/common"
	"github.com/Veraticus/draftflow/internal/config"
	"github.com/Veraticus/draftflow/internal/engine"
	"github.com/Veraticus/draftflow/internal/rest"
	"github.com/Veraticus/draftflow/internal/service"
	"github.com/Veraticus/draftflow/internal/storage"
)

// openStore connects the configured query port adapter.
func (a *app) openStore(ctx context.Context) (service.Store, error) {
	sc := a.cfg.Store
	switch sc.Driver {
	case config.DriverSQLite:
		return a.openSQLite(ctx)
	case config.DriverPostgres:
		store, err := storage.NewPostgresStore(ctx, sc.DSN, sc.MaxConns)
		if err != nil {
			return nil, common.NewUserError("could not connect to postgres", err)
		}
		return store, nil
	case config.DriverREST:
		return rest.New(rest.Options{
			BaseURL:           sc.URL,
			APIKey:            sc.APIKey,
			Token:             sc.Token,
			Retry:             a.cfg.RetryOptions(),
			RequestsPerSecond: sc.RequestsPerSecond,
			Burst:             sc.Burst,
			Timeout:           sc.Timeout,
		})
	default:
		return nil, fmt.Errorf("%w: unknown store driver %q", common.ErrInvalidConfig, sc.Driver)
	}
}

// openSQLite opens the local database and brings its schema up to date.
func (a *app) openSQLite(ctx context.Context) (*storage.SQLiteStore, error) {
	if err := a.requireSQLite(); err != nil {
		return nil, err
	}
	path := a.cfg.Store.DSN
	if err := config.EnsureParent(path); err != nil {
		return nil, err
	}
	store, err := storage.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Opened sqlite store", "path", path)
	return store, nil
}

func (a *app) requireSQLite() error {
	if a.cfg.Store.Driver != config.DriverSQLite {
		return common.NewUserError("this command needs the sqlite driver",
			fmt.Errorf("%w: driver is %s", common.ErrInvalidConfig, a.cfg.Store.Driver))
	}
	return nil
}

// newEngine builds an engine over port. progress, when set, receives page
// events.
func (a *app) newEngine(port service.QueryPort, progress *cli.FetchProgress) (*engine.Engine, error) {
	cfg, err := a.cfg.EngineConfig()
	if err != nil {
		return nil, err
	}
	if progress != nil {
		cfg.OnPage = progress.OnPage
	}
	return engine.NewWithConfig(port, cfg)
}
