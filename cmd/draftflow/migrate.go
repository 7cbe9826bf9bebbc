package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/draftflow/internal/cli"
	"github.com/Veraticus/draftflow/internal/storage"
)

func (a *app) migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the local sqlite schema to the latest version.

Only the sqlite driver has a local schema; postgres and REST stores are
read as they are.`,
		RunE: a.runMigrate,
	}

	// Flags
	cmd.Flags().Bool("status", false, "Show current migration status without applying changes")

	return cmd
}

func (a *app) runMigrate(cmd *cobra.Command, _ []string) error {
	status, _ := cmd.Flags().GetBool("status")
	ctx := cmd.Context()
	path := a.cfg.Store.DSN

	if status {
		if err := a.requireSQLite(); err != nil {
			return err
		}
		store, err := storage.NewSQLiteStore(path)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer func() { _ = store.Close() }()

		current, err := store.SchemaVersion(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, cli.FormatInfo(fmt.Sprintf("Database %s is at schema version %d of %d", path, current, storage.ExpectedSchemaVersion)))
		return nil
	}

	slog.Info("Running database migrations", "database", path)
	store, err := a.openSQLite(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	fmt.Fprintln(a.out, cli.FormatSuccess("Database migrations completed"))
	return nil
}
