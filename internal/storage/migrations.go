package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

func execAll(tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query '%s': %w", query, err)
		}
	}
	return nil
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS comparisons (
					id TEXT PRIMARY KEY,
					created_at DATETIME NOT NULL,
					human_reply_date DATETIME,
					category TEXT NOT NULL DEFAULT '',
					subcategory TEXT NOT NULL DEFAULT '',
					version TEXT NOT NULL DEFAULT '',
					agent TEXT NOT NULL DEFAULT '',
					changed BOOLEAN NOT NULL DEFAULT 0,
					classification TEXT,
					reviewed_by TEXT NOT NULL DEFAULT '',
					ai_reply TEXT NOT NULL DEFAULT '',
					human_reply TEXT NOT NULL DEFAULT ''
				)`,
				`CREATE INDEX idx_comparisons_created_at ON comparisons(created_at)`,

				`CREATE TABLE IF NOT EXISTS support_threads (
					id TEXT PRIMARY KEY,
					created_at DATETIME NOT NULL,
					category TEXT NOT NULL DEFAULT '',
					agent TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL,
					ai_draft_id TEXT,
					human_changed BOOLEAN,
					requires_reply BOOLEAN NOT NULL DEFAULT 0,
					requires_editing BOOLEAN NOT NULL DEFAULT 0,
					requires_system_action BOOLEAN NOT NULL DEFAULT 0,
					requires_escalation BOOLEAN NOT NULL DEFAULT 0,
					requires_refund BOOLEAN NOT NULL DEFAULT 0,
					requires_attachment BOOLEAN NOT NULL DEFAULT 0
				)`,
				`CREATE INDEX idx_support_threads_created_at ON support_threads(created_at)`,
			})
		},
	},
	{
		Version:     2,
		Description: "Index filter columns",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE INDEX IF NOT EXISTS idx_comparisons_human_reply_date ON comparisons(human_reply_date)`,
				`CREATE INDEX IF NOT EXISTS idx_comparisons_category_version ON comparisons(category, version)`,
				`CREATE INDEX IF NOT EXISTS idx_support_threads_status ON support_threads(status)`,
			})
		},
	},
	{
		Version:     3,
		Description: "Add import runs for auditing",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS import_runs (
					id TEXT PRIMARY KEY,
					table_name TEXT NOT NULL,
					source TEXT NOT NULL,
					row_count INTEGER NOT NULL DEFAULT 0,
					imported_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
			})
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	finalVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}
	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

// SchemaVersion returns the applied schema version.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}
