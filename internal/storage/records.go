package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Veraticus/draftflow/internal/model"
)

// InsertComparisons upserts comparison records in one transaction. It exists
// for local imports; the engine itself never writes.
func (s *SQLiteStore) InsertComparisons(ctx context.Context, recs []model.ComparisonRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateComparisons(recs); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO comparisons (
				id, created_at, human_reply_date, category, subcategory, version,
				agent, changed, classification, reviewed_by, ai_reply, human_reply
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for i := range recs {
			r := &recs[i]
			var replyDate any
			if r.HumanReplyDate != nil {
				replyDate = r.HumanReplyDate.UTC()
			}
			var label any
			if r.Classification != nil {
				label = *r.Classification
			}
			if _, err := stmt.ExecContext(ctx,
				r.ID, r.CreatedAt.UTC(), replyDate, r.Category, r.Subcategory, r.Version,
				r.Agent, r.Changed, label, r.ReviewedBy, r.AIReply, r.HumanReply,
			); err != nil {
				return fmt.Errorf("failed to insert comparison %s: %w", r.ID, err)
			}
		}
		return nil
	})
}

// InsertThreads upserts support threads in one transaction.
func (s *SQLiteStore) InsertThreads(ctx context.Context, threads []model.SupportThreadRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateThreads(threads); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO support_threads (
				id, created_at, category, agent, status, ai_draft_id, human_changed,
				requires_reply, requires_editing, requires_system_action,
				requires_escalation, requires_refund, requires_attachment
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for i := range threads {
			th := &threads[i]
			var draft, changed any
			if th.AIDraftID != nil {
				draft = *th.AIDraftID
			}
			if th.HumanChanged != nil {
				changed = *th.HumanChanged
			}
			if _, err := stmt.ExecContext(ctx,
				th.ID, th.CreatedAt.UTC(), th.Category, th.Agent, string(th.Status), draft, changed,
				th.RequiresReply, th.RequiresEditing, th.RequiresSystemAction,
				th.RequiresEscalation, th.RequiresRefund, th.RequiresAttachment,
			); err != nil {
				return fmt.Errorf("failed to insert thread %s: %w", th.ID, err)
			}
		}
		return nil
	})
}

// RecordImport logs an import run and returns its id.
func (s *SQLiteStore) RecordImport(ctx context.Context, table model.Table, source string, rows int) (string, error) {
	if err := validateContext(ctx); err != nil {
		return "", err
	}
	id := uuid.NewString()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO import_runs (id, table_name, source, row_count) VALUES (?, ?, ?, ?)`,
		id, string(table), source, rows,
	); err != nil {
		return "", fmt.Errorf("failed to record import: %w", err)
	}
	slog.Info("Recorded import", "id", id, "table", table, "source", source, "rows", rows)
	return id, nil
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
