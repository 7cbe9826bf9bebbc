package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Veraticus/draftflow/internal/cli"
	"github.com/Veraticus/draftflow/internal/common"
	"github.com/Veraticus/draftflow/internal/model"
	"github.com/Veraticus/draftflow/internal/storage"
)

func (a *app) importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import JSON lines records into the local database",
		Long: `Import comparison or support thread records, one JSON object per line,
into the local sqlite database. Reads stdin when the file is "-" or omitted.

Records with an existing id are replaced, so the database is snapshotted
first unless --snapshot=false or store.keep_snapshots is 0.`,
		Args: cobra.MaximumNArgs(1),
		RunE: a.runImport,
	}

	cmd.Flags().String("table", string(model.TableComparisons), "target table (comparisons, support_threads)")
	cmd.Flags().Int("batch", 500, "records per transaction")
	cmd.Flags().Bool("snapshot", true, "snapshot the database before importing (see store.keep_snapshots)")

	return cmd
}

func (a *app) runImport(cmd *cobra.Command, args []string) error {
	table, _ := cmd.Flags().GetString("table")
	batch, _ := cmd.Flags().GetInt("batch")
	if batch <= 0 {
		return fmt.Errorf("%w: batch must be positive", common.ErrInvalidConfig)
	}
	if _, err := model.SchemaFor(model.Table(table)); err != nil {
		return err
	}

	source := "-"
	if len(args) == 1 {
		source = args[0]
	}
	var in io.Reader = cmd.InOrStdin()
	if source != "-" {
		f, err := os.Open(source)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", source, err)
		}
		defer func() { _ = f.Close() }()
		in = f
	}

	ctx := cmd.Context()
	store, err := a.openSQLite(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if snap, _ := cmd.Flags().GetBool("snapshot"); snap && a.cfg.Store.KeepSnapshots > 0 {
		snapshots, err := storage.NewSnapshotManager(store, a.cfg.Store.KeepSnapshots)
		if err != nil {
			return err
		}
		if _, err := snapshots.Auto(ctx, "import"); err != nil {
			return fmt.Errorf("failed to snapshot before import: %w", err)
		}
	}

	var imported int
	switch model.Table(table) {
	case model.TableComparisons:
		imported, err = importLines(ctx, in, batch, store.InsertComparisons)
	default:
		imported, err = importLines(ctx, in, batch, store.InsertThreads)
	}
	if err != nil {
		if imported > 0 {
			slog.Warn("Import stopped early", "imported", imported, "error", err)
		}
		return err
	}

	id, err := store.RecordImport(ctx, model.Table(table), source, imported)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, cli.FormatSuccess(fmt.Sprintf("Imported %d %s records (run %s)", imported, table, id)))
	return nil
}

// importLines decodes one record per line and inserts them in batches. It
// returns the number of records committed.
func importLines[T any](ctx context.Context, in io.Reader, batch int, insert func(context.Context, []T) error) (int, error) {
	reader := cli.NewLineReader(in)
	pending := make([]T, 0, batch)
	committed := 0

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := insert(ctx, pending); err != nil {
			return err
		}
		committed += len(pending)
		pending = pending[:0]
		return nil
	}

	for {
		line, err := reader.ReadLine(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return committed, err
		}

		var rec T
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return committed, common.NewUserError(fmt.Sprintf("line %d is not a valid record", reader.Line()), err)
		}
		pending = append(pending, rec)
		if len(pending) == batch {
			if err := flush(); err != nil {
				return committed, err
			}
		}
	}
	return committed, flush()
}
