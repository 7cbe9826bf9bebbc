package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/draftflow/internal/cli"
	"github.com/Veraticus/draftflow/internal/storage"
)

func (a *app) snapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage copies of the local database",
		Long: `Snapshots are compacted copies of the sqlite database kept in a snapshots
directory next to it. Imports take one automatically; restore one to undo an
import.`,
	}

	create := &cobra.Command{
		Use:   "create [id]",
		Short: "Snapshot the database",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			desc, _ := cmd.Flags().GetString("description")
			return a.withSnapshots(cmd, func(m *storage.SnapshotManager) error {
				info, err := m.Create(cmd.Context(), id, desc)
				if err != nil {
					return err
				}
				fmt.Fprintln(a.out, cli.FormatSuccess(fmt.Sprintf("Created snapshot %s", info.ID)))
				return nil
			})
		},
	}
	create.Flags().StringP("description", "d", "", "note stored with the snapshot")

	list := &cobra.Command{
		Use:   "list",
		Short: "List snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, _ := cmd.Flags().GetString("format")
			format, err := cli.ParseFormat(f)
			if err != nil {
				return err
			}
			return a.withSnapshots(cmd, func(m *storage.SnapshotManager) error {
				all, err := m.List(cmd.Context())
				if err != nil {
					return err
				}
				if all == nil {
					all = []storage.SnapshotInfo{}
				}
				return cli.NewRenderer(a.out, format).Render(all)
			})
		},
	}
	list.Flags().StringP("format", "f", string(cli.FormatTable), "output format (table, json)")

	restore := &cobra.Command{
		Use:   "restore <id>",
		Short: "Replace the database with a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSnapshots(cmd, func(m *storage.SnapshotManager) error {
				if err := m.Restore(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintln(a.out, cli.FormatSuccess(fmt.Sprintf("Restored snapshot %s", args[0])))
				return nil
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSnapshots(cmd, func(m *storage.SnapshotManager) error {
				if err := m.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintln(a.out, cli.FormatSuccess(fmt.Sprintf("Deleted snapshot %s", args[0])))
				return nil
			})
		},
	}

	cmd.AddCommand(create, list, restore, del)
	return cmd
}

// withSnapshots opens the sqlite store and runs fn with its snapshots.
func (a *app) withSnapshots(cmd *cobra.Command, fn func(*storage.SnapshotManager) error) error {
	store, err := a.openSQLite(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	m, err := storage.NewSnapshotManager(store, a.cfg.Store.KeepSnapshots)
	if err != nil {
		return err
	}
	return fn(m)
}
