package main

import (
	"github.com/spf13/cobra"

	"github.com/Veraticus/draftflow/internal/cli"
	"github.com/Veraticus/draftflow/internal/model"
)

func (a *app) rowsCmd() *cobra.Command {
	ff := &filterFlags{}
	cmd := &cobra.Command{
		Use:   "rows",
		Short: "Show one page of raw rows",
		Long: `Show a page of raw rows from comparisons or support_threads. Pages are
numbered from zero; the footer tells whether more rows follow.`,
		Args: cobra.NoArgs,
	}
	ff.register(cmd)
	cmd.Flags().String("table", string(model.TableComparisons), "table to read (comparisons, support_threads)")
	cmd.Flags().Int("page", 0, "page number, from zero")
	cmd.Flags().Int("page-size", 50, "rows per page")
	cmd.Flags().StringSlice("fields", nil, "columns to show (default: all)")

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		table, _ := cmd.Flags().GetString("table")
		page, _ := cmd.Flags().GetInt("page")
		size, _ := cmd.Flags().GetInt("page-size")
		fields, _ := cmd.Flags().GetStringSlice("fields")

		format, err := cli.ParseFormat(ff.format)
		if err != nil {
			return err
		}
		loc, err := a.cfg.Location()
		if err != nil {
			return err
		}
		filter, err := ff.filter(loc)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		store, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		eng, err := a.newEngine(store, nil)
		if err != nil {
			return err
		}
		sess, err := eng.NewSession(model.Table(table), fields...)
		if err != nil {
			return err
		}
		p, err := sess.Page(ctx, filter, page, size)
		if err != nil {
			return err
		}
		return cli.NewRenderer(a.out, format).Render(p)
	}
	return cmd
}
