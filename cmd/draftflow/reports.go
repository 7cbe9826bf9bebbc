package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/draftflow/internal/cli"
	"github.com/Veraticus/draftflow/internal/engine"
	"github.com/Veraticus/draftflow/internal/model"
)

// filterFlags are shared by every report command.
type filterFlags struct {
	from       string
	to         string
	dateField  string
	format     string
	versions   []string
	categories []string
	agents     []string
	statuses   []string
	flags      []string
	days       int
	progress   bool
}

func (f *filterFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.from, "from", "", "start of the range (YYYY-MM-DD or RFC 3339)")
	fs.StringVar(&f.to, "to", "", "end of the range, inclusive (YYYY-MM-DD or RFC 3339)")
	fs.IntVar(&f.days, "days", 7, "range length in days when --from is omitted")
	fs.StringVar(&f.dateField, "date-field", string(model.DateFieldCreated), "date the range applies to (created, human_reply)")
	fs.StringSliceVar(&f.versions, "version", nil, "only these versions")
	fs.StringSliceVar(&f.categories, "category", nil, "only these categories")
	fs.StringSliceVar(&f.agents, "agent", nil, "only these agents")
	fs.StringSliceVar(&f.statuses, "status", nil, "only threads with these statuses")
	fs.StringSliceVar(&f.flags, "requires", nil, "only threads with these requirement flags set")
	fs.StringVarP(&f.format, "format", "f", string(cli.FormatTable), "output format (table, json)")
	fs.BoolVar(&f.progress, "progress", true, "show fetch progress on stderr")
}

func (f *filterFlags) filter(loc *time.Location) (model.Filter, error) {
	r, err := model.ResolveRange(f.from, f.to, f.days, time.Now(), loc)
	if err != nil {
		return model.Filter{}, err
	}
	filter := model.Filter{
		DateRange:        r,
		DateField:        model.DateField(f.dateField),
		Versions:         f.versions,
		Categories:       f.categories,
		Agents:           f.agents,
		Statuses:         f.statuses,
		RequirementFlags: f.flags,
	}
	return filter, filter.Validate()
}

// reportFunc computes one report for a filter.
type reportFunc func(ctx context.Context, eng *engine.Engine, filter model.Filter) (any, error)

// runReport wires store, engine, progress and renderer around build.
func (a *app) runReport(cmd *cobra.Command, ff *filterFlags, build reportFunc) error {
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

	var progress *cli.FetchProgress
	if ff.progress {
		progress = cli.NewFetchProgress(a.errOut)
	}
	eng, err := a.newEngine(store, progress)
	if err != nil {
		return err
	}

	rep, err := build(ctx, eng, filter)
	if progress != nil {
		progress.Finish()
	}
	if rep == nil {
		return err
	}

	if renderErr := cli.NewRenderer(a.out, format).Render(rep); renderErr != nil {
		return renderErr
	}
	if err != nil && errors.Is(err, context.Canceled) && a.interrupts.WasInterrupted() {
		fmt.Fprintln(a.errOut, cli.FormatWarning("Interrupted: the report covers the rows fetched before the interrupt."))
		return nil
	}
	return err
}

// report drops typed nil pointers so callers can test for a missing report.
func report[T any](rep *T, err error) (any, error) {
	if rep == nil {
		return nil, err
	}
	return rep, err
}

func (a *app) reportCommand(use, short, long string, build func(cmd *cobra.Command) reportFunc, extra func(cmd *cobra.Command)) *cobra.Command {
	ff := &filterFlags{}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		Args:  cobra.NoArgs,
	}
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		return a.runReport(cmd, ff, build(cmd))
	}
	ff.register(cmd)
	if extra != nil {
		extra(cmd)
	}
	return cmd
}

func (a *app) reportCmds() []*cobra.Command {
	fixed := func(fn reportFunc) func(*cobra.Command) reportFunc {
		return func(*cobra.Command) reportFunc { return fn }
	}

	return []*cobra.Command{
		a.reportCommand("quality", "Quality per category compared with the previous period",
			`Partition comparisons into quality, error, excluded and unclassified
records per category, with trends against the period of equal length that
ends where this one starts.`,
			fixed(func(ctx context.Context, eng *engine.Engine, f model.Filter) (any, error) {
				return report(eng.QualityReport(ctx, f))
			}), nil),

		a.reportCommand("group", "Grouped quality statistics",
			`Group comparisons by category, version, agent or category_version.`,
			func(cmd *cobra.Command) reportFunc {
				by, _ := cmd.Flags().GetString("by")
				return func(ctx context.Context, eng *engine.Engine, f model.Filter) (any, error) {
					return report(eng.Group(ctx, f, by))
				}
			},
			func(cmd *cobra.Command) {
				cmd.Flags().String("by", engine.GroupCategory, "grouping key (category, version, agent, category_version)")
			}),

		a.reportCommand("detail", "Category by version table with weekly breakdown",
			`One row per category and version, newest version first, each split into
Monday-start weeks of the selected date field.`,
			fixed(func(ctx context.Context, eng *engine.Engine, f model.Filter) (any, error) {
				return report(eng.DetailedTable(ctx, f))
			}), nil),

		a.reportCommand("trend", "Quality trend by day or week",
			`Bucket comparisons by calendar day or week. Every bucket in the range is
shown, empty ones included.`,
			func(cmd *cobra.Command) reportFunc {
				g, _ := cmd.Flags().GetString("granularity")
				return func(ctx context.Context, eng *engine.Engine, f model.Filter) (any, error) {
					return report(eng.Trends(ctx, f, engine.Granularity(g)))
				}
			},
			func(cmd *cobra.Command) {
				cmd.Flags().String("granularity", string(engine.Weekly), "bucket width (day, week)")
			}),

		a.reportCommand("distribution", "Comparisons and changed replies per category",
			`Count comparisons per category. Plain created-date ranges are computed by
the store when push-down is enabled.`,
			fixed(func(ctx context.Context, eng *engine.Engine, f model.Filter) (any, error) {
				return report(eng.CategoryDistribution(ctx, f))
			}), nil),

		a.reportCommand("correlate", "Co-occurrence of thread requirement flags",
			`Pairwise share of support threads that have both flags set. With no
--flag every requirement flag is used.`,
			func(cmd *cobra.Command) reportFunc {
				flags, _ := cmd.Flags().GetStringSlice("flag")
				return func(ctx context.Context, eng *engine.Engine, f model.Filter) (any, error) {
					return report(eng.Correlation(ctx, f, flags...))
				}
			},
			func(cmd *cobra.Command) {
				cmd.Flags().StringSlice("flag", nil, "requirement flags to correlate")
			}),

		a.reportCommand("flow", "Draft flow from AI drafts to resolution",
			`Count support threads moving from created through rejected, used as is or
edited, to resolved or pending.`,
			fixed(func(ctx context.Context, eng *engine.Engine, f model.Filter) (any, error) {
				return report(eng.Flow(ctx, f))
			}), nil),
	}
}
