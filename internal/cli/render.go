package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/Veraticus/draftflow/internal/aggregate"
	"github.com/Veraticus/draftflow/internal/common"
	"github.com/Veraticus/draftflow/internal/engine"
	"github.com/Veraticus/draftflow/internal/model"
	"github.com/Veraticus/draftflow/internal/storage"
)

// Format selects how reports are written.
type Format string

// Output formats.
const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

// ParseFormat validates a --format flag value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatTable, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unknown output format %q", common.ErrInvalidConfig, s)
	}
}

// Renderer writes engine reports to a terminal or a pipe.
type Renderer struct {
	writer io.Writer
	format Format
}

// NewRenderer creates a renderer. An empty format renders tables.
func NewRenderer(writer io.Writer, format Format) *Renderer {
	if writer == nil {
		writer = os.Stdout
	}
	if format == "" {
		format = FormatTable
	}
	return &Renderer{writer: writer, format: format}
}

// Render writes report in the renderer's format.
func (r *Renderer) Render(report any) error {
	if r.format == FormatJSON {
		enc := json.NewEncoder(r.writer)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	var out string
	switch rep := report.(type) {
	case *engine.GroupReport:
		out = renderGroup(rep)
	case *engine.QualityReport:
		out = renderQuality(rep)
	case *engine.DetailReport:
		out = renderDetail(rep)
	case *engine.TrendReport:
		out = renderTrend(rep)
	case *engine.DistributionReport:
		out = renderDistribution(rep)
	case *engine.CorrelationReport:
		out = renderCorrelation(rep)
	case *engine.FlowReport:
		out = renderFlow(rep)
	case *engine.Page:
		out = renderPage(rep)
	case []storage.SnapshotInfo:
		out = renderSnapshots(rep)
	default:
		return fmt.Errorf("no table layout for %T", report)
	}
	_, err := fmt.Fprintln(r.writer, out)
	return err
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(SubtleStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle
			}
			return TableCellStyle
		})
}

func statRow(key string, s model.GroupedStat) []string {
	return []string{
		key,
		strconv.Itoa(s.Total),
		strconv.Itoa(s.Quality),
		strconv.Itoa(s.Error),
		strconv.Itoa(s.Excluded),
		strconv.Itoa(s.Unclassified),
		FormatPercent(s.QualityRate()),
	}
}

var statHeaders = []string{"Quality", "Error", "Excluded", "Unclassified", "Rate"}

func renderGroup(rep *engine.GroupReport) string {
	t := newTable(append([]string{strings.ToUpper(rep.By), "Total"}, statHeaders...)...)
	for _, g := range rep.Groups {
		t.Row(statRow(g.GroupKey, g)...)
	}
	t.Row(statRow("all", rep.Overall)...)
	return joinSections(FormatTitle("Quality by "+rep.By), t.String(), renderMeta(rep.Meta))
}

func renderQuality(rep *engine.QualityReport) string {
	t := newTable("Category", "Total", "Errors", "Rate", "Rate change", "Error change")
	rows := append(slices.Clone(rep.Categories), rep.Overall)
	for _, c := range rows {
		t.Row(
			c.Category,
			strconv.Itoa(c.Stat.Total),
			strconv.Itoa(c.Stat.Error),
			FormatPercent(c.Stat.QualityRate()),
			FormatTrend(c.QualityRate.Trend, true),
			FormatTrend(c.Errors.Trend, false),
		)
	}

	c := rep.Counts
	summary := fmt.Sprintf("Reviewed %d of %d (%d unreviewed, %d unknown label)\n", c.Reviewed, c.Total, c.Unreviewed, c.Unknown) +
		fmt.Sprintf("Perfect matches: %d  Stylistic: %d  Improvements: %d  Fact errors: %d  Context shifts: %d",
			c.PerfectMatches, c.StylisticChanges, c.MeaningfulImprovements, c.CriticalFactErrors, c.ContextShifts)

	title := fmt.Sprintf("Quality %s vs %s", formatRange(rep.Range), formatRange(rep.Previous))
	return joinSections(FormatTitle(title), t.String(), RenderBox("Summary", summary), renderMeta(rep.Meta))
}

func renderDetail(rep *engine.DetailReport) string {
	t := newTable(append([]string{"Category", "Version", "Total"}, statHeaders...)...)
	for _, row := range rep.Rows {
		t.Row(append([]string{row.Category, row.Version}, statRow("", row.Stat)[1:]...)...)
		for _, w := range row.Weeks {
			label := SubtleStyle.Render("  week of " + w.WeekStart.Format(time.DateOnly))
			t.Row(append([]string{"", label}, statRow("", w.Stat)[1:]...)...)
		}
	}
	return joinSections(FormatTitle("Category by version"), t.String(), renderMeta(rep.Meta))
}

func renderTrend(rep *engine.TrendReport) string {
	t := newTable(strings.ToUpper(string(rep.Granularity)), "Total", "Errors", "Rate", "Change")
	for i, p := range rep.Points {
		change := SubtleStyle.Render("-")
		if i > 0 && p.Key != aggregate.UndatedKey {
			change = FormatTrend(p.Change.Trend, true)
		}
		t.Row(p.Key, strconv.Itoa(p.Stat.Total), strconv.Itoa(p.Stat.Error), FormatPercent(p.QualityRate), change)
	}
	return joinSections(FormatTitle("Quality trend by "+string(rep.Granularity)), t.String(), renderMeta(rep.Meta))
}

func renderDistribution(rep *engine.DistributionReport) string {
	t := newTable("Category", "Count", "Changed", "Changed %")
	for _, c := range rep.Categories {
		pct := 0.0
		if c.Count > 0 {
			pct = float64(c.Changed) / float64(c.Count) * 100
		}
		t.Row(c.Category, strconv.Itoa(c.Count), strconv.Itoa(c.Changed), FormatPercent(pct))
	}
	sections := []string{FormatTitle("Category distribution"), t.String()}
	if rep.PushedDown {
		sections = append(sections, SubtleStyle.Render("computed by the store"))
	}
	return joinSections(append(sections, renderMeta(rep.Meta))...)
}

func renderCorrelation(rep *engine.CorrelationReport) string {
	t := newTable(append([]string{""}, rep.Flags...)...)
	for i, row := range rep.Matrix {
		cells := make([]string, 0, len(row)+1)
		cells = append(cells, rep.Flags[i])
		for _, v := range row {
			cells = append(cells, strconv.FormatFloat(v, 'f', 2, 64))
		}
		t.Row(cells...)
	}
	return joinSections(FormatTitle("Requirement correlation"), t.String(), renderMeta(rep.Meta))
}

func renderFlow(rep *engine.FlowReport) string {
	nodes := newTable("Node", "Threads")
	for _, n := range rep.Graph.Nodes {
		nodes.Row(string(n.ID), strconv.Itoa(n.Count))
	}
	edges := newTable("From", "To", "Weight")
	for _, e := range rep.Graph.Edges {
		edges.Row(string(e.Source), string(e.Target), strconv.Itoa(e.Weight))
	}
	sections := []string{
		FormatTitle("Draft flow"),
		lipgloss.JoinHorizontal(lipgloss.Top, nodes.String(), "  ", edges.String()),
	}
	if rep.Graph.Approximate {
		sections = append(sections, FormatInfo(fmt.Sprintf("Resolution edges use %s attribution and are approximate.", rep.Attribution)))
	}
	return joinSections(append(sections, renderMeta(rep.Meta))...)
}

func renderPage(p *engine.Page) string {
	var headers []string
	if len(p.Rows) > 0 {
		headers = sortedKeys(p.Rows[0])
	}
	t := newTable(headers...)
	for _, row := range p.Rows {
		cells := make([]string, len(headers))
		for i, h := range headers {
			cells[i] = formatCell(row[h])
		}
		t.Row(cells...)
	}
	footer := fmt.Sprintf("page %d, %d of %d rows", p.Number, len(p.Rows), p.Total)
	if p.HasMore {
		footer += ", more available"
	}
	if p.Cached {
		footer += " (cached)"
	}
	return joinSections(t.String(), SubtleStyle.Render(footer))
}

func renderSnapshots(list []storage.SnapshotInfo) string {
	if len(list) == 0 {
		return SubtleStyle.Render("no snapshots")
	}
	t := newTable("ID", "Created", "Comparisons", "Threads", "Size", "Schema", "Description")
	for _, s := range list {
		t.Row(
			s.ID,
			s.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			strconv.Itoa(s.RowCounts["comparisons"]),
			strconv.Itoa(s.RowCounts["support_threads"]),
			formatBytes(s.FileSize),
			strconv.Itoa(s.SchemaVersion),
			s.Description,
		)
	}
	return t.String()
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func sortedKeys(row model.Row) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	// id first, the rest alphabetical.
	slices.SortFunc(keys, func(a, b string) int {
		switch {
		case a == b:
			return 0
		case a == "id":
			return -1
		case b == "id":
			return 1
		}
		return strings.Compare(a, b)
	})
	return keys
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case time.Time:
		return x.Format(time.DateTime)
	case *time.Time:
		if x == nil {
			return ""
		}
		return x.Format(time.DateTime)
	default:
		return fmt.Sprint(x)
	}
}

func formatRange(r model.DateRange) string {
	return r.From.Format(time.DateOnly) + ".." + r.To.Format(time.DateOnly)
}

func renderMeta(m engine.Meta) string {
	lines := []string{SubtleStyle.Render(fmt.Sprintf("%d records", m.Records))}
	if m.Partial {
		lines = append(lines, FormatWarning("Partial results: some pages are missing."))
	}
	for _, w := range m.Warnings {
		lines = append(lines, WarningStyle.Render("  "+w.String()))
	}
	return strings.Join(lines, "\n")
}

func joinSections(sections ...string) string {
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
