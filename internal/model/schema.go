package model

import (
	"fmt"
	"log/slog"

	"github.com/Veraticus/draftflow/internal/common"
)

// Table names a record table in the store.
type Table string

// Known tables.
const (
	TableComparisons    Table = "comparisons"
	TableSupportThreads Table = "support_threads"
)

// Schema describes the columns a table exposes to filter predicates.
type Schema struct {
	DateColumns map[DateField]string
	// SetColumns maps a filter set (versions, categories, agents, statuses)
	// to the column it constrains.
	SetColumns  map[string]string
	FlagColumns []string
	Fields      []string
	Table       Table
}

// Filter set names used as SetColumns keys.
const (
	SetVersions   = "versions"
	SetCategories = "categories"
	SetAgents     = "agents"
	SetStatuses   = "statuses"
)

var schemas = map[Table]Schema{
	TableComparisons: {
		Table: TableComparisons,
		DateColumns: map[DateField]string{
			DateFieldCreated:    "created_at",
			DateFieldHumanReply: "human_reply_date",
		},
		SetColumns: map[string]string{
			SetVersions:   "version",
			SetCategories: "category",
			SetAgents:     "agent",
		},
		Fields: []string{
			"id", "created_at", "human_reply_date", "category", "subcategory",
			"version", "agent", "changed", "classification", "reviewed_by",
		},
	},
	TableSupportThreads: {
		Table: TableSupportThreads,
		DateColumns: map[DateField]string{
			DateFieldCreated: "created_at",
		},
		SetColumns: map[string]string{
			SetCategories: "category",
			SetAgents:     "agent",
			SetStatuses:   "status",
		},
		FlagColumns: ThreadFlags,
		Fields: append([]string{
			"id", "created_at", "category", "agent", "status", "ai_draft_id", "human_changed",
		}, ThreadFlags...),
	},
}

// SchemaFor returns the schema of a known table.
func SchemaFor(table Table) (Schema, error) {
	s, ok := schemas[table]
	if !ok {
		return Schema{}, fmt.Errorf("%w: %s", common.ErrUnknownTable, table)
	}
	return s, nil
}

// DateColumn returns the column a date field maps to.
func (s Schema) DateColumn(field DateField) (string, error) {
	if field == "" {
		field = DateFieldCreated
	}
	col, ok := s.DateColumns[field]
	if !ok {
		return "", fmt.Errorf("%w: %s has no %s date", common.ErrUnsupportedColumn, s.Table, field)
	}
	return col, nil
}

// HasFlag reports whether name is one of the table's flag columns.
func (s Schema) HasFlag(name string) bool {
	for _, f := range s.FlagColumns {
		if f == name {
			return true
		}
	}
	return false
}

// Project drops the filter constraints the table cannot express. A filter
// shared across dashboards may carry constraints meant for the other table.
func (s Schema) Project(f Filter) Filter {
	out := f.Normalize()
	drop := func(set string, values []string) []string {
		if len(values) == 0 {
			return nil
		}
		if _, ok := s.SetColumns[set]; ok {
			return values
		}
		slog.Debug("dropping filter constraint", "table", s.Table, "set", set, "values", values)
		return nil
	}
	out.Versions = drop(SetVersions, out.Versions)
	out.Categories = drop(SetCategories, out.Categories)
	out.Agents = drop(SetAgents, out.Agents)
	out.Statuses = drop(SetStatuses, out.Statuses)

	flags := out.RequirementFlags[:0:0]
	for _, flag := range out.RequirementFlags {
		if s.HasFlag(flag) {
			flags = append(flags, flag)
		} else {
			slog.Debug("dropping flag constraint", "table", s.Table, "flag", flag)
		}
	}
	if len(flags) == 0 {
		flags = nil
	}
	out.RequirementFlags = flags

	if _, ok := s.DateColumns[out.DateField]; !ok {
		slog.Debug("falling back to created date", "table", s.Table, "date_field", out.DateField)
		out.DateField = DateFieldCreated
	}
	return out
}
