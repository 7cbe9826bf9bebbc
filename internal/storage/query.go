package storage

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/Veraticus/draftflow/internal/common"
	"github.com/Veraticus/draftflow/internal/model"
)

// Placeholder selects how bind parameters are rendered.
type Placeholder int

const (
	// Question renders "?" placeholders (sqlite).
	Question Placeholder = iota
	// Dollar renders "$1", "$2", ... placeholders (postgres).
	Dollar
)

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Where is a rendered predicate with its bind arguments.
type Where struct {
	Clause string
	Args   []any
}

// SQL returns " WHERE <clause>", or "" for an empty predicate.
func (w Where) SQL() string {
	if w.Clause == "" {
		return ""
	}
	return " WHERE " + w.Clause
}

type whereBuilder struct {
	parts []string
	args  []any
	style Placeholder
}

func (b *whereBuilder) bind(v any) string {
	b.args = append(b.args, v)
	if b.style == Dollar {
		return fmt.Sprintf("$%d", len(b.args))
	}
	return "?"
}

// BuildWhere renders the fixed predicate shape: a half-open date range on the
// selected date column, IN membership for every non-empty set and equality to
// true for every requirement flag. Constraints the table cannot express are
// dropped first. Time bounds are bound in UTC.
func BuildWhere(schema model.Schema, filter model.Filter, style Placeholder) (Where, error) {
	if err := filter.Validate(); err != nil {
		return Where{}, err
	}
	f := schema.Project(filter)
	b := &whereBuilder{style: style}

	col, err := schema.DateColumn(f.DateField)
	if err != nil {
		return Where{}, err
	}
	b.parts = append(b.parts,
		fmt.Sprintf("%s >= %s", col, b.bind(f.DateRange.From.UTC())),
		fmt.Sprintf("%s < %s", col, b.bind(f.DateRange.ExclusiveEnd().UTC())),
	)

	for _, set := range []struct {
		name   string
		values []string
	}{
		{model.SetVersions, f.Versions},
		{model.SetCategories, f.Categories},
		{model.SetAgents, f.Agents},
		{model.SetStatuses, f.Statuses},
	} {
		if len(set.values) == 0 {
			continue
		}
		col := schema.SetColumns[set.name]
		marks := make([]string, len(set.values))
		for i, v := range set.values {
			marks[i] = b.bind(v)
		}
		b.parts = append(b.parts, fmt.Sprintf("%s IN (%s)", col, strings.Join(marks, ", ")))
	}

	for _, flag := range f.RequirementFlags {
		b.parts = append(b.parts, fmt.Sprintf("%s = %s", flag, b.bind(true)))
	}

	return Where{Clause: strings.Join(b.parts, " AND "), Args: b.args}, nil
}

// selectFields validates a projection against the table schema. An empty
// projection selects the schema defaults.
func selectFields(schema model.Schema, fields []string) ([]string, error) {
	if len(fields) == 0 {
		return schema.Fields, nil
	}
	for _, f := range fields {
		if !slices.Contains(schema.Fields, f) {
			return nil, fmt.Errorf("%w: %s.%s", common.ErrUnsupportedColumn, schema.Table, f)
		}
	}
	return fields, nil
}

// CountQuery renders a COUNT(*) over the filter.
func CountQuery(table model.Table, filter model.Filter, style Placeholder) (string, []any, error) {
	schema, err := model.SchemaFor(table)
	if err != nil {
		return "", nil, err
	}
	where, err := BuildWhere(schema, filter, style)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("SELECT COUNT(*) FROM %s%s", table, where.SQL()), where.Args, nil
}

// PageQuery renders a projected, id-ordered page read over the filter.
func PageQuery(table model.Table, filter model.Filter, fields []string, offset, limit int, style Placeholder) (string, []any, error) {
	if offset < 0 || limit <= 0 {
		return "", nil, fmt.Errorf("%w: offset %d limit %d", common.ErrInvalidConfig, offset, limit)
	}
	schema, err := model.SchemaFor(table)
	if err != nil {
		return "", nil, err
	}
	cols, err := selectFields(schema, fields)
	if err != nil {
		return "", nil, err
	}
	where, err := BuildWhere(schema, filter, style)
	if err != nil {
		return "", nil, err
	}

	b := &whereBuilder{style: style, args: where.Args}
	limitMark := b.bind(limit)
	offsetMark := b.bind(offset)
	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY id LIMIT %s OFFSET %s",
		strings.Join(cols, ", "), table, where.SQL(), limitMark, offsetMark)
	return query, b.args, nil
}

// validIdent reports whether s is safe to splice into SQL as an identifier.
func validIdent(s string) bool {
	return identPattern.MatchString(s)
}
