package rest

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/Veraticus/draftflow/internal/common"
	"github.com/Veraticus/draftflow/internal/model"
)

// Query renders a filter as PostgREST query operators:
//
//	created_at=gte.<from>&created_at=lt.<to+1ms>&category=in.("a","b")&requires_refund=is.true
//
// Constraints the table cannot express are dropped first.
func Query(table model.Table, filter model.Filter) (url.Values, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	schema, err := model.SchemaFor(table)
	if err != nil {
		return nil, err
	}
	f := schema.Project(filter)
	col, err := schema.DateColumn(f.DateField)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Add(col, "gte."+timestamp(f.DateRange.From))
	q.Add(col, "lt."+timestamp(f.DateRange.ExclusiveEnd()))

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
		q.Add(schema.SetColumns[set.name], inList(set.values))
	}
	for _, flag := range f.RequirementFlags {
		q.Add(flag, "is.true")
	}
	return q, nil
}

func projection(table model.Table, fields []string) ([]string, error) {
	schema, err := model.SchemaFor(table)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return schema.Fields, nil
	}
	for _, f := range fields {
		if !slices.Contains(schema.Fields, f) {
			return nil, fmt.Errorf("%w: %s.%s", common.ErrUnsupportedColumn, table, f)
		}
	}
	return fields, nil
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// inList quotes every member so commas and parentheses survive.
func inList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		v = strings.ReplaceAll(v, `\`, `\\`)
		v = strings.ReplaceAll(v, `"`, `\"`)
		quoted[i] = `"` + v + `"`
	}
	return "in.(" + strings.Join(quoted, ",") + ")"
}
