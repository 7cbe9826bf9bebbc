package model

import (
	"crypto/sha256"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Veraticus/draftflow/internal/common"
)

// DateField selects which timestamp a filter's date range applies to.
type DateField string

const (
	// DateFieldCreated filters on the record creation time.
	DateFieldCreated DateField = "created"
	// DateFieldHumanReply filters on the time the human reply was sent.
	DateFieldHumanReply DateField = "human_reply"
)

// DateRange is a closed interval [From, To] at millisecond granularity.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Validate rejects zero bounds and ranges where From is after To.
func (r DateRange) Validate() error {
	if r.From.IsZero() || r.To.IsZero() {
		return fmt.Errorf("%w: both bounds are required", common.ErrDateRangeInvalid)
	}
	if r.From.After(r.To) {
		return fmt.Errorf("%w: from %s is after to %s", common.ErrDateRangeInvalid,
			r.From.Format(time.RFC3339), r.To.Format(time.RFC3339))
	}
	return nil
}

// Duration returns To minus From.
func (r DateRange) Duration() time.Duration {
	return r.To.Sub(r.From)
}

// ExclusiveEnd returns the upper bound used in "< end" predicates.
func (r DateRange) ExclusiveEnd() time.Time {
	return r.To.Add(time.Millisecond)
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.From) && t.Before(r.ExclusiveEnd())
}

// LastDays returns the range covering the n days that end at now.
func LastDays(now time.Time, n int) DateRange {
	return DateRange{From: now.AddDate(0, 0, -n), To: now}
}

// ParseBound parses a range bound given as RFC 3339 or as a plain date in
// loc. A plain date used as an upper bound covers the whole day.
func ParseBound(s string, loc *time.Location, upper bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := time.ParseInLocation(time.DateOnly, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: cannot parse %q as a date", common.ErrDateRangeInvalid, s)
	}
	if upper {
		return d.AddDate(0, 0, 1).Add(-time.Millisecond), nil
	}
	return d, nil
}

// ResolveRange builds a range from optional from/to bounds and a day count.
// Missing bounds default to the days ending at now, or to now itself for
// the upper bound when only from is given.
func ResolveRange(from, to string, days int, now time.Time, loc *time.Location) (DateRange, error) {
	if days <= 0 {
		days = 7
	}
	r := LastDays(now, days)
	if to != "" {
		t, err := ParseBound(to, loc, true)
		if err != nil {
			return DateRange{}, err
		}
		r = LastDays(t, days)
	}
	if from != "" {
		t, err := ParseBound(from, loc, false)
		if err != nil {
			return DateRange{}, err
		}
		r.From = t
	}
	return r, r.Validate()
}

// Filter is the fixed predicate shape the engine sends to the store.
// Empty sets match everything.
type Filter struct {
	DateRange        DateRange `json:"date_range"`
	DateField        DateField `json:"date_field,omitempty"`
	Versions         []string  `json:"versions,omitempty"`
	Categories       []string  `json:"categories,omitempty"`
	Agents           []string  `json:"agents,omitempty"`
	Statuses         []string  `json:"statuses,omitempty"`
	RequirementFlags []string  `json:"requirement_flags,omitempty"`
}

// Validate checks the date range and the date field.
func (f Filter) Validate() error {
	if err := f.DateRange.Validate(); err != nil {
		return err
	}
	switch f.DateField {
	case "", DateFieldCreated, DateFieldHumanReply:
	default:
		return fmt.Errorf("%w: unknown date field %q", common.ErrInvalidConfig, f.DateField)
	}
	return nil
}

// Normalize returns a copy with trimmed, deduplicated, sorted sets and a
// resolved date field.
func (f Filter) Normalize() Filter {
	out := f
	if out.DateField == "" {
		out.DateField = DateFieldCreated
	}
	out.Versions = normalizeSet(f.Versions)
	out.Categories = normalizeSet(f.Categories)
	out.Agents = normalizeSet(f.Agents)
	out.Statuses = normalizeSet(f.Statuses)
	out.RequirementFlags = normalizeSet(f.RequirementFlags)
	return out
}

// WithRange returns a copy of the filter covering r.
func (f Filter) WithRange(r DateRange) Filter {
	out := f
	out.DateRange = r
	return out
}

// Fingerprint identifies the normalized filter. Two filters that select the
// same rows in the same way share a fingerprint.
func (f Filter) Fingerprint() string {
	n := f.Normalize()
	var b strings.Builder
	fmt.Fprintf(&b, "%d:%d:%s", n.DateRange.From.UnixMilli(), n.DateRange.To.UnixMilli(), n.DateField)
	for _, set := range [][]string{n.Versions, n.Categories, n.Agents, n.Statuses, n.RequirementFlags} {
		b.WriteString("|")
		b.WriteString(strings.Join(set, ","))
	}
	sum := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%x", sum)
}

func normalizeSet(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	out = slices.Compact(out)
	if len(out) == 0 {
		return nil
	}
	return out
}
