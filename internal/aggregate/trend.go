// Package aggregate groups comparison records into classification statistics
// and computes period-over-period trends.
package aggregate

import (
	"math"
	"time"

	"github.com/Veraticus/draftflow/internal/model"
)

// Trend compares a current value with the previous period's value.
// Percent is the absolute change relative to previous. When previous is zero
// the percent is 0 if current is also zero and 100 otherwise.
func Trend(current, previous float64) model.TrendMetric {
	delta := current - previous

	var percent float64
	switch {
	case previous == 0 && current == 0:
		percent = 0
	case previous == 0:
		percent = 100
	default:
		percent = math.Abs(delta) / math.Abs(previous) * 100
	}

	direction := model.TrendNeutral
	switch {
	case delta > 0:
		direction = model.TrendUp
	case delta < 0:
		direction = model.TrendDown
	}

	return model.TrendMetric{
		Current:  current,
		Previous: previous,
		Trend: model.Trend{
			Delta:     delta,
			Percent:   percent,
			Direction: direction,
		},
	}
}

// PreviousPeriod returns the interval of identical duration that ends one
// millisecond before r starts.
func PreviousPeriod(r model.DateRange) model.DateRange {
	to := r.From.Add(-time.Millisecond)
	return model.DateRange{
		From: to.Add(-r.Duration()),
		To:   to,
	}
}

// WeekStart returns local midnight of the Monday on or before t.
func WeekStart(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	lt := t.In(loc)
	y, m, d := lt.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, loc)
	offset := (int(lt.Weekday()) + 6) % 7
	return midnight.AddDate(0, 0, -offset)
}

// DayStart returns local midnight of t's day.
func DayStart(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
