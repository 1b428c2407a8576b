package ingest

import (
	"sort"
	"time"

	"github.com/machado-saude/sector-priority/internal/model"
)

// WeekOptions configures AggregateWeekly.
type WeekOptions struct {
	// StartSunday anchors weeks on Sunday (epidemiological weeks) instead of Monday.
	StartSunday bool
	// ZeroFill emits weeks with no cases between the first and last observed week.
	ZeroFill bool
}

// WeekStart returns the first day of the week containing t, at midnight UTC.
func WeekStart(t time.Time, startSunday bool) time.Time {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	anchor := time.Monday
	if startSunday {
		anchor = time.Sunday
	}
	offset := (int(day.Weekday()) - int(anchor) + 7) % 7
	return day.AddDate(0, 0, -offset)
}

// AggregateWeekly counts records per week, ascending by week start. The
// result depends only on the set of records, not their order.
func AggregateWeekly(records []model.CaseRecord, opts WeekOptions) model.WeeklySeries {
	if len(records) == 0 {
		return model.WeeklySeries{}
	}

	counts := make(map[time.Time]int)
	for _, r := range records {
		counts[WeekStart(r.OnsetDate, opts.StartSunday)]++
	}

	weeks := make([]time.Time, 0, len(counts))
	for w := range counts {
		weeks = append(weeks, w)
	}
	sort.Slice(weeks, func(i, j int) bool { return weeks[i].Before(weeks[j]) })

	if opts.ZeroFill {
		first, last := weeks[0], weeks[len(weeks)-1]
		weeks = weeks[:0]
		for w := first; !w.After(last); w = w.AddDate(0, 0, 7) {
			weeks = append(weeks, w)
		}
	}

	series := make(model.WeeklySeries, len(weeks))
	for i, w := range weeks {
		series[i] = model.WeeklyCount{WeekStart: w, Cases: counts[w]}
	}
	return series
}

// MeanWeeklyIncidence is the mean case count per emitted week, or 0 for an
// empty series.
func MeanWeeklyIncidence(series model.WeeklySeries) float64 {
	if len(series) == 0 {
		return 0
	}
	return float64(series.Total()) / float64(len(series))
}
