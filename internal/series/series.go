// Package series turns raw transaction records into ordered period buckets
// for stacked charts.
package series

import (
	"encoding/json"
	"sort"
	"time"

	"cruscotto/internal/core"
)

// WeeklyThresholdDays is the largest window span, in days, that is still
// bucketed by week. Longer windows are bucketed by month.
const WeeklyThresholdDays = 90

// Bucket holds the accumulated magnitude per subcategory for one period.
type Bucket struct {
	Period  string
	Amounts map[string]float64
}

// MarshalJSON flattens the bucket into {"period": ..., "<subcategory>": n}.
// A subcategory literally named "period" is shadowed by the period key.
func (b Bucket) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(b.Amounts)+1)
	for k, v := range b.Amounts {
		out[k] = v
	}
	out["period"] = b.Period
	return json.Marshal(out)
}

// Result is the output of an aggregation.
type Result struct {
	Granularity   core.Granularity `json:"granularity"`
	Buckets       []Bucket         `json:"buckets"`
	Subcategories []string         `json:"subcategories"`
	// Skipped counts records dropped because their date did not parse.
	Skipped int `json:"skipped"`
}

// Aggregator buckets records. The zero value starts weeks on Sunday.
type Aggregator struct {
	WeekStart time.Weekday
}

// Aggregate buckets records with a Sunday week start.
func Aggregate(records []core.TransactionRecord, w core.Window) Result {
	return Aggregator{}.Aggregate(records, w)
}

// GranularityFor returns the bucketing granularity for a window.
func GranularityFor(w core.Window) core.Granularity {
	if w.Days() <= WeeklyThresholdDays {
		return core.Weekly
	}
	return core.Monthly
}

// Aggregate groups records by period and subcategory, summing absolute
// amounts. Buckets come out in ascending period order and subcategories
// in first-seen order. Records with unparsable dates are skipped.
func (a Aggregator) Aggregate(records []core.TransactionRecord, w core.Window) Result {
	res := Result{
		Granularity:   GranularityFor(w),
		Buckets:       []Bucket{},
		Subcategories: []string{},
	}

	byPeriod := make(map[string]map[string]float64)
	seen := make(map[string]struct{})

	for _, r := range records {
		d, err := core.ParseDate(r.Date)
		if err != nil {
			res.Skipped++
			continue
		}

		sub := r.SubcategoryOrDefault()
		key := a.periodKey(d, res.Granularity)

		amounts, ok := byPeriod[key]
		if !ok {
			amounts = make(map[string]float64)
			byPeriod[key] = amounts
		}
		amounts[sub] += r.Magnitude()

		if _, ok := seen[sub]; !ok {
			seen[sub] = struct{}{}
			res.Subcategories = append(res.Subcategories, sub)
		}
	}

	periods := make([]string, 0, len(byPeriod))
	for p := range byPeriod {
		periods = append(periods, p)
	}
	// Both key formats are zero-padded, so string order is chronological.
	sort.Strings(periods)

	for _, p := range periods {
		res.Buckets = append(res.Buckets, Bucket{Period: p, Amounts: byPeriod[p]})
	}
	return res
}

func (a Aggregator) periodKey(d time.Time, g core.Granularity) string {
	if g == core.Monthly {
		return d.Format("2006-01")
	}
	return core.FormatDate(a.weekStart(d))
}

// weekStart returns the configured week-start day on or before d.
func (a Aggregator) weekStart(d time.Time) time.Time {
	back := (int(d.Weekday()) - int(a.WeekStart) + 7) % 7
	return d.AddDate(0, 0, -back)
}
