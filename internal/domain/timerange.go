package domain

import (
	"fmt"
	"time"
)

// TimeRange selects how far back a chart reaches.
type TimeRange string

const (
	Range1Month  TimeRange = "1M"
	Range3Months TimeRange = "3M"
	Range6Months TimeRange = "6M"
	Range1Year   TimeRange = "1Y"
	RangeAll     TimeRange = "ALL"
)

// TimeRanges lists the ranges in selector order.
var TimeRanges = []TimeRange{Range1Month, Range3Months, Range6Months, Range1Year, RangeAll}

// DefaultTimeRange is the range a chart opens with.
const DefaultTimeRange = Range3Months

// ParseTimeRange converts user input into a TimeRange. Empty input yields
// DefaultTimeRange.
func ParseTimeRange(s string) (TimeRange, error) {
	if s == "" {
		return DefaultTimeRange, nil
	}
	for _, r := range TimeRanges {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown time range %q", s)
}

// Cutoff returns the first calendar day included by r when evaluated at now.
// RangeAll returns the zero time.
func (r TimeRange) Cutoff(now time.Time) time.Time {
	var c time.Time
	switch r {
	case Range1Month:
		c = now.AddDate(0, -1, 0)
	case Range3Months:
		c = now.AddDate(0, -3, 0)
	case Range6Months:
		c = now.AddDate(0, -6, 0)
	case Range1Year:
		c = now.AddDate(-1, 0, 0)
	default:
		return time.Time{}
	}
	return time.Date(c.Year(), c.Month(), c.Day(), 0, 0, 0, 0, time.UTC)
}

// FilterByRange keeps the entries of a date-descending series that fall on or
// after the cutoff of r and returns them oldest first. Entries with an
// unparseable date are dropped unless r is RangeAll.
func FilterByRange(series []Measurement, r TimeRange, now time.Time) []Measurement {
	out := make([]Measurement, 0, len(series))
	if r == RangeAll {
		out = append(out, series...)
	} else {
		cutoff := r.Cutoff(now)
		for _, m := range series {
			day, err := m.Day()
			if err != nil || day.Before(cutoff) {
				continue
			}
			out = append(out, m)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
