package domain

// SummaryMetrics are the metrics a summary reports when none are requested.
var SummaryMetrics = []Metric{MetricWeight, MetricWaist}

// Change is the total difference of one metric since the first entry.
type Change struct {
	Metric Metric  `json:"metric"`
	Diff   float64 `json:"diff"`
	Trend  Trend   `json:"trend"`
}

// Summary is the start-to-current progress over a whole series.
type Summary struct {
	Since   string   `json:"since"`
	Current string   `json:"current"`
	Changes []Change `json:"changes"`
}

// Summarize compares the newest entry of a date-descending series with the
// oldest one. It reports false when the series has fewer than two entries.
func Summarize(series []Measurement, metrics ...Metric) (Summary, bool) {
	if len(series) < 2 {
		return Summary{}, false
	}
	if len(metrics) == 0 {
		metrics = SummaryMetrics
	}
	current, start := series[0], series[len(series)-1]
	s := Summary{
		Since:   start.Date,
		Current: current.Date,
		Changes: make([]Change, 0, len(metrics)),
	}
	for _, m := range metrics {
		diff := m.Value(current) - m.Value(start)
		s.Changes = append(s.Changes, Change{
			Metric: m,
			Diff:   diff,
			Trend:  ClassifyDelta(diff, m.Info().HigherIsBetter),
		})
	}
	return s, true
}
